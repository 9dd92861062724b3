// Package modelcontexts provides a multiplexer for ModelContextProvider routing.
//
// Unlike the other registries, registering a pattern twice replaces the
// previous provider, so a reloaded configuration takes effect without a
// restart.
package modelcontexts

import (
	"context"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/mux"
)

var _ ModelContextProvider = (*Mux)(nil)

// DefaultMux is the default model context provider multiplexer.
var DefaultMux = NewMux()

// Handle registers a provider for the given pattern to the default mux.
func Handle(pattern string, provider ModelContextProvider) error {
	return DefaultMux.Handle(pattern, provider)
}

// HandleFunc registers a provider function for the given pattern to the default mux.
func HandleFunc(pattern string, f ModelContextProviderFunc) error {
	return DefaultMux.Handle(pattern, f)
}

// ModelContext returns a model context using the default mux.
func ModelContext(ctx context.Context, pattern string) (genx.ModelContext, error) {
	return DefaultMux.ModelContext(ctx, pattern)
}

// ModelContextProviderFunc is a function type that implements ModelContextProvider.
type ModelContextProviderFunc func(context.Context, string) (genx.ModelContext, error)

func (f ModelContextProviderFunc) ModelContext(ctx context.Context, name string) (genx.ModelContext, error) {
	return f(ctx, name)
}

// ModelContextProvider provides model contexts for generation.
type ModelContextProvider interface {
	ModelContext(context.Context, string) (genx.ModelContext, error)
}

type Mux struct {
	*mux.Mux[ModelContextProvider]
}

func NewMux() *Mux {
	return &Mux{Mux: mux.New[ModelContextProvider]("model context", mux.Replace)}
}

// HandleFunc registers a provider function for the given pattern.
func (m *Mux) HandleFunc(pattern string, f ModelContextProviderFunc) error {
	return m.Handle(pattern, f)
}

// ModelContext looks up the provider for pattern and asks it for a context.
func (m *Mux) ModelContext(ctx context.Context, pattern string) (genx.ModelContext, error) {
	provider, err := m.Get(pattern)
	if err != nil {
		return nil, err
	}
	return provider.ModelContext(ctx, pattern)
}
