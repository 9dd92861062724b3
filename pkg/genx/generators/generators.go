// Package generators routes model names to genx.Generator backends.
package generators

import (
	"context"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/mux"
)

var _ genx.Generator = (*Mux)(nil)

// DefaultMux is the default generator multiplexer.
var DefaultMux = NewMux()

// Handle registers a generator for the given pattern to the default mux.
func Handle(pattern string, gen genx.Generator) error {
	return DefaultMux.Handle(pattern, gen)
}

// GenerateStream generates a stream using the default mux.
func GenerateStream(ctx context.Context, pattern string, mctx genx.ModelContext) (genx.Stream, error) {
	return DefaultMux.GenerateStream(ctx, pattern, mctx)
}

// Invoke invokes a function tool using the default mux.
func Invoke(ctx context.Context, pattern string, mctx genx.ModelContext, fn *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	return DefaultMux.Invoke(ctx, pattern, mctx, fn)
}

// Mux routes requests to the generator registered under the exact model
// pattern. A pattern can be registered once.
type Mux struct {
	*mux.Mux[genx.Generator]
}

func NewMux() *Mux {
	return &Mux{Mux: mux.New[genx.Generator]("generator", mux.Strict)}
}

// GenerateStream looks up pattern and starts a generation on it. The
// pattern is passed on as the model name.
func (m *Mux) GenerateStream(ctx context.Context, pattern string, mctx genx.ModelContext) (genx.Stream, error) {
	gen, err := m.Get(pattern)
	if err != nil {
		return nil, err
	}
	return gen.GenerateStream(ctx, pattern, mctx)
}

func (m *Mux) Invoke(ctx context.Context, pattern string, mctx genx.ModelContext, tool *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	gen, err := m.Get(pattern)
	if err != nil {
		return genx.Usage{}, nil, err
	}
	return gen.Invoke(ctx, pattern, mctx, tool)
}
