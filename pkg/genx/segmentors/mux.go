package segmentors

import (
	"context"

	"github.com/haivivi/genxstream/pkg/genx/mux"
)

// DefaultMux is the default segmentor multiplexer.
var DefaultMux = NewMux()

// Handle registers a segmentor for the given pattern to the default mux.
func Handle(pattern string, s Segmentor) error {
	return DefaultMux.Handle(pattern, s)
}

// Get returns the segmentor registered for the given pattern from the default mux.
func Get(pattern string) (Segmentor, error) {
	return DefaultMux.Get(pattern)
}

// Process runs the segmentor registered for the given pattern in the default mux.
func Process(ctx context.Context, pattern string, input Input) (*Result, error) {
	return DefaultMux.Process(ctx, pattern, input)
}

// Mux routes processing requests to the [Segmentor] registered under the
// exact pattern. A pattern can be registered once.
type Mux struct {
	*mux.Mux[Segmentor]
}

func NewMux() *Mux {
	return &Mux{Mux: mux.New[Segmentor]("segmentor", mux.Strict)}
}

// Process runs the segmentor registered for the given pattern.
func (m *Mux) Process(ctx context.Context, pattern string, input Input) (*Result, error) {
	s, err := m.Get(pattern)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, input)
}
