package profilers

import (
	"context"

	"github.com/haivivi/genxstream/pkg/genx/mux"
)

// DefaultMux is the default profiler multiplexer.
var DefaultMux = NewMux()

// Handle registers a profiler for the given pattern to the default mux.
func Handle(pattern string, p Profiler) error {
	return DefaultMux.Handle(pattern, p)
}

// Get returns the profiler registered for the given pattern from the default mux.
func Get(pattern string) (Profiler, error) {
	return DefaultMux.Get(pattern)
}

// Process runs the profiler registered for the given pattern in the default mux.
func Process(ctx context.Context, pattern string, input Input) (*Result, error) {
	return DefaultMux.Process(ctx, pattern, input)
}

// Mux routes processing requests to the [Profiler] registered under the
// exact pattern. A pattern can be registered once.
type Mux struct {
	*mux.Mux[Profiler]
}

func NewMux() *Mux {
	return &Mux{Mux: mux.New[Profiler]("profiler", mux.Strict)}
}

func (m *Mux) Process(ctx context.Context, pattern string, input Input) (*Result, error) {
	p, err := m.Get(pattern)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, input)
}
