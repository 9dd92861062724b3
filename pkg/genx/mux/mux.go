// Package mux is the pattern router shared by the generator, model context,
// segmentor, profiler and transformer registries.
package mux

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrNotFound          = errors.New("mux: not found")
	ErrAlreadyRegistered = errors.New("mux: already registered")
)

// Policy decides what Handle does with a pattern that is already registered.
type Policy int

const (
	// Strict rejects a second registration; the first one stays.
	Strict Policy = iota

	// Replace silently overwrites the previous registration.
	Replace
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case Replace:
		return "replace"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Mux maps exact pattern strings to backends of type T.
//
// Lookups take a read lock only, so concurrent lookups never wait on each
// other; Handle holds the write lock for a single insert. The backend is
// returned to the caller and used outside the lock.
type Mux[T any] struct {
	kind   string
	policy Policy

	mu       sync.RWMutex
	handlers map[string]T
}

// New creates an empty Mux. kind names the backend type in error messages,
// e.g. "generator".
func New[T any](kind string, policy Policy) *Mux[T] {
	return &Mux[T]{
		kind:     kind,
		policy:   policy,
		handlers: make(map[string]T),
	}
}

func (m *Mux[T]) Policy() Policy {
	return m.policy
}

// Handle registers backend under pattern.
func (m *Mux[T]) Handle(pattern string, backend T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[pattern]; ok && m.policy == Strict {
		return fmt.Errorf("%w: %s for %s", ErrAlreadyRegistered, m.kind, pattern)
	}
	m.handlers[pattern] = backend
	return nil
}

// Get resolves pattern. It fails with ErrNotFound, naming the pattern.
func (m *Mux[T]) Get(pattern string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	backend, ok := m.handlers[pattern]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s for %s", ErrNotFound, m.kind, pattern)
	}
	return backend, nil
}

// Remove unregisters pattern and reports whether it was registered.
func (m *Mux[T]) Remove(pattern string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[pattern]
	delete(m.handlers, pattern)
	return ok
}

// Patterns returns the registered patterns, sorted.
func (m *Mux[T]) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for p := range m.handlers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (m *Mux[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}
