package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrFull is returned by a non-blocking add when the retained window has
	// no room for the new elements.
	ErrFull = errors.New("buffer: full")

	// ErrAbandoned is returned to the writer once every reader that was ever
	// attached has been closed. Writers treat it as a cancellation signal.
	ErrAbandoned = errors.New("buffer: all readers closed")
)

// Broadcast is a bounded, append-only log shared by one writer and any number
// of readers. Every reader owns an independent cursor, so each one observes
// the full sequence of elements in write order: fan-out, not a shared queue.
//
// Elements are retained until every attached reader has moved past them. The
// writer side is bounded by size: Add fails with ErrFull instead of blocking,
// and Wait blocks until a reader makes room. The final element passed to
// CloseWrite is always accepted, even when the log is full, so a terminal
// marker can never be lost to back-pressure.
//
// Readers only hold the mutex while moving their cursor; waiting for data
// happens outside the lock, so a slow reader never blocks a fast one.
type Broadcast[T any] struct {
	size int

	mu         sync.Mutex
	notify     chan struct{}
	items      []T
	base       int64 // absolute index of items[0]
	closeWrite bool
	closeErr   error
	readers    map[*Reader[T]]struct{}
	attached   bool
}

// BroadcastN creates a Broadcast that retains at most size unread elements.
// A size below one is treated as one.
func BroadcastN[T any](size int) *Broadcast[T] {
	if size < 1 {
		size = 1
	}
	return &Broadcast[T]{
		size:    size,
		notify:  make(chan struct{}),
		items:   make([]T, 0, size),
		readers: make(map[*Reader[T]]struct{}),
	}
}

// wakeLocked releases every goroutine parked on the current notify channel.
func (b *Broadcast[T]) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *Broadcast[T]) writableLocked() error {
	if b.closeErr != nil {
		return fmt.Errorf("buffer: write to closed buffer: %w", b.closeErr)
	}
	if b.closeWrite {
		return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	if b.attached && len(b.readers) == 0 {
		return ErrAbandoned
	}
	return nil
}

// Add appends all elements or none. It never blocks: when the retained window
// cannot hold every element, it returns ErrFull.
func (b *Broadcast[T]) Add(v ...T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writableLocked(); err != nil {
		return err
	}
	b.trimLocked()
	if len(b.items)+len(v) > b.size {
		return ErrFull
	}
	b.items = append(b.items, v...)
	b.wakeLocked()
	return nil
}

// Wait appends all elements, blocking while the retained window is full. It
// returns ctx.Err() if ctx is done first. Elements larger than the window are
// appended one at a time.
func (b *Broadcast[T]) Wait(ctx context.Context, v ...T) error {
	for _, e := range v {
		if err := b.waitOne(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcast[T]) waitOne(ctx context.Context, e T) error {
	for {
		b.mu.Lock()
		if err := b.writableLocked(); err != nil {
			b.mu.Unlock()
			return err
		}
		b.trimLocked()
		if len(b.items) < b.size {
			b.items = append(b.items, e)
			b.wakeLocked()
			b.mu.Unlock()
			return nil
		}
		notify := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-notify:
		}
	}
}

// CloseWrite closes the write side. Optional final elements are appended
// regardless of capacity. Readers drain the remaining elements and then get
// io.EOF.
func (b *Broadcast[T]) CloseWrite(final ...T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return fmt.Errorf("buffer: close closed buffer: %w", b.closeErr)
	}
	if b.closeWrite {
		return fmt.Errorf("buffer: close closed buffer: %w", io.ErrClosedPipe)
	}
	b.items = append(b.items, final...)
	b.closeWrite = true
	b.wakeLocked()
	return nil
}

// CloseWithError fails the log. Every reader's next call returns err, even if
// unread elements remain. A nil err is replaced with io.ErrClosedPipe.
func (b *Broadcast[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return nil
	}
	b.closeErr = err
	b.closeWrite = true
	b.items = nil
	b.wakeLocked()
	return nil
}

// Error returns the error the log was failed with, if any.
func (b *Broadcast[T]) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}

// Len returns the number of retained elements.
func (b *Broadcast[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Readers returns the number of attached readers.
func (b *Broadcast[T]) Readers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.readers)
}

// NewReader attaches a reader positioned at the oldest retained element.
func (b *Broadcast[T]) NewReader() *Reader[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Reader[T]{b: b, pos: b.base}
	b.readers[r] = struct{}{}
	b.attached = true
	return r
}

// trimLocked drops the prefix every attached reader has already consumed.
// With no reader attached yet, everything is kept for future readers.
func (b *Broadcast[T]) trimLocked() {
	if len(b.readers) == 0 {
		if b.attached {
			b.base += int64(len(b.items))
			clear(b.items)
			b.items = b.items[:0]
		}
		return
	}
	low := b.base + int64(len(b.items))
	for r := range b.readers {
		low = min(low, r.pos)
	}
	n := int(low - b.base)
	if n <= 0 {
		return
	}
	clear(b.items[:n])
	b.items = b.items[n:]
	b.base = low
}

// Reader is one independent cursor over a Broadcast.
type Reader[T any] struct {
	b        *Broadcast[T]
	pos      int64
	closed   bool
	closeErr error
}

// Next blocks until the element under the cursor is available and returns it.
// It returns io.EOF once the writer closed and the cursor reached the end, or
// the failure error if the log (or this reader) was closed with one.
func (r *Reader[T]) Next() (T, error) {
	var zero T
	b := r.b
	for {
		b.mu.Lock()
		if r.closeErr != nil {
			b.mu.Unlock()
			return zero, r.closeErr
		}
		if r.closed {
			b.mu.Unlock()
			return zero, fmt.Errorf("buffer: read from closed reader: %w", io.ErrClosedPipe)
		}
		if b.closeErr != nil {
			b.mu.Unlock()
			return zero, fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
		}
		if idx := r.pos - b.base; idx < int64(len(b.items)) {
			v := b.items[idx]
			r.pos++
			b.trimLocked()
			b.wakeLocked()
			b.mu.Unlock()
			return v, nil
		}
		if b.closeWrite {
			b.mu.Unlock()
			return zero, io.EOF
		}
		notify := b.notify
		b.mu.Unlock()
		<-notify
	}
}

// Close detaches the reader. When the last attached reader closes, the
// writer observes ErrAbandoned.
func (r *Reader[T]) Close() error {
	return r.CloseWithError(nil)
}

// CloseWithError detaches the reader; subsequent Next calls return err (or
// io.ErrClosedPipe for a nil err). Other readers are unaffected.
func (r *Reader[T]) CloseWithError(err error) error {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.closeErr = err
	delete(b.readers, r)
	b.trimLocked()
	b.wakeLocked()
	return nil
}
