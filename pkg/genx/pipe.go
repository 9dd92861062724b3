package genx

import (
	"context"
	"io"
	"sync"
)

type pipeItem struct {
	chunk *MessageChunk
	err   error
	res   StreamResult
}

// NewPipe returns the two halves of a bounded channel: a PipeWriter for the
// producing goroutine and the Stream that consumes it. Unlike StreamBuilder,
// a pipe has exactly one consumer and Send applies back-pressure.
func NewPipe(size int) (*PipeWriter, Stream) {
	if size < 1 {
		size = 1
	}
	p := &pipe{
		ch:   make(chan pipeItem, size),
		done: make(chan struct{}),
	}
	return &PipeWriter{p: p}, &pipeStream{p: p}
}

type pipe struct {
	ch   chan pipeItem
	done chan struct{} // closed when the consumer closes

	closeOnce sync.Once
	closeErr  error
}

func (p *pipe) closeRead(err error) {
	p.closeOnce.Do(func() {
		p.closeErr = err
		close(p.done)
	})
}

// PipeWriter is the producer half of a pipe. It is meant for a single
// producing goroutine.
type PipeWriter struct {
	p *pipe

	mu     sync.Mutex
	closed bool
}

// Send delivers chunk, blocking while the pipe is full. It returns
// ErrStreamClosed once the consumer has closed its Stream; producers treat
// that as the signal to stop.
func (w *PipeWriter) Send(chunk *MessageChunk) error {
	return w.send(pipeItem{chunk: chunk})
}

func (w *PipeWriter) send(it pipeItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrStreamClosed
	}
	select {
	case <-w.p.done:
		return ErrStreamClosed
	default:
	}
	select {
	case w.p.ch <- it:
		return nil
	case <-w.p.done:
		return ErrStreamClosed
	}
}

func (w *PipeWriter) finish(it pipeItem) error {
	err := w.send(it)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.p.ch)
	}
	return err
}

// Close ends the stream cleanly; the consumer gets io.EOF after draining.
func (w *PipeWriter) Close() error {
	return w.CloseWithResult(StreamResult{Status: StatusDone})
}

// CloseWithResult is Close with the result the consumer will observe.
func (w *PipeWriter) CloseWithResult(res StreamResult) error {
	if res.Status == StatusOK {
		res.Status = StatusDone
	}
	return w.finish(pipeItem{err: io.EOF, res: res})
}

// CloseWithError ends the stream with err, delivered after the chunks
// already sent. A nil err behaves like Close.
func (w *PipeWriter) CloseWithError(err error) error {
	if err == nil {
		return w.Close()
	}
	return w.finish(pipeItem{err: err, res: ResultOf(err)})
}

// Done is closed when the consumer closes its Stream.
func (w *PipeWriter) Done() <-chan struct{} {
	return w.p.done
}

type pipeStream struct {
	p *pipe

	mu       sync.Mutex
	terminal error
	result   StreamResult
}

func (s *pipeStream) Next() (*MessageChunk, error) {
	s.mu.Lock()
	if s.terminal != nil {
		defer s.mu.Unlock()
		return nil, s.terminal
	}
	s.mu.Unlock()

	var (
		err error
		res StreamResult
	)
	select {
	case <-s.p.done:
		err = s.p.closeErr
		res = ResultOf(err)
	default:
		select {
		case it, ok := <-s.p.ch:
			switch {
			case !ok:
				err, res = io.EOF, StreamResult{Status: StatusDone}
			case it.err != nil:
				err, res = it.err, it.res
			default:
				return it.chunk, nil
			}
		case <-s.p.done:
			err = s.p.closeErr
			res = ResultOf(err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal == nil {
		s.terminal, s.result = err, res
	}
	return nil, s.terminal
}

func (s *pipeStream) Result() (StreamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.terminal != nil
}

func (s *pipeStream) Close() error {
	s.p.closeRead(ErrStreamClosed)
	return nil
}

func (s *pipeStream) CloseWithError(err error) error {
	if err == nil {
		err = ErrStreamClosed
	}
	s.p.closeRead(err)
	return nil
}

// LoopFunc is the body of a background production loop started by Go. It
// reads input and sends to out until input ends. Returning nil ends the
// output with io.EOF; returning an error ends it with that error.
type LoopFunc func(ctx context.Context, input Stream, out *PipeWriter) error

// Go runs loop on its own goroutine and returns the Stream it produces.
//
// The loop's context is cancelled when the consumer closes the returned
// Stream; at that point input is also closed, so a loop blocked in
// input.Next unwinds. Go owns input: it is closed once loop returns, with
// the loop's error if there was one. A loop whose Send fails with
// ErrStreamClosed may just return; the error goes nowhere.
func Go(input Stream, size int, loop LoopFunc) Stream {
	out, s := NewPipe(size)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})

	go func() {
		select {
		case <-out.Done():
			cancel()
			input.CloseWithError(ErrStreamClosed)
		case <-finished:
		}
	}()

	go func() {
		defer close(finished)
		defer cancel()
		err := loop(ctx, input, out)
		select {
		case <-out.Done():
			input.CloseWithError(ErrStreamClosed)
		default:
			if err != nil {
				input.CloseWithError(err)
			} else {
				input.Close()
			}
		}
		if err != nil {
			out.CloseWithError(err)
			return
		}
		out.Close()
	}()
	return s
}
