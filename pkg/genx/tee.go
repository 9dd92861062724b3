package genx

import (
	"errors"
	"sync"
)

// TeeOption configures Tee.
type TeeOption func(*teeStream)

// WithMirrorErrorHandler installs fn to observe every failed mirror write,
// such as a full or abandoned sink. The primary stream is never affected;
// fn only makes the loss visible, e.g. to a recorder that must count gaps.
// fn runs on the consumer's goroutine and must not block.
func WithMirrorErrorHandler(fn func(error)) TeeOption {
	return func(t *teeStream) {
		t.onMirrorErr = fn
	}
}

// Tee returns a Stream that reads from src and mirrors a copy of every chunk
// into sink. The original chunks pass through unchanged and in order.
//
// Mirroring is best-effort: sink.Add never blocks, and its failures are
// discarded (or reported to WithMirrorErrorHandler). When src ends, the same
// terminal state is written to sink: Done or Truncated with src's usage on
// io.EOF, Blocked for a refusal, Abort for any other error.
func Tee(src Stream, sink *StreamBuilder, opts ...TeeOption) Stream {
	t := &teeStream{src: src, sink: sink}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type teeStream struct {
	src         Stream
	sink        *StreamBuilder
	onMirrorErr func(error)

	once sync.Once
}

func (t *teeStream) mirrorErr(err error) {
	if err != nil && t.onMirrorErr != nil {
		t.onMirrorErr(err)
	}
}

// finish writes the terminal state into the sink exactly once.
func (t *teeStream) finish(err error) {
	t.once.Do(func() {
		var st *State
		switch {
		case IsEOF(err):
			res, _ := t.src.Result()
			if res.Status == StatusTruncated {
				t.mirrorErr(t.sink.Truncated(res.Usage))
			} else {
				t.mirrorErr(t.sink.Done(res.Usage))
			}
		case errors.As(err, &st) && st.Status() == StatusBlocked:
			t.mirrorErr(t.sink.Blocked(st.Usage(), st.Refusal()))
		default:
			t.mirrorErr(t.sink.Abort(err))
		}
	})
}

func (t *teeStream) Next() (*MessageChunk, error) {
	chunk, err := t.src.Next()
	if err != nil {
		t.finish(err)
		return nil, err
	}
	if chunk != nil {
		t.mirrorErr(t.sink.Add(chunk.Clone()))
	}
	return chunk, nil
}

func (t *teeStream) Result() (StreamResult, bool) {
	return t.src.Result()
}

// Close ends the mirror with a clean end of stream, then closes src.
func (t *teeStream) Close() error {
	t.once.Do(func() {
		res, _ := t.src.Result()
		t.mirrorErr(t.sink.Done(res.Usage))
	})
	return t.src.Close()
}

// CloseWithError aborts the mirror with err, then closes src with it.
func (t *teeStream) CloseWithError(err error) error {
	if err == nil {
		err = ErrStreamClosed
	}
	t.finish(err)
	return t.src.CloseWithError(err)
}
