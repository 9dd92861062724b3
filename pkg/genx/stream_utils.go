package genx

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Matcher selects chunks.
type Matcher func(*MessageChunk) bool

// MIMETypeMatcher matches chunks whose Part has a MIME type starting with
// prefix, e.g. "audio/" or "text/plain".
func MIMETypeMatcher(prefix string) Matcher {
	return func(chunk *MessageChunk) bool {
		mt := chunk.MIMEType()
		return mt != "" && strings.HasPrefix(mt, prefix)
	}
}

// Split routes the chunks of input into two streams by match. A Stream
// that is closed early stops receiving; input is closed once both are.
// Both sides share back-pressure, so a side that is never read stalls the
// other once its buffer fills.
func Split(input Stream, match Matcher) (matched, rest Stream) {
	mw, ms := NewPipe(64)
	rw, rs := NewPipe(64)

	go func() {
		mOpen, rOpen := true, true
		finish := func(err error) {
			mw.CloseWithError(err)
			rw.CloseWithError(err)
		}
		for mOpen || rOpen {
			chunk, err := input.Next()
			if err != nil {
				if IsEOF(err) {
					res, _ := input.Result()
					mw.CloseWithResult(res)
					rw.CloseWithResult(res)
					return
				}
				finish(err)
				return
			}
			if match(chunk) {
				mOpen = mOpen && mw.Send(chunk) == nil
			} else {
				rOpen = rOpen && rw.Send(chunk) == nil
			}
		}
		input.CloseWithError(ErrStreamClosed)
		finish(ErrStreamClosed)
	}()
	return ms, rs
}

// Merge concatenates streams: all of the first, then all of the second, and
// so on. The first error ends the merged stream.
func Merge(streams ...Stream) Stream {
	switch len(streams) {
	case 0:
		return Empty()
	case 1:
		return streams[0]
	}
	return &mergeStream{streams: streams}
}

// CompositeSeq is Merge with a logical end of stream emitted after every
// stream but the last, typed after the last Part seen in that stream. It
// keeps the boundaries of, say, several TTS outputs joined into one audio
// stream.
func CompositeSeq(streams ...Stream) Stream {
	switch len(streams) {
	case 0:
		return Empty()
	case 1:
		return streams[0]
	}
	return Go(Merge(streams...), 64, func(_ context.Context, _ Stream, out *PipeWriter) error {
		defer closeAll(streams, nil)
		for i, s := range streams {
			var lastMIME string
			for {
				chunk, err := s.Next()
				if err != nil {
					if IsEOF(err) {
						break
					}
					return err
				}
				if mt := chunk.MIMEType(); mt != "" {
					lastMIME = mt
				}
				if err := out.Send(chunk); err != nil {
					return err
				}
			}
			if i == len(streams)-1 || lastMIME == "" {
				continue
			}
			eos := NewEndOfStream(lastMIME)
			if lastMIME == "text/plain" {
				eos = NewTextEndOfStream()
			}
			if err := out.Send(eos); err != nil {
				return err
			}
		}
		return nil
	})
}

// MergeInterleaved reads all streams concurrently and emits chunks in
// arrival order. Order within each source stream is kept. The first error
// ends the merged stream and closes the other sources.
func MergeInterleaved(streams ...Stream) Stream {
	switch len(streams) {
	case 0:
		return Empty()
	case 1:
		return streams[0]
	}
	out, s := NewPipe(64)
	go func() {
		var g errgroup.Group
		for _, src := range streams {
			g.Go(func() error {
				for {
					chunk, err := src.Next()
					if err != nil {
						if IsEOF(err) {
							return nil
						}
						return err
					}
					if err := out.Send(chunk); err != nil {
						return err
					}
				}
			})
		}
		stop := make(chan struct{})
		go func() {
			select {
			case <-out.Done():
				closeAll(streams, ErrStreamClosed)
			case <-stop:
			}
		}()
		err := g.Wait()
		close(stop)
		if err != nil {
			closeAll(streams, err)
			out.CloseWithError(err)
			return
		}
		out.Close()
	}()
	return s
}

func closeAll(streams []Stream, err error) {
	for _, s := range streams {
		if err == nil {
			s.Close()
		} else {
			s.CloseWithError(err)
		}
	}
}

type mergeStream struct {
	mu      sync.Mutex
	streams []Stream
	idx     int
	usage   Usage
	done    bool
}

// Next is meant for a single consumer. The lock is not held while the
// current source blocks, so Result stays responsive.
func (s *mergeStream) Next() (*MessageChunk, error) {
	for {
		s.mu.Lock()
		if s.idx >= len(s.streams) {
			s.done = true
			s.mu.Unlock()
			return nil, io.EOF
		}
		cur := s.streams[s.idx]
		s.mu.Unlock()

		chunk, err := cur.Next()
		if err == nil {
			return chunk, nil
		}
		if !IsEOF(err) {
			return nil, err
		}
		s.mu.Lock()
		if res, ok := cur.Result(); ok {
			s.usage = s.usage.Add(res.Usage)
		}
		s.idx++
		s.mu.Unlock()
	}
}

// Result sums the usage of every source once all of them ended.
func (s *mergeStream) Result() (StreamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return StreamResult{Usage: s.usage, Status: StatusDone}, true
	}
	if s.idx < len(s.streams) {
		if res, ok := s.streams[s.idx].Result(); ok && res.Status != StatusDone && res.Status != StatusTruncated {
			return res, true
		}
	}
	return StreamResult{}, false
}

func (s *mergeStream) Close() error {
	closeAll(s.streams, nil)
	return nil
}

func (s *mergeStream) CloseWithError(err error) error {
	if err == nil {
		err = ErrStreamClosed
	}
	closeAll(s.streams, err)
	return nil
}

// Empty returns a Stream that is already at io.EOF.
func Empty() Stream {
	return &staticStream{err: io.EOF, res: StreamResult{Status: StatusDone}}
}

// ErrorStream returns a Stream whose Next always fails with err. It lets a
// stage that failed after committing to a Stream report the failure the
// normal way.
func ErrorStream(err error) Stream {
	if err == nil {
		err = errors.New("genx: nil error")
	}
	return &staticStream{err: err, res: ResultOf(err)}
}

type staticStream struct {
	err error
	res StreamResult
}

func (s *staticStream) Next() (*MessageChunk, error)   { return nil, s.err }
func (s *staticStream) Result() (StreamResult, bool)   { return s.res, true }
func (s *staticStream) Close() error                   { return nil }
func (s *staticStream) CloseWithError(err error) error { return nil }
