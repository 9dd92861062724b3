package wire

import (
	"fmt"
	"io"
	"sync"

	"github.com/haivivi/genxstream/pkg/genx"
)

// Record returns a Stream that passes src through unchanged while writing
// every chunk, then the End frame, to w. A failed write ends the returned
// Stream with the write error and closes src with it.
func Record(w io.Writer, src genx.Stream) genx.Stream {
	return &recordStream{src: src, enc: NewEncoder(w)}
}

type recordStream struct {
	src genx.Stream
	enc *Encoder

	mu   sync.Mutex
	werr error
	done bool
}

func (s *recordStream) Next() (*genx.MessageChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.werr != nil {
		return nil, s.werr
	}
	c, err := s.src.Next()
	if err != nil {
		if !s.done {
			s.done = true
			res, _ := s.src.Result()
			if werr := s.enc.Encode(EndOf(res, err)); werr != nil {
				s.werr = fmt.Errorf("wire: record: %w", werr)
				return nil, s.werr
			}
		}
		return nil, err
	}
	if werr := s.enc.Encode(FromChunk(c)); werr != nil {
		s.werr = fmt.Errorf("wire: record: %w", werr)
		s.src.CloseWithError(s.werr)
		return nil, s.werr
	}
	return c, nil
}

func (s *recordStream) Result() (genx.StreamResult, bool) {
	s.mu.Lock()
	werr := s.werr
	s.mu.Unlock()
	if werr != nil {
		return genx.ResultOf(werr), true
	}
	return s.src.Result()
}

func (s *recordStream) Close() error {
	return s.src.Close()
}

func (s *recordStream) CloseWithError(err error) error {
	return s.src.CloseWithError(err)
}

// Replay returns a Stream of the chunks recorded in r. The stream ends the
// way the recording's End frame says; input without an End frame ends with
// io.ErrUnexpectedEOF. Closing the Stream closes r if it is an io.Closer.
func Replay(r io.Reader) genx.Stream {
	dec := NewDecoder(r)
	out, s := genx.NewPipe(16)
	go func() {
		err := replayLoop(dec, out)
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
		if err != nil {
			out.CloseWithError(err)
		}
	}()
	return &replayStream{Stream: s, r: r}
}

func replayLoop(dec *Decoder, out *genx.PipeWriter) error {
	for {
		f, err := dec.Decode()
		if err == io.EOF {
			return fmt.Errorf("wire: replay: %w", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return err
		}
		if f.End != nil {
			if err := f.End.Err(); err != nil {
				return err
			}
			out.CloseWithResult(f.End.Result())
			return nil
		}
		c, err := f.Chunk()
		if err != nil {
			return err
		}
		if err := out.Send(c); err != nil {
			return nil
		}
	}
}

type replayStream struct {
	genx.Stream
	r io.Reader
}

func (s *replayStream) Close() error {
	return s.CloseWithError(genx.ErrStreamClosed)
}

func (s *replayStream) CloseWithError(err error) error {
	s.Stream.CloseWithError(err)
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
