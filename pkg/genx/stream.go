package genx

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrStreamClosed is reported to producers whose consumer closed the Stream,
// and to consumers calling Next after Close.
var ErrStreamClosed = errors.New("genx: stream closed")

// Stream is a pull-based, single-consumer sequence of chunks.
//
// Next blocks until a chunk is available. It returns io.EOF at physical end of
// stream; no more chunks will ever follow. A logical end of a sub-stream is an
// ordinary chunk whose Ctrl has EndOfStream set, and more chunks may follow
// it. Any other error is terminal: the Stream keeps returning it.
//
// Result reports usage and terminal status once Next returned a terminal
// error (io.EOF included), and false before that.
//
// Close and CloseWithError release whatever the Stream holds. Closing is also
// how a consumer cancels: producers behind the Stream observe the close and
// stop. Both are safe to call more than once.
type Stream interface {
	Next() (*MessageChunk, error)
	Result() (StreamResult, bool)
	Close() error
	CloseWithError(error) error
}

type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDone:
		return "done"
	case StatusTruncated:
		return "truncated"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StreamResult is the terminal accounting of a Stream.
type StreamResult struct {
	Usage   Usage
	Status  Status
	Refusal string
}

// IsEOF reports whether err marks physical end of stream.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// ResultOf maps a terminal error to the result a Stream reports for it.
// Stream implementations outside this package use it to fill Result.
func ResultOf(err error) StreamResult {
	var st *State
	if errors.As(err, &st) {
		return StreamResult{Usage: st.usage, Status: st.status, Refusal: st.refusal}
	}
	if IsEOF(err) {
		return StreamResult{Status: StatusDone}
	}
	return StreamResult{Status: StatusError}
}

// CollectText reads s to the end and concatenates every Text part. Chunks
// that are not text are skipped. s is closed before returning.
func CollectText(s Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for {
		chunk, err := s.Next()
		if err != nil {
			if IsEOF(err) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		if t, ok := chunk.Part.(Text); ok {
			sb.WriteString(string(t))
		}
	}
}

// CollectToolCalls reads s to the end and returns every tool call it carried.
func CollectToolCalls(s Stream) ([]*ToolCall, error) {
	defer s.Close()
	var calls []*ToolCall
	for {
		chunk, err := s.Next()
		if err != nil {
			if IsEOF(err) {
				return calls, nil
			}
			return calls, err
		}
		if chunk.ToolCall != nil {
			calls = append(calls, chunk.ToolCall)
		}
	}
}

// Drain reads s to the end, discarding chunks, and returns its result.
func Drain(s Stream) (StreamResult, error) {
	defer s.Close()
	for {
		if _, err := s.Next(); err != nil {
			res, _ := s.Result()
			if IsEOF(err) {
				return res, nil
			}
			return res, err
		}
	}
}
