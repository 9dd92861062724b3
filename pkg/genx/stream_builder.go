package genx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/haivivi/genxstream/pkg/buffer"
)

// StreamEvent is one entry of a StreamBuilder's log: either a chunk
// (Status == StatusOK) or the terminal event.
type StreamEvent struct {
	Chunk   *MessageChunk
	Status  Status
	Usage   Usage
	Refusal string
	Error   error
}

// StreamBuilder lets a producer push chunks from one goroutine while any
// number of Streams pull them from others. Every Stream returned by Stream()
// has its own cursor and sees the whole buffered sequence.
//
// Add is bounded and never blocks; Push waits for room. Done, Truncated,
// Blocked and Unexpected append a terminal event behind the pending chunks.
// Abort fails every Stream at once.
type StreamBuilder struct {
	log       *buffer.Broadcast[*StreamEvent]
	funcTools map[string]*FuncTool
}

// NewStreamBuilder creates a builder retaining at most size unread events.
// Tool calls added later are resolved against the FuncTools of mctx, which
// may be nil.
func NewStreamBuilder(mctx ModelContext, size int) *StreamBuilder {
	sb := &StreamBuilder{
		log:       buffer.BroadcastN[*StreamEvent](size),
		funcTools: make(map[string]*FuncTool),
	}
	if mctx != nil {
		for tool := range mctx.Tools() {
			if t, ok := tool.(*FuncTool); ok {
				sb.funcTools[t.Name] = t
			}
		}
	}
	return sb
}

func (sb *StreamBuilder) events(chunks []*MessageChunk) []*StreamEvent {
	evts := make([]*StreamEvent, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		// A builder without declared tools (e.g. a Tee sink) passes tool
		// calls through unresolved.
		if c.ToolCall != nil && c.ToolCall.FuncCall != nil && len(sb.funcTools) > 0 {
			t, ok := sb.funcTools[c.ToolCall.FuncCall.Name]
			if !ok {
				slog.Warn("genx/stream_builder: tool call not found", "name", c.ToolCall.FuncCall.Name)
				continue
			}
			// Link a copy; the producer's chunk stays untouched.
			tc := *c.ToolCall
			fc := *tc.FuncCall
			fc.tool = t
			tc.FuncCall = &fc
			linked := *c
			linked.ToolCall = &tc
			c = &linked
		}
		evts = append(evts, &StreamEvent{Chunk: c})
	}
	return evts
}

// Add appends chunks without blocking. It fails with buffer.ErrFull when the
// window cannot hold them all, and with buffer.ErrAbandoned once every Stream
// built from sb has been closed.
func (sb *StreamBuilder) Add(chunks ...*MessageChunk) error {
	return sb.log.Add(sb.events(chunks)...)
}

// Push appends chunks, waiting for readers to make room.
func (sb *StreamBuilder) Push(ctx context.Context, chunks ...*MessageChunk) error {
	return sb.log.Wait(ctx, sb.events(chunks)...)
}

func (sb *StreamBuilder) terminate(evt *StreamEvent) error {
	return sb.log.CloseWrite(evt)
}

// Done marks physical end of stream with the final usage.
func (sb *StreamBuilder) Done(stats Usage) error {
	return sb.terminate(&StreamEvent{Status: StatusDone, Usage: stats})
}

// Truncated marks physical end of stream for output cut short by a limit.
func (sb *StreamBuilder) Truncated(stats Usage) error {
	return sb.terminate(&StreamEvent{Status: StatusTruncated, Usage: stats})
}

// Blocked ends the stream with a refusal.
func (sb *StreamBuilder) Blocked(stats Usage, refusal string) error {
	return sb.terminate(&StreamEvent{Status: StatusBlocked, Usage: stats, Refusal: refusal})
}

// Unexpected ends the stream with err, after the pending chunks.
func (sb *StreamBuilder) Unexpected(stats Usage, err error) error {
	return sb.terminate(&StreamEvent{Status: StatusError, Usage: stats, Error: err})
}

// Abort fails every Stream immediately; unread chunks are dropped.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.log.CloseWithError(err)
}

// AbortWithMessage is Abort with an error built from text.
func (sb *StreamBuilder) AbortWithMessage(text string) error {
	return sb.Abort(errors.New(text))
}

// Stream attaches a new consumer positioned at the oldest retained event.
func (sb *StreamBuilder) Stream() Stream {
	return &builderStream{r: sb.log.NewReader()}
}

type builderStream struct {
	r *buffer.Reader[*StreamEvent]

	mu       sync.Mutex
	terminal error
	result   StreamResult
}

func (s *builderStream) Next() (*MessageChunk, error) {
	s.mu.Lock()
	if s.terminal != nil {
		defer s.mu.Unlock()
		return nil, s.terminal
	}
	s.mu.Unlock()

	evt, err := s.r.Next()
	if err == nil && evt.Status == StatusOK {
		return evt.Chunk, nil
	}

	var res StreamResult
	switch {
	case err != nil:
		if !errors.Is(err, io.EOF) {
			err = Error(Usage{}, err)
		}
		res = ResultOf(err)
	case evt.Status == StatusDone, evt.Status == StatusTruncated:
		err = io.EOF
		res = StreamResult{Usage: evt.Usage, Status: evt.Status}
	case evt.Status == StatusBlocked:
		st := Blocked(evt.Usage, evt.Refusal)
		err, res = st, ResultOf(st)
	default:
		cause := evt.Error
		if cause == nil {
			cause = errors.New("unknown error")
		}
		st := Error(evt.Usage, cause)
		err, res = st, ResultOf(st)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal == nil {
		s.terminal, s.result = err, res
	}
	return nil, s.terminal
}

func (s *builderStream) Result() (StreamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.terminal != nil
}

func (s *builderStream) Close() error {
	return s.r.CloseWithError(ErrStreamClosed)
}

func (s *builderStream) CloseWithError(err error) error {
	if err == nil {
		err = ErrStreamClosed
	}
	return s.r.CloseWithError(err)
}
