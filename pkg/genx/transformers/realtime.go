package transformers

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/input"
)

// RealtimeSession is a full-duplex conversation with a realtime backend.
// Chunks are sent as they arrive; replies come back through Recv, including
// a logical EoS per model turn.
type RealtimeSession interface {
	Send(ctx context.Context, chunk *genx.MessageChunk) error

	// CloseSend tells the backend that no more input follows. Recv keeps
	// yielding the remaining replies.
	CloseSend(ctx context.Context) error

	// Recv yields replies until the backend ends the session.
	Recv() iter.Seq2[*genx.MessageChunk, error]

	// Close releases the session and ends a pending Recv.
	Close() error
}

// Dialer connects realtime sessions.
type Dialer interface {
	Dial(ctx context.Context, pattern string) (RealtimeSession, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, pattern string) (RealtimeSession, error)

func (fn DialerFunc) Dial(ctx context.Context, pattern string) (RealtimeSession, error) {
	return fn(ctx, pattern)
}

// RealtimeOption is a functional option for Realtime.
type RealtimeOption func(*Realtime)

// WithRealtimeJitter reorders inbound audio by Ctrl.Timestamp before it is
// sent, holding up to depth chunks. Audio arriving after a later chunk was
// sent is dropped.
func WithRealtimeJitter(depth int) RealtimeOption {
	return func(t *Realtime) {
		t.jitterDepth = depth
	}
}

// WithRealtimeBufferSize sets the output buffer size (default: 100).
func WithRealtimeBufferSize(n int) RealtimeOption {
	return func(t *Realtime) {
		t.size = n
	}
}

// Realtime bridges a Stream to a realtime session.
//
// Input type: audio/* and text/plain
// Output type: whatever the session replies, typically model audio and text
//
// Transform dials the session before it returns. Input EOF half-closes the
// session; the output ends when the session does. A failure on either side
// ends the output with that failure and closes both the session and input.
type Realtime struct {
	dialer      Dialer
	jitterDepth int
	size        int
}

var _ genx.Transformer = (*Realtime)(nil)

func NewRealtime(dialer Dialer, opts ...RealtimeOption) *Realtime {
	t := &Realtime{
		dialer: dialer,
		size:   100,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Realtime) Transform(ctx context.Context, pattern string, in genx.Stream) (genx.Stream, error) {
	session, err := t.dialer.Dial(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("transformers: realtime dial %s: %w", pattern, err)
	}
	return genx.Go(in, t.size, func(ctx context.Context, in genx.Stream, out *genx.PipeWriter) error {
		defer session.Close()

		g, gctx := errgroup.WithContext(ctx)
		recvCtx, recvDone := context.WithCancel(gctx)
		g.Go(func() error {
			return t.send(recvCtx, in, session)
		})
		g.Go(func() error {
			err := receive(session, out)
			// send must observe the cancellation before in fails.
			recvDone()
			if err != nil {
				in.CloseWithError(err)
			} else {
				in.Close()
			}
			return err
		})
		g.Go(func() error {
			<-recvCtx.Done()
			session.Close()
			return nil
		})
		return g.Wait()
	}), nil
}

func receive(session RealtimeSession, out *genx.PipeWriter) error {
	for chunk, err := range session.Recv() {
		if err != nil {
			return fmt.Errorf("transformers: realtime recv: %w", err)
		}
		if err := out.Send(chunk); err != nil {
			return nil
		}
	}
	return nil
}

// send forwards input to the session. ctx is cancelled once the receive side
// is over, after which input errors are expected and ignored.
func (t *Realtime) send(ctx context.Context, in genx.Stream, session RealtimeSession) error {
	var jb *jitterSender
	if t.jitterDepth > 0 {
		jb = newJitterSender(t.jitterDepth, session)
	}
	forward := func(chunk *genx.MessageChunk) error {
		if jb != nil {
			return jb.send(ctx, chunk)
		}
		return session.Send(ctx, chunk)
	}

	for {
		chunk, err := in.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !genx.IsEOF(err) {
				return err
			}
			if jb != nil {
				if err := jb.flush(ctx); err != nil {
					return fmt.Errorf("transformers: realtime send: %w", err)
				}
			}
			if err := session.CloseSend(ctx); err != nil {
				return fmt.Errorf("transformers: realtime close send: %w", err)
			}
			return nil
		}
		if err := forward(chunk); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transformers: realtime send: %w", err)
		}
	}
}

type stampedChunk struct {
	chunk *genx.MessageChunk
}

func (c stampedChunk) Timestamp() int64 {
	return c.chunk.Ctrl.Timestamp
}

// jitterSender reorders timestamped audio through an input.JitterBuffer.
// Any other chunk flushes the buffer first, keeping turn boundaries in
// place.
type jitterSender struct {
	session RealtimeSession
	buf     *input.JitterBuffer[int64, stampedChunk]
	depth   int

	started bool
	last    int64
}

func newJitterSender(depth int, session RealtimeSession) *jitterSender {
	return &jitterSender{
		session: session,
		buf:     input.NewJitterBuffer[int64, stampedChunk](depth + 1),
		depth:   depth,
	}
}

func (j *jitterSender) send(ctx context.Context, chunk *genx.MessageChunk) error {
	_, audio := audioBlob(chunk)
	if !audio || chunk.Ctrl == nil || chunk.Ctrl.Timestamp == 0 || chunk.IsEndOfStream() {
		if err := j.flush(ctx); err != nil {
			return err
		}
		return j.session.Send(ctx, chunk)
	}
	if j.started && chunk.Ctrl.Timestamp < j.last {
		slog.Debug("transformers: realtime drop late audio", "timestamp", chunk.Ctrl.Timestamp, "last", j.last)
		return nil
	}
	j.buf.Push(stampedChunk{chunk: chunk})
	for j.buf.Len() > j.depth {
		if err := j.pop(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (j *jitterSender) pop(ctx context.Context) error {
	c, _ := j.buf.Pop()
	j.started = true
	j.last = c.Timestamp()
	return j.session.Send(ctx, c.chunk)
}

func (j *jitterSender) flush(ctx context.Context) error {
	for j.buf.Len() > 0 {
		if err := j.pop(ctx); err != nil {
			return err
		}
	}
	return nil
}
