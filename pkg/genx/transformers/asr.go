package transformers

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/haivivi/genxstream/pkg/genx"
)

// Transcriber opens speech recognition sessions. A vendor ASR client plugs
// into NewASR by implementing it.
type Transcriber interface {
	// OpenASR starts a session for audio of mimeType. pattern is the value
	// passed to Transform.
	OpenASR(ctx context.Context, pattern, mimeType string) (ASRSession, error)
}

// ASRSession is one recognition session, covering one audio sub-stream.
type ASRSession interface {
	// SendAudio sends audio data. last marks the end of the audio; the
	// session then finishes recognition and ends Recv.
	SendAudio(ctx context.Context, data []byte, last bool) error

	// Recv yields recognized text segments until the session finishes.
	Recv() iter.Seq2[string, error]

	Close() error
}

// ASROption is a functional option for ASR.
type ASROption func(*ASR)

// WithASRRole sets the role of the emitted text chunks. The default is
// genx.RoleModel. An empty role keeps the role of the audio.
func WithASRRole(role genx.Role) ASROption {
	return func(t *ASR) {
		t.role = role
	}
}

// WithASRBufferSize sets the output buffer size (default: 100).
func WithASRBufferSize(n int) ASROption {
	return func(t *ASR) {
		t.size = n
	}
}

// ASR is a speech-to-text transformer.
//
// Input type: audio/*
// Output type: text/plain
//
// EoS Handling:
//   - The first audio chunk of a sub-stream opens a session
//   - An audio/* EoS finishes the session, emits its text, then emits a text/plain EoS
//   - At input EOF an open session is finished and its text emitted
//   - Non-audio chunks are passed through unchanged
type ASR struct {
	transcriber Transcriber
	role        genx.Role
	size        int
}

var _ genx.Transformer = (*ASR)(nil)

func NewASR(transcriber Transcriber, opts ...ASROption) *ASR {
	t := &ASR{
		transcriber: transcriber,
		role:        genx.RoleModel,
		size:        100,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform converts audio Blob chunks to Text chunks. Sessions are opened
// on demand, so it returns immediately.
func (t *ASR) Transform(_ context.Context, pattern string, input genx.Stream) (genx.Stream, error) {
	return genx.Go(input, t.size, func(ctx context.Context, input genx.Stream, out *genx.PipeWriter) error {
		l := &asrLoop{t: t, pattern: pattern, out: out}
		defer l.abort()
		return l.run(ctx, input)
	}), nil
}

type asrLoop struct {
	t       *ASR
	pattern string
	out     *genx.PipeWriter

	session ASRSession
	done    chan error
	last    *genx.MessageChunk // last audio chunk, for role and name
}

func (l *asrLoop) run(ctx context.Context, input genx.Stream) error {
	for {
		chunk, err := input.Next()
		if err != nil {
			if !genx.IsEOF(err) {
				return err
			}
			return l.finish(ctx)
		}

		if chunk.IsEndOfStream() {
			if _, ok := audioBlob(chunk); ok {
				if err := l.finish(ctx); err != nil {
					return err
				}
				eos := genx.NewTextEndOfStream()
				eos.Role, eos.Name = l.roleName(chunk)
				eos.Ctrl.StreamID = chunk.Ctrl.StreamID
				if err := l.out.Send(eos); err != nil {
					return nil
				}
				continue
			}
		}

		blob, ok := audioBlob(chunk)
		if !ok || chunk.IsEndOfStream() {
			if err := l.out.Send(chunk); err != nil {
				return nil
			}
			continue
		}

		l.last = chunk
		if l.session == nil {
			if err := l.open(ctx, blob.MIMEType); err != nil {
				return err
			}
		}
		if len(blob.Data) == 0 {
			continue
		}
		if err := l.session.SendAudio(ctx, blob.Data, false); err != nil {
			return fmt.Errorf("transformers: asr send audio: %w", err)
		}
	}
}

func (l *asrLoop) open(ctx context.Context, mimeType string) error {
	session, err := l.t.transcriber.OpenASR(ctx, l.pattern, mimeType)
	if err != nil {
		return fmt.Errorf("transformers: asr open session: %w", err)
	}
	l.session = session
	l.done = make(chan error, 1)
	role, name := l.roleName(l.last)
	go func() {
		l.done <- l.receive(session, role, name)
	}()
	return nil
}

func (l *asrLoop) receive(session ASRSession, role genx.Role, name string) error {
	for text, err := range session.Recv() {
		if err != nil {
			return fmt.Errorf("transformers: asr recv: %w", err)
		}
		if text == "" {
			continue
		}
		if err := l.out.Send(&genx.MessageChunk{Role: role, Name: name, Part: genx.Text(text)}); err != nil {
			return nil
		}
	}
	return nil
}

// finish ends the open session, if any, and waits for its last results.
func (l *asrLoop) finish(ctx context.Context) error {
	if l.session == nil {
		return nil
	}
	session := l.session
	l.session = nil
	defer session.Close()
	if err := session.SendAudio(ctx, nil, true); err != nil {
		return fmt.Errorf("transformers: asr finish: %w", err)
	}
	select {
	case err := <-l.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *asrLoop) abort() {
	if l.session != nil {
		slog.Debug("transformers: asr session aborted", "pattern", l.pattern)
		l.session.Close()
		l.session = nil
	}
}

func (l *asrLoop) roleName(chunk *genx.MessageChunk) (genx.Role, string) {
	role := l.t.role
	if chunk == nil {
		return role, ""
	}
	if role == "" {
		role = chunk.Role
	}
	return role, chunk.Name
}
