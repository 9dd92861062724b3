package transformers

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/haivivi/genxstream/pkg/genx"
)

// Synthesizer turns text into audio. A vendor TTS client plugs into NewTTS
// by implementing it.
type Synthesizer interface {
	// Synthesize yields encoded audio frames for text. pattern is the value
	// passed to Transform, typically naming the voice.
	Synthesize(ctx context.Context, pattern, text string) iter.Seq2[[]byte, error]

	// MIMEType is the type of the frames Synthesize yields.
	MIMEType() string
}

// TTSOption is a functional option for TTS.
type TTSOption func(*TTS)

// WithTTSBufferSize sets the output buffer size (default: 100).
func WithTTSBufferSize(n int) TTSOption {
	return func(t *TTS) {
		t.size = n
	}
}

// TTS is a text-to-speech transformer.
//
// Input type: text/plain
// Output type: audio/* (Synthesizer.MIMEType)
//
// EoS Handling:
//   - Text is collected until a text/plain EoS marker, then synthesized as one
//     sub-stream: BOS, audio chunks, audio/* EoS, all with one StreamID
//   - Text left at input EOF is synthesized without a trailing EoS
//   - Non-text chunks are passed through unchanged
type TTS struct {
	synthesizer Synthesizer
	size        int
}

var _ genx.Transformer = (*TTS)(nil)

func NewTTS(synthesizer Synthesizer, opts ...TTSOption) *TTS {
	t := &TTS{
		synthesizer: synthesizer,
		size:        100,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TTS) Transform(_ context.Context, pattern string, input genx.Stream) (genx.Stream, error) {
	return genx.Go(input, t.size, func(ctx context.Context, input genx.Stream, out *genx.PipeWriter) error {
		return t.loop(ctx, pattern, input, out)
	}), nil
}

func (t *TTS) loop(ctx context.Context, pattern string, input genx.Stream, out *genx.PipeWriter) error {
	var (
		text     strings.Builder
		last     *genx.MessageChunk
		streamID string
	)
	for {
		chunk, err := input.Next()
		if err != nil {
			if !genx.IsEOF(err) {
				return err
			}
			if text.Len() > 0 {
				return t.synthesize(ctx, pattern, text.String(), last, streamID, out)
			}
			return nil
		}

		if chunk.Ctrl != nil && chunk.Ctrl.StreamID != "" {
			streamID = chunk.Ctrl.StreamID
		}

		if !isText(chunk) {
			if err := out.Send(chunk); err != nil {
				return nil
			}
			continue
		}
		if last == nil || !chunk.IsEndOfStream() {
			last = chunk
		}
		text.WriteString(string(chunk.Part.(genx.Text)))
		if !chunk.IsEndOfStream() {
			continue
		}

		if streamID == "" {
			streamID = genx.NewStreamID()
		}
		if text.Len() > 0 {
			if err := t.synthesize(ctx, pattern, text.String(), last, streamID, out); err != nil {
				return err
			}
			text.Reset()
		}
		eos := genx.NewEndOfStream(t.synthesizer.MIMEType())
		eos.Role, eos.Name = last.Role, last.Name
		eos.Ctrl.StreamID = streamID
		if err := out.Send(eos); err != nil {
			return nil
		}
		streamID = ""
	}
}

func (t *TTS) synthesize(ctx context.Context, pattern, text string, last *genx.MessageChunk, streamID string, out *genx.PipeWriter) error {
	if streamID == "" {
		streamID = genx.NewStreamID()
	}
	bos := genx.NewBeginOfStream(streamID)
	bos.Role, bos.Name = last.Role, last.Name
	if err := out.Send(bos); err != nil {
		return nil
	}
	mimeType := t.synthesizer.MIMEType()
	for frame, err := range t.synthesizer.Synthesize(ctx, pattern, text) {
		if err != nil {
			return fmt.Errorf("transformers: tts synthesize: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		if err := out.Send(&genx.MessageChunk{
			Role: last.Role,
			Name: last.Name,
			Part: &genx.Blob{MIMEType: mimeType, Data: frame},
			Ctrl: &genx.StreamCtrl{StreamID: streamID},
		}); err != nil {
			return nil
		}
	}
	return nil
}
