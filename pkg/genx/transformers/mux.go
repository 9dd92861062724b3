package transformers

import (
	"context"
	"strings"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/mux"
)

var _ genx.Transformer = (*Mux)(nil)

// DefaultMux is the default transformer multiplexer.
var DefaultMux = NewMux()

// Handle registers a transformer for the given pattern to the default mux.
func Handle(pattern string, t genx.Transformer) error {
	return DefaultMux.Handle(pattern, t)
}

// Transform applies the transformer registered for the pattern using the default mux.
func Transform(ctx context.Context, pattern string, input genx.Stream) (genx.Stream, error) {
	return DefaultMux.Transform(ctx, pattern, input)
}

// Mux is a transformer multiplexer that routes requests to the transformer
// registered under the exact pattern. A pattern can be registered once.
type Mux struct {
	*mux.Mux[genx.Transformer]
}

// NewMux creates a new transformer multiplexer.
func NewMux() *Mux {
	return &Mux{Mux: mux.New[genx.Transformer]("transformer", mux.Strict)}
}

// Transform implements genx.Transformer for Mux.
// It routes to the transformer registered for the given pattern. On a
// lookup failure input is left untouched.
func (m *Mux) Transform(ctx context.Context, pattern string, input genx.Stream) (genx.Stream, error) {
	t, err := m.Get(pattern)
	if err != nil {
		return nil, err
	}
	return t.Transform(ctx, pattern, input)
}

// isAudioMIME checks if a MIME type is audio
func isAudioMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/")
}

func audioBlob(chunk *genx.MessageChunk) (*genx.Blob, bool) {
	blob, ok := chunk.Part.(*genx.Blob)
	if !ok || blob == nil || !isAudioMIME(blob.MIMEType) {
		return nil, false
	}
	return blob, true
}

func isText(chunk *genx.MessageChunk) bool {
	_, ok := chunk.Part.(genx.Text)
	return ok
}
