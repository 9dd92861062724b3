package transformers

import (
	"context"

	"github.com/haivivi/genxstream/pkg/genx"
)

// MapFunc rewrites one chunk. Returning a nil chunk drops it; returning an
// error ends the output with that error.
type MapFunc func(chunk *genx.MessageChunk) (*genx.MessageChunk, error)

// Map returns a transformer applying fn to every chunk in order. fn receives
// a clone and may modify it.
func Map(fn MapFunc) genx.Transformer {
	return genx.TransformerFunc(func(_ context.Context, _ string, input genx.Stream) (genx.Stream, error) {
		return genx.Go(input, 16, func(ctx context.Context, input genx.Stream, out *genx.PipeWriter) error {
			for {
				chunk, err := input.Next()
				if err != nil {
					if genx.IsEOF(err) {
						return nil
					}
					return err
				}
				mapped, err := fn(chunk.Clone())
				if err != nil {
					return err
				}
				if mapped == nil {
					continue
				}
				if err := out.Send(mapped); err != nil {
					return nil
				}
			}
		}), nil
	})
}

// SetRole returns a transformer that sets the role of every chunk, e.g. to
// present a replayed recording as model output.
func SetRole(role genx.Role) genx.Transformer {
	return Map(func(chunk *genx.MessageChunk) (*genx.MessageChunk, error) {
		chunk.Role = role
		return chunk, nil
	})
}
