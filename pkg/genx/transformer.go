package genx

import "context"

// Transformer turns one Stream into another.
//
// # Initialization
//
// Transform finishes any connection or handshake before it returns, using
// ctx for its deadline. An error from Transform means no Stream was created
// and input was not consumed. Once Transform succeeds, every later failure
// is reported by the returned Stream's Next, never by Transform.
//
// # Lifetime
//
// The output lives as long as input. When input reaches io.EOF or fails, the
// transformer flushes what it has buffered, emits it, then ends the output:
// with io.EOF for a clean end, with an error derived from input's error
// otherwise. An input that ends without producing anything yields an output
// whose first Next returns io.EOF.
//
// There is no separate cancel call. Closing input stops the transformer, and
// so does closing the output: the transformer then closes input and releases
// its resources. Most implementations get this for free from Go.
//
// # Chunks
//
// A transformer may rewrite any field of a chunk: Role (a realtime model
// answers user audio as model), Name, Part (ASR turns Blob into Text, TTS the
// reverse) and Ctrl. Chunks it does not handle are re-emitted unmodified and
// in order.
//
// A logical end of stream of the input kind is answered, after the pending
// output, with a logical end of stream of the output kind:
//
//	[Text ... Text EOS] -> TTS -> [Audio ... Audio EOS] -> ASR -> [Text ... Text EOS]
type Transformer interface {
	// Transform starts transforming input. pattern selects the model or
	// voice; implementations may ignore it.
	Transform(ctx context.Context, pattern string, input Stream) (Stream, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, pattern string, input Stream) (Stream, error)

func (fn TransformerFunc) Transform(ctx context.Context, pattern string, input Stream) (Stream, error) {
	return fn(ctx, pattern, input)
}
