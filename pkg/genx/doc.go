// Package genx is the streaming core shared by every model, speech and
// realtime stage.
//
// # Chunks
//
// MessageChunk is the unit of data in a Stream:
//   - Role: who speaks (user, model, system, tool)
//   - Name: the producer, e.g. "alice" or a model name
//   - Part: Text, *Blob, or nil for a control-only chunk
//   - ToolCall: a function call requested by a model
//   - Ctrl: begin/end of a logical sub-stream, label, timestamp
//
// # Streams
//
// Stream is pull-based with a single consumer. io.EOF is physical end of
// stream and is never used for a sub-stream boundary; a chunk with
// Ctrl.EndOfStream set marks that instead, and more chunks may follow it.
//
// There is no cancel token. A consumer cancels by closing the Stream, and
// whatever produces it (a StreamBuilder, a Pipe, a Transformer loop started
// with Go) sees the close and stops.
//
// # Producers
//
//   - StreamBuilder: bounded buffer with any number of Streams, each with
//     its own cursor (fan-out)
//   - NewPipe and Go: a single-consumer channel and a background loop, the
//     shape of most Transformers
//   - Tee: pass a Stream through while mirroring it into a StreamBuilder
//
// # Subpackages
//
//   - genx/mux: the pattern router behind every registry below
//   - genx/generators: model backends (OpenAI, Gemini)
//   - genx/modelcontexts: named ModelContext providers
//   - genx/segmentors, genx/profilers: structured extraction over generators
//   - genx/transformers: ASR, TTS, realtime bridges
//   - genx/input: jitter buffer and realtime audio input
//   - genx/wire: msgpack encoding of chunks
//   - genx/modelloader: registers backends from config files
//
// A voice pipeline looks like:
//
//	RTP in -> input.StampedStream -> ASR -> generator -> TTS -> out
//	(user audio)                    (user text) (model text) (model audio)
package genx
