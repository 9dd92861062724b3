// Package transformers provides stream transformers for audio and text processing.
//
// # Overview
//
// This package implements genx.Transformer for the pipeline stages:
//   - TTS (Text-to-Speech): Text chunks → Audio chunks
//   - ASR (Speech-to-Text): Audio chunks → Text chunks
//   - Realtime: Bidirectional audio and text through a realtime session
//   - Map: per-chunk rewrites
//
// Vendor clients are not part of this package. They plug in through small
// interfaces: Transcriber for ASR, Synthesizer for TTS and Dialer for
// Realtime. WSDialer is a Dialer for backends speaking the wire package's
// frame format over WebSocket.
//
// # Usage
//
// Register transformers with patterns:
//
//	transformers.Handle("tts/cancan", transformers.NewTTS(synth))
//	transformers.Handle("asr/zh", transformers.NewASR(transcriber))
//	transformers.Handle("realtime/echo", transformers.NewRealtime(
//	    transformers.NewWSDialer("ws://localhost:8080/realtime", nil),
//	    transformers.WithRealtimeJitter(5),
//	))
//
// Transform streams:
//
//	output, err := transformers.Transform(ctx, "tts/cancan", textStream)
package transformers
