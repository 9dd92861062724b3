package opus

import (
	"io"

	"github.com/haivivi/genxstream/pkg/genx/input"
)

// StampedOpusReader reads timestamped Opus frames from a real-time source.
// The returned bytes should be in the wire format:
//
//	[Version(1B) | Timestamp(7B big-endian ms) | OpusFrameData(N)]
type StampedOpusReader interface {
	ReadStamped() ([]byte, error)
}

// NewReader adapts a StampedOpusReader to input.StampedReader. Malformed
// wire data is reported as input.ErrInvalidFrame.
func NewReader(r StampedOpusReader) input.StampedReader {
	return &wireReader{r: r}
}

type wireReader struct {
	r StampedOpusReader
}

func (w *wireReader) ReadStamped() (input.StampedFrame, error) {
	b, err := w.r.ReadStamped()
	if err != nil {
		return input.StampedFrame{}, err
	}
	return ParseStamped(b)
}

func (w *wireReader) Close() error {
	if c, ok := w.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FromStampedReader creates a stream of "audio/opus" chunks from reader.
// Gaps are filled with Silence20ms unless cfg.Silence is set.
func FromStampedReader(reader StampedOpusReader, cfg input.RealtimeConfig) *input.StampedStream {
	return input.NewStampedStream(NewReader(reader), withSilence(cfg))
}

// FromRTP creates a stream of "audio/opus" chunks from RTP datagrams read
// from src. Frame durations come from each packet's TOC byte.
func FromRTP(src io.Reader, cfg input.RealtimeConfig, opts ...input.RTPOption) *input.StampedStream {
	opts = append([]input.RTPOption{input.WithRTPFrameDuration(FrameDuration)}, opts...)
	return input.NewStampedStream(input.NewRTPReader(src, 48000, MIMEType, opts...), withSilence(cfg))
}

func withSilence(cfg input.RealtimeConfig) input.RealtimeConfig {
	if cfg.Silence == nil {
		cfg.Silence = Silence
	}
	return cfg
}
