package input

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/pion/rtp"
)

// DefaultRTPFrameDuration is the frame duration assumed for RTP payloads
// when no duration function is configured.
const DefaultRTPFrameDuration = 20 * time.Millisecond

const maxDatagramSize = 1500

// RTPOption configures an RTPReader.
type RTPOption func(*RTPReader)

// WithRTPEpoch sets the stamp, in epoch milliseconds, of the first packet.
// The default is the wall-clock time the first packet is read.
func WithRTPEpoch(ms int64) RTPOption {
	return func(r *RTPReader) {
		r.epoch = ms
		r.epochSet = true
	}
}

// WithRTPFrameDuration sets the function computing a payload's duration.
func WithRTPFrameDuration(fn func(payload []byte) time.Duration) RTPOption {
	return func(r *RTPReader) {
		r.duration = fn
	}
}

// WithRTPPayloadType keeps only packets with the given payload type.
// Other packets are reported as invalid frames.
func WithRTPPayloadType(pt uint8) RTPOption {
	return func(r *RTPReader) {
		r.payloadType = int(pt)
	}
}

var _ StampedReader = (*RTPReader)(nil)

// RTPReader is a StampedReader over RTP datagrams. Each Read of src must
// return exactly one datagram, as a UDP connection does.
//
// RTP timestamps are 32-bit and wrap around. They are unwrapped relative to
// the previous packet and converted to epoch milliseconds using clockRate.
type RTPReader struct {
	src         io.Reader
	clockRate   int64
	mime        string
	duration    func([]byte) time.Duration
	payloadType int

	buf      []byte
	epoch    int64
	epochSet bool
	started  bool
	ssrc     uint32
	lastTS   uint32
	ticks    int64 // unwrapped ticks since the first packet
}

// NewRTPReader reads RTP datagrams from src. clockRate is the RTP clock of
// the payload format, e.g. 48000 for Opus. If src is an io.Closer, closing
// the reader closes it.
func NewRTPReader(src io.Reader, clockRate uint32, mime string, opts ...RTPOption) *RTPReader {
	if clockRate == 0 {
		clockRate = 48000
	}
	r := &RTPReader{
		src:         src,
		clockRate:   int64(clockRate),
		mime:        mime,
		payloadType: -1,
		buf:         make([]byte, maxDatagramSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RTPReader) ReadStamped() (StampedFrame, error) {
	n, err := r.src.Read(r.buf)
	if err != nil {
		return StampedFrame{}, err
	}
	var pkt rtp.Packet
	if err := pkt.Unmarshal(r.buf[:n]); err != nil {
		return StampedFrame{}, fmt.Errorf("%w: rtp: %w", ErrInvalidFrame, err)
	}
	if r.payloadType >= 0 && int(pkt.PayloadType) != r.payloadType {
		return StampedFrame{}, fmt.Errorf("%w: rtp: payload type %d", ErrInvalidFrame, pkt.PayloadType)
	}
	if len(pkt.Payload) == 0 {
		return StampedFrame{}, fmt.Errorf("%w: rtp: empty payload", ErrInvalidFrame)
	}
	return StampedFrame{
		Stamp:    r.stamp(pkt.SSRC, pkt.Timestamp),
		Duration: r.frameDuration(pkt.Payload),
		MIMEType: r.mime,
		Data:     slices.Clone(pkt.Payload),
	}, nil
}

// stamp unwraps ts against the previous packet. A new SSRC restarts the
// timeline at the current position.
func (r *RTPReader) stamp(ssrc, ts uint32) int64 {
	switch {
	case !r.started:
		if !r.epochSet {
			r.epoch = time.Now().UnixMilli()
		}
		r.started = true
	case ssrc != r.ssrc:
	default:
		r.ticks += int64(int32(ts - r.lastTS))
	}
	r.ssrc, r.lastTS = ssrc, ts
	return r.epoch + r.ticks*1000/r.clockRate
}

func (r *RTPReader) frameDuration(payload []byte) time.Duration {
	if r.duration == nil {
		return DefaultRTPFrameDuration
	}
	return r.duration(payload)
}

func (r *RTPReader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
