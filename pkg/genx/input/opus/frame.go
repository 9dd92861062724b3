package opus

import (
	"encoding/binary"
	"fmt"
	"slices"
	"time"

	"github.com/haivivi/genxstream/pkg/genx/input"
)

// MIMEType is the MIME type of chunks carrying Opus packets.
const MIMEType = "audio/opus"

// Frame is a raw Opus packet: a TOC byte followed by one or more coded
// frames. Only the TOC is inspected; the audio is never decoded.
type Frame []byte

// frameDurations is indexed by the 5-bit configuration number of the TOC.
var frameDurations = [32]time.Duration{
	// SILK NB, MB, WB
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	// Hybrid SWB, FB
	10 * time.Millisecond, 20 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond,
	// CELT NB, WB, SWB, FB
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
}

// Config returns the configuration number (0-31) of the TOC byte.
func (f Frame) Config() int {
	if len(f) == 0 {
		return 0
	}
	return int(f[0] >> 3)
}

// IsStereo returns true if this frame is stereo.
func (f Frame) IsStereo() bool {
	return len(f) > 0 && f[0]&0b100 != 0
}

// FrameCount returns the number of coded frames in the packet, or 0 if the
// packet is truncated.
func (f Frame) FrameCount() int {
	if len(f) == 0 {
		return 0
	}
	switch f[0] & 0b11 {
	case 0:
		return 1
	case 1, 2:
		return 2
	default:
		if len(f) < 2 {
			return 0
		}
		return int(f[1] & 0b00111111)
	}
}

// Duration returns the duration of this packet based on its TOC byte.
func (f Frame) Duration() time.Duration {
	return frameDurations[f.Config()] * time.Duration(f.FrameCount())
}

// Clone returns a copy of this frame.
func (f Frame) Clone() Frame {
	return slices.Clone(f)
}

// FrameDuration returns the duration of an Opus packet. It fits
// input.WithRTPFrameDuration.
func FrameDuration(payload []byte) time.Duration {
	return Frame(payload).Duration()
}

// Silence20ms is a 20ms mono fullband CELT packet that decodes to silence.
var Silence20ms = Frame{0xf8, 0xff, 0xfe}

// Silence fills gaps of a stamped stream with Silence20ms packets. It fits
// input.RealtimeConfig.Silence.
func Silence(time.Duration) ([]byte, time.Duration) {
	return Silence20ms, 20 * time.Millisecond
}

// Wire format constants
const (
	// FrameVersion is the current stamped frame format version.
	FrameVersion = 1

	// StampedHeaderSize is the size of the stamped frame header (8 bytes).
	StampedHeaderSize = 8
)

// ParseStamped decodes stamped wire data into a frame. The data is not
// copied.
//
// Wire format:
//
//	[Version(1B) | Timestamp(7B big-endian ms) | OpusFrameData(N)]
func ParseStamped(b []byte) (input.StampedFrame, error) {
	if len(b) <= StampedHeaderSize {
		return input.StampedFrame{}, fmt.Errorf("%w: opus: stamped frame of %d bytes", input.ErrInvalidFrame, len(b))
	}
	if b[0] != FrameVersion {
		return input.StampedFrame{}, fmt.Errorf("%w: opus: stamped frame version %d", input.ErrInvalidFrame, b[0])
	}
	var buf [8]byte
	copy(buf[1:], b[1:StampedHeaderSize])
	frame := Frame(b[StampedHeaderSize:])
	return input.StampedFrame{
		Stamp:    int64(binary.BigEndian.Uint64(buf[:])),
		Duration: frame.Duration(),
		MIMEType: MIMEType,
		Data:     frame,
	}, nil
}

// MakeStamped creates stamped wire data from a frame and timestamp.
func MakeStamped(frame Frame, stamp int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(stamp))
	buf[0] = FrameVersion
	return append(buf[:], frame...)
}
