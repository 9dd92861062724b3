package commands

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/genxstream/pkg/cli"
	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/input"
	"github.com/haivivi/genxstream/pkg/genx/input/opus"
)

var (
	jitterListen     string
	jitterDuration   time.Duration
	jitterBufferSize int
	jitterLateWindow time.Duration
	jitterMinReady   int
	jitterMaxLoss    time.Duration
)

var jitterCmd = &cobra.Command{
	Use:   "jitter [file]",
	Short: "Feed stamped Opus audio through the realtime jitter buffer",
	Long: `Read stamped Opus frames, reorder them through the realtime input
jitter buffer and report what came out: chunk count, audio duration,
inserted silence and dropped frames.

The file holds stamped frames, each preceded by its length as a 16-bit
big-endian integer. With --listen, RTP packets are read from a UDP socket
instead until --duration elapses.

Examples:
  genx jitter capture.bin --min-ready 5
  genx jitter --listen :5004 --duration 10s -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJitter,
}

type jitterReport struct {
	Chunks          int    `json:"chunks" yaml:"chunks"`
	Bytes           string `json:"bytes" yaml:"bytes"`
	Audio           string `json:"audio" yaml:"audio"`
	Emitted         uint64 `json:"emitted" yaml:"emitted"`
	DroppedLate     uint64 `json:"dropped_late" yaml:"dropped_late"`
	DroppedOverflow uint64 `json:"dropped_overflow" yaml:"dropped_overflow"`
	InvalidFrames   uint64 `json:"invalid_frames" yaml:"invalid_frames"`
	InsertedSilence string `json:"inserted_silence" yaml:"inserted_silence"`
	Resyncs         uint64 `json:"resyncs" yaml:"resyncs"`
}

func runJitter(cmd *cobra.Command, args []string) error {
	cfg := input.RealtimeConfig{
		JitterBufferSize: jitterBufferSize,
		LateWindow:       jitterLateWindow,
		MinReady:         jitterMinReady,
		MaxLoss:          jitterMaxLoss,
	}

	var stream *input.StampedStream
	switch {
	case jitterListen != "" && len(args) > 0:
		return errors.New("pass either a file or --listen, not both")
	case jitterListen != "":
		conn, err := listenUDP(cmd.Context(), jitterListen, jitterDuration)
		if err != nil {
			return err
		}
		stream = opus.FromRTP(conn, cfg)
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		stream = opus.FromStampedReader(&lengthPrefixed{r: bufio.NewReader(f), c: f}, cfg)
	default:
		return errors.New("no input (pass a file or --listen)")
	}
	defer stream.Close()

	var (
		rep   jitterReport
		bytes int64
		audio time.Duration
	)
	for {
		chunk, err := stream.Next()
		if err != nil {
			if !genx.IsEOF(err) {
				return err
			}
			break
		}
		if blob, ok := chunk.Part.(*genx.Blob); ok {
			rep.Chunks++
			bytes += int64(len(blob.Data))
			audio += opus.FrameDuration(blob.Data)
		}
	}

	stats := stream.Stats()
	rep.Bytes = cli.FormatBytes(bytes)
	rep.Audio = cli.FormatDuration(audio)
	rep.Emitted = stats.Emitted
	rep.DroppedLate = stats.DroppedLate
	rep.DroppedOverflow = stats.DroppedOverflow
	rep.InvalidFrames = stats.InvalidFrames
	rep.InsertedSilence = cli.FormatDuration(stats.InsertedSilence)
	rep.Resyncs = stats.Resyncs
	return output(cmd, rep)
}

// lengthPrefixed reads stamped frames that are each preceded by a 16-bit
// big-endian length.
type lengthPrefixed struct {
	r *bufio.Reader
	c io.Closer
}

func (l *lengthPrefixed) ReadStamped() ([]byte, error) {
	var n uint16
	if err := binary.Read(l.r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(l.r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

func (l *lengthPrefixed) Close() error {
	return l.c.Close()
}

// udpSource ends with io.EOF once the socket is closed by the timer or the
// command context.
type udpSource struct {
	*net.UDPConn
}

func (u udpSource) Read(p []byte) (int, error) {
	n, err := u.UDPConn.Read(p)
	if errors.Is(err, net.ErrClosed) {
		err = io.EOF
	}
	return n, err
}

func listenUDP(ctx context.Context, addr string, d time.Duration) (io.ReadCloser, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	context.AfterFunc(ctx, func() { conn.Close() })
	if d > 0 {
		time.AfterFunc(d, func() { conn.Close() })
	}
	return udpSource{conn}, nil
}

func init() {
	jitterCmd.Flags().StringVar(&jitterListen, "listen", "", "UDP address to read RTP packets from")
	jitterCmd.Flags().DurationVar(&jitterDuration, "duration", 10*time.Second, "how long to listen (0 = until interrupted)")
	jitterCmd.Flags().IntVar(&jitterBufferSize, "buffer", 0, "jitter buffer size in frames (default 100)")
	jitterCmd.Flags().DurationVar(&jitterLateWindow, "late-window", 0, "reorder window (default 100ms)")
	jitterCmd.Flags().IntVar(&jitterMinReady, "min-ready", 0, "frames buffered before the first is emitted (default 1)")
	jitterCmd.Flags().DurationVar(&jitterMaxLoss, "max-loss", 0, "largest gap filled with silence (default 5s)")

	rootCmd.AddCommand(jitterCmd)
}
