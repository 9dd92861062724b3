package input

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/genxstream/pkg/genx"
)

// ErrInvalidFrame is returned by a StampedReader for a frame it could not
// parse. The stamped stream skips such frames and counts them.
var ErrInvalidFrame = errors.New("input: invalid frame")

// StampedFrame is one frame of real-time media. Stamp is the capture time in
// epoch milliseconds.
type StampedFrame struct {
	Stamp    int64
	Duration time.Duration
	MIMEType string
	Data     []byte
}

func (f StampedFrame) Timestamp() int64 {
	return f.Stamp
}

// End returns the stamp just after the frame.
func (f StampedFrame) End() int64 {
	return f.Stamp + f.Duration.Milliseconds()
}

// StampedReader reads timestamped frames from a real-time source. Frames
// may arrive out of order. ReadStamped returns io.EOF when the source ends.
type StampedReader interface {
	ReadStamped() (StampedFrame, error)
}

// StampedReaderFunc adapts a function to StampedReader.
type StampedReaderFunc func() (StampedFrame, error)

func (f StampedReaderFunc) ReadStamped() (StampedFrame, error) { return f() }

// RealtimeConfig configures a stamped stream.
type RealtimeConfig struct {
	// Role is the message role (default: RoleUser).
	Role genx.Role

	// Name is the producer name.
	Name string

	// MaxLoss is the largest gap filled with silence (default: 5s). Larger
	// gaps are treated as a resync: the next frame follows directly.
	MaxLoss time.Duration

	// JitterBufferSize is the max number of frames held for reordering
	// (default: 100; values <= 0 select the default).
	JitterBufferSize int

	// LateWindow is how long a frame is held back waiting for earlier
	// frames, measured both in stream time and wall-clock time
	// (default: 100ms).
	LateWindow time.Duration

	// MinReady is the number of frames buffered before the first frame is
	// emitted (default: 1).
	MinReady int

	// Silence, if set, returns a silent frame and its duration for a gap of
	// the given length. Gaps up to MaxLoss are filled with as many copies of
	// the frame as fit.
	Silence func(gap time.Duration) (frame []byte, d time.Duration)
}

func (c *RealtimeConfig) setDefaults() {
	if c.Role == "" {
		c.Role = genx.RoleUser
	}
	if c.MaxLoss == 0 {
		c.MaxLoss = 5 * time.Second
	}
	if c.JitterBufferSize <= 0 {
		c.JitterBufferSize = 100
	}
	if c.LateWindow == 0 {
		c.LateWindow = 100 * time.Millisecond
	}
	if c.MinReady <= 0 {
		c.MinReady = 1
	}
	c.MinReady = min(c.MinReady, c.JitterBufferSize)
}

// StampedStats are the counters of a StampedStream.
type StampedStats struct {
	Emitted         uint64
	DroppedLate     uint64 // arrived after a later frame was emitted
	DroppedOverflow uint64 // evicted by the jitter buffer
	InvalidFrames   uint64
	InsertedSilence time.Duration
	Resyncs         uint64 // gaps larger than MaxLoss
}

var _ genx.Stream = (*StampedStream)(nil)

// StampedStream is a Stream over a StampedReader. Frames are reordered by
// stamp through a JitterBuffer and emitted as Blob chunks whose
// Ctrl.Timestamp is the frame stamp. Emission is driven by Next; there is no
// real-time pacing.
type StampedStream struct {
	cfg    RealtimeConfig
	reader StampedReader
	frames chan readResult
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error

	// owned by Next
	nextMu  sync.Mutex
	jitter  *JitterBuffer[int64, StampedFrame]
	newest  int64
	last    int64 // end of the last emitted frame
	started bool
	eof     bool
	readErr error
	pending []*genx.MessageChunk

	mu       sync.Mutex
	terminal error
	result   genx.StreamResult

	emitted         atomic.Uint64
	droppedLate     atomic.Uint64
	droppedOverflow atomic.Uint64
	invalid         atomic.Uint64
	silence         atomic.Int64
	resyncs         atomic.Uint64
}

type readResult struct {
	frame StampedFrame
	err   error
}

// NewStampedStream starts reading from reader. If reader is an io.Closer,
// closing the stream closes it.
func NewStampedStream(reader StampedReader, cfg RealtimeConfig) *StampedStream {
	cfg.setDefaults()
	s := &StampedStream{
		cfg:    cfg,
		reader: reader,
		frames: make(chan readResult, cfg.JitterBufferSize),
		done:   make(chan struct{}),
		jitter: NewJitterBuffer[int64, StampedFrame](cfg.JitterBufferSize),
	}
	go s.readLoop(reader)
	return s
}

func (s *StampedStream) readLoop(reader StampedReader) {
	for {
		f, err := reader.ReadStamped()
		if errors.Is(err, ErrInvalidFrame) {
			s.invalid.Add(1)
			continue
		}
		if err == nil {
			f.Data = slices.Clone(f.Data)
		}
		select {
		case s.frames <- readResult{frame: f, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Stats returns a snapshot of the stream's counters. It is safe to call
// concurrently with Next.
func (s *StampedStream) Stats() StampedStats {
	return StampedStats{
		Emitted:         s.emitted.Load(),
		DroppedLate:     s.droppedLate.Load(),
		DroppedOverflow: s.droppedOverflow.Load(),
		InvalidFrames:   s.invalid.Load(),
		InsertedSilence: time.Duration(s.silence.Load()),
		Resyncs:         s.resyncs.Load(),
	}
}

func (s *StampedStream) Next() (*genx.MessageChunk, error) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()

	if err := s.terminalErr(); err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, s.setTerminal(s.closeErr)
	default:
	}
	if len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		return c, nil
	}
	for {
		s.drain()
		if s.releasable() {
			return s.emit(), nil
		}
		if s.eof {
			err := io.EOF
			if s.readErr != nil {
				err = fmt.Errorf("input: read stamped frame: %w", s.readErr)
			}
			return nil, s.setTerminal(err)
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if s.started && s.jitter.Len() > 0 {
			timer = time.NewTimer(s.cfg.LateWindow)
			timeout = timer.C
		}
		select {
		case r := <-s.frames:
			s.accept(r)
		case <-timeout:
			return s.emit(), nil
		case <-s.done:
			return nil, s.setTerminal(s.closeErr)
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// drain moves every frame already read into the jitter buffer.
func (s *StampedStream) drain() {
	for !s.eof {
		select {
		case r := <-s.frames:
			s.accept(r)
		default:
			return
		}
	}
}

func (s *StampedStream) accept(r readResult) {
	if r.err != nil {
		s.eof = true
		if r.err != io.EOF {
			s.readErr = r.err
		}
		return
	}
	if s.started && r.frame.Stamp < s.last {
		s.droppedLate.Add(1)
		return
	}
	s.jitter.Push(r.frame)
	s.droppedOverflow.Store(s.jitter.Dropped())
	s.newest = max(s.newest, r.frame.Stamp)
}

// releasable reports whether the head of the jitter buffer may be emitted
// without waiting for stragglers.
func (s *StampedStream) releasable() bool {
	n := s.jitter.Len()
	if n == 0 {
		return false
	}
	if s.eof || n >= s.jitter.Cap() {
		return true
	}
	if !s.started {
		return n >= s.cfg.MinReady
	}
	head, _ := s.jitter.Peek()
	return s.newest-head.Stamp >= s.cfg.LateWindow.Milliseconds()
}

// emit pops the head frame, queueing it behind silence frames when there is
// a fillable gap before it.
func (s *StampedStream) emit() *genx.MessageChunk {
	f, _ := s.jitter.Pop()
	chunk := s.chunk(f.Stamp, f.MIMEType, f.Data)
	s.emitted.Add(1)

	if s.started {
		if gap := time.Duration(f.Stamp-s.last) * time.Millisecond; gap > 0 {
			switch {
			case gap > s.cfg.MaxLoss:
				s.resyncs.Add(1)
			case s.cfg.Silence != nil:
				if fill := s.fill(gap, f.MIMEType); len(fill) > 0 {
					s.pending = append(fill[1:], chunk)
					chunk = fill[0]
				}
			}
		}
	}
	s.started = true
	s.last = max(s.last, f.End())
	return chunk
}

func (s *StampedStream) fill(gap time.Duration, mime string) []*genx.MessageChunk {
	frame, d := s.cfg.Silence(gap)
	if d <= 0 {
		return nil
	}
	n := int(gap / d)
	chunks := make([]*genx.MessageChunk, 0, n)
	for i := range n {
		stamp := s.last + (time.Duration(i) * d).Milliseconds()
		chunks = append(chunks, s.chunk(stamp, mime, frame))
	}
	s.silence.Add(int64(time.Duration(n) * d))
	return chunks
}

func (s *StampedStream) chunk(stamp int64, mime string, data []byte) *genx.MessageChunk {
	return &genx.MessageChunk{
		Role: s.cfg.Role,
		Name: s.cfg.Name,
		Part: &genx.Blob{MIMEType: mime, Data: data},
		Ctrl: &genx.StreamCtrl{Timestamp: stamp},
	}
}

func (s *StampedStream) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

func (s *StampedStream) setTerminal(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal == nil {
		s.terminal, s.result = err, genx.ResultOf(err)
	}
	return s.terminal
}

func (s *StampedStream) Result() (genx.StreamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.terminal != nil
}

func (s *StampedStream) Close() error {
	return s.CloseWithError(genx.ErrStreamClosed)
}

// CloseWithError stops reading. A Next blocked waiting for frames returns
// err.
func (s *StampedStream) CloseWithError(err error) error {
	if err == nil {
		err = genx.ErrStreamClosed
	}
	var cerr error
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.done)
		if c, ok := s.reader.(io.Closer); ok {
			cerr = c.Close()
		}
	})
	return cerr
}
