package opus

import (
	"io"
	"testing"
	"time"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/input"
	"github.com/pion/rtp"
)

type mockStampedReader struct {
	frames [][]byte
	closed bool
}

func (m *mockStampedReader) ReadStamped() ([]byte, error) {
	if len(m.frames) == 0 {
		return nil, io.EOF
	}
	b := m.frames[0]
	m.frames = m.frames[1:]
	return b, nil
}

func (m *mockStampedReader) Close() error {
	m.closed = true
	return nil
}

func collect(t *testing.T, s genx.Stream) []*genx.MessageChunk {
	t.Helper()
	var chunks []*genx.MessageChunk
	for {
		c, err := s.Next()
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		chunks = append(chunks, c)
	}
}

func TestFromStampedReader(t *testing.T) {
	voice := Frame{toc(31, 0, false), 0x01, 0x02}
	r := &mockStampedReader{frames: [][]byte{
		MakeStamped(voice, 1060),
		MakeStamped(voice, 1000),
		{0x01, 0x02},
		MakeStamped(voice, 1020),
	}}
	s := FromStampedReader(r, input.RealtimeConfig{MinReady: 3, Name: "mic"})

	chunks := collect(t, s)
	// 1000, 1020, silence at 1040, 1060
	wantStamps := []int64{1000, 1020, 1040, 1060}
	if len(chunks) != len(wantStamps) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantStamps))
	}
	for i, c := range chunks {
		if c.Ctrl.Timestamp != wantStamps[i] {
			t.Errorf("chunk %d stamp = %d, want %d", i, c.Ctrl.Timestamp, wantStamps[i])
		}
		if c.MIMEType() != MIMEType || c.Name != "mic" {
			t.Errorf("chunk %d = %s %s", i, c.MIMEType(), c.Name)
		}
	}
	if got := chunks[2].Part.(*genx.Blob).Data; string(got) != string(Silence20ms) {
		t.Errorf("gap chunk = %x, want silence", got)
	}

	st := s.Stats()
	if st.InvalidFrames != 1 || st.InsertedSilence != 20*time.Millisecond || st.Emitted != 3 {
		t.Errorf("Stats() = %+v", st)
	}
	s.Close()
	if !r.closed {
		t.Error("reader not closed")
	}
}

func TestFromStampedReader_CustomSilence(t *testing.T) {
	voice := Frame{toc(31, 0, false)}
	r := &mockStampedReader{frames: [][]byte{MakeStamped(voice, 0), MakeStamped(voice, 40)}}
	s := FromStampedReader(r, input.RealtimeConfig{
		MinReady: 2,
		Silence: func(time.Duration) ([]byte, time.Duration) {
			return nil, 0
		},
	})
	defer s.Close()

	if n := len(collect(t, s)); n != 2 {
		t.Errorf("got %d chunks, want 2", n)
	}
}

type datagrams [][]byte

func (d *datagrams) Read(p []byte) (int, error) {
	if len(*d) == 0 {
		return 0, io.EOF
	}
	n := copy(p, (*d)[0])
	*d = (*d)[1:]
	return n, nil
}

func TestFromRTP(t *testing.T) {
	var src datagrams
	for i, payload := range []Frame{
		{toc(31, 0, false)},      // 20ms
		{toc(31, 1, false), 0},   // 2x20ms
		{toc(31, 0, false), 0x1}, // 20ms
	} {
		b, err := rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(i), Timestamp: []uint32{0, 960, 2880}[i]},
			Payload: payload,
		}.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		src = append(src, b)
	}
	s := FromRTP(&src, input.RealtimeConfig{MinReady: 3}, input.WithRTPEpoch(100))
	defer s.Close()

	var stamps []int64
	for _, c := range collect(t, s) {
		stamps = append(stamps, c.Ctrl.Timestamp)
	}
	want := []int64{100, 120, 160}
	if len(stamps) != len(want) {
		t.Fatalf("stamps = %v, want %v", stamps, want)
	}
	for i := range want {
		if stamps[i] != want[i] {
			t.Errorf("stamps = %v, want %v", stamps, want)
			break
		}
	}
	if st := s.Stats(); st.InsertedSilence != 0 {
		t.Errorf("InsertedSilence = %v", st.InsertedSilence)
	}
}
