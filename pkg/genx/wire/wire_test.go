package wire

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/haivivi/genxstream/pkg/genx"
)

func sampleChunks() []*genx.MessageChunk {
	return []*genx.MessageChunk{
		genx.NewBeginOfStream("s1"),
		{Role: genx.RoleUser, Name: "mic", Part: &genx.Blob{MIMEType: "audio/opus", Data: []byte{0xf8, 0xff, 0xfe}}, Ctrl: &genx.StreamCtrl{Timestamp: 1700000000000}},
		{Role: genx.RoleModel, Part: genx.Text("hello")},
		{Role: genx.RoleModel, ToolCall: &genx.ToolCall{ID: "call_1", FuncCall: &genx.FuncCall{Name: "search", Arguments: `{"q":"cats"}`}}},
		genx.NewTextEndOfStream(),
		genx.NewEndOfStream("audio/opus"),
	}
}

func readAll(t *testing.T, s genx.Stream) ([]*genx.MessageChunk, error) {
	t.Helper()
	var out []*genx.MessageChunk
	for {
		c, err := s.Next()
		if err != nil {
			if genx.IsEOF(err) {
				return out, nil
			}
			return out, err
		}
		out = append(out, c)
	}
}

func TestFrame_ChunkRoundTrip(t *testing.T) {
	for i, c := range sampleChunks() {
		b, err := Marshal(FromChunk(c))
		if err != nil {
			t.Fatalf("chunk %d: Marshal() error = %v", i, err)
		}
		f, err := Unmarshal(b)
		if err != nil {
			t.Fatalf("chunk %d: Unmarshal() error = %v", i, err)
		}
		got, err := f.Chunk()
		if err != nil {
			t.Fatalf("chunk %d: Chunk() error = %v", i, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Errorf("chunk %d = %+v, want %+v", i, got, c)
		}
	}
}

func TestFrame_EmptyTextEOSKeepsKind(t *testing.T) {
	f := FromChunk(genx.NewTextEndOfStream())
	if f.Kind != KindText {
		t.Fatalf("Kind = %q", f.Kind)
	}
	c, _ := f.Chunk()
	if c.MIMEType() != "text/plain" || !c.IsEndOfStream() {
		t.Errorf("chunk = %+v", c)
	}
}

func TestFrame_Malformed(t *testing.T) {
	if _, err := (&Frame{Kind: "video"}).Chunk(); !errors.Is(err, ErrMalformed) {
		t.Errorf("unknown kind error = %v", err)
	}
	if _, err := EndOf(genx.StreamResult{Status: genx.StatusDone}, io.EOF).Chunk(); !errors.Is(err, ErrMalformed) {
		t.Errorf("end frame error = %v", err)
	}
	if _, err := Unmarshal([]byte{0xc1}); err == nil {
		t.Error("Unmarshal(garbage) succeeded")
	}
}

func TestEnd(t *testing.T) {
	usage := genx.Usage{PromptTokenCount: 10, CachedContentTokenCount: 2, GeneratedTokenCount: 5}
	tests := []struct {
		name   string
		res    genx.StreamResult
		err    error
		status genx.Status
		isErr  error
	}{
		{name: "done", res: genx.StreamResult{Usage: usage, Status: genx.StatusDone}, err: io.EOF, status: genx.StatusDone},
		{name: "truncated", res: genx.StreamResult{Usage: usage, Status: genx.StatusTruncated}, err: io.EOF, status: genx.StatusTruncated},
		{name: "blocked", res: genx.StreamResult{Usage: usage, Status: genx.StatusBlocked, Refusal: "no"}, err: genx.Blocked(usage, "no"), status: genx.StatusBlocked, isErr: genx.ErrBlocked},
		{name: "error", res: genx.StreamResult{Status: genx.StatusError}, err: errors.New("boom"), status: genx.StatusError},
		{name: "closed", err: genx.ErrStreamClosed, status: genx.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := EndOf(tt.res, tt.err).End
			res := end.Result()
			if res.Status != tt.status {
				t.Errorf("Status = %v, want %v", res.Status, tt.status)
			}
			if res.Usage != tt.res.Usage || res.Refusal != tt.res.Refusal {
				t.Errorf("Result() = %+v, want %+v", res, tt.res)
			}
			err := end.Err()
			switch tt.status {
			case genx.StatusDone, genx.StatusTruncated:
				if err != nil {
					t.Errorf("Err() = %v", err)
				}
			default:
				var st *genx.State
				if !errors.As(err, &st) || st.Status() != tt.status {
					t.Errorf("Err() = %v, want *genx.State with %v", err, tt.status)
				}
				if tt.isErr != nil && !errors.Is(err, tt.isErr) {
					t.Errorf("Err() = %v, want %v", err, tt.isErr)
				}
			}
		})
	}
}

func TestRecordReplay(t *testing.T) {
	usage := genx.Usage{PromptTokenCount: 3, GeneratedTokenCount: 7}
	sb := genx.NewStreamBuilder(nil, 32)
	src := sb.Stream()
	if err := sb.Add(sampleChunks()...); err != nil {
		t.Fatal(err)
	}
	if err := sb.Done(usage); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	rec := Record(&buf, src)
	got, err := readAll(t, rec)
	if err != nil {
		t.Fatalf("record error = %v", err)
	}
	if len(got) != len(sampleChunks()) {
		t.Fatalf("recorded %d chunks", len(got))
	}

	replayed := Replay(bytes.NewReader(buf.Bytes()))
	chunks, err := readAll(t, replayed)
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if !reflect.DeepEqual(chunks, sampleChunks()) {
		t.Errorf("replayed = %+v", chunks)
	}
	res, ok := replayed.Result()
	if !ok || res.Status != genx.StatusDone || res.Usage != usage {
		t.Errorf("Result() = %+v, %v", res, ok)
	}
}

func TestReplay_Blocked(t *testing.T) {
	sb := genx.NewStreamBuilder(nil, 8)
	src := sb.Stream()
	sb.Add(&genx.MessageChunk{Role: genx.RoleModel, Part: genx.Text("partial")})
	sb.Blocked(genx.Usage{GeneratedTokenCount: 1}, "policy")

	var buf bytes.Buffer
	if _, err := readAll(t, Record(&buf, src)); !errors.Is(err, genx.ErrBlocked) {
		t.Fatalf("record error = %v", err)
	}
	chunks, err := readAll(t, Replay(&buf))
	if len(chunks) != 1 || !errors.Is(err, genx.ErrBlocked) {
		t.Fatalf("replay = %d chunks, %v", len(chunks), err)
	}
}

func TestReplay_Truncated(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Encode(FromChunk(&genx.MessageChunk{Part: genx.Text("a")})); err != nil {
		t.Fatal(err)
	}
	chunks, err := readAll(t, Replay(&buf))
	if len(chunks) != 1 || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("replay = %d chunks, %v", len(chunks), err)
	}
}

type failWriter struct{ n int }

func (w *failWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("disk full")
	}
	w.n--
	return len(p), nil
}

func TestRecord_WriteError(t *testing.T) {
	sb := genx.NewStreamBuilder(nil, 8)
	src := sb.Stream()
	sb.Add(&genx.MessageChunk{Part: genx.Text("a")}, &genx.MessageChunk{Part: genx.Text("b")})
	sb.Done(genx.Usage{})

	rec := Record(&failWriter{}, src)
	if _, err := rec.Next(); err == nil {
		t.Fatal("Next() succeeded on failing writer")
	}
	res, ok := rec.Result()
	if !ok || res.Status != genx.StatusError {
		t.Errorf("Result() = %+v, %v", res, ok)
	}
}
