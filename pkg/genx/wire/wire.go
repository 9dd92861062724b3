// Package wire encodes genx chunks and stream terminals as msgpack frames.
//
// The format carries a Stream across a process boundary: recordings on disk,
// WebSocket bridges to realtime backends, debug dumps. A recorded stream is a
// sequence of frames ending with one End frame; a stream cut short has no End
// frame and replays as an unexpected EOF.
package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/genxstream/pkg/genx"
)

// ErrMalformed is returned for frames that decode but make no sense, such as
// an unknown part kind.
var ErrMalformed = errors.New("wire: malformed frame")

// Part kinds.
const (
	KindText = "text"
	KindBlob = "blob"
)

// Frame is one unit on the wire: a chunk, or the End of a stream.
type Frame struct {
	Role     string    `msgpack:"r,omitempty"`
	Name     string    `msgpack:"n,omitempty"`
	Kind     string    `msgpack:"k,omitempty"`
	Text     string    `msgpack:"t,omitempty"`
	MIMEType string    `msgpack:"m,omitempty"`
	Data     []byte    `msgpack:"d,omitempty"`
	ToolCall *ToolCall `msgpack:"tc,omitempty"`
	Ctrl     *Ctrl     `msgpack:"c,omitempty"`
	End      *End      `msgpack:"e,omitempty"`
}

type ToolCall struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	Arguments string `msgpack:"args"`
}

type Ctrl struct {
	StreamID      string `msgpack:"sid,omitempty"`
	Label         string `msgpack:"label,omitempty"`
	BeginOfStream bool   `msgpack:"bos,omitempty"`
	EndOfStream   bool   `msgpack:"eos,omitempty"`
	Timestamp     int64  `msgpack:"ts,omitempty"`
}

// End is the terminal frame of a stream.
type End struct {
	Status  string `msgpack:"status"`
	Error   string `msgpack:"error,omitempty"`
	Refusal string `msgpack:"refusal,omitempty"`

	PromptTokens    int64 `msgpack:"prompt,omitempty"`
	CachedTokens    int64 `msgpack:"cached,omitempty"`
	GeneratedTokens int64 `msgpack:"generated,omitempty"`
}

// FromChunk converts a chunk to its frame. Data is shared, not copied.
func FromChunk(c *genx.MessageChunk) *Frame {
	f := &Frame{Role: string(c.Role), Name: c.Name}
	switch p := c.Part.(type) {
	case genx.Text:
		f.Kind, f.Text = KindText, string(p)
	case *genx.Blob:
		if p != nil {
			f.Kind, f.MIMEType, f.Data = KindBlob, p.MIMEType, p.Data
		}
	}
	if tc := c.ToolCall; tc != nil {
		f.ToolCall = &ToolCall{ID: tc.ID}
		if tc.FuncCall != nil {
			f.ToolCall.Name, f.ToolCall.Arguments = tc.FuncCall.Name, tc.FuncCall.Arguments
		}
	}
	if ctrl := c.Ctrl; ctrl != nil {
		f.Ctrl = &Ctrl{
			StreamID:      ctrl.StreamID,
			Label:         ctrl.Label,
			BeginOfStream: ctrl.BeginOfStream,
			EndOfStream:   ctrl.EndOfStream,
			Timestamp:     ctrl.Timestamp,
		}
	}
	return f
}

// Chunk converts f back to a chunk. It fails for End frames.
func (f *Frame) Chunk() (*genx.MessageChunk, error) {
	if f.End != nil {
		return nil, fmt.Errorf("%w: end frame has no chunk", ErrMalformed)
	}
	c := &genx.MessageChunk{Role: genx.Role(f.Role), Name: f.Name}
	switch f.Kind {
	case "":
	case KindText:
		c.Part = genx.Text(f.Text)
	case KindBlob:
		c.Part = &genx.Blob{MIMEType: f.MIMEType, Data: f.Data}
	default:
		return nil, fmt.Errorf("%w: part kind %q", ErrMalformed, f.Kind)
	}
	if tc := f.ToolCall; tc != nil {
		c.ToolCall = &genx.ToolCall{ID: tc.ID, FuncCall: &genx.FuncCall{Name: tc.Name, Arguments: tc.Arguments}}
	}
	if ctrl := f.Ctrl; ctrl != nil {
		c.Ctrl = &genx.StreamCtrl{
			StreamID:      ctrl.StreamID,
			Label:         ctrl.Label,
			BeginOfStream: ctrl.BeginOfStream,
			EndOfStream:   ctrl.EndOfStream,
			Timestamp:     ctrl.Timestamp,
		}
	}
	return c, nil
}

// EndOf returns the End frame for a stream that finished with the terminal
// error err and result res.
func EndOf(res genx.StreamResult, err error) *Frame {
	end := &End{
		Status:          res.Status.String(),
		Refusal:         res.Refusal,
		PromptTokens:    res.Usage.PromptTokenCount,
		CachedTokens:    res.Usage.CachedContentTokenCount,
		GeneratedTokens: res.Usage.GeneratedTokenCount,
	}
	if err != nil && !genx.IsEOF(err) {
		end.Error = err.Error()
		if res.Status != genx.StatusBlocked {
			end.Status = genx.StatusError.String()
		}
	}
	return &Frame{End: end}
}

// Usage returns the token usage recorded in e.
func (e *End) Usage() genx.Usage {
	return genx.Usage{
		PromptTokenCount:        e.PromptTokens,
		CachedContentTokenCount: e.CachedTokens,
		GeneratedTokenCount:     e.GeneratedTokens,
	}
}

// Result returns the stream result recorded in e.
func (e *End) Result() genx.StreamResult {
	res := genx.StreamResult{Usage: e.Usage(), Refusal: e.Refusal}
	switch e.Status {
	case "done":
		res.Status = genx.StatusDone
	case "truncated":
		res.Status = genx.StatusTruncated
	case "blocked":
		res.Status = genx.StatusBlocked
	default:
		res.Status = genx.StatusError
	}
	return res
}

// Err returns the terminal error a replayed stream reports: nil for Done and
// Truncated, a *genx.State otherwise.
func (e *End) Err() error {
	switch res := e.Result(); res.Status {
	case genx.StatusDone, genx.StatusTruncated:
		return nil
	case genx.StatusBlocked:
		return genx.Blocked(res.Usage, res.Refusal)
	default:
		msg := e.Error
		if msg == "" {
			msg = "remote stream failed"
		}
		return genx.Error(res.Usage, errors.New(msg))
	}
}

// Marshal encodes f as a single msgpack value.
func Marshal(f *Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// Unmarshal decodes a frame produced by Marshal.
func Unmarshal(b []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("wire: unmarshal: %w", err)
	}
	return &f, nil
}

// Encoder writes frames to a byte stream.
type Encoder struct {
	enc *msgpack.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	return &Encoder{enc: enc}
}

func (e *Encoder) Encode(f *Frame) error {
	return e.enc.Encode(f)
}

// Decoder reads frames from a byte stream. Decode returns io.EOF at a clean
// end of input.
type Decoder struct {
	dec *msgpack.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(r)}
}

func (d *Decoder) Decode() (*Frame, error) {
	var f Frame
	if err := d.dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	return &f, nil
}
