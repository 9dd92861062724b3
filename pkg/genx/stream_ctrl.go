package genx

// StreamCtrl carries out-of-band markers alongside a chunk.
//
// BeginOfStream opens a logical sub-stream identified by StreamID. EndOfStream
// closes one; the chunk's Part (usually empty) names the MIME type of the
// sub-stream being closed, so downstream stages know which kind of data ended.
// Label is free-form and consumed by analytics; the pipeline never interprets
// it. Timestamp is in epoch milliseconds when set.
type StreamCtrl struct {
	StreamID      string `json:"stream_id,omitempty"`
	Label         string `json:"label,omitempty"`
	BeginOfStream bool   `json:"begin_of_stream,omitempty"`
	EndOfStream   bool   `json:"end_of_stream,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// NewBeginOfStream returns a control-only chunk opening sub-stream streamID.
func NewBeginOfStream(streamID string) *MessageChunk {
	return &MessageChunk{
		Ctrl: &StreamCtrl{StreamID: streamID, BeginOfStream: true},
	}
}

// NewEndOfStream returns an EOS chunk for a blob sub-stream of mimeType.
func NewEndOfStream(mimeType string) *MessageChunk {
	return &MessageChunk{
		Part: &Blob{MIMEType: mimeType},
		Ctrl: &StreamCtrl{EndOfStream: true},
	}
}

// NewTextEndOfStream returns an EOS chunk for a text sub-stream.
func NewTextEndOfStream() *MessageChunk {
	return &MessageChunk{
		Part: Text(""),
		Ctrl: &StreamCtrl{EndOfStream: true},
	}
}

func (c *MessageChunk) IsBeginOfStream() bool {
	return c != nil && c.Ctrl != nil && c.Ctrl.BeginOfStream
}

func (c *MessageChunk) IsEndOfStream() bool {
	return c != nil && c.Ctrl != nil && c.Ctrl.EndOfStream
}
