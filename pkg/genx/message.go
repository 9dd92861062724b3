package genx

import (
	"context"
	"fmt"
	"slices"
)

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

var (
	_ Payload = (*Contents)(nil)
	_ Payload = (*ToolCall)(nil)
	_ Payload = (*ToolResult)(nil)

	_ Part = (*Blob)(nil)
	_ Part = (*Text)(nil)
)

// MessageChunk is one atomic unit of streamed data. A chunk with a nil Part
// and a non-nil Ctrl is a pure control chunk. A chunk may carry a Part and a
// Ctrl together, marking a logical boundary without ending the Stream.
//
// Chunks are immutable once produced; use Clone before modifying one that
// came out of a Stream.
type MessageChunk struct {
	Role     Role
	Name     string
	Part     Part
	ToolCall *ToolCall
	Ctrl     *StreamCtrl
}

func (c *MessageChunk) Clone() *MessageChunk {
	if c == nil {
		return nil
	}
	chk := &MessageChunk{
		Role: c.Role,
		Name: c.Name,
	}
	if c.Part != nil {
		chk.Part = c.Part.clone()
	}
	if c.ToolCall != nil {
		t := *c.ToolCall
		if t.FuncCall != nil {
			fc := *t.FuncCall
			t.FuncCall = &fc
		}
		chk.ToolCall = &t
	}
	if c.Ctrl != nil {
		ctrl := *c.Ctrl
		chk.Ctrl = &ctrl
	}
	return chk
}

// MIMEType reports the MIME type of the chunk's Part: "text/plain" for Text,
// the blob's type for Blob, and "" when there is no Part.
func (c *MessageChunk) MIMEType() string {
	if c == nil {
		return ""
	}
	switch p := c.Part.(type) {
	case Text:
		return "text/plain"
	case *Blob:
		if p != nil {
			return p.MIMEType
		}
	}
	return ""
}

type Message struct {
	Role    Role
	Name    string
	Payload Payload
}

type Role string

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleSystem, RoleTool:
		return true
	}
	return false
}

type Payload interface {
	isPayload()
}

type FuncCall struct {
	Name      string
	Arguments string

	tool *FuncTool
}

func (f *FuncCall) Invoke(ctx context.Context) (any, error) {
	if f.tool == nil {
		return nil, fmt.Errorf("genx: tool not found: name=%s", f.Name)
	}
	if f.tool.Invoke == nil {
		return nil, fmt.Errorf("genx: invoke function not set: name=%s", f.Name)
	}
	return f.tool.Invoke(ctx, f, f.Arguments)
}

// Tool returns the FuncTool this call was resolved against, or nil.
func (f *FuncCall) Tool() *FuncTool {
	return f.tool
}

type ToolCall struct {
	ID       string
	FuncCall *FuncCall
}

func (*ToolCall) isPayload() {}

func (tool *ToolCall) Invoke(ctx context.Context) (any, error) {
	if tool.FuncCall == nil {
		return nil, fmt.Errorf("genx: invoke can only be called on function call: id=%s", tool.ID)
	}
	return tool.FuncCall.Invoke(ctx)
}

type ToolResult struct {
	ID     string
	Result string
}

func (*ToolResult) isPayload() {}

type Contents []Part

func (Contents) isPayload() {}

type Part interface {
	isPart()
	clone() Part
}

type Blob struct {
	MIMEType string
	Data     []byte
}

func (b *Blob) clone() Part {
	if b == nil {
		return (*Blob)(nil)
	}
	return &Blob{
		MIMEType: b.MIMEType,
		Data:     slices.Clone(b.Data),
	}
}

func (*Blob) isPart() {}

type Text string

func (t Text) clone() Part {
	return t
}

func (Text) isPart() {}
