package genx

import (
	"strings"
	"testing"
)

func TestMessageChunk_Clone(t *testing.T) {
	orig := &MessageChunk{
		Role:     RoleUser,
		Name:     "alice",
		Part:     &Blob{MIMEType: "audio/pcm", Data: []byte{1, 2}},
		ToolCall: &ToolCall{ID: "c1", FuncCall: &FuncCall{Name: "f", Arguments: "{}"}},
		Ctrl:     &StreamCtrl{StreamID: "s1", Timestamp: 42},
	}
	c := orig.Clone()
	c.Part.(*Blob).Data[0] = 9
	c.ToolCall.FuncCall.Name = "g"
	c.Ctrl.StreamID = "s2"

	if orig.Part.(*Blob).Data[0] != 1 {
		t.Error("Clone shares blob data")
	}
	if orig.ToolCall.FuncCall.Name != "f" {
		t.Error("Clone shares func call")
	}
	if orig.Ctrl.StreamID != "s1" {
		t.Error("Clone shares ctrl")
	}
	if c.Role != RoleUser || c.Name != "alice" {
		t.Errorf("Clone lost role/name: %s", InspectChunk(c))
	}
	if (*MessageChunk)(nil).Clone() != nil {
		t.Error("nil Clone is not nil")
	}
}

func TestMessageChunk_EndOfStream(t *testing.T) {
	eos := NewEndOfStream("audio/ogg")
	if !eos.IsEndOfStream() || eos.IsBeginOfStream() {
		t.Errorf("NewEndOfStream flags wrong: %s", InspectChunk(eos))
	}
	if eos.MIMEType() != "audio/ogg" {
		t.Errorf("MIMEType = %q", eos.MIMEType())
	}
	if got := NewTextEndOfStream().MIMEType(); got != "text/plain" {
		t.Errorf("text EOS MIMEType = %q", got)
	}

	bos := NewBeginOfStream("turn-1")
	if !bos.IsBeginOfStream() || bos.Ctrl.StreamID != "turn-1" || bos.Part != nil {
		t.Errorf("NewBeginOfStream = %s", InspectChunk(bos))
	}

	// Data and a boundary in one chunk.
	c := &MessageChunk{Part: Text("bye"), Ctrl: &StreamCtrl{EndOfStream: true}}
	if !c.IsEndOfStream() || c.MIMEType() != "text/plain" {
		t.Error("chunk with part and EOS misreported")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleModel, RoleSystem, RoleTool} {
		if !r.Valid() {
			t.Errorf("%s not valid", r)
		}
	}
	if Role("narrator").Valid() {
		t.Error("unknown role reported valid")
	}
}

func TestNewStreamID(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewStreamID()
		if len(id) != 22 {
			t.Fatalf("len(%q) = %d, want 22", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestInspectChunk(t *testing.T) {
	c := &MessageChunk{
		Role: RoleModel,
		Name: "bot",
		Part: Text("hi"),
		Ctrl: &StreamCtrl{EndOfStream: true, Label: "greeting"},
	}
	got := InspectChunk(c)
	for _, want := range []string{"model/bot", `"hi"`, "eos", "label=greeting"} {
		if !strings.Contains(got, want) {
			t.Errorf("InspectChunk = %q, missing %q", got, want)
		}
	}
}

func TestUsage_String(t *testing.T) {
	u := Usage{PromptTokenCount: 12, CachedContentTokenCount: 2, GeneratedTokenCount: 7}
	s := u.String()
	for _, want := range []string{"Usage:", "Prompt: 12", "Cached: 2", "Generated: 7"} {
		if !strings.Contains(s, want) {
			t.Errorf("Usage.String() = %q, missing %q", s, want)
		}
	}
	if sum := u.Add(u); sum.GeneratedTokenCount != 14 {
		t.Errorf("Add = %+v", sum)
	}
}
