package segmentors

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/generators"
	"github.com/haivivi/genxstream/pkg/genx/mux"
)

// mockGenerator captures the ModelContext and answers Invoke with canned
// arguments.
type mockGenerator struct {
	capturedMCtx genx.ModelContext
	capturedTool *genx.FuncTool

	response string
	err      error
}

func (m *mockGenerator) GenerateStream(context.Context, string, genx.ModelContext) (genx.Stream, error) {
	return nil, errors.New("not supported")
}

func (m *mockGenerator) Invoke(_ context.Context, _ string, mctx genx.ModelContext, tool *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	m.capturedMCtx = mctx
	m.capturedTool = tool
	if m.err != nil {
		return genx.Usage{}, nil, m.err
	}
	return genx.Usage{PromptTokenCount: 100, GeneratedTokenCount: 20}, tool.NewFuncCall(m.response), nil
}

func newTestGeneratorMux(t *testing.T, pattern string, gen genx.Generator) *generators.Mux {
	t.Helper()
	m := generators.NewMux()
	if err := m.Handle(pattern, gen); err != nil {
		t.Fatal(err)
	}
	return m
}

func validExtractJSON() string {
	arg := extractArg{
		Segment: SegmentOutput{
			Summary:  "Tom and his dad talked about dinosaurs; Tom likes the T-Rex best.",
			Keywords: []string{"dinosaurs", "T-Rex", "Tom"},
			Labels:   []string{"person:Tom", "person:Dad", "topic:dinosaurs"},
		},
		Entities: []extractEntity{
			{Label: "person:Tom", Attrs: []extractAttr{{Key: "age", Value: "5"}, {Key: "favorite_dinosaur", Value: "T-Rex"}}},
			{Label: "person:Dad"},
			{Label: "topic:dinosaurs", Attrs: []extractAttr{{Key: "category", Value: "paleontology"}}},
		},
		Relations: []RelationOutput{
			{From: "person:Tom", To: "topic:dinosaurs", RelType: "likes"},
			{From: "person:Dad", To: "person:Tom", RelType: "parent"},
		},
	}
	b, _ := json.Marshal(arg)
	return string(b)
}

func promptAndConversation(t *testing.T, mctx genx.ModelContext) (prompt, conversation string) {
	t.Helper()
	for p := range mctx.Prompts() {
		prompt += p.Text
	}
	for msg := range mctx.Messages() {
		for _, part := range msg.Payload.(genx.Contents) {
			if txt, ok := part.(genx.Text); ok {
				conversation += string(txt)
			}
		}
	}
	return prompt, conversation
}

func TestGenX_Process(t *testing.T) {
	mock := &mockGenerator{response: validExtractJSON()}
	seg := NewGenXWithMux(Config{Generator: "test/model"}, newTestGeneratorMux(t, "test/model", mock))

	result, err := seg.Process(context.Background(), Input{
		Messages: []string{"user: Tom talked about dinosaurs with his dad", "model: Tom says the T-Rex is his favorite"},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(result.Segment.Keywords) != 3 || len(result.Segment.Labels) != 3 {
		t.Errorf("segment = %+v", result.Segment)
	}
	if len(result.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(result.Entities))
	}
	if got := result.Entities[0].Attrs["favorite_dinosaur"]; got != "T-Rex" {
		t.Errorf("favorite_dinosaur = %v", got)
	}
	if result.Entities[1].Attrs != nil {
		t.Errorf("entity without attrs got %v", result.Entities[1].Attrs)
	}
	if len(result.Relations) != 2 {
		t.Errorf("expected 2 relations, got %d", len(result.Relations))
	}
	if result.Usage.PromptTokenCount != 100 {
		t.Errorf("Usage = %+v", result.Usage)
	}
	if mock.capturedTool != extractTool {
		t.Error("Invoke called with a different tool")
	}
}

func TestGenX_PromptContainsMessages(t *testing.T) {
	mock := &mockGenerator{response: validExtractJSON()}
	seg := NewGenXWithMux(Config{Generator: "test/model"}, newTestGeneratorMux(t, "test/model", mock))

	msgs := []string{"user: hello there", "model: hi, how can I help?"}
	if _, err := seg.Process(context.Background(), Input{Messages: msgs}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	prompt, conv := promptAndConversation(t, mock.capturedMCtx)
	if !strings.Contains(prompt, "conversation segmentor") {
		t.Error("prompt missing base instructions")
	}
	if strings.Contains(prompt, "Entity Schema Hint") {
		t.Error("prompt has a schema hint without schema")
	}
	if conv != strings.Join(msgs, "\n") {
		t.Errorf("conversation = %q", conv)
	}
	var tools int
	for range mock.capturedMCtx.Tools() {
		tools++
	}
	if tools != 1 {
		t.Errorf("got %d tools, want 1", tools)
	}
}

func TestGenX_SchemaHint(t *testing.T) {
	mock := &mockGenerator{response: validExtractJSON()}
	seg := NewGenXWithMux(Config{Generator: "test/model"}, newTestGeneratorMux(t, "test/model", mock))

	schema := &Schema{EntityTypes: map[string]EntitySchema{
		"topic":  {Desc: "A discussed topic"},
		"person": {Desc: "A human being", Attrs: map[string]AttrDef{"age": {Type: "int", Desc: "Age in years"}}},
	}}
	if _, err := seg.Process(context.Background(), Input{Messages: []string{"user: hi"}, Schema: schema}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	prompt, _ := promptAndConversation(t, mock.capturedMCtx)
	for _, want := range []string{"Entity Schema Hint", "### person", "`age` (int): Age in years", "### topic"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Index(prompt, "### person") > strings.Index(prompt, "### topic") {
		t.Error("entity types not sorted")
	}
}

func TestGenX_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		input    Input
		want     error
	}{
		{name: "invoke", err: errors.New("rate limited"), input: Input{Messages: []string{"a"}}},
		{name: "garbage", response: "not json at all", input: Input{Messages: []string{"a"}}, want: ErrMalformedOutput},
		{name: "no messages", response: validExtractJSON()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockGenerator{response: tt.response, err: tt.err}
			seg := NewGenXWithMux(Config{Generator: "test/model"}, newTestGeneratorMux(t, "test/model", mock))
			_, err := seg.Process(context.Background(), tt.input)
			if err == nil {
				t.Fatal("Process() succeeded")
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want wrapping %v", err, tt.err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseResult_Repair(t *testing.T) {
	// Trailing comma and a missing closing brace.
	args := `{"segment": {"summary": "s", "keywords": [], "labels": ["topic:x"]}, "entities": [{"label": "topic:x", "attrs": []},], "relations": []`
	res, err := parseResult(&genx.FuncCall{Name: "extract", Arguments: args})
	if err != nil {
		t.Fatalf("parseResult() error = %v", err)
	}
	if len(res.Entities) != 1 || res.Entities[0].Label != "topic:x" {
		t.Errorf("entities = %+v", res.Entities)
	}
}

func TestParseResult_NilCall(t *testing.T) {
	if _, err := parseResult(nil); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("parseResult(nil) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Result {
		return &Result{
			Segment:   SegmentOutput{Summary: "s", Labels: []string{"person:a"}},
			Entities:  []EntityOutput{{Label: "person:a"}, {Label: "topic:b"}},
			Relations: []RelationOutput{{From: "person:a", To: "topic:b", RelType: "likes"}},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Result)
		ok     bool
	}{
		{"valid", func(*Result) {}, true},
		{"no entities", func(r *Result) { r.Entities, r.Segment.Labels, r.Relations = nil, nil, nil }, true},
		{"empty summary", func(r *Result) { r.Segment.Summary = "" }, false},
		{"label without type", func(r *Result) { r.Entities[1].Label = "b" }, false},
		{"uppercase type", func(r *Result) { r.Entities[1].Label = "Topic:b" }, false},
		{"empty name", func(r *Result) { r.Entities[1].Label = "topic: " }, false},
		{"duplicate", func(r *Result) { r.Entities[1].Label = "person:a" }, false},
		{"unknown segment label", func(r *Result) { r.Segment.Labels = append(r.Segment.Labels, "place:x") }, false},
		{"unknown endpoint", func(r *Result) { r.Relations[0].To = "topic:c" }, false},
		{"untyped relation", func(r *Result) { r.Relations[0].RelType = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			err := Validate(r)
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("Validate() error = %v, want ErrMalformedOutput", err)
			}
		})
	}
}

func TestParseLabel(t *testing.T) {
	typ, name, ok := ParseLabel("person:Tom:Jr")
	if !ok || typ != "person" || name != "Tom:Jr" {
		t.Errorf("ParseLabel() = %q, %q, %v", typ, name, ok)
	}
	for _, bad := range []string{"", ":x", "x:", "no-colon", "a b:c"} {
		if _, _, ok := ParseLabel(bad); ok {
			t.Errorf("ParseLabel(%q) accepted", bad)
		}
	}
}

type mockSegmentor struct {
	model string
}

func (m *mockSegmentor) Process(_ context.Context, input Input) (*Result, error) {
	return &Result{Segment: SegmentOutput{Summary: m.model + ":" + strings.Join(input.Messages, ",")}}, nil
}

func (m *mockSegmentor) Model() string { return m.model }

func TestMux(t *testing.T) {
	m := NewMux()
	if err := m.Handle("a", &mockSegmentor{model: "a"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := m.Handle("a", &mockSegmentor{model: "b"}); !errors.Is(err, mux.ErrAlreadyRegistered) {
		t.Errorf("duplicate Handle() error = %v", err)
	}
	res, err := m.Process(context.Background(), "a", Input{Messages: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Segment.Summary != "a:x,y" {
		t.Errorf("summary = %q", res.Segment.Summary)
	}
	if _, err := m.Process(context.Background(), "missing", Input{}); !errors.Is(err, mux.ErrNotFound) {
		t.Errorf("Process(missing) error = %v", err)
	}
}

func TestDefaultMux_PackageFunctions(t *testing.T) {
	pattern := "test/default-mux-segmentor"
	if err := Handle(pattern, &mockSegmentor{model: "d"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	defer DefaultMux.Remove(pattern)

	s, err := Get(pattern)
	if err != nil || s.Model() != "d" {
		t.Fatalf("Get() = %v, %v", s, err)
	}
	if _, err := Process(context.Background(), pattern, Input{Messages: []string{"m"}}); err != nil {
		t.Errorf("Process() error = %v", err)
	}
}
