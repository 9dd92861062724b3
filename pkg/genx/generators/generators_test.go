package generators

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/mux"
)

// echoGenerator streams the model name back and answers Invoke with it.
type echoGenerator struct {
	name string
}

func (g *echoGenerator) GenerateStream(ctx context.Context, model string, mctx genx.ModelContext) (genx.Stream, error) {
	sb := genx.NewStreamBuilder(mctx, 4)
	s := sb.Stream()
	sb.Add(&genx.MessageChunk{Role: genx.RoleModel, Name: g.name, Part: genx.Text(model)})
	sb.Done(genx.Usage{GeneratedTokenCount: 1})
	return s, nil
}

func (g *echoGenerator) Invoke(ctx context.Context, model string, mctx genx.ModelContext, tool *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	return genx.Usage{PromptTokenCount: 1}, &genx.FuncCall{Name: g.name, Arguments: model}, nil
}

func TestMux_Handle(t *testing.T) {
	m := NewMux()
	gen := &echoGenerator{name: "test"}

	if err := m.Handle("openai/gpt-4o", gen); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := m.Handle("openai/gpt-4o", &echoGenerator{name: "other"}); !errors.Is(err, mux.ErrAlreadyRegistered) {
		t.Errorf("Handle() duplicate error = %v, want ErrAlreadyRegistered", err)
	}
	if err := m.Handle("openai/gpt-4o-mini", gen); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	_, call, err := m.Invoke(context.Background(), "openai/gpt-4o", nil, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if call.Name != "test" {
		t.Errorf("first registration replaced: got %q", call.Name)
	}
}

func TestMux_GenerateStream(t *testing.T) {
	m := NewMux()
	m.Handle("gemini/flash", &echoGenerator{name: "g"})

	s, err := m.GenerateStream(context.Background(), "gemini/flash", nil)
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}
	text, err := genx.CollectText(s)
	if err != nil {
		t.Fatalf("CollectText() error = %v", err)
	}
	if text != "gemini/flash" {
		t.Errorf("text = %q, want the pattern passed as model", text)
	}

	if _, err := m.GenerateStream(context.Background(), "anthropic/claude", nil); !errors.Is(err, mux.ErrNotFound) {
		t.Errorf("GenerateStream() unregistered error = %v, want ErrNotFound", err)
	}
}

func TestMux_Invoke(t *testing.T) {
	m := NewMux()
	m.Handle("openai/gpt-4o", &echoGenerator{name: "test-invoke"})

	usage, call, err := m.Invoke(context.Background(), "openai/gpt-4o", nil, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if call.Arguments != "openai/gpt-4o" || usage.PromptTokenCount != 1 {
		t.Errorf("Invoke() = %+v, %+v", usage, call)
	}
	if _, _, err := m.Invoke(context.Background(), "missing", nil, nil); err == nil {
		t.Error("Invoke() expected error for unregistered pattern")
	}
}

func TestDefaultMux(t *testing.T) {
	pattern := "test/default-mux-generator"
	if err := Handle(pattern, &echoGenerator{name: "d"}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	defer DefaultMux.Remove(pattern)
	if _, call, err := Invoke(context.Background(), pattern, nil, nil); err != nil || call.Name != "d" {
		t.Errorf("Invoke() = %v, %v", call, err)
	}
}
