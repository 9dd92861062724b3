package transformers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/mux"
)

func streamOf(t *testing.T, chunks ...*genx.MessageChunk) genx.Stream {
	t.Helper()
	sb := genx.NewStreamBuilder(nil, len(chunks)+1)
	s := sb.Stream()
	if err := sb.Add(chunks...); err != nil {
		t.Fatal(err)
	}
	if err := sb.Done(genx.Usage{}); err != nil {
		t.Fatal(err)
	}
	return s
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

func text(role genx.Role, s string) *genx.MessageChunk {
	return &genx.MessageChunk{Role: role, Part: genx.Text(s)}
}

func audio(name string, data string) *genx.MessageChunk {
	return &genx.MessageChunk{Role: genx.RoleUser, Name: name, Part: &genx.Blob{MIMEType: "audio/pcm", Data: []byte(data)}}
}

func describe(chunks []*genx.MessageChunk) string {
	var parts []string
	for _, c := range chunks {
		var s string
		switch p := c.Part.(type) {
		case genx.Text:
			s = "text:" + string(p)
		case *genx.Blob:
			s = "blob:" + string(p.Data)
		default:
			s = "ctrl"
		}
		switch {
		case c.IsBeginOfStream():
			s = "bos"
		case c.IsEndOfStream():
			s = "eos:" + c.MIMEType()
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func TestMux(t *testing.T) {
	m := NewMux()
	upper := Map(func(c *genx.MessageChunk) (*genx.MessageChunk, error) {
		if s, ok := c.Part.(genx.Text); ok {
			c.Part = genx.Text(strings.ToUpper(string(s)))
		}
		return c, nil
	})
	if err := m.Handle("upper", upper); err != nil {
		t.Fatal(err)
	}
	if err := m.Handle("upper", upper); !errors.Is(err, mux.ErrAlreadyRegistered) {
		t.Errorf("duplicate Handle() error = %v", err)
	}
	if _, err := m.Transform(context.Background(), "lower", streamOf(t)); !errors.Is(err, mux.ErrNotFound) {
		t.Errorf("Transform(lower) error = %v", err)
	}

	out, err := m.Transform(context.Background(), "upper", streamOf(t, text(genx.RoleModel, "hi")))
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := readAll(t, out)
	if err != nil || describe(chunks) != "text:HI" {
		t.Errorf("output = %q, %v", describe(chunks), err)
	}
}

func TestDefaultMux(t *testing.T) {
	pattern := "test/default-mux-transformer"
	if err := Handle(pattern, SetRole(genx.RoleTool)); err != nil {
		t.Fatal(err)
	}
	defer DefaultMux.Remove(pattern)

	out, err := Transform(context.Background(), pattern, streamOf(t, text(genx.RoleModel, "x")))
	if err != nil {
		t.Fatal(err)
	}
	chunks, _ := readAll(t, out)
	if len(chunks) != 1 || chunks[0].Role != genx.RoleTool {
		t.Errorf("output = %+v", chunks)
	}
}

func TestMap(t *testing.T) {
	src := []*genx.MessageChunk{text(genx.RoleUser, "keep"), text(genx.RoleUser, "drop"), audio("", "a")}
	tr := Map(func(c *genx.MessageChunk) (*genx.MessageChunk, error) {
		if s, ok := c.Part.(genx.Text); ok && s == "drop" {
			return nil, nil
		}
		c.Name = "mapped"
		return c, nil
	})
	out, err := tr.Transform(context.Background(), "", streamOf(t, src...))
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := readAll(t, out)
	if err != nil {
		t.Fatal(err)
	}
	if describe(chunks) != "text:keep blob:a" {
		t.Errorf("output = %q", describe(chunks))
	}
	for _, c := range chunks {
		if c.Name != "mapped" {
			t.Errorf("chunk name = %q", c.Name)
		}
	}
	if src[0].Name != "" {
		t.Error("Map modified an input chunk")
	}
}

func TestMap_Error(t *testing.T) {
	boom := errors.New("boom")
	tr := Map(func(*genx.MessageChunk) (*genx.MessageChunk, error) { return nil, boom })
	out, _ := tr.Transform(context.Background(), "", streamOf(t, text(genx.RoleUser, "x")))
	if _, err := readAll(t, out); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestMap_InputError(t *testing.T) {
	boom := errors.New("upstream")
	out, _ := SetRole(genx.RoleModel).Transform(context.Background(), "", genx.ErrorStream(boom))
	if _, err := readAll(t, out); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}
