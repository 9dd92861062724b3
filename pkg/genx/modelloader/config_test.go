package modelloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/generators"
	"github.com/haivivi/genxstream/pkg/genx/modelcontexts"
	"github.com/haivivi/genxstream/pkg/genx/profilers"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
	"github.com/haivivi/genxstream/pkg/genx/transformers"
	"github.com/haivivi/genxstream/pkg/genx/wire"
)

func newTestLoader() *Loader {
	return &Loader{
		Generators:    generators.NewMux(),
		Segmentors:    segmentors.NewMux(),
		Profilers:     profilers.NewMux(),
		ModelContexts: modelcontexts.NewMux(),
		Transformers:  transformers.NewMux(),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test-key-123")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"plain value", "plain-api-key", "plain-api-key"},
		{"env var with $", "$TEST_API_KEY", "test-key-123"},
		{"env var with ${}", "${TEST_API_KEY}", "test-key-123"},
		{"unset env var", "$UNSET_VAR", ""},
		{"mixed content", "prefix-$TEST_API_KEY-suffix", "prefix-$TEST_API_KEY-suffix"}, // Only expands if starts with $
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnv(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnv(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"schema": "openai/chat/v1",
		"type": "generator",
		"api_key": "test-key",
		"base_url": "https://api.example.com",
		"models": [
			{"name": "test/model", "model": "gpt-4", "support_tool_calls": true}
		]
	}`)

	cfg, err := parseConfig(path)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.Schema != "openai/chat/v1" || cfg.Type != "generator" {
		t.Errorf("Schema/Type = %q/%q", cfg.Schema, cfg.Type)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "test-key")
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Name != "test/model" || !cfg.Models[0].SupportToolCalls {
		t.Errorf("Models = %+v", cfg.Models)
	}
	if cfg.dir != filepath.Dir(path) {
		t.Errorf("dir = %q", cfg.dir)
	}
}

func TestParseConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
schema: ws/realtime/v1
type: realtime
base_url: ws://localhost:9000/realtime
models:
  - name: rt/echo
    model: echo-v2
    jitter_depth: 4
    desc: Echo backend
`)

	cfg, err := parseConfig(path)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.Type != "realtime" || cfg.BaseURL != "ws://localhost:9000/realtime" {
		t.Errorf("Type/BaseURL = %q/%q", cfg.Type, cfg.BaseURL)
	}
	if len(cfg.Models) != 1 {
		t.Fatalf("len(Models) = %d, want 1", len(cfg.Models))
	}
	if m := cfg.Models[0]; m.Model != "echo-v2" || m.JitterDepth != 4 {
		t.Errorf("Models[0] = %+v", m)
	}
}

func TestParseConfig_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	writeFile(t, path, "some content")

	if _, err := parseConfig(path); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConfigFile
	}{
		{"unknown kind", ConfigFile{Kind: "llama"}},
		{"unknown type", ConfigFile{Schema: "test/schema/v1", Type: "unknown_type"}},
		{"invalid schema", ConfigFile{Schema: "invalid", Type: "generator"}},
		{"unknown generator provider", ConfigFile{Schema: "llama/chat/v1", Type: "generator", APIKey: "k"}},
		{"unknown realtime provider", ConfigFile{Schema: "grpc/realtime/v1", Type: "realtime"}},
		{"realtime without url", ConfigFile{Schema: "ws/realtime/v1", Type: "realtime"}},
		{"model without name", ConfigFile{Schema: "openai/chat/v1", Type: "generator", APIKey: "k", Models: []Entry{{Model: "gpt-4"}}}},
		{"segmentor without generator", ConfigFile{Schema: "genx/segmentor/v1", Type: "segmentor", Models: []Entry{{Name: "seg"}}}},
		{"context without name", ConfigFile{Schema: "genx/modelcontext/v1", Type: "modelcontext", Contexts: []modelcontexts.Config{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader().Register(tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrMissingCredentials) {
				t.Errorf("error = %v, must not be a credentials error", err)
			}
		})
	}
}

func TestRegister_MissingCredentials(t *testing.T) {
	for _, kind := range []string{"openai", "gemini"} {
		_, err := newTestLoader().Register(ConfigFile{Kind: kind, APIKey: "$NONEXISTENT_API_KEY"})
		if !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("%s: error = %v", kind, err)
		}
	}
}

func TestRegister_Duplicate(t *testing.T) {
	l := newTestLoader()
	cfg := ConfigFile{Kind: "openai", APIKey: "k", Models: []Entry{{Name: "m", Model: "gpt-4"}}}
	if _, err := l.Register(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Register(cfg); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	root := t.TempDir()
	models := filepath.Join(root, "models")

	writeFile(t, filepath.Join(models, "openai.json"), `{
		"schema": "openai/chat/v1",
		"type": "generator",
		"api_key": "$TEST_OPENAI_KEY",
		"base_url": "http://127.0.0.1:1/v1",
		"models": [{"name": "test/gpt", "model": "gpt-4o"}]
	}`)
	writeFile(t, filepath.Join(models, "missing.yaml"), `
schema: gemini/chat/v1
type: generator
api_key: $NONEXISTENT_GEMINI_KEY
models:
  - name: test/gemini
    model: gemini-2.0-flash
`)
	writeFile(t, filepath.Join(models, "nested", "segmentor.yaml"), `
schema: genx/segmentor/v1
type: segmentor
models:
  - name: seg/default
    model: test/gpt
`)
	writeFile(t, filepath.Join(models, "profiler.yml"), `
schema: genx/profiler/v1
type: profiler
models:
  - name: prof/default
    model: test/gpt
`)
	writeFile(t, filepath.Join(models, "contexts.yaml"), `
schema: genx/modelcontext/v1
type: modelcontext
contexts:
  - name: ctx/inline
    prompts:
      - text: You are terse.
files:
  - ../contexts/greeting.yaml
`)
	writeFile(t, filepath.Join(root, "contexts", "greeting.yaml"), `
name: ctx/greeting
prompts:
  - text: Greet the user.
messages:
  - role: user
    text: hi
`)
	writeFile(t, filepath.Join(models, "README.md"), "# models")

	l := newTestLoader()
	names, err := l.LoadFromDir(models)
	if err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	slices.Sort(names)
	want := []string{"ctx/greeting", "ctx/inline", "prof/default", "seg/default", "test/gpt"}
	if !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	if _, err := l.Generators.Get("test/gpt"); err != nil {
		t.Errorf("generator: %v", err)
	}
	if _, err := l.Generators.Get("test/gemini"); err == nil {
		t.Error("config with missing credentials was registered")
	}
	if _, err := l.Segmentors.Get("seg/default"); err != nil {
		t.Errorf("segmentor: %v", err)
	}
	if _, err := l.Profilers.Get("prof/default"); err != nil {
		t.Errorf("profiler: %v", err)
	}
	for _, name := range []string{"ctx/inline", "ctx/greeting"} {
		if _, err := l.ModelContexts.ModelContext(context.Background(), name); err != nil {
			t.Errorf("model context %s: %v", name, err)
		}
	}
}

func TestLoadFromDir_BadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.yaml"), "schema: x/y/z\ntype: nonsense\n")

	_, err := newTestLoader().LoadFromDir(dir)
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("error = %v, want one naming the file", err)
	}
}

func TestLoadFromDir_SkipsMissingCredentials(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "test.json"), `{
		"schema": "openai/chat/v1",
		"type": "generator",
		"api_key": "$NONEXISTENT_API_KEY",
		"models": [{"name": "test/model", "model": "gpt-4"}]
	}`)

	names, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected 0 names (skipped), got %d", len(names))
	}
}

func TestLoadFromDir_EmptyDir(t *testing.T) {
	names, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected 0 names, got %d", len(names))
	}
}

func TestRegisterRealtime(t *testing.T) {
	type handshake struct{ model, auth string }
	seen := make(chan handshake, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- handshake{r.URL.Query().Get("model"), r.Header.Get("Authorization")}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if f, err := wire.Unmarshal(b); err == nil && f.End != nil {
				b, _ := wire.Marshal(wire.EndOf(genx.StreamResult{Status: genx.StatusDone}, nil))
				conn.WriteMessage(websocket.BinaryMessage, b)
				return
			}
		}
	}))
	defer srv.Close()

	l := newTestLoader()
	names, err := l.Register(ConfigFile{
		Schema:  "ws/realtime/v1",
		Type:    "realtime",
		APIKey:  "secret",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Models:  []Entry{{Name: "rt/echo", Model: "echo-v2", JitterDepth: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(names, []string{"rt/echo"}) {
		t.Errorf("names = %v", names)
	}

	sb := genx.NewStreamBuilder(nil, 1)
	input := sb.Stream()
	if err := sb.Done(genx.Usage{}); err != nil {
		t.Fatal(err)
	}
	out, err := l.Transformers.Transform(context.Background(), "rt/echo", input)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if got := <-seen; got.model != "echo-v2" || got.auth != "Bearer secret" {
		t.Errorf("handshake = %+v", got)
	}
	if _, err := out.Next(); !genx.IsEOF(err) {
		t.Errorf("Next() error = %v, want EOF", err)
	}
}
