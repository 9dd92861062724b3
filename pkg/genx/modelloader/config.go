package modelloader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/generators"
	"github.com/haivivi/genxstream/pkg/genx/modelcontexts"
	"github.com/haivivi/genxstream/pkg/genx/profilers"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
	"github.com/haivivi/genxstream/pkg/genx/transformers"
)

// Verbose enables request body logging for debugging
var Verbose bool

// ErrMissingCredentials is returned when a config needs a credential that is
// empty after environment expansion. LoadFromDir skips such files.
var ErrMissingCredentials = errors.New("modelloader: missing credentials")

type verboseTransport struct {
	base http.RoundTripper
}

func (t *verboseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			body = pretty.Bytes()
		}
		slog.Info("modelloader: request", "url", req.URL.String(), "body", string(body))
	}
	return t.base.RoundTrip(req)
}

type ConfigFile struct {
	Schema string `json:"schema,omitzero" yaml:"schema,omitzero"` // e.g., "openai/chat/v1", "ws/realtime/v1"
	Type   string `json:"type,omitzero" yaml:"type,omitzero"`     // "generator", "segmentor", "profiler", "modelcontext", "realtime"

	// Legacy format (for backward compatibility)
	Kind string `json:"kind,omitzero" yaml:"kind,omitzero"` // "openai", "gemini"

	APIKey  string `json:"api_key,omitzero" yaml:"api_key,omitzero"` // Can be env var name like "$OPENAI_API_KEY"
	BaseURL string `json:"base_url,omitzero" yaml:"base_url,omitzero"`

	Models []Entry `json:"models,omitzero" yaml:"models,omitzero"`

	// Model context specific. Files are relative to the config file.
	Contexts []modelcontexts.Config `json:"contexts,omitzero" yaml:"contexts,omitzero"`
	Files    []string               `json:"files,omitzero" yaml:"files,omitzero"`

	dir string
}

type Entry struct {
	Name              string            `json:"name" yaml:"name"`
	Model             string            `json:"model" yaml:"model"`
	GenerateParams    *genx.ModelParams `json:"generate_params,omitzero" yaml:"generate_params,omitzero"`
	InvokeParams      *genx.ModelParams `json:"invoke_params,omitzero" yaml:"invoke_params,omitzero"`
	SupportJSONOutput bool              `json:"support_json_output,omitzero" yaml:"support_json_output,omitzero"`
	SupportToolCalls  bool              `json:"support_tool_calls,omitzero" yaml:"support_tool_calls,omitzero"`
	SupportTextOnly   bool              `json:"support_text_only,omitzero" yaml:"support_text_only,omitzero"`
	UseSystemRole     bool              `json:"use_system_role,omitzero" yaml:"use_system_role,omitzero"`
	ExtraFields       map[string]any    `json:"extra_fields,omitzero" yaml:"extra_fields,omitzero"`

	// Segmentor/profiler specific
	PromptVersion string `json:"prompt_version,omitzero" yaml:"prompt_version,omitzero"`

	// Realtime specific
	JitterDepth int    `json:"jitter_depth,omitzero" yaml:"jitter_depth,omitzero"`
	BufferSize  int    `json:"buffer_size,omitzero" yaml:"buffer_size,omitzero"`
	Desc        string `json:"desc,omitzero" yaml:"desc,omitzero"`
}

// Loader registers backends described by config files into a set of muxes.
type Loader struct {
	Generators    *generators.Mux
	Segmentors    *segmentors.Mux
	Profilers     *profilers.Mux
	ModelContexts *modelcontexts.Mux
	Transformers  *transformers.Mux

	// Verbose logs every request body sent by the generator clients.
	Verbose bool
}

// Default returns a Loader that registers into the package default muxes.
func Default() *Loader {
	return &Loader{
		Generators:    generators.DefaultMux,
		Segmentors:    segmentors.DefaultMux,
		Profilers:     profilers.DefaultMux,
		ModelContexts: modelcontexts.DefaultMux,
		Transformers:  transformers.DefaultMux,
		Verbose:       Verbose,
	}
}

// LoadFromDir loads model configs from dir recursively into the default
// muxes. Returns the registered names.
func LoadFromDir(dir string) ([]string, error) {
	return Default().LoadFromDir(dir)
}

// LoadFromDir loads model configs from dir recursively and registers them.
// Configs with missing credentials (empty API key after env expansion) are
// skipped.
func (l *Loader) LoadFromDir(dir string) ([]string, error) {
	var names []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		fileNames, err := l.LoadFile(path)
		if errors.Is(err, ErrMissingCredentials) {
			slog.Debug("modelloader: skip config", "path", path, "reason", err)
			return nil
		}
		if err != nil {
			return err
		}
		names = append(names, fileNames...)
		return nil
	})

	return names, err
}

// LoadFile parses and registers a single config file.
func (l *Loader) LoadFile(path string) ([]string, error) {
	cfg, err := parseConfig(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	names, err := l.Register(*cfg)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", path, err)
	}
	return names, nil
}

func parseConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var cfg ConfigFile
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension: %s", ext)
	}
	cfg.dir = filepath.Dir(path)
	return &cfg, nil
}

// Register registers the backends described by cfg and returns their names.
func (l *Loader) Register(cfg ConfigFile) ([]string, error) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	cfg.BaseURL = expandEnv(cfg.BaseURL)

	if cfg.Schema != "" {
		return l.registerBySchema(cfg)
	}

	switch strings.ToLower(cfg.Kind) {
	case "openai":
		return l.registerOpenAI(cfg)
	case "gemini":
		return l.registerGemini(cfg)
	default:
		return nil, fmt.Errorf("unknown kind: %s", cfg.Kind)
	}
}

func (l *Loader) registerBySchema(cfg ConfigFile) ([]string, error) {
	// Schema format: {provider}/{subject}/{version}
	provider, _, ok := strings.Cut(cfg.Schema, "/")
	if !ok || provider == "" {
		return nil, fmt.Errorf("invalid schema: %s", cfg.Schema)
	}

	switch cfg.Type {
	case "generator":
		switch provider {
		case "openai":
			return l.registerOpenAI(cfg)
		case "gemini":
			return l.registerGemini(cfg)
		default:
			return nil, fmt.Errorf("unknown generator provider: %s", provider)
		}
	case "segmentor":
		return l.registerSegmentors(cfg)
	case "profiler":
		return l.registerProfilers(cfg)
	case "modelcontext":
		return l.registerModelContexts(cfg)
	case "realtime":
		if provider != "ws" {
			return nil, fmt.Errorf("unknown realtime provider: %s", provider)
		}
		return l.registerRealtime(cfg)
	default:
		return nil, fmt.Errorf("unknown type: %s", cfg.Type)
	}
}

// expandEnv expands environment variables in a string.
// Supports formats: $VAR, ${VAR}, and plain values.
// If the value starts with $ but the env var is not set, returns empty string.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}
