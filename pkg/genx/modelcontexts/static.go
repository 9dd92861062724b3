package modelcontexts

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/genxstream/pkg/genx"
)

// Config is the declarative form of a model context, as found in model
// context files.
type Config struct {
	Name     string            `json:"name" yaml:"name"`
	Prompts  []PromptConfig    `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	Messages []MessageConfig   `json:"messages,omitempty" yaml:"messages,omitempty"`
	CoTs     []string          `json:"cots,omitempty" yaml:"cots,omitempty"`
	Params   *genx.ModelParams `json:"params,omitempty" yaml:"params,omitempty"`
}

type PromptConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Text string `json:"text" yaml:"text"`
}

type MessageConfig struct {
	Role genx.Role `json:"role" yaml:"role"`
	Name string    `json:"name,omitempty" yaml:"name,omitempty"`
	Text string    `json:"text" yaml:"text"`
}

// Build turns cfg into a ModelContext. Only user and model messages are
// accepted.
func (cfg *Config) Build() (genx.ModelContext, error) {
	var mcb genx.ModelContextBuilder
	for _, p := range cfg.Prompts {
		if p.Text == "" {
			continue
		}
		mcb.PromptText(p.Name, p.Text)
	}
	for i, m := range cfg.Messages {
		switch m.Role {
		case genx.RoleUser:
			mcb.UserText(m.Name, m.Text)
		case genx.RoleModel:
			mcb.ModelText(m.Name, m.Text)
		default:
			return nil, fmt.Errorf("modelcontexts: message %d: unsupported role %q", i, m.Role)
		}
	}
	mcb.CoTs = cfg.CoTs
	mcb.Params = cfg.Params
	return mcb.Build(), nil
}

// Static returns a provider that always answers with mctx.
func Static(mctx genx.ModelContext) ModelContextProvider {
	return ModelContextProviderFunc(func(context.Context, string) (genx.ModelContext, error) {
		return mctx, nil
	})
}

// ParseConfig decodes a model context from YAML. JSON input is accepted as
// a YAML subset.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("modelcontexts: parse: %w", err)
	}
	if cfg.Name == "" {
		return nil, errors.New("modelcontexts: missing name")
	}
	return &cfg, nil
}

// File is a provider backed by a model context file. The file is read on
// every lookup, so edits show up without re-registration.
type File string

func (f File) ModelContext(ctx context.Context, _ string) (genx.ModelContext, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("modelcontexts: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, f)
	}
	return cfg.Build()
}

// HandleFile parses path once and registers a File provider under the name
// it declares.
func (m *Mux) HandleFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("modelcontexts: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return "", err
	}
	if _, err := cfg.Build(); err != nil {
		return "", err
	}
	return cfg.Name, m.Handle(cfg.Name, File(path))
}
