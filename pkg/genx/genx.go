package genx

import (
	"context"
	"iter"

	"github.com/goccy/go-yaml"
)

// ModelParams are sampling parameters passed through to a generator. Zero
// values mean "use the backend default".
type ModelParams struct {
	MaxTokens        int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitempty"`
	FrequencyPenalty float32 `json:"frequency_penalty,omitzero" yaml:"frequency_penalty,omitempty"`
	N                int     `json:"n,omitzero" yaml:"n,omitempty"`
	Temperature      float32 `json:"temperature,omitzero" yaml:"temperature,omitempty"`
	TopP             float32 `json:"top_p,omitzero" yaml:"top_p,omitempty"`
	PresencePenalty  float32 `json:"presence_penalty,omitzero" yaml:"presence_penalty,omitempty"`
	TopK             float32 `json:"top_k,omitzero" yaml:"top_k,omitempty"`
}

// Prompt is a named block of system instructions.
type Prompt struct {
	Name string
	Text string
}

type Tool interface {
	isTool()
}

// SearchWebTool asks a backend that supports it to ground answers on web
// search. Backends without such a feature ignore it.
type SearchWebTool struct{}

func (*SearchWebTool) isTool() {}

// ModelContext is everything a generator is given besides the model name.
type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]
	CoTs() iter.Seq[string]
	Tools() iter.Seq[Tool]

	Params() *ModelParams
}

// Generator is a model backend.
//
// GenerateStream returns once the request is accepted; the reply arrives as
// Model-role chunks on the Stream. Invoke forces a single call of tool and
// returns it with the usage of the request.
type Generator interface {
	GenerateStream(ctx context.Context, model string, mctx ModelContext) (Stream, error)
	Invoke(ctx context.Context, model string, mctx ModelContext, tool *FuncTool) (Usage, *FuncCall, error)
}

type Usage struct {
	// Number of tokens in the prompt, cached tokens included.
	PromptTokenCount int64

	// Number of prompt tokens served from a cache.
	CachedContentTokenCount int64

	// Number of tokens generated.
	GeneratedTokenCount int64
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokenCount:        u.PromptTokenCount + o.PromptTokenCount,
		CachedContentTokenCount: u.CachedContentTokenCount + o.CachedContentTokenCount,
		GeneratedTokenCount:     u.GeneratedTokenCount + o.GeneratedTokenCount,
	}
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"Usage": {
			"Prompt":    u.PromptTokenCount,
			"Cached":    u.CachedContentTokenCount,
			"Generated": u.GeneratedTokenCount,
		},
	})
	return string(b)
}
