// Package segmentors compresses a run of conversation lines into a
// structured segment with entity and relation extraction.
//
// A Segmentor takes raw conversation text and produces:
//   - A segment summary with keywords and entity labels.
//   - Extracted entities (people, topics, places, objects) with attributes.
//   - Discovered relations between entities.
//
// # Usage
//
//	segmentors.Handle("openai/gpt-4o-mini", segmentors.NewGenX(segmentors.Config{
//	    Generator: "openai/gpt-4o-mini",
//	}))
//	result, err := segmentors.Process(ctx, "openai/gpt-4o-mini", segmentors.Input{
//	    Messages: []string{"user: Tom loves dinosaurs", "model: His favorite is the T-Rex"},
//	})
package segmentors

import (
	"context"
	"strings"

	"github.com/haivivi/genxstream/pkg/genx"
)

// Segmentor compresses conversation messages into a structured segment
// with entity and relation extraction.
type Segmentor interface {
	// Process compresses the input messages into a single segment,
	// extracting entities and relations mentioned in the conversation.
	Process(ctx context.Context, input Input) (*Result, error)

	// Model returns the underlying model identifier.
	Model() string
}

// Input is the input to a [Segmentor].
type Input struct {
	// Messages is the conversation text to compress, one line of dialogue
	// per element (e.g. "user: hello").
	Messages []string `json:"messages"`

	// Schema optionally describes the entity types and attributes to look
	// for. It guides extraction without restricting it.
	Schema *Schema `json:"schema,omitempty"`
}

type Result struct {
	Segment   SegmentOutput    `json:"segment"`
	Entities  []EntityOutput   `json:"entities"`
	Relations []RelationOutput `json:"relations"`

	// Usage is the token usage of the call that produced the result.
	Usage genx.Usage `json:"-"`
}

// SegmentOutput is a compressed conversation fragment.
type SegmentOutput struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`

	// Labels are the entity labels referenced by this segment.
	Labels []string `json:"labels"`
}

// EntityOutput is an entity extracted from the conversation.
type EntityOutput struct {
	// Label is the entity identifier with type prefix, e.g. "person:Tom".
	Label string         `json:"label"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// RelationOutput is a directed relation between two entities.
type RelationOutput struct {
	From    string `json:"from"`
	To      string `json:"to"`
	RelType string `json:"rel_type"`
}

// Schema describes the entity types and attributes a segmentor should look
// for.
type Schema struct {
	// EntityTypes maps type prefixes (e.g. "person", "topic") to their
	// expected schema.
	EntityTypes map[string]EntitySchema `json:"entity_types" yaml:"entity_types"`
}

type EntitySchema struct {
	Desc  string             `json:"desc" yaml:"desc"`
	Attrs map[string]AttrDef `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// AttrDef describes an entity attribute.
type AttrDef struct {
	// Type is the expected value type, e.g. "string", "int", "[]string".
	Type string `json:"type" yaml:"type"`
	Desc string `json:"desc" yaml:"desc"`
}

// Config configures a GenX segmentor implementation.
type Config struct {
	// Generator is the pattern of the registered generator used for the
	// extraction call.
	Generator string `json:"generator" yaml:"generator"`

	// PromptVersion selects the prompt template variant. Default "v1".
	PromptVersion string `json:"prompt_version,omitempty" yaml:"prompt_version,omitempty"`
}

// ParseLabel splits an entity label of the form "type:name". The type must
// be non-empty lowercase ASCII and the name non-empty.
func ParseLabel(label string) (typ, name string, ok bool) {
	typ, name, ok = strings.Cut(label, ":")
	if !ok || typ == "" || strings.TrimSpace(name) == "" {
		return "", "", false
	}
	for _, r := range typ {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return "", "", false
		}
	}
	return typ, name, true
}
