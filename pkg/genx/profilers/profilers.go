// Package profilers evolves entity profile schemas and updates entity
// profiles from the output of a segmentor.
//
// A Profiler takes the extraction result of a [segmentors.Segmentor], the
// original conversation, the current schema and existing profiles, and
// produces:
//   - Schema evolution: new fields or modifications to the entity schema.
//   - Profile updates: attribute values for each entity.
//   - Relations discovered during profile analysis.
//
// # Usage
//
//	profilers.Handle("openai/gpt-4o-mini", profilers.NewGenX(profilers.Config{
//	    Generator: "openai/gpt-4o-mini",
//	}))
//	result, err := profilers.Process(ctx, "openai/gpt-4o-mini", profilers.Input{
//	    Messages:  messages,
//	    Extracted: segResult,
//	    Schema:    currentSchema,
//	    Profiles:  existingProfiles,
//	})
package profilers

import (
	"context"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
)

// Profiler evolves entity profile schemas and updates entity profiles
// based on segmentor output and the original conversation.
type Profiler interface {
	Process(ctx context.Context, input Input) (*Result, error)

	// Model returns the underlying model identifier.
	Model() string
}

// Input is the input to a [Profiler].
type Input struct {
	// Messages is the original conversation text, as given to the
	// segmentor.
	Messages []string `json:"messages"`

	// Extracted is the output of a segmentor for the same conversation.
	Extracted *segmentors.Result `json:"extracted,omitempty"`

	// Schema is the current entity type schema, or nil.
	Schema *segmentors.Schema `json:"schema,omitempty"`

	// Profiles holds the current attributes of known entities, keyed by
	// entity label.
	Profiles map[string]map[string]any `json:"profiles,omitempty"`
}

// Result is the output of a [Profiler].
type Result struct {
	// SchemaChanges are proposed schema modifications; the caller decides
	// whether to accept them.
	SchemaChanges []SchemaChange `json:"schema_changes"`

	// ProfileUpdates holds new or changed attributes keyed by entity label.
	// They are to be merged into existing profiles, not replace them.
	ProfileUpdates map[string]map[string]any `json:"profile_updates"`

	Relations []segmentors.RelationOutput `json:"relations"`

	Usage genx.Usage `json:"-"`
}

// Schema change actions.
const (
	ActionAdd    = "add"
	ActionModify = "modify"
)

// SchemaChange proposes a modification to the entity type schema.
type SchemaChange struct {
	EntityType string             `json:"entity_type"`
	Field      string             `json:"field"`
	Def        segmentors.AttrDef `json:"def"`

	// Action is ActionAdd or ActionModify.
	Action string `json:"action"`
}

// Config configures a GenX profiler implementation.
type Config struct {
	// Generator is the pattern of the registered generator to call.
	Generator string `json:"generator" yaml:"generator"`

	// PromptVersion selects the prompt template variant. Default "v1".
	PromptVersion string `json:"prompt_version,omitempty" yaml:"prompt_version,omitempty"`
}
