package profilers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/generators"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
)

var _ Profiler = (*GenX)(nil)

// ErrMalformedOutput is returned when the model's answer does not decode or
// violates the result's invariants.
var ErrMalformedOutput = errors.New("profilers: malformed output")

type profileAttr struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type profileUpdate struct {
	Label string        `json:"label"`
	Attrs []profileAttr `json:"attrs"`
}

// profileArg is the argument of the profile tool. Updates are a list
// rather than a map so the schema stays valid for strict structured output.
type profileArg struct {
	SchemaChanges  []SchemaChange               `json:"schema_changes"`
	ProfileUpdates []profileUpdate              `json:"profile_updates"`
	Relations      []segmentors.RelationOutput `json:"relations"`
}

var profileTool = genx.MustNewFuncTool[profileArg](
	"update_profiles",
	"Update entity profiles and propose schema changes based on conversation analysis.",
)

// GenX implements [Profiler] with a single structured call to a registered
// generator.
type GenX struct {
	generator string
	mux       *generators.Mux
}

// NewGenX creates a profiler calling cfg.Generator on generators.DefaultMux.
func NewGenX(cfg Config) *GenX {
	return NewGenXWithMux(cfg, generators.DefaultMux)
}

func NewGenXWithMux(cfg Config, mux *generators.Mux) *GenX {
	return &GenX{
		generator: cfg.Generator,
		mux:       mux,
	}
}

func (g *GenX) Model() string {
	return g.generator
}

func (g *GenX) Process(ctx context.Context, input Input) (*Result, error) {
	usage, call, err := g.mux.Invoke(ctx, g.generator, buildModelContext(input), profileTool)
	if err != nil {
		return nil, fmt.Errorf("profilers: invoke %s: %w", g.generator, err)
	}
	res, err := parseResult(call, input)
	if err != nil {
		slog.Warn("profilers: discard model output", "generator", g.generator, "error", err)
		return nil, err
	}
	res.Usage = usage
	return res, nil
}

func buildModelContext(input Input) genx.ModelContext {
	var mcb genx.ModelContextBuilder
	mcb.PromptText("profiler", buildPrompt(input))
	if len(input.Messages) > 0 {
		mcb.UserText("conversation", buildConversationText(input.Messages))
	}
	mcb.AddTool(profileTool)
	return mcb.Build()
}

func parseResult(call *genx.FuncCall, input Input) (*Result, error) {
	if call == nil {
		return nil, fmt.Errorf("%w: no function call returned", ErrMalformedOutput)
	}
	arg, err := genx.Decode[profileArg](call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	res := &Result{
		SchemaChanges:  arg.SchemaChanges,
		ProfileUpdates: make(map[string]map[string]any, len(arg.ProfileUpdates)),
		Relations:      arg.Relations,
	}
	for _, u := range arg.ProfileUpdates {
		attrs := res.ProfileUpdates[u.Label]
		if attrs == nil {
			attrs = make(map[string]any, len(u.Attrs))
			res.ProfileUpdates[u.Label] = attrs
		}
		for _, a := range u.Attrs {
			if a.Key != "" {
				attrs[a.Key] = a.Value
			}
		}
	}
	if err := Validate(res, input); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks res against the input it was produced from. Schema
// changes must name a type and field with action add or modify. Updated
// profiles and relation endpoints must be well-formed labels of entities
// that were extracted or already have a profile.
func Validate(res *Result, input Input) error {
	for _, c := range res.SchemaChanges {
		if c.EntityType == "" || c.Field == "" {
			return fmt.Errorf("%w: schema change without entity type or field", ErrMalformedOutput)
		}
		switch c.Action {
		case ActionAdd, ActionModify:
		default:
			return fmt.Errorf("%w: schema change %s.%s has action %q", ErrMalformedOutput, c.EntityType, c.Field, c.Action)
		}
	}

	known := make(map[string]bool, len(input.Profiles))
	for label := range input.Profiles {
		known[label] = true
	}
	if input.Extracted != nil {
		for _, e := range input.Extracted.Entities {
			known[e.Label] = true
		}
	}
	check := func(what, label string) error {
		if _, _, ok := segmentors.ParseLabel(label); !ok {
			return fmt.Errorf("%w: %s has invalid label %q", ErrMalformedOutput, what, label)
		}
		if !known[label] {
			return fmt.Errorf("%w: %s refers to unknown entity %q", ErrMalformedOutput, what, label)
		}
		return nil
	}
	for label := range res.ProfileUpdates {
		if err := check("profile update", label); err != nil {
			return err
		}
	}
	for _, r := range res.Relations {
		if err := check("relation", r.From); err != nil {
			return err
		}
		if err := check("relation", r.To); err != nil {
			return err
		}
		if r.RelType == "" {
			return fmt.Errorf("%w: relation %s -> %s without type", ErrMalformedOutput, r.From, r.To)
		}
	}
	return nil
}
