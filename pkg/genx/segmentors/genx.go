package segmentors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haivivi/genxstream/pkg/genx"
	"github.com/haivivi/genxstream/pkg/genx/generators"
)

var _ Segmentor = (*GenX)(nil)

// ErrMalformedOutput is returned when the model's answer does not decode or
// violates the result's invariants.
var ErrMalformedOutput = errors.New("segmentors: malformed output")

// extractAttr is one attribute as the model returns it. Strict structured
// output cannot express free-form maps, so attributes travel as pairs.
type extractAttr struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type extractEntity struct {
	Label string        `json:"label"`
	Attrs []extractAttr `json:"attrs"`
}

// extractArg is the argument of the extraction tool.
type extractArg struct {
	Segment   SegmentOutput    `json:"segment"`
	Entities  []extractEntity  `json:"entities"`
	Relations []RelationOutput `json:"relations"`
}

var extractTool = genx.MustNewFuncTool[extractArg](
	"extract",
	"Extract a compressed segment with entities and relations from the conversation.",
)

// GenX implements [Segmentor] with a single structured call to a
// registered generator.
type GenX struct {
	generator string
	mux       *generators.Mux
}

// NewGenX creates a segmentor calling cfg.Generator on generators.DefaultMux.
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
	if len(input.Messages) == 0 {
		return nil, errors.New("segmentors: no messages")
	}
	usage, call, err := g.mux.Invoke(ctx, g.generator, buildModelContext(input), extractTool)
	if err != nil {
		return nil, fmt.Errorf("segmentors: invoke %s: %w", g.generator, err)
	}
	res, err := parseResult(call)
	if err != nil {
		slog.Warn("segmentors: discard model output", "generator", g.generator, "error", err)
		return nil, err
	}
	res.Usage = usage
	return res, nil
}

func buildModelContext(input Input) genx.ModelContext {
	var mcb genx.ModelContextBuilder
	mcb.PromptText("segmentor", buildPrompt(input))
	mcb.UserText("conversation", buildConversationText(input.Messages))
	mcb.AddTool(extractTool)
	return mcb.Build()
}

func parseResult(call *genx.FuncCall) (*Result, error) {
	if call == nil {
		return nil, fmt.Errorf("%w: no function call returned", ErrMalformedOutput)
	}
	arg, err := genx.Decode[extractArg](call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	res := &Result{
		Segment:   arg.Segment,
		Entities:  make([]EntityOutput, 0, len(arg.Entities)),
		Relations: arg.Relations,
	}
	for _, e := range arg.Entities {
		out := EntityOutput{Label: e.Label}
		if len(e.Attrs) > 0 {
			out.Attrs = make(map[string]any, len(e.Attrs))
			for _, a := range e.Attrs {
				if a.Key != "" {
					out.Attrs[a.Key] = a.Value
				}
			}
		}
		res.Entities = append(res.Entities, out)
	}
	if err := Validate(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks the invariants of a segmentation result: every label is
// of the form "type:name", entity labels are unique, and the segment's
// labels and relation endpoints refer to extracted entities.
func Validate(res *Result) error {
	if res.Segment.Summary == "" {
		return fmt.Errorf("%w: empty summary", ErrMalformedOutput)
	}
	known := make(map[string]bool, len(res.Entities))
	for _, e := range res.Entities {
		if _, _, ok := ParseLabel(e.Label); !ok {
			return fmt.Errorf("%w: invalid entity label %q", ErrMalformedOutput, e.Label)
		}
		if known[e.Label] {
			return fmt.Errorf("%w: duplicate entity %q", ErrMalformedOutput, e.Label)
		}
		known[e.Label] = true
	}
	for _, l := range res.Segment.Labels {
		if !known[l] {
			return fmt.Errorf("%w: segment label %q is not an extracted entity", ErrMalformedOutput, l)
		}
	}
	for _, r := range res.Relations {
		if !known[r.From] || !known[r.To] {
			return fmt.Errorf("%w: relation %s -%s-> %s has an unknown endpoint", ErrMalformedOutput, r.From, r.RelType, r.To)
		}
		if r.RelType == "" {
			return fmt.Errorf("%w: relation %s -> %s without type", ErrMalformedOutput, r.From, r.To)
		}
	}
	return nil
}
