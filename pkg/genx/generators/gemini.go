package generators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"

	"github.com/haivivi/genxstream/pkg/genx"
)

var _ genx.Generator = (*Gemini)(nil)

// Gemini is a generator backed by the Google Gen AI SDK.
type Gemini struct {
	Client *genai.Client `json:"-"`

	InvokeParams   *genx.ModelParams `json:"invoke_params,omitzero"`
	GenerateParams *genx.ModelParams `json:"generate_params,omitzero"`

	// Model without the "models/" prefix.
	Model string `json:"model"`
}

// geminiError strips the gRPC/HTTP envelope of an API error so callers see
// the service's own message.
func geminiError(err error) error {
	var ae *apierror.APIError
	if errors.As(err, &ae) && ae.Unwrap() != nil {
		err = ae.Unwrap()
	}
	return fmt.Errorf("generators/gemini: %w", err)
}

func (g *Gemini) Invoke(ctx context.Context, _ string, mctx genx.ModelContext, fn *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	cfg, contents, err := g.convModelContext(mctx, g.InvokeParams)
	if err != nil {
		return genx.Usage{}, nil, err
	}
	cfg.Tools = nil
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = geminiConvSchema(fn.Argument)
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return genx.Usage{}, nil, geminiError(err)
	}
	usage := geminiConvUsage(resp.UsageMetadata)
	if len(resp.Candidates) == 0 {
		return usage, nil, errors.New("generators/gemini: no candidates")
	}
	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonStop:
	case genai.FinishReasonMaxTokens:
		return usage, nil, errors.New("generators/gemini: max tokens reached")
	case genai.FinishReasonSafety:
		return usage, nil, genx.Blocked(usage, geminiSafetyRefusal(c))
	default:
		return usage, nil, fmt.Errorf("generators/gemini: unexpected finish reason %s", c.FinishReason)
	}
	var sb strings.Builder
	if c.Content != nil {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return usage, fn.NewFuncCall(sb.String()), nil
}

func (g *Gemini) GenerateStream(ctx context.Context, _ string, mctx genx.ModelContext) (genx.Stream, error) {
	cfg, contents, err := g.convModelContext(mctx, g.GenerateParams)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	sb := genx.NewStreamBuilder(mctx, 32)
	out := sb.Stream()
	go func() {
		defer cancel()
		if err := geminiPull(ctx, sb, g.Client.Models.GenerateContentStream(ctx, g.Model, contents, cfg)); err != nil {
			sb.Abort(err)
		}
	}()
	return out, nil
}

// geminiPull copies a streamed response into sb, one chunk per text run or
// blob MIME type in each response. Leaving the range loop early cancels the
// underlying request.
func geminiPull(ctx context.Context, sb *genx.StreamBuilder, seq iter.Seq2[*genai.GenerateContentResponse, error]) error {
	selIdx := int32(-1)
	for resp, err := range seq {
		if err != nil {
			return geminiError(err)
		}
		var sel *genai.Candidate
		for _, c := range resp.Candidates {
			if selIdx < 0 {
				selIdx = c.Index
			}
			if c.Index == selIdx {
				sel = c
				break
			}
		}
		if sel == nil {
			continue
		}
		chunks, err := geminiChunks(sel)
		if err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := sb.Push(ctx, chunks...); err != nil {
				return err
			}
		}
		usage := geminiConvUsage(resp.UsageMetadata)
		switch sel.FinishReason {
		case genai.FinishReasonUnspecified, "":
		case genai.FinishReasonStop:
			return sb.Done(usage)
		case genai.FinishReasonMaxTokens:
			return sb.Truncated(usage)
		case genai.FinishReasonSafety:
			return sb.Blocked(usage, geminiSafetyRefusal(sel))
		default:
			return sb.Unexpected(usage, fmt.Errorf("generators/gemini: unexpected finish reason %s", sel.FinishReason))
		}
	}
	return errors.New("generators/gemini: stream ended without finish reason")
}

func geminiChunks(c *genai.Candidate) ([]*genx.MessageChunk, error) {
	if c.Content == nil {
		return nil, nil
	}
	var (
		chunks []*genx.MessageChunk
		text   strings.Builder
		mimes  []string
		blobs  = map[string]*bytes.Buffer{}
	)
	for _, p := range c.Content.Parts {
		switch {
		case p.Text != "":
			text.WriteString(p.Text)
		case p.InlineData != nil:
			buf, ok := blobs[p.InlineData.MIMEType]
			if !ok {
				buf = &bytes.Buffer{}
				blobs[p.InlineData.MIMEType] = buf
				mimes = append(mimes, p.InlineData.MIMEType)
			}
			buf.Write(p.InlineData.Data)
		case p.FunctionCall != nil:
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("generators/gemini: marshal call args: %w", err)
			}
			id := p.FunctionCall.ID
			if id == "" {
				id = p.FunctionCall.Name
			}
			chunks = append(chunks, &genx.MessageChunk{
				Role: genx.RoleModel,
				ToolCall: &genx.ToolCall{
					ID:       id,
					FuncCall: &genx.FuncCall{Name: p.FunctionCall.Name, Arguments: string(args)},
				},
			})
		}
	}
	if text.Len() > 0 {
		chunks = append(chunks, &genx.MessageChunk{Role: genx.RoleModel, Part: genx.Text(text.String())})
	}
	for _, mime := range mimes {
		chunks = append(chunks, &genx.MessageChunk{
			Role: genx.RoleModel,
			Part: &genx.Blob{MIMEType: mime, Data: blobs[mime].Bytes()},
		})
	}
	return chunks, nil
}

func geminiSafetyRefusal(c *genai.Candidate) string {
	var cats []string
	for _, sr := range c.SafetyRatings {
		if sr.Blocked {
			cats = append(cats, string(sr.Category))
		}
	}
	return "blocked by " + strings.Join(cats, ", ")
}

// geminiAppend converts msg and appends it to contents. Consecutive messages
// of the same role are folded into one Content, as the API requires turns
// to alternate.
func geminiAppend(contents []*genai.Content, msg *genx.Message) ([]*genai.Content, error) {
	var (
		role  string
		parts []*genai.Part
	)
	switch t := msg.Payload.(type) {
	case genx.Contents:
		switch msg.Role {
		case genx.RoleUser:
			role = genai.RoleUser
		case genx.RoleModel:
			role = genai.RoleModel
		default:
			return nil, fmt.Errorf("generators/gemini: content message with role %s", msg.Role)
		}
		for _, c := range t {
			switch v := c.(type) {
			case genx.Text:
				parts = append(parts, genai.NewPartFromText(string(v)))
			case *genx.Blob:
				parts = append(parts, genai.NewPartFromBytes(v.Data, v.MIMEType))
			}
		}
	case *genx.ToolCall:
		if t.FuncCall == nil {
			return nil, fmt.Errorf("generators/gemini: tool call %s without function", t.ID)
		}
		role = genai.RoleModel
		var args map[string]any
		if err := json.Unmarshal([]byte(t.FuncCall.Arguments), &args); err != nil {
			args = map[string]any{"text": t.FuncCall.Arguments}
		}
		parts = append(parts, genai.NewPartFromFunctionCall(t.FuncCall.Name, args))
	case *genx.ToolResult:
		role = genai.RoleUser
		var result map[string]any
		if err := json.Unmarshal([]byte(t.Result), &result); err != nil {
			result = map[string]any{"text": t.Result}
		}
		parts = append(parts, genai.NewPartFromFunctionResponse(t.ID, result))
	default:
		return nil, fmt.Errorf("generators/gemini: unexpected payload %T", msg.Payload)
	}
	if n := len(contents); n > 0 && contents[n-1].Role == role {
		contents[n-1].Parts = append(contents[n-1].Parts, parts...)
		return contents, nil
	}
	return append(contents, &genai.Content{Role: role, Parts: parts}), nil
}

func (g *Gemini) convModelContext(mctx genx.ModelContext, mp *genx.ModelParams) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdOff},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdOff},
		},
	}
	var prompts []*genai.Part
	for p := range mctx.Prompts() {
		prompts = append(prompts, genai.NewPartFromText(p.Text))
	}
	if len(prompts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: prompts}
	}
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(mp.MaxTokens)
		}
		if mp.Temperature > 0 {
			cfg.Temperature = genai.Ptr(mp.Temperature)
		}
		if mp.TopP > 0 {
			cfg.TopP = genai.Ptr(mp.TopP)
		}
		if mp.TopK > 0 {
			cfg.TopK = genai.Ptr(mp.TopK)
		}
	}
	for t := range mctx.Tools() {
		switch t := t.(type) {
		case *genx.FuncTool:
			cfg.Tools = append(cfg.Tools, &genai.Tool{
				FunctionDeclarations: []*genai.FunctionDeclaration{{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  geminiConvSchema(t.Argument),
				}},
			})
		case *genx.SearchWebTool:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		default:
			return nil, nil, fmt.Errorf("generators/gemini: unsupported tool type %T", t)
		}
	}

	var (
		contents []*genai.Content
		err      error
	)
	for msg := range mctx.Messages() {
		if contents, err = geminiAppend(contents, msg); err != nil {
			return nil, nil, err
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("generators/gemini: no contents")
	}
	return cfg, contents, nil
}

var geminiTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"array":   genai.TypeArray,
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
}

func geminiConvSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	gs := &genai.Schema{
		Format:      s.Format,
		Description: s.Description,
		Items:       geminiConvSchema(s.Items),
		Required:    s.Required,
	}
	for _, v := range s.Enum {
		gs.Enum = append(gs.Enum, fmt.Sprint(v))
	}
	if len(s.Properties) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, prop := range s.Properties {
			gs.Properties[k] = geminiConvSchema(prop)
		}
	}
	typ := s.Type
	for _, t := range s.Types {
		if t == "null" {
			gs.Nullable = genai.Ptr(true)
		} else if typ == "" {
			typ = t
		}
	}
	gs.Type = geminiTypes[typ]
	return gs
}

func geminiConvUsage(usage *genai.GenerateContentResponseUsageMetadata) genx.Usage {
	if usage == nil {
		return genx.Usage{}
	}
	return genx.Usage{
		PromptTokenCount:        int64(usage.PromptTokenCount),
		CachedContentTokenCount: int64(usage.CachedContentTokenCount),
		GeneratedTokenCount:     int64(usage.CandidatesTokenCount),
	}
}
