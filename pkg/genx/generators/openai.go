package generators

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/haivivi/genxstream/pkg/genx"
)

var _ genx.Generator = (*OpenAI)(nil)

const (
	oaiFinishStop          = "stop"
	oaiFinishToolCalls     = "tool_calls"
	oaiFinishLength        = "length"
	oaiFinishFunctionCall  = "function_call"
	oaiFinishContentFilter = "content_filter"

	oaiMaxTextContentLength = 1 << 20
)

// OpenAI is a generator backed by an OpenAI-compatible chat completions API.
type OpenAI struct {
	Client *openai.Client `json:"-"`

	Model string `json:"model"`

	GenerateParams *genx.ModelParams `json:"generate_params,omitzero"`
	InvokeParams   *genx.ModelParams `json:"invoke_params,omitzero"`

	SupportJSONOutput  bool `json:"support_json_output,omitzero"`
	SupportToolCalls   bool `json:"support_tool_calls,omitzero"`
	SupportTextOnly    bool `json:"support_text_only,omitzero"`
	UseSystemRole      bool `json:"use_system_role,omitzero"`
	InvokeWithToolName bool `json:"invoke_with_tool_name,omitzero"`

	ExtraFields map[string]any `json:"extra_fields,omitzero"`

	// SchemaFormatter rewrites tool schemas before they are sent. The
	// default is FormatOpenAISchema.
	SchemaFormatter func(*jsonschema.Schema) *jsonschema.Schema `json:"-"`
}

func (g *OpenAI) Invoke(ctx context.Context, _ string, mctx genx.ModelContext, fn *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	switch {
	case g.SupportJSONOutput:
		return g.invokeJSONOutput(ctx, mctx, fn)
	case g.SupportToolCalls:
		return g.invokeToolCalls(ctx, mctx, fn)
	default:
		return genx.Usage{}, nil, errors.New("generators/openai: json output or tool calls are required")
	}
}

// GenerateStream sends the request and returns once the response starts.
// Chunks are pushed with back-pressure; closing the returned Stream aborts
// the HTTP response.
func (g *OpenAI) GenerateStream(ctx context.Context, _ string, mctx genx.ModelContext) (genx.Stream, error) {
	params, err := g.chatCompletion(mctx, g.GenerateParams)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: param.NewOpt(true)}

	ctx, cancel := context.WithCancel(ctx)
	stream := g.Client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("generators/openai: %w", err)
	}
	sb := genx.NewStreamBuilder(mctx, 32)
	out := sb.Stream()
	go func() {
		defer cancel()
		defer stream.Close()
		if err := oaiPull(ctx, sb, stream); err != nil {
			sb.Abort(err)
		}
	}()
	return out, nil
}

func (g *OpenAI) invokeJSONOutput(ctx context.Context, mctx genx.ModelContext, fn *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	params, err := g.chatCompletion(mctx, g.InvokeParams)
	if err != nil {
		return genx.Usage{}, nil, err
	}
	// A json_schema response format conflicts with tools.
	params.Tools = nil
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        fn.Name,
				Description: param.NewOpt(fn.Description),
				Schema:      g.schema(fn.Argument),
				Strict:      param.NewOpt(true),
			},
		},
	}
	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return genx.Usage{}, nil, fmt.Errorf("generators/openai: %w", err)
	}
	usage := oaiConvUsage(&resp.Usage)
	choice, err := oaiFirstChoice(resp, usage)
	if err != nil {
		return usage, nil, err
	}
	if choice.FinishReason != oaiFinishStop {
		return usage, nil, fmt.Errorf("generators/openai: want stop, got finish reason %s", choice.FinishReason)
	}
	if choice.Message.Content == "" {
		return usage, nil, errors.New("generators/openai: no content")
	}
	return usage, fn.NewFuncCall(choice.Message.Content), nil
}

func (g *OpenAI) invokeToolCalls(ctx context.Context, mctx genx.ModelContext, fn *genx.FuncTool) (genx.Usage, *genx.FuncCall, error) {
	params, err := g.chatCompletion(mctx, g.InvokeParams)
	if err != nil {
		return genx.Usage{}, nil, err
	}
	params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        fn.Name,
			Description: param.NewOpt(fn.Description),
			Parameters:  g.funcParameters(fn.Argument),
			Strict:      param.NewOpt(true),
		},
	})
	if g.InvokeWithToolName {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: fn.Name},
			},
		}
	} else {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	}

	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return genx.Usage{}, nil, fmt.Errorf("generators/openai: %w", err)
	}
	usage := oaiConvUsage(&resp.Usage)
	choice, err := oaiFirstChoice(resp, usage)
	if err != nil {
		return usage, nil, err
	}
	if choice.FinishReason != oaiFinishToolCalls && choice.FinishReason != oaiFinishStop {
		return usage, nil, fmt.Errorf("generators/openai: want tool calls, got finish reason %s", choice.FinishReason)
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == fn.Name {
			return usage, fn.NewFuncCall(tc.Function.Arguments), nil
		}
	}
	return usage, nil, fmt.Errorf("generators/openai: no call of %s", fn.Name)
}

func oaiFirstChoice(resp *openai.ChatCompletion, usage genx.Usage) (*openai.ChatCompletionChoice, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("generators/openai: no choices")
	}
	choice := &resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, genx.Blocked(usage, choice.Message.Refusal)
	}
	return choice, nil
}

func (g *OpenAI) chatCompletion(mctx genx.ModelContext, mp *genx.ModelParams) (openai.ChatCompletionNewParams, error) {
	msgs, err := g.convModelContext(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.Model,
	}
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.FrequencyPenalty > 0 {
			params.FrequencyPenalty = param.NewOpt(float64(mp.FrequencyPenalty))
		}
		if mp.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		if mp.N > 0 {
			params.N = param.NewOpt(int64(mp.N))
		}
		if mp.Temperature > 0 {
			params.Temperature = param.NewOpt(float64(mp.Temperature))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
		if mp.PresencePenalty > 0 {
			params.PresencePenalty = param.NewOpt(float64(mp.PresencePenalty))
		}
	}
	if g.SupportToolCalls {
		for tool := range mctx.Tools() {
			ft, ok := tool.(*genx.FuncTool)
			if !ok {
				return openai.ChatCompletionNewParams{}, fmt.Errorf("generators/openai: unsupported tool type %T", tool)
			}
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        ft.Name,
					Description: param.NewOpt(ft.Description),
					Parameters:  g.funcParameters(ft.Argument),
				},
			})
		}
	}
	if len(g.ExtraFields) > 0 {
		params.SetExtraFields(g.ExtraFields)
	}
	return params, nil
}

// oaiChunkSource is the part of an SSE stream oaiPull reads.
type oaiChunkSource interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
}

// oaiPull copies a streamed completion into sb. Tool call deltas are
// assembled by index and emitted together when the choice finishes. With
// usage reporting on, the usage arrives in a trailing chunk without choices,
// so the terminal event waits for the end of the SSE stream.
func oaiPull(ctx context.Context, sb *genx.StreamBuilder, src oaiChunkSource) error {
	var (
		finish string
		usage  genx.Usage
		calls  = map[int64]*genx.ToolCall{}
		index  = int64(-1)
	)
	for src.Next() {
		chunk := src.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = oaiConvUsage(&chunk.Usage)
		}
		var sel *openai.ChatCompletionChunkChoice
		for i := range chunk.Choices {
			if index < 0 {
				index = chunk.Choices[i].Index
			}
			if chunk.Choices[i].Index == index {
				sel = &chunk.Choices[i]
				break
			}
		}
		if sel == nil {
			continue
		}
		if s := sel.Delta.Content; s != "" {
			if err := sb.Push(ctx, &genx.MessageChunk{Role: genx.RoleModel, Part: genx.Text(s)}); err != nil {
				return err
			}
		}
		for _, d := range sel.Delta.ToolCalls {
			tc, ok := calls[d.Index]
			if !ok {
				tc = &genx.ToolCall{FuncCall: &genx.FuncCall{}}
				calls[d.Index] = tc
			}
			if d.ID != "" {
				tc.ID = d.ID
			}
			tc.FuncCall.Name += d.Function.Name
			tc.FuncCall.Arguments += d.Function.Arguments
		}
		if s := sel.Delta.Refusal; s != "" {
			return sb.Blocked(usage, s)
		}
		if sel.FinishReason != "" {
			finish = sel.FinishReason
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("generators/openai: %w", err)
	}

	for _, idx := range slices.Sorted(maps.Keys(calls)) {
		tc := calls[idx]
		if err := sb.Push(ctx, &genx.MessageChunk{Role: genx.RoleModel, ToolCall: tc}); err != nil {
			return err
		}
	}
	switch finish {
	case oaiFinishStop, oaiFinishToolCalls, oaiFinishFunctionCall:
		return sb.Done(usage)
	case oaiFinishLength:
		return sb.Truncated(usage)
	case oaiFinishContentFilter:
		return sb.Blocked(usage, "content filter")
	case "":
		return sb.Unexpected(usage, errors.New("generators/openai: stream ended without finish reason"))
	default:
		return sb.Unexpected(usage, fmt.Errorf("generators/openai: unexpected finish reason %s", finish))
	}
}

func (g *OpenAI) convModelContext(mctx genx.ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for p := range mctx.Prompts() {
		out = append(out, g.convPrompt(p)...)
	}
	for msg := range mctx.Messages() {
		mp, err := g.convMessage(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, nil
}

// convPrompt splits long prompts into several instruction messages; the API
// limits the size of a single text content.
func (g *OpenAI) convPrompt(p *genx.Prompt) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for t := p.Text; len(t) > 0; {
		n := min(len(t), oaiMaxTextContentLength)
		v := t[:n]
		t = t[n:]
		if g.UseSystemRole {
			sys := &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: param.NewOpt(v)},
			}
			if p.Name != "" {
				sys.Name = param.NewOpt(p.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfSystem: sys})
			continue
		}
		dev := &openai.ChatCompletionDeveloperMessageParam{
			Content: openai.ChatCompletionDeveloperMessageParamContentUnion{OfString: param.NewOpt(v)},
		}
		if p.Name != "" {
			dev.Name = param.NewOpt(p.Name)
		}
		out = append(out, openai.ChatCompletionMessageParamUnion{OfDeveloper: dev})
	}
	return out
}

func (g *OpenAI) convMessage(msg *genx.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch t := msg.Payload.(type) {
	case genx.Contents:
		switch msg.Role {
		case genx.RoleUser:
			return g.convUserMessage(msg.Name, t)
		case genx.RoleModel:
			return g.convModelMessage(msg.Name, t)
		}
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("generators/openai: content message with role %s", msg.Role)
	case *genx.ToolCall:
		if t.FuncCall == nil {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("generators/openai: tool call %s without function", t.ID)
		}
		am := &openai.ChatCompletionAssistantMessageParam{
			ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
				ID: t.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      t.FuncCall.Name,
					Arguments: t.FuncCall.Arguments,
				},
			}},
		}
		if msg.Name != "" {
			am.Name = param.NewOpt(msg.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: am}, nil
	case *genx.ToolResult:
		return openai.ToolMessage(t.Result, t.ID), nil
	}
	return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("generators/openai: unexpected payload %T", msg.Payload)
}

func (g *OpenAI) convModelMessage(name string, contents genx.Contents) (openai.ChatCompletionMessageParamUnion, error) {
	var text bytes.Buffer
	for _, c := range contents {
		switch v := c.(type) {
		case genx.Text:
			text.WriteString(string(v))
		case *genx.Blob:
			return openai.ChatCompletionMessageParamUnion{}, errors.New("generators/openai: model message must contain text only")
		}
	}
	if text.Len() == 0 {
		return openai.ChatCompletionMessageParamUnion{}, errors.New("generators/openai: empty model message")
	}
	am := &openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(text.String())},
	}
	if name != "" {
		am.Name = param.NewOpt(name)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: am}, nil
}

// oaiAudioFormats maps blob MIME types to input_audio formats.
var oaiAudioFormats = map[string]string{
	"audio/mp3":  "mp3",
	"audio/mpeg": "mp3",
	"audio/wav":  "wav",
}

func (g *OpenAI) convUserMessage(name string, contents genx.Contents) (openai.ChatCompletionMessageParamUnion, error) {
	var (
		text  bytes.Buffer
		audio = map[string]*bytes.Buffer{}
	)
	for _, c := range contents {
		switch v := c.(type) {
		case genx.Text:
			text.WriteString(string(v))
		case *genx.Blob:
			if g.SupportTextOnly {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("generators/openai: model %s accepts text only", g.Model)
			}
			format, ok := oaiAudioFormats[v.MIMEType]
			if !ok {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("generators/openai: unsupported blob type %s", v.MIMEType)
			}
			if audio[format] == nil {
				audio[format] = &bytes.Buffer{}
			}
			audio[format].Write(v.Data)
		}
	}

	um := &openai.ChatCompletionUserMessageParam{}
	if name != "" {
		um.Name = param.NewOpt(name)
	}
	if len(audio) == 0 {
		if text.Len() == 0 {
			return openai.ChatCompletionMessageParamUnion{}, errors.New("generators/openai: empty user message")
		}
		um.Content = openai.ChatCompletionUserMessageParamContentUnion{OfString: param.NewOpt(text.String())}
		return openai.ChatCompletionMessageParamUnion{OfUser: um}, nil
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	if text.Len() > 0 {
		parts = append(parts, openai.TextContentPart(text.String()))
	}
	for _, format := range slices.Sorted(maps.Keys(audio)) {
		parts = append(parts, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   base64.StdEncoding.EncodeToString(audio[format].Bytes()),
			Format: format,
		}))
	}
	um.Content = openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts}
	return openai.ChatCompletionMessageParamUnion{OfUser: um}, nil
}

func (g *OpenAI) schema(s *jsonschema.Schema) any {
	if s == nil {
		return nil
	}
	return g.patchSchema(s)
}

func (g *OpenAI) funcParameters(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(g.patchSchema(s))
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func (g *OpenAI) patchSchema(s *jsonschema.Schema) *jsonschema.Schema {
	c := s.CloneSchemas()
	if g.SchemaFormatter != nil {
		return g.SchemaFormatter(c)
	}
	return FormatOpenAISchema(c)
}

// FormatOpenAISchema rewrites m in place for OpenAI strict structured
// output: every object forbids additional properties and lists all of its
// properties as required, with optional ones made nullable.
func FormatOpenAISchema(m *jsonschema.Schema) *jsonschema.Schema {
	if m == nil {
		return nil
	}
	// Nullable fields may come with both Type and Types set.
	if m.Type != "" && len(m.Types) > 0 {
		m.Types = append(m.Types, m.Type)
		m.Type = ""
	}
	typ := m.Type
	if typ == "" {
		for _, t := range m.Types {
			if t != "null" && t != "" {
				typ = t
				break
			}
		}
	}
	switch typ {
	case "array":
		m.Items = FormatOpenAISchema(m.Items)
	case "object":
		m.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		required := make(map[string]bool, len(m.Properties))
		for _, k := range m.Required {
			required[k] = true
		}
		for k, v := range m.Properties {
			if !required[k] {
				required[k] = true
				if v.Type != "" && !slices.Contains(v.Types, "null") {
					v.Types = []string{v.Type, "null"}
					v.Type = ""
				} else if !slices.Contains(v.Types, "null") {
					v.Types = append(v.Types, "null")
				}
			}
			m.Properties[k] = FormatOpenAISchema(v)
		}
		m.Required = slices.Sorted(maps.Keys(required))
	}
	return m
}

func oaiConvUsage(usage *openai.CompletionUsage) genx.Usage {
	return genx.Usage{
		PromptTokenCount:        usage.PromptTokens,
		CachedContentTokenCount: usage.PromptTokensDetails.CachedTokens,
		GeneratedTokenCount:     usage.CompletionTokens,
	}
}
