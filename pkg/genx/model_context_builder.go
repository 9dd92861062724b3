package genx

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"github.com/goccy/go-yaml"
)

var _ ModelContext = (*modelContext)(nil)

// ModelContextBuilder accumulates prompts, messages and tools. Consecutive
// prompts with the same name are joined, and consecutive content messages
// from the same speaker are merged into one message.
type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message
	CoTs     []string
	Tools    []Tool
	Params   *ModelParams
}

// Build snapshots the builder. Later changes to the builder do not affect
// the returned ModelContext.
func (mcb *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  slices.Clone(mcb.Prompts),
		messages: slices.Clone(mcb.Messages),
		cots:     slices.Clone(mcb.CoTs),
		tools:    slices.Clone(mcb.Tools),
		params:   mcb.Params,
	}
}

// SetCoT replaces the chain of thought. Non-string values are rendered as
// YAML.
func (mcb *ModelContextBuilder) SetCoT(cot ...any) error {
	texts := make([]string, 0, len(cot))
	for _, c := range cot {
		if s, ok := c.(string); ok {
			texts = append(texts, s)
			continue
		}
		b, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("genx: marshal cot: %w", err)
		}
		texts = append(texts, string(b))
	}
	mcb.CoTs = texts
	return nil
}

func (mcb *ModelContextBuilder) AddPrompt(prompt *Prompt) {
	if n := len(mcb.Prompts); n > 0 && mcb.Prompts[n-1].Name == prompt.Name {
		last := mcb.Prompts[n-1]
		if last.Text != "" {
			last.Text += "\n" + prompt.Text
		} else {
			last.Text = prompt.Text
		}
		return
	}
	mcb.Prompts = append(mcb.Prompts, &Prompt{Name: prompt.Name, Text: prompt.Text})
}

func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	if n := len(mcb.Messages); n > 0 {
		last := mcb.Messages[n-1]
		prev, ok1 := last.Payload.(Contents)
		next, ok2 := msg.Payload.(Contents)
		if ok1 && ok2 && last.Role == msg.Role && last.Name == msg.Name {
			last.Payload = append(prev, next...)
			return
		}
	}
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) AddTool(tool Tool) {
	mcb.Tools = append(mcb.Tools, tool)
}

// Prompt adds a prompt rendering {key: value} as YAML.
func (mcb *ModelContextBuilder) Prompt(name, key string, value any) error {
	b, err := yaml.Marshal(map[string]any{key: value})
	if err != nil {
		return fmt.Errorf("genx: marshal prompt %s: %w", key, err)
	}
	mcb.AddPrompt(&Prompt{Name: name, Text: string(b)})
	return nil
}

func (mcb *ModelContextBuilder) PromptText(name, text string) {
	mcb.AddPrompt(&Prompt{Name: name, Text: text})
}

func (mcb *ModelContextBuilder) UserText(name, text string) {
	mcb.AddMessage(&Message{Role: RoleUser, Name: name, Payload: Contents{Text(text)}})
}

func (mcb *ModelContextBuilder) UserBlob(name, mimeType string, data []byte) {
	mcb.AddMessage(&Message{Role: RoleUser, Name: name, Payload: Contents{&Blob{MIMEType: mimeType, Data: data}}})
}

func (mcb *ModelContextBuilder) ModelText(name, text string) {
	mcb.AddMessage(&Message{Role: RoleModel, Name: name, Payload: Contents{Text(text)}})
}

func (mcb *ModelContextBuilder) ModelBlob(name, mimeType string, data []byte) {
	mcb.AddMessage(&Message{Role: RoleModel, Name: name, Payload: Contents{&Blob{MIMEType: mimeType, Data: data}}})
}

// AddChunk appends the content of chunk as a message. Control-only chunks
// are ignored; tool calls become tool-call messages.
func (mcb *ModelContextBuilder) AddChunk(chunk *MessageChunk) {
	if chunk == nil {
		return
	}
	if chunk.ToolCall != nil {
		mcb.Messages = append(mcb.Messages, &Message{Role: chunk.Role, Name: chunk.Name, Payload: chunk.ToolCall})
		return
	}
	switch p := chunk.Part.(type) {
	case Text:
		if p == "" {
			return
		}
	case *Blob:
		if p == nil || len(p.Data) == 0 {
			return
		}
	default:
		return
	}
	mcb.AddMessage(&Message{Role: chunk.Role, Name: chunk.Name, Payload: Contents{chunk.Part}})
}

// InvokeTool runs call and records both the call and its result.
func (mcb *ModelContextBuilder) InvokeTool(ctx context.Context, call *ToolCall) error {
	res, err := call.Invoke(ctx)
	if err != nil {
		return err
	}
	return mcb.AddToolCallResult(call.FuncCall.Name, call.FuncCall.Arguments, res)
}

// AddToolCallResult records a completed call of toolName. Non-string
// arguments and results are rendered as JSON.
func (mcb *ModelContextBuilder) AddToolCallResult(toolName string, callArg, callResult any) error {
	arg, err := jsonText(callArg)
	if err != nil {
		return fmt.Errorf("genx: marshal tool call argument: %w", err)
	}
	res, err := jsonText(callResult)
	if err != nil {
		return fmt.Errorf("genx: marshal tool call result: %w", err)
	}
	id := newCallID()
	mcb.Messages = append(mcb.Messages,
		&Message{Role: RoleModel, Payload: &ToolCall{ID: id, FuncCall: &FuncCall{Name: toolName, Arguments: arg}}},
		&Message{Role: RoleTool, Payload: &ToolResult{ID: id, Result: res}},
	)
	return nil
}

func jsonText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message
	cots     []string
	tools    []Tool
	params   *ModelParams
}

func (mctx *modelContext) Prompts() iter.Seq[*Prompt]   { return slices.Values(mctx.prompts) }
func (mctx *modelContext) Messages() iter.Seq[*Message] { return slices.Values(mctx.messages) }
func (mctx *modelContext) CoTs() iter.Seq[string]       { return slices.Values(mctx.cots) }
func (mctx *modelContext) Tools() iter.Seq[Tool]        { return slices.Values(mctx.tools) }
func (mctx *modelContext) Params() *ModelParams         { return mctx.params }
