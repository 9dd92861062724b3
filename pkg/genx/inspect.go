package genx

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

func quoted(s string) string {
	return strings.Trim(fmt.Sprintf("%q", s), `"`)
}

// InspectTool renders tool as a short markdown section.
func InspectTool(tool Tool) string {
	switch t := tool.(type) {
	case *FuncTool:
		return fmt.Sprintf("### %s\n%s", quoted(t.Name), t.Description)
	case *SearchWebTool:
		return "### SearchWebTool"
	}
	return ""
}

// InspectMessage renders msg for logs. Blob data is summarized by size.
func InspectMessage(msg *Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n", msg.Role)
	if msg.Name != "" {
		fmt.Fprintln(&sb, quoted(msg.Name))
	}
	switch p := msg.Payload.(type) {
	case Contents:
		for _, part := range p {
			inspectPart(&sb, part)
		}
	case *ToolCall:
		fmt.Fprintf(&sb, "[%s]\n", p.ID)
		if p.FuncCall != nil {
			fmt.Fprintf(&sb, "%s(%s)\n", quoted(p.FuncCall.Name), p.FuncCall.Arguments)
		}
	case *ToolResult:
		fmt.Fprintf(&sb, "[%s]\n", p.ID)
		fmt.Fprintln(&sb, p.Result)
	}
	return sb.String()
}

func inspectPart(sb *strings.Builder, part Part) {
	switch pt := part.(type) {
	case Text:
		fmt.Fprintln(sb, pt)
	case *Blob:
		if pt != nil {
			fmt.Fprintf(sb, "%s [%d]\n", pt.MIMEType, len(pt.Data))
		}
	case nil:
	default:
		fmt.Fprintf(sb, "[%T]\n", part)
	}
}

// InspectChunk renders one chunk on a single line, e.g.
//
//	model/assistant text/plain "hello" eos
func InspectChunk(chunk *MessageChunk) string {
	if chunk == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(chunk.Role.String())
	if chunk.Name != "" {
		sb.WriteString("/")
		sb.WriteString(quoted(chunk.Name))
	}
	switch p := chunk.Part.(type) {
	case Text:
		fmt.Fprintf(&sb, " text/plain %q", string(p))
	case *Blob:
		if p != nil {
			fmt.Fprintf(&sb, " %s [%d]", p.MIMEType, len(p.Data))
		}
	}
	if tc := chunk.ToolCall; tc != nil && tc.FuncCall != nil {
		fmt.Fprintf(&sb, " call[%s] %s(%s)", tc.ID, quoted(tc.FuncCall.Name), tc.FuncCall.Arguments)
	}
	if c := chunk.Ctrl; c != nil {
		if c.BeginOfStream {
			fmt.Fprintf(&sb, " bos(%s)", c.StreamID)
		}
		if c.EndOfStream {
			sb.WriteString(" eos")
		}
		if c.Label != "" {
			fmt.Fprintf(&sb, " label=%s", quoted(c.Label))
		}
		if c.Timestamp != 0 {
			fmt.Fprintf(&sb, " @%d", c.Timestamp)
		}
	}
	return sb.String()
}

// InspectModelContext renders mctx as markdown: prompts, chain of thought,
// tools, then messages in order.
func InspectModelContext(mctx ModelContext) (string, error) {
	var sb strings.Builder
	if p := mctx.Params(); p != nil {
		b, err := yaml.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("genx: marshal params: %w", err)
		}
		sb.WriteString("## Params\n")
		sb.Write(b)
		sb.WriteString("\n")
	}
	first := true
	for p := range mctx.Prompts() {
		if first {
			sb.WriteString("## Prompts\n")
			first = false
		}
		if p.Name != "" {
			fmt.Fprintf(&sb, "### %s\n", quoted(p.Name))
		}
		fmt.Fprintln(&sb, strings.Trim(p.Text, "\n"))
	}
	first = true
	for cot := range mctx.CoTs() {
		if first {
			sb.WriteString("## CoT\n")
			first = false
		}
		fmt.Fprintln(&sb, strings.Trim(cot, "\n"))
	}
	first = true
	for tool := range mctx.Tools() {
		if first {
			sb.WriteString("## Tools\n")
			first = false
		}
		fmt.Fprintln(&sb, InspectTool(tool))
	}
	first = true
	for msg := range mctx.Messages() {
		if first {
			sb.WriteString("## Messages\n")
			first = false
		}
		sb.WriteString(InspectMessage(msg))
	}
	return sb.String(), nil
}
