package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/genxstream/pkg/genx"
)

// Theme defines the color scheme for chunk rendering.
type Theme struct {
	Primary lipgloss.Color // role labels
	Dim     lipgloss.Color // control markers and blobs
	Tool    lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Tool:    lipgloss.Color("#d2a8ff"),
	Error:   lipgloss.Color("#ff7b72"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Label  lipgloss.Style
	Marker lipgloss.Style
	Tool   lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles creates styles from a theme for output written through r.
func NewStyles(r *lipgloss.Renderer, t Theme) Styles {
	return Styles{
		Label:  r.NewStyle().Bold(true).Foreground(t.Primary),
		Marker: r.NewStyle().Foreground(t.Dim),
		Tool:   r.NewStyle().Foreground(t.Tool),
		Error:  r.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// Renderer writes a chunk stream as a transcript: one line per speaker
// turn, text inline, everything else as bracketed markers. Colors are only
// emitted when w is a terminal.
type Renderer struct {
	w      io.Writer
	styles Styles

	label  string
	inLine bool
}

// NewRenderer returns a Renderer writing to w with the default theme.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, styles: NewStyles(lipgloss.NewRenderer(w), DefaultTheme)}
}

// NewRendererWithStyles returns a Renderer writing to w with styles.
func NewRendererWithStyles(w io.Writer, styles Styles) *Renderer {
	return &Renderer{w: w, styles: styles}
}

func chunkLabel(c *genx.MessageChunk) string {
	if c.Name == "" {
		return string(c.Role)
	}
	return string(c.Role) + "/" + c.Name
}

func (r *Renderer) header(c *genx.MessageChunk) error {
	label := chunkLabel(c)
	if r.inLine && label == r.label {
		return nil
	}
	if r.inLine {
		if _, err := io.WriteString(r.w, "\n"); err != nil {
			return err
		}
	}
	r.label, r.inLine = label, true
	_, err := io.WriteString(r.w, r.styles.Label.Render(label+":")+" ")
	return err
}

// Chunk renders one chunk.
func (r *Renderer) Chunk(c *genx.MessageChunk) error {
	switch {
	case c.IsBeginOfStream():
		return r.marker(r.styles.Marker, "[bos "+c.Ctrl.StreamID+"]")
	case c.IsEndOfStream():
		if err := r.marker(r.styles.Marker, "[eos "+c.MIMEType()+"]"); err != nil {
			return err
		}
		return r.newline()
	}
	if err := r.header(c); err != nil {
		return err
	}
	if c.ToolCall != nil && c.ToolCall.FuncCall != nil {
		fc := c.ToolCall.FuncCall
		if _, err := io.WriteString(r.w, r.styles.Tool.Render(fmt.Sprintf("[tool %s %s]", fc.Name, fc.Arguments))); err != nil {
			return err
		}
	}
	switch p := c.Part.(type) {
	case genx.Text:
		_, err := io.WriteString(r.w, string(p))
		return err
	case *genx.Blob:
		_, err := io.WriteString(r.w, r.styles.Marker.Render(fmt.Sprintf("[%s %s]", p.MIMEType, FormatBytes(int64(len(p.Data))))))
		return err
	}
	return nil
}

func (r *Renderer) marker(style lipgloss.Style, s string) error {
	if !r.inLine {
		r.label, r.inLine = "", true
	}
	_, err := io.WriteString(r.w, style.Render(s))
	return err
}

func (r *Renderer) newline() error {
	if !r.inLine {
		return nil
	}
	r.inLine = false
	_, err := io.WriteString(r.w, "\n")
	return err
}

// End renders the terminal state of a stream given the error its last Next
// returned.
func (r *Renderer) End(err error) error {
	if nerr := r.newline(); nerr != nil {
		return nerr
	}
	res := genx.ResultOf(err)
	var line string
	switch res.Status {
	case genx.StatusDone, genx.StatusTruncated:
		line = r.styles.Marker.Render("-- " + res.Status.String())
	case genx.StatusBlocked:
		line = r.styles.Error.Render("-- blocked: " + res.Refusal)
	default:
		var st *genx.State
		if errors.As(err, &st) && st.Cause() != nil {
			err = st.Cause()
		}
		line = r.styles.Error.Render(fmt.Sprintf("-- error: %v", err))
	}
	_, werr := io.WriteString(r.w, line+"\n")
	return werr
}
