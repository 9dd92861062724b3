package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how Printer encodes command results.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"

	// FormatRaw writes strings and byte slices untouched and falls back to
	// YAML for everything else.
	FormatRaw OutputFormat = "raw"
)

// ParseOutputFormat validates a --output flag value. The empty string
// selects YAML.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "":
		return FormatYAML, nil
	case FormatYAML, FormatJSON, FormatRaw:
		return f, nil
	default:
		return "", fmt.Errorf("cli: unsupported output format %q", s)
	}
}

// Printer encodes command results onto W.
type Printer struct {
	W      io.Writer
	Format OutputFormat
}

// NewPrinter parses format and returns a Printer writing to w.
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	f, err := ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}
	return &Printer{W: w, Format: f}, nil
}

// Print encodes v in the printer's format. JSON is indented by two spaces.
func (p *Printer) Print(v any) error {
	switch p.Format {
	case FormatJSON:
		enc := json.NewEncoder(p.W)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML, "":
		return p.yaml(v)
	case FormatRaw:
		switch raw := v.(type) {
		case []byte:
			_, err := p.W.Write(raw)
			return err
		case string:
			_, err := io.WriteString(p.W, raw)
			return err
		}
		return p.yaml(v)
	default:
		return fmt.Errorf("cli: unsupported output format %q", p.Format)
	}
}

func (p *Printer) yaml(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("cli: encode yaml: %w", err)
	}
	_, err = p.W.Write(data)
	return err
}
