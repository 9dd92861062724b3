package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func printed(t *testing.T, format OutputFormat, v any) string {
	t.Helper()
	var buf bytes.Buffer
	p := &Printer{W: &buf, Format: format}
	if err := p.Print(v); err != nil {
		t.Fatalf("Print(%v) error: %v", v, err)
	}
	return buf.String()
}

func TestPrinter_JSON(t *testing.T) {
	out := printed(t, FormatJSON, map[string]any{"name": "test", "value": 123})

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if result["name"] != "test" {
		t.Errorf("name = %v, want %q", result["name"], "test")
	}
	if !strings.Contains(out, "\n  \"name\"") {
		t.Errorf("JSON output not indented: %s", out)
	}
}

func TestPrinter_YAML(t *testing.T) {
	for _, format := range []OutputFormat{FormatYAML, ""} {
		if out := printed(t, format, map[string]string{"key": "value"}); !strings.Contains(out, "key: value") {
			t.Errorf("format %q output = %s", format, out)
		}
	}
}

func TestPrinter_YAMLUsesJSONTags(t *testing.T) {
	type report struct {
		DroppedLate int `json:"dropped_late"`
	}
	if out := printed(t, FormatYAML, report{DroppedLate: 2}); out != "dropped_late: 2\n" {
		t.Errorf("output = %q", out)
	}
}

func TestPrinter_Raw(t *testing.T) {
	tests := []struct {
		data any
		want string
	}{
		{[]byte("raw bytes"), "raw bytes"},
		{"raw string", "raw string"},
		{map[string]int{"count": 1}, "count: 1\n"},
	}
	for _, tt := range tests {
		if got := printed(t, FormatRaw, tt.data); got != tt.want {
			t.Errorf("Print(%v) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestPrinter_UnsupportedFormat(t *testing.T) {
	p := &Printer{W: &bytes.Buffer{}, Format: "table"}
	if err := p.Print("x"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := NewPrinter(&bytes.Buffer{}, "table"); err == nil {
		t.Error("NewPrinter accepted an unknown format")
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"raw", FormatRaw, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
