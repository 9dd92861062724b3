package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewPaths(t *testing.T) {
	paths, err := NewPaths()
	if err != nil {
		t.Fatalf("NewPaths error: %v", err)
	}
	if paths.HomeDir == "" {
		t.Error("HomeDir should not be empty")
	}
}

func TestPaths(t *testing.T) {
	home := t.TempDir()
	p := &Paths{HomeDir: home}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"BaseDir", p.BaseDir(), filepath.Join(home, ".genx")},
		{"ModelsDir", p.ModelsDir(), filepath.Join(home, ".genx", "models")},
		{"RecordingsDir", p.RecordingsDir(), filepath.Join(home, ".genx", "recordings")},
		{"RecordingPath", p.RecordingPath("a.msgpack"), filepath.Join(home, ".genx", "recordings", "a.msgpack")},
		{"RecordingPath absolute", p.RecordingPath("/tmp/a.msgpack"), "/tmp/a.msgpack"},
		{"RecordingPath relative", p.RecordingPath(filepath.Join(".", "out", "a.msgpack")), filepath.Join("out", "a.msgpack")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestPaths_EnsureRecordingsDir(t *testing.T) {
	p := &Paths{HomeDir: t.TempDir()}
	if err := p.EnsureRecordingsDir(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(p.RecordingsDir())
	if err != nil || !info.IsDir() {
		t.Errorf("recordings dir: %v, %v", info, err)
	}
}
