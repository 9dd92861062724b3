package cli

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseDir is the directory under $HOME holding genx state.
const DefaultBaseDir = ".genx"

// Paths provides access to the ~/.genx directory structure
type Paths struct {
	HomeDir string
}

// NewPaths creates a Paths rooted at the user's home directory
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns the base directory (~/.genx)
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ModelsDir returns the model config directory (~/.genx/models)
func (p *Paths) ModelsDir() string {
	return filepath.Join(p.BaseDir(), "models")
}

// RecordingsDir returns the directory for recorded streams (~/.genx/recordings)
func (p *Paths) RecordingsDir() string {
	return filepath.Join(p.BaseDir(), "recordings")
}

// RecordingPath returns a path within the recordings directory. Names with
// a directory part are returned as is.
func (p *Paths) RecordingPath(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(p.RecordingsDir(), name)
}

// EnsureRecordingsDir creates the recordings directory if it doesn't exist
func (p *Paths) EnsureRecordingsDir() error {
	return os.MkdirAll(p.RecordingsDir(), 0755)
}
