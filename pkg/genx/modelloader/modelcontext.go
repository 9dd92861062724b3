package modelloader

import (
	"fmt"
	"path/filepath"

	"github.com/haivivi/genxstream/pkg/genx/modelcontexts"
)

// registerModelContexts registers inline contexts as static providers and
// context files as file providers, which re-read the file on every lookup.
func (l *Loader) registerModelContexts(cfg ConfigFile) ([]string, error) {
	var names []string
	for i := range cfg.Contexts {
		c := &cfg.Contexts[i]
		if c.Name == "" {
			return nil, fmt.Errorf("model context %d missing name", i)
		}
		mctx, err := c.Build()
		if err != nil {
			return nil, fmt.Errorf("model context %q: %w", c.Name, err)
		}
		if err := l.ModelContexts.Handle(c.Name, modelcontexts.Static(mctx)); err != nil {
			return nil, fmt.Errorf("register model context %q: %w", c.Name, err)
		}
		names = append(names, c.Name)
	}
	for _, f := range cfg.Files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(cfg.dir, f)
		}
		name, err := l.ModelContexts.HandleFile(f)
		if err != nil {
			return nil, fmt.Errorf("register model context file %s: %w", f, err)
		}
		names = append(names, name)
	}
	return names, nil
}
