package modelloader

import (
	"fmt"

	"github.com/haivivi/genxstream/pkg/genx/profilers"
	"github.com/haivivi/genxstream/pkg/genx/segmentors"
)

func (l *Loader) registerSegmentors(cfg ConfigFile) ([]string, error) {
	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("segmentor entry missing name")
		}
		if m.Model == "" {
			return nil, fmt.Errorf("segmentor entry %q missing model (generator pattern)", m.Name)
		}

		seg := segmentors.NewGenXWithMux(segmentors.Config{
			Generator:     m.Model,
			PromptVersion: m.PromptVersion,
		}, l.Generators)
		if err := l.Segmentors.Handle(m.Name, seg); err != nil {
			return nil, fmt.Errorf("register segmentor %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}

func (l *Loader) registerProfilers(cfg ConfigFile) ([]string, error) {
	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("profiler entry missing name")
		}
		if m.Model == "" {
			return nil, fmt.Errorf("profiler entry %q missing model (generator pattern)", m.Name)
		}

		prof := profilers.NewGenXWithMux(profilers.Config{
			Generator:     m.Model,
			PromptVersion: m.PromptVersion,
		}, l.Generators)
		if err := l.Profilers.Handle(m.Name, prof); err != nil {
			return nil, fmt.Errorf("register profiler %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}
