package modelloader

import (
	"context"
	"fmt"
	"net/http"

	"github.com/haivivi/genxstream/pkg/genx/transformers"
)

// registerRealtime registers one WebSocket realtime transformer per model
// entry. The entry's model is what the remote side is asked for; it
// defaults to the registered name.
func (l *Loader) registerRealtime(cfg ConfigFile) ([]string, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required for ws realtime")
	}
	var header http.Header
	if cfg.APIKey != "" {
		header = http.Header{"Authorization": {"Bearer " + cfg.APIKey}}
	}
	dialer := transformers.NewWSDialer(cfg.BaseURL, header)

	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("realtime model entry missing name")
		}
		model := m.Model
		if model == "" {
			model = m.Name
		}

		var opts []transformers.RealtimeOption
		if m.JitterDepth > 0 {
			opts = append(opts, transformers.WithRealtimeJitter(m.JitterDepth))
		}
		if m.BufferSize > 0 {
			opts = append(opts, transformers.WithRealtimeBufferSize(m.BufferSize))
		}
		rt := transformers.NewRealtime(transformers.DialerFunc(func(ctx context.Context, _ string) (transformers.RealtimeSession, error) {
			return dialer.Dial(ctx, model)
		}), opts...)
		if err := l.Transformers.Handle(m.Name, rt); err != nil {
			return nil, fmt.Errorf("register realtime %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}
