package modelloader

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/genxstream/pkg/genx/generators"
)

func (l *Loader) registerOpenAI(cfg ConfigFile) ([]string, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api_key is required for openai", ErrMissingCredentials)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if l.Verbose {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport: &verboseTransport{base: http.DefaultTransport},
		}))
	}
	client := openai.NewClient(opts...)

	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("model entry missing name or model")
		}
		if err := l.Generators.Handle(m.Name, &generators.OpenAI{
			Client:            &client,
			Model:             m.Model,
			GenerateParams:    m.GenerateParams,
			InvokeParams:      m.InvokeParams,
			SupportJSONOutput: m.SupportJSONOutput,
			SupportToolCalls:  m.SupportToolCalls,
			SupportTextOnly:   m.SupportTextOnly,
			UseSystemRole:     m.UseSystemRole,
			ExtraFields:       m.ExtraFields,
		}); err != nil {
			return nil, fmt.Errorf("register generator %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}

func (l *Loader) registerGemini(cfg ConfigFile) ([]string, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api_key is required for gemini", ErrMissingCredentials)
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if l.Verbose {
		cc.HTTPClient = &http.Client{Transport: &verboseTransport{base: http.DefaultTransport}}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("model entry missing name or model")
		}
		if err := l.Generators.Handle(m.Name, &generators.Gemini{
			Client:         client,
			Model:          m.Model,
			GenerateParams: m.GenerateParams,
			InvokeParams:   m.InvokeParams,
		}); err != nil {
			return nil, fmt.Errorf("register generator %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}
