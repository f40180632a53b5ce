package agentic

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultModel is the rewrite model used when configuration names none.
const DefaultModel = "gpt-4o-mini"

// ModelConfig carries provider settings for the rewrite model. An empty
// APIKey defers to OPENAI_API_KEY in the environment; an empty BaseURL uses
// the provider default, which also covers OpenAI-compatible gateways.
type ModelConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// NewModel builds the shared rewrite model client. One client serves every
// batch; calls are stateless.
func NewModel(cfg ModelConfig) (llms.Model, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}

	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create rewrite model: %w", err)
	}

	return model, nil
}
