package llm

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/config"
)

// NewFromConfig returns the provider for cfg.Type.
func NewFromConfig(cfg config.ModelConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case config.ModelLocal:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.LocalModel,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		}, logger), nil
	case config.ModelHosted:
		if cfg.GoogleAPIKey == "" {
			return nil, errors.New("hosted model requires a Google API key")
		}
		return newGemini(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported model type: %q", cfg.Type)
	}
}

// NewGroundedFromConfig returns the Gemini grounded-search generator. It needs a Google API
// key regardless of the model type used for the other stages.
func NewGroundedFromConfig(cfg config.ModelConfig, logger *zap.Logger) (GroundedGenerator, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, errors.New("grounded search requires a Google API key")
	}
	return newGemini(cfg, logger), nil
}

func newGemini(cfg config.ModelConfig, logger *zap.Logger) *GeminiProvider {
	return NewGeminiProvider(GeminiConfig{
		APIKey:     cfg.GoogleAPIKey,
		Model:      cfg.QueryGeneratorModel,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.Timeout,
	}, logger)
}
