package search

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/config"
)

// NewFromConfig builds the keyword search provider named by cfg.Provider, paced by
// cfg.RequestsPerSecond.
func NewFromConfig(cfg config.SearchConfig, logger *zap.Logger) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "tavily", "":
		if cfg.TavilyAPIKey == "" {
			return nil, fmt.Errorf("tavily: %w", ErrMissingAPIKey)
		}
		p = NewTavily(cfg.TavilyAPIKey, cfg.TavilyDepth, cfg.Timeout, logger)
	case "brave":
		if cfg.BraveAPIKey == "" {
			return nil, fmt.Errorf("brave: %w", ErrMissingAPIKey)
		}
		p = NewBrave(cfg.BraveAPIKey, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported search provider: %q", cfg.Provider)
	}
	return NewRateLimited(p, cfg.RequestsPerSecond), nil
}
