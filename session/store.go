package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/config"
)

// Store persists sessions by thread id.
type Store interface {
	Get(ctx context.Context, threadID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, threadID string) error
}

// NewFromConfig returns the store selected by cfg.Backend.
func NewFromConfig(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		return NewRedisStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported session backend: %q", cfg.Backend)
	}
}
