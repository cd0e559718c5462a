package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/config"
)

const keyPrefix = "research:session:"

// RedisStore keeps sessions as JSON documents with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.TTL, logger), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (r *RedisStore) key(threadID string) string {
	return keyPrefix + threadID
}

func (r *RedisStore) Get(ctx context.Context, threadID string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ThreadID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	r.logger.Debug("Saved session", zap.String("thread_id", s.ThreadID), zap.Int("messages", len(s.Messages)))
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := r.client.Del(ctx, r.key(threadID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
