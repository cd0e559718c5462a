package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process, expiring idle ones after the TTL.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (m *MemoryStore) Get(_ context.Context, threadID string) (*Session, error) {
	if x, found := m.cache.Get(threadID); found {
		return x.(*Session).Clone(), nil
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.cache.Set(s.ThreadID, s.Clone(), cache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.cache.Delete(threadID)
	return nil
}
