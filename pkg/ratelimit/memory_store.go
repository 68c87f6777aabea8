package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps counters in process memory. Only suitable when a single
// instance serves all traffic.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(2*DefaultWindow, time.Minute),
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Add(key, int64(1), ttl); err == nil {
		return 1, nil
	}
	return s.cache.IncrementInt64(key, 1)
}
