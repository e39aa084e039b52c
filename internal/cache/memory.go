package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	hash      map[string]string
	blob      []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store for tests and single-instance runs.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

// WithClock swaps the time source used for expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) lookup(key string) (memoryItem, bool) {
	item, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	out := make(map[string]string, len(item.hash))
	if !ok {
		return out, nil
	}
	for k, v := range item.hash {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HSetWithTTL(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	hash := make(map[string]string, len(fields))
	for k, v := range fields {
		hash[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryItem{hash: hash, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	if !ok || item.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), item.blob...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryItem{blob: append([]byte(nil), value...), expiresAt: s.expiry(ttl)}
	return nil
}
