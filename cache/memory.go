package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryCacheSize = 4096

// MemoryStore is the in-process fallback used when no Redis address is
// configured. Results live in an expiring LRU; rate windows are tracked per
// principal with the same increment-then-expire semantics as Redis.
type MemoryStore struct {
	results *expirable.LRU[string, Entry]

	mu      sync.Mutex
	windows map[string]*rateWindow

	now func() time.Time
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryStore builds a store whose result entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		results: expirable.NewLRU[string, Entry](memoryCacheSize, nil, ttl),
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetResult(_ context.Context, key string) (*Entry, error) {
	entry, ok := s.results.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return &entry, nil
}

func (s *MemoryStore) SetResult(_ context.Context, key string, entry *Entry, _ time.Duration) error {
	// the LRU applies its construction-time TTL; per-call TTLs are a Redis
	// capability this fallback does not replicate
	s.results.Add(key, *entry)
	return nil
}

func (s *MemoryStore) IncrementRate(_ context.Context, principal string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[principal]
	if !ok || now.After(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[principal] = w
	}
	w.count++
	return w.count, nil
}

func (s *MemoryStore) Healthy(context.Context) bool { return true }

func (s *MemoryStore) Close() error { return nil }
