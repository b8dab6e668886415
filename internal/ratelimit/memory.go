package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps hit timestamps per key in process. Keys are locked
// independently.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*hitWindow
}

type hitWindow struct {
	mu   sync.Mutex
	hits []time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*hitWindow)}
}

// Hit implements Store.
func (s *MemoryStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, maxHits int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	w := s.window(key)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-window)
	kept := w.hits[:0]
	for _, h := range w.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	w.hits = kept

	res := Result{}
	if len(w.hits) < maxHits {
		w.hits = append(w.hits, now)
		res.Allowed = true
		res.Remaining = maxHits - len(w.hits)
	}
	res.ResetAt = now.Add(window)
	if len(w.hits) > 0 {
		res.ResetAt = w.hits[0].Add(window)
	}
	return res, nil
}

func (s *MemoryStore) window(key string) *hitWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &hitWindow{}
		s.windows[key] = w
	}
	return w
}
