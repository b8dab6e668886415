// Package idempotency remembers which job an Idempotency-Key started so a
// resubmitted analysis returns the original job instead of a new one.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a key stays bound to its first request.
const DefaultTTL = time.Hour

// ErrConflict is returned when a key is reused with a different request.
var ErrConflict = errors.New("idempotency key already used with a different payload")

// Entry binds a key to the request that first used it.
type Entry struct {
	RequestHash string `json:"requestHash"`
	JobID       string `json:"jobId"`
}

// Store claims keys atomically. Claim stores entry when key is free and
// reports claimed=true; otherwise it returns the live entry untouched.
type Store interface {
	Claim(ctx context.Context, key string, entry Entry, ttl time.Duration) (existing Entry, claimed bool, err error)
	Release(ctx context.Context, key string) error
}

// Resolve claims key for entry. It returns the entry that owns the key and
// whether it is a replay of an earlier request. A live key with another
// request hash yields ErrConflict.
func Resolve(ctx context.Context, store Store, key string, entry Entry, ttl time.Duration) (Entry, bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	existing, claimed, err := store.Claim(ctx, key, entry, ttl)
	if err != nil {
		return Entry{}, false, err
	}
	if claimed {
		return entry, false, nil
	}
	if existing.RequestHash != entry.RequestHash {
		return Entry{}, false, ErrConflict
	}
	return existing, true, nil
}
