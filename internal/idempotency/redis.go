package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "idem:"

// RedisStore keeps one JSON value per key with a native TTL.
type RedisStore struct {
	Client redis.Cmdable
	Prefix string
}

// NewRedisStore returns a store using client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{Client: client, Prefix: defaultPrefix}
}

// Claim implements Store with SET NX. A key that expires between the failed
// SET and the GET is claimed on a second round.
func (s *RedisStore) Claim(ctx context.Context, key string, entry Entry, ttl time.Duration) (Entry, bool, error) {
	value, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, false, fmt.Errorf("encode idempotency entry: %w", err)
	}
	for range 2 {
		ok, err := s.Client.SetNX(ctx, s.Prefix+key, value, ttl).Result()
		if err != nil {
			return Entry{}, false, fmt.Errorf("redis idempotency claim: %w", err)
		}
		if ok {
			return entry, true, nil
		}
		raw, err := s.Client.Get(ctx, s.Prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Entry{}, false, fmt.Errorf("redis idempotency get: %w", err)
		}
		var existing Entry
		if err := json.Unmarshal(raw, &existing); err != nil {
			return Entry{}, false, fmt.Errorf("decode idempotency entry: %w", err)
		}
		return existing, false, nil
	}
	return Entry{}, false, errors.New("redis idempotency claim: key kept expiring")
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, s.Prefix+key).Err(); err != nil {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}
