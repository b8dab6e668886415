package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseResolve(t *testing.T, store Store, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	first := Entry{RequestHash: "hash-a", JobID: "job-1"}

	got, replay, err := Resolve(ctx, store, "k1", first, time.Hour)
	if err != nil || replay || got.JobID != "job-1" {
		t.Fatalf("first claim: got=%+v replay=%v err=%v", got, replay, err)
	}

	got, replay, err = Resolve(ctx, store, "k1", Entry{RequestHash: "hash-a", JobID: "job-2"}, time.Hour)
	if err != nil || !replay || got.JobID != "job-1" {
		t.Fatalf("replay: got=%+v replay=%v err=%v", got, replay, err)
	}

	if _, _, err := Resolve(ctx, store, "k1", Entry{RequestHash: "hash-b", JobID: "job-3"}, time.Hour); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, replay, err := Resolve(ctx, store, "k2", Entry{RequestHash: "hash-b", JobID: "job-4"}, time.Hour); err != nil || replay {
		t.Fatalf("other key: replay=%v err=%v", replay, err)
	}

	expire(time.Hour + time.Second)
	got, replay, err = Resolve(ctx, store, "k1", Entry{RequestHash: "hash-b", JobID: "job-5"}, time.Hour)
	if err != nil || replay || got.JobID != "job-5" {
		t.Fatalf("after expiry: got=%+v replay=%v err=%v", got, replay, err)
	}

	if err := store.Release(ctx, "k1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, replay, err := Resolve(ctx, store, "k1", Entry{RequestHash: "hash-c", JobID: "job-6"}, time.Hour); err != nil || replay {
		t.Fatalf("after release: replay=%v err=%v", replay, err)
	}
}

func TestMemoryStoreResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }
	exerciseResolve(t, store, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisStoreResolve(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseResolve(t, NewRedisStore(client), mr.FastForward)

	if ttl := mr.TTL(defaultPrefix + "k1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestResolveDefaultsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if _, _, err := Resolve(context.Background(), NewRedisStore(client), "k", Entry{RequestHash: "h", JobID: "j"}, 0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ttl := mr.TTL(defaultPrefix + "k"); ttl != DefaultTTL {
		t.Fatalf("ttl = %v, want %v", ttl, DefaultTTL)
	}
}
