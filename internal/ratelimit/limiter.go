// Package ratelimit implements a sliding-window hit counter keyed by caller.
package ratelimit

import (
	"context"
	"time"

	"conformity-backend/internal/shared/metrics"
	"conformity-backend/internal/shared/telemetry"
)

// Result is the decision for one hit.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store records hits. Hit evicts timestamps older than window and records
// now only if fewer than maxHits remain.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, maxHits int) (Result, error)
}

// Limiter applies a Store and fails open when the store is unavailable.
type Limiter struct {
	Store Store
	Now   func() time.Time
}

// New returns a limiter over store.
func New(store Store) *Limiter {
	return &Limiter{Store: store}
}

// CheckAndRecord allows and records a hit iff the key has fewer than maxHits
// hits inside window.
func (l *Limiter) CheckAndRecord(ctx context.Context, key string, window time.Duration, maxHits int) Result {
	now := l.now()
	if l == nil || l.Store == nil || maxHits <= 0 || window <= 0 {
		return Result{Allowed: true, Remaining: maxHits, ResetAt: now.Add(window)}
	}

	res, err := l.Store.Hit(ctx, key, now, window, maxHits)
	if err != nil {
		metrics.IncRateLimit("fail_open")
		telemetry.Warn("security.ratelimit.fail_open", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return Result{Allowed: true, Remaining: maxHits, ResetAt: now.Add(window)}
	}
	if res.Allowed {
		metrics.IncRateLimit("allowed")
	} else {
		metrics.IncRateLimit("denied")
	}
	return res
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
