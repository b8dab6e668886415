package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conformity-backend/internal/shared/metrics"
	"conformity-backend/internal/shared/telemetry"
)

// DefaultMaxJitter bounds the random delay added to every backoff.
const DefaultMaxJitter = 250 * time.Millisecond

var tracer = otel.Tracer("conformity-backend/internal/llm")

// RetryPolicy bounds the attempts made against one provider.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

// Backoff returns the delay before the attempt following failed attempt n
// (zero-based), without jitter.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retrier runs a provider call under a RetryPolicy. Sleep, Jitter and Now are
// swappable for tests.
type Retrier struct {
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
	Now    func() time.Time
}

// Do calls fn until it succeeds, a non-retryable class is seen, or attempts
// run out. The returned error is a *ClassifiedError carrying the final class.
func (r Retrier) Do(ctx context.Context, provider string, policy RetryPolicy, fn func(context.Context) (string, error)) (string, []Attempt, error) {
	r = r.withDefaults()
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempts := make([]Attempt, 0, maxAttempts)
	for n := 0; ; n++ {
		out, attempt, err := r.attempt(ctx, provider, n, fn)
		attempts = append(attempts, attempt)
		if err == nil {
			return out, attempts, nil
		}

		class := attempt.Class
		if !shouldRetry(class, n, maxAttempts) {
			return "", attempts, NewClassifiedError(class, err)
		}

		jitterMax := policy.MaxJitter
		if jitterMax <= 0 {
			jitterMax = DefaultMaxJitter
		}
		delay := policy.Backoff(n) + r.Jitter(jitterMax)
		if err := r.Sleep(ctx, delay); err != nil {
			return "", attempts, NewClassifiedError(class, err)
		}
	}
}

// WithRetry runs fn with the default sleeper and jitter source.
func WithRetry(ctx context.Context, provider string, policy RetryPolicy, fn func(context.Context) (string, error)) (string, []Attempt, error) {
	return Retrier{}.Do(ctx, provider, policy, fn)
}

func (r Retrier) attempt(ctx context.Context, provider string, n int, fn func(context.Context) (string, error)) (string, Attempt, error) {
	ctx, span := tracer.Start(ctx, "llm.attempt", trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.Int("llm.attempt", n),
	))
	defer span.End()

	started := r.Now()
	out, err := fn(ctx)
	attempt := Attempt{
		Provider:  provider,
		Number:    n,
		StartedAt: started,
		Duration:  r.Now().Sub(started),
	}

	fields := map[string]any{
		"provider":    provider,
		"attempt":     n,
		"duration_ms": attempt.Duration.Milliseconds(),
	}
	if err != nil {
		attempt.Class = Classify(err)
		fields["error_class"] = string(attempt.Class)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(attempt.Class))
		metrics.IncProviderAttempt(provider, string(attempt.Class))
		telemetry.Warn("llm.attempt", fields)
		return "", attempt, err
	}
	metrics.IncProviderAttempt(provider, "ok")
	telemetry.Info("llm.attempt", fields)
	return out, attempt, nil
}

func shouldRetry(class ErrorClass, n, maxAttempts int) bool {
	if n+1 >= maxAttempts {
		return false
	}
	if class == ClassUnknown {
		return n == 0
	}
	return IsRetryable(class)
}

func (r Retrier) withDefaults() Retrier {
	if r.Sleep == nil {
		r.Sleep = sleepContext
	}
	if r.Jitter == nil {
		r.Jitter = randomJitter
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
