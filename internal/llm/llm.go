// Package llm drives external language-model providers: a single-attempt
// Provider contract, error classification, retry with backoff and the
// primary/secondary fallback orchestrator.
package llm

import (
	"context"
	"time"
)

// Prompt is the rendered system and user text sent to a provider.
type Prompt struct {
	System string
	User   string
}

// Provider makes one completion call. Implementations must honor timeout as a
// hard deadline and surface it as ErrTimeout.
type Provider interface {
	Name() string
	Call(ctx context.Context, prompt Prompt, timeout time.Duration) (string, error)
}

// Attempt records one provider call. It is logged and counted, never stored.
type Attempt struct {
	Provider  string
	Number    int
	StartedAt time.Time
	Duration  time.Duration
	Class     ErrorClass
}

// CallWithTimeout runs fn under a derived deadline and converts a deadline hit
// into a ProviderError wrapping ErrTimeout.
func CallWithTimeout(ctx context.Context, provider string, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := fn(callCtx)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", &ProviderError{Provider: provider, Message: "request timed out", Err: ErrTimeout}
		}
		return "", err
	}
	return out, nil
}
