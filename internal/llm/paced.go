package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Paced spaces calls to a provider so a burst of jobs does not trip the
// vendor's own per-minute quota.
type Paced struct {
	Provider
	limiter *rate.Limiter
}

// NewPaced wraps p with a requests-per-minute limiter. rpm <= 0 returns p
// unchanged.
func NewPaced(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	return &Paced{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Call waits for a token, then delegates.
func (p *Paced) Call(ctx context.Context, prompt Prompt, timeout time.Duration) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "pacing wait: " + err.Error(), Err: ErrTimeout}
	}
	return p.Provider.Call(ctx, prompt, timeout)
}
