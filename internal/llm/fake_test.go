package llm

import (
	"context"
	"sync"
	"time"
)

// scriptedProvider returns the queued errors in order, then succeeds with text.
type scriptedProvider struct {
	name string
	text string

	mu    sync.Mutex
	errs  []error
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Call(ctx context.Context, prompt Prompt, timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return "", err
	}
	return p.text, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testRetrier(rec *recordedSleeps) Retrier {
	return Retrier{
		Sleep:  rec.sleep,
		Jitter: func(time.Duration) time.Duration { return 0 },
	}
}
