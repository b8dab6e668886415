package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestMachine() *Machine {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	var mu sync.Mutex
	return &Machine{
		Store: NewMemoryStore(),
		Now:   func() time.Time { return fixed },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("job-%d", n)
		},
	}
}

func TestCreateStartsPending(t *testing.T) {
	m := newTestMachine()
	job, err := m.Create(context.Background(), []byte(`{"documento":"x"}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != StatusPending || job.Progress != 0 || job.StartedAt != nil {
		t.Fatalf("unexpected job %+v", job)
	}
	got, err := m.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Payload) != `{"documento":"x"}` {
		t.Fatalf("payload = %s", got.Payload)
	}
}

func TestCreateWithID(t *testing.T) {
	m := newTestMachine()
	job, err := m.CreateWithID(context.Background(), "fixed-id", nil)
	if err != nil {
		t.Fatalf("CreateWithID: %v", err)
	}
	if job.ID != "fixed-id" || job.Status != StatusPending {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := m.Get(context.Background(), "fixed-id"); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestAdvanceForwardOnly(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()
	job, _ := m.Create(ctx, nil)

	job, err := m.Advance(ctx, job.ID, StatusAnalyzing, 30)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if job.Status != StatusAnalyzing || job.Progress != 30 || job.StartedAt == nil {
		t.Fatalf("unexpected job %+v", job)
	}

	job, err = m.Advance(ctx, job.ID, StatusExtracting, 50)
	if err != nil {
		t.Fatalf("Advance backward: %v", err)
	}
	if job.Status != StatusAnalyzing || job.Progress != 30 {
		t.Fatalf("backward transition should be ignored, got %+v", job)
	}

	job, _ = m.Advance(ctx, job.ID, StatusAnalyzing, 10)
	if job.Progress != 30 {
		t.Fatalf("progress must not decrease, got %d", job.Progress)
	}

	job, _ = m.Advance(ctx, job.ID, StatusConsolidating, 250)
	if job.Status != StatusConsolidating || job.Progress != 100 {
		t.Fatalf("expected clamped progress, got %+v", job)
	}
}

func TestAdvanceRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()
	job, _ := m.Create(ctx, nil)
	if _, err := m.Advance(ctx, job.ID, Status("paused"), 10); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := m.Advance(ctx, job.ID, StatusError, 10); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error must go through Fail, got %v", err)
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()
	job, _ := m.Create(ctx, nil)

	job, err := m.Complete(ctx, job.ID, "result-1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if job.Status != StatusCompleted || job.Progress != 100 || job.ResultID != "result-1" || job.CompletedAt == nil {
		t.Fatalf("unexpected job %+v", job)
	}

	again, err := m.Complete(ctx, job.ID, "result-2")
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if again.ResultID != "result-1" {
		t.Fatalf("terminal re-delivery must be a no-op, got %+v", again)
	}

	failed, _ := m.Fail(ctx, job.ID, "timeout")
	if failed.Status != StatusCompleted {
		t.Fatalf("completed job must not move to error")
	}
	adv, _ := m.Advance(ctx, job.ID, StatusAnalyzing, 10)
	if adv.Status != StatusCompleted {
		t.Fatalf("completed job must not move backward")
	}
}

func TestFailSetsClassDetail(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()
	job, _ := m.Create(ctx, nil)
	_, _ = m.Advance(ctx, job.ID, StatusAnalyzing, 40)

	job, err := m.Fail(ctx, job.ID, "rate_limit")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if job.Status != StatusError || job.ErrorClass != "rate_limit" || job.ErrorDetail != ErrorDetail("rate_limit") {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Progress != 40 {
		t.Fatalf("progress should be kept on failure, got %d", job.Progress)
	}

	again, _ := m.Complete(ctx, job.ID, "late")
	if again.Status != StatusError || again.ResultID != "" {
		t.Fatalf("error is terminal, got %+v", again)
	}
}

func TestErrorDetailNeverEmpty(t *testing.T) {
	for _, class := range []string{"rate_limit", "timeout", "auth", "whatever", ""} {
		if ErrorDetail(class) == "" {
			t.Fatalf("empty detail for %q", class)
		}
	}
	if ErrorDetail("whatever") != ErrorDetail("unknown") {
		t.Fatalf("unknown classes should share the generic detail")
	}
}

func TestMissingJob(t *testing.T) {
	m := newTestMachine()
	if _, err := m.Advance(context.Background(), "nope", StatusAnalyzing, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentAdvanceKeepsMaxProgress(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine()
	job, _ := m.Create(ctx, nil)

	var wg sync.WaitGroup
	for p := 1; p <= 50; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, _ = m.Advance(ctx, job.ID, StatusAnalyzing, p)
		}(p)
	}
	wg.Wait()

	got, _ := m.Get(ctx, job.ID)
	if got.Progress != 50 || got.Status != StatusAnalyzing {
		t.Fatalf("unexpected final state %+v", got)
	}
}
