package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conformity-backend/internal/shared/telemetry"
)

// Machine owns job state. Every mutation goes through the store's per-job
// Update so concurrent deliveries for one job are serialized.
type Machine struct {
	Store Store
	Now   func() time.Time
	NewID func() string
}

// NewMachine returns a machine over store.
func NewMachine(store Store) *Machine {
	return &Machine{Store: store}
}

// Create starts a job in pending with the given request payload.
func (m *Machine) Create(ctx context.Context, payload json.RawMessage) (Job, error) {
	return m.CreateWithID(ctx, m.newID(), payload)
}

// CreateWithID is Create with a caller-chosen id.
func (m *Machine) CreateWithID(ctx context.Context, id string, payload json.RawMessage) (Job, error) {
	now := m.now()
	job := Job{
		ID:        id,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Store.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	telemetry.Info("job.created", map[string]any{"job_id": job.ID})
	return job, nil
}

// Get returns the current snapshot.
func (m *Machine) Get(ctx context.Context, id string) (Job, error) {
	return m.Store.Get(ctx, id)
}

// Advance moves a job forward. Backward moves, moves out of a terminal state
// and progress decreases are ignored, not errors.
func (m *Machine) Advance(ctx context.Context, id string, status Status, progress int) (Job, error) {
	target, ok := status.rank()
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrInvalidTransition, status)
	}
	return m.Store.Update(ctx, id, func(job *Job) (bool, error) {
		if job.Status.Terminal() {
			logIgnored(job, status, "terminal")
			return false, nil
		}
		current, _ := job.Status.rank()
		if target < current {
			logIgnored(job, status, "backward")
			return false, nil
		}

		now := m.now()
		changed := false
		from := job.Status
		if target > current {
			job.Status = status
			changed = true
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
		}
		p := clampProgress(progress)
		if status == StatusCompleted {
			p = 100
			job.CompletedAt = &now
		}
		if p > job.Progress {
			job.Progress = p
			changed = true
		}
		if changed {
			job.UpdatedAt = now
			if from != job.Status {
				telemetry.Info("job.transition", map[string]any{
					"job_id":   job.ID,
					"from":     string(from),
					"to":       string(job.Status),
					"progress": job.Progress,
				})
			}
		}
		return changed, nil
	})
}

// Complete marks the job completed and links its result.
func (m *Machine) Complete(ctx context.Context, id, resultID string) (Job, error) {
	return m.Store.Update(ctx, id, func(job *Job) (bool, error) {
		if job.Status.Terminal() {
			logIgnored(job, StatusCompleted, "terminal")
			return false, nil
		}
		now := m.now()
		from := job.Status
		job.Status = StatusCompleted
		job.Progress = 100
		job.ResultID = resultID
		job.CompletedAt = &now
		job.UpdatedAt = now
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		telemetry.Info("job.transition", map[string]any{
			"job_id":    job.ID,
			"from":      string(from),
			"to":        string(StatusCompleted),
			"result_id": resultID,
		})
		return true, nil
	})
}

// Fail moves a non-terminal job to error. The detail shown to callers is
// derived from class only.
func (m *Machine) Fail(ctx context.Context, id, class string) (Job, error) {
	if class == "" {
		class = "unknown"
	}
	return m.Store.Update(ctx, id, func(job *Job) (bool, error) {
		if job.Status.Terminal() {
			logIgnored(job, StatusError, "terminal")
			return false, nil
		}
		now := m.now()
		from := job.Status
		job.Status = StatusError
		job.ErrorClass = class
		job.ErrorDetail = ErrorDetail(class)
		job.CompletedAt = &now
		job.UpdatedAt = now
		telemetry.Warn("job.transition", map[string]any{
			"job_id":      job.ID,
			"from":        string(from),
			"to":          string(StatusError),
			"error_class": class,
		})
		return true, nil
	})
}

func logIgnored(job *Job, to Status, reason string) {
	telemetry.Warn("job.transition_ignored", map[string]any{
		"job_id": job.ID,
		"from":   string(job.Status),
		"to":     string(to),
		"reason": reason,
	})
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Machine) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}
