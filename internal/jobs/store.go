package jobs

import "context"

// UpdateFunc mutates a job under the store's per-job lock. Returning false
// skips the write.
type UpdateFunc func(job *Job) (changed bool, err error)

// Store persists job snapshots. Update must serialize concurrent updates to
// the same job and may run updates to different jobs in parallel.
type Store interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (Job, error)
}
