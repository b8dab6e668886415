package jobs

import (
	"context"
	"sync"
)

// MemoryStore keeps jobs in memory. Each job has its own mutex; the map lock
// is only held for lookups.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]Job
	locks map[string]*sync.Mutex
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]Job),
		locks: make(map[string]*sync.Mutex),
	}
}

// Create stores a new job.
func (s *MemoryStore) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	s.locks[job.ID] = &sync.Mutex{}
	return nil
}

// Get returns a job snapshot.
func (s *MemoryStore) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// Update applies fn while holding the job's lock.
func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	job := cloneJob(s.jobs[id])
	s.mu.RUnlock()

	changed, err := fn(&job)
	if err != nil {
		return Job{}, err
	}
	if !changed {
		return job, nil
	}
	s.mu.Lock()
	s.jobs[id] = cloneJob(job)
	s.mu.Unlock()
	return job, nil
}

func cloneJob(j Job) Job {
	if j.Payload != nil {
		j.Payload = append([]byte(nil), j.Payload...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}
