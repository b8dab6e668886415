package analyses

import (
	"context"
	"sync"
)

// MemoryRepo stores results in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Result
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Result)}
}

// Create stores the result.
func (r *MemoryRepo) Create(ctx context.Context, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[result.ID] = cloneResult(result)
	return nil
}

// GetByID returns a result by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, resultID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.byID[resultID]
	if !ok {
		return Result{}, ErrNotFound
	}
	return cloneResult(result), nil
}

// AddReview applies a review to a stored result.
func (r *MemoryRepo) AddReview(ctx context.Context, resultID string, review Review) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.byID[resultID]
	if !ok {
		return Result{}, ErrNotFound
	}
	result = cloneResult(result)
	if err := ApplyReview(&result, review); err != nil {
		return Result{}, err
	}
	r.byID[resultID] = result
	return cloneResult(result), nil
}

// cloneResult copies the slices a caller could mutate.
func cloneResult(r Result) Result {
	r.Reviews = append([]Review{}, r.Reviews...)
	if r.Gaps != nil {
		r.Gaps = append(r.Gaps[:0:0], r.Gaps...)
	}
	return r
}
