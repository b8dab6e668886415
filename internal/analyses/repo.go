package analyses

import "context"

// Repo persists analysis results and their reviews.
type Repo interface {
	Create(ctx context.Context, result Result) error
	GetByID(ctx context.Context, resultID string) (Result, error)
	// AddReview applies review to the stored result under a row lock.
	AddReview(ctx context.Context, resultID string, review Review) (Result, error)
}
