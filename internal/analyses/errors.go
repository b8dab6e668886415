package analyses

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyReviewed = errors.New("result already reviewed")
	ErrInvalidReview   = errors.New("invalid review")
	ErrTooManyChunks   = errors.New("document exceeds incremental chunk limit")
	ErrInvalidRequest  = errors.New("invalid analysis request")
	ErrMissingPipeline = errors.New("analysis pipeline not configured")
)

const (
	ErrorCodeValidation  = "VALIDATION_ERROR"
	ErrorCodeNotFound    = "NOT_FOUND"
	ErrorCodeConflict    = "CONFLICT"
	ErrorCodeRateLimited = "rate_limited"
	ErrorCodeInternal    = "INTERNAL_ERROR"
)
