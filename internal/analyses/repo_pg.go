package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"conformity-backend/internal/conformity"
)

// PGRepo implements Repo using Postgres. The scored verdict lives in a JSONB
// body; reviews are rows in result_reviews.
type PGRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

type resultBody struct {
	conformity.AnalysisResult
	Metadata   Metadata   `json:"metadados"`
	Confidence Confidence `json:"confianca"`
}

// Create inserts a new result.
func (r *PGRepo) Create(ctx context.Context, result Result) error {
	const query = `
INSERT INTO results (id, job_id, review_status, body, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	body, err := json.Marshal(resultBody{
		AnalysisResult: result.AnalysisResult,
		Metadata:       result.Metadata,
		Confidence:     result.Confidence,
	})
	if err != nil {
		return fmt.Errorf("marshal result body: %w", err)
	}
	status := result.ReviewStatus
	if status == "" {
		status = ReviewPending
	}
	_, err = r.DB.ExecContext(ctx, query,
		result.ID,
		result.JobID,
		string(status),
		body,
		result.CreatedAt,
		result.CreatedAt,
	)
	return err
}

// GetByID returns a result and its reviews.
func (r *PGRepo) GetByID(ctx context.Context, resultID string) (Result, error) {
	return getResult(ctx, r.DB, resultID, false)
}

// AddReview locks the result row, applies the review and stores it.
func (r *PGRepo) AddReview(ctx context.Context, resultID string, review Review) (Result, error) {
	if err := ValidateReview(review); err != nil {
		return Result{}, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	result, err := getResult(ctx, tx, resultID, true)
	if err != nil {
		return Result{}, err
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = r.now()
	}
	if err := ApplyReview(&result, review); err != nil {
		return Result{}, err
	}
	stored := result.Reviews[len(result.Reviews)-1]

	if _, err := tx.ExecContext(ctx, `
INSERT INTO result_reviews (result_id, decision, reviewer, justification, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		resultID,
		stored.Decision,
		stored.Reviewer,
		stored.Justification,
		stored.CreatedAt,
	); err != nil {
		return Result{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE results SET review_status = $2, updated_at = $3 WHERE id = $1`,
		resultID,
		string(result.ReviewStatus),
		stored.CreatedAt,
	); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (r *PGRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getResult(ctx context.Context, q queryer, resultID string, forUpdate bool) (Result, error) {
	query := `
SELECT id, job_id, review_status, body, created_at
FROM results
WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		result Result
		status string
		body   []byte
	)
	err := q.QueryRowContext(ctx, query, resultID).Scan(
		&result.ID,
		&result.JobID,
		&status,
		&body,
		&result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	var decoded resultBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, fmt.Errorf("decode result body: %w", err)
	}
	result.AnalysisResult = decoded.AnalysisResult
	result.Metadata = decoded.Metadata
	result.Confidence = decoded.Confidence
	result.ReviewStatus = ReviewStatus(status)

	reviews, err := listReviews(ctx, q, resultID)
	if err != nil {
		return Result{}, err
	}
	result.Reviews = reviews
	return result, nil
}

func listReviews(ctx context.Context, q queryer, resultID string) ([]Review, error) {
	rows, err := q.QueryContext(ctx, `
SELECT decision, reviewer, justification, created_at
FROM result_reviews
WHERE result_id = $1
ORDER BY created_at ASC`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.Decision, &rv.Reviewer, &rv.Justification, &rv.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
