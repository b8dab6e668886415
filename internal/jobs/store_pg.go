package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore implements Store using Postgres. Updates lock the row with
// SELECT ... FOR UPDATE inside a transaction.
type PGStore struct {
	DB *sql.DB
}

// Create inserts a new job row.
func (s *PGStore) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (id, status, progress, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	var payload any
	if len(job.Payload) > 0 {
		payload = []byte(job.Payload)
	}
	_, err := s.DB.ExecContext(ctx, query,
		job.ID,
		string(job.Status),
		job.Progress,
		payload,
		job.CreatedAt,
		job.CreatedAt,
	)
	return err
}

// Get returns a job by ID.
func (s *PGStore) Get(ctx context.Context, id string) (Job, error) {
	return scanJob(s.DB.QueryRowContext(ctx, selectJob+` WHERE id = $1`, id))
}

// Update applies fn to the locked row and writes the result back.
func (s *PGStore) Update(ctx context.Context, id string, fn UpdateFunc) (Job, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, err
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, selectJob+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Job{}, err
	}

	changed, err := fn(&job)
	if err != nil {
		return Job{}, err
	}
	if !changed {
		return job, tx.Commit()
	}

	const update = `
UPDATE jobs
SET status = $2, progress = $3, error_class = $4, error_detail = $5, result_id = $6,
    started_at = $7, completed_at = $8, updated_at = $9
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		job.ID,
		string(job.Status),
		job.Progress,
		nullString(job.ErrorClass),
		nullString(job.ErrorDetail),
		nullString(job.ResultID),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
	); err != nil {
		return Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return Job{}, err
	}
	return job, nil
}

const selectJob = `
SELECT id, status, progress, error_class, error_detail, result_id, payload,
       created_at, started_at, completed_at, updated_at
FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job         Job
		status      string
		errorClass  sql.NullString
		errorDetail sql.NullString
		resultID    sql.NullString
		payload     []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&status,
		&job.Progress,
		&errorClass,
		&errorDetail,
		&resultID,
		&payload,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Job{}, err
	}
	job.Status = st
	job.ErrorClass = errorClass.String
	job.ErrorDetail = errorDetail.String
	job.ResultID = resultID.String
	if len(payload) > 0 {
		job.Payload = payload
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
