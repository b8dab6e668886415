package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/idempotency"
	"conformity-backend/internal/jobs"
	"conformity-backend/internal/llm"
	"conformity-backend/internal/queue"
	"conformity-backend/internal/shared/metrics"
	"conformity-backend/internal/shared/storage/object"
	"conformity-backend/internal/shared/telemetry"
)

const (
	classDocumentTooLarge = "document_too_large"
	classStorage          = "storage"

	messageVersion = 1
	rawSeparator   = "\n\n----- chunk -----\n\n"
)

// Service runs analyses as jobs. With a Queue the API only enqueues and a
// worker calls ProcessJob; without one the job runs in a goroutine.
type Service struct {
	Jobs     *jobs.Machine
	Repo     Repo
	Analyzer *Analyzer
	Store    object.ObjectStore
	Queue    queue.Client
	Now      func() time.Time
	NewID    func() string

	// Idempotency binds Idempotency-Key headers to jobs. Nil disables it.
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
}

// FailedError reports a job that reached the error state. The job record is
// already updated when it is returned.
type FailedError struct {
	JobID string
	Class string
	Err   error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job %s failed (%s): %v", e.JobID, e.Class, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Create validates the request, persists a pending job and schedules it.
func (s *Service) Create(ctx context.Context, req conformity.AnalysisRequest) (jobs.Job, error) {
	job, _, err := s.CreateWithKey(ctx, "", req)
	return job, err
}

// CreateWithKey is Create honoring an idempotency key. When the key already
// started a job for the same request that job is returned with replayed set;
// the same key with another request fails with idempotency.ErrConflict.
func (s *Service) CreateWithKey(ctx context.Context, key string, req conformity.AnalysisRequest) (job jobs.Job, replayed bool, err error) {
	if err := validateRequest(req); err != nil {
		return jobs.Job{}, false, err
	}
	if s.Jobs == nil || s.Repo == nil || s.Analyzer == nil {
		return jobs.Job{}, false, ErrMissingPipeline
	}
	key = strings.TrimSpace(key)
	if key == "" || s.Idempotency == nil {
		job, err := s.start(ctx, "", req)
		return job, false, err
	}

	claim := idempotency.Entry{RequestHash: InputFingerprint(req), JobID: s.newID()}
	owner, replay, err := idempotency.Resolve(ctx, s.Idempotency, key, claim, s.IdempotencyTTL)
	switch {
	case errors.Is(err, idempotency.ErrConflict):
		return jobs.Job{}, false, err
	case err != nil:
		telemetry.Warn("analysis.idempotency_unavailable", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"error":      err.Error(),
		})
		job, err := s.start(ctx, "", req)
		return job, false, err
	case replay:
		job, err := s.Jobs.Get(ctx, owner.JobID)
		if errors.Is(err, jobs.ErrNotFound) {
			return jobs.Job{}, false, fmt.Errorf("%w: first request still starting", idempotency.ErrConflict)
		}
		if err != nil {
			return jobs.Job{}, false, err
		}
		telemetry.Info("analysis.idempotent_replay", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     job.ID,
		})
		return job, true, nil
	}

	job, err = s.start(ctx, claim.JobID, req)
	if err != nil {
		if rerr := s.Idempotency.Release(context.Background(), key); rerr != nil {
			telemetry.Warn("analysis.idempotency_release_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"error":      rerr.Error(),
			})
		}
		return jobs.Job{}, false, err
	}
	return job, false, nil
}

func validateRequest(req conformity.AnalysisRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.Document) == "" || strings.TrimSpace(req.DocumentType) == "" {
		return fmt.Errorf("%w: documento and tipoDocumento are required", ErrInvalidRequest)
	}
	return nil
}

// start persists a pending job and schedules it. An empty id lets the
// machine pick one.
func (s *Service) start(ctx context.Context, id string, req conformity.AnalysisRequest) (jobs.Job, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("marshal request: %w", err)
	}
	var job jobs.Job
	if id == "" {
		job, err = s.Jobs.Create(ctx, payload)
	} else {
		job, err = s.Jobs.CreateWithID(ctx, id, payload)
	}
	if err != nil {
		return jobs.Job{}, err
	}

	requestID := requestIDFromContext(ctx)
	if s.Queue != nil {
		msg := queue.Message{
			JobID:      job.ID,
			RequestID:  requestID,
			EnqueuedAt: s.now().Format(time.RFC3339),
			Version:    messageVersion,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			_, _ = s.Jobs.Fail(context.Background(), job.ID, string(llm.ClassUnknown))
			return jobs.Job{}, fmt.Errorf("enqueue job: %w", err)
		}
		telemetry.Info("analysis.enqueued", map[string]any{
			"request_id": requestID,
			"job_id":     job.ID,
		})
		return job, nil
	}

	go s.processAsync(backgroundWithRequestID(ctx), job.ID)
	return job, nil
}

// GetJob returns the job snapshot.
func (s *Service) GetJob(ctx context.Context, jobID string) (jobs.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return jobs.Job{}, errors.New("jobID is required")
	}
	return s.Jobs.Get(ctx, jobID)
}

// GetResult returns a stored result.
func (s *Service) GetResult(ctx context.Context, resultID string) (Result, error) {
	if strings.TrimSpace(resultID) == "" {
		return Result{}, errors.New("resultID is required")
	}
	return s.Repo.GetByID(ctx, resultID)
}

// Review records a human decision on a result.
func (s *Service) Review(ctx context.Context, resultID string, review Review) (Result, error) {
	if err := ValidateReview(review); err != nil {
		return Result{}, err
	}
	review.CreatedAt = s.now()
	result, err := s.Repo.AddReview(ctx, resultID, review)
	if err != nil {
		return Result{}, err
	}
	telemetry.Info("analysis.review", map[string]any{
		"request_id":    requestIDFromContext(ctx),
		"result_id":     resultID,
		"decision":      review.Decision,
		"review_status": string(result.ReviewStatus),
	})
	return result, nil
}

func (s *Service) processAsync(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("panic", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"job_id":     jobID,
				"panic":      fmt.Sprint(r),
			})
			s.fail(ctx, jobID, string(llm.ClassUnknown), time.Time{})
		}
	}()
	_ = s.ProcessJob(ctx, jobID)
}

// ProcessJob runs the pipeline for a stored job. A job that is already
// terminal is left untouched.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		telemetry.Warn("analysis.redelivered", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"status":     string(job.Status),
		})
		return nil
	}

	startedAt := s.now()
	if _, err := s.Jobs.Advance(ctx, jobID, jobs.StatusExtracting, 5); err != nil {
		return fmt.Errorf("advance job %s: %w", jobID, err)
	}
	var req conformity.AnalysisRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		class := string(llm.ClassUnknown)
		s.fail(ctx, jobID, class, startedAt)
		return &FailedError{JobID: jobID, Class: class, Err: fmt.Errorf("decode job payload: %w", err)}
	}

	if _, err := s.Jobs.Advance(ctx, jobID, jobs.StatusAnalyzing, 10); err != nil {
		return fmt.Errorf("advance job %s: %w", jobID, err)
	}
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            string(jobs.StatusAnalyzing),
		"status_transition": "extracting->analyzing",
	})

	analysis, err := s.Analyzer.AnalyzeWithProgress(ctx, req, s.progress(jobID))
	if err != nil {
		class := failureClass(err)
		s.fail(ctx, jobID, class, startedAt)
		return &FailedError{JobID: jobID, Class: class, Err: err}
	}

	if _, err := s.Jobs.Advance(ctx, jobID, jobs.StatusConsolidating, 90); err != nil {
		return fmt.Errorf("advance job %s: %w", jobID, err)
	}
	s.archiveRaw(ctx, jobID, analysis.RawOutputs)

	result := Result{
		ID:             s.newID(),
		JobID:          jobID,
		AnalysisResult: analysis.Result,
		Metadata:       analysis.Metadata,
		Confidence:     analysis.Confidence,
		ReviewStatus:   ReviewPending,
		Reviews:        []Review{},
		CreatedAt:      s.now(),
	}
	if err := s.Repo.Create(ctx, result); err != nil {
		s.fail(ctx, jobID, classStorage, startedAt)
		return &FailedError{JobID: jobID, Class: classStorage, Err: fmt.Errorf("store result: %w", err)}
	}
	if _, err := s.Jobs.Complete(ctx, jobID, result.ID); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}

	duration := durationMs(startedAt, s.now())
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(duration)
	telemetry.Info("analysis.status", map[string]any{
		"request_id":         requestIDFromContext(ctx),
		"job_id":             jobID,
		"result_id":          result.ID,
		"status":             string(jobs.StatusCompleted),
		"status_transition":  "analyzing->completed",
		"duration_ms":        duration,
		"score":              result.Score,
		"risk_level":         string(result.RiskLevel),
		"provider_used":      result.Metadata.ProviderUsed,
		"fallback_triggered": result.Metadata.FallbackTriggered,
	})
	return nil
}

func (s *Service) progress(jobID string) ProgressFunc {
	return func(ctx context.Context, stage Stage, progress int) {
		if _, err := s.Jobs.Advance(ctx, jobID, jobs.Status(stage), progress); err != nil {
			telemetry.Warn("analysis.progress_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"job_id":     jobID,
				"stage":      string(stage),
				"error":      err.Error(),
			})
		}
	}
}

// archiveRaw keeps the provider text for audit. Failures are logged only.
func (s *Service) archiveRaw(ctx context.Context, jobID string, raws []string) {
	if s.Store == nil || len(raws) == 0 {
		return
	}
	key := object.RawOutputKey(jobID)
	body := strings.Join(raws, rawSeparator)
	if _, err := s.Store.Put(ctx, key, "text/plain; charset=utf-8", strings.NewReader(body)); err != nil {
		telemetry.Warn("analysis.raw_archive_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"key":        key,
			"error":      err.Error(),
		})
	}
}

func (s *Service) fail(ctx context.Context, jobID, class string, startedAt time.Time) {
	if _, err := s.Jobs.Fail(context.Background(), jobID, class); err != nil {
		telemetry.Error("analysis.fail_update_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"error":      err.Error(),
		})
	}
	metrics.IncAnalysisFailed(class)
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            string(jobs.StatusError),
		"status_transition": "analyzing->error",
		"error_class":       class,
	}
	if !startedAt.IsZero() {
		duration := durationMs(startedAt, s.now())
		metrics.ObserveAnalysisDurationMs(duration)
		fields["duration_ms"] = duration
	}
	telemetry.Warn("analysis.status", fields)
}

// failureClass maps a pipeline error onto the class recorded on the job.
func failureClass(err error) string {
	if errors.Is(err, ErrTooManyChunks) {
		return classDocumentTooLarge
	}
	return string(llm.Classify(err))
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
