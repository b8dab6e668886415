package analyses

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValidateReview(t *testing.T) {
	cases := []struct {
		name   string
		review Review
		ok     bool
	}{
		{name: "approve", review: Review{Decision: DecisionApproved, Reviewer: "eng. ana", Justification: "ok"}, ok: true},
		{name: "reject", review: Review{Decision: DecisionRejected, Reviewer: "eng. ana", Justification: "faltam evidências de treinamento"}, ok: true},
		{name: "reject short", review: Review{Decision: DecisionRejected, Reviewer: "eng. ana", Justification: "não"}},
		{name: "no reviewer", review: Review{Decision: DecisionApproved, Justification: "ok"}},
		{name: "no justification", review: Review{Decision: DecisionApproved, Reviewer: "eng. ana"}},
		{name: "unknown decision", review: Review{Decision: "talvez", Reviewer: "eng. ana", Justification: "ok"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateReview(tc.review)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidReview) {
				t.Fatalf("expected ErrInvalidReview, got %v", err)
			}
		})
	}
}

func TestMemoryRepoReviewOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if err := repo.Create(ctx, Result{ID: "r1", JobID: "j1", ReviewStatus: ReviewPending}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	review := Review{Decision: DecisionRejected, Reviewer: " eng. ana ", Justification: "faltam evidências", CreatedAt: time.Now()}
	got, err := repo.AddReview(ctx, "r1", review)
	if err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if got.ReviewStatus != ReviewRejected || len(got.Reviews) != 1 || got.Reviews[0].Reviewer != "eng. ana" {
		t.Fatalf("unexpected result %+v", got)
	}

	if _, err := repo.AddReview(ctx, "r1", review); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("expected ErrAlreadyReviewed, got %v", err)
	}
	if _, err := repo.AddReview(ctx, "missing", review); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stored, _ := repo.GetByID(ctx, "r1")
	if len(stored.Reviews) != 1 {
		t.Fatalf("expected a single stored review, got %d", len(stored.Reviews))
	}
}
