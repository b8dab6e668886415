package analyses

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Review decisions accepted by ApplyReview.
const (
	DecisionApproved = "aprovado"
	DecisionRejected = "rejeitado"
)

const minRejectionJustification = 10

// ValidateReview checks a review before it reaches storage.
func ValidateReview(r Review) error {
	if strings.TrimSpace(r.Reviewer) == "" {
		return fmt.Errorf("%w: revisor is required", ErrInvalidReview)
	}
	justification := strings.TrimSpace(r.Justification)
	switch r.Decision {
	case DecisionApproved:
		if justification == "" {
			return fmt.Errorf("%w: justificativa is required", ErrInvalidReview)
		}
	case DecisionRejected:
		if utf8.RuneCountInString(justification) < minRejectionJustification {
			return fmt.Errorf("%w: justificativa must have at least %d characters", ErrInvalidReview, minRejectionJustification)
		}
	default:
		return fmt.Errorf("%w: unknown decisao %q", ErrInvalidReview, r.Decision)
	}
	return nil
}

// ApplyReview records review on result. Only pending results accept a review.
func ApplyReview(result *Result, review Review) error {
	if err := ValidateReview(review); err != nil {
		return err
	}
	if result.ReviewStatus != ReviewPending && result.ReviewStatus != "" {
		return ErrAlreadyReviewed
	}
	review.Reviewer = strings.TrimSpace(review.Reviewer)
	review.Justification = strings.TrimSpace(review.Justification)
	result.Reviews = append(result.Reviews, review)
	if review.Decision == DecisionApproved {
		result.ReviewStatus = ReviewApproved
	} else {
		result.ReviewStatus = ReviewRejected
	}
	return nil
}
