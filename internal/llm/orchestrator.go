package llm

import (
	"context"
	"time"

	"conformity-backend/internal/shared/metrics"
	"conformity-backend/internal/shared/telemetry"
)

// Step is one provider plus the policy used against it.
type Step struct {
	Provider Provider
	Policy   RetryPolicy
	Timeout  time.Duration
}

// Completion is the raw text of a successful call and how it was obtained.
type Completion struct {
	Text              string
	ProviderUsed      string
	FallbackTriggered bool
	FallbackFrom      string
	FallbackClass     ErrorClass
	Attempts          []Attempt
}

// Orchestrator drives the primary provider and, on a fallback-eligible final
// failure, the secondary.
type Orchestrator struct {
	Primary       Step
	Secondary     Step
	ForceFallback bool
	Retrier       Retrier
}

// FallbackDecision is the outer policy: move to the secondary provider when
// the primary's final class is transient or forced.
func FallbackDecision(class ErrorClass) bool {
	return ShouldFallback(class)
}

// Complete runs the fallback policy for one prompt.
func (o *Orchestrator) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	primaryName := o.Primary.Provider.Name()

	var (
		attempts []Attempt
		class    ErrorClass
		err      error
	)
	if o.ForceFallback {
		class = ClassForcedFallback
		err = NewClassifiedError(ClassForcedFallback, ErrForcedFallback)
		metrics.IncProviderAttempt(primaryName, string(class))
	} else {
		var text string
		text, attempts, err = o.run(ctx, o.Primary, prompt)
		if err == nil {
			return Completion{Text: text, ProviderUsed: primaryName, Attempts: attempts}, nil
		}
		class = Classify(err)
	}

	if !FallbackDecision(class) {
		return Completion{Attempts: attempts}, err
	}
	if o.Secondary.Provider == nil {
		return Completion{Attempts: attempts}, &ExhaustedError{Primary: primaryName, PrimaryClass: class, Err: err}
	}

	secondaryName := o.Secondary.Provider.Name()
	telemetry.Warn("llm.fallback", map[string]any{
		"from":        primaryName,
		"to":          secondaryName,
		"error_class": string(class),
	})
	metrics.IncProviderFallback(primaryName, secondaryName)

	text, more, serr := o.run(ctx, o.Secondary, prompt)
	attempts = append(attempts, more...)
	if serr != nil {
		return Completion{Attempts: attempts}, &ExhaustedError{
			Primary:        primaryName,
			PrimaryClass:   class,
			Secondary:      secondaryName,
			SecondaryClass: Classify(serr),
			Err:            serr,
		}
	}
	return Completion{
		Text:              text,
		ProviderUsed:      secondaryName,
		FallbackTriggered: true,
		FallbackFrom:      primaryName,
		FallbackClass:     class,
		Attempts:          attempts,
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, step Step, prompt Prompt) (string, []Attempt, error) {
	return o.Retrier.Do(ctx, step.Provider.Name(), step.Policy, func(ctx context.Context) (string, error) {
		return step.Provider.Call(ctx, prompt, step.Timeout)
	})
}
