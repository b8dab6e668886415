package llm

import (
	"errors"
	"fmt"
)

// ErrorClass is the closed set of failure categories used for retry and
// fallback decisions.
type ErrorClass string

const (
	ClassRateLimit        ErrorClass = "rate_limit"
	ClassTimeout          ErrorClass = "timeout"
	ClassNetwork          ErrorClass = "network"
	ClassProvider5xx      ErrorClass = "provider_5xx"
	ClassAuth             ErrorClass = "auth"
	ClassProvider4xx      ErrorClass = "provider_4xx"
	ClassInvalidJSON      ErrorClass = "invalid_json"
	ClassSchemaValidation ErrorClass = "schema_validation"
	ClassForcedFallback   ErrorClass = "forced_fallback"
	ClassUnknown          ErrorClass = "unknown"
)

var (
	// ErrTimeout marks a provider call that hit its hard deadline.
	ErrTimeout = errors.New("provider timeout")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrForcedFallback is the synthetic primary failure under FORCE_FALLBACK.
	ErrForcedFallback = errors.New("forced fallback")
)

// ProviderError normalizes a vendor SDK failure. StatusCode is 0 when the
// call never produced an HTTP response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	base := e.Provider + " error"
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.Err != nil {
		base += ": " + e.Err.Error()
	}
	return base
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClassifiedError pins a class onto an error so later classification does not
// depend on message text.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

// NewClassifiedError wraps err with a fixed class.
func NewClassifiedError(class ErrorClass, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Err: err}
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Class)
	}
	return string(e.Class) + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// ExhaustedError is returned when both providers failed.
type ExhaustedError struct {
	Primary        string
	PrimaryClass   ErrorClass
	Secondary      string
	SecondaryClass ErrorClass
	Err            error
}

func (e *ExhaustedError) Error() string {
	if e.Secondary == "" {
		return fmt.Sprintf("providers exhausted: %s=%s, no secondary configured", e.Primary, e.PrimaryClass)
	}
	return fmt.Sprintf("providers exhausted: %s=%s, %s=%s", e.Primary, e.PrimaryClass, e.Secondary, e.SecondaryClass)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Class is the class reported for the job: the last provider's final class.
func (e *ExhaustedError) Class() ErrorClass {
	if e.Secondary == "" {
		return e.PrimaryClass
	}
	return e.SecondaryClass
}
