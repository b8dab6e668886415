package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	// A bare number is not a status: "prompt has 500 lines" must stay unknown.
	statusPattern = regexp.MustCompile(`\b(?:status(?:\s+code)?|http(?:/\d(?:\.\d)?)?)[\s:=(]*([45]\d{2})\b`)
	quotaPattern  = regexp.MustCompile(`\b(429|413|tpm)\b`)
)

var rateLimitPhrases = []string{"rate limit", "rate_limit", "ratelimit", "too many requests", "tokens per minute", "too many tokens"}

var networkPhrases = []string{"connection reset", "connection refused", "no such host", "broken pipe", "unexpected eof", "network", "tls handshake"}

// Classify maps any failure onto an ErrorClass. Rate-limit vocabulary wins
// over the generic status ranges because some providers report token quota
// exhaustion as 413.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Class()
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}
	if errors.Is(err, ErrForcedFallback) {
		return ClassForcedFallback
	}

	msg := strings.ToLower(err.Error())
	status := 0
	var perr *ProviderError
	if errors.As(err, &perr) {
		status = perr.StatusCode
	}
	if status == 0 {
		status = inferStatus(msg)
	}

	if status == 429 || status == 413 || isRateLimitText(msg) {
		return ClassRateLimit
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return ClassTimeout
	}
	switch {
	case status >= 500:
		return ClassProvider5xx
	case status == 401 || status == 403:
		return ClassAuth
	case status >= 400:
		return ClassProvider4xx
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) {
		return ClassInvalidJSON
	}
	if errors.As(err, &typeErr) {
		return ClassSchemaValidation
	}
	if isNetworkError(err, msg) {
		return ClassNetwork
	}
	if strings.Contains(msg, "json") && (strings.Contains(msg, "parse") || strings.Contains(msg, "unexpected") || strings.Contains(msg, "invalid")) {
		return ClassInvalidJSON
	}
	if strings.Contains(msg, "schema") || strings.Contains(msg, "zod") {
		return ClassSchemaValidation
	}
	return ClassUnknown
}

// IsRetryable reports whether a class is worth another attempt on the same
// provider.
func IsRetryable(class ErrorClass) bool {
	switch class {
	case ClassRateLimit, ClassTimeout, ClassNetwork, ClassProvider5xx:
		return true
	default:
		return false
	}
}

// ShouldFallback reports whether a final primary failure of this class moves
// the request to the secondary provider.
func ShouldFallback(class ErrorClass) bool {
	return IsRetryable(class) || class == ClassForcedFallback
}

func isRateLimitText(msg string) bool {
	if quotaPattern.MatchString(msg) {
		return true
	}
	for _, p := range rateLimitPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func inferStatus(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error, msg string) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, p := range networkPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
