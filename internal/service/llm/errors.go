package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/kapu/pitch-coach-go/pkg/errors"
)

// StatusError carries the upstream HTTP status of a failed completion.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

var (
	statusRegex     = regexp.MustCompile(`\b([45]\d{2})\b`)
	geminiCodeRegex = regexp.MustCompile(`"code":\s*(\d{3})`)
)

// StatusCode extracts the upstream status from err, or 0 when none is known.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}

	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return apiErr.StatusCode
	}

	msg := err.Error()
	if m := geminiCodeRegex.FindStringSubmatch(msg); len(m) > 1 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	if m := statusRegex.FindStringSubmatch(msg); len(m) > 1 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	return 0
}

func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if StatusCode(err) == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota")
}

func IsAuthFailure(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func IsBadRequest(err error) bool {
	return StatusCode(err) == http.StatusBadRequest
}

// IsServiceFailure reports failures that should count against the circuit
// breaker: timeouts, rate limits and 5xx responses.
func IsServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCompletionDisabled) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "connection refused") {
		return true
	}
	if IsRateLimit(err) {
		return true
	}
	code := StatusCode(err)
	return code >= 500 && code < 600
}
