package viewer

import (
	"errors"
	"strings"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/fetch"
	"github.com/GriffinCanCode/docviewer/internal/render"
)

// ErrorInfo is the user-facing description of a failure
type ErrorInfo struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
}

var retryableWords = []string{"network", "timeout", "cors", "fetch"}

// IsRetryable reports whether a failure message describes a transient
// condition that a manual retry may fix
func IsRetryable(message string) bool {
	msg := strings.ToLower(message)
	for _, w := range retryableWords {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// NewErrorInfo classifies err for display
func NewErrorInfo(err error, now time.Time) ErrorInfo {
	msg := err.Error()
	return ErrorInfo{
		Message:   msg,
		Code:      ErrorCode(err),
		Timestamp: now,
		Retryable: IsRetryable(msg) || autoRetryable(err),
	}
}

// ErrorCode maps err to a stable machine-readable code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoSource):
		return "no_source"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrImageLoad):
		return "image_load"
	case errors.Is(err, ErrStalled):
		return "stalled"
	case errors.Is(err, render.ErrLoadTimeout):
		return "timeout"
	case errors.Is(err, fetch.ErrUnavailable), errors.Is(err, fetch.ErrCORSDenied):
		return "network"
	case errors.Is(err, fetch.ErrTooLarge):
		return "too_large"
	case errors.Is(err, render.ErrLoadFailed):
		return "load_failed"
	default:
		return "unknown"
	}
}

// autoRetryable reports whether a failure is worth one automatic retry.
// Only timeouts and network failures qualify.
func autoRetryable(err error) bool {
	if errors.Is(err, render.ErrLoadTimeout) || errors.Is(err, fetch.ErrUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "network")
}
