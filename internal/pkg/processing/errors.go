package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorKind classifies a failed processing job.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation-error"
	KindIncomplete ErrorKind = "upstream-incomplete"
	KindUpstream   ErrorKind = "upstream-error"
	KindTimeout    ErrorKind = "timeout"
	KindStorage    ErrorKind = "infra-unavailable"
)

// JobError is returned by RunProcessingJob for every failure.
type JobError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *JobError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("processing: %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("processing: %s: %v", e.Kind, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// KindOf returns the kind of a JobError anywhere in err's chain, or "".
func KindOf(err error) ErrorKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return ""
}

// ErrOutputTooLarge is returned when a downloaded output exceeds the
// configured ceiling. It is never retried.
var ErrOutputTooLarge = errors.New("processing: output exceeds size limit")

// StatusError is a non-2xx response from an upstream HTTP endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

var retryablePatterns = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
}

// IsRetryable reports whether err is transient: connection failures,
// per-attempt timeouts, rate limiting and 500/502/503/504 responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
