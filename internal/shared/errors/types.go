// Package errors classifies failures of outbound calls so retry loops and
// circuit breakers can decide what to do with them.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// cause is the shared body of the classified error types.
type cause struct {
	Err     error
	Message string
}

func (c cause) format(kind string) string {
	if c.Message != "" {
		return c.Message
	}
	return fmt.Sprintf("%s error: %v", kind, c.Err)
}

// TransientError marks a failure worth retrying.
type TransientError struct{ cause }

func (e *TransientError) Error() string { return e.format("transient") }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct{ cause }

func (e *PermanentError) Error() string { return e.format("permanent") }
func (e *PermanentError) Unwrap() error { return e.Err }

// DegradedError is returned when a circuit breaker or limiter refuses a call.
type DegradedError struct{ cause }

func (e *DegradedError) Error() string { return e.format("degraded") }
func (e *DegradedError) Unwrap() error { return e.Err }

// HTTPStatusError carries a non-2xx response from an upstream service.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, body)
}

func NewTransientError(err error, message string) *TransientError {
	return &TransientError{cause{Err: err, Message: message}}
}

func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{cause{Err: err, Message: message}}
}

func NewDegradedError(err error, message string) *DegradedError {
	return &DegradedError{cause{Err: err, Message: message}}
}

type statusClass int

const (
	statusUnknown statusClass = iota
	statusRetry
	statusFatal
)

var upstreamStatus = map[int]statusClass{
	http.StatusTooManyRequests:     statusRetry,
	http.StatusInternalServerError: statusRetry,
	http.StatusBadGateway:          statusRetry,
	http.StatusServiceUnavailable:  statusRetry,
	http.StatusGatewayTimeout:      statusRetry,

	http.StatusBadRequest:          statusFatal,
	http.StatusUnauthorized:        statusFatal,
	http.StatusForbidden:           statusFatal,
	http.StatusNotFound:            statusFatal,
	http.StatusMethodNotAllowed:    statusFatal,
	http.StatusUnprocessableEntity: statusFatal,
}

// IsTransient reports whether err is worth retrying. Explicit markers win,
// then upstream status, deadlines and network failures. Caller cancellation
// is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var transient *TransientError
	var permanent *PermanentError
	var status *HTTPStatusError
	switch {
	case errors.As(err, &transient):
		return true
	case errors.As(err, &permanent):
		return false
	case errors.As(err, &status):
		return upstreamStatus[status.StatusCode] == statusRetry
	}
	return errors.Is(err, context.DeadlineExceeded) || isNetworkFailure(err)
}

// IsPermanent reports whether err is known to be final.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	var transient *TransientError
	var status *HTTPStatusError
	switch {
	case err == nil:
		return false
	case errors.As(err, &permanent):
		return true
	case errors.As(err, &transient):
		return false
	case errors.As(err, &status):
		return upstreamStatus[status.StatusCode] == statusFatal
	}
	return false
}

// IsDegraded reports whether a protective component refused the call.
func IsDegraded(err error) bool {
	var degraded *DegradedError
	return errors.As(err, &degraded)
}

// Describe turns err into a short message for event streams and transcripts.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if msg := explicitMessage(err); msg != "" {
		return msg
	}

	var status *HTTPStatusError
	if errors.As(err, &status) {
		switch code := status.StatusCode; {
		case code == http.StatusTooManyRequests:
			return "Reasoning service rate limit reached."
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			return "Reasoning service rejected the credentials."
		case code >= http.StatusInternalServerError:
			return "Reasoning service is temporarily unavailable."
		}
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "connection refused"):
		return "Reasoning service is not reachable."
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(text, "timeout"):
		return "Request timed out."
	}
	return err.Error()
}

func explicitMessage(err error) string {
	var transient *TransientError
	if errors.As(err, &transient) && transient.Message != "" {
		return transient.Message
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) && permanent.Message != "" {
		return permanent.Message
	}
	var degraded *DegradedError
	if errors.As(err, &degraded) && degraded.Message != "" {
		return degraded.Message
	}
	return ""
}

var networkPhrases = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"eof",
}

func isNetworkFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	text := strings.ToLower(err.Error())
	for _, phrase := range networkPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
