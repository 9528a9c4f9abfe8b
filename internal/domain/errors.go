package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrJobNotFound is returned when a job id is unknown to the job store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that
	// is not in the queued state
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in queued state")

	// ErrDuplicate is returned by the dedup index when a request for the
	// DID is already in flight
	ErrDuplicate = errors.New("duplicated request")

	// ErrRequestNotFound is returned when no request exists for a DID
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequeueDelivery signals the consumer that the delivery should be
	// NACKed back onto the broker (infrastructure failed before the job
	// state could be recorded)
	ErrRequeueDelivery = errors.New("requeue delivery")
)

// APIError carries a client-facing reason together with its HTTP status
// class. A 4xx APIError is a definitive rejection and is never retried.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates an APIError with the given status and message.
func NewAPIError(status int, message string) *APIError {
	return &APIError{Status: status, Message: message}
}

// BadRequest creates a 400 APIError.
func BadRequest(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the HTTP status for an error: the APIError status,
// 404 for not-found sentinels, 403 for duplicates and 500 otherwise.
func StatusOf(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Status
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RetryableError wraps transient errors that should trigger a delayed
// retry instead of a terminal failure.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err represents a transient condition. A
// definitive client rejection (4xx APIError) is never retryable even when
// wrapped further up the chain.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return false
	}
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
