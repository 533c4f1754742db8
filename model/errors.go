package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrAuth              = "AUTH_ERROR"
	ErrReplay            = "REPLAY_ERROR"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrState             = "STATE_ERROR"
	ErrRateLimited       = "RATE_LIMITED"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrWorkerUnavailable = "WORKER_UNAVAILABLE"
	ErrWorkerTimeout     = "WORKER_TIMEOUT"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	// RetryAfter carries the retry delay in seconds for RATE_LIMITED errors.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewAuthError returns an AUTH_ERROR for missing, invalid, expired, or
// revoked credentials and for signature mismatches.
func NewAuthError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrAuth, Message: msg}
}

// NewReplayError returns a REPLAY_ERROR for requests whose timestamp falls
// outside the freshness window.
func NewReplayError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrReplay, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewStateError returns a STATE_ERROR naming the current and requested
// process states. Rejected transitions never partially apply.
func NewStateError(current, requested ProcessStatus) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrState,
		Message: fmt.Sprintf("illegal transition from %q to %q", current, requested),
	}
}

// NewRateLimitedError returns a RATE_LIMITED error.
func NewRateLimitedError(retryAfterSeconds int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:       ErrRateLimited,
		Message:    fmt.Sprintf("Rate limit exceeded. Retry in %d seconds.", retryAfterSeconds),
		RetryAfter: retryAfterSeconds,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewWorkerUnavailableError returns a WORKER_UNAVAILABLE error.
func NewWorkerUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrWorkerUnavailable,
		Message: "The automation worker is unreachable",
	}
}

// NewWorkerTimeoutError returns a WORKER_TIMEOUT error.
func NewWorkerTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrWorkerTimeout,
		Message: "The automation worker did not respond in time",
	}
}
