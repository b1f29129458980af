package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

var (
	ErrInvalidRequest     = NewAPIError(http.StatusBadRequest, "Invalid request")
	ErrUnauthorized       = NewAPIError(http.StatusUnauthorized, "Unauthorized")
	ErrForbidden          = NewAPIError(http.StatusForbidden, "Forbidden")
	ErrNotFound           = NewAPIError(http.StatusNotFound, "Resource not found")
	ErrInternalServer     = NewAPIError(http.StatusInternalServerError, "Internal server error")
	ErrServiceUnavailable = NewAPIError(http.StatusServiceUnavailable, "Service unavailable")
)

// Mutation-safety error taxonomy. These are never retried automatically;
// callers re-fetch, re-submit, or re-authenticate.
var (
	ErrDuplicateInFlight = errors.New("duplicate request in flight")
	ErrUndoExpired       = errors.New("undo token unknown or expired")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionRevoked    = errors.New("session revoked")
	ErrSessionExpired    = errors.New("session expired")
	ErrReplayDetected    = errors.New("refresh token replay detected")
)

// VersionConflictError carries the authoritative version so the caller can
// re-fetch and retry instead of getting a silent generic failure.
type VersionConflictError struct {
	EntityID        string
	CurrentVersion  int64
	ExpectedVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, current %d",
		e.EntityID, e.ExpectedVersion, e.CurrentVersion)
}

func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}

// StatusError classifies a collaborator failure with an HTTP-like code so
// the retry loop can decide retryability.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("collaborator error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("collaborator error %d", e.Code)
}

// IsRetryable reports whether a failed collaborator call is worth retrying:
// timeouts, connection-reset class errors and 5xx/429 responses are; other
// 4xx responses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusTooManyRequests {
			return true
		}
		return statusErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

func WrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

func GetHTTPStatusFromError(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var vc *VersionConflictError
	if errors.As(err, &vc) {
		return http.StatusConflict
	}

	switch {
	case errors.Is(err, ErrDuplicateInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrUndoExpired):
		return http.StatusGone
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrReplayDetected):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}
