package utils

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"server error", &StatusError{Code: 500}, true},
		{"bad gateway", &StatusError{Code: 502}, true},
		{"rate limited", &StatusError{Code: 429}, true},
		{"bad request", &StatusError{Code: 400}, false},
		{"payment required", &StatusError{Code: 402}, false},
		{"not found", &StatusError{Code: 404}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"plain failure", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrDuplicateInFlight, http.StatusConflict},
		{ErrUndoExpired, http.StatusGone},
		{ErrSessionNotFound, http.StatusUnauthorized},
		{ErrSessionRevoked, http.StatusUnauthorized},
		{ErrSessionExpired, http.StatusUnauthorized},
		{ErrReplayDetected, http.StatusUnauthorized},
		{&VersionConflictError{EntityID: "x", CurrentVersion: 2, ExpectedVersion: 1}, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := GetHTTPStatusFromError(tt.err); got != tt.want {
			t.Errorf("GetHTTPStatusFromError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestVersionConflictError_Message(t *testing.T) {
	err := &VersionConflictError{EntityID: "bk-1", CurrentVersion: 5, ExpectedVersion: 3}

	want := "version conflict on bk-1: expected 3, current 5"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if !IsVersionConflict(err) {
		t.Error("IsVersionConflict() = false, want true")
	}
	if IsVersionConflict(errors.New("other")) {
		t.Error("IsVersionConflict(other) = true, want false")
	}
}
