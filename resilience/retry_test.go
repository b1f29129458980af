package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/malwarebo/reserva/utils"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		RetryableCheck: utils.IsRetryable,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	attempts := 0

	result, err := Retry(context.Background(), fastRetryConfig(3), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if result.Attempts != 1 {
		t.Errorf("result.Attempts = %d, want 1", result.Attempts)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	attempts := 0

	_, err := Retry(context.Background(), fastRetryConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return &utils.StatusError{Code: 503}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	badRequest := &utils.StatusError{Code: 400}

	_, err := Retry(context.Background(), fastRetryConfig(5), func() error {
		attempts++
		return badRequest
	})

	if !errors.Is(err, badRequest) {
		t.Errorf("Retry() error = %v, want %v", err, badRequest)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0

	result, err := Retry(context.Background(), fastRetryConfig(3), func() error {
		attempts++
		return &utils.StatusError{Code: 500}
	})

	if err == nil {
		t.Error("Retry() expected error after exhausting retries")
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4 (initial + 3 retries)", attempts)
	}
	if result.Attempts != 4 {
		t.Errorf("result.Attempts = %d, want 4", result.Attempts)
	}
}

func TestRetry_RateLimitedIsRetryable(t *testing.T) {
	attempts := 0

	_, err := Retry(context.Background(), fastRetryConfig(2), func() error {
		attempts++
		if attempts == 1 {
			return &utils.StatusError{Code: 429}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	cfg := fastRetryConfig(10)
	cfg.InitialDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Retry(ctx, cfg, func() error {
		return &utils.StatusError{Code: 500}
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Retry() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRetry_DelayNeverExceedsCap(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 80 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}

	// The uncapped delay for later attempts is far past MaxDelay, so any
	// positive jitter would push a pre-jitter clamp over the cap.
	for attempt := 0; attempt < 6; attempt++ {
		for i := 0; i < 100; i++ {
			if d := calculateDelay(cfg, attempt); d > cfg.MaxDelay {
				t.Fatalf("calculateDelay(attempt=%d) = %v, want <= %v", attempt, d, cfg.MaxDelay)
			}
		}
	}
}
