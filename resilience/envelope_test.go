package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/malwarebo/reserva/utils"
)

func fastCallOptions(critical bool) CallOptions {
	return CallOptions{
		Name:          "test.op",
		Timeout:       time.Second,
		RetryAttempts: 2,
		BackoffBase:   time.Millisecond,
		BackoffCap:    5 * time.Millisecond,
		Critical:      critical,
	}
}

func TestEnvelope_ReturnsResult(t *testing.T) {
	env := CreateEnvelope()

	result, err := env.Call(context.Background(), fastCallOptions(true), func(ctx context.Context) (interface{}, error) {
		return "charge_123", nil
	})

	if err != nil {
		t.Errorf("Call() error = %v, want nil", err)
	}
	if result != "charge_123" {
		t.Errorf("result = %v, want charge_123", result)
	}
}

func TestEnvelope_RetriesTransientFailures(t *testing.T) {
	env := CreateEnvelope()
	attempts := 0

	result, err := env.Call(context.Background(), fastCallOptions(true), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, &utils.StatusError{Code: 503}
		}
		return "ok", nil
	})

	if err != nil {
		t.Errorf("Call() error = %v, want nil", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestEnvelope_CriticalFailurePropagates(t *testing.T) {
	env := CreateEnvelope()
	badRequest := &utils.StatusError{Code: 422}

	result, err := env.Call(context.Background(), fastCallOptions(true), func(ctx context.Context) (interface{}, error) {
		return nil, badRequest
	})

	if !errors.Is(err, badRequest) {
		t.Errorf("Call() error = %v, want %v", err, badRequest)
	}
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
}

func TestEnvelope_NonCriticalFailureSwallowed(t *testing.T) {
	env := CreateEnvelope()

	result, err := env.Call(context.Background(), fastCallOptions(false), func(ctx context.Context) (interface{}, error) {
		return nil, &utils.StatusError{Code: 500}
	})

	if err != nil {
		t.Errorf("Call() error = %v, want nil for non-critical failure", err)
	}
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
}

func TestEnvelope_AttemptTimeout(t *testing.T) {
	env := CreateEnvelope()
	opts := fastCallOptions(true)
	opts.Timeout = 20 * time.Millisecond
	opts.RetryAttempts = 0

	start := time.Now()
	_, err := env.Call(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Call() took %v, want well under the operation's own duration", elapsed)
	}
}

func TestEnvelope_OpenBreakerShortCircuits(t *testing.T) {
	env := CreateEnvelope()
	breaker := CreateCircuitBreaker(CircuitBreakerConfig{Name: "deposits", Threshold: 1, ResetTimeout: time.Minute})

	opts := fastCallOptions(true)
	opts.RetryAttempts = 0
	opts.Breaker = breaker

	env.Call(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		return nil, &utils.StatusError{Code: 500}
	})
	if breaker.State() != CircuitOpen {
		t.Fatalf("State() = %v, want CircuitOpen", breaker.State())
	}

	invoked := false
	_, err := env.Call(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		invoked = true
		return "ok", nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Call() error = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("Call() invoked operation while breaker was open")
	}
}

func TestEnvelope_BreakerCountsLogicalCalls(t *testing.T) {
	env := CreateEnvelope()
	breaker := CreateCircuitBreaker(CircuitBreakerConfig{Name: "deposits", Threshold: 2, ResetTimeout: time.Minute})

	opts := fastCallOptions(true)
	opts.Breaker = breaker

	// One logical call with internal retries counts as a single breaker
	// failure, not one per attempt.
	env.Call(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		return nil, &utils.StatusError{Code: 500}
	})

	if breaker.State() != CircuitClosed {
		t.Errorf("State() = %v, want CircuitClosed after one logical failure", breaker.State())
	}

	env.Call(context.Background(), opts, func(ctx context.Context) (interface{}, error) {
		return nil, &utils.StatusError{Code: 500}
	})

	if breaker.State() != CircuitOpen {
		t.Errorf("State() = %v, want CircuitOpen after two logical failures", breaker.State())
	}
}
