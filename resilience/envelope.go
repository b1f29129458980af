package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/malwarebo/reserva/utils"
)

// Operation is any fallible call to an external collaborator.
type Operation func(ctx context.Context) (interface{}, error)

type CallOptions struct {
	// Name identifies the collaborator operation in logs and breaker state.
	Name          string
	Timeout       time.Duration
	RetryAttempts int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	Breaker       *CircuitBreaker
	// Critical controls the final-failure policy: critical failures
	// propagate, non-critical failures are logged and swallowed so a
	// secondary side effect never fails the primary transaction.
	Critical bool
}

// Envelope composes a per-attempt timeout, a retry-with-backoff loop and an
// optional circuit breaker around a collaborator call. The breaker wraps the
// whole retry sequence: one logical call either fully succeeds, exhausts its
// retries, or is rejected up front by an open circuit.
type Envelope struct {
	logger *utils.Logger
}

func CreateEnvelope() *Envelope {
	return &Envelope{logger: utils.NewLogger("resilience")}
}

func (e *Envelope) Call(ctx context.Context, opts CallOptions, op Operation) (interface{}, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 100 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}

	retryCfg := RetryConfig{
		MaxRetries:     opts.RetryAttempts,
		InitialDelay:   opts.BackoffBase,
		MaxDelay:       opts.BackoffCap,
		Multiplier:     2.0,
		Jitter:         true,
		RetryableCheck: utils.IsRetryable,
	}

	var result interface{}

	run := func() error {
		_, err := Retry(ctx, retryCfg, func() error {
			var attemptErr error
			result, attemptErr = e.attempt(ctx, opts.Timeout, op)
			return attemptErr
		})
		return err
	}

	var err error
	if opts.Breaker != nil {
		err = opts.Breaker.Execute(run)
	} else {
		err = run()
	}

	if err == nil {
		return result, nil
	}

	if opts.Critical {
		return nil, err
	}

	e.logger.Warn(ctx, "non-critical collaborator call failed", map[string]interface{}{
		"operation":    opts.Name,
		"error":        err.Error(),
		"circuit_open": errors.Is(err, ErrCircuitOpen),
	})
	return nil, nil
}

// attempt enforces a hard per-attempt deadline. The deadline is client-side
// abandonment only: the collaborator may still complete after we stop
// waiting, which is why mutating calls go through the idempotency store.
func (e *Envelope) attempt(ctx context.Context, timeout time.Duration, op Operation) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		r, err := op(attemptCtx)
		done <- outcome{result: r, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}
