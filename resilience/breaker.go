package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// halfOpenSuccesses is the number of consecutive successes required in
// HalfOpen before the circuit closes again.
const halfOpenSuccesses = 2

// CircuitBreaker guards a single named collaborator. One instance exists per
// collaborator for the lifetime of the process; state is not shared across
// instances or restarts.
type CircuitBreaker struct {
	name          string
	threshold     int
	resetTimeout  time.Duration
	state         CircuitState
	failures      int
	successes     int
	lastFailure   time.Time
	nextAttemptAt time.Time
	mu            sync.RWMutex
	onStateChange func(name string, from, to CircuitState)
}

type CircuitBreakerConfig struct {
	Name          string
	Threshold     int
	ResetTimeout  time.Duration
	OnStateChange func(name string, from, to CircuitState)
}

func CreateCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	return &CircuitBreaker{
		name:          cfg.Name,
		threshold:     cfg.Threshold,
		resetTimeout:  cfg.ResetTimeout,
		state:         CircuitClosed,
		onStateChange: cfg.OnStateChange,
	}
}

// Execute runs fn under the breaker. While the circuit is open and the reset
// timeout has not elapsed, fn is not invoked at all and ErrCircuitOpen is
// returned. The transition to HalfOpen happens lazily on the first call
// attempted after nextAttemptAt.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Now().After(cb.nextAttemptAt) {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = time.Now()

		switch cb.state {
		case CircuitClosed:
			if cb.failures >= cb.threshold {
				cb.open()
			}
		case CircuitHalfOpen:
			cb.open()
		}
	} else {
		cb.failures = 0

		switch cb.state {
		case CircuitHalfOpen:
			cb.successes++
			if cb.successes >= halfOpenSuccesses {
				cb.transitionTo(CircuitClosed)
			}
		default:
			cb.successes = 0
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.nextAttemptAt = time.Now().Add(cb.resetTimeout)
	cb.transitionTo(CircuitOpen)
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit closed regardless of counters. Manual override.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
	cb.failures = 0
	cb.successes = 0
}

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
