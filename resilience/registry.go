package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/malwarebo/reserva/utils"
)

// BreakerRegistry holds one circuit breaker per named collaborator for the
// lifetime of the process.
type BreakerRegistry struct {
	breakers     map[string]*CircuitBreaker
	threshold    int
	resetTimeout time.Duration
	mu           sync.RWMutex
	logger       *utils.Logger
}

type BreakerRegistryConfig struct {
	Threshold    int
	ResetTimeout time.Duration
}

func CreateBreakerRegistry(cfg BreakerRegistryConfig) *BreakerRegistry {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	return &BreakerRegistry{
		breakers:     make(map[string]*CircuitBreaker),
		threshold:    cfg.Threshold,
		resetTimeout: cfg.ResetTimeout,
		logger:       utils.NewLogger("resilience"),
	}
}

func (r *BreakerRegistry) Get(collaborator string) *CircuitBreaker {
	r.mu.RLock()
	cb, exists := r.breakers[collaborator]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, exists = r.breakers[collaborator]; exists {
		return cb
	}

	cb = CreateCircuitBreaker(CircuitBreakerConfig{
		Name:         collaborator,
		Threshold:    r.threshold,
		ResetTimeout: r.resetTimeout,
		OnStateChange: func(name string, from, to CircuitState) {
			r.logger.Warn(context.Background(), "circuit state changed", map[string]interface{}{
				"collaborator": name,
				"from":         from.String(),
				"to":           to.String(),
			})
		},
	})
	r.breakers[collaborator] = cb

	return cb
}

func (r *BreakerRegistry) State(collaborator string) CircuitState {
	r.mu.RLock()
	cb, exists := r.breakers[collaborator]
	r.mu.RUnlock()

	if !exists {
		return CircuitClosed
	}
	return cb.State()
}

func (r *BreakerRegistry) Reset(collaborator string) {
	r.mu.RLock()
	cb, exists := r.breakers[collaborator]
	r.mu.RUnlock()

	if exists {
		cb.Reset()
	}
}

func (r *BreakerRegistry) Healthy(collaborator string) bool {
	return r.State(collaborator) != CircuitOpen
}

// States snapshots every breaker for operational visibility.
func (r *BreakerRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State()
	}
	return states
}
