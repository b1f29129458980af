package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/malwarebo/reserva/utils"
)

// PendingDeletion tracks a soft-archived entity whose finalization timer is
// still running. At most one exists per (entity type, entity id).
type PendingDeletion struct {
	EntityType  string
	EntityID    string
	UndoToken   string
	Snapshot    []byte
	ScheduledAt time.Time
	ExpiresAt   time.Time

	finalize func()
	timer    Timer
}

// UndoScheduler is the in-memory registry of pending finalization timers.
// The durable store's status field stays authoritative; this registry only
// owns the timers and snapshots for the current process.
type UndoScheduler struct {
	clock    Clock
	byEntity map[string]*PendingDeletion
	byToken  map[string]*PendingDeletion
	mu       sync.Mutex
	logger   *utils.Logger
}

func CreateUndoScheduler(clock Clock) *UndoScheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &UndoScheduler{
		clock:    clock,
		byEntity: make(map[string]*PendingDeletion),
		byToken:  make(map[string]*PendingDeletion),
		logger:   utils.NewLogger("scheduler"),
	}
}

// Schedule registers a pending deletion and starts its one-shot timer. A
// second call for the same entity before the timer fires replaces the
// existing timer instead of stacking a second one. The returned undo token
// is the sole credential needed to reverse the archive within the window.
func (s *UndoScheduler) Schedule(entityType, entityID string, snapshot []byte, window time.Duration, finalize func()) *PendingDeletion {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey(entityType, entityID)
	if existing, ok := s.byEntity[key]; ok {
		existing.timer.Stop()
		delete(s.byToken, existing.UndoToken)
		delete(s.byEntity, key)
	}

	now := s.clock.Now()
	pending := &PendingDeletion{
		EntityType:  entityType,
		EntityID:    entityID,
		UndoToken:   uuid.NewString(),
		Snapshot:    snapshot,
		ScheduledAt: now,
		ExpiresAt:   now.Add(window),
		finalize:    finalize,
	}

	token := pending.UndoToken
	pending.timer = s.clock.AfterFunc(window, func() {
		s.expire(token)
	})

	s.byEntity[key] = pending
	s.byToken[token] = pending

	return pending
}

// Cancel stops the pending timer and returns the prior-state snapshot so the
// caller can reinstate it. Unknown, consumed or expired tokens fail with
// ErrUndoExpired; finalize will not run for a canceled deletion.
func (s *UndoScheduler) Cancel(token string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.byToken[token]
	if !ok {
		return nil, utils.ErrUndoExpired
	}

	pending.timer.Stop()
	delete(s.byToken, token)
	delete(s.byEntity, entityKey(pending.EntityType, pending.EntityID))

	return pending.Snapshot, nil
}

// Lookup returns the pending deletion for a token without consuming it. The
// timer keeps running; a caller that completes its restore must still Cancel.
func (s *UndoScheduler) Lookup(token string) (*PendingDeletion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.byToken[token]
	return pending, ok
}

// Pending reports whether an entity currently has a deletion timer running.
func (s *UndoScheduler) Pending(entityType, entityID string) (*PendingDeletion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.byEntity[entityKey(entityType, entityID)]
	return pending, ok
}

func (s *UndoScheduler) expire(token string) {
	s.mu.Lock()
	pending, ok := s.byToken[token]
	if ok {
		delete(s.byToken, token)
		delete(s.byEntity, entityKey(pending.EntityType, pending.EntityID))
	}
	s.mu.Unlock()

	// The registry entry is removed before finalize runs, so a racing
	// Cancel either wins the map lookup or finds nothing. finalize runs at
	// most once per pending deletion.
	if ok && pending.finalize != nil {
		pending.finalize()
		s.logger.Info(context.Background(), "pending deletion finalized", map[string]interface{}{
			"entity_type": pending.EntityType,
			"entity_id":   pending.EntityID,
		})
	}
}

// Close stops all pending timers without finalizing. The durable status of
// each archived entity survives in the store; a sweep job or the next archive
// call picks it back up.
func (s *UndoScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, pending := range s.byToken {
		pending.timer.Stop()
		delete(s.byToken, token)
		delete(s.byEntity, entityKey(pending.EntityType, pending.EntityID))
	}
}

func entityKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}
