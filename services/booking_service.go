package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/malwarebo/reserva/collab"
	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/resilience"
	"github.com/malwarebo/reserva/scheduler"
	"github.com/malwarebo/reserva/utils"
)

const entityTypeBooking = "booking"

type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateWithVersion(ctx context.Context, id string, expectedVersion *int64, mutate func(*models.Booking) error) (*models.Booking, error)
	ReplaceFromSnapshot(ctx context.Context, snapshot *models.Booking) error
	ListByResource(ctx context.Context, resourceID string, limit int) ([]models.Booking, error)
}

type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte) error
	Release(ctx context.Context, key string) error
}

type BookingCache interface {
	Get(ctx context.Context, id string) *models.Booking
	Put(ctx context.Context, booking *models.Booking)
	Invalidate(ctx context.Context, id string)
}

type DepositProcessor interface {
	Charge(ctx context.Context, customerID string, amount int64, currency, description string) (string, error)
	Refund(ctx context.Context, chargeID, reason string) error
}

type CalendarFeed interface {
	SyncBooking(ctx context.Context, booking *models.Booking) error
	CancelBooking(ctx context.Context, booking *models.Booking) error
}

type ChatFeed interface {
	BookingCreated(ctx context.Context, booking *models.Booking) error
	BookingArchived(ctx context.Context, booking *models.Booking) error
}

type IssueTracker interface {
	CreateIssue(ctx context.Context, summary, details string) error
}

type BookingServiceConfig struct {
	UndoWindow          time.Duration
	CollaboratorTimeout time.Duration
	RetryAttempts       int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
}

func DefaultBookingServiceConfig() BookingServiceConfig {
	return BookingServiceConfig{
		UndoWindow:          10 * time.Second,
		CollaboratorTimeout: 5 * time.Second,
		RetryAttempts:       3,
		BackoffBase:         100 * time.Millisecond,
		BackoffCap:          10 * time.Second,
	}
}

// BookingService owns the mutation-safety flow for bookings: duplicate
// suppression on create, optimistic concurrency on update, the undo window
// on delete, and the resilient envelope around every collaborator call.
type BookingService struct {
	bookings    BookingStore
	idempotency IdempotencyStore
	cache       BookingCache
	deposits    DepositProcessor
	calendar    CalendarFeed
	chat        ChatFeed
	tracker     IssueTracker
	envelope    *resilience.Envelope
	breakers    *resilience.BreakerRegistry
	undo        *scheduler.UndoScheduler
	cfg         BookingServiceConfig
	logger      *utils.Logger
}

func NewBookingService(
	bookings BookingStore,
	idempotency IdempotencyStore,
	cache BookingCache,
	deposits DepositProcessor,
	calendar CalendarFeed,
	chat ChatFeed,
	tracker IssueTracker,
	envelope *resilience.Envelope,
	breakers *resilience.BreakerRegistry,
	undo *scheduler.UndoScheduler,
	cfg BookingServiceConfig,
) *BookingService {
	if cfg.UndoWindow <= 0 {
		cfg.UndoWindow = 10 * time.Second
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 5 * time.Second
	}

	return &BookingService{
		bookings:    bookings,
		idempotency: idempotency,
		cache:       cache,
		deposits:    deposits,
		calendar:    calendar,
		chat:        chat,
		tracker:     tracker,
		envelope:    envelope,
		breakers:    breakers,
		undo:        undo,
		cfg:         cfg,
		logger:      utils.NewLogger("services"),
	}
}

type CreateBookingResult struct {
	Booking  *models.Booking
	Replayed bool
}

// CreateBooking executes the mutation at most once per idempotency key
// within the TTL window. A replayed completed request returns the cached
// booking verbatim; an in-flight duplicate fails distinctly. If the
// idempotency store itself is down the request proceeds as non-duplicate:
// availability of the primary operation wins over duplicate suppression.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.CreateBookingRequest) (*CreateBookingResult, error) {
	if req.ResourceID == "" || req.UserID == "" {
		return nil, utils.ErrInvalidRequest
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, utils.ErrInvalidRequest
	}

	key := req.IdempotencyKey
	if key == "" {
		key = DeriveIdempotencyKey(req.UserID, req.ResourceID, req.StartsAt)
	}

	claimed, claimTracked := s.claim(ctx, key)
	if !claimed {
		record, err := s.idempotency.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, utils.ErrDuplicateInFlight
		}
		if record.Status == models.IdempotencyStatusProcessing {
			return nil, utils.ErrDuplicateInFlight
		}

		var booking models.Booking
		if err := json.Unmarshal(record.ResponseBody, &booking); err != nil {
			return nil, err
		}
		return &CreateBookingResult{Booking: &booking, Replayed: true}, nil
	}

	booking, err := s.executeCreate(ctx, req, key)
	if err != nil {
		if claimTracked {
			if relErr := s.idempotency.Release(ctx, key); relErr != nil {
				s.logger.Warn(ctx, "failed to release idempotency claim", map[string]interface{}{
					"key":   key,
					"error": relErr.Error(),
				})
			}
		}
		return nil, err
	}

	if claimTracked {
		body, _ := json.Marshal(booking)
		if err := s.idempotency.Complete(ctx, key, http.StatusCreated, body); err != nil {
			s.logger.Warn(ctx, "failed to complete idempotency record", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	s.notifyCreated(ctx, booking)

	return &CreateBookingResult{Booking: booking}, nil
}

// claim reports whether the caller owns execution, and whether the claim is
// actually recorded. A store failure claims fail-open: the mutation runs,
// duplicate suppression is skipped for this request.
func (s *BookingService) claim(ctx context.Context, key string) (owned, tracked bool) {
	claimed, err := s.idempotency.Claim(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "idempotency store unavailable, failing open", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return true, false
	}
	return claimed, claimed
}

func (s *BookingService) executeCreate(ctx context.Context, req *models.CreateBookingRequest, key string) (*models.Booking, error) {
	var chargeID string

	if req.DepositAmount > 0 {
		result, err := s.envelope.Call(ctx, resilience.CallOptions{
			Name:          "deposits.charge",
			Timeout:       s.cfg.CollaboratorTimeout,
			RetryAttempts: s.cfg.RetryAttempts,
			BackoffBase:   s.cfg.BackoffBase,
			BackoffCap:    s.cfg.BackoffCap,
			Breaker:       s.breakers.Get(collab.CollaboratorDeposits),
			Critical:      true,
		}, func(ctx context.Context) (interface{}, error) {
			return s.deposits.Charge(ctx, req.UserID, req.DepositAmount, req.Currency,
				"Deposit for booking of "+req.ResourceID)
		})
		if err != nil {
			return nil, err
		}
		chargeID, _ = result.(string)
	}

	booking := &models.Booking{
		ResourceID:      req.ResourceID,
		UserID:          req.UserID,
		Title:           req.Title,
		Notes:           req.Notes,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Status:          models.BookingStatusConfirmed,
		Version:         1,
		DepositChargeID: chargeID,
		IdempotencyKey:  key,
		Metadata:        req.Metadata,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		if chargeID != "" {
			s.reverseDeposit(ctx, chargeID)
		}
		return nil, err
	}

	return booking, nil
}

// reverseDeposit undoes a collected deposit after a failed create. Best
// effort: on final failure it escalates to the issue tracker instead of
// surfacing to the user.
func (s *BookingService) reverseDeposit(ctx context.Context, chargeID string) {
	_, err := s.envelope.Call(ctx, resilience.CallOptions{
		Name:          "deposits.refund",
		Timeout:       s.cfg.CollaboratorTimeout,
		RetryAttempts: s.cfg.RetryAttempts,
		Breaker:       s.breakers.Get(collab.CollaboratorDeposits),
		Critical:      true,
	}, func(ctx context.Context) (interface{}, error) {
		return nil, s.deposits.Refund(ctx, chargeID, "booking creation failed")
	})
	if err == nil {
		return
	}

	s.logger.Error(ctx, "failed to reverse deposit", map[string]interface{}{
		"charge_id": chargeID,
		"error":     err.Error(),
	})
	s.envelope.Call(ctx, resilience.CallOptions{
		Name:     "tracker.create_issue",
		Timeout:  s.cfg.CollaboratorTimeout,
		Breaker:  s.breakers.Get(collab.CollaboratorTracker),
		Critical: false,
	}, func(ctx context.Context) (interface{}, error) {
		return nil, s.tracker.CreateIssue(ctx, "Orphaned booking deposit "+chargeID,
			fmt.Sprintf("Deposit charge %s could not be refunded after a failed booking create: %v", chargeID, err))
	})
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if cached := s.cache.Get(ctx, id); cached != nil {
		return cached, nil
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, booking)
	return booking, nil
}

func (s *BookingService) ListBookings(ctx context.Context, resourceID string, limit int) ([]models.Booking, error) {
	if resourceID == "" {
		return nil, utils.ErrInvalidRequest
	}
	return s.bookings.ListByResource(ctx, resourceID, limit)
}

// UpdateBooking applies the patch under optimistic concurrency control.
// With an expected version a stale caller gets a conflict carrying the
// authoritative version; without one the write is last-writer-wins but the
// version still advances by exactly one.
func (s *BookingService) UpdateBooking(ctx context.Context, id string, req *models.UpdateBookingRequest) (*models.Booking, error) {
	updated, err := s.bookings.UpdateWithVersion(ctx, id, req.ExpectedVersion, func(b *models.Booking) error {
		if b.Status == models.BookingStatusFinalized {
			return utils.ErrNotFound
		}
		if req.Title != nil {
			b.Title = *req.Title
		}
		if req.Notes != nil {
			b.Notes = *req.Notes
		}
		if req.StartsAt != nil {
			b.StartsAt = *req.StartsAt
		}
		if req.EndsAt != nil {
			b.EndsAt = *req.EndsAt
		}
		if req.Status != nil {
			b.Status = *req.Status
		}
		if !b.EndsAt.After(b.StartsAt) {
			return utils.ErrInvalidRequest
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	s.syncCalendar(ctx, updated)

	return updated, nil
}

// ArchiveBooking soft-deletes with an undo window. The prior state is
// snapshotted before the status flip; archiving an already-archived booking
// replaces the running timer and keeps the original snapshot.
func (s *BookingService) ArchiveBooking(ctx context.Context, id, actor, reason string) (*models.ArchiveBookingResult, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingStatusFinalized {
		return nil, utils.ErrNotFound
	}

	snapshot, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	if pending, ok := s.undo.Pending(entityTypeBooking, id); ok {
		snapshot = pending.Snapshot
	}

	archived := current
	if current.Status != models.BookingStatusArchived {
		now := time.Now()
		archived, err = s.bookings.UpdateWithVersion(ctx, id, nil, func(b *models.Booking) error {
			b.Status = models.BookingStatusArchived
			b.ArchivedAt = &now
			b.ArchiveReason = reason
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	pending := s.undo.Schedule(entityTypeBooking, id, snapshot, s.cfg.UndoWindow, func() {
		s.finalizeArchive(id)
	})

	s.cache.Invalidate(ctx, id)
	s.logger.Info(ctx, "booking archived", map[string]interface{}{
		"booking_id": id,
		"actor":      actor,
		"expires_at": pending.ExpiresAt,
	})

	return &models.ArchiveBookingResult{
		Booking:   archived,
		UndoToken: pending.UndoToken,
		ExpiresAt: pending.ExpiresAt,
	}, nil
}

// RestoreBooking reverses an archive within the undo window, reinstating
// the snapshotted prior state field for field.
func (s *BookingService) RestoreBooking(ctx context.Context, id, undoToken string) (*models.Booking, error) {
	pending, ok := s.undo.Lookup(undoToken)
	if !ok {
		return nil, utils.ErrUndoExpired
	}

	var previous models.Booking
	if err := json.Unmarshal(pending.Snapshot, &previous); err != nil {
		return nil, err
	}
	if previous.ID != id {
		return nil, utils.ErrUndoExpired
	}

	// The token is consumed only after the row is durably reinstated. A
	// failed write leaves the timer and snapshot in place so the caller can
	// retry with the same token for the rest of the window.
	if err := s.bookings.ReplaceFromSnapshot(ctx, &previous); err != nil {
		return nil, err
	}
	s.undo.Cancel(undoToken)

	s.cache.Invalidate(ctx, id)
	s.syncCalendar(ctx, &previous)

	return &previous, nil
}

// finalizeArchive runs once when the undo window elapses. Finalization keeps
// the row (status flip only) but supports a real purge hook later.
func (s *BookingService) finalizeArchive(id string) {
	ctx := context.Background()

	booking, err := s.bookings.UpdateWithVersion(ctx, id, nil, func(b *models.Booking) error {
		b.Status = models.BookingStatusFinalized
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "failed to finalize archived booking", map[string]interface{}{
			"booking_id": id,
			"error":      err.Error(),
		})
		return
	}

	s.cache.Invalidate(ctx, id)

	s.envelope.Call(ctx, resilience.CallOptions{
		Name:     "calendar.cancel",
		Timeout:  s.cfg.CollaboratorTimeout,
		Breaker:  s.breakers.Get(collab.CollaboratorCalendar),
		Critical: false,
	}, func(ctx context.Context) (interface{}, error) {
		return nil, s.calendar.CancelBooking(ctx, booking)
	})
	s.envelope.Call(ctx, resilience.CallOptions{
		Name:     "chat.booking_archived",
		Timeout:  s.cfg.CollaboratorTimeout,
		Breaker:  s.breakers.Get(collab.CollaboratorChat),
		Critical: false,
	}, func(ctx context.Context) (interface{}, error) {
		return nil, s.chat.BookingArchived(ctx, booking)
	})
}

func (s *BookingService) notifyCreated(ctx context.Context, booking *models.Booking) {
	s.syncCalendar(ctx, booking)
	s.envelope.Call(ctx, resilience.CallOptions{
		Name:     "chat.booking_created",
		Timeout:  s.cfg.CollaboratorTimeout,
		Breaker:  s.breakers.Get(collab.CollaboratorChat),
		Critical: false,
	}, func(ctx context.Context) (interface{}, error) {
		return nil, s.chat.BookingCreated(ctx, booking)
	})
}

func (s *BookingService) syncCalendar(ctx context.Context, booking *models.Booking) {
	s.envelope.Call(ctx, resilience.CallOptions{
		Name:     "calendar.sync",
		Timeout:  s.cfg.CollaboratorTimeout,
		Breaker:  s.breakers.Get(collab.CollaboratorCalendar),
		Critical: false,
	}, func(ctx context.Context) (interface{}, error) {
		return nil, s.calendar.SyncBooking(ctx, booking)
	})
}

// DeriveIdempotencyKey builds a deterministic key from the mutation's
// natural identity tuple so accidental double-submits collide even when the
// client supplies no explicit token.
func DeriveIdempotencyKey(userID, resourceID string, startsAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", userID, resourceID, startsAt.Unix())))
	return "derived:" + hex.EncodeToString(sum[:16])
}
