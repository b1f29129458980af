package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/resilience"
	"github.com/malwarebo/reserva/scheduler"
	"github.com/malwarebo/reserva/utils"
)

type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	nextID   int

	createErr  error
	replaceErr error
	replaced   []*models.Booking
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[string]*models.Booking)}
}

func (s *fakeBookingStore) Create(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if booking.ID == "" {
		s.nextID++
		booking.ID = fmt.Sprintf("bk-%d", s.nextID)
	}
	copied := *booking
	s.bookings[booking.ID] = &copied
	return nil
}

func (s *fakeBookingStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bookings[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *fakeBookingStore) UpdateWithVersion(ctx context.Context, id string, expectedVersion *int64, mutate func(*models.Booking) error) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bookings[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	if expectedVersion != nil && *expectedVersion != stored.Version {
		return nil, &utils.VersionConflictError{
			EntityID:        id,
			CurrentVersion:  stored.Version,
			ExpectedVersion: *expectedVersion,
		}
	}

	updated := *stored
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	updated.Version = stored.Version + 1
	s.bookings[id] = &updated

	copied := updated
	return &copied, nil
}

func (s *fakeBookingStore) ListByResource(ctx context.Context, resourceID string, limit int) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.ResourceID == resourceID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeBookingStore) ReplaceFromSnapshot(ctx context.Context, snapshot *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	copied := *snapshot
	s.bookings[snapshot.ID] = &copied
	s.replaced = append(s.replaced, &copied)
	return nil
}

func (s *fakeBookingStore) get(id string) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		copied := *b
		return &copied
	}
	return nil
}

type fakeIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*models.IdempotencyRecord

	claimErr  error
	released  []string
	completed []string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{records: make(map[string]*models.IdempotencyRecord)}
}

func (s *fakeIdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if _, exists := s.records[key]; exists {
		return false, nil
	}
	s.records[key] = &models.IdempotencyRecord{
		Key:       key,
		Status:    models.IdempotencyStatusProcessing,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	return true, nil
}

func (s *fakeIdempotencyStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *fakeIdempotencyStore) Complete(ctx context.Context, key string, responseCode int, responseBody []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[key]; ok {
		record.Status = models.IdempotencyStatusCompleted
		record.ResponseCode = responseCode
		record.ResponseBody = responseBody
	}
	s.completed = append(s.completed, key)
	return nil
}

func (s *fakeIdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	s.released = append(s.released, key)
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]*models.Booking
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.Booking)}
}

func (c *fakeCache) Get(ctx context.Context, id string) *models.Booking {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id]
}

func (c *fakeCache) Put(ctx context.Context, booking *models.Booking) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[booking.ID] = booking
}

func (c *fakeCache) Invalidate(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
}

type fakeDeposits struct {
	mu        sync.Mutex
	chargeErr error
	refundErr error
	charges   int
	refunded  []string
}

func (d *fakeDeposits) Charge(ctx context.Context, customerID string, amount int64, currency, description string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chargeErr != nil {
		return "", d.chargeErr
	}
	d.charges++
	return fmt.Sprintf("ch_%d", d.charges), nil
}

func (d *fakeDeposits) Refund(ctx context.Context, chargeID, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refundErr != nil {
		return d.refundErr
	}
	d.refunded = append(d.refunded, chargeID)
	return nil
}

type fakeCalendar struct {
	mu       sync.Mutex
	synced   int
	canceled int
}

func (c *fakeCalendar) SyncBooking(ctx context.Context, booking *models.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced++
	return nil
}

func (c *fakeCalendar) CancelBooking(ctx context.Context, booking *models.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled++
	return nil
}

type fakeChat struct {
	mu       sync.Mutex
	created  int
	archived int
}

func (c *fakeChat) BookingCreated(ctx context.Context, booking *models.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	return nil
}

func (c *fakeChat) BookingArchived(ctx context.Context, booking *models.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archived++
	return nil
}

type fakeTracker struct {
	mu     sync.Mutex
	issues []string
}

func (f *fakeTracker) CreateIssue(ctx context.Context, summary, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, summary)
	return nil
}

type serviceFixture struct {
	service  *BookingService
	bookings *fakeBookingStore
	idem     *fakeIdempotencyStore
	cache    *fakeCache
	deposits *fakeDeposits
	calendar *fakeCalendar
	chat     *fakeChat
	tracker  *fakeTracker
}

func newServiceFixture(undoWindow time.Duration) *serviceFixture {
	f := &serviceFixture{
		bookings: newFakeBookingStore(),
		idem:     newFakeIdempotencyStore(),
		cache:    newFakeCache(),
		deposits: &fakeDeposits{},
		calendar: &fakeCalendar{},
		chat:     &fakeChat{},
		tracker:  &fakeTracker{},
	}

	f.service = NewBookingService(
		f.bookings,
		f.idem,
		f.cache,
		f.deposits,
		f.calendar,
		f.chat,
		f.tracker,
		resilience.CreateEnvelope(),
		resilience.CreateBreakerRegistry(resilience.BreakerRegistryConfig{Threshold: 10, ResetTimeout: time.Minute}),
		scheduler.CreateUndoScheduler(scheduler.RealClock()),
		BookingServiceConfig{
			UndoWindow:          undoWindow,
			CollaboratorTimeout: time.Second,
			RetryAttempts:       1,
			BackoffBase:         time.Millisecond,
			BackoffCap:          5 * time.Millisecond,
		},
	)
	return f
}

func validCreateRequest() *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		ResourceID:     "room-7",
		UserID:         "user-1",
		Title:          "Standup",
		StartsAt:       time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		EndsAt:         time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
		DepositAmount:  2500,
		Currency:       "usd",
		IdempotencyKey: "key-1",
	}
}

func TestCreateBooking_Success(t *testing.T) {
	f := newServiceFixture(time.Minute)

	result, err := f.service.CreateBooking(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if result.Replayed {
		t.Error("Replayed = true, want false")
	}
	if result.Booking.Status != models.BookingStatusConfirmed {
		t.Errorf("Status = %v, want confirmed", result.Booking.Status)
	}
	if result.Booking.Version != 1 {
		t.Errorf("Version = %d, want 1", result.Booking.Version)
	}
	if result.Booking.DepositChargeID == "" {
		t.Error("DepositChargeID empty, deposit was not charged")
	}
	if len(f.idem.completed) != 1 {
		t.Errorf("completed idempotency records = %d, want 1", len(f.idem.completed))
	}
}

func TestCreateBooking_RejectsInvalidWindow(t *testing.T) {
	f := newServiceFixture(time.Minute)

	req := validCreateRequest()
	req.EndsAt = req.StartsAt

	_, err := f.service.CreateBooking(context.Background(), req)
	if !errors.Is(err, utils.ErrInvalidRequest) {
		t.Errorf("CreateBooking() error = %v, want ErrInvalidRequest", err)
	}
}

func TestCreateBooking_DuplicateInFlight(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	f.idem.Claim(ctx, "key-1")

	_, err := f.service.CreateBooking(ctx, validCreateRequest())
	if !errors.Is(err, utils.ErrDuplicateInFlight) {
		t.Errorf("CreateBooking() error = %v, want ErrDuplicateInFlight", err)
	}
}

func TestCreateBooking_ReplaysCompletedRequest(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	first, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("first CreateBooking() error = %v", err)
	}

	second, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("second CreateBooking() error = %v", err)
	}
	if !second.Replayed {
		t.Error("Replayed = false, want true for completed duplicate")
	}
	if second.Booking.ID != first.Booking.ID {
		t.Errorf("replayed booking ID = %s, want %s", second.Booking.ID, first.Booking.ID)
	}
	if f.deposits.charges != 1 {
		t.Errorf("deposit charges = %d, want 1 (replay must not re-charge)", f.deposits.charges)
	}
}

func TestCreateBooking_FailOpenWhenClaimStoreDown(t *testing.T) {
	f := newServiceFixture(time.Minute)
	f.idem.claimErr = errors.New("connection refused")

	result, err := f.service.CreateBooking(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v, want fail-open success", err)
	}
	if result.Booking == nil {
		t.Fatal("no booking returned")
	}
	if len(f.idem.completed) != 0 {
		t.Errorf("completed records = %d, want 0 when claim was never tracked", len(f.idem.completed))
	}
}

func TestCreateBooking_DepositFailureReleasesClaim(t *testing.T) {
	f := newServiceFixture(time.Minute)
	f.deposits.chargeErr = &utils.StatusError{Code: 402, Message: "card declined"}

	_, err := f.service.CreateBooking(context.Background(), validCreateRequest())
	if err == nil {
		t.Fatal("CreateBooking() expected error")
	}
	if len(f.idem.released) != 1 {
		t.Errorf("released claims = %d, want 1", len(f.idem.released))
	}

	// With the claim released a retry may run again.
	f.deposits.chargeErr = nil
	if _, err := f.service.CreateBooking(context.Background(), validCreateRequest()); err != nil {
		t.Errorf("retry CreateBooking() error = %v, want nil", err)
	}
}

func TestCreateBooking_StoreFailureRefundsDeposit(t *testing.T) {
	f := newServiceFixture(time.Minute)
	f.bookings.createErr = errors.New("insert failed")

	_, err := f.service.CreateBooking(context.Background(), validCreateRequest())
	if err == nil {
		t.Fatal("CreateBooking() expected error")
	}
	if len(f.deposits.refunded) != 1 {
		t.Errorf("refunded charges = %d, want 1", len(f.deposits.refunded))
	}
}

func TestDeriveIdempotencyKey_Deterministic(t *testing.T) {
	at := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	a := DeriveIdempotencyKey("user-1", "room-7", at)
	b := DeriveIdempotencyKey("user-1", "room-7", at)
	c := DeriveIdempotencyKey("user-2", "room-7", at)

	if a != b {
		t.Errorf("same tuple produced different keys: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different users produced the same key")
	}
}

func TestUpdateBooking_AdvancesVersion(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}

	title := "Retro"
	expected := created.Booking.Version
	updated, err := f.service.UpdateBooking(ctx, created.Booking.ID, &models.UpdateBookingRequest{
		Title:           &title,
		ExpectedVersion: &expected,
	})
	if err != nil {
		t.Fatalf("UpdateBooking() error = %v", err)
	}
	if updated.Version != expected+1 {
		t.Errorf("Version = %d, want %d", updated.Version, expected+1)
	}
	if updated.Title != "Retro" {
		t.Errorf("Title = %q, want Retro", updated.Title)
	}
}

func TestUpdateBooking_StaleVersionConflicts(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	id := created.Booking.ID

	titleA := "First writer"
	v1 := created.Booking.Version
	if _, err := f.service.UpdateBooking(ctx, id, &models.UpdateBookingRequest{Title: &titleA, ExpectedVersion: &v1}); err != nil {
		t.Fatalf("first UpdateBooking() error = %v", err)
	}

	titleB := "Stale writer"
	_, err = f.service.UpdateBooking(ctx, id, &models.UpdateBookingRequest{Title: &titleB, ExpectedVersion: &v1})

	var conflict *utils.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("UpdateBooking() error = %v, want VersionConflictError", err)
	}
	if conflict.CurrentVersion != v1+1 {
		t.Errorf("CurrentVersion = %d, want %d", conflict.CurrentVersion, v1+1)
	}
	if f.bookings.get(id).Title != "First writer" {
		t.Error("stale write clobbered the first writer's update")
	}
}

func TestUpdateBooking_NoPreconditionLastWriterWins(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}

	title := "No precondition"
	updated, err := f.service.UpdateBooking(ctx, created.Booking.ID, &models.UpdateBookingRequest{Title: &title})
	if err != nil {
		t.Fatalf("UpdateBooking() error = %v", err)
	}
	if updated.Version != created.Booking.Version+1 {
		t.Errorf("Version = %d, want %d", updated.Version, created.Booking.Version+1)
	}
}

func TestArchiveAndRestoreBooking(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	id := created.Booking.ID

	archived, err := f.service.ArchiveBooking(ctx, id, "user-1", "no longer needed")
	if err != nil {
		t.Fatalf("ArchiveBooking() error = %v", err)
	}
	if archived.Booking.Status != models.BookingStatusArchived {
		t.Errorf("Status = %v, want archived", archived.Booking.Status)
	}
	if archived.UndoToken == "" {
		t.Fatal("no undo token issued")
	}

	restored, err := f.service.RestoreBooking(ctx, id, archived.UndoToken)
	if err != nil {
		t.Fatalf("RestoreBooking() error = %v", err)
	}
	if restored.Status != created.Booking.Status {
		t.Errorf("restored Status = %v, want %v", restored.Status, created.Booking.Status)
	}
	if restored.Version != created.Booking.Version {
		t.Errorf("restored Version = %d, want %d (snapshot restores the prior state verbatim)", restored.Version, created.Booking.Version)
	}
	if restored.ArchivedAt != nil {
		t.Error("restored booking still carries ArchivedAt")
	}
}

func TestRestoreBooking_RetryAfterStoreFailure(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	id := created.Booking.ID

	archived, err := f.service.ArchiveBooking(ctx, id, "user-1", "mistake")
	if err != nil {
		t.Fatalf("ArchiveBooking() error = %v", err)
	}

	f.bookings.replaceErr = errors.New("write failed")
	if _, err := f.service.RestoreBooking(ctx, id, archived.UndoToken); err == nil {
		t.Fatal("RestoreBooking() with failing store returned nil error")
	}

	// The failed write must not consume the token: the same token restores
	// the booking once the store recovers.
	f.bookings.replaceErr = nil
	restored, err := f.service.RestoreBooking(ctx, id, archived.UndoToken)
	if err != nil {
		t.Fatalf("RestoreBooking() retry error = %v", err)
	}
	if restored.Status != created.Booking.Status {
		t.Errorf("restored Status = %v, want %v", restored.Status, created.Booking.Status)
	}

	// The retry consumed the token, so a third use is rejected.
	if _, err := f.service.RestoreBooking(ctx, id, archived.UndoToken); !errors.Is(err, utils.ErrUndoExpired) {
		t.Errorf("RestoreBooking() reused token error = %v, want ErrUndoExpired", err)
	}
}

func TestRestoreBooking_UnknownToken(t *testing.T) {
	f := newServiceFixture(time.Minute)

	_, err := f.service.RestoreBooking(context.Background(), "bk-1", "bogus-token")
	if !errors.Is(err, utils.ErrUndoExpired) {
		t.Errorf("RestoreBooking() error = %v, want ErrUndoExpired", err)
	}
}

func TestArchiveBooking_FinalizesAfterWindow(t *testing.T) {
	f := newServiceFixture(30 * time.Millisecond)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	id := created.Booking.ID

	archived, err := f.service.ArchiveBooking(ctx, id, "user-1", "")
	if err != nil {
		t.Fatalf("ArchiveBooking() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.bookings.get(id).Status == models.BookingStatusFinalized {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := f.bookings.get(id).Status; got != models.BookingStatusFinalized {
		t.Fatalf("Status = %v, want finalized after window", got)
	}

	if _, err := f.service.RestoreBooking(ctx, id, archived.UndoToken); !errors.Is(err, utils.ErrUndoExpired) {
		t.Errorf("RestoreBooking() after expiry error = %v, want ErrUndoExpired", err)
	}
}

func TestArchiveBooking_ReArchiveKeepsOriginalSnapshot(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	id := created.Booking.ID

	first, err := f.service.ArchiveBooking(ctx, id, "user-1", "")
	if err != nil {
		t.Fatalf("first ArchiveBooking() error = %v", err)
	}
	second, err := f.service.ArchiveBooking(ctx, id, "user-1", "")
	if err != nil {
		t.Fatalf("second ArchiveBooking() error = %v", err)
	}
	if first.UndoToken == second.UndoToken {
		t.Error("re-archive reused the undo token")
	}

	// The first token was replaced, only the second works.
	if _, err := f.service.RestoreBooking(ctx, id, first.UndoToken); !errors.Is(err, utils.ErrUndoExpired) {
		t.Errorf("RestoreBooking() with replaced token error = %v, want ErrUndoExpired", err)
	}

	restored, err := f.service.RestoreBooking(ctx, id, second.UndoToken)
	if err != nil {
		t.Fatalf("RestoreBooking() error = %v", err)
	}
	if restored.Status != created.Booking.Status {
		t.Errorf("restored Status = %v, want pre-archive %v", restored.Status, created.Booking.Status)
	}
}

func TestGetBooking_CacheReadThrough(t *testing.T) {
	f := newServiceFixture(time.Minute)
	ctx := context.Background()

	created, err := f.service.CreateBooking(ctx, validCreateRequest())
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	id := created.Booking.ID

	first, err := f.service.GetBooking(ctx, id)
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if f.cache.Get(ctx, id) == nil {
		t.Error("booking not cached after read")
	}

	second, err := f.service.GetBooking(ctx, id)
	if err != nil {
		t.Fatalf("second GetBooking() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("cache returned different booking: %s vs %s", first.ID, second.ID)
	}
}
