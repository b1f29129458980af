package stores

import (
	"context"

	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/utils"
	"gorm.io/gorm"
)

// BookingStore guards booking rows with version-stamped conditional updates.
// The WHERE version = ? clause is the single arbiter between concurrent
// writers: of two racing updates exactly one sees RowsAffected = 1.
type BookingStore struct {
	BaseStore
}

func CreateBookingStore(db *gorm.DB) *BookingStore {
	return &BookingStore{BaseStore: BaseStore{db: db}}
}

func (s *BookingStore) Create(ctx context.Context, booking *models.Booking) error {
	if booking.Version == 0 {
		booking.Version = 1
	}
	return s.GetDB(ctx).Create(booking).Error
}

func (s *BookingStore) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.GetDB(ctx).Where("id = ?", id).First(&booking).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateWithVersion applies mutate under optimistic concurrency control.
// When expectedVersion is set and stale the update is rejected before any
// write, with the authoritative version in the error. Without a precondition
// the write still bumps the version but the last writer wins. A lost race at
// write time is reported the same way as a stale precondition.
func (s *BookingStore) UpdateWithVersion(ctx context.Context, id string, expectedVersion *int64, mutate func(*models.Booking) error) (*models.Booking, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if expectedVersion != nil && *expectedVersion != current.Version {
		return nil, &utils.VersionConflictError{
			EntityID:        id,
			CurrentVersion:  current.Version,
			ExpectedVersion: *expectedVersion,
		}
	}

	loadedVersion := current.Version

	updated := *current
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.Version = loadedVersion + 1

	res := s.GetDB(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", id, loadedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(&updated)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		fresh, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := loadedVersion
		if expectedVersion != nil {
			expected = *expectedVersion
		}
		return nil, &utils.VersionConflictError{
			EntityID:        id,
			CurrentVersion:  fresh.Version,
			ExpectedVersion: expected,
		}
	}

	return &updated, nil
}

// ReplaceFromSnapshot reinstates a full prior record, version included. Only
// the undo path uses this: restore is defined as field-for-field recovery of
// the pre-archive state, not a regular update.
func (s *BookingStore) ReplaceFromSnapshot(ctx context.Context, snapshot *models.Booking) error {
	return s.GetDB(ctx).
		Model(&models.Booking{}).
		Where("id = ?", snapshot.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(snapshot).Error
}

func (s *BookingStore) ListByResource(ctx context.Context, resourceID string, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	var bookings []models.Booking
	err := s.GetDB(ctx).
		Where("resource_id = ?", resourceID).
		Order("starts_at desc").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}
