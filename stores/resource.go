package stores

import (
	"context"

	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/utils"
	"gorm.io/gorm"
)

type ResourceStore struct {
	BaseStore
}

func CreateResourceStore(db *gorm.DB) *ResourceStore {
	return &ResourceStore{BaseStore: BaseStore{db: db}}
}

func (s *ResourceStore) Create(ctx context.Context, resource *models.Resource) error {
	if resource.Version == 0 {
		resource.Version = 1
	}
	return s.GetDB(ctx).Create(resource).Error
}

func (s *ResourceStore) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	var resource models.Resource
	err := s.GetDB(ctx).Where("id = ?", id).First(&resource).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// UpdateWithVersion mirrors BookingStore.UpdateWithVersion for resources.
func (s *ResourceStore) UpdateWithVersion(ctx context.Context, id string, expectedVersion *int64, mutate func(*models.Resource) error) (*models.Resource, error) {
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
		Model(&models.Resource{}).
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
