package services

import (
	"context"

	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/utils"
)

type ResourceStore interface {
	Create(ctx context.Context, resource *models.Resource) error
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	UpdateWithVersion(ctx context.Context, id string, expectedVersion *int64, mutate func(*models.Resource) error) (*models.Resource, error)
}

// ResourceService manages the bookable facilities themselves. Resources get
// the same version-guarded updates as bookings so two admins editing the same
// room cannot silently clobber each other.
type ResourceService struct {
	resources ResourceStore
}

func NewResourceService(resources ResourceStore) *ResourceService {
	return &ResourceService{resources: resources}
}

func (s *ResourceService) CreateResource(ctx context.Context, resource *models.Resource) (*models.Resource, error) {
	if resource.Name == "" || resource.Kind == "" {
		return nil, utils.ErrInvalidRequest
	}
	if resource.Status == "" {
		resource.Status = models.ResourceStatusActive
	}

	if err := s.resources.Create(ctx, resource); err != nil {
		return nil, err
	}
	return resource, nil
}

func (s *ResourceService) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	return s.resources.GetByID(ctx, id)
}

func (s *ResourceService) UpdateResource(ctx context.Context, id string, req *models.UpdateResourceRequest) (*models.Resource, error) {
	return s.resources.UpdateWithVersion(ctx, id, req.ExpectedVersion, func(r *models.Resource) error {
		if r.Status == models.ResourceStatusRetired {
			return utils.ErrNotFound
		}
		if req.Name != nil {
			r.Name = *req.Name
		}
		if req.Capacity != nil {
			r.Capacity = *req.Capacity
		}
		if req.Status != nil {
			r.Status = *req.Status
		}
		if r.Capacity < 1 {
			return utils.ErrInvalidRequest
		}
		return nil
	})
}
