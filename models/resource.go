package models

import (
	"fmt"
	"time"
)

type ResourceStatus string

const (
	ResourceStatusActive      ResourceStatus = "active"
	ResourceStatusMaintenance ResourceStatus = "maintenance"
	ResourceStatusRetired     ResourceStatus = "retired"
)

type Resource struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name      string         `json:"name" gorm:"not null"`
	Kind      string         `json:"kind" gorm:"not null;index"`
	Capacity  int            `json:"capacity" gorm:"default:1"`
	Status    ResourceStatus `json:"status" gorm:"not null;default:'active'"`
	Version   int64          `json:"version" gorm:"not null;default:1"`
	Metadata  JSON           `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (r *Resource) ETag() string {
	return fmt.Sprintf("\"v%d\"", r.Version)
}

type UpdateResourceRequest struct {
	Name            *string         `json:"name,omitempty"`
	Capacity        *int            `json:"capacity,omitempty"`
	Status          *ResourceStatus `json:"status,omitempty"`
	ExpectedVersion *int64          `json:"-"`
}
