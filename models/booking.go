package models

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusArchived  BookingStatus = "archived"
	BookingStatusFinalized BookingStatus = "finalized"
	BookingStatusCanceled  BookingStatus = "canceled"
)

type Booking struct {
	ID               string        `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ResourceID       string        `json:"resource_id" gorm:"not null;index"`
	UserID           string        `json:"user_id" gorm:"not null;index"`
	Title            string        `json:"title"`
	Notes            string        `json:"notes"`
	StartsAt         time.Time     `json:"starts_at" gorm:"not null;index"`
	EndsAt           time.Time     `json:"ends_at" gorm:"not null"`
	Status           BookingStatus `json:"status" gorm:"not null;default:'pending'"`
	Version          int64         `json:"version" gorm:"not null;default:1"`
	DepositChargeID  string        `json:"deposit_charge_id"`
	IdempotencyKey   string        `json:"idempotency_key" gorm:"index"`
	ArchivedAt       *time.Time    `json:"archived_at"`
	ArchiveReason    string        `json:"archive_reason"`
	Metadata         JSON          `json:"metadata" gorm:"type:jsonb"`
	CreatedAt        time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// ETag derives a cache-validation tag from the version stamp so clients
// without version awareness can still use If-Match style preconditions.
func (b *Booking) ETag() string {
	return fmt.Sprintf("\"v%d\"", b.Version)
}

type CreateBookingRequest struct {
	ResourceID     string    `json:"resource_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Notes          string    `json:"notes"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	DepositAmount  int64     `json:"deposit_amount"`
	Currency       string    `json:"currency"`
	IdempotencyKey string    `json:"-"`
	Metadata       JSON      `json:"metadata,omitempty"`
}

type UpdateBookingRequest struct {
	Title           *string        `json:"title,omitempty"`
	Notes           *string        `json:"notes,omitempty"`
	StartsAt        *time.Time     `json:"starts_at,omitempty"`
	EndsAt          *time.Time     `json:"ends_at,omitempty"`
	Status          *BookingStatus `json:"status,omitempty"`
	ExpectedVersion *int64         `json:"-"`
}

type ArchiveBookingResult struct {
	Booking   *Booking  `json:"booking"`
	UndoToken string    `json:"undo_token"`
	ExpiresAt time.Time `json:"undo_expires_at"`
}
