package models

import (
	"time"
)

type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord deduplicates retried mutating requests. The key is the
// primary key so a claim is a plain conditional insert: the store's
// uniqueness guarantee is the arbiter between concurrent claimants.
type IdempotencyRecord struct {
	Key          string            `json:"key" gorm:"primaryKey"`
	Status       IdempotencyStatus `json:"status" gorm:"not null;default:'processing'"`
	ResponseCode int               `json:"response_code"`
	ResponseBody []byte            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime"`
	ExpiresAt    time.Time         `json:"expires_at" gorm:"not null;index"`
}

func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
