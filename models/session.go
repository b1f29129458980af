package models

import (
	"time"
)

const RevokeReasonReplayDetected = "replay_detected"

type Session struct {
	ID                string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            string     `json:"user_id" gorm:"not null;index"`
	CurrentTokenHash  string     `json:"-" gorm:"not null"`
	PreviousTokenHash *string    `json:"-"`
	RotationCounter   int64      `json:"rotation_counter" gorm:"not null;default:0"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
	LastSeenAt        time.Time  `json:"last_seen_at"`
	ExpiresAt         time.Time  `json:"expires_at" gorm:"not null;index"`
	RevokedAt         *time.Time `json:"revoked_at"`
	RevokeReason      string     `json:"revoke_reason"`
}

func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
