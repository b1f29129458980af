package stores

import (
	"context"
	"time"

	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/utils"
	"gorm.io/gorm"
)

type SessionStore struct {
	BaseStore
}

func CreateSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{BaseStore: BaseStore{db: db}}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	return s.GetDB(ctx).Create(session).Error
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.GetDB(ctx).Where("id = ?", id).First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// AdvanceRotation shifts the hash pair forward conditionally on the rotation
// counter, so two near-simultaneous rotations of the same session produce
// exactly one winner. False means the caller lost the race and should
// re-read the session.
func (s *SessionStore) AdvanceRotation(ctx context.Context, session *models.Session, newHash string, newExpiry time.Time) (bool, error) {
	now := time.Now()
	res := s.GetDB(ctx).
		Model(&models.Session{}).
		Where("id = ? AND rotation_counter = ? AND revoked_at IS NULL", session.ID, session.RotationCounter).
		Updates(map[string]interface{}{
			"previous_token_hash": session.CurrentTokenHash,
			"current_token_hash":  newHash,
			"rotation_counter":    session.RotationCounter + 1,
			"last_seen_at":        now,
			"expires_at":          newExpiry,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ConsumeGrace clears the previous-token hash conditionally, so the
// one-time grace fallback is honored at most once per rotation cycle.
func (s *SessionStore) ConsumeGrace(ctx context.Context, id, previousHash string) (bool, error) {
	res := s.GetDB(ctx).
		Model(&models.Session{}).
		Where("id = ? AND previous_token_hash = ? AND revoked_at IS NULL", id, previousHash).
		Updates(map[string]interface{}{
			"previous_token_hash": nil,
			"last_seen_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SessionStore) TouchLastSeen(ctx context.Context, id string) error {
	return s.GetDB(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now()).Error
}

// Revoke is permanent and monotonic: a session that already carries a
// revoked_at keeps its original timestamp and reason.
func (s *SessionStore) Revoke(ctx context.Context, id, reason string) error {
	return s.GetDB(ctx).
		Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{
			"revoked_at":    time.Now(),
			"revoke_reason": reason,
		}).Error
}

// RevokeAllForUser revokes every live session of a user, optionally sparing
// one (the caller's own, for "log out everywhere else").
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID, exceptSessionID, reason string) (int64, error) {
	query := s.GetDB(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID)
	if exceptSessionID != "" {
		query = query.Where("id <> ?", exceptSessionID)
	}

	res := query.Updates(map[string]interface{}{
		"revoked_at":    time.Now(),
		"revoke_reason": reason,
	})
	return res.RowsAffected, res.Error
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.GetDB(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
