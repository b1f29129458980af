package stores

import (
	"context"
	"time"

	"github.com/malwarebo/reserva/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultIdempotencyTTL = 5 * time.Minute

// IdempotencyStore implements the claim/complete protocol over the durable
// table. The conditional insert on the primary key serializes concurrent
// claimants: exactly one wins.
type IdempotencyStore struct {
	BaseStore
	ttl time.Duration
}

func CreateIdempotencyStore(db *gorm.DB, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{BaseStore: BaseStore{db: db}, ttl: ttl}
}

// Claim attempts to take ownership of key. True means the caller owns
// execution of the mutation; false means a concurrent or prior request
// already owns or owned it. A record left over from before the TTL window
// is purged and re-claimed as new.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	now := time.Now()

	record := &models.IdempotencyRecord{
		Key:       key,
		Status:    models.IdempotencyStatusProcessing,
		ExpiresAt: now.Add(s.ttl),
	}

	res := s.GetDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		if !isUniqueViolation(res.Error) {
			return false, res.Error
		}
	} else if res.RowsAffected > 0 {
		return true, nil
	}

	var existing models.IdempotencyRecord
	if err := s.GetDB(ctx).Where("key = ?", key).First(&existing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Raced with a cleanup; one more insert attempt.
			res := s.GetDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
			return res.Error == nil && res.RowsAffected > 0, res.Error
		}
		return false, err
	}

	if existing.Expired(now) {
		if err := s.GetDB(ctx).Where("key = ? AND expires_at < ?", key, now).
			Delete(&models.IdempotencyRecord{}).Error; err != nil {
			return false, err
		}
		res := s.GetDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if res.Error != nil && !isUniqueViolation(res.Error) {
			return false, res.Error
		}
		return res.Error == nil && res.RowsAffected > 0, nil
	}

	return false, nil
}

// Get returns the live record for key, or nil when there is none. Callers
// distinguish an in-flight duplicate (Processing) from a completed request
// whose cached response should be replayed verbatim.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := s.GetDB(ctx).Where("key = ?", key).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if record.Expired(time.Now()) {
		return nil, nil
	}

	return &record, nil
}

// Complete transitions the record to Completed and caches the response for
// exact replay. The TTL is unchanged: records expire on a fixed window
// regardless of terminal state.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, responseCode int, responseBody []byte) error {
	return s.GetDB(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"status":        models.IdempotencyStatusCompleted,
			"response_code": responseCode,
			"response_body": responseBody,
		}).Error
}

// Release drops an unfinished claim so a later retry is not stuck behind a
// failed execution for the rest of the TTL.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.GetDB(ctx).
		Where("key = ? AND status = ?", key, models.IdempotencyStatusProcessing).
		Delete(&models.IdempotencyRecord{}).Error
}

func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.GetDB(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.IdempotencyRecord{})
	return result.RowsAffected, result.Error
}
