package stores

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type contextKey string

const TxKey contextKey = "tx"

type BaseStore struct {
	db *gorm.DB
}

// GetDB returns the transaction carried by the context when one is active,
// so a service can span several store calls in a single transaction.
func (s *BaseStore) GetDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxKey).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

func (s *BaseStore) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, TxKey, tx)
		return fn(txCtx)
	})
}

// isUniqueViolation matches the duplicate-key failures surfaced by the
// postgres driver when a conditional insert loses to a concurrent claimant.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "SQLSTATE 23505")
}
