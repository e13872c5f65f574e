package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/models"
)

type TrustTransactionRepository struct {
	db *gorm.DB
}

func NewTrustTransactionRepository(db *gorm.DB) *TrustTransactionRepository {
	return &TrustTransactionRepository{db: db}
}

func (r *TrustTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TrustTransaction, error) {
	var txn models.TrustTransaction
	err := r.db.WithContext(ctx).
		Preload("Allocations").
		First(&txn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("transaction %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListByAccount pages through an account's transactions with an id cursor,
// optionally filtered by status.
func (r *TrustTransactionRepository) ListByAccount(
	ctx context.Context,
	accountID uuid.UUID,
	status string,
	cursor string,
	limit int,
) ([]models.TrustTransaction, string, bool, error) {

	var txns []models.TrustTransaction
	query := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("account_id = ?", accountID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&txns).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(txns) > limit {
		hasMore = true
		nextCursor = txns[limit-1].ID.String()
		txns = txns[:limit]
	}

	return txns, nextCursor, hasMore, nil
}
