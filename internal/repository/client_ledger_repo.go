package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/models"
)

type ClientLedgerRepository struct {
	db *gorm.DB
}

func NewClientLedgerRepository(db *gorm.DB) *ClientLedgerRepository {
	return &ClientLedgerRepository{db: db}
}

func (r *ClientLedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ClientLedger, error) {
	var ledger models.ClientLedger
	err := r.db.WithContext(ctx).First(&ledger, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("client ledger %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// GetMany loads the named ledgers and fails if any id is missing.
func (r *ClientLedgerRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]models.ClientLedger, error) {
	var ledgers []models.ClientLedger
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&ledgers).Error
	if err != nil {
		return nil, err
	}
	if len(ledgers) != len(ids) {
		found := make(map[uuid.UUID]struct{}, len(ledgers))
		for _, l := range ledgers {
			found[l.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return nil, apperr.NotFoundf("client ledger %s not found", id)
			}
		}
	}
	return ledgers, nil
}

func (r *ClientLedgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.ClientLedger, error) {
	var ledgers []models.ClientLedger
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&ledgers).Error
	return ledgers, err
}
