package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/models"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.ReconciliationRecord, error) {
	var records []models.ReconciliationRecord
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("period_end DESC").
		Find(&records).Error
	return records, err
}
