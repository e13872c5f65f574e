package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/models"
)

type TrustAccountRepository struct {
	db *gorm.DB
}

func NewTrustAccountRepository(db *gorm.DB) *TrustAccountRepository {
	return &TrustAccountRepository{db: db}
}

// Expose DB if needed
func (r *TrustAccountRepository) DB() *gorm.DB {
	return r.db
}

func (r *TrustAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TrustAccount, error) {
	var account models.TrustAccount
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("trust account %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns accounts filtered by owning firm entity and office; empty
// filters match everything.
func (r *TrustAccountRepository) List(ctx context.Context, firmEntity, office string) ([]models.TrustAccount, error) {
	var accounts []models.TrustAccount

	query := r.db.WithContext(ctx).Model(&models.TrustAccount{}).Order("created_at ASC")
	if firmEntity != "" {
		query = query.Where("firm_entity = ?", firmEntity)
	}
	if office != "" {
		query = query.Where("office = ?", office)
	}

	err := query.Find(&accounts).Error
	return accounts, err
}
