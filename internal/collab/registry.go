package collab

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/interfaces"
	"trust-accounting-backend/internal/models"
)

// TableRegistry checks client and matter references against the platform's
// registry tables.
type TableRegistry struct {
	db *gorm.DB
}

func NewTableRegistry(db *gorm.DB) *TableRegistry {
	return &TableRegistry{db: db}
}

func (r *TableRegistry) ClientExists(ctx context.Context, clientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Client{}).
		Where("id = ?", clientID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *TableRegistry) MatterBelongsToClient(ctx context.Context, matterID, clientID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Matter{}).
		Where("id = ? AND client_id = ?", matterID, clientID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ interfaces.PartyRegistry = (*TableRegistry)(nil)
