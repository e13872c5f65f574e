package collab

import (
	"context"
	"time"

	"gorm.io/gorm"

	"trust-accounting-backend/internal/interfaces"
	"trust-accounting-backend/internal/models"
)

// LockTablePeriodGuard answers period-lock checks from the
// billing_period_locks table the billing subsystem maintains.
type LockTablePeriodGuard struct {
	db *gorm.DB
}

func NewLockTablePeriodGuard(db *gorm.DB) *LockTablePeriodGuard {
	return &LockTablePeriodGuard{db: db}
}

func (g *LockTablePeriodGuard) IsLocked(ctx context.Context, t time.Time) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&models.BillingPeriodLock{}).
		Where("period_start <= ? AND period_end >= ?", t, t).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ interfaces.PeriodGuard = (*LockTablePeriodGuard)(nil)
