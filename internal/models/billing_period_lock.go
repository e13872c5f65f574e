package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingPeriodLock closes a date range to postings. Deposits, withdrawals,
// approvals and voids refuse to proceed while "now" falls inside a lock.
type BillingPeriodLock struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PeriodStart time.Time `gorm:"index" json:"period_start"`
	PeriodEnd   time.Time `gorm:"index" json:"period_end"`
	LockedBy    string    `json:"locked_by"`
	CreatedAt   time.Time `json:"created_at"`
}
