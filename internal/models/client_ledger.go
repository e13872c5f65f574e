package models

import (
	"time"

	"github.com/google/uuid"

	"trust-accounting-backend/internal/money"
)

type LedgerStatus string

const (
	LedgerActive LedgerStatus = "active"
	LedgerClosed LedgerStatus = "closed"
)

// ClientLedger is one client's (optionally one matter's) share of a pooled
// trust account. The sum of a trust account's ledger balances equals the
// account balance at all times.
type ClientLedger struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID    `gorm:"type:uuid;index" json:"account_id"`
	ClientID  uuid.UUID    `gorm:"type:uuid;index" json:"client_id"`
	MatterID  *uuid.UUID   `gorm:"type:uuid;index" json:"matter_id,omitempty"`
	Status    LedgerStatus `gorm:"index" json:"status"`
	Balance   money.Cents  `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
