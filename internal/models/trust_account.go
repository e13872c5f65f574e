package models

import (
	"time"

	"github.com/google/uuid"

	"trust-accounting-backend/internal/money"
)

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// TrustAccount is a pooled bank account holding client funds in escrow.
// Its balance is mutated only by the transaction engine; rows are never
// deleted while ledgers reference them.
type TrustAccount struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	FirmEntity string        `gorm:"index" json:"firm_entity"`
	Office     string        `gorm:"index" json:"office"`
	Status     AccountStatus `gorm:"index" json:"status"`
	Balance    money.Cents   `json:"balance"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
