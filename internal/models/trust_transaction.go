package models

import (
	"time"

	"github.com/google/uuid"

	"trust-accounting-backend/internal/money"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
	StatusVoided   TransactionStatus = "voided"
)

// TrustTransaction is an immutable audit row for a deposit or withdrawal.
// Only its status (and the matching actor/timestamp columns) ever changes;
// rows are never deleted. Withdrawals reference exactly one ledger through
// LedgerID; deposits spread over ledgers through Allocations.
type TrustTransaction struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID       `gorm:"type:uuid;index" json:"account_id"`
	LedgerID  *uuid.UUID      `gorm:"type:uuid;index" json:"ledger_id,omitempty"`
	Type      TransactionType `gorm:"index" json:"type"`
	Amount    money.Cents     `json:"amount"`

	Status        TransactionStatus `gorm:"index" json:"status"`
	BalanceBefore *money.Cents      `json:"balance_before,omitempty"`
	BalanceAfter  *money.Cents      `json:"balance_after,omitempty"`

	Description string `json:"description"`
	Payee       string `json:"payee"`
	Reference   string `json:"reference"`

	IdempotencyKey *string `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`

	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`

	ApprovedBy *string    `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	RejectedBy      *string    `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidReason string     `json:"void_reason,omitempty"`

	Allocations []TransactionAllocation `gorm:"foreignKey:TransactionID" json:"allocations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TransactionAllocation is one (ledger, amount) slice of a deposit.
type TransactionAllocation struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID   `gorm:"type:uuid;index" json:"transaction_id"`
	LedgerID      uuid.UUID   `gorm:"type:uuid;index" json:"ledger_id"`
	Amount        money.Cents `json:"amount"`
}
