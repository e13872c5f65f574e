package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"trust-accounting-backend/internal/money"
)

// ReconciliationRecord is an append-only snapshot comparing the bank
// statement, the trust account balance, and the ledger-sum balance at a
// point in time. Discrepancies are recorded, never auto-corrected.
type ReconciliationRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;index" json:"account_id"`
	PeriodEnd time.Time `json:"period_end"`

	BankStatementBalance   money.Cents `json:"bank_statement_balance"`
	TrustLedgerBalance     money.Cents `json:"trust_ledger_balance"`
	ClientLedgerSumBalance money.Cents `json:"client_ledger_sum_balance"`
	Discrepancy            money.Cents `json:"discrepancy"`
	IsReconciled           bool        `gorm:"index" json:"is_reconciled"`

	// LedgerBreakdown holds the per-ledger balances captured during the run,
	// keyed by ledger id, for manual investigation of discrepancies.
	LedgerBreakdown datatypes.JSON `json:"ledger_breakdown,omitempty"`

	Notes     string    `json:"notes"`
	RunBy     string    `json:"run_by"`
	CreatedAt time.Time `json:"created_at"`
}
