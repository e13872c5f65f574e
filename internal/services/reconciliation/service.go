package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/interfaces"
	"trust-accounting-backend/internal/models"
	"trust-accounting-backend/internal/models/events"
	"trust-accounting-backend/internal/money"
	"trust-accounting-backend/internal/repository"
)

// Service runs point-in-time reconciliations: bank statement balance vs.
// trust account balance vs. sum of client ledgers. It only reads balances
// and appends records; a discrepancy is surfaced for manual investigation,
// never auto-corrected.
type Service struct {
	db      *gorm.DB
	records *repository.ReconciliationRepository
	audit   interfaces.AuditSink
	log     *zap.Logger

	// tolerance is the maximum bank-vs-account gap, in cents, still
	// considered reconciled. The ledger-sum check is always exact.
	tolerance money.Cents
}

func NewService(
	db *gorm.DB,
	records *repository.ReconciliationRepository,
	audit interfaces.AuditSink,
	log *zap.Logger,
	tolerance money.Cents,
) *Service {
	return &Service{
		db:        db,
		records:   records,
		audit:     audit,
		log:       log,
		tolerance: tolerance,
	}
}

// Run snapshots the account and its ledgers inside one read transaction,
// compares against the bank statement, and appends a record.
func (s *Service) Run(
	ctx context.Context,
	actor string,
	accountID uuid.UUID,
	periodEnd time.Time,
	bankStatementBalance money.Cents,
	notes string,
) (*models.ReconciliationRecord, error) {
	if bankStatementBalance < 0 {
		return nil, apperr.Validationf("bank statement balance cannot be negative")
	}

	var record *models.ReconciliationRecord
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var account models.TrustAccount
		err := dbtx.First(&account, "id = ?", accountID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("trust account %s not found", accountID)
		}
		if err != nil {
			return err
		}

		var ledgers []models.ClientLedger
		if err := dbtx.Where("account_id = ?", accountID).Find(&ledgers).Error; err != nil {
			return err
		}

		var ledgerSum money.Cents
		breakdown := make(map[string]string, len(ledgers))
		for _, ledger := range ledgers {
			ledgerSum += ledger.Balance
			breakdown[ledger.ID.String()] = ledger.Balance.String()
		}

		breakdownJSON, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}

		discrepancy := (bankStatementBalance - account.Balance).Abs()
		record = &models.ReconciliationRecord{
			ID:                     uuid.New(),
			AccountID:              accountID,
			PeriodEnd:              periodEnd,
			BankStatementBalance:   bankStatementBalance,
			TrustLedgerBalance:     account.Balance,
			ClientLedgerSumBalance: ledgerSum,
			Discrepancy:            discrepancy,
			IsReconciled:           discrepancy <= s.tolerance && ledgerSum == account.Balance,
			LedgerBreakdown:        datatypes.JSON(breakdownJSON),
			Notes:                  notes,
			RunBy:                  actor,
			CreatedAt:              time.Now(),
		}
		return dbtx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}

	if !record.IsReconciled {
		s.log.Warn("reconciliation discrepancy",
			zap.String("account_id", accountID.String()),
			zap.String("bank_balance", bankStatementBalance.String()),
			zap.String("account_balance", record.TrustLedgerBalance.String()),
			zap.String("ledger_sum", record.ClientLedgerSumBalance.String()),
			zap.String("discrepancy", record.Discrepancy.String()))
	}

	evt := events.TrustEvent{
		Action:     "reconciliation.completed",
		EntityType: "reconciliation_record",
		EntityID:   record.ID.String(),
		AccountID:  accountID.String(),
		Actor:      actor,
		Amount:     record.Discrepancy.String(),
		OccurredAt: time.Now(),
	}
	go func() {
		if err := s.audit.Publish(context.Background(), evt); err != nil {
			s.log.Warn("audit publish failed",
				zap.String("action", evt.Action),
				zap.String("entity_id", evt.EntityID),
				zap.Error(err))
		}
	}()

	return record, nil
}

// History lists an account's reconciliation records, newest period first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]models.ReconciliationRecord, error) {
	return s.records.ListByAccount(ctx, accountID)
}
