package trust

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/models"
	"trust-accounting-backend/internal/money"
)

type DepositRequest struct {
	AccountID   uuid.UUID
	Amount      money.Cents
	Allocations money.Allocations

	Description string
	Payee       string
	Reference   string

	IdempotencyKey *string
}

type WithdrawalRequest struct {
	AccountID uuid.UUID
	LedgerID  uuid.UUID
	Amount    money.Cents

	Description string
	Payee       string
	Reference   string

	IdempotencyKey *string
}

// RequestDeposit validates a deposit spread over one or more client
// ledgers. Approvers apply it immediately; everyone else queues it as
// pending with no balance effect. A replayed idempotency key returns the
// original transaction instead of double-applying.
func (e *Engine) RequestDeposit(ctx context.Context, actor string, req DepositRequest) (*models.TrustTransaction, error) {
	if actor == "" {
		return nil, apperr.Validationf("actor is required")
	}
	if req.Amount <= 0 {
		return nil, apperr.Validationf("deposit amount must be positive")
	}
	if err := req.Allocations.Validate(req.Amount); err != nil {
		return nil, err
	}

	if txn, err := e.replay(ctx, req.IdempotencyKey); txn != nil || err != nil {
		return txn, err
	}

	if err := e.checkPeriodOpen(ctx); err != nil {
		return nil, err
	}
	if err := e.validateDepositTargets(ctx, req.AccountID, req.Allocations); err != nil {
		return nil, err
	}

	approver, err := e.authz.IsApprover(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &models.TrustTransaction{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		Type:           models.TypeDeposit,
		Amount:         req.Amount,
		Status:         models.StatusPending,
		Description:    req.Description,
		Payee:          req.Payee,
		Reference:      req.Reference,
		IdempotencyKey: normalizeKey(req.IdempotencyKey),
		RequestedBy:    actor,
		RequestedAt:    now,
		CreatedAt:      now,
	}
	for _, al := range req.Allocations {
		txn.Allocations = append(txn.Allocations, models.TransactionAllocation{
			ID:            uuid.New(),
			TransactionID: txn.ID,
			LedgerID:      al.LedgerID,
			Amount:        al.Amount,
		})
	}

	if !approver {
		if err := e.db.WithContext(ctx).Create(txn).Error; err != nil {
			return e.recoverReplay(ctx, txn.IdempotencyKey, err)
		}
		e.publish("transaction.requested", "trust_transaction", txn.ID, txn.AccountID, actor, txn.Amount, "")
		return txn, nil
	}

	unlock := e.lockAccount(req.AccountID)
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		before, after, aerr := e.applyBalances(dbtx, txn, false)
		if aerr != nil {
			return aerr
		}
		txn.Status = models.StatusApproved
		txn.BalanceBefore = &before
		txn.BalanceAfter = &after
		txn.ApprovedBy = &actor
		txn.ApprovedAt = &now
		return dbtx.Create(txn).Error
	})
	if err != nil {
		return e.recoverReplay(ctx, txn.IdempotencyKey, err)
	}

	e.publish("transaction.approved", "trust_transaction", txn.ID, txn.AccountID, actor, txn.Amount, "")
	return txn, nil
}

// RequestWithdrawal validates a withdrawal from a single client ledger.
// Same approver/pending split as RequestDeposit. The request may exceed the
// ledger's current balance and still queue as pending; sufficiency is only
// enforced when the withdrawal is applied.
func (e *Engine) RequestWithdrawal(ctx context.Context, actor string, req WithdrawalRequest) (*models.TrustTransaction, error) {
	if actor == "" {
		return nil, apperr.Validationf("actor is required")
	}
	if req.Amount <= 0 {
		return nil, apperr.Validationf("withdrawal amount must be positive")
	}
	if req.LedgerID == uuid.Nil {
		return nil, apperr.Validationf("ledger id is required")
	}

	if txn, err := e.replay(ctx, req.IdempotencyKey); txn != nil || err != nil {
		return txn, err
	}

	if err := e.checkPeriodOpen(ctx); err != nil {
		return nil, err
	}
	if err := e.validateWithdrawalTargets(ctx, req.AccountID, req.LedgerID); err != nil {
		return nil, err
	}

	approver, err := e.authz.IsApprover(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ledgerID := req.LedgerID
	txn := &models.TrustTransaction{
		ID:             uuid.New(),
		AccountID:      req.AccountID,
		LedgerID:       &ledgerID,
		Type:           models.TypeWithdrawal,
		Amount:         req.Amount,
		Status:         models.StatusPending,
		Description:    req.Description,
		Payee:          req.Payee,
		Reference:      req.Reference,
		IdempotencyKey: normalizeKey(req.IdempotencyKey),
		RequestedBy:    actor,
		RequestedAt:    now,
		CreatedAt:      now,
	}

	if !approver {
		if err := e.db.WithContext(ctx).Create(txn).Error; err != nil {
			return e.recoverReplay(ctx, txn.IdempotencyKey, err)
		}
		e.publish("transaction.requested", "trust_transaction", txn.ID, txn.AccountID, actor, txn.Amount, "")
		return txn, nil
	}

	unlock := e.lockAccount(req.AccountID)
	defer unlock()

	err = e.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		before, after, aerr := e.applyBalances(dbtx, txn, false)
		if aerr != nil {
			return aerr
		}
		txn.Status = models.StatusApproved
		txn.BalanceBefore = &before
		txn.BalanceAfter = &after
		txn.ApprovedBy = &actor
		txn.ApprovedAt = &now
		return dbtx.Create(txn).Error
	})
	if err != nil {
		return e.recoverReplay(ctx, txn.IdempotencyKey, err)
	}

	e.publish("transaction.approved", "trust_transaction", txn.ID, txn.AccountID, actor, txn.Amount, "")
	return txn, nil
}

// Approve applies a pending transaction. Balance preconditions are
// re-enforced by the guarded updates inside the same database transaction
// that writes them, so a request filed against long-gone funds fails here
// and stays pending.
func (e *Engine) Approve(ctx context.Context, actor string, txID uuid.UUID) (*models.TrustTransaction, error) {
	if err := e.requireApprover(ctx, actor); err != nil {
		return nil, err
	}

	txn, err := e.loadTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.StatusPending {
		return nil, apperr.StateConflictf("transaction %s is %s, only pending transactions can be approved", txID, txn.Status)
	}
	if err := e.checkPeriodOpen(ctx); err != nil {
		return nil, err
	}

	unlock := e.lockAccount(txn.AccountID)
	defer unlock()

	now := time.Now()
	var before, after money.Cents
	err = e.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		res := dbtx.Model(&models.TrustTransaction{}).
			Where("id = ? AND status = ?", txID, models.StatusPending).
			Updates(map[string]any{
				"status":      models.StatusApproved,
				"approved_by": actor,
				"approved_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.StateConflictf("transaction %s was transitioned concurrently", txID)
		}

		var aerr error
		before, after, aerr = e.applyBalances(dbtx, txn, false)
		if aerr != nil {
			return aerr
		}

		return dbtx.Model(&models.TrustTransaction{}).
			Where("id = ?", txID).
			Updates(map[string]any{
				"balance_before": int64(before),
				"balance_after":  int64(after),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	txn.Status = models.StatusApproved
	txn.ApprovedBy = &actor
	txn.ApprovedAt = &now
	txn.BalanceBefore = &before
	txn.BalanceAfter = &after

	e.publish("transaction.approved", "trust_transaction", txn.ID, txn.AccountID, actor, txn.Amount, "")
	return txn, nil
}

// Reject discards a pending transaction. No balance effect.
func (e *Engine) Reject(ctx context.Context, actor string, txID uuid.UUID, reason string) (*models.TrustTransaction, error) {
	if err := e.requireApprover(ctx, actor); err != nil {
		return nil, err
	}

	now := time.Now()
	res := e.db.WithContext(ctx).Model(&models.TrustTransaction{}).
		Where("id = ? AND status = ?", txID, models.StatusPending).
		Updates(map[string]any{
			"status":           models.StatusRejected,
			"rejected_by":      actor,
			"rejected_at":      now,
			"rejection_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		txn, err := e.loadTransaction(ctx, txID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.StateConflictf("transaction %s is %s, only pending transactions can be rejected", txID, txn.Status)
	}

	txn, err := e.loadTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	e.publish("transaction.rejected", "trust_transaction", txID, txn.AccountID, actor, txn.Amount, reason)
	return txn, nil
}

// Void exactly inverts an approved transaction's balance effect. If
// intervening activity already spent the funds a deposit void would
// reclaim, the guards reject it and the transaction stays approved for
// manual handling.
func (e *Engine) Void(ctx context.Context, actor string, txID uuid.UUID, reason string) (*models.TrustTransaction, error) {
	if err := e.requireApprover(ctx, actor); err != nil {
		return nil, err
	}

	txn, err := e.loadTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.StatusApproved {
		return nil, apperr.StateConflictf("transaction %s is %s, only approved transactions can be voided", txID, txn.Status)
	}
	if err := e.checkPeriodOpen(ctx); err != nil {
		return nil, err
	}

	unlock := e.lockAccount(txn.AccountID)
	defer unlock()

	now := time.Now()
	err = e.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		res := dbtx.Model(&models.TrustTransaction{}).
			Where("id = ? AND status = ?", txID, models.StatusApproved).
			Updates(map[string]any{
				"status":      models.StatusVoided,
				"voided_by":   actor,
				"voided_at":   now,
				"void_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.StateConflictf("transaction %s was transitioned concurrently", txID)
		}

		_, _, aerr := e.applyBalances(dbtx, txn, true)
		return aerr
	})
	if err != nil {
		return nil, err
	}

	txn.Status = models.StatusVoided
	txn.VoidedBy = &actor
	txn.VoidedAt = &now
	txn.VoidReason = reason

	e.publish("transaction.voided", "trust_transaction", txn.ID, txn.AccountID, actor, txn.Amount, reason)
	return txn, nil
}

// recoverReplay resolves the race where two requests with the same
// idempotency key both pass the replay check: the loser's insert trips the
// unique index, and the stored transaction is returned instead of the
// duplicate-key error.
func (e *Engine) recoverReplay(ctx context.Context, key *string, err error) (*models.TrustTransaction, error) {
	if key == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}
	txn, rerr := e.replay(ctx, key)
	if rerr != nil || txn == nil {
		return nil, err
	}
	return txn, nil
}

// replay returns the stored transaction for a previously seen idempotency
// key, or nil when the key is new.
func (e *Engine) replay(ctx context.Context, key *string) (*models.TrustTransaction, error) {
	if key == nil || *key == "" {
		return nil, nil
	}
	var txn models.TrustTransaction
	err := e.db.WithContext(ctx).
		Preload("Allocations").
		First(&txn, "idempotency_key = ?", *key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (e *Engine) loadTransaction(ctx context.Context, txID uuid.UUID) (*models.TrustTransaction, error) {
	var txn models.TrustTransaction
	err := e.db.WithContext(ctx).
		Preload("Allocations").
		First(&txn, "id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("transaction %s not found", txID)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (e *Engine) validateDepositTargets(ctx context.Context, accountID uuid.UUID, allocations money.Allocations) error {
	account, err := e.getAccount(ctx, e.db, accountID)
	if err != nil {
		return err
	}
	if account.Status != models.AccountActive {
		return apperr.Policyf("trust account %s is %s", accountID, account.Status)
	}

	var ledgers []models.ClientLedger
	if err := e.db.WithContext(ctx).Where("id IN ?", allocations.LedgerIDs()).Find(&ledgers).Error; err != nil {
		return err
	}
	byID := make(map[uuid.UUID]models.ClientLedger, len(ledgers))
	for _, l := range ledgers {
		byID[l.ID] = l
	}
	for _, al := range allocations {
		ledger, ok := byID[al.LedgerID]
		if !ok {
			return apperr.NotFoundf("client ledger %s not found", al.LedgerID)
		}
		if ledger.AccountID != accountID {
			return apperr.Validationf("client ledger %s does not belong to account %s", al.LedgerID, accountID)
		}
		if ledger.Status != models.LedgerActive {
			return apperr.Policyf("client ledger %s is %s", al.LedgerID, ledger.Status)
		}
	}
	return nil
}

// validateWithdrawalTargets checks structure only: the account and ledger
// exist, belong together, and are active. Sufficiency is not checked here.
// A withdrawal request may exceed the current balance and still queue as
// pending; the balance guards enforce sufficiency at apply time, when the
// money actually moves.
func (e *Engine) validateWithdrawalTargets(ctx context.Context, accountID, ledgerID uuid.UUID) error {
	account, err := e.getAccount(ctx, e.db, accountID)
	if err != nil {
		return err
	}
	if account.Status != models.AccountActive {
		return apperr.Policyf("trust account %s is %s", accountID, account.Status)
	}

	ledger, err := e.getLedger(ctx, e.db, ledgerID)
	if err != nil {
		return err
	}
	if ledger.AccountID != accountID {
		return apperr.Validationf("client ledger %s does not belong to account %s", ledgerID, accountID)
	}
	if ledger.Status != models.LedgerActive {
		return apperr.Policyf("client ledger %s is %s", ledgerID, ledger.Status)
	}
	return nil
}

// applyBalances moves money for one transaction: every affected ledger
// plus the account, all through guarded single-statement updates, inside
// the caller's database transaction. invert applies the exact inverse
// (void). Returns the account balance before and after.
func (e *Engine) applyBalances(dbtx *gorm.DB, txn *models.TrustTransaction, invert bool) (money.Cents, money.Cents, error) {
	sign := money.Cents(1)
	if invert {
		sign = -1
	}

	var accountDelta money.Cents
	switch txn.Type {
	case models.TypeDeposit:
		for _, al := range txn.Allocations {
			if err := e.applyLedgerDelta(dbtx, txn.AccountID, al.LedgerID, sign*al.Amount, invert); err != nil {
				return 0, 0, err
			}
		}
		accountDelta = sign * txn.Amount
	case models.TypeWithdrawal:
		if txn.LedgerID == nil {
			return 0, 0, apperr.Invariantf("withdrawal %s has no ledger", txn.ID)
		}
		if err := e.applyLedgerDelta(dbtx, txn.AccountID, *txn.LedgerID, -sign*txn.Amount, invert); err != nil {
			return 0, 0, err
		}
		accountDelta = -sign * txn.Amount
	default:
		return 0, 0, apperr.Invariantf("transaction %s has unknown type %q", txn.ID, txn.Type)
	}

	if err := e.applyAccountDelta(dbtx, txn.AccountID, accountDelta); err != nil {
		return 0, 0, err
	}

	var account models.TrustAccount
	if err := dbtx.First(&account, "id = ?", txn.AccountID).Error; err != nil {
		return 0, 0, err
	}
	return account.Balance - accountDelta, account.Balance, nil
}

// applyLedgerDelta is the only ledger balance mutator. The WHERE clause
// carries the membership, status and non-negativity checks, so the check
// and the write are one atomic statement. A void's inverse posting skips
// the status guard and reopens a closed ledger, since the only way a void
// may fail is a balance breach.
func (e *Engine) applyLedgerDelta(dbtx *gorm.DB, accountID, ledgerID uuid.UUID, delta money.Cents, reopen bool) error {
	query := dbtx.Model(&models.ClientLedger{}).
		Where("id = ? AND account_id = ? AND balance + ? >= 0", ledgerID, accountID, int64(delta))
	updates := map[string]any{"balance": gorm.Expr("balance + ?", int64(delta))}
	if reopen {
		updates["status"] = models.LedgerActive
	} else {
		query = query.Where("status = ?", models.LedgerActive)
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var ledger models.ClientLedger
	err := dbtx.First(&ledger, "id = ?", ledgerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf("client ledger %s not found", ledgerID)
	}
	if err != nil {
		return err
	}
	if ledger.AccountID != accountID {
		return apperr.Validationf("client ledger %s does not belong to account %s", ledgerID, accountID)
	}
	if !reopen && ledger.Status != models.LedgerActive {
		return apperr.Policyf("client ledger %s is %s", ledgerID, ledger.Status)
	}
	if delta < 0 {
		return apperr.Policyf("insufficient funds in ledger %s: balance %s, requested %s", ledgerID, ledger.Balance, -delta)
	}
	return apperr.Invariantf("ledger %s rejected credit of %s at balance %s", ledgerID, delta, ledger.Balance)
}

// applyAccountDelta mirrors applyLedgerDelta for the pooled account. A
// trip here after the ledger guards passed means conservation is broken,
// so it logs loudly before returning.
func (e *Engine) applyAccountDelta(dbtx *gorm.DB, accountID uuid.UUID, delta money.Cents) error {
	res := dbtx.Model(&models.TrustAccount{}).
		Where("id = ? AND status = ? AND balance + ? >= 0", accountID, models.AccountActive, int64(delta)).
		Update("balance", gorm.Expr("balance + ?", int64(delta)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var account models.TrustAccount
	err := dbtx.First(&account, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf("trust account %s not found", accountID)
	}
	if err != nil {
		return err
	}
	if account.Status != models.AccountActive {
		return apperr.Policyf("trust account %s is %s", accountID, account.Status)
	}

	e.log.Error("account balance guard tripped after ledger guards passed",
		zap.String("account_id", accountID.String()),
		zap.String("balance", account.Balance.String()),
		zap.String("delta", delta.String()))
	return apperr.Invariantf("account %s balance %s cannot absorb delta %s", accountID, account.Balance, delta)
}

func normalizeKey(key *string) *string {
	if key == nil || *key == "" {
		return nil
	}
	return key
}
