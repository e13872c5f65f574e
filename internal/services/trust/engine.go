package trust

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/interfaces"
	"trust-accounting-backend/internal/models"
	"trust-accounting-backend/internal/models/events"
	"trust-accounting-backend/internal/money"
)

// Engine owns every balance mutation in the system. Account and ledger
// balances are written only through its apply path, inside a single
// database transaction per request, so a trust account and its client
// ledgers move together or not at all.
type Engine struct {
	db       *gorm.DB
	authz    interfaces.Authorizer
	periods  interfaces.PeriodGuard
	registry interfaces.PartyRegistry
	audit    interfaces.AuditSink
	log      *zap.Logger

	// accountLocks serializes same-account applies in-process. Cross-process
	// safety comes from the guarded single-statement updates.
	mu           sync.Mutex
	accountLocks map[uuid.UUID]*sync.Mutex
}

func NewEngine(
	db *gorm.DB,
	authz interfaces.Authorizer,
	periods interfaces.PeriodGuard,
	registry interfaces.PartyRegistry,
	audit interfaces.AuditSink,
	log *zap.Logger,
) *Engine {
	return &Engine{
		db:           db,
		authz:        authz,
		periods:      periods,
		registry:     registry,
		audit:        audit,
		log:          log,
		accountLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (e *Engine) lockAccount(accountID uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.accountLocks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.accountLocks[accountID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (e *Engine) publish(action, entityType string, entityID, accountID uuid.UUID, actor string, amount money.Cents, reason string) {
	evt := events.TrustEvent{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		AccountID:  accountID.String(),
		Actor:      actor,
		Reason:     reason,
		OccurredAt: time.Now(),
	}
	if amount != 0 {
		evt.Amount = amount.String()
	}

	go func() {
		if err := e.audit.Publish(context.Background(), evt); err != nil {
			e.log.Warn("audit publish failed",
				zap.String("action", action),
				zap.String("entity_id", evt.EntityID),
				zap.Error(err))
		}
	}()
}

func (e *Engine) requireApprover(ctx context.Context, actor string) error {
	ok, err := e.authz.IsApprover(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Authorizationf("principal %s is not an approver", actor)
	}
	return nil
}

func (e *Engine) checkPeriodOpen(ctx context.Context) error {
	locked, err := e.periods.IsLocked(ctx, time.Now())
	if err != nil {
		return err
	}
	if locked {
		return apperr.Policyf("billing period is locked")
	}
	return nil
}

// CreateAccount registers a pooled trust account for a firm entity/office.
func (e *Engine) CreateAccount(ctx context.Context, actor, firmEntity, office string) (*models.TrustAccount, error) {
	if firmEntity == "" {
		return nil, apperr.Validationf("firm entity is required")
	}

	now := time.Now()
	account := &models.TrustAccount{
		ID:         uuid.New(),
		FirmEntity: firmEntity,
		Office:     office,
		Status:     models.AccountActive,
		Balance:    0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}

	e.publish("account.created", "trust_account", account.ID, account.ID, actor, 0, "")
	return account, nil
}

// CreateLedger starts tracking a client's (optionally a matter's) share of
// a trust account. Client and matter references are validated against the
// platform registry first.
func (e *Engine) CreateLedger(ctx context.Context, actor string, accountID, clientID uuid.UUID, matterID *uuid.UUID) (*models.ClientLedger, error) {
	account, err := e.getAccount(ctx, e.db, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.AccountActive {
		return nil, apperr.Policyf("trust account %s is %s", accountID, account.Status)
	}

	exists, err := e.registry.ClientExists(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFoundf("client %s is not registered", clientID)
	}
	if matterID != nil {
		owned, err := e.registry.MatterBelongsToClient(ctx, *matterID, clientID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, apperr.Validationf("matter %s does not belong to client %s", *matterID, clientID)
		}
	}

	now := time.Now()
	ledger := &models.ClientLedger{
		ID:        uuid.New(),
		AccountID: accountID,
		ClientID:  clientID,
		MatterID:  matterID,
		Status:    models.LedgerActive,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.db.WithContext(ctx).Create(ledger).Error; err != nil {
		return nil, err
	}

	e.publish("ledger.created", "client_ledger", ledger.ID, accountID, actor, 0, "")
	return ledger, nil
}

// CloseLedger marks a zero-balance ledger closed. The row stays; only
// further activity is barred.
func (e *Engine) CloseLedger(ctx context.Context, actor string, ledgerID uuid.UUID) error {
	ledger, err := e.getLedger(ctx, e.db, ledgerID)
	if err != nil {
		return err
	}

	res := e.db.WithContext(ctx).Model(&models.ClientLedger{}).
		Where("id = ? AND status = ? AND balance = 0", ledgerID, models.LedgerActive).
		Update("status", models.LedgerClosed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if ledger, err = e.getLedger(ctx, e.db, ledgerID); err != nil {
			return err
		}
		if ledger.Status != models.LedgerActive {
			return apperr.StateConflictf("client ledger %s is already %s", ledgerID, ledger.Status)
		}
		return apperr.StateConflictf("client ledger %s still holds %s", ledgerID, ledger.Balance)
	}

	e.publish("ledger.closed", "client_ledger", ledgerID, ledger.AccountID, actor, 0, "")
	return nil
}

// FreezeAccount suspends all postings to an active account.
func (e *Engine) FreezeAccount(ctx context.Context, actor string, accountID uuid.UUID) error {
	return e.transitionAccount(ctx, actor, accountID,
		[]models.AccountStatus{models.AccountActive}, models.AccountFrozen, "account.frozen")
}

// UnfreezeAccount reopens a frozen account.
func (e *Engine) UnfreezeAccount(ctx context.Context, actor string, accountID uuid.UUID) error {
	return e.transitionAccount(ctx, actor, accountID,
		[]models.AccountStatus{models.AccountFrozen}, models.AccountActive, "account.unfrozen")
}

// CloseAccount retires an account once its balance is zero and every
// ledger has been closed.
func (e *Engine) CloseAccount(ctx context.Context, actor string, accountID uuid.UUID) error {
	err := e.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var open int64
		err := dbtx.Model(&models.ClientLedger{}).
			Where("account_id = ? AND status = ?", accountID, models.LedgerActive).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return apperr.StateConflictf("trust account %s still has %d open ledgers", accountID, open)
		}

		res := dbtx.Model(&models.TrustAccount{}).
			Where("id = ? AND status IN ? AND balance = 0",
				accountID, []models.AccountStatus{models.AccountActive, models.AccountFrozen}).
			Update("status", models.AccountClosed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			account, err := e.getAccount(ctx, dbtx, accountID)
			if err != nil {
				return err
			}
			if account.Status == models.AccountClosed {
				return apperr.StateConflictf("trust account %s is already closed", accountID)
			}
			return apperr.StateConflictf("trust account %s still holds %s", accountID, account.Balance)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.publish("account.closed", "trust_account", accountID, accountID, actor, 0, "")
	return nil
}

func (e *Engine) transitionAccount(ctx context.Context, actor string, accountID uuid.UUID, from []models.AccountStatus, to models.AccountStatus, action string) error {
	res := e.db.WithContext(ctx).Model(&models.TrustAccount{}).
		Where("id = ? AND status IN ?", accountID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		account, err := e.getAccount(ctx, e.db, accountID)
		if err != nil {
			return err
		}
		return apperr.StateConflictf("trust account %s is %s", accountID, account.Status)
	}

	e.publish(action, "trust_account", accountID, accountID, actor, 0, "")
	return nil
}

func (e *Engine) getAccount(ctx context.Context, db *gorm.DB, accountID uuid.UUID) (*models.TrustAccount, error) {
	var account models.TrustAccount
	err := db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("trust account %s not found", accountID)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (e *Engine) getLedger(ctx context.Context, db *gorm.DB, ledgerID uuid.UUID) (*models.ClientLedger, error) {
	var ledger models.ClientLedger
	err := db.WithContext(ctx).First(&ledger, "id = ?", ledgerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("client ledger %s not found", ledgerID)
	}
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}
