package trust

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trust-accounting-backend/internal/apperr"
	"trust-accounting-backend/internal/models"
	"trust-accounting-backend/internal/models/events"
	"trust-accounting-backend/internal/money"
	"trust-accounting-backend/internal/testutil"
)

const (
	approver  = "approver-1"
	paralegal = "paralegal-1"
)

type stubAuthorizer struct{ approvers map[string]bool }

func (s stubAuthorizer) IsApprover(_ context.Context, principal string) (bool, error) {
	return s.approvers[principal], nil
}

type stubPeriodGuard struct{ locked bool }

func (s *stubPeriodGuard) IsLocked(context.Context, time.Time) (bool, error) {
	return s.locked, nil
}

type stubRegistry struct{}

func (stubRegistry) ClientExists(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (stubRegistry) MatterBelongsToClient(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.TrustEvent
}

func (r *recordingSink) Publish(_ context.Context, e events.TrustEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingSink) byAction(action string) []events.TrustEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.TrustEvent
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	engine *Engine
	sink   *recordingSink
	guard  *stubPeriodGuard
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	sink := &recordingSink{}
	guard := &stubPeriodGuard{}
	engine := NewEngine(
		db,
		stubAuthorizer{approvers: map[string]bool{approver: true}},
		guard,
		stubRegistry{},
		sink,
		zap.NewNop(),
	)
	return &fixture{db: db, engine: engine, sink: sink, guard: guard}
}

// seedAccount creates an active account with two active ledgers.
func (f *fixture) seedAccount(t *testing.T) (*models.TrustAccount, *models.ClientLedger, *models.ClientLedger) {
	t.Helper()
	ctx := context.Background()

	account, err := f.engine.CreateAccount(ctx, approver, "Smith & Associates", "Downtown")
	require.NoError(t, err)

	ledgerX, err := f.engine.CreateLedger(ctx, approver, account.ID, uuid.New(), nil)
	require.NoError(t, err)
	ledgerY, err := f.engine.CreateLedger(ctx, approver, account.ID, uuid.New(), nil)
	require.NoError(t, err)

	return account, ledgerX, ledgerY
}

func (f *fixture) accountBalance(t *testing.T, id uuid.UUID) money.Cents {
	t.Helper()
	var account models.TrustAccount
	require.NoError(t, f.db.First(&account, "id = ?", id).Error)
	return account.Balance
}

func (f *fixture) ledgerBalance(t *testing.T, id uuid.UUID) money.Cents {
	t.Helper()
	var ledger models.ClientLedger
	require.NoError(t, f.db.First(&ledger, "id = ?", id).Error)
	return ledger.Balance
}

func (f *fixture) transactionStatus(t *testing.T, id uuid.UUID) models.TransactionStatus {
	t.Helper()
	var txn models.TrustTransaction
	require.NoError(t, f.db.First(&txn, "id = ?", id).Error)
	return txn.Status
}

// assertConservation verifies the core invariant: the account balance
// equals the sum of its ledger balances.
func (f *fixture) assertConservation(t *testing.T, accountID uuid.UUID) {
	t.Helper()
	var sum int64
	require.NoError(t, f.db.Model(&models.ClientLedger{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&sum).Error)
	assert.Equal(t, f.accountBalance(t, accountID), money.Cents(sum))
}

// deposit1000 puts the fixture in the canonical starting state:
// account=1000.00, ledgerX=600.00, ledgerY=400.00.
func (f *fixture) deposit1000(t *testing.T, account *models.TrustAccount, x, y *models.ClientLedger) *models.TrustTransaction {
	t.Helper()
	txn, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID: account.ID,
		Amount:    100000,
		Allocations: money.Allocations{
			{LedgerID: x.ID, Amount: 60000},
			{LedgerID: y.ID, Amount: 40000},
		},
		Description: "settlement funds",
	})
	require.NoError(t, err)
	return txn
}

func TestDepositByApproverAppliesImmediately(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)

	txn := f.deposit1000(t, account, x, y)

	assert.Equal(t, models.StatusApproved, txn.Status)
	require.NotNil(t, txn.BalanceBefore)
	require.NotNil(t, txn.BalanceAfter)
	assert.Equal(t, money.Cents(0), *txn.BalanceBefore)
	assert.Equal(t, money.Cents(100000), *txn.BalanceAfter)
	require.NotNil(t, txn.ApprovedBy)
	assert.Equal(t, approver, *txn.ApprovedBy)

	assert.Equal(t, money.Cents(100000), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(60000), f.ledgerBalance(t, x.ID))
	assert.Equal(t, money.Cents(40000), f.ledgerBalance(t, y.ID))
	f.assertConservation(t, account.ID)
}

func TestDepositAllocationMismatchRejected(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	_, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      100000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 60000}},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	var count int64
	require.NoError(t, f.db.Model(&models.TrustTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, money.Cents(0), f.accountBalance(t, account.ID))
}

func TestDepositByNonApproverStaysPending(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	txn, err := f.engine.RequestDeposit(context.Background(), paralegal, DepositRequest{
		AccountID:   account.ID,
		Amount:      50000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 50000}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, txn.Status)
	assert.Nil(t, txn.BalanceBefore)
	assert.Equal(t, money.Cents(0), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(0), f.ledgerBalance(t, x.ID))
}

func TestApprovePendingDeposit(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	pending, err := f.engine.RequestDeposit(context.Background(), paralegal, DepositRequest{
		AccountID:   account.ID,
		Amount:      50000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 50000}},
	})
	require.NoError(t, err)

	approved, err := f.engine.Approve(context.Background(), approver, pending.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.BalanceBefore)
	assert.Equal(t, money.Cents(0), *approved.BalanceBefore)
	assert.Equal(t, money.Cents(50000), *approved.BalanceAfter)
	assert.Equal(t, money.Cents(50000), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(50000), f.ledgerBalance(t, x.ID))
	f.assertConservation(t, account.ID)
}

func TestApproveByNonApproverDenied(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	pending, err := f.engine.RequestDeposit(context.Background(), paralegal, DepositRequest{
		AccountID:   account.ID,
		Amount:      50000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 50000}},
	})
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), paralegal, pending.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	assert.Equal(t, models.StatusPending, f.transactionStatus(t, pending.ID))
}

// A withdrawal exceeding the ledger balance still queues as pending; the
// insufficiency only surfaces when an approver tries to apply it.
func TestOverBalanceWithdrawalQueuesPending(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)
	f.deposit1000(t, account, x, y)

	pending, err := f.engine.RequestWithdrawal(context.Background(), paralegal, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    70000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Nil(t, pending.BalanceBefore)
	assert.Equal(t, money.Cents(100000), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(60000), f.ledgerBalance(t, x.ID))

	// ledgerX only holds 600.00, so the approval fails and moves no money.
	_, err = f.engine.Approve(context.Background(), approver, pending.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	assert.Equal(t, models.StatusPending, f.transactionStatus(t, pending.ID))
	assert.Equal(t, money.Cents(100000), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(60000), f.ledgerBalance(t, x.ID))
	f.assertConservation(t, account.ID)
}

// An approver's withdrawal applies immediately, so insufficiency fails the
// request itself and leaves no transaction row behind.
func TestOverBalanceWithdrawalByApproverFails(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)
	f.deposit1000(t, account, x, y)

	_, err := f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    70000,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	var count int64
	require.NoError(t, f.db.Model(&models.TrustTransaction{}).
		Where("type = ?", models.TypeWithdrawal).
		Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, money.Cents(60000), f.ledgerBalance(t, x.ID))
	f.assertConservation(t, account.ID)
}

// A request filed while funds were still there fails at approval once they
// are gone.
func TestApproveWithdrawalAfterFundsSpent(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)
	f.deposit1000(t, account, x, y)

	pending, err := f.engine.RequestWithdrawal(context.Background(), paralegal, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    60000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)

	// Spend the ledger down before the approver gets to it.
	_, err = f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    50000,
	})
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), approver, pending.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	// The failed approval left it pending and moved no money.
	assert.Equal(t, models.StatusPending, f.transactionStatus(t, pending.ID))
	assert.Equal(t, money.Cents(10000), f.ledgerBalance(t, x.ID))
	assert.Equal(t, money.Cents(50000), f.accountBalance(t, account.ID))
	f.assertConservation(t, account.ID)
}

func TestWithdrawalAndVoidRestoresBalances(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)
	f.deposit1000(t, account, x, y)

	withdrawal, err := f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    60000,
		Payee:     "Clerk of Court",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, withdrawal.Status)
	assert.Equal(t, money.Cents(40000), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(0), f.ledgerBalance(t, x.ID))

	voided, err := f.engine.Void(context.Background(), approver, withdrawal.ID, "issued in error")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVoided, voided.Status)
	require.NotNil(t, voided.VoidedBy)
	assert.Equal(t, approver, *voided.VoidedBy)

	assert.Equal(t, money.Cents(100000), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(60000), f.ledgerBalance(t, x.ID))
	f.assertConservation(t, account.ID)

	// Voiding twice must fail: voided is terminal.
	_, err = f.engine.Void(context.Background(), approver, withdrawal.ID, "again")
	require.Error(t, err)
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
}

func TestVoidDepositAfterFundsSpentFails(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	deposit, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      60000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 60000}},
	})
	require.NoError(t, err)

	_, err = f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    60000,
	})
	require.NoError(t, err)

	_, err = f.engine.Void(context.Background(), approver, deposit.ID, "client refund")
	require.Error(t, err)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	// Nothing moved and the deposit is still approved for manual handling.
	assert.Equal(t, models.StatusApproved, f.transactionStatus(t, deposit.ID))
	assert.Equal(t, money.Cents(0), f.accountBalance(t, account.ID))
	assert.Equal(t, money.Cents(0), f.ledgerBalance(t, x.ID))
	f.assertConservation(t, account.ID)
}

// Voiding a withdrawal whose ledger was closed in the meantime restores the
// funds and reopens the ledger.
func TestVoidWithdrawalAfterLedgerClosed(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	_, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      60000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 60000}},
	})
	require.NoError(t, err)

	withdrawal, err := f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    60000,
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.CloseLedger(context.Background(), approver, x.ID))

	voided, err := f.engine.Void(context.Background(), approver, withdrawal.ID, "check never cleared")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVoided, voided.Status)

	var ledger models.ClientLedger
	require.NoError(t, f.db.First(&ledger, "id = ?", x.ID).Error)
	assert.Equal(t, money.Cents(60000), ledger.Balance)
	assert.Equal(t, models.LedgerActive, ledger.Status)
	assert.Equal(t, money.Cents(60000), f.accountBalance(t, account.ID))
	f.assertConservation(t, account.ID)
}

func TestRejectedAndVoidedAreAbsorbing(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	pending, err := f.engine.RequestDeposit(context.Background(), paralegal, DepositRequest{
		AccountID:   account.ID,
		Amount:      10000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 10000}},
	})
	require.NoError(t, err)

	rejected, err := f.engine.Reject(context.Background(), approver, pending.ID, "unverified source")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "unverified source", rejected.RejectionReason)
	assert.Equal(t, money.Cents(0), f.accountBalance(t, account.ID))

	_, err = f.engine.Approve(context.Background(), approver, pending.ID)
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
	_, err = f.engine.Reject(context.Background(), approver, pending.ID, "again")
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
	_, err = f.engine.Void(context.Background(), approver, pending.ID, "no")
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))
	assert.Equal(t, models.StatusRejected, f.transactionStatus(t, pending.ID))
}

func TestLockedPeriodBlocksPostings(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	pending, err := f.engine.RequestDeposit(context.Background(), paralegal, DepositRequest{
		AccountID:   account.ID,
		Amount:      10000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 10000}},
	})
	require.NoError(t, err)

	f.guard.locked = true

	_, err = f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      10000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 10000}},
	})
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	_, err = f.engine.Approve(context.Background(), approver, pending.ID)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))
	assert.Equal(t, models.StatusPending, f.transactionStatus(t, pending.ID))
}

func TestFrozenAccountRejectsPostings(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	require.NoError(t, f.engine.FreezeAccount(context.Background(), approver, account.ID))

	_, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      10000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 10000}},
	})
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	require.NoError(t, f.engine.UnfreezeAccount(context.Background(), approver, account.ID))

	_, err = f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      10000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 10000}},
	})
	require.NoError(t, err)
}

func TestIdempotentReplayReturnsOriginal(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	key := "dep-2026-001"
	first, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:      account.ID,
		Amount:         25000,
		Allocations:    money.Allocations{{LedgerID: x.ID, Amount: 25000}},
		IdempotencyKey: &key,
	})
	require.NoError(t, err)

	second, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:      account.ID,
		Amount:         25000,
		Allocations:    money.Allocations{{LedgerID: x.ID, Amount: 25000}},
		IdempotencyKey: &key,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// Applied once, not twice.
	assert.Equal(t, money.Cents(25000), f.accountBalance(t, account.ID))
}

// Two simultaneous requests carrying the same key must both resolve to the
// single stored transaction, applied once.
func TestConcurrentSameIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	key := "dep-2026-007"
	type outcome struct {
		txn *models.TrustTransaction
		err error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
				AccountID:      account.ID,
				Amount:         30000,
				Allocations:    money.Allocations{{LedgerID: x.ID, Amount: 30000}},
				IdempotencyKey: &key,
			})
			results <- outcome{txn: txn, err: err}
		}()
	}
	wg.Wait()
	close(results)

	ids := make(map[string]struct{})
	for res := range results {
		require.NoError(t, res.err)
		ids[res.txn.ID.String()] = struct{}{}
	}
	assert.Len(t, ids, 1)
	assert.Equal(t, money.Cents(30000), f.accountBalance(t, account.ID))
	f.assertConservation(t, account.ID)
}

func TestCloseLedgerRequiresZeroBalance(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)
	f.deposit1000(t, account, x, y)

	err := f.engine.CloseLedger(context.Background(), approver, x.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))

	_, err = f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
		AccountID: account.ID,
		LedgerID:  x.ID,
		Amount:    60000,
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.CloseLedger(context.Background(), approver, x.ID))

	// The close event carries the owning account. Publishing is async.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if evts := f.sink.byAction("ledger.closed"); len(evts) > 0 {
			assert.Equal(t, account.ID.String(), evts[0].AccountID)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ledger.closed event not published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Closed ledgers reject further activity.
	_, err = f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      100,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 100}},
	})
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))
}

func TestCloseAccountLifecycle(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)

	err := f.engine.CloseAccount(context.Background(), approver, account.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStateConflict, apperr.KindOf(err))

	require.NoError(t, f.engine.CloseLedger(context.Background(), approver, x.ID))
	require.NoError(t, f.engine.CloseLedger(context.Background(), approver, y.ID))
	require.NoError(t, f.engine.CloseAccount(context.Background(), approver, account.ID))

	var got models.TrustAccount
	require.NoError(t, f.db.First(&got, "id = ?", account.ID).Error)
	assert.Equal(t, models.AccountClosed, got.Status)
}

func TestWrongAccountLedgerRejected(t *testing.T) {
	f := newFixture(t)
	_, x, _ := f.seedAccount(t)
	other, _, _ := f.seedAccount(t)

	_, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   other.ID,
		Amount:      10000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 10000}},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, money.Cents(0), f.accountBalance(t, other.ID))
}

// Two concurrent withdrawals for the full ledger balance: exactly one may
// succeed.
func TestConcurrentWithdrawalsOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	account, x, _ := f.seedAccount(t)

	_, err := f.engine.RequestDeposit(context.Background(), approver, DepositRequest{
		AccountID:   account.ID,
		Amount:      60000,
		Allocations: money.Allocations{{LedgerID: x.ID, Amount: 60000}},
	})
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RequestWithdrawal(context.Background(), approver, WithdrawalRequest{
				AccountID: account.ID,
				LedgerID:  x.ID,
				Amount:    60000,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, failed int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))
			failed++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, money.Cents(0), f.ledgerBalance(t, x.ID))
	assert.Equal(t, money.Cents(0), f.accountBalance(t, account.ID))
	f.assertConservation(t, account.ID)
}

func TestAuditEventsPublished(t *testing.T) {
	f := newFixture(t)
	account, x, y := f.seedAccount(t)
	txn := f.deposit1000(t, account, x, y)

	_, err := f.engine.Void(context.Background(), approver, txn.ID, "wrong matter")
	require.NoError(t, err)

	// Publishing is async; give the goroutines a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		actions := f.sink.actions()
		if contains(actions, "transaction.approved") && contains(actions, "transaction.voided") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit events not published, got %v", actions)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
