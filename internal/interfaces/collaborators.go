package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trust-accounting-backend/internal/models/events"
)

// Authorizer decides who may approve, reject or void trust transactions.
// Approvers also get the immediate-apply path on deposit/withdrawal
// requests; everyone else queues a pending transaction.
type Authorizer interface {
	IsApprover(ctx context.Context, principal string) (bool, error)
}

// PeriodGuard reports whether the billing period covering t is closed to
// postings.
type PeriodGuard interface {
	IsLocked(ctx context.Context, t time.Time) (bool, error)
}

// AuditSink receives a notification for every state transition. Publishing
// is fire-and-forget: failures are logged by the caller, never surfaced to
// the requester.
type AuditSink interface {
	Publish(ctx context.Context, event events.TrustEvent) error
}

// PartyRegistry validates client and matter references against the wider
// platform before a ledger is created.
type PartyRegistry interface {
	ClientExists(ctx context.Context, clientID uuid.UUID) (bool, error)
	MatterBelongsToClient(ctx context.Context, matterID, clientID uuid.UUID) (bool, error)
}
