package collab

import (
	"context"

	"trust-accounting-backend/internal/interfaces"
)

// StaticAuthorizer grants approver rights to a fixed set of principal ids,
// typically loaded from configuration. The real platform swaps in its
// identity provider behind the same interface.
type StaticAuthorizer struct {
	approvers map[string]struct{}
}

func NewStaticAuthorizer(ids []string) *StaticAuthorizer {
	approvers := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			approvers[id] = struct{}{}
		}
	}
	return &StaticAuthorizer{approvers: approvers}
}

func (a *StaticAuthorizer) IsApprover(_ context.Context, principal string) (bool, error) {
	_, ok := a.approvers[principal]
	return ok, nil
}

var _ interfaces.Authorizer = (*StaticAuthorizer)(nil)
