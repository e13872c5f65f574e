package money

import (
	"github.com/google/uuid"

	"trust-accounting-backend/internal/apperr"
)

// Allocation is the portion of a deposit assigned to one client ledger.
type Allocation struct {
	LedgerID uuid.UUID
	Amount   Cents
}

type Allocations []Allocation

func (a Allocations) Sum() Cents {
	var total Cents
	for _, al := range a {
		total += al.Amount
	}
	return total
}

func (a Allocations) LedgerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(a))
	for _, al := range a {
		ids = append(ids, al.LedgerID)
	}
	return ids
}

// Validate enforces the allocation invariants for a deposit: at least one
// allocation, every amount strictly positive, no duplicate ledgers, and the
// sum exactly equal to the stated total. No tolerance: amounts are integer
// cents, so the sum either matches or the request is wrong.
func (a Allocations) Validate(total Cents) error {
	if len(a) == 0 {
		return apperr.Validationf("deposit requires at least one allocation")
	}
	seen := make(map[uuid.UUID]struct{}, len(a))
	for _, al := range a {
		if al.LedgerID == uuid.Nil {
			return apperr.Validationf("allocation ledger id is required")
		}
		if al.Amount <= 0 {
			return apperr.Validationf("allocation amount for ledger %s must be positive", al.LedgerID)
		}
		if _, dup := seen[al.LedgerID]; dup {
			return apperr.Validationf("duplicate allocation for ledger %s", al.LedgerID)
		}
		seen[al.LedgerID] = struct{}{}
	}
	if sum := a.Sum(); sum != total {
		return apperr.Validationf("allocations sum to %s but deposit amount is %s", sum, total)
	}
	return nil
}
