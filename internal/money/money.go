package money

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"trust-accounting-backend/internal/apperr"
)

// Cents is a money amount in integer minor units. Balances, deltas and
// transaction amounts are all Cents, so the conservation check
// (account balance == sum of ledger balances) is exact integer equality.
type Cents int64

// Parse reads a two-decimal amount string ("1000.00") into Cents.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperr.Validationf("invalid amount %q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal amount to Cents, rejecting anything with
// more than two fractional digits.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	scaled := d.Mul(decimal.NewFromInt(100))
	if !scaled.IsInteger() {
		return 0, apperr.Validationf("amount %s has more than two decimal places", d.String())
	}
	return Cents(scaled.IntPart()), nil
}

func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

// String renders the amount with exactly two decimals.
func (c Cents) String() string { return c.Decimal().StringFixed(2) }

func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// MarshalJSON renders Cents as a two-decimal string so API payloads never
// carry raw minor units.
func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Cents) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := Parse(s)
		if perr != nil {
			return perr
		}
		*c = parsed
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return apperr.Validationf("invalid amount %s", string(data))
	}
	parsed, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
