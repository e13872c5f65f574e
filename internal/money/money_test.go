package money

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-accounting-backend/internal/apperr"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Cents
	}{
		{"1000.00", 100000},
		{"0.01", 1},
		{"5", 500},
		{"600.5", 60050},
		{"0", 0},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, in := range []string{"abc", "", "1.005", "12.345"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), in)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "600.00", Cents(60000).String())
	assert.Equal(t, "0.01", Cents(1).String())
	assert.Equal(t, "-4.50", Cents(-450).String())
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Cents(123456))
	require.NoError(t, err)
	assert.Equal(t, `"1234.56"`, string(data))

	var c Cents
	require.NoError(t, json.Unmarshal([]byte(`"1234.56"`), &c))
	assert.Equal(t, Cents(123456), c)

	require.NoError(t, json.Unmarshal([]byte(`99.95`), &c))
	assert.Equal(t, Cents(9995), c)
}

func TestAllocationsValidate(t *testing.T) {
	x, y := uuid.New(), uuid.New()

	ok := Allocations{{LedgerID: x, Amount: 60000}, {LedgerID: y, Amount: 40000}}
	require.NoError(t, ok.Validate(100000))

	cases := []struct {
		name   string
		allocs Allocations
		total  Cents
	}{
		{"empty", Allocations{}, 100000},
		{"sum mismatch", Allocations{{LedgerID: x, Amount: 60000}}, 100000},
		{"non-positive amount", Allocations{{LedgerID: x, Amount: 0}}, 0},
		{"duplicate ledger", Allocations{{LedgerID: x, Amount: 1}, {LedgerID: x, Amount: 1}}, 2},
		{"nil ledger id", Allocations{{LedgerID: uuid.Nil, Amount: 100}}, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.allocs.Validate(tc.total)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestAllocationsSum(t *testing.T) {
	a := Allocations{{LedgerID: uuid.New(), Amount: 1}, {LedgerID: uuid.New(), Amount: 2}}
	assert.Equal(t, Cents(3), a.Sum())
}
