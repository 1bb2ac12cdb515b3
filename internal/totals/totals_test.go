package totals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplyrecon/internal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func sampleItems() []internal.LineItem {
	return []internal.LineItem{
		{Name: "Milk", Quantity: dec("10"), UnitPrice: dec("20.00")},
		{Name: "Cheese", Quantity: dec("1"), UnitPrice: dec("50.00")},
	}
}

func TestCheckWithinTolerance(t *testing.T) {
	res := Check(sampleItems(), decPtr("250.00"), DefaultPolicy())
	assert.True(t, res.Within)
	assert.True(t, res.Computed.Equal(dec("250.00")))
	assert.True(t, res.Diff.IsZero())
}

func TestCheckOutOfTolerance(t *testing.T) {
	res := Check(sampleItems(), decPtr("260.00"), DefaultPolicy())
	assert.False(t, res.Within)
	assert.True(t, res.Diff.Equal(dec("10.00")), "diff=%s", res.Diff)
}

func TestCheckPercentBand(t *testing.T) {
	items := []internal.LineItem{{Quantity: dec("1"), UnitPrice: dec("1000")}}
	// 0.5% of 1004 is 5.02, so a 4.00 gap passes on the percent rule alone.
	res := Check(items, decPtr("1004"), DefaultPolicy())
	assert.True(t, res.Within)

	res = Check(items, decPtr("1006"), DefaultPolicy())
	assert.False(t, res.Within)
}

func TestCheckNoDeclaredTotal(t *testing.T) {
	res := Check(sampleItems(), nil, DefaultPolicy())
	assert.True(t, res.Within)
	assert.False(t, res.HasDeclared)
	assert.True(t, res.Computed.Equal(dec("250")))
}

func TestCheckTaxRoundedSeparately(t *testing.T) {
	items := []internal.LineItem{
		{Quantity: dec("1"), UnitPrice: dec("0.125"), TaxRate: decPtr("20")},
		{Quantity: dec("1"), UnitPrice: dec("0.125"), TaxRate: decPtr("20")},
	}
	res := Check(items, nil, DefaultPolicy())
	assert.True(t, res.Subtotal.Equal(dec("0.25")))
	assert.True(t, res.Tax.Equal(dec("0.05")))
	assert.True(t, res.Computed.Equal(dec("0.30")))
}

func TestRoundingModes(t *testing.T) {
	bankers := DefaultPolicy()
	halfUp, err := NewPolicy("half_up", 2, 0.005, 0.5)
	require.NoError(t, err)

	assert.Equal(t, "0.12", bankers.Round(dec("0.125")).StringFixed(2))
	assert.Equal(t, "0.13", halfUp.Round(dec("0.125")).StringFixed(2))
	assert.Equal(t, "0.14", bankers.Round(dec("0.135")).StringFixed(2))
	assert.Equal(t, "-0.13", halfUp.Round(dec("-0.125")).StringFixed(2))
}

func TestCheckIsIdempotent(t *testing.T) {
	items := sampleItems()
	first := Check(items, decPtr("251.10"), DefaultPolicy())
	second := Check(items, decPtr("251.10"), DefaultPolicy())
	assert.Equal(t, first.Within, second.Within)
	assert.True(t, first.Computed.Equal(second.Computed))
	assert.True(t, first.Diff.Equal(second.Diff))
}

func TestNewPolicyRejectsUnknownMode(t *testing.T) {
	_, err := NewPolicy("CEILING", 2, 0.005, 0.5)
	require.Error(t, err)
}
