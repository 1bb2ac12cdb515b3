// Package totals recomputes invoice totals and compares them with the
// declared amount.
package totals

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
)

type Mode string

const (
	Bankers Mode = "BANKERS"
	HalfUp  Mode = "HALF_UP"
)

type Policy struct {
	Mode              Mode
	Digits            int32
	TolerancePercent  decimal.Decimal
	ToleranceAbsolute decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		Mode:              Bankers,
		Digits:            2,
		TolerancePercent:  decimal.RequireFromString("0.005"),
		ToleranceAbsolute: decimal.RequireFromString("0.50"),
	}
}

func NewPolicy(mode string, digits int32, pct, abs float64) (Policy, error) {
	p := Policy{
		Mode:              Mode(strings.ToUpper(strings.TrimSpace(mode))),
		Digits:            digits,
		TolerancePercent:  decimal.NewFromFloat(pct),
		ToleranceAbsolute: decimal.NewFromFloat(abs),
	}
	switch p.Mode {
	case Bankers, HalfUp:
	default:
		return Policy{}, fmt.Errorf("unsupported rounding mode %q", mode)
	}
	if p.TolerancePercent.IsNegative() || p.ToleranceAbsolute.IsNegative() {
		return Policy{}, fmt.Errorf("tolerances cannot be negative")
	}
	return p, nil
}

func (p Policy) Round(d decimal.Decimal) decimal.Decimal {
	if p.Mode == HalfUp {
		return d.Round(p.Digits)
	}
	return d.RoundBank(p.Digits)
}

type Result struct {
	Within      bool
	HasDeclared bool
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Computed    decimal.Decimal
	Declared    decimal.Decimal
	Diff        decimal.Decimal
}

// Check is pure: the same items, declared total and policy always give the
// same result.
func Check(items []internal.LineItem, declared *decimal.Decimal, p Policy) Result {
	subtotal := decimal.Zero
	tax := decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, it := range items {
		line := it.UnitPrice.Mul(it.Quantity)
		subtotal = subtotal.Add(line)
		if it.TaxRate != nil {
			tax = tax.Add(line.Mul(*it.TaxRate).Div(hundred))
		}
	}

	res := Result{
		Subtotal: p.Round(subtotal),
		Tax:      p.Round(tax),
	}
	res.Computed = p.Round(res.Subtotal.Add(res.Tax))

	if declared == nil {
		res.Within = true
		return res
	}

	res.HasDeclared = true
	res.Declared = *declared
	res.Diff = declared.Sub(res.Computed).Abs()

	base := decimal.Max(decimal.NewFromInt(1), *declared)
	res.Within = res.Diff.LessThanOrEqual(p.ToleranceAbsolute) ||
		res.Diff.LessThanOrEqual(p.TolerancePercent.Mul(base))
	return res
}
