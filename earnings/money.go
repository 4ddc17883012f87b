/*
Package earnings provides the delivery earnings computation engine.

PURPOSE:
  This package contains the types and algorithms for splitting delivery fees
  between drivers and the company. It owns the fee-split rule model, the pure
  split calculator, the versioned rule-set configuration service, and the
  reconciliation engine that keeps per-driver aggregates consistent with the
  per-delivery records they summarize.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: A monetary amount in minor units (cents), decimal-backed
  - Percent: Exact percentage application without float drift
  - RoundMinor: Half-up rounding to a whole minor unit

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so 67% of 150 is exactly 100.5, not
     100.49999...
  2. Integral at rest: Every persisted amount is a whole number of minor
     units; fractional values exist only inside the calculator
  3. Value semantics: Money is immutable; operations return new values

USAGE:
  fee := earnings.NewMoney(150)
  driver := fee.Percent(decimal.NewFromInt(67)).RoundMinor() // 101
  company := fee.Sub(driver)                                 // 49

SEE ALSO:
  - rule.go: Fee-split rule definitions
  - calculator.go: The pure split computation
  - reconciler.go: Aggregate validation and repair
*/
package earnings

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Amount in minor currency units
// =============================================================================

// Money is an amount of currency expressed in minor units (e.g. cents).
// The zero value is zero money and is ready to use.
type Money struct {
	Value decimal.Decimal
}

// NewMoney returns a Money of the given whole minor units.
func NewMoney(minorUnits int64) Money {
	return Money{Value: decimal.NewFromInt(minorUnits)}
}

// NewMoneyFromDecimal wraps an arbitrary decimal value as Money.
// Callers persisting the result must round it to a whole minor unit first.
func NewMoneyFromDecimal(v decimal.Decimal) Money {
	return Money{Value: v}
}

// MustParseMoney parses a decimal string into Money, returning zero money
// on malformed input. Intended for constants and tests.
func MustParseMoney(s string) Money {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: v}
}

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money          { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                 { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool   { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool      { return m.Value.LessThan(o.Value) }
func (m Money) GreaterOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) Min(o Money) Money          { if m.LessThan(o) { return m }; return o }
func (m Money) Max(o Money) Money          { if m.GreaterThan(o) { return m }; return o }

// Clamp bounds m to the inclusive range [lo, hi].
func (m Money) Clamp(lo, hi Money) Money {
	return m.Max(lo).Min(hi)
}

// Percent returns p percent of m, exactly. Shifting the decimal point by two
// places divides by 100 without introducing division rounding.
func (m Money) Percent(p decimal.Decimal) Money {
	return Money{Value: m.Value.Mul(p).Shift(-2)}
}

// RoundMinor rounds to a whole minor unit, halves away from zero. On the
// non-negative amounts this engine deals in, that is round-half-up: 100.5
// becomes 101.
func (m Money) RoundMinor() Money {
	return Money{Value: m.Value.Round(0)}
}

// MinorUnits returns the amount as whole minor units. The fractional part,
// if any, is truncated; persisted amounts are always integral so this is
// lossless everywhere it matters.
func (m Money) MinorUnits() int64 {
	return m.Value.IntPart()
}

// String renders the amount in minor units, e.g. "150" or "100.5" for an
// unrounded intermediate.
func (m Money) String() string {
	return m.Value.String()
}
