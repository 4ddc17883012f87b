/*
Pure fee-split calculator.

PURPOSE:
  Turns (fee, RuleSet) into a driver/company split. This is the only place
  split arithmetic lives; everything else in the engine delegates here so
  that recomputation during reconciliation reproduces the original numbers
  exactly.

KEY CONCEPTS IN THIS FILE (calculator.go):
  - Split: the computed division of a fee, plus which rule produced it
  - Compute: first matching rule wins; fixed amounts are clamped to
    [0, fee]; percentages round half-up at the minor unit
  - Fallback: when no rule matches, the built-in 67/33 split applies and
    the Split is flagged so callers can log the anomaly

GUARANTEE:
  Driver + Company == fee, always, for any valid rule set and any
  non-negative fee. The driver side is rounded and the company side is
  defined as the remainder, so the sum is exact by construction, never by
  rounding both sides independently.

SEE ALSO:
  - rule.go: Rule matching and tier selection
  - reconciler.go: Persists computed splits and audits fallbacks
*/
package earnings

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// SPLIT
// =============================================================================

// Split is the result of dividing a delivery fee.
type Split struct {
	Driver  Money
	Company Money

	// RuleIndex is the position of the rule that matched, -1 when the
	// built-in fallback was applied.
	RuleIndex int

	// TierIndex is the tier that matched within a tiered rule, -1 for
	// fixed and percent rules.
	TierIndex int

	// Fallback is set when no configured rule matched the fee. Validation
	// makes this unreachable for stored rule sets; it exists so a corrupt
	// record degrades to the default split instead of failing a delivery.
	Fallback bool
}

// =============================================================================
// COMPUTE
// =============================================================================

// Compute splits fee according to rs. Rules are evaluated in order and the
// first one whose fee window contains fee is applied. Deterministic and
// side-effect free; the only error is a negative fee.
func Compute(fee Money, rs RuleSet) (Split, error) {
	if fee.IsNegative() {
		return Split{}, ErrNegativeFee
	}
	for i, rule := range rs.Rules {
		if !rule.AppliesTo(fee) {
			continue
		}
		switch rule.Kind {
		case RuleFixed:
			return splitFixed(fee, rule.Amount, i, -1), nil
		case RulePercent:
			return splitPercent(fee, rule.DriverPercent, i, -1), nil
		case RuleTiered:
			tier, t := rule.TierFor(fee)
			if t < 0 {
				continue
			}
			if tier.Kind == RuleFixed {
				return splitFixed(fee, tier.Amount, i, t), nil
			}
			return splitPercent(fee, tier.DriverPercent, i, t), nil
		}
	}

	split := splitPercent(fee, DefaultDriverShare, -1, -1)
	split.Fallback = true
	return split, nil
}

func splitFixed(fee, amount Money, rule, tier int) Split {
	driver := amount.Clamp(NewMoney(0), fee)
	return Split{Driver: driver, Company: fee.Sub(driver), RuleIndex: rule, TierIndex: tier}
}

func splitPercent(fee Money, p decimal.Decimal, rule, tier int) Split {
	driver := fee.Percent(p).RoundMinor()
	return Split{Driver: driver, Company: fee.Sub(driver), RuleIndex: rule, TierIndex: tier}
}
