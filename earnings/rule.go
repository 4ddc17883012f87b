/*
Fee-split rule model.

PURPOSE:
  Defines the rules that decide how a delivery fee is divided between the
  driver and the company. A rule set holds an ordered list of rules; the
  calculator walks the list and the first rule whose fee window contains the
  delivery fee wins.

KEY CONCEPTS IN THIS FILE (rule.go):
  - RuleKind: fixed, percent or tiered
  - Rule: One split rule with an optional fee applicability window
  - Tier: A fee bucket inside a tiered rule; lower bounds are implicit
    (each tier starts where the previous one ended, the first starts at 0)

DESIGN PRINCIPLES:
  1. First match wins: Overlapping rule windows are legal; order decides
  2. Tiers cannot overlap or leave gaps by construction: only the upper
     bound of each tier is stored, and the last tier is open-ended
  3. Validation is exhaustive: every reject names the rule index, the
     field and the reason

SEE ALSO:
  - ruleset.go: Versioned, activatable collections of rules
  - calculator.go: Applies a rule set to a fee
  - errors.go: RuleValidationError
*/
package earnings

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE KINDS
// =============================================================================

type RuleKind string

const (
	RuleFixed   RuleKind = "fixed"
	RulePercent RuleKind = "percent"
	RuleTiered  RuleKind = "tiered"
)

// =============================================================================
// RULE - One entry of a rule set
// =============================================================================

// Rule is a single fee-split rule.
//
// MinFee and MaxFee form the applicability window [MinFee, MaxFee). A zero
// MinFee with a nil MaxFee means the rule applies to every fee, so a rule
// set that ends with an unwindowed rule always matches.
type Rule struct {
	Kind RuleKind

	// Applicability window over the delivery fee, in minor units.
	// MinFee is inclusive, MaxFee exclusive. Nil MaxFee means unbounded.
	MinFee Money
	MaxFee *Money

	// Amount is the driver's fixed cut when Kind == RuleFixed.
	Amount Money

	// DriverPercent is the driver's percentage cut, 0-100, when
	// Kind == RulePercent.
	DriverPercent decimal.Decimal

	// Tiers are the fee buckets when Kind == RuleTiered, ordered by
	// ascending upper bound.
	Tiers []Tier
}

// AppliesTo reports whether fee falls inside the rule's fee window.
func (r Rule) AppliesTo(fee Money) bool {
	if fee.LessThan(r.MinFee) {
		return false
	}
	if r.MaxFee != nil && fee.GreaterOrEqual(*r.MaxFee) {
		return false
	}
	return true
}

// TierFor returns the tier whose bucket contains fee, along with its index.
// Tier lower bounds are implicit: tier i covers [Tiers[i-1].UpTo,
// Tiers[i].UpTo), the first tier starts at zero and the last is open-ended.
// The second return is -1 when the rule has no tiers.
func (r Rule) TierFor(fee Money) (Tier, int) {
	for i, tier := range r.Tiers {
		if tier.UpTo == nil || fee.LessThan(*tier.UpTo) {
			return tier, i
		}
	}
	return Tier{}, -1
}

// =============================================================================
// TIER - A fee bucket inside a tiered rule
// =============================================================================

// Tier selects fixed or percent parameters for one fee bucket. Only the
// exclusive upper bound is stored; validation requires bounds to be strictly
// increasing and the final tier to be open-ended (nil UpTo), which makes
// gaps and overlaps unrepresentable.
type Tier struct {
	// UpTo is the exclusive upper bound of the bucket in minor units.
	// Nil marks the final, open-ended tier.
	UpTo *Money

	// Kind is RuleFixed or RulePercent. Tiers do not nest.
	Kind RuleKind

	Amount        Money
	DriverPercent decimal.Decimal
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// FixedRule gives the driver a flat amount regardless of the fee (the
// calculator clamps it into [0, fee]).
func FixedRule(amount Money) Rule {
	return Rule{Kind: RuleFixed, Amount: amount}
}

// PercentRule gives the driver driverPercent percent of the fee.
func PercentRule(driverPercent decimal.Decimal) Rule {
	return Rule{Kind: RulePercent, DriverPercent: driverPercent}
}

// TieredRule selects per-bucket parameters by fee size.
func TieredRule(tiers ...Tier) Rule {
	return Rule{Kind: RuleTiered, Tiers: tiers}
}

// ForFeesBelow returns a copy of the rule that only applies to fees
// strictly below max.
func (r Rule) ForFeesBelow(max Money) Rule {
	r.MaxFee = &max
	return r
}

// ForFeesAtLeast returns a copy of the rule that only applies to fees of
// at least min.
func (r Rule) ForFeesAtLeast(min Money) Rule {
	r.MinFee = min
	return r
}

// PercentTierUpTo is a percent bucket for fees below upTo.
func PercentTierUpTo(upTo Money, driverPercent decimal.Decimal) Tier {
	return Tier{UpTo: &upTo, Kind: RulePercent, DriverPercent: driverPercent}
}

// FixedTierUpTo is a fixed-amount bucket for fees below upTo.
func FixedTierUpTo(upTo Money, amount Money) Tier {
	return Tier{UpTo: &upTo, Kind: RuleFixed, Amount: amount}
}

// PercentTierAbove is the open-ended percent bucket closing a tier list.
func PercentTierAbove(driverPercent decimal.Decimal) Tier {
	return Tier{Kind: RulePercent, DriverPercent: driverPercent}
}

// FixedTierAbove is the open-ended fixed-amount bucket closing a tier list.
func FixedTierAbove(amount Money) Tier {
	return Tier{Kind: RuleFixed, Amount: amount}
}

// =============================================================================
// VALIDATION
// =============================================================================

var percentCeiling = decimal.NewFromInt(100)

// ValidateRules checks a full rule list the way Create and Activate do.
// The first problem found is returned as a *RuleValidationError wrapping
// ErrInvalidRuleSet.
func ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return &RuleValidationError{RuleIndex: -1, TierIndex: -1, Field: "rules", Reason: "rule set must contain at least one rule"}
	}
	for i, rule := range rules {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(i int, r Rule) error {
	if err := validateWindow(i, r); err != nil {
		return err
	}
	switch r.Kind {
	case RuleFixed:
		return validateFixed(i, -1, r.Amount)
	case RulePercent:
		return validatePercent(i, -1, r.DriverPercent)
	case RuleTiered:
		return validateTiers(i, r.Tiers)
	default:
		return &RuleValidationError{RuleIndex: i, TierIndex: -1, Field: "kind", Reason: "unknown rule kind " + string(r.Kind)}
	}
}

func validateWindow(i int, r Rule) error {
	if r.MinFee.IsNegative() {
		return &RuleValidationError{RuleIndex: i, TierIndex: -1, Field: "min_fee", Reason: "must not be negative"}
	}
	if !r.MinFee.Value.IsInteger() {
		return &RuleValidationError{RuleIndex: i, TierIndex: -1, Field: "min_fee", Reason: "must be whole minor units"}
	}
	if r.MaxFee != nil {
		if !r.MaxFee.Value.IsInteger() {
			return &RuleValidationError{RuleIndex: i, TierIndex: -1, Field: "max_fee", Reason: "must be whole minor units"}
		}
		if !r.MaxFee.GreaterThan(r.MinFee) {
			return &RuleValidationError{RuleIndex: i, TierIndex: -1, Field: "max_fee", Reason: "must be greater than min_fee"}
		}
	}
	return nil
}

func validateFixed(i, tier int, amount Money) error {
	if amount.IsNegative() {
		return &RuleValidationError{RuleIndex: i, TierIndex: tier, Field: "amount", Reason: "must not be negative"}
	}
	if !amount.Value.IsInteger() {
		return &RuleValidationError{RuleIndex: i, TierIndex: tier, Field: "amount", Reason: "must be whole minor units"}
	}
	return nil
}

func validatePercent(i, tier int, p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(percentCeiling) {
		return &RuleValidationError{RuleIndex: i, TierIndex: tier, Field: "driver_percent", Reason: "must be between 0 and 100"}
	}
	return nil
}

func validateTiers(i int, tiers []Tier) error {
	if len(tiers) == 0 {
		return &RuleValidationError{RuleIndex: i, TierIndex: -1, Field: "tiers", Reason: "tiered rule must contain at least one tier"}
	}
	prev := NewMoney(0)
	for t, tier := range tiers {
		last := t == len(tiers)-1
		switch {
		case tier.UpTo == nil && !last:
			return &RuleValidationError{RuleIndex: i, TierIndex: t, Field: "up_to", Reason: "only the last tier may be open-ended"}
		case tier.UpTo != nil && last:
			return &RuleValidationError{RuleIndex: i, TierIndex: t, Field: "up_to", Reason: "last tier must be open-ended to cover all fees"}
		}
		if tier.UpTo != nil {
			if !tier.UpTo.Value.IsInteger() {
				return &RuleValidationError{RuleIndex: i, TierIndex: t, Field: "up_to", Reason: "must be whole minor units"}
			}
			if !tier.UpTo.GreaterThan(prev) {
				return &RuleValidationError{RuleIndex: i, TierIndex: t, Field: "up_to", Reason: "tier bounds must be strictly increasing"}
			}
			prev = *tier.UpTo
		}
		switch tier.Kind {
		case RuleFixed:
			if err := validateFixed(i, t, tier.Amount); err != nil {
				return err
			}
		case RulePercent:
			if err := validatePercent(i, t, tier.DriverPercent); err != nil {
				return err
			}
		default:
			return &RuleValidationError{RuleIndex: i, TierIndex: t, Field: "kind", Reason: "tier kind must be fixed or percent"}
		}
	}
	return nil
}
