package earnings_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
)

// =============================================================================
// TEST HELPERS (shared across the package tests)
// =============================================================================

func money(n int64) earnings.Money {
	return earnings.NewMoney(n)
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func percentSet(p int64) earnings.RuleSet {
	return earnings.RuleSet{
		ID:      "rs-test",
		Version: 1,
		Rules:   []earnings.Rule{earnings.PercentRule(dec(p))},
	}
}

func computeOK(t *testing.T, fee earnings.Money, rs earnings.RuleSet) earnings.Split {
	t.Helper()
	split, err := earnings.Compute(fee, rs)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return split
}

// =============================================================================
// PERCENT SPLITS
// =============================================================================

func TestCompute_PercentSplit_RoundsHalfUp(t *testing.T) {
	// GIVEN: A 67% driver split that only applies below 1000
	// WHEN: Splitting a fee of 150
	// THEN: Driver gets 101 (100.5 rounds up), company gets the exact rest

	rs := earnings.RuleSet{
		ID:      "rs-67",
		Version: 3,
		Rules:   []earnings.Rule{earnings.PercentRule(dec(67)).ForFeesBelow(money(1000))},
	}

	split := computeOK(t, money(150), rs)

	if got := split.Driver.MinorUnits(); got != 101 {
		t.Errorf("Expected driver earning 101, got %d", got)
	}
	if got := split.Company.MinorUnits(); got != 49 {
		t.Errorf("Expected company earning 49, got %d", got)
	}
	if split.Fallback {
		t.Error("Expected a configured rule to match, not the fallback")
	}
	if split.RuleIndex != 0 {
		t.Errorf("Expected rule 0 to match, got %d", split.RuleIndex)
	}
}

func TestCompute_PercentSplit_HalfUpAtTinyFees(t *testing.T) {
	// 50% of 1 is 0.5; half-up means the driver gets the whole unit.
	split := computeOK(t, money(1), percentSet(50))

	if got := split.Driver.MinorUnits(); got != 1 {
		t.Errorf("Expected driver earning 1, got %d", got)
	}
	if got := split.Company.MinorUnits(); got != 0 {
		t.Errorf("Expected company earning 0, got %d", got)
	}
}

func TestCompute_PercentBoundaries(t *testing.T) {
	// 0% and 100% are legal and must not leak a single minor unit.
	zero := computeOK(t, money(777), percentSet(0))
	if zero.Driver.MinorUnits() != 0 || zero.Company.MinorUnits() != 777 {
		t.Errorf("0%%: expected 0/777, got %s/%s", zero.Driver, zero.Company)
	}

	full := computeOK(t, money(777), percentSet(100))
	if full.Driver.MinorUnits() != 777 || full.Company.MinorUnits() != 0 {
		t.Errorf("100%%: expected 777/0, got %s/%s", full.Driver, full.Company)
	}
}

// =============================================================================
// SUM INVARIANT
// =============================================================================

func TestCompute_DriverPlusCompanyEqualsFee(t *testing.T) {
	// GIVEN: A spread of rule sets and fees, including awkward rounding
	// WHEN: Computing each split
	// THEN: The two sides always sum exactly to the fee

	ruleSets := []earnings.RuleSet{
		percentSet(67),
		percentSet(33),
		percentSet(1),
		percentSet(99),
		{ID: "fixed", Version: 1, Rules: []earnings.Rule{earnings.FixedRule(money(120))}},
		{ID: "tiered", Version: 2, Rules: []earnings.Rule{earnings.TieredRule(
			earnings.PercentTierUpTo(money(500), dec(80)),
			earnings.PercentTierUpTo(money(2000), dec(70)),
			earnings.FixedTierAbove(money(900)),
		)}},
	}
	fees := []int64{0, 1, 2, 3, 99, 100, 149, 150, 499, 500, 999, 1000, 1999, 2000, 123457}

	for _, rs := range ruleSets {
		for _, fee := range fees {
			split := computeOK(t, money(fee), rs)
			sum := split.Driver.Add(split.Company)
			if !sum.Equal(money(fee)) {
				t.Errorf("RuleSet %s fee %d: driver %s + company %s = %s, want %d",
					rs.ID, fee, split.Driver, split.Company, sum, fee)
			}
			if split.Driver.IsNegative() || split.Company.IsNegative() {
				t.Errorf("RuleSet %s fee %d: negative side %s/%s",
					rs.ID, fee, split.Driver, split.Company)
			}
		}
	}
}

// =============================================================================
// FIXED SPLITS
// =============================================================================

func TestCompute_FixedAmountClampedToFee(t *testing.T) {
	// GIVEN: A flat driver cut of 500
	// WHEN: The fee is smaller than the cut
	// THEN: The driver gets the whole fee and the company gets zero

	rs := earnings.RuleSet{ID: "flat", Version: 1, Rules: []earnings.Rule{earnings.FixedRule(money(500))}}

	small := computeOK(t, money(300), rs)
	if small.Driver.MinorUnits() != 300 || small.Company.MinorUnits() != 0 {
		t.Errorf("Expected 300/0, got %s/%s", small.Driver, small.Company)
	}

	large := computeOK(t, money(1200), rs)
	if large.Driver.MinorUnits() != 500 || large.Company.MinorUnits() != 700 {
		t.Errorf("Expected 500/700, got %s/%s", large.Driver, large.Company)
	}
}

// =============================================================================
// RULE SELECTION
// =============================================================================

func TestCompute_FirstMatchingRuleWins(t *testing.T) {
	// GIVEN: Two overlapping rules that both cover a fee of 400
	// WHEN: Computing the split
	// THEN: The earlier rule applies; order is the tie-break

	rs := earnings.RuleSet{
		ID:      "overlap",
		Version: 1,
		Rules: []earnings.Rule{
			earnings.PercentRule(dec(50)).ForFeesBelow(money(1000)),
			earnings.PercentRule(dec(90)),
		},
	}

	split := computeOK(t, money(400), rs)
	if split.RuleIndex != 0 {
		t.Errorf("Expected rule 0 to win, got rule %d", split.RuleIndex)
	}
	if got := split.Driver.MinorUnits(); got != 200 {
		t.Errorf("Expected the 50%% rule to apply (driver 200), got %d", got)
	}
}

func TestCompute_FeeWindowBoundaries(t *testing.T) {
	// Windows are [min, max): 1000 falls out of "below 1000" and into
	// "at least 1000".
	rs := earnings.RuleSet{
		ID:      "windowed",
		Version: 1,
		Rules: []earnings.Rule{
			earnings.PercentRule(dec(80)).ForFeesBelow(money(1000)),
			earnings.PercentRule(dec(60)).ForFeesAtLeast(money(1000)),
		},
	}

	below := computeOK(t, money(999), rs)
	if below.RuleIndex != 0 {
		t.Errorf("Fee 999: expected rule 0, got %d", below.RuleIndex)
	}

	at := computeOK(t, money(1000), rs)
	if at.RuleIndex != 1 {
		t.Errorf("Fee 1000: expected rule 1, got %d", at.RuleIndex)
	}
}

func TestCompute_TieredRule_SelectsBucketByFee(t *testing.T) {
	// GIVEN: 80% below 500, 70% from 500 up to 2000, flat 900 beyond
	// WHEN: Computing fees around each boundary
	// THEN: Each fee lands in its bucket, upper bounds exclusive

	rs := earnings.RuleSet{
		ID:      "tiered",
		Version: 1,
		Rules: []earnings.Rule{earnings.TieredRule(
			earnings.PercentTierUpTo(money(500), dec(80)),
			earnings.PercentTierUpTo(money(2000), dec(70)),
			earnings.FixedTierAbove(money(900)),
		)},
	}

	cases := []struct {
		fee        int64
		tier       int
		wantDriver int64
	}{
		{fee: 499, tier: 0, wantDriver: 399}, // 399.2 rounds down
		{fee: 500, tier: 1, wantDriver: 350},
		{fee: 1999, tier: 1, wantDriver: 1399}, // 1399.3 rounds down
		{fee: 2000, tier: 2, wantDriver: 900},
		{fee: 100000, tier: 2, wantDriver: 900},
	}
	for _, tc := range cases {
		split := computeOK(t, money(tc.fee), rs)
		if split.TierIndex != tc.tier {
			t.Errorf("Fee %d: expected tier %d, got %d", tc.fee, tc.tier, split.TierIndex)
		}
		if got := split.Driver.MinorUnits(); got != tc.wantDriver {
			t.Errorf("Fee %d: expected driver %d, got %d", tc.fee, tc.wantDriver, got)
		}
	}
}

// =============================================================================
// FALLBACK AND REJECTS
// =============================================================================

func TestCompute_NoRuleMatches_FallsBackToDefaultSplit(t *testing.T) {
	// GIVEN: A rule set whose only rule stops at 1000
	// WHEN: Splitting a fee of 5000
	// THEN: The built-in 67/33 split applies and the result says so

	rs := earnings.RuleSet{
		ID:      "gappy",
		Version: 1,
		Rules:   []earnings.Rule{earnings.PercentRule(dec(50)).ForFeesBelow(money(1000))},
	}

	split := computeOK(t, money(5000), rs)
	if !split.Fallback {
		t.Fatal("Expected the fallback split to be flagged")
	}
	if split.RuleIndex != -1 {
		t.Errorf("Expected rule index -1 for fallback, got %d", split.RuleIndex)
	}
	if split.Driver.MinorUnits() != 3350 || split.Company.MinorUnits() != 1650 {
		t.Errorf("Expected default 67/33 split 3350/1650, got %s/%s", split.Driver, split.Company)
	}
}

func TestCompute_NegativeFee_Rejected(t *testing.T) {
	_, err := earnings.Compute(money(-1), percentSet(67))
	if err == nil {
		t.Fatal("Expected an error for a negative fee")
	}
}

func TestCompute_ZeroFee_SplitsToZero(t *testing.T) {
	split := computeOK(t, money(0), percentSet(67))
	if !split.Driver.IsZero() || !split.Company.IsZero() {
		t.Errorf("Expected 0/0 for a zero fee, got %s/%s", split.Driver, split.Company)
	}
}

func TestDefaultRuleSet_IsValidAndSplits67_33(t *testing.T) {
	// The built-in default must itself pass validation; it is the net
	// under every other configuration.
	def := earnings.DefaultRuleSet()
	if err := def.Validate(); err != nil {
		t.Fatalf("Default rule set failed validation: %v", err)
	}
	if def.Version != 0 {
		t.Errorf("Expected version 0, got %d", def.Version)
	}

	split := computeOK(t, money(100), def)
	if split.Driver.MinorUnits() != 67 || split.Company.MinorUnits() != 33 {
		t.Errorf("Expected 67/33, got %s/%s", split.Driver, split.Company)
	}
}
