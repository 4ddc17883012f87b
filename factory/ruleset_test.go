package factory_test

import (
	"testing"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/factory"
)

func TestParseRules_ReadsTheDocumentedSchema(t *testing.T) {
	jsonStr := `{
		"rules": [
			{"kind": "percent", "driver_percent": 67, "max_fee": 1000},
			{"kind": "fixed", "amount": 120, "min_fee": 1000},
			{"kind": "tiered", "tiers": [
				{"kind": "percent", "up_to": 500, "driver_percent": 80},
				{"kind": "fixed", "amount": 900}
			]}
		]
	}`

	f := factory.NewRuleSetFactory()
	rules, err := f.ParseRules(jsonStr)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("Expected 3 rules, got %d", len(rules))
	}
	if err := earnings.ValidateRules(rules); err != nil {
		t.Fatalf("Parsed rules failed validation: %v", err)
	}

	if rules[0].Kind != earnings.RulePercent || rules[0].MaxFee == nil || rules[0].MaxFee.MinorUnits() != 1000 {
		t.Errorf("Rule 0 parsed wrong: %+v", rules[0])
	}
	if rules[1].Kind != earnings.RuleFixed || rules[1].Amount.MinorUnits() != 120 || rules[1].MinFee.MinorUnits() != 1000 {
		t.Errorf("Rule 1 parsed wrong: %+v", rules[1])
	}
	if len(rules[2].Tiers) != 2 || rules[2].Tiers[1].UpTo != nil {
		t.Errorf("Rule 2 tiers parsed wrong: %+v", rules[2])
	}
}

func TestEncodeRules_RoundTripsSemantics(t *testing.T) {
	// A fractional percentage must survive the trip; the decisive check is
	// that both rule lists split a fee identically.
	f := factory.NewRuleSetFactory()
	original, err := f.ParseRules(`{"rules": [{"kind": "percent", "driver_percent": 12.5}]}`)
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}

	encoded, err := f.EncodeRules(original)
	if err != nil {
		t.Fatalf("EncodeRules failed: %v", err)
	}
	decoded, err := f.DecodeRules(encoded)
	if err != nil {
		t.Fatalf("DecodeRules failed: %v", err)
	}

	rs := func(rules []earnings.Rule) earnings.RuleSet {
		return earnings.RuleSet{ID: "rt", Version: 1, Rules: rules}
	}
	before, err := earnings.Compute(earnings.NewMoney(1000), rs(original))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	after, err := earnings.Compute(earnings.NewMoney(1000), rs(decoded))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !before.Driver.Equal(after.Driver) {
		t.Errorf("Round trip changed the split: %s vs %s", before.Driver, after.Driver)
	}
	if before.Driver.MinorUnits() != 125 {
		t.Errorf("Expected 12.5%% of 1000 to be 125, got %s", before.Driver)
	}
}

func TestParseRules_RejectsMalformedJSON(t *testing.T) {
	f := factory.NewRuleSetFactory()
	if _, err := f.ParseRules(`{"rules": [`); err == nil {
		t.Fatal("Expected a parse error")
	}
}

func TestPresets_ProduceValidRuleSets(t *testing.T) {
	f := factory.NewRuleSetFactory()

	std, err := f.ParseRules(factory.StandardSplitJSON(67))
	if err != nil {
		t.Fatalf("StandardSplitJSON did not parse: %v", err)
	}
	if err := earnings.ValidateRules(std); err != nil {
		t.Errorf("StandardSplitJSON is not valid: %v", err)
	}

	boost, err := f.ParseRules(factory.SmallOrderBoostJSON(80, 67, 500))
	if err != nil {
		t.Fatalf("SmallOrderBoostJSON did not parse: %v", err)
	}
	if err := earnings.ValidateRules(boost); err != nil {
		t.Errorf("SmallOrderBoostJSON is not valid: %v", err)
	}

	split, err := earnings.Compute(earnings.NewMoney(400), earnings.RuleSet{ID: "boost", Version: 1, Rules: boost})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if split.Driver.MinorUnits() != 320 {
		t.Errorf("Expected the boosted 80%% bucket (driver 320), got %s", split.Driver)
	}
}
