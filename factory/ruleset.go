/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into earnings.Rule values and back. This
  enables split configuration without code changes - operations staff can
  define rule sets in JSON through the admin API, and the same codec is
  what the SQL stores use to persist rule lists in a single column.

JSON SCHEMA:
  {
    "rules": [
      {"kind": "percent", "driver_percent": 67, "max_fee": 1000},
      {"kind": "fixed", "amount": 120, "min_fee": 1000},
      {"kind": "tiered", "tiers": [
        {"kind": "percent", "up_to": 500, "driver_percent": 80},
        {"kind": "percent", "up_to": 2000, "driver_percent": 70},
        {"kind": "fixed", "amount": 900}
      ]}
    ],
    "notes": "summer promotion"
  }

  Monetary fields are whole minor units. A tier without "up_to" is the
  open-ended final bucket.

VALIDATION:
  The factory only changes representation; earnings.ValidateRules is the
  single place rule semantics are checked, and the configuration service
  runs it on every create and activate. Unknown kinds survive decoding so
  that a stored rule list never becomes unreadable.

USAGE:
  f := factory.NewRuleSetFactory()
  rules, err := f.ParseRules(jsonStr)

  // From a preset (seeding, demos)
  jsonStr := factory.StandardSplitJSON(67)

SEE ALSO:
  - earnings/rule.go: Rule type definition and validation
  - store/sqlite, store/postgres: Persist rule lists via EncodeRules
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the JSON representation of a rule list with its notes.
type RuleSetJSON struct {
	Rules []RuleJSON `json:"rules"`
	Notes string     `json:"notes,omitempty"`
}

// RuleJSON is the JSON representation of one rule. Amounts and fee bounds
// are whole minor units.
type RuleJSON struct {
	Kind          string     `json:"kind"` // fixed, percent, tiered
	MinFee        *int64     `json:"min_fee,omitempty"`
	MaxFee        *int64     `json:"max_fee,omitempty"`
	Amount        *int64     `json:"amount,omitempty"`
	DriverPercent *float64   `json:"driver_percent,omitempty"`
	Tiers         []TierJSON `json:"tiers,omitempty"`
}

// TierJSON is one bucket of a tiered rule. The final tier carries no
// "up_to" and covers everything beyond the previous bound.
type TierJSON struct {
	UpTo          *int64   `json:"up_to,omitempty"`
	Kind          string   `json:"kind"` // fixed or percent
	Amount        *int64   `json:"amount,omitempty"`
	DriverPercent *float64 `json:"driver_percent,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

type RuleSetFactory struct{}

func NewRuleSetFactory() *RuleSetFactory {
	return &RuleSetFactory{}
}

// ParseRules decodes a rule list from its JSON document form.
func (f *RuleSetFactory) ParseRules(jsonStr string) ([]earnings.Rule, error) {
	var doc RuleSetJSON
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return f.FromJSON(doc.Rules), nil
}

// FromJSON converts the JSON shapes into domain rules. Pure representation
// change; semantic validation is earnings.ValidateRules.
func (f *RuleSetFactory) FromJSON(rjs []RuleJSON) []earnings.Rule {
	rules := make([]earnings.Rule, 0, len(rjs))
	for _, rj := range rjs {
		rule := earnings.Rule{Kind: earnings.RuleKind(rj.Kind)}
		if rj.MinFee != nil {
			rule.MinFee = earnings.NewMoney(*rj.MinFee)
		}
		if rj.MaxFee != nil {
			max := earnings.NewMoney(*rj.MaxFee)
			rule.MaxFee = &max
		}
		if rj.Amount != nil {
			rule.Amount = earnings.NewMoney(*rj.Amount)
		}
		if rj.DriverPercent != nil {
			rule.DriverPercent = decimal.NewFromFloat(*rj.DriverPercent)
		}
		for _, tj := range rj.Tiers {
			tier := earnings.Tier{Kind: earnings.RuleKind(tj.Kind)}
			if tj.UpTo != nil {
				up := earnings.NewMoney(*tj.UpTo)
				tier.UpTo = &up
			}
			if tj.Amount != nil {
				tier.Amount = earnings.NewMoney(*tj.Amount)
			}
			if tj.DriverPercent != nil {
				tier.DriverPercent = decimal.NewFromFloat(*tj.DriverPercent)
			}
			rule.Tiers = append(rule.Tiers, tier)
		}
		rules = append(rules, rule)
	}
	return rules
}

// ToJSON converts domain rules back into their JSON shapes.
func (f *RuleSetFactory) ToJSON(rules []earnings.Rule) []RuleJSON {
	out := make([]RuleJSON, 0, len(rules))
	for _, rule := range rules {
		rj := RuleJSON{Kind: string(rule.Kind)}
		if !rule.MinFee.IsZero() {
			v := rule.MinFee.MinorUnits()
			rj.MinFee = &v
		}
		if rule.MaxFee != nil {
			v := rule.MaxFee.MinorUnits()
			rj.MaxFee = &v
		}
		switch rule.Kind {
		case earnings.RuleFixed:
			v := rule.Amount.MinorUnits()
			rj.Amount = &v
		case earnings.RulePercent:
			v, _ := rule.DriverPercent.Float64()
			rj.DriverPercent = &v
		case earnings.RuleTiered:
			for _, tier := range rule.Tiers {
				tj := TierJSON{Kind: string(tier.Kind)}
				if tier.UpTo != nil {
					v := tier.UpTo.MinorUnits()
					tj.UpTo = &v
				}
				if tier.Kind == earnings.RuleFixed {
					v := tier.Amount.MinorUnits()
					tj.Amount = &v
				} else {
					v, _ := tier.DriverPercent.Float64()
					tj.DriverPercent = &v
				}
				rj.Tiers = append(rj.Tiers, tj)
			}
		}
		out = append(out, rj)
	}
	return out
}

// EncodeRules serializes a rule list for storage in a single column.
func (f *RuleSetFactory) EncodeRules(rules []earnings.Rule) (string, error) {
	data, err := json.Marshal(RuleSetJSON{Rules: f.ToJSON(rules)})
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	return string(data), nil
}

// DecodeRules is the inverse of EncodeRules.
func (f *RuleSetFactory) DecodeRules(s string) ([]earnings.Rule, error) {
	return f.ParseRules(s)
}

// =============================================================================
// PRESETS - ready-made rule documents for seeding and demos
// =============================================================================

// StandardSplitJSON is a single flat percentage split.
func StandardSplitJSON(driverPercent float64) string {
	doc := RuleSetJSON{Rules: []RuleJSON{{Kind: string(earnings.RulePercent), DriverPercent: &driverPercent}}}
	data, _ := json.Marshal(doc)
	return string(data)
}

// SmallOrderBoostJSON pays a higher percentage below the threshold so short
// runs stay worth taking, and the standard percentage above it.
func SmallOrderBoostJSON(boostPercent, standardPercent float64, threshold int64) string {
	doc := RuleSetJSON{Rules: []RuleJSON{{
		Kind: string(earnings.RuleTiered),
		Tiers: []TierJSON{
			{Kind: string(earnings.RulePercent), UpTo: &threshold, DriverPercent: &boostPercent},
			{Kind: string(earnings.RulePercent), DriverPercent: &standardPercent},
		},
	}}}
	data, _ := json.Marshal(doc)
	return string(data)
}
