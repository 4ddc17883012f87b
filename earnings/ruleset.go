/*
Versioned rule-set configuration.

PURPOSE:
  A RuleSet is an immutable, versioned snapshot of the fee-split rules. At
  most one rule set is active at a time; every delivery earning records the
  version it was computed with, so historical earnings stay reproducible
  even after the configuration moves on.

KEY CONCEPTS IN THIS FILE (ruleset.go):
  - RuleSet: ordered rules + version + activation flag + audit fields
  - DefaultRuleSet: the built-in 67/33 split used when nothing has ever
    been activated, and as the defensive fallback when no rule matches

DESIGN PRINCIPLES:
  1. Immutability: edits create a new version, never mutate a stored one
  2. Exactly one active: activation atomically deactivates all others
  3. Never configless: the engine always has a usable split rule

SEE ALSO:
  - rule.go: Rule and Tier definitions
  - config.go: ConfigService lifecycle operations
  - store.go: RuleSetStore port
*/
package earnings

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE SET
// =============================================================================

// RuleSet is a versioned fee-split configuration. Treat stored rule sets as
// immutable once any delivery earning references their version.
type RuleSet struct {
	ID      string
	Version int
	Rules   []Rule

	// EffectiveFrom documents when the configuration was meant to take
	// effect. Informational; activation is what makes rules live.
	EffectiveFrom time.Time

	Active bool
	Notes  string

	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the rule list the same way Create and Activate do.
func (rs RuleSet) Validate() error {
	return ValidateRules(rs.Rules)
}

// =============================================================================
// BUILT-IN DEFAULT
// =============================================================================

// DefaultRuleSetID is the id reported for the built-in split. It is never
// persisted; version 0 in a delivery record means "computed with the
// built-in default".
const DefaultRuleSetID = "default"

// DefaultDriverShare is the driver's percentage under the built-in split.
// The company keeps the remaining 33%.
var DefaultDriverShare = decimal.NewFromInt(67)

// DefaultRuleSet returns the built-in 67/33 split. It is returned by
// ConfigService.Active when no rule set has ever been activated, and its
// split is applied when no configured rule matches a fee.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		ID:        DefaultRuleSetID,
		Version:   0,
		Rules:     []Rule{PercentRule(DefaultDriverShare)},
		Active:    true,
		Notes:     "built-in default 67/33 split",
		CreatedBy: "system",
	}
}
