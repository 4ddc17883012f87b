/*
errors.go - Centralized error types for the earnings engine

PURPOSE:
  All error conditions of the engine in one place for consistency and
  discoverability. Stores and handlers classify errors with errors.Is
  against the sentinels; callers needing the offending field inspect the
  structured types.

ERROR CATEGORIES:
  1. Configuration errors - invalid, missing or protected rule sets
  2. Reconciliation errors - deliveries and drivers in the wrong state
  3. Calculator errors - rejected inputs

USAGE:
  Handlers map these to HTTP statuses:

    if earnings.IsNotFound(err) {
        writeError(w, http.StatusNotFound, err)
    }

SEE ALSO:
  - rule.go: Produces RuleValidationError
  - config.go: Uses the configuration sentinels
  - reconciler.go: Uses the reconciliation sentinels
*/
package earnings

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRuleSet is returned when a rule list fails validation.
	// Inspect the wrapping *RuleValidationError for the offending field.
	ErrInvalidRuleSet = errors.New("invalid rule set")

	// ErrRuleSetNotFound is returned when a referenced rule set doesn't exist.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrRuleSetActive is returned when trying to delete the active rule set.
	ErrRuleSetActive = errors.New("rule set is active and cannot be deleted")

	// ErrDeliveryNotFound is returned when a referenced delivery doesn't exist.
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrDeliveryNotDelivered is returned when earnings are requested for a
	// delivery that has not reached the delivered state. Earnings only exist
	// for completed work.
	ErrDeliveryNotDelivered = errors.New("delivery not delivered")

	// ErrDriverNotFound is returned when a referenced driver doesn't exist.
	ErrDriverNotFound = errors.New("driver not found")

	// ErrNegativeFee is returned when a split is requested for a negative fee.
	ErrNegativeFee = errors.New("fee must not be negative")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleValidationError names the exact rule, tier and field that failed
// validation. RuleIndex and TierIndex are -1 when the problem is not tied
// to a specific rule or tier.
type RuleValidationError struct {
	RuleIndex int
	TierIndex int
	Field     string
	Reason    string
}

func (e *RuleValidationError) Error() string {
	switch {
	case e.RuleIndex < 0:
		return fmt.Sprintf("invalid rule set: %s: %s", e.Field, e.Reason)
	case e.TierIndex < 0:
		return fmt.Sprintf("invalid rule set: rule %d: %s: %s", e.RuleIndex, e.Field, e.Reason)
	default:
		return fmt.Sprintf("invalid rule set: rule %d tier %d: %s: %s", e.RuleIndex, e.TierIndex, e.Field, e.Reason)
	}
}

func (e *RuleValidationError) Unwrap() error {
	return ErrInvalidRuleSet
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleSetNotFound) ||
		errors.Is(err, ErrDeliveryNotFound) ||
		errors.Is(err, ErrDriverNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// rather than an engine or storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRuleSet) ||
		errors.Is(err, ErrDeliveryNotDelivered) ||
		errors.Is(err, ErrNegativeFee)
}

// IsConflict returns true if the error indicates the operation clashes with
// the current state of the configuration.
func IsConflict(err error) bool {
	return errors.Is(err, ErrRuleSetActive)
}
