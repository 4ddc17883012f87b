/*
store.go - Persistence ports for the earnings engine

PURPOSE:
  Defines the interfaces between the engine and storage. Implementations
  exist for SQLite, PostgreSQL and in-memory; one concrete store satisfies
  all of these ports, which is why method names carry the record type.

KEY INTERFACES:
  RuleSetStore:  Versioned rule-set persistence and the activation swap
  DeliveryStore: Delivery reads plus the single earnings write
  DriverStore:   Driver reads plus the single totals write
  AuditLog:      Append-only anomaly trail (fallbacks, repairs)
  SweepRunStore: History of validation/fix sweeps

LOOKUP CONTRACT:
  Get* methods return (nil, nil) when the record does not exist; services
  translate that into the domain not-found errors. Storage failures are
  returned as-is.

WRITE CONTRACT:
  SetDeliveryEarnings writes both earnings fields and the rule-set version
  in one statement; there is no state where only one side is written.
  SetActiveRuleSet deactivates every other rule set in the same
  transaction, so readers never observe two active rows.

IMPLEMENTATIONS:
  - store/sqlite:          production embedded storage
  - store/postgres:        production server storage
  - earnings/store:        in-memory for tests

SEE ALSO:
  - config.go: Uses RuleSetStore
  - reconciler.go: Uses the delivery, driver and audit ports
*/
package earnings

import (
	"context"
	"time"
)

// =============================================================================
// RULE SET STORE
// =============================================================================

// RuleSetStore persists rule-set versions.
type RuleSetStore interface {
	// SaveRuleSet inserts a new rule set. Versions are unique; inserting a
	// version that already exists fails.
	SaveRuleSet(ctx context.Context, rs RuleSet) error

	// GetRuleSet returns the rule set with the given id, or (nil, nil).
	GetRuleSet(ctx context.Context, id string) (*RuleSet, error)

	// ActiveRuleSet returns the currently active rule set, or (nil, nil)
	// when none has ever been activated.
	ActiveRuleSet(ctx context.Context) (*RuleSet, error)

	// ListRuleSets returns a page ordered by descending version, plus the
	// total number of rule sets.
	ListRuleSets(ctx context.Context, offset, limit int) ([]RuleSet, int, error)

	// NextRuleSetVersion returns max(version)+1, starting at 1.
	NextRuleSetVersion(ctx context.Context) (int, error)

	// SetActiveRuleSet marks the given rule set active and every other one
	// inactive, atomically. Returns ErrRuleSetNotFound for an unknown id.
	SetActiveRuleSet(ctx context.Context, id, author string) error

	// DeleteRuleSet removes a non-active rule set. Returns ErrRuleSetActive
	// when the target is active and ErrRuleSetNotFound when it is absent;
	// the guard lives here so the check and the delete cannot race.
	DeleteRuleSet(ctx context.Context, id string) error
}

// =============================================================================
// DELIVERY / DRIVER STORES
// =============================================================================

// DeliveryStore is the engine's window onto the delivery collection.
type DeliveryStore interface {
	// GetDelivery returns the delivery with the given id, or (nil, nil).
	GetDelivery(ctx context.Context, id string) (*Delivery, error)

	// PutDelivery upserts a whole delivery record. Used by seeding and by
	// the surrounding CRUD layer, not by the engine itself.
	PutDelivery(ctx context.Context, d Delivery) error

	// SetDeliveryEarnings writes both earnings fields and the rule-set
	// version in a single statement.
	SetDeliveryEarnings(ctx context.Context, id string, driver, company Money, ruleSetVersion int) error

	// ListDriverDeliveries returns every delivery assigned to the driver,
	// any status, ordered by creation time.
	ListDriverDeliveries(ctx context.Context, driverID string) ([]Delivery, error)
}

// DriverStore is the engine's window onto the driver collection.
type DriverStore interface {
	// GetDriver returns the driver with the given id, or (nil, nil).
	GetDriver(ctx context.Context, id string) (*Driver, error)

	// PutDriver upserts a whole driver record. Seeding and CRUD layer only.
	PutDriver(ctx context.Context, d Driver) error

	// ListDrivers returns all drivers. Sweeps iterate this sequentially.
	ListDrivers(ctx context.Context) ([]Driver, error)

	// SetDriverTotals overwrites the three aggregate fields. A non-nil
	// repairedAt additionally increments the repair counter and stamps
	// LastRepairAt.
	SetDriverTotals(ctx context.Context, id string, totals DriverTotals, repairedAt *time.Time) error
}

// =============================================================================
// AUDIT LOG - Append-only anomaly trail
// =============================================================================

// AuditEntry records an anomaly or repair the engine performed.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string // who or what triggered it; "system" for sweeps
	Action     AuditAction
	DriverID   string
	DeliveryID string
	Payload    map[string]any // action-specific data
}

type AuditAction string

const (
	// AuditFallbackSplit: no configured rule matched and the default
	// 67/33 split was applied.
	AuditFallbackSplit AuditAction = "fallback_split"

	// AuditMissingEarnings: a delivered delivery with no earnings was
	// counted as zero during recomputation.
	AuditMissingEarnings AuditAction = "missing_earnings"

	// AuditTotalsRepaired: stored driver totals disagreed with the
	// delivery history and were overwritten.
	AuditTotalsRepaired AuditAction = "totals_repaired"

	// AuditBulkRecalculated: an administrator re-derived earnings for a
	// set of deliveries.
	AuditBulkRecalculated AuditAction = "bulk_recalculated"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	DriverID   *string
	DeliveryID *string
	Actions    []AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int // 0 means implementation default
}

// =============================================================================
// SWEEP RUNS - History of validate-all / fix-all passes
// =============================================================================

type SweepMode string

const (
	SweepValidate SweepMode = "validate"
	SweepFix      SweepMode = "fix"
)

type SweepStatus string

const (
	SweepRunning   SweepStatus = "running"
	SweepCompleted SweepStatus = "completed"
	SweepFailed    SweepStatus = "failed"
)

// SweepRun is one recorded validation or fix pass over all drivers.
type SweepRun struct {
	ID         string
	Mode       SweepMode
	Status     SweepStatus
	StartedAt  time.Time
	FinishedAt *time.Time

	DriversChecked int
	DriversValid   int
	DriversInvalid int
	DriversFixed   int
	Failures       int

	Error string
}

// SweepRunStore persists sweep history for operators.
type SweepRunStore interface {
	// SaveSweepRun upserts by id; the scheduler saves once at start and
	// again at completion.
	SaveSweepRun(ctx context.Context, run SweepRun) error

	// ListSweepRuns returns the most recent runs, newest first.
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}
