/*
Reconciliation engine.

PURPOSE:
  Keeps three things mutually consistent: per-delivery earnings, the rule
  set that produced them, and the per-driver aggregate totals that cache
  the delivery history. Everything here is built to be re-runnable: the
  authoritative numbers always come from recomputation, never from
  incremental updates, so a lost update is repaired by simply running the
  reconciliation again.

KEY CONCEPTS IN THIS FILE (reconciler.go):
  - EnsureDeliveryEarnings: write-once split computation per delivery
  - RecomputeDriverTotals: read-only derivation of the true aggregates
  - Validate / Fix: drift detection and idempotent repair
  - OnDeliveryDelivered: the delivered-event hook; logs, never throws
  - ValidateAll / FixAll: sequential maintenance sweeps
  - BulkRecalculate / ComputeSplit: administrative tools

CONCURRENCY:
  Safe under concurrent invocations for the same driver: totals writes are
  last-write-wins of a full recomputation, so interleavings can at worst
  leave drift that the next Validate/Fix pass converges away. Different
  drivers share nothing. Sweeps go one driver at a time to keep load on
  the backing store bounded.

ERROR POLICY:
  Administrative entry points return errors; a human is waiting for a
  definitive answer. The delivered-event hook swallows and logs instead,
  because earnings bookkeeping must never block the status change that
  triggered it. Audit writes are best-effort and only ever logged.

SEE ALSO:
  - calculator.go: The split arithmetic
  - config.go: Source of the active rule set
  - report.go: The report shapes returned to administrators
*/
package earnings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Reconciler wires the calculator and configuration to the delivery and
// driver records.
type Reconciler struct {
	deliveries DeliveryStore
	drivers    DriverStore
	config     *ConfigService
	audit      AuditLog
	log        *slog.Logger
}

// NewReconciler builds a Reconciler. audit may be nil when no anomaly
// trail is wanted; logger nil means slog.Default().
func NewReconciler(deliveries DeliveryStore, drivers DriverStore, config *ConfigService, audit AuditLog, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		deliveries: deliveries,
		drivers:    drivers,
		config:     config,
		audit:      audit,
		log:        logger,
	}
}

// =============================================================================
// DELIVERY-LEVEL
// =============================================================================

// EnsureDeliveryEarnings computes and persists the fee split for one
// delivery, once. Calling it again is a no-op, which is what makes the
// delivered-event hook retryable without cleanup. Requires the delivery to
// be in the delivered state; earnings only exist for completed work.
func (r *Reconciler) EnsureDeliveryEarnings(ctx context.Context, deliveryID string) error {
	d, err := r.deliveries.GetDelivery(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("ensure earnings: %w", err)
	}
	if d == nil {
		return ErrDeliveryNotFound
	}
	if d.EarningsComputed() {
		return nil
	}
	if d.Status != StatusDelivered {
		return ErrDeliveryNotDelivered
	}

	rs, err := r.config.Active(ctx)
	if err != nil {
		return fmt.Errorf("ensure earnings: %w", err)
	}
	split, err := Compute(d.Fee, *rs)
	if err != nil {
		return fmt.Errorf("ensure earnings: delivery %s: %w", d.ID, err)
	}
	if split.Fallback {
		r.log.Warn("no rule matched fee, default split applied",
			"delivery_id", d.ID, "fee", d.Fee.MinorUnits(), "rule_set_id", rs.ID, "rule_set_version", rs.Version)
		r.recordAudit(ctx, AuditEntry{
			Action:     AuditFallbackSplit,
			DriverID:   d.DriverID,
			DeliveryID: d.ID,
			Payload: map[string]any{
				"fee":              d.Fee.MinorUnits(),
				"rule_set_id":      rs.ID,
				"rule_set_version": rs.Version,
			},
		})
	}
	if err := r.deliveries.SetDeliveryEarnings(ctx, d.ID, split.Driver, split.Company, rs.Version); err != nil {
		return fmt.Errorf("ensure earnings: %w", err)
	}
	return nil
}

// =============================================================================
// DRIVER-LEVEL
// =============================================================================

// RecomputeDriverTotals derives the authoritative aggregates from the
// driver's full delivery history. It persists nothing; callers decide
// whether and when to write, which keeps recomputation safely re-runnable.
// A delivered delivery with no earnings counts as zero and is flagged,
// never treated as an error: one corrupt record must not poison the sum.
func (r *Reconciler) RecomputeDriverTotals(ctx context.Context, driverID string) (DriverTotals, error) {
	deliveries, err := r.deliveries.ListDriverDeliveries(ctx, driverID)
	if err != nil {
		return DriverTotals{}, fmt.Errorf("recompute totals: %w", err)
	}
	var totals DriverTotals
	earned := NewMoney(0)
	for _, d := range deliveries {
		totals.TotalDeliveries++
		if d.Status != StatusDelivered {
			continue
		}
		totals.CompletedDeliveries++
		if d.DriverEarning == nil {
			totals.MissingEarnings++
			r.log.Warn("delivered delivery has no earnings, counted as zero",
				"driver_id", driverID, "delivery_id", d.ID)
			r.recordAudit(ctx, AuditEntry{
				Action:     AuditMissingEarnings,
				DriverID:   driverID,
				DeliveryID: d.ID,
			})
			continue
		}
		earned = earned.Add(*d.DriverEarning)
	}
	totals.TotalEarnings = earned
	return totals, nil
}

// Validate compares the driver's stored totals against totals recomputed
// from the delivery history and reports every disagreeing field. Earnings
// compare exactly, at minor-unit resolution.
func (r *Reconciler) Validate(ctx context.Context, driverID string) (*ValidationReport, error) {
	driver, err := r.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("validate driver: %w", err)
	}
	if driver == nil {
		return nil, ErrDriverNotFound
	}
	recomputed, err := r.RecomputeDriverTotals(ctx, driverID)
	if err != nil {
		return nil, err
	}
	stored := driver.StoredTotals()
	report := &ValidationReport{
		DriverID:   driverID,
		Stored:     stored,
		Recomputed: recomputed,
		Mismatches: CompareTotals(stored, recomputed),
		CheckedAt:  time.Now().UTC(),
	}
	report.Valid = len(report.Mismatches) == 0
	return report, nil
}

// Fix validates and, when the stored totals disagree, overwrites them with
// the recomputed values in a single update, recording that a repair
// happened. Running Fix twice in a row writes nothing the second time.
func (r *Reconciler) Fix(ctx context.Context, driverID string) (*ValidationReport, error) {
	report, err := r.Validate(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if report.Valid {
		return report, nil
	}
	now := time.Now().UTC()
	if err := r.drivers.SetDriverTotals(ctx, driverID, report.Recomputed, &now); err != nil {
		return nil, fmt.Errorf("fix driver: %w", err)
	}
	report.Fixed = true
	r.log.Info("driver totals repaired",
		"driver_id", driverID, "fields", mismatchFields(report.Mismatches))
	r.recordAudit(ctx, AuditEntry{
		Action:   AuditTotalsRepaired,
		DriverID: driverID,
		Payload: map[string]any{
			"fields":                  mismatchFields(report.Mismatches),
			"stored_total_earnings":   report.Stored.TotalEarnings.MinorUnits(),
			"repaired_total_earnings": report.Recomputed.TotalEarnings.MinorUnits(),
		},
	})
	return report, nil
}

// =============================================================================
// DELIVERED-EVENT HOOK
// =============================================================================

// OnDeliveryDelivered is invoked by the delivery lifecycle when a delivery
// reaches the delivered state. It runs three safeguards in order:
//
//  1. ensure the delivery's earnings exist
//  2. recompute the owning driver's totals and persist them outright
//  3. validate, and repair if a concurrent write slipped in between 2's
//     read and its write
//
// Every step catches, logs and moves on. The status change that triggered
// the hook must stand even when bookkeeping temporarily fails; the next
// sweep converges whatever was left behind.
func (r *Reconciler) OnDeliveryDelivered(ctx context.Context, deliveryID string) {
	if err := r.EnsureDeliveryEarnings(ctx, deliveryID); err != nil {
		r.log.Error("delivered hook: ensure earnings failed",
			"delivery_id", deliveryID, "error", err)
	}

	d, err := r.deliveries.GetDelivery(ctx, deliveryID)
	if err != nil {
		r.log.Error("delivered hook: load delivery failed",
			"delivery_id", deliveryID, "error", err)
		return
	}
	if d == nil || d.DriverID == "" {
		r.log.Warn("delivered hook: no driver to reconcile", "delivery_id", deliveryID)
		return
	}

	totals, err := r.RecomputeDriverTotals(ctx, d.DriverID)
	if err != nil {
		r.log.Error("delivered hook: recompute totals failed",
			"delivery_id", deliveryID, "driver_id", d.DriverID, "error", err)
	} else if err := r.drivers.SetDriverTotals(ctx, d.DriverID, totals, nil); err != nil {
		r.log.Error("delivered hook: persist totals failed",
			"delivery_id", deliveryID, "driver_id", d.DriverID, "error", err)
	}

	if _, err := r.Fix(ctx, d.DriverID); err != nil {
		r.log.Error("delivered hook: validate/fix failed",
			"delivery_id", deliveryID, "driver_id", d.DriverID, "error", err)
	}
}

// =============================================================================
// SWEEPS
// =============================================================================

// ValidateAll checks every driver and reports the invalid ones. A failure
// on one driver is reported and skipped, never aborts the sweep.
func (r *Reconciler) ValidateAll(ctx context.Context) (*SweepReport, error) {
	return r.sweep(ctx, SweepValidate)
}

// FixAll checks every driver and repairs the invalid ones.
func (r *Reconciler) FixAll(ctx context.Context) (*SweepReport, error) {
	return r.sweep(ctx, SweepFix)
}

func (r *Reconciler) sweep(ctx context.Context, mode SweepMode) (*SweepReport, error) {
	drivers, err := r.drivers.ListDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: list drivers: %w", err)
	}
	report := &SweepReport{Mode: mode, StartedAt: time.Now().UTC()}

	// One driver at a time. The sweep is background maintenance and must
	// not become a thundering herd against the store.
	for _, d := range drivers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			rep      *ValidationReport
			checkErr error
		)
		if mode == SweepFix {
			rep, checkErr = r.Fix(ctx, d.ID)
		} else {
			rep, checkErr = r.Validate(ctx, d.ID)
		}
		report.DriversChecked++
		if checkErr != nil {
			report.Failures = append(report.Failures, SweepFailure{DriverID: d.ID, Err: checkErr.Error()})
			r.log.Error("sweep: driver check failed",
				"mode", string(mode), "driver_id", d.ID, "error", checkErr)
			continue
		}
		if rep.Valid {
			report.DriversValid++
			continue
		}
		report.Invalid = append(report.Invalid, rep)
		if rep.Fixed {
			report.DriversFixed++
		}
	}
	report.FinishedAt = time.Now().UTC()
	r.log.Info("sweep completed",
		"mode", string(mode),
		"checked", report.DriversChecked,
		"valid", report.DriversValid,
		"invalid", len(report.Invalid),
		"fixed", report.DriversFixed,
		"failures", len(report.Failures))
	return report, nil
}

// =============================================================================
// ADMINISTRATIVE TOOLS
// =============================================================================

// BulkRecalculate re-derives earnings for the given deliveries, typically
// with a historical rule set for audit correction. Empty ruleSetID selects
// the active one. Outcomes are per delivery; one unknown id or undelivered
// record fails alone. Affected drivers' totals are repaired afterwards so
// the aggregates don't sit stale until the next sweep.
func (r *Reconciler) BulkRecalculate(ctx context.Context, deliveryIDs []string, ruleSetID string) (*BulkResult, error) {
	rs, err := r.resolveRuleSet(ctx, ruleSetID)
	if err != nil {
		return nil, err
	}
	result := &BulkResult{RuleSetID: rs.ID, RuleSetVersion: rs.Version}
	touched := make(map[string]struct{})

	for _, id := range deliveryIDs {
		outcome := r.recalculateOne(ctx, id, rs, touched)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.OK {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	for driverID := range touched {
		if _, err := r.Fix(ctx, driverID); err != nil {
			r.log.Error("bulk recalculate: totals repair failed",
				"driver_id", driverID, "error", err)
		}
	}

	r.recordAudit(ctx, AuditEntry{
		Action: AuditBulkRecalculated,
		Payload: map[string]any{
			"rule_set_id":      rs.ID,
			"rule_set_version": rs.Version,
			"requested":        len(deliveryIDs),
			"succeeded":        result.Succeeded,
			"failed":           result.Failed,
		},
	})
	return result, nil
}

func (r *Reconciler) recalculateOne(ctx context.Context, id string, rs *RuleSet, touched map[string]struct{}) BulkOutcome {
	d, err := r.deliveries.GetDelivery(ctx, id)
	if err != nil {
		return BulkOutcome{DeliveryID: id, Error: err.Error()}
	}
	if d == nil {
		return BulkOutcome{DeliveryID: id, Error: ErrDeliveryNotFound.Error()}
	}
	if d.Status != StatusDelivered {
		return BulkOutcome{DeliveryID: id, Error: ErrDeliveryNotDelivered.Error()}
	}
	split, err := Compute(d.Fee, *rs)
	if err != nil {
		return BulkOutcome{DeliveryID: id, Error: err.Error()}
	}
	if split.Fallback {
		r.log.Warn("bulk recalculate: no rule matched fee, default split applied",
			"delivery_id", d.ID, "fee", d.Fee.MinorUnits(), "rule_set_id", rs.ID)
		r.recordAudit(ctx, AuditEntry{
			Action:     AuditFallbackSplit,
			DriverID:   d.DriverID,
			DeliveryID: d.ID,
			Payload:    map[string]any{"fee": d.Fee.MinorUnits(), "rule_set_id": rs.ID},
		})
	}
	if err := r.deliveries.SetDeliveryEarnings(ctx, d.ID, split.Driver, split.Company, rs.Version); err != nil {
		return BulkOutcome{DeliveryID: id, Error: err.Error()}
	}
	if d.DriverID != "" {
		touched[d.DriverID] = struct{}{}
	}
	return BulkOutcome{DeliveryID: id, OK: true, Driver: split.Driver, Company: split.Company}
}

// ComputeSplit answers what-if questions: how would this fee split under
// the named (or active) rule set. Nothing is read from or written to the
// delivery records. The applied rule set is returned for display.
func (r *Reconciler) ComputeSplit(ctx context.Context, fee Money, ruleSetID string) (Split, *RuleSet, error) {
	rs, err := r.resolveRuleSet(ctx, ruleSetID)
	if err != nil {
		return Split{}, nil, err
	}
	split, err := Compute(fee, *rs)
	if err != nil {
		return Split{}, nil, err
	}
	return split, rs, nil
}

func (r *Reconciler) resolveRuleSet(ctx context.Context, id string) (*RuleSet, error) {
	if id == "" {
		return r.config.Active(ctx)
	}
	return r.config.Get(ctx, id)
}

// =============================================================================
// INTERNAL
// =============================================================================

// recordAudit appends best-effort: an unavailable audit sink degrades to a
// log line, never to a failed operation.
func (r *Reconciler) recordAudit(ctx context.Context, entry AuditEntry) {
	if r.audit == nil {
		return
	}
	entry.ID = uuid.New().String()
	entry.Timestamp = time.Now().UTC()
	if entry.ActorID == "" {
		entry.ActorID = "system"
	}
	if err := r.audit.AppendAudit(ctx, entry); err != nil {
		r.log.Error("audit append failed", "action", string(entry.Action), "error", err)
	}
}

func mismatchFields(ms []FieldMismatch) []string {
	fields := make([]string, 0, len(ms))
	for _, m := range ms {
		fields = append(fields, m.Field)
	}
	return fields
}
