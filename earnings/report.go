/*
Report value objects.

PURPOSE:
  The reconciler answers administrators with structured reports rather than
  booleans, so an operator can see exactly what was wrong and what was
  changed. Reports are created on demand and never persisted; the sweep
  history (SweepRun) stores only the roll-up numbers.

KEY CONCEPTS IN THIS FILE (report.go):
  - ValidationReport: stored vs recomputed totals for one driver
  - FieldMismatch: a single disagreeing field, at minor-unit resolution
  - SweepReport: outcome of a validate-all or fix-all pass
  - BulkResult: per-delivery outcomes of a bulk recalculation

SEE ALSO:
  - reconciler.go: Produces all of these
  - export/: Renders drift reports as spreadsheets
*/
package earnings

import "time"

// =============================================================================
// VALIDATION REPORT
// =============================================================================

// Field names used in mismatch reports.
const (
	FieldTotalDeliveries     = "total_deliveries"
	FieldCompletedDeliveries = "completed_deliveries"
	FieldTotalEarnings       = "total_earnings"
)

// FieldMismatch is one disagreeing aggregate. Values are plain numbers:
// counts as themselves, earnings in minor units.
type FieldMismatch struct {
	Field      string
	Stored     int64
	Recomputed int64
}

// ValidationReport compares a driver's stored totals against totals
// recomputed from the delivery history. Recomputed is authoritative.
type ValidationReport struct {
	DriverID   string
	Valid      bool
	Stored     DriverTotals
	Recomputed DriverTotals
	Mismatches []FieldMismatch
	CheckedAt  time.Time

	// Fixed is set when Fix overwrote the stored totals based on this
	// report. Validate alone never sets it.
	Fixed bool
}

// CompareTotals lists the fields where stored and recomputed disagree.
func CompareTotals(stored, recomputed DriverTotals) []FieldMismatch {
	var diffs []FieldMismatch
	if stored.TotalDeliveries != recomputed.TotalDeliveries {
		diffs = append(diffs, FieldMismatch{
			Field:      FieldTotalDeliveries,
			Stored:     int64(stored.TotalDeliveries),
			Recomputed: int64(recomputed.TotalDeliveries),
		})
	}
	if stored.CompletedDeliveries != recomputed.CompletedDeliveries {
		diffs = append(diffs, FieldMismatch{
			Field:      FieldCompletedDeliveries,
			Stored:     int64(stored.CompletedDeliveries),
			Recomputed: int64(recomputed.CompletedDeliveries),
		})
	}
	if !stored.TotalEarnings.Equal(recomputed.TotalEarnings) {
		diffs = append(diffs, FieldMismatch{
			Field:      FieldTotalEarnings,
			Stored:     stored.TotalEarnings.MinorUnits(),
			Recomputed: recomputed.TotalEarnings.MinorUnits(),
		})
	}
	return diffs
}

// =============================================================================
// SWEEP REPORT
// =============================================================================

// SweepFailure records a driver whose check or repair errored. One driver
// failing never aborts a sweep; the failure is reported here instead.
type SweepFailure struct {
	DriverID string
	Err      string
}

// SweepReport is the outcome of one pass over all drivers.
type SweepReport struct {
	Mode       SweepMode
	StartedAt  time.Time
	FinishedAt time.Time

	DriversChecked int
	DriversValid   int
	DriversFixed   int

	// Invalid holds the full report for every driver whose totals
	// disagreed, so operators see the diffs, not just a count.
	Invalid  []*ValidationReport
	Failures []SweepFailure
}

// AsRun converts the report into a persistable sweep-run record.
func (r *SweepReport) AsRun(id string) SweepRun {
	finished := r.FinishedAt
	return SweepRun{
		ID:             id,
		Mode:           r.Mode,
		Status:         SweepCompleted,
		StartedAt:      r.StartedAt,
		FinishedAt:     &finished,
		DriversChecked: r.DriversChecked,
		DriversValid:   r.DriversValid,
		DriversInvalid: len(r.Invalid),
		DriversFixed:   r.DriversFixed,
		Failures:       len(r.Failures),
	}
}

// =============================================================================
// BULK RECALCULATION RESULT
// =============================================================================

// BulkOutcome is the per-delivery result of a bulk recalculation.
type BulkOutcome struct {
	DeliveryID string
	OK         bool
	Error      string
	Driver     Money
	Company    Money
}

// BulkResult reports a bulk recalculation: which rule set was applied and
// how each requested delivery fared. One bad id never aborts the batch.
type BulkResult struct {
	RuleSetID      string
	RuleSetVersion int
	Outcomes       []BulkOutcome
	Succeeded      int
	Failed         int
}
