/*
handlers_test.go - Tests for API-level workflows over the SQLite store

Tests for:
- Rule set lifecycle (create, activate, delete guards)
- Delivered-event hook (earnings + totals, idempotency)
- Drift detection and repair
- Fallback split audit trail
- Bulk recalculation under a historical rule set
- Sweeps and sweep history
- Error to HTTP status mapping
*/
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestHandler(t *testing.T) (*Handler, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(store, quiet), store
}

func seedDriver(t *testing.T, store *sqlite.Store, id, name string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.PutDriver(context.Background(), earnings.Driver{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Failed to seed driver %s: %v", id, err)
	}
}

func seedDelivered(t *testing.T, store *sqlite.Store, id, driverID string, fee int64) {
	t.Helper()
	now := time.Now().UTC()
	err := store.PutDelivery(context.Background(), earnings.Delivery{
		ID:          id,
		DriverID:    driverID,
		Fee:         earnings.NewMoney(fee),
		Status:      earnings.StatusDelivered,
		DeliveredAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("Failed to seed delivery %s: %v", id, err)
	}
}

func flatPercent(p int64) []earnings.Rule {
	return []earnings.Rule{earnings.PercentRule(decimal.NewFromInt(p))}
}

// =============================================================================
// RULE SET LIFECYCLE TESTS
// =============================================================================

func TestRuleSetLifecycle_CreateActivateDelete(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	// GIVEN: A fresh store. The active rule set is the built-in default.
	active, err := h.Config.Active(ctx)
	if err != nil {
		t.Fatalf("Failed to get active rule set: %v", err)
	}
	if active.ID != earnings.DefaultRuleSetID {
		t.Errorf("Expected built-in default, got %s", active.ID)
	}

	// WHEN: Creating the first version
	rsA, err := h.Config.Create(ctx, flatPercent(50), "even split", "ops")
	if err != nil {
		t.Fatalf("Failed to create rule set: %v", err)
	}
	if rsA.Version != 1 {
		t.Errorf("Expected version 1, got %d", rsA.Version)
	}
	if rsA.Active {
		t.Error("New rule sets must start inactive")
	}

	// THEN: It is not live until activated
	active, _ = h.Config.Active(ctx)
	if active.ID != earnings.DefaultRuleSetID {
		t.Error("Creating a rule set must not change the live configuration")
	}

	if err := h.Config.Activate(ctx, rsA.ID, "ops"); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	active, _ = h.Config.Active(ctx)
	if active.ID != rsA.ID {
		t.Errorf("Expected %s active, got %s", rsA.ID, active.ID)
	}

	// Versions grow monotonically
	rsB, err := h.Config.Create(ctx, flatPercent(60), "driver raise", "ops")
	if err != nil {
		t.Fatalf("Failed to create second rule set: %v", err)
	}
	if rsB.Version != 2 {
		t.Errorf("Expected version 2, got %d", rsB.Version)
	}

	// The active version cannot be deleted
	err = h.Config.Delete(ctx, rsA.ID)
	if !earnings.IsConflict(err) {
		t.Errorf("Expected conflict deleting active rule set, got %v", err)
	}

	// After switching, the retired version can go
	if err := h.Config.Activate(ctx, rsB.ID, "ops"); err != nil {
		t.Fatalf("Failed to activate second rule set: %v", err)
	}
	if err := h.Config.Delete(ctx, rsA.ID); err != nil {
		t.Fatalf("Failed to delete retired rule set: %v", err)
	}
	if _, err := h.Config.Get(ctx, rsA.ID); !earnings.IsNotFound(err) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
}

func TestRuleSetUpdate_DerivesNewVersion(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	rsA, err := h.Config.Create(ctx, flatPercent(50), "v1", "ops")
	if err != nil {
		t.Fatalf("Failed to create: %v", err)
	}

	// Updating never mutates; it derives a new version
	rsB, err := h.Config.Update(ctx, rsA.ID, flatPercent(55), "v2", "ops")
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if rsB.ID == rsA.ID {
		t.Error("Update must produce a new record, not mutate the source")
	}
	if rsB.Version != rsA.Version+1 {
		t.Errorf("Expected version %d, got %d", rsA.Version+1, rsB.Version)
	}

	// The source is untouched
	src, err := h.Config.Get(ctx, rsA.ID)
	if err != nil {
		t.Fatalf("Failed to reload source: %v", err)
	}
	if src.Version != rsA.Version {
		t.Error("Source version changed")
	}

	// Updating a missing source fails up front
	if _, err := h.Config.Update(ctx, "no-such-id", flatPercent(55), "", "ops"); !earnings.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestRuleSetCreate_RejectsInvalidRules(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	// 120% driver share is not a split
	_, err := h.Config.Create(ctx, flatPercent(120), "", "ops")
	if !errors.Is(err, earnings.ErrInvalidRuleSet) {
		t.Errorf("Expected ErrInvalidRuleSet, got %v", err)
	}

	// Nothing was stored
	sets, total, err := h.Config.List(ctx, 1, 20)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if total != 0 || len(sets) != 0 {
		t.Errorf("Expected empty store after rejected create, got %d sets", total)
	}
}

// =============================================================================
// DELIVERED-EVENT HOOK TESTS
// =============================================================================

func TestDeliveredHook_ComputesEarningsAndTotals(t *testing.T) {
	// GIVEN: A driver with one delivered delivery and no earnings yet
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-1", "Asha")
	seedDelivered(t, store, "del-1", "drv-1", 1000)

	// WHEN: The delivered event fires
	h.Engine.OnDeliveryDelivered(ctx, "del-1")

	// THEN: Earnings exist under the built-in 67/33 split
	d, err := store.GetDelivery(ctx, "del-1")
	if err != nil {
		t.Fatalf("Failed to reload delivery: %v", err)
	}
	if !d.EarningsComputed() {
		t.Fatal("Expected earnings to be computed")
	}
	if got := d.DriverEarning.MinorUnits(); got != 670 {
		t.Errorf("Expected driver earning 670, got %d", got)
	}
	if got := d.CompanyEarning.MinorUnits(); got != 330 {
		t.Errorf("Expected company earning 330, got %d", got)
	}
	if d.RuleSetVersion != 0 {
		t.Errorf("Expected rule set version 0 (built-in), got %d", d.RuleSetVersion)
	}

	// And the driver's totals reflect the delivery
	drv, err := store.GetDriver(ctx, "drv-1")
	if err != nil {
		t.Fatalf("Failed to reload driver: %v", err)
	}
	if drv.TotalDeliveries != 1 || drv.CompletedDeliveries != 1 {
		t.Errorf("Expected totals 1/1, got %d/%d", drv.TotalDeliveries, drv.CompletedDeliveries)
	}
	if got := drv.TotalEarnings.MinorUnits(); got != 670 {
		t.Errorf("Expected total earnings 670, got %d", got)
	}
	// The hook's own totals write must not count as a repair
	if drv.RepairCount != 0 {
		t.Errorf("Expected repair count 0, got %d", drv.RepairCount)
	}
}

func TestDeliveredHook_Idempotent(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-1", "Asha")
	seedDelivered(t, store, "del-1", "drv-1", 1000)

	h.Engine.OnDeliveryDelivered(ctx, "del-1")
	h.Engine.OnDeliveryDelivered(ctx, "del-1")
	h.Engine.OnDeliveryDelivered(ctx, "del-1")

	d, _ := store.GetDelivery(ctx, "del-1")
	if got := d.DriverEarning.MinorUnits(); got != 670 {
		t.Errorf("Expected driver earning 670 after replays, got %d", got)
	}

	drv, _ := store.GetDriver(ctx, "drv-1")
	if drv.TotalDeliveries != 1 {
		t.Errorf("Expected 1 delivery after replays, got %d", drv.TotalDeliveries)
	}
	if got := drv.TotalEarnings.MinorUnits(); got != 670 {
		t.Errorf("Expected total earnings 670 after replays, got %d", got)
	}
	if drv.RepairCount != 0 {
		t.Errorf("Expected no repairs from replays, got %d", drv.RepairCount)
	}
}

func TestDeliveredHook_UndeliveredGetsNoEarnings(t *testing.T) {
	// A mis-fired event for an in-transit delivery must not invent earnings,
	// but the driver's counters still get refreshed.
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-1", "Asha")
	now := time.Now().UTC()
	if err := store.PutDelivery(ctx, earnings.Delivery{
		ID:        "del-transit",
		DriverID:  "drv-1",
		Fee:       earnings.NewMoney(1000),
		Status:    earnings.StatusInTransit,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to seed delivery: %v", err)
	}

	h.Engine.OnDeliveryDelivered(ctx, "del-transit")

	d, _ := store.GetDelivery(ctx, "del-transit")
	if d.EarningsComputed() {
		t.Error("In-transit delivery must not get earnings")
	}

	drv, _ := store.GetDriver(ctx, "drv-1")
	if drv.TotalDeliveries != 1 || drv.CompletedDeliveries != 0 {
		t.Errorf("Expected totals 1/0, got %d/%d", drv.TotalDeliveries, drv.CompletedDeliveries)
	}
}

// =============================================================================
// DRIFT DETECTION AND REPAIR TESTS
// =============================================================================

func TestValidateAndFix_RepairsDrift(t *testing.T) {
	// GIVEN: Two delivered deliveries with earnings, and corrupted totals
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-1", "Asha")
	seedDelivered(t, store, "del-1", "drv-1", 1000)
	seedDelivered(t, store, "del-2", "drv-1", 1000)
	if err := h.Engine.EnsureDeliveryEarnings(ctx, "del-1"); err != nil {
		t.Fatalf("Failed to ensure earnings: %v", err)
	}
	if err := h.Engine.EnsureDeliveryEarnings(ctx, "del-2"); err != nil {
		t.Fatalf("Failed to ensure earnings: %v", err)
	}

	corrupted := earnings.DriverTotals{
		TotalDeliveries:     99,
		CompletedDeliveries: 1,
		TotalEarnings:       earnings.NewMoney(1),
	}
	if err := store.SetDriverTotals(ctx, "drv-1", corrupted, nil); err != nil {
		t.Fatalf("Failed to corrupt totals: %v", err)
	}

	// WHEN: Validating
	report, err := h.Engine.Validate(ctx, "drv-1")
	if err != nil {
		t.Fatalf("Failed to validate: %v", err)
	}

	// THEN: Every drifted field is reported
	if report.Valid {
		t.Fatal("Expected invalid report")
	}
	if len(report.Mismatches) != 3 {
		t.Fatalf("Expected 3 mismatches, got %d", len(report.Mismatches))
	}
	if report.Mismatches[0].Field != earnings.FieldTotalDeliveries {
		t.Errorf("Expected total_deliveries first, got %s", report.Mismatches[0].Field)
	}
	if report.Mismatches[2].Field != earnings.FieldTotalEarnings {
		t.Errorf("Expected total_earnings last, got %s", report.Mismatches[2].Field)
	}
	if report.Mismatches[2].Stored != 1 || report.Mismatches[2].Recomputed != 1340 {
		t.Errorf("Expected earnings 1 -> 1340, got %d -> %d",
			report.Mismatches[2].Stored, report.Mismatches[2].Recomputed)
	}

	// Validate alone never writes
	drv, _ := store.GetDriver(ctx, "drv-1")
	if drv.TotalDeliveries != 99 {
		t.Error("Validate must not modify stored totals")
	}

	// WHEN: Fixing
	fixed, err := h.Engine.Fix(ctx, "drv-1")
	if err != nil {
		t.Fatalf("Failed to fix: %v", err)
	}
	if !fixed.Fixed {
		t.Error("Expected Fixed to be set")
	}

	// THEN: Totals are repaired and the repair is recorded
	drv, _ = store.GetDriver(ctx, "drv-1")
	if drv.TotalDeliveries != 2 || drv.CompletedDeliveries != 2 {
		t.Errorf("Expected totals 2/2, got %d/%d", drv.TotalDeliveries, drv.CompletedDeliveries)
	}
	if got := drv.TotalEarnings.MinorUnits(); got != 1340 {
		t.Errorf("Expected total earnings 1340, got %d", got)
	}
	if drv.RepairCount != 1 {
		t.Errorf("Expected repair count 1, got %d", drv.RepairCount)
	}
	if drv.LastRepairAt == nil {
		t.Error("Expected last repair timestamp")
	}

	// Fixing again writes nothing
	again, err := h.Engine.Fix(ctx, "drv-1")
	if err != nil {
		t.Fatalf("Failed to re-fix: %v", err)
	}
	if !again.Valid || again.Fixed {
		t.Error("Second fix should find nothing to repair")
	}
	drv, _ = store.GetDriver(ctx, "drv-1")
	if drv.RepairCount != 1 {
		t.Errorf("Expected repair count still 1, got %d", drv.RepairCount)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Engine.Validate(context.Background(), "ghost")
	if !earnings.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

// =============================================================================
// FALLBACK SPLIT AUDIT TESTS
// =============================================================================

func TestFallbackSplit_RecordedInAudit(t *testing.T) {
	// GIVEN: An active rule set that only covers fees below 500
	h, store := newTestHandler(t)
	ctx := context.Background()

	rules := []earnings.Rule{
		earnings.PercentRule(decimal.NewFromInt(50)).ForFeesBelow(earnings.NewMoney(500)),
	}
	rs, err := h.Config.Create(ctx, rules, "small fees only", "ops")
	if err != nil {
		t.Fatalf("Failed to create rule set: %v", err)
	}
	if err := h.Config.Activate(ctx, rs.ID, "ops"); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}

	seedDriver(t, store, "drv-1", "Asha")
	seedDelivered(t, store, "del-f", "drv-1", 800)

	// WHEN: Computing earnings for a fee outside every window
	if err := h.Engine.EnsureDeliveryEarnings(ctx, "del-f"); err != nil {
		t.Fatalf("Failed to ensure earnings: %v", err)
	}

	// THEN: The default 67/33 split applied, tagged with the live version
	d, _ := store.GetDelivery(ctx, "del-f")
	if got := d.DriverEarning.MinorUnits(); got != 536 {
		t.Errorf("Expected fallback driver earning 536, got %d", got)
	}
	if got := d.CompanyEarning.MinorUnits(); got != 264 {
		t.Errorf("Expected fallback company earning 264, got %d", got)
	}
	if d.RuleSetVersion != rs.Version {
		t.Errorf("Expected rule set version %d, got %d", rs.Version, d.RuleSetVersion)
	}

	// And the anomaly is on the audit trail
	entries, err := store.QueryAudit(ctx, earnings.AuditFilter{DeliveryID: strPtr("del-f")})
	if err != nil {
		t.Fatalf("Failed to query audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Action != earnings.AuditFallbackSplit {
		t.Errorf("Expected fallback_split action, got %s", entries[0].Action)
	}
	if entries[0].DriverID != "drv-1" {
		t.Errorf("Expected driver drv-1, got %s", entries[0].DriverID)
	}
}

func TestAuditQuery_Filters(t *testing.T) {
	_, store := newTestHandler(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	seed := []earnings.AuditEntry{
		{ID: "a-1", Timestamp: base, ActorID: "system", Action: earnings.AuditFallbackSplit, DriverID: "drv-1", DeliveryID: "del-1"},
		{ID: "a-2", Timestamp: base.Add(10 * time.Minute), ActorID: "system", Action: earnings.AuditTotalsRepaired, DriverID: "drv-1"},
		{ID: "a-3", Timestamp: base.Add(20 * time.Minute), ActorID: "ops", Action: earnings.AuditTotalsRepaired, DriverID: "drv-2"},
	}
	for _, e := range seed {
		if err := store.AppendAudit(ctx, e); err != nil {
			t.Fatalf("Failed to append %s: %v", e.ID, err)
		}
	}

	// Unfiltered: newest first
	all, err := store.QueryAudit(ctx, earnings.AuditFilter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].ID != "a-3" {
		t.Errorf("Expected newest first, got %s", all[0].ID)
	}

	// By action
	repairs, _ := store.QueryAudit(ctx, earnings.AuditFilter{
		Actions: []earnings.AuditAction{earnings.AuditTotalsRepaired},
	})
	if len(repairs) != 2 {
		t.Errorf("Expected 2 repair entries, got %d", len(repairs))
	}

	// By driver and action
	drv1Repairs, _ := store.QueryAudit(ctx, earnings.AuditFilter{
		DriverID: strPtr("drv-1"),
		Actions:  []earnings.AuditAction{earnings.AuditTotalsRepaired},
	})
	if len(drv1Repairs) != 1 || drv1Repairs[0].ID != "a-2" {
		t.Errorf("Expected only a-2, got %d entries", len(drv1Repairs))
	}

	// By time window
	from := base.Add(5 * time.Minute)
	to := base.Add(15 * time.Minute)
	windowed, _ := store.QueryAudit(ctx, earnings.AuditFilter{From: &from, To: &to})
	if len(windowed) != 1 || windowed[0].ID != "a-2" {
		t.Errorf("Expected only a-2 in window, got %d entries", len(windowed))
	}

	// Limit keeps the newest
	limited, _ := store.QueryAudit(ctx, earnings.AuditFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "a-3" {
		t.Errorf("Expected newest entry only, got %d entries", len(limited))
	}
}

// =============================================================================
// BULK RECALCULATION TESTS
// =============================================================================

func TestBulkRecalculate_HistoricalRuleSet(t *testing.T) {
	// GIVEN: Two deliveries computed under the default split
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-1", "Asha")
	seedDelivered(t, store, "del-1", "drv-1", 1000)
	seedDelivered(t, store, "del-2", "drv-1", 1000)
	if err := h.Engine.EnsureDeliveryEarnings(ctx, "del-1"); err != nil {
		t.Fatalf("Failed to ensure earnings: %v", err)
	}
	if err := h.Engine.EnsureDeliveryEarnings(ctx, "del-2"); err != nil {
		t.Fatalf("Failed to ensure earnings: %v", err)
	}

	// A correction rule set that was never activated
	rs50, err := h.Config.Create(ctx, flatPercent(50), "even split correction", "ops")
	if err != nil {
		t.Fatalf("Failed to create correction rule set: %v", err)
	}

	// WHEN: Recalculating both plus one unknown id
	result, err := h.Engine.BulkRecalculate(ctx, []string{"del-1", "del-2", "del-ghost"}, rs50.ID)
	if err != nil {
		t.Fatalf("Failed to bulk recalculate: %v", err)
	}

	// THEN: Per-delivery outcomes, one bad id fails alone
	if result.Succeeded != 2 || result.Failed != 1 {
		t.Errorf("Expected 2 succeeded / 1 failed, got %d / %d", result.Succeeded, result.Failed)
	}
	if result.RuleSetID != rs50.ID || result.RuleSetVersion != rs50.Version {
		t.Errorf("Expected rule set %s v%d in result", rs50.ID, rs50.Version)
	}
	if result.Outcomes[2].OK || result.Outcomes[2].Error != earnings.ErrDeliveryNotFound.Error() {
		t.Errorf("Expected not-found outcome for ghost delivery, got %+v", result.Outcomes[2])
	}

	// Earnings were overwritten with the historical split
	d, _ := store.GetDelivery(ctx, "del-1")
	if got := d.DriverEarning.MinorUnits(); got != 500 {
		t.Errorf("Expected recalculated earning 500, got %d", got)
	}
	if d.RuleSetVersion != rs50.Version {
		t.Errorf("Expected rule set version %d, got %d", rs50.Version, d.RuleSetVersion)
	}

	// Touched drivers' totals were repaired in the same call
	drv, _ := store.GetDriver(ctx, "drv-1")
	if got := drv.TotalEarnings.MinorUnits(); got != 1000 {
		t.Errorf("Expected repaired total 1000, got %d", got)
	}
	if drv.TotalDeliveries != 2 || drv.CompletedDeliveries != 2 {
		t.Errorf("Expected totals 2/2, got %d/%d", drv.TotalDeliveries, drv.CompletedDeliveries)
	}
}

func TestBulkRecalculate_UnknownRuleSetFailsWhole(t *testing.T) {
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-1", "Asha")
	seedDelivered(t, store, "del-1", "drv-1", 1000)

	_, err := h.Engine.BulkRecalculate(ctx, []string{"del-1"}, "no-such-rule-set")
	if !earnings.IsNotFound(err) {
		t.Errorf("Expected not found for unknown rule set, got %v", err)
	}

	// Nothing was touched
	d, _ := store.GetDelivery(ctx, "del-1")
	if d.EarningsComputed() {
		t.Error("Failed batch must not write earnings")
	}
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestValidateAllAndFixAll_SweepAcrossDrivers(t *testing.T) {
	// GIVEN: One consistent driver and one with stale totals
	h, store := newTestHandler(t)
	ctx := context.Background()

	seedDriver(t, store, "drv-a", "Asha")
	seedDriver(t, store, "drv-b", "Bo")
	seedDelivered(t, store, "del-b1", "drv-b", 1000)
	if err := h.Engine.EnsureDeliveryEarnings(ctx, "del-b1"); err != nil {
		t.Fatalf("Failed to ensure earnings: %v", err)
	}

	// WHEN: Validating everyone
	report, err := h.Engine.ValidateAll(ctx)
	if err != nil {
		t.Fatalf("Failed to validate all: %v", err)
	}

	// THEN: Only the stale driver is flagged, nothing is written
	if report.DriversChecked != 2 || report.DriversValid != 1 {
		t.Errorf("Expected 2 checked / 1 valid, got %d / %d", report.DriversChecked, report.DriversValid)
	}
	if len(report.Invalid) != 1 || report.Invalid[0].DriverID != "drv-b" {
		t.Fatalf("Expected drv-b flagged, got %+v", report.Invalid)
	}
	if report.DriversFixed != 0 {
		t.Error("ValidateAll must not fix anything")
	}

	drv, _ := store.GetDriver(ctx, "drv-b")
	if drv.TotalEarnings.MinorUnits() != 0 {
		t.Error("ValidateAll must not modify stored totals")
	}

	// WHEN: Fixing everyone
	fixReport, err := h.Engine.FixAll(ctx)
	if err != nil {
		t.Fatalf("Failed to fix all: %v", err)
	}
	if fixReport.DriversFixed != 1 {
		t.Errorf("Expected 1 fixed, got %d", fixReport.DriversFixed)
	}

	drv, _ = store.GetDriver(ctx, "drv-b")
	if got := drv.TotalEarnings.MinorUnits(); got != 670 {
		t.Errorf("Expected repaired total 670, got %d", got)
	}

	// THEN: A second validation comes back clean
	clean, _ := h.Engine.ValidateAll(ctx)
	if clean.DriversValid != 2 || len(clean.Invalid) != 0 {
		t.Errorf("Expected all valid after fix, got %d valid", clean.DriversValid)
	}
}

func TestSweepRun_SaveAndQuery(t *testing.T) {
	_, store := newTestHandler(t)
	ctx := context.Background()

	// Save a running record, then upsert the completed one under the same id
	started := time.Now().UTC()
	run := earnings.SweepRun{
		ID:        "run-1",
		Mode:      earnings.SweepFix,
		Status:    earnings.SweepRunning,
		StartedAt: started,
	}
	if err := store.SaveSweepRun(ctx, run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	finished := started.Add(2 * time.Second)
	run.Status = earnings.SweepCompleted
	run.FinishedAt = &finished
	run.DriversChecked = 5
	run.DriversValid = 4
	run.DriversInvalid = 1
	run.DriversFixed = 1
	if err := store.SaveSweepRun(ctx, run); err != nil {
		t.Fatalf("Failed to update run: %v", err)
	}

	runs, err := store.ListSweepRuns(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != earnings.SweepCompleted {
		t.Errorf("Expected completed, got %s", runs[0].Status)
	}
	if runs[0].DriversChecked != 5 || runs[0].DriversFixed != 1 {
		t.Errorf("Expected counters 5 checked / 1 fixed, got %d / %d",
			runs[0].DriversChecked, runs[0].DriversFixed)
	}
	if runs[0].FinishedAt == nil {
		t.Error("Expected finished timestamp")
	}
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestStatusFor_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{earnings.ErrRuleSetNotFound, http.StatusNotFound},
		{earnings.ErrDeliveryNotFound, http.StatusNotFound},
		{earnings.ErrDriverNotFound, http.StatusNotFound},
		{earnings.ErrRuleSetActive, http.StatusConflict},
		{earnings.ErrInvalidRuleSet, http.StatusBadRequest},
		{earnings.ErrDeliveryNotDelivered, http.StatusBadRequest},
		{earnings.ErrNegativeFee, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
