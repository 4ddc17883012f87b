/*
External delivery and driver records.

PURPOSE:
  The engine does not own the delivery or driver lifecycle; a separate CRUD
  layer creates and updates them. These are the views of those records the
  engine needs, plus the exact fields it is allowed to write: the earnings
  pair on deliveries and the aggregate totals on drivers.

KEY CONCEPTS IN THIS FILE (delivery.go):
  - Delivery: fee, status and the write-once earnings pair
  - Driver: aggregate totals that cache what the deliveries already say
  - DriverTotals: the three aggregates as a comparable value

INVARIANTS:
  1. Earnings are written exactly once, the first time a delivery is
     delivered; only an explicit bulk recalculation overwrites them
  2. Driver.TotalEarnings == sum of DriverEarning over that driver's
     delivered deliveries; the counters follow the same pattern
  3. The deliveries collection is the source of truth; driver totals are
     a cache the reconciler exists to keep honest

SEE ALSO:
  - store.go: Ports the engine reads and writes these through
  - reconciler.go: Enforces invariant 2 and repairs violations
*/
package earnings

import "time"

// =============================================================================
// DELIVERY
// =============================================================================

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusAssigned  DeliveryStatus = "assigned"
	StatusInTransit DeliveryStatus = "in_transit"
	StatusDelivered DeliveryStatus = "delivered"
	StatusCancelled DeliveryStatus = "cancelled"
)

// Delivery is the engine's view of a delivery record.
type Delivery struct {
	ID       string
	DriverID string
	Fee      Money
	Status   DeliveryStatus

	// DriverEarning and CompanyEarning are nil until the split has been
	// computed. They are always written together.
	DriverEarning  *Money
	CompanyEarning *Money

	// RuleSetVersion records which rule-set version produced the earnings.
	// Version 0 means the built-in default split.
	RuleSetVersion int

	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EarningsComputed reports whether the split has been persisted.
func (d Delivery) EarningsComputed() bool {
	return d.DriverEarning != nil && d.CompanyEarning != nil
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver is the engine's view of a driver record. The three aggregate
// fields are the cache this engine reconciles.
type Driver struct {
	ID   string
	Name string

	TotalDeliveries     int
	CompletedDeliveries int
	TotalEarnings       Money

	// RepairCount and LastRepairAt track how often the stored totals had
	// to be fixed. Useful for spotting drivers whose records keep drifting.
	RepairCount  int
	LastRepairAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredTotals returns the driver's cached aggregates as a comparable value.
func (d Driver) StoredTotals() DriverTotals {
	return DriverTotals{
		TotalDeliveries:     d.TotalDeliveries,
		CompletedDeliveries: d.CompletedDeliveries,
		TotalEarnings:       d.TotalEarnings,
	}
}

// DriverTotals holds the three aggregates, either as stored on the driver
// or as recomputed from the delivery history.
type DriverTotals struct {
	TotalDeliveries     int
	CompletedDeliveries int
	TotalEarnings       Money

	// MissingEarnings counts delivered deliveries whose earnings were
	// never written. They contribute zero to TotalEarnings; the count is
	// reported so a corrupt record is visible without poisoning the sum.
	MissingEarnings int
}

// Equal compares the three aggregates field by field. Earnings compare at
// minor-unit resolution, exactly. MissingEarnings is diagnostic and does
// not participate.
func (t DriverTotals) Equal(o DriverTotals) bool {
	return t.TotalDeliveries == o.TotalDeliveries &&
		t.CompletedDeliveries == o.CompletedDeliveries &&
		t.TotalEarnings.Equal(o.TotalEarnings)
}
