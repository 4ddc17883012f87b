// Package store holds backend-independent storage helpers. The concrete
// implementations live in the sqlite and postgres subpackages.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/warp/earnings-engine/earnings"
)

type driverSeed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type deliverySeed struct {
	ID          string `json:"id"`
	DriverID    string `json:"driver_id"`
	Fee         int64  `json:"fee"`
	Status      string `json:"status"`
	DeliveredAt string `json:"delivered_at,omitempty"`
}

type seedFile struct {
	Drivers    []driverSeed   `json:"drivers"`
	Deliveries []deliverySeed `json:"deliveries"`
}

var seedStatuses = map[string]earnings.DeliveryStatus{
	string(earnings.StatusPending):   earnings.StatusPending,
	string(earnings.StatusAssigned):  earnings.StatusAssigned,
	string(earnings.StatusInTransit): earnings.StatusInTransit,
	string(earnings.StatusDelivered): earnings.StatusDelivered,
	string(earnings.StatusCancelled): earnings.StatusCancelled,
}

// SeedResult reports what a seeding pass inserted. DeliveredIDs lists the
// deliveries seeded in the delivered state so the caller can run the
// delivered reconciliation over them.
type SeedResult struct {
	Drivers      int
	Deliveries   int
	DeliveredIDs []string
}

// SeedFromJSON loads drivers and deliveries from a JSON file into the given
// stores. Earnings are left unset so a reconciliation pass can compute them.
func SeedFromJSON(ctx context.Context, deliveries earnings.DeliveryStore, drivers earnings.DriverStore, jsonPath string) (*SeedResult, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("seed: read %q: %w", jsonPath, err)
	}

	var data seedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("seed: parse json: %w", err)
	}

	now := time.Now().UTC()
	result := &SeedResult{}

	for i, d := range data.Drivers {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("seed: driver at index %d: id cannot be empty", i+1)
		}
		driver := earnings.Driver{
			ID:        id,
			Name:      strings.TrimSpace(d.Name),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := drivers.PutDriver(ctx, driver); err != nil {
			return nil, fmt.Errorf("seed: insert driver %s: %w", id, err)
		}
		result.Drivers++
	}

	for i, d := range data.Deliveries {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, fmt.Errorf("seed: delivery at index %d: id cannot be empty", i+1)
		}
		driverID := strings.TrimSpace(d.DriverID)
		if driverID == "" {
			return nil, fmt.Errorf("seed: delivery %s: driver_id cannot be empty", id)
		}
		if d.Fee < 0 {
			return nil, fmt.Errorf("seed: delivery %s: fee cannot be negative: %d", id, d.Fee)
		}

		status, ok := seedStatuses[strings.TrimSpace(d.Status)]
		if !ok {
			return nil, fmt.Errorf("seed: delivery %s: unknown status %q", id, d.Status)
		}

		delivery := earnings.Delivery{
			ID:        id,
			DriverID:  driverID,
			Fee:       earnings.NewMoney(d.Fee),
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if d.DeliveredAt != "" {
			t, err := time.Parse(time.RFC3339, d.DeliveredAt)
			if err != nil {
				return nil, fmt.Errorf("seed: delivery %s: bad delivered_at: %w", id, err)
			}
			delivery.DeliveredAt = &t
		} else if status == earnings.StatusDelivered {
			delivery.DeliveredAt = &now
		}

		if err := deliveries.PutDelivery(ctx, delivery); err != nil {
			return nil, fmt.Errorf("seed: insert delivery %s: %w", id, err)
		}
		result.Deliveries++
		if status == earnings.StatusDelivered {
			result.DeliveredIDs = append(result.DeliveredIDs, id)
		}
	}

	return result, nil
}
