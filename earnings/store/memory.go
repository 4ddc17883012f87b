// Package store provides an in-memory implementation of the engine's
// persistence ports, for tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/earnings-engine/earnings"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory satisfies every persistence port of the earnings package. Reads
// return copies; callers never share memory with the store.
type Memory struct {
	mu         sync.RWMutex
	ruleSets   map[string]earnings.RuleSet
	deliveries map[string]earnings.Delivery
	drivers    map[string]earnings.Driver
	audit      []earnings.AuditEntry
	sweeps     map[string]earnings.SweepRun
}

func NewMemory() *Memory {
	return &Memory{
		ruleSets:   make(map[string]earnings.RuleSet),
		deliveries: make(map[string]earnings.Delivery),
		drivers:    make(map[string]earnings.Driver),
		sweeps:     make(map[string]earnings.SweepRun),
	}
}

// =============================================================================
// RULE SET STORE
// =============================================================================

func (m *Memory) SaveRuleSet(_ context.Context, rs earnings.RuleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleSets[rs.ID] = cloneRuleSet(rs)
	return nil
}

func (m *Memory) GetRuleSet(_ context.Context, id string) (*earnings.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs, ok := m.ruleSets[id]
	if !ok {
		return nil, nil
	}
	out := cloneRuleSet(rs)
	return &out, nil
}

func (m *Memory) ActiveRuleSet(_ context.Context) (*earnings.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rs := range m.ruleSets {
		if rs.Active {
			out := cloneRuleSet(rs)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListRuleSets(_ context.Context, offset, limit int) ([]earnings.RuleSet, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]earnings.RuleSet, 0, len(m.ruleSets))
	for _, rs := range m.ruleSets {
		all = append(all, cloneRuleSet(rs))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version > all[j].Version })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *Memory) NextRuleSetVersion(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, rs := range m.ruleSets {
		if rs.Version > max {
			max = rs.Version
		}
	}
	return max + 1, nil
}

func (m *Memory) SetActiveRuleSet(_ context.Context, id, author string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.ruleSets[id]
	if !ok {
		return earnings.ErrRuleSetNotFound
	}
	now := time.Now().UTC()
	for rid, rs := range m.ruleSets {
		if rs.Active && rid != id {
			rs.Active = false
			rs.UpdatedAt = now
			m.ruleSets[rid] = rs
		}
	}
	target.Active = true
	target.UpdatedBy = author
	target.UpdatedAt = now
	m.ruleSets[id] = target
	return nil
}

func (m *Memory) DeleteRuleSet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.ruleSets[id]
	if !ok {
		return earnings.ErrRuleSetNotFound
	}
	if rs.Active {
		return earnings.ErrRuleSetActive
	}
	delete(m.ruleSets, id)
	return nil
}

// =============================================================================
// DELIVERY STORE
// =============================================================================

func (m *Memory) GetDelivery(_ context.Context, id string) (*earnings.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, nil
	}
	out := cloneDelivery(d)
	return &out, nil
}

func (m *Memory) PutDelivery(_ context.Context, d earnings.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.ID] = cloneDelivery(d)
	return nil
}

func (m *Memory) SetDeliveryEarnings(_ context.Context, id string, driver, company earnings.Money, ruleSetVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return earnings.ErrDeliveryNotFound
	}
	d.DriverEarning = &driver
	d.CompanyEarning = &company
	d.RuleSetVersion = ruleSetVersion
	d.UpdatedAt = time.Now().UTC()
	m.deliveries[id] = d
	return nil
}

func (m *Memory) ListDriverDeliveries(_ context.Context, driverID string) ([]earnings.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []earnings.Delivery
	for _, d := range m.deliveries {
		if d.DriverID == driverID {
			out = append(out, cloneDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// =============================================================================
// DRIVER STORE
// =============================================================================

func (m *Memory) GetDriver(_ context.Context, id string) (*earnings.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, nil
	}
	out := cloneDriver(d)
	return &out, nil
}

func (m *Memory) PutDriver(_ context.Context, d earnings.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (m *Memory) ListDrivers(_ context.Context) ([]earnings.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]earnings.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, cloneDriver(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetDriverTotals(_ context.Context, id string, totals earnings.DriverTotals, repairedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[id]
	if !ok {
		return earnings.ErrDriverNotFound
	}
	d.TotalDeliveries = totals.TotalDeliveries
	d.CompletedDeliveries = totals.CompletedDeliveries
	d.TotalEarnings = totals.TotalEarnings
	if repairedAt != nil {
		d.RepairCount++
		at := *repairedAt
		d.LastRepairAt = &at
	}
	d.UpdatedAt = time.Now().UTC()
	m.drivers[id] = d
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry earnings.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter earnings.AuditFilter) ([]earnings.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []earnings.AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.audit[i]
		if !matchesAudit(e, filter) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func matchesAudit(e earnings.AuditEntry, f earnings.AuditFilter) bool {
	if f.DriverID != nil && e.DriverID != *f.DriverID {
		return false
	}
	if f.DeliveryID != nil && e.DeliveryID != *f.DeliveryID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (m *Memory) SaveSweepRun(_ context.Context, run earnings.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps[run.ID] = cloneSweepRun(run)
	return nil
}

func (m *Memory) ListSweepRuns(_ context.Context, limit int) ([]earnings.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]earnings.SweepRun, 0, len(m.sweeps))
	for _, run := range m.sweeps {
		out = append(out, cloneSweepRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// COPY HELPERS - keep callers from aliasing store internals
// =============================================================================

func cloneRuleSet(rs earnings.RuleSet) earnings.RuleSet {
	out := rs
	out.Rules = cloneRules(rs.Rules)
	return out
}

func cloneRules(rules []earnings.Rule) []earnings.Rule {
	if rules == nil {
		return nil
	}
	out := make([]earnings.Rule, len(rules))
	for i, r := range rules {
		cp := r
		if r.MaxFee != nil {
			v := *r.MaxFee
			cp.MaxFee = &v
		}
		if len(r.Tiers) > 0 {
			tiers := make([]earnings.Tier, len(r.Tiers))
			for j, t := range r.Tiers {
				tc := t
				if t.UpTo != nil {
					v := *t.UpTo
					tc.UpTo = &v
				}
				tiers[j] = tc
			}
			cp.Tiers = tiers
		}
		out[i] = cp
	}
	return out
}

func cloneDelivery(d earnings.Delivery) earnings.Delivery {
	out := d
	if d.DriverEarning != nil {
		v := *d.DriverEarning
		out.DriverEarning = &v
	}
	if d.CompanyEarning != nil {
		v := *d.CompanyEarning
		out.CompanyEarning = &v
	}
	if d.DeliveredAt != nil {
		v := *d.DeliveredAt
		out.DeliveredAt = &v
	}
	return out
}

func cloneDriver(d earnings.Driver) earnings.Driver {
	out := d
	if d.LastRepairAt != nil {
		v := *d.LastRepairAt
		out.LastRepairAt = &v
	}
	return out
}

func cloneSweepRun(r earnings.SweepRun) earnings.SweepRun {
	out := r
	if r.FinishedAt != nil {
		v := *r.FinishedAt
		out.FinishedAt = &v
	}
	return out
}
