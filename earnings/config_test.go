package earnings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/earnings/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newConfigService() (*earnings.ConfigService, *store.Memory) {
	mem := store.NewMemory()
	return earnings.NewConfigService(mem), mem
}

func sixtySevenPercent() []earnings.Rule {
	return []earnings.Rule{earnings.PercentRule(dec(67))}
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

func TestConfigService_Create_AssignsGrowingVersions(t *testing.T) {
	svc, _ := newConfigService()
	ctx := context.Background()

	first, err := svc.Create(ctx, sixtySevenPercent(), "initial split", "alice")
	require.NoError(t, err)
	second, err := svc.Create(ctx, []earnings.Rule{earnings.PercentRule(dec(70))}, "raise", "alice")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.False(t, first.Active, "new rule sets must not activate themselves")
	assert.False(t, second.Active)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "alice", first.CreatedBy)
}

func TestConfigService_Create_RejectsInvalidRulesWithoutStoring(t *testing.T) {
	svc, _ := newConfigService()
	ctx := context.Background()

	_, err := svc.Create(ctx, []earnings.Rule{earnings.PercentRule(dec(150))}, "", "bob")
	require.ErrorIs(t, err, earnings.ErrInvalidRuleSet)

	_, total, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total, "a rejected rule set must never be stored")
}

func TestConfigService_Update_CreatesNewVersionAndKeepsSource(t *testing.T) {
	svc, _ := newConfigService()
	ctx := context.Background()

	src, err := svc.Create(ctx, sixtySevenPercent(), "v1", "alice")
	require.NoError(t, err)

	next, err := svc.Update(ctx, src.ID, []earnings.Rule{earnings.PercentRule(dec(72))}, "v2", "bob")
	require.NoError(t, err)

	assert.Equal(t, src.Version+1, next.Version)
	assert.NotEqual(t, src.ID, next.ID)

	kept, err := svc.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, kept.Rules[0].DriverPercent.Equal(dec(67)), "the source version must stay untouched")
}

func TestConfigService_Update_UnknownSource(t *testing.T) {
	svc, _ := newConfigService()

	_, err := svc.Update(context.Background(), "nope", sixtySevenPercent(), "", "bob")
	assert.ErrorIs(t, err, earnings.ErrRuleSetNotFound)
}

// =============================================================================
// ACTIVATION
// =============================================================================

func TestConfigService_Activate_IsExclusive(t *testing.T) {
	// GIVEN: Two stored rule sets with A active
	// WHEN: Activating B
	// THEN: B is the single active rule set; A was deactivated

	svc, mem := newConfigService()
	ctx := context.Background()

	a, err := svc.Create(ctx, sixtySevenPercent(), "A", "alice")
	require.NoError(t, err)
	b, err := svc.Create(ctx, []earnings.Rule{earnings.PercentRule(dec(75))}, "B", "alice")
	require.NoError(t, err)

	require.NoError(t, svc.Activate(ctx, a.ID, "alice"))
	require.NoError(t, svc.Activate(ctx, b.ID, "alice"))

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	all, _, err := mem.ListRuleSets(ctx, 0, 10)
	require.NoError(t, err)
	activeCount := 0
	for _, rs := range all {
		if rs.Active {
			activeCount++
			assert.Equal(t, b.ID, rs.ID)
		}
	}
	assert.Equal(t, 1, activeCount, "exactly one rule set may be active")
}

func TestConfigService_Activate_UnknownID(t *testing.T) {
	svc, _ := newConfigService()

	err := svc.Activate(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, earnings.ErrRuleSetNotFound)
}

func TestConfigService_Activate_RevalidatesStoredRecord(t *testing.T) {
	// GIVEN: A rule set that was corrupted after storage (written behind
	// the service's back)
	// WHEN: Activating it
	// THEN: Validation catches it; corrupt rules never go live

	svc, mem := newConfigService()
	ctx := context.Background()

	corrupt := earnings.RuleSet{
		ID:      "corrupt",
		Version: 9,
		Rules:   []earnings.Rule{earnings.PercentRule(dec(400))},
	}
	require.NoError(t, mem.SaveRuleSet(ctx, corrupt))

	err := svc.Activate(ctx, "corrupt", "alice")
	assert.ErrorIs(t, err, earnings.ErrInvalidRuleSet)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, earnings.DefaultRuleSetID, active.ID)
}

// =============================================================================
// ACTIVE / GET
// =============================================================================

func TestConfigService_Active_FallsBackToBuiltInDefault(t *testing.T) {
	// Nothing has ever been activated; the engine still has a usable
	// configuration.
	svc, _ := newConfigService()

	active, err := svc.Active(context.Background())
	require.NoError(t, err)

	assert.Equal(t, earnings.DefaultRuleSetID, active.ID)
	assert.Equal(t, 0, active.Version)

	split, err := earnings.Compute(money(100), *active)
	require.NoError(t, err)
	assert.EqualValues(t, 67, split.Driver.MinorUnits())
	assert.EqualValues(t, 33, split.Company.MinorUnits())
}

func TestConfigService_Get_ResolvesDefaultID(t *testing.T) {
	svc, _ := newConfigService()

	rs, err := svc.Get(context.Background(), earnings.DefaultRuleSetID)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Version)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, earnings.ErrRuleSetNotFound)
}

// =============================================================================
// DELETE
// =============================================================================

func TestConfigService_Delete_RefusesActive(t *testing.T) {
	svc, _ := newConfigService()
	ctx := context.Background()

	rs, err := svc.Create(ctx, sixtySevenPercent(), "", "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, rs.ID, "alice"))

	err = svc.Delete(ctx, rs.ID)
	assert.ErrorIs(t, err, earnings.ErrRuleSetActive)

	kept, err := svc.Get(ctx, rs.ID)
	require.NoError(t, err)
	assert.True(t, kept.Active)
}

func TestConfigService_Delete_RemovesNonActive(t *testing.T) {
	svc, _ := newConfigService()
	ctx := context.Background()

	rs, err := svc.Create(ctx, sixtySevenPercent(), "", "alice")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, rs.ID))

	_, err = svc.Get(ctx, rs.ID)
	assert.ErrorIs(t, err, earnings.ErrRuleSetNotFound)

	err = svc.Delete(ctx, rs.ID)
	assert.ErrorIs(t, err, earnings.ErrRuleSetNotFound)
}

// =============================================================================
// LIST
// =============================================================================

func TestConfigService_List_PagesNewestFirst(t *testing.T) {
	svc, _ := newConfigService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, sixtySevenPercent(), "", "alice")
		require.NoError(t, err)
	}

	page, total, err := svc.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, 5, page[0].Version)
	assert.Equal(t, 4, page[1].Version)

	last, _, err := svc.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, 1, last[0].Version)
}
