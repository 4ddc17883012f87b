/*
Rule-set configuration service.

PURPOSE:
  Owns the rule-set lifecycle: create a new version, activate exactly one,
  look up the live configuration, delete retired versions. Every path that
  stores or activates rules validates them first; no partially-valid rule
  set is ever stored or made live.

KEY CONCEPTS IN THIS FILE (config.go):
  - Create/Update: new versions, never mutation; versions come from the
    store and only ever grow
  - Activate: re-validates the stored record, then swaps the active flag
    atomically through the store
  - Active: falls back to the built-in default so reads never fail

CONCURRENCY:
  Configuration changes are rare administrative actions; reads happen on
  every delivery. The service itself holds no state, so safety reduces to
  the store's activation swap being atomic. Two concurrent Creates can
  race for the same version number; the store's uniqueness constraint
  rejects the loser and the administrator simply retries.

SEE ALSO:
  - ruleset.go: RuleSet and the built-in default
  - store.go: RuleSetStore port
  - reconciler.go: Reads the active configuration on every computation
*/
package earnings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// ConfigService manages rule-set versions on top of a RuleSetStore.
type ConfigService struct {
	store RuleSetStore
}

func NewConfigService(store RuleSetStore) *ConfigService {
	return &ConfigService{store: store}
}

// Create validates rules and stores them as a new, inactive rule set with
// the next version number. Activation is a separate, deliberate step.
func (s *ConfigService) Create(ctx context.Context, rules []Rule, notes, author string) (*RuleSet, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	version, err := s.store.NextRuleSetVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("create rule set: next version: %w", err)
	}
	now := time.Now().UTC()
	rs := RuleSet{
		ID:            uuid.New().String(),
		Version:       version,
		Rules:         rules,
		EffectiveFrom: now,
		Active:        false,
		Notes:         notes,
		CreatedBy:     author,
		UpdatedBy:     author,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.SaveRuleSet(ctx, rs); err != nil {
		return nil, fmt.Errorf("create rule set: %w", err)
	}
	return &rs, nil
}

// Update derives a new version from an existing rule set. The source record
// is never touched; deliveries computed under it stay reproducible.
func (s *ConfigService) Update(ctx context.Context, sourceID string, rules []Rule, notes, author string) (*RuleSet, error) {
	src, err := s.store.GetRuleSet(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("update rule set: %w", err)
	}
	if src == nil {
		return nil, ErrRuleSetNotFound
	}
	return s.Create(ctx, rules, notes, author)
}

// Activate makes one rule set live and every other one inactive. The
// stored record is validated again here; a row corrupted after storage
// must not become the live configuration.
func (s *ConfigService) Activate(ctx context.Context, id, author string) error {
	rs, err := s.store.GetRuleSet(ctx, id)
	if err != nil {
		return fmt.Errorf("activate rule set: %w", err)
	}
	if rs == nil {
		return ErrRuleSetNotFound
	}
	if err := rs.Validate(); err != nil {
		return err
	}
	if err := s.store.SetActiveRuleSet(ctx, id, author); err != nil {
		return fmt.Errorf("activate rule set: %w", err)
	}
	return nil
}

// Active returns the live rule set, or the built-in default when nothing
// has ever been activated. Callers always get a usable configuration.
func (s *ConfigService) Active(ctx context.Context) (*RuleSet, error) {
	rs, err := s.store.ActiveRuleSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("active rule set: %w", err)
	}
	if rs == nil {
		def := DefaultRuleSet()
		return &def, nil
	}
	return rs, nil
}

// Get looks up a rule set by id. The id "default" resolves to the built-in
// default, which is never stored; anything else missing is ErrRuleSetNotFound.
func (s *ConfigService) Get(ctx context.Context, id string) (*RuleSet, error) {
	if id == DefaultRuleSetID {
		def := DefaultRuleSet()
		return &def, nil
	}
	rs, err := s.store.GetRuleSet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get rule set: %w", err)
	}
	if rs == nil {
		return nil, ErrRuleSetNotFound
	}
	return rs, nil
}

// List returns one page of rule sets, newest version first, and the total
// count. Pages are 1-based.
func (s *ConfigService) List(ctx context.Context, page, limit int) ([]RuleSet, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	sets, total, err := s.store.ListRuleSets(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list rule sets: %w", err)
	}
	return sets, total, nil
}

// Delete removes a retired rule set. The active one cannot be deleted; the
// store enforces that in the same statement as the delete, so the check
// cannot race with an activation.
func (s *ConfigService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRuleSet(ctx, id); err != nil {
		if IsNotFound(err) || IsConflict(err) {
			return err
		}
		return fmt.Errorf("delete rule set: %w", err)
	}
	return nil
}
