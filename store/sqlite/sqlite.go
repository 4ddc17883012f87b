/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence port of the earnings engine (rule sets,
  deliveries, drivers, audit log, sweep runs) using SQLite. In production
  the same patterns apply to PostgreSQL - see store/postgres for the
  server-backed twin of this package.

INTERFACES IMPLEMENTED:
  earnings.RuleSetStore:  Versioned rule sets and the activation swap
  earnings.DeliveryStore: Delivery reads plus the earnings write
  earnings.DriverStore:   Driver reads plus the totals write
  earnings.AuditLog:      Append-only anomaly trail
  earnings.SweepRunStore: Sweep history

KEY TABLES:
  rule_sets:   One row per configuration version; rules as JSON
  deliveries:  Fee, status and the computed earnings pair
  drivers:     Cached aggregates plus repair bookkeeping
  audit_log:   Append-only anomalies (fallbacks, repairs, bulk runs)
  sweep_runs:  validate-all / fix-all history

ACTIVATION SWAP:
  SetActiveRuleSet clears the previous active flag and sets the new one
  inside a single transaction, so no reader ever observes two active rule
  sets, and the swap either fully happens or not at all.

MONEY:
  All monetary columns are INTEGER minor units. Splits are computed as
  decimals upstream and arrive here already whole.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/earnings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - earnings/store.go: Interface definitions
  - store/postgres/postgres.go: PostgreSQL implementation
  - earnings/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/factory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	rules *factory.RuleSetFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, rules: factory.NewRuleSetFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rule sets (immutable versions, at most one active)
	CREATE TABLE IF NOT EXISTS rule_sets (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL UNIQUE,
		rules_json TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_by TEXT,
		updated_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rule_sets_active
		ON rule_sets(is_active) WHERE is_active = 1;

	-- Deliveries (earnings pair written once, together)
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		fee INTEGER NOT NULL,
		status TEXT NOT NULL,
		driver_earning INTEGER,
		company_earning INTEGER,
		rule_set_version INTEGER NOT NULL DEFAULT 0,
		delivered_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_driver
		ON deliveries(driver_id);
	CREATE INDEX IF NOT EXISTS idx_deliveries_driver_status
		ON deliveries(driver_id, status);

	-- Drivers (cached aggregates the reconciler keeps honest)
	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		total_deliveries INTEGER NOT NULL DEFAULT 0,
		completed_deliveries INTEGER NOT NULL DEFAULT 0,
		total_earnings INTEGER NOT NULL DEFAULT 0,
		repair_count INTEGER NOT NULL DEFAULT 0,
		last_repair_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		driver_id TEXT,
		delivery_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_driver ON audit_log(driver_id);

	-- Sweep runs (validate-all / fix-all history)
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		drivers_checked INTEGER NOT NULL DEFAULT 0,
		drivers_valid INTEGER NOT NULL DEFAULT 0,
		drivers_invalid INTEGER NOT NULL DEFAULT 0,
		drivers_fixed INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started ON sweep_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULE SET STORE
// =============================================================================

func (s *Store) SaveRuleSet(ctx context.Context, rs earnings.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rulesJSON, err := s.rules.EncodeRules(rs.Rules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rule_sets (id, version, rules_json, effective_from, is_active, notes, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rs.ID, rs.Version, rulesJSON,
		rs.EffectiveFrom.UTC().Format(time.RFC3339),
		boolToInt(rs.Active), rs.Notes, rs.CreatedBy, rs.UpdatedBy,
		rs.CreatedAt.UTC().Format(time.RFC3339),
		rs.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetRuleSet(ctx context.Context, id string) (*earnings.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRuleSet(ctx, `WHERE id = ?`, id)
}

func (s *Store) ActiveRuleSet(ctx context.Context) (*earnings.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRuleSet(ctx, `WHERE is_active = 1`)
}

func (s *Store) queryRuleSet(ctx context.Context, where string, args ...any) (*earnings.RuleSet, error) {
	query := `
		SELECT id, version, rules_json, effective_from, is_active, notes, created_by, updated_by, created_at, updated_at
		FROM rule_sets ` + where + ` LIMIT 1`

	rs, err := s.scanRuleSet(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// rowScanner lets the same scan helpers serve QueryRow and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRuleSet(row rowScanner) (*earnings.RuleSet, error) {
	var (
		rs            earnings.RuleSet
		rulesJSON     string
		effectiveFrom string
		isActive      int
		notes         sql.NullString
		createdBy     sql.NullString
		updatedBy     sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&rs.ID, &rs.Version, &rulesJSON, &effectiveFrom, &isActive,
		&notes, &createdBy, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.DecodeRules(rulesJSON)
	if err != nil {
		return nil, fmt.Errorf("decode rules for %s: %w", rs.ID, err)
	}
	rs.Rules = rules
	rs.Active = isActive == 1
	rs.Notes = notes.String
	rs.CreatedBy = createdBy.String
	rs.UpdatedBy = updatedBy.String
	rs.EffectiveFrom, _ = time.Parse(time.RFC3339, effectiveFrom)
	rs.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rs.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rs, nil
}

func (s *Store) ListRuleSets(ctx context.Context, offset, limit int) ([]earnings.RuleSet, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_sets`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, rules_json, effective_from, is_active, notes, created_by, updated_by, created_at, updated_at
		FROM rule_sets ORDER BY version DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []earnings.RuleSet
	for rows.Next() {
		rs, err := s.scanRuleSet(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rs)
	}
	return out, total, rows.Err()
}

func (s *Store) NextRuleSetVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM rule_sets`).Scan(&next)
	return next, err
}

func (s *Store) SetActiveRuleSet(ctx context.Context, id, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`UPDATE rule_sets SET is_active = 0, updated_at = ? WHERE is_active = 1`, now); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE rule_sets SET is_active = 1, updated_by = ?, updated_at = ? WHERE id = ?`,
		author, now, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return earnings.ErrRuleSetNotFound
	}
	return tx.Commit()
}

func (s *Store) DeleteRuleSet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The guard lives in the statement itself: an active row is never
	// deleted no matter how calls interleave.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rule_sets WHERE id = ? AND is_active = 0`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var isActive int
	err = s.db.QueryRowContext(ctx, `SELECT is_active FROM rule_sets WHERE id = ?`, id).Scan(&isActive)
	if err == sql.ErrNoRows {
		return earnings.ErrRuleSetNotFound
	}
	if err != nil {
		return err
	}
	return earnings.ErrRuleSetActive
}

// =============================================================================
// DELIVERY STORE
// =============================================================================

func (s *Store) GetDelivery(ctx context.Context, id string) (*earnings.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, driver_id, fee, status, driver_earning, company_earning, rule_set_version, delivered_at, created_at, updated_at
		FROM deliveries WHERE id = ?`, id)

	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanDelivery(row rowScanner) (*earnings.Delivery, error) {
	var (
		d              earnings.Delivery
		fee            int64
		status         string
		driverEarning  sql.NullInt64
		companyEarning sql.NullInt64
		deliveredAt    sql.NullString
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(&d.ID, &d.DriverID, &fee, &status, &driverEarning, &companyEarning,
		&d.RuleSetVersion, &deliveredAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Fee = earnings.NewMoney(fee)
	d.Status = earnings.DeliveryStatus(status)
	if driverEarning.Valid {
		m := earnings.NewMoney(driverEarning.Int64)
		d.DriverEarning = &m
	}
	if companyEarning.Valid {
		m := earnings.NewMoney(companyEarning.Int64)
		d.CompanyEarning = &m
	}
	if deliveredAt.Valid {
		t, _ := time.Parse(time.RFC3339, deliveredAt.String)
		d.DeliveredAt = &t
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}

func (s *Store) PutDelivery(ctx context.Context, d earnings.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deliveredAt any
	if d.DeliveredAt != nil {
		deliveredAt = d.DeliveredAt.UTC().Format(time.RFC3339)
	}
	var driverEarning, companyEarning any
	if d.DriverEarning != nil {
		driverEarning = d.DriverEarning.MinorUnits()
	}
	if d.CompanyEarning != nil {
		companyEarning = d.CompanyEarning.MinorUnits()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO deliveries (id, driver_id, fee, status, driver_earning, company_earning, rule_set_version, delivered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			driver_id = excluded.driver_id,
			fee = excluded.fee,
			status = excluded.status,
			driver_earning = excluded.driver_earning,
			company_earning = excluded.company_earning,
			rule_set_version = excluded.rule_set_version,
			delivered_at = excluded.delivered_at,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.DriverID, d.Fee.MinorUnits(), string(d.Status),
		driverEarning, companyEarning, d.RuleSetVersion, deliveredAt,
		createdAt, now,
	)
	return err
}

func (s *Store) SetDeliveryEarnings(ctx context.Context, id string, driver, company earnings.Money, ruleSetVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET driver_earning = ?, company_earning = ?, rule_set_version = ?, updated_at = ?
		WHERE id = ?`,
		driver.MinorUnits(), company.MinorUnits(), ruleSetVersion,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return earnings.ErrDeliveryNotFound
	}
	return nil
}

func (s *Store) ListDriverDeliveries(ctx context.Context, driverID string) ([]earnings.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, driver_id, fee, status, driver_earning, company_earning, rule_set_version, delivered_at, created_at, updated_at
		FROM deliveries WHERE driver_id = ? ORDER BY created_at, id`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []earnings.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// =============================================================================
// DRIVER STORE
// =============================================================================

func (s *Store) GetDriver(ctx context.Context, id string) (*earnings.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, total_deliveries, completed_deliveries, total_earnings, repair_count, last_repair_at, created_at, updated_at
		FROM drivers WHERE id = ?`, id)

	d, err := scanDriver(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanDriver(row rowScanner) (*earnings.Driver, error) {
	var (
		d             earnings.Driver
		totalEarnings int64
		lastRepairAt  sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&d.ID, &d.Name, &d.TotalDeliveries, &d.CompletedDeliveries,
		&totalEarnings, &d.RepairCount, &lastRepairAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.TotalEarnings = earnings.NewMoney(totalEarnings)
	if lastRepairAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastRepairAt.String)
		d.LastRepairAt = &t
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}

func (s *Store) PutDriver(ctx context.Context, d earnings.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastRepairAt any
	if d.LastRepairAt != nil {
		lastRepairAt = d.LastRepairAt.UTC().Format(time.RFC3339)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt.UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO drivers (id, name, total_deliveries, completed_deliveries, total_earnings, repair_count, last_repair_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_deliveries = excluded.total_deliveries,
			completed_deliveries = excluded.completed_deliveries,
			total_earnings = excluded.total_earnings,
			repair_count = excluded.repair_count,
			last_repair_at = excluded.last_repair_at,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Name, d.TotalDeliveries, d.CompletedDeliveries,
		d.TotalEarnings.MinorUnits(), d.RepairCount, lastRepairAt,
		createdAt, now,
	)
	return err
}

func (s *Store) ListDrivers(ctx context.Context) ([]earnings.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, total_deliveries, completed_deliveries, total_earnings, repair_count, last_repair_at, created_at, updated_at
		FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []earnings.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) SetDriverTotals(ctx context.Context, id string, totals earnings.DriverTotals, repairedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	var (
		res sql.Result
		err error
	)
	if repairedAt != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE drivers
			SET total_deliveries = ?, completed_deliveries = ?, total_earnings = ?,
				repair_count = repair_count + 1, last_repair_at = ?, updated_at = ?
			WHERE id = ?`,
			totals.TotalDeliveries, totals.CompletedDeliveries, totals.TotalEarnings.MinorUnits(),
			repairedAt.UTC().Format(time.RFC3339), now, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE drivers
			SET total_deliveries = ?, completed_deliveries = ?, total_earnings = ?, updated_at = ?
			WHERE id = ?`,
			totals.TotalDeliveries, totals.CompletedDeliveries, totals.TotalEarnings.MinorUnits(),
			now, id)
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return earnings.ErrDriverNotFound
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry earnings.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payloadJSON any
	if entry.Payload != nil {
		data, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		payloadJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, driver_id, delivery_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC().Format(time.RFC3339), entry.ActorID,
		string(entry.Action), entry.DriverID, entry.DeliveryID, payloadJSON)
	return err
}

func (s *Store) QueryAudit(ctx context.Context, filter earnings.AuditFilter) ([]earnings.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, ts, actor_id, action, driver_id, delivery_id, payload_json FROM audit_log`
	var conditions []string
	var args []any

	if filter.DriverID != nil {
		conditions = append(conditions, "driver_id = ?")
		args = append(args, *filter.DriverID)
	}
	if filter.DeliveryID != nil {
		conditions = append(conditions, "delivery_id = ?")
		args = append(args, *filter.DeliveryID)
	}
	if filter.From != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		conditions = append(conditions, "ts <= ?")
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	if len(filter.Actions) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Actions)), ",")
		conditions = append(conditions, "action IN ("+placeholders+")")
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []earnings.AuditEntry
	for rows.Next() {
		var (
			e           earnings.AuditEntry
			ts          string
			action      string
			driverID    sql.NullString
			deliveryID  sql.NullString
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &driverID, &deliveryID, &payloadJSON); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.Action = earnings.AuditAction(action)
		e.DriverID = driverID.String
		e.DeliveryID = deliveryID.String
		if payloadJSON.Valid && payloadJSON.String != "" {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, run earnings.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO sweep_runs (id, mode, status, started_at, finished_at, drivers_checked, drivers_valid, drivers_invalid, drivers_fixed, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			drivers_checked = excluded.drivers_checked,
			drivers_valid = excluded.drivers_valid,
			drivers_invalid = excluded.drivers_invalid,
			drivers_fixed = excluded.drivers_fixed,
			failures = excluded.failures,
			error = excluded.error
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Mode), string(run.Status),
		run.StartedAt.UTC().Format(time.RFC3339), finishedAt,
		run.DriversChecked, run.DriversValid, run.DriversInvalid,
		run.DriversFixed, run.Failures, run.Error)
	return err
}

func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]earnings.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, status, started_at, finished_at, drivers_checked, drivers_valid, drivers_invalid, drivers_fixed, failures, error
		FROM sweep_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []earnings.SweepRun
	for rows.Next() {
		var (
			run        earnings.SweepRun
			mode       string
			status     string
			startedAt  string
			finishedAt sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&run.ID, &mode, &status, &startedAt, &finishedAt,
			&run.DriversChecked, &run.DriversValid, &run.DriversInvalid,
			&run.DriversFixed, &run.Failures, &errText); err != nil {
			return nil, err
		}
		run.Mode = earnings.SweepMode(mode)
		run.Status = earnings.SweepStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			run.FinishedAt = &t
		}
		run.Error = errText.String
		out = append(out, run)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
