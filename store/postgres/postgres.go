/*
Package postgres provides a PostgreSQL-backed implementation of the storage interfaces.

PURPOSE:
  The server-grade twin of store/sqlite. Implements the same five ports
  (rule sets, deliveries, drivers, audit log, sweep runs) against
  PostgreSQL through the pgx stdlib driver.

DIALECT DIFFERENCES FROM THE SQLITE STORE:
  - $n placeholders instead of ?
  - TIMESTAMPTZ columns scanned straight into time.Time
  - BIGINT minor units for money
  - No process-level mutex: the database handles concurrency

USAGE:
  store, err := postgres.New(os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  // Schema setup is explicit (cmd/dbtool runs it at deploy time):
  if err := store.InitSchema(ctx); err != nil { ... }

SEE ALSO:
  - earnings/store.go: Interface definitions
  - store/sqlite/sqlite.go: Embedded implementation with the same shape
  - cmd/dbtool: Schema init and seeding entry point
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/factory"
)

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	db    *sql.DB
	rules *factory.RuleSetFactory
}

// New opens a pooled connection to the given database URL and verifies it.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}

	return &Store{db: db, rules: factory.NewRuleSetFactory()}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates the tables and indexes. Safe to run repeatedly.
func (s *Store) InitSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS rule_sets (
			id TEXT PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			rules_json JSONB NOT NULL,
			effective_from TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			notes TEXT,
			created_by TEXT,
			updated_by TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rule_sets_active
			ON rule_sets(is_active) WHERE is_active`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			driver_id TEXT NOT NULL,
			fee BIGINT NOT NULL,
			status TEXT NOT NULL,
			driver_earning BIGINT,
			company_earning BIGINT,
			rule_set_version INTEGER NOT NULL DEFAULT 0,
			delivered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_driver
			ON deliveries(driver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_driver_status
			ON deliveries(driver_id, status)`,
		`CREATE TABLE IF NOT EXISTS drivers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			total_deliveries INTEGER NOT NULL DEFAULT 0,
			completed_deliveries INTEGER NOT NULL DEFAULT 0,
			total_earnings BIGINT NOT NULL DEFAULT 0,
			repair_count INTEGER NOT NULL DEFAULT 0,
			last_repair_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			driver_id TEXT,
			delivery_id TEXT,
			payload_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_driver ON audit_log(driver_id)`,
		`CREATE TABLE IF NOT EXISTS sweep_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			drivers_checked INTEGER NOT NULL DEFAULT 0,
			drivers_valid INTEGER NOT NULL DEFAULT 0,
			drivers_invalid INTEGER NOT NULL DEFAULT 0,
			drivers_fixed INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_runs_started ON sweep_runs(started_at)`,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}
	return nil
}

// =============================================================================
// RULE SET STORE
// =============================================================================

func (s *Store) SaveRuleSet(ctx context.Context, rs earnings.RuleSet) error {
	rulesJSON, err := s.rules.EncodeRules(rs.Rules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rule_sets (id, version, rules_json, effective_from, is_active, notes, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		rs.ID, rs.Version, rulesJSON, rs.EffectiveFrom.UTC(), rs.Active,
		rs.Notes, rs.CreatedBy, rs.UpdatedBy, rs.CreatedAt.UTC(), rs.UpdatedAt.UTC())
	return err
}

func (s *Store) GetRuleSet(ctx context.Context, id string) (*earnings.RuleSet, error) {
	return s.queryRuleSet(ctx, `WHERE id = $1`, id)
}

func (s *Store) ActiveRuleSet(ctx context.Context) (*earnings.RuleSet, error) {
	return s.queryRuleSet(ctx, `WHERE is_active`)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRuleSet(row rowScanner) (*earnings.RuleSet, error) {
	var (
		rs        earnings.RuleSet
		rulesJSON string
		notes     sql.NullString
		createdBy sql.NullString
		updatedBy sql.NullString
	)
	err := row.Scan(&rs.ID, &rs.Version, &rulesJSON, &rs.EffectiveFrom, &rs.Active,
		&notes, &createdBy, &updatedBy, &rs.CreatedAt, &rs.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.DecodeRules(rulesJSON)
	if err != nil {
		return nil, fmt.Errorf("decode rules for %s: %w", rs.ID, err)
	}
	rs.Rules = rules
	rs.Notes = notes.String
	rs.CreatedBy = createdBy.String
	rs.UpdatedBy = updatedBy.String
	return &rs, nil
}

func (s *Store) ListRuleSets(ctx context.Context, offset, limit int) ([]earnings.RuleSet, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_sets`).Scan(&total); err != nil {
		return nil, 0, err
	}

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, rules_json, effective_from, is_active, notes, created_by, updated_by, created_at, updated_at
		FROM rule_sets ORDER BY version DESC LIMIT $1 OFFSET $2`, limitArg, offset)
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
	var next int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM rule_sets`).Scan(&next)
	return next, err
}

func (s *Store) SetActiveRuleSet(ctx context.Context, id, author string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE rule_sets SET is_active = FALSE, updated_at = $1 WHERE is_active`, now); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE rule_sets SET is_active = TRUE, updated_by = $1, updated_at = $2 WHERE id = $3`,
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
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rule_sets WHERE id = $1 AND NOT is_active`, id)
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

	var isActive bool
	err = s.db.QueryRowContext(ctx, `SELECT is_active FROM rule_sets WHERE id = $1`, id).Scan(&isActive)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, driver_id, fee, status, driver_earning, company_earning, rule_set_version, delivered_at, created_at, updated_at
		FROM deliveries WHERE id = $1`, id)

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
		deliveredAt    sql.NullTime
	)
	err := row.Scan(&d.ID, &d.DriverID, &fee, &status, &driverEarning, &companyEarning,
		&d.RuleSetVersion, &deliveredAt, &d.CreatedAt, &d.UpdatedAt)
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
		t := deliveredAt.Time
		d.DeliveredAt = &t
	}
	return &d, nil
}

func (s *Store) PutDelivery(ctx context.Context, d earnings.Delivery) error {
	var deliveredAt any
	if d.DeliveredAt != nil {
		deliveredAt = d.DeliveredAt.UTC()
	}
	var driverEarning, companyEarning any
	if d.DriverEarning != nil {
		driverEarning = d.DriverEarning.MinorUnits()
	}
	if d.CompanyEarning != nil {
		companyEarning = d.CompanyEarning.MinorUnits()
	}

	now := time.Now().UTC()
	createdAt := now
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt.UTC()
	}

	query := `
		INSERT INTO deliveries (id, driver_id, fee, status, driver_earning, company_earning, rule_set_version, delivered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			fee = EXCLUDED.fee,
			status = EXCLUDED.status,
			driver_earning = EXCLUDED.driver_earning,
			company_earning = EXCLUDED.company_earning,
			rule_set_version = EXCLUDED.rule_set_version,
			delivered_at = EXCLUDED.delivered_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.DriverID, d.Fee.MinorUnits(), string(d.Status),
		driverEarning, companyEarning, d.RuleSetVersion, deliveredAt, createdAt, now)
	return err
}

func (s *Store) SetDeliveryEarnings(ctx context.Context, id string, driver, company earnings.Money, ruleSetVersion int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET driver_earning = $1, company_earning = $2, rule_set_version = $3, updated_at = $4
		WHERE id = $5`,
		driver.MinorUnits(), company.MinorUnits(), ruleSetVersion, time.Now().UTC(), id)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, driver_id, fee, status, driver_earning, company_earning, rule_set_version, delivered_at, created_at, updated_at
		FROM deliveries WHERE driver_id = $1 ORDER BY created_at, id`, driverID)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, total_deliveries, completed_deliveries, total_earnings, repair_count, last_repair_at, created_at, updated_at
		FROM drivers WHERE id = $1`, id)

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
		lastRepairAt  sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Name, &d.TotalDeliveries, &d.CompletedDeliveries,
		&totalEarnings, &d.RepairCount, &lastRepairAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.TotalEarnings = earnings.NewMoney(totalEarnings)
	if lastRepairAt.Valid {
		t := lastRepairAt.Time
		d.LastRepairAt = &t
	}
	return &d, nil
}

func (s *Store) PutDriver(ctx context.Context, d earnings.Driver) error {
	var lastRepairAt any
	if d.LastRepairAt != nil {
		lastRepairAt = d.LastRepairAt.UTC()
	}
	now := time.Now().UTC()
	createdAt := now
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt.UTC()
	}

	query := `
		INSERT INTO drivers (id, name, total_deliveries, completed_deliveries, total_earnings, repair_count, last_repair_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			total_deliveries = EXCLUDED.total_deliveries,
			completed_deliveries = EXCLUDED.completed_deliveries,
			total_earnings = EXCLUDED.total_earnings,
			repair_count = EXCLUDED.repair_count,
			last_repair_at = EXCLUDED.last_repair_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Name, d.TotalDeliveries, d.CompletedDeliveries,
		d.TotalEarnings.MinorUnits(), d.RepairCount, lastRepairAt, createdAt, now)
	return err
}

func (s *Store) ListDrivers(ctx context.Context) ([]earnings.Driver, error) {
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
	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if repairedAt != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE drivers
			SET total_deliveries = $1, completed_deliveries = $2, total_earnings = $3,
				repair_count = repair_count + 1, last_repair_at = $4, updated_at = $5
			WHERE id = $6`,
			totals.TotalDeliveries, totals.CompletedDeliveries, totals.TotalEarnings.MinorUnits(),
			repairedAt.UTC(), now, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE drivers
			SET total_deliveries = $1, completed_deliveries = $2, total_earnings = $3, updated_at = $4
			WHERE id = $5`,
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Timestamp.UTC(), entry.ActorID,
		string(entry.Action), entry.DriverID, entry.DeliveryID, payloadJSON)
	return err
}

func (s *Store) QueryAudit(ctx context.Context, filter earnings.AuditFilter) ([]earnings.AuditEntry, error) {
	query := `SELECT id, ts, actor_id, action, driver_id, delivery_id, payload_json FROM audit_log`
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.DriverID != nil {
		conditions = append(conditions, "driver_id = "+arg(*filter.DriverID))
	}
	if filter.DeliveryID != nil {
		conditions = append(conditions, "delivery_id = "+arg(*filter.DeliveryID))
	}
	if filter.From != nil {
		conditions = append(conditions, "ts >= "+arg(filter.From.UTC()))
	}
	if filter.To != nil {
		conditions = append(conditions, "ts <= "+arg(filter.To.UTC()))
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, 0, len(filter.Actions))
		for _, a := range filter.Actions {
			placeholders = append(placeholders, arg(string(a)))
		}
		conditions = append(conditions, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY ts DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []earnings.AuditEntry
	for rows.Next() {
		var (
			e           earnings.AuditEntry
			action      string
			driverID    sql.NullString
			deliveryID  sql.NullString
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &action, &driverID, &deliveryID, &payloadJSON); err != nil {
			return nil, err
		}
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
	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC()
	}

	query := `
		INSERT INTO sweep_runs (id, mode, status, started_at, finished_at, drivers_checked, drivers_valid, drivers_invalid, drivers_fixed, failures, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			drivers_checked = EXCLUDED.drivers_checked,
			drivers_valid = EXCLUDED.drivers_valid,
			drivers_invalid = EXCLUDED.drivers_invalid,
			drivers_fixed = EXCLUDED.drivers_fixed,
			failures = EXCLUDED.failures,
			error = EXCLUDED.error
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, string(run.Mode), string(run.Status), run.StartedAt.UTC(), finishedAt,
		run.DriversChecked, run.DriversValid, run.DriversInvalid,
		run.DriversFixed, run.Failures, run.Error)
	return err
}

func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]earnings.SweepRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, status, started_at, finished_at, drivers_checked, drivers_valid, drivers_invalid, drivers_fixed, failures, error
		FROM sweep_runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
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
			finishedAt sql.NullTime
			errText    sql.NullString
		)
		if err := rows.Scan(&run.ID, &mode, &status, &run.StartedAt, &finishedAt,
			&run.DriversChecked, &run.DriversValid, &run.DriversInvalid,
			&run.DriversFixed, &run.Failures, &errText); err != nil {
			return nil, err
		}
		run.Mode = earnings.SweepMode(mode)
		run.Status = earnings.SweepStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		run.Error = errText.String
		out = append(out, run)
	}
	return out, rows.Err()
}
