/*
Package postgres provides a PostgreSQL implementation of the storage interfaces.

PURPOSE:
  Same contracts as store/sqlite, for deployments where several server
  instances share one database. Concurrency control is the database's:
  no process-level mutex, row versions for optimistic checks, and the
  unique (user_id, work_date) index for day uniqueness.

INTERFACES IMPLEMENTED:
  worktime.TxStore, worktime.BreakRuleAdmin, worktime.WorkRecordStore,
  worktime.RunStore

ERRORS:
  SQLSTATE 23505 (unique_violation) on attendance maps to DuplicateDay.
  pgx.ErrNoRows maps to NotFound or to a nil record, per interface.

USAGE:
  pool, err := postgres.Connect(ctx, cfg.Database.PostgresURL, postgres.PoolOptions{MaxConns: 10})
  store := postgres.New(pool)
  if err := store.Migrate(ctx); err != nil { ... }

SEE ALSO:
  - store/sqlite: Embedded default with the same schema shape
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/worktime-engine/worktime"
)

const uniqueViolation = "23505"

type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	if opts.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store implements all storage interfaces on a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	clock worktime.Clock
}

var (
	_ worktime.TxStore         = (*Store)(nil)
	_ worktime.BreakRuleAdmin  = (*Store)(nil)
	_ worktime.WorkRecordStore = (*Store)(nil)
	_ worktime.RunStore        = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, clock: worktime.SystemClock{}}
}

// SetClock sets the clock that stamps rule-set versions. Call it before the
// store is shared.
func (s *Store) SetClock(c worktime.Clock) { s.clock = c }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	work_date DATE NOT NULL,
	clock_in TIMESTAMPTZ NOT NULL,
	clock_out TIMESTAMPTZ,
	work_minutes INTEGER NOT NULL DEFAULT 0,
	clock_in_device TEXT NOT NULL DEFAULT '',
	clock_out_device TEXT NOT NULL DEFAULT '',
	auto_closed BOOLEAN NOT NULL DEFAULT FALSE,
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT attendance_clock_order CHECK (clock_out IS NULL OR clock_out > clock_in)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_user_day
	ON attendance_records(user_id, work_date);
CREATE INDEX IF NOT EXISTS idx_attendance_open
	ON attendance_records(user_id) WHERE clock_out IS NULL;
CREATE INDEX IF NOT EXISTS idx_attendance_day
	ON attendance_records(work_date);

CREATE TABLE IF NOT EXISTS audit_log (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	attendance_id TEXT NOT NULL,
	field_name TEXT NOT NULL CHECK (field_name IN ('clockIn', 'clockOut')),
	old_value TIMESTAMPTZ,
	new_value TIMESTAMPTZ NOT NULL,
	editor_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_attendance
	ON audit_log(attendance_id, created_at);

CREATE TABLE IF NOT EXISTS rule_sets (
	version BIGINT PRIMARY KEY,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS break_rules (
	version BIGINT NOT NULL REFERENCES rule_sets(version) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	start_seconds INTEGER NOT NULL,
	end_seconds INTEGER NOT NULL,
	applies_on SMALLINT NOT NULL,
	PRIMARY KEY (version, position)
);

CREATE TABLE IF NOT EXISTS work_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	vehicle_id TEXT NOT NULL DEFAULT '',
	process_id TEXT NOT NULL DEFAULT '',
	work_date DATE NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_work_records_user_day
	ON work_records(user_id, work_date);

CREATE TABLE IF NOT EXISTS recalculation_runs (
	id TEXT PRIMARY KEY,
	rule_set_version BIGINT NOT NULL,
	status TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	error_details JSONB NOT NULL DEFAULT '[]',
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
`

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// ATTENDANCE + AUDIT
// =============================================================================

func (s *Store) q() queries { return queries{db: s.pool} }

func (s *Store) CreateAttendance(ctx context.Context, rec worktime.AttendanceRecord) error {
	return s.q().CreateAttendance(ctx, rec)
}

func (s *Store) GetAttendance(ctx context.Context, id string) (worktime.AttendanceRecord, error) {
	return s.q().GetAttendance(ctx, id)
}

func (s *Store) FindOpenAttendance(ctx context.Context, userID string) (*worktime.AttendanceRecord, error) {
	return s.q().FindOpenAttendance(ctx, userID)
}

func (s *Store) FindAttendanceByDate(ctx context.Context, userID string, date worktime.Date) (*worktime.AttendanceRecord, error) {
	return s.q().FindAttendanceByDate(ctx, userID, date)
}

func (s *Store) UpdateAttendance(ctx context.Context, rec worktime.AttendanceRecord, expectedVersion int64) error {
	return s.q().UpdateAttendance(ctx, rec, expectedVersion)
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	return s.q().DeleteAttendance(ctx, id)
}

func (s *Store) ListOpenAttendance(ctx context.Context) ([]worktime.AttendanceRecord, error) {
	return s.q().ListOpenAttendance(ctx)
}

func (s *Store) ListClosedAttendanceIDs(ctx context.Context) ([]string, error) {
	return s.q().ListClosedAttendanceIDs(ctx)
}

func (s *Store) ListAttendanceByDate(ctx context.Context, date worktime.Date) ([]worktime.AttendanceRecord, error) {
	return s.q().ListAttendanceByDate(ctx, date)
}

func (s *Store) ListAttendanceRange(ctx context.Context, userID string, from, to worktime.Date) ([]worktime.AttendanceRecord, error) {
	return s.q().ListAttendanceRange(ctx, userID, from, to)
}

func (s *Store) AppendAudit(ctx context.Context, entries ...worktime.AuditLogEntry) error {
	return s.WithTx(ctx, func(st worktime.Store) error {
		return st.AppendAudit(ctx, entries...)
	})
}

func (s *Store) ListAudit(ctx context.Context, filter worktime.AuditFilter) ([]worktime.AuditLogEntry, error) {
	return s.q().ListAudit(ctx, filter)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(worktime.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type queries struct {
	db dbtx
}

const attendanceColumns = `id, user_id, work_date, clock_in, clock_out, work_minutes,
	clock_in_device, clock_out_device, auto_closed, version, created_at, updated_at`

func (qs queries) CreateAttendance(ctx context.Context, rec worktime.AttendanceRecord) error {
	_, err := qs.db.Exec(ctx, `INSERT INTO attendance_records (`+attendanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.UserID, dateArg(rec.Date), rec.ClockIn, rec.ClockOut, rec.WorkMinutes,
		rec.ClockInDevice, rec.ClockOutDevice, rec.AutoClosed, rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &worktime.DuplicateDayError{UserID: rec.UserID, Date: rec.Date}
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

func (qs queries) GetAttendance(ctx context.Context, id string) (worktime.AttendanceRecord, error) {
	rec, err := scanAttendance(qs.db.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return worktime.AttendanceRecord{}, &worktime.NotFoundError{AttendanceID: id}
	}
	return rec, err
}

func (qs queries) FindOpenAttendance(ctx context.Context, userID string) (*worktime.AttendanceRecord, error) {
	return qs.findOne(ctx, `SELECT `+attendanceColumns+` FROM attendance_records
		WHERE user_id = $1 AND clock_out IS NULL
		ORDER BY clock_in ASC LIMIT 1`, userID)
}

func (qs queries) FindAttendanceByDate(ctx context.Context, userID string, date worktime.Date) (*worktime.AttendanceRecord, error) {
	return qs.findOne(ctx, `SELECT `+attendanceColumns+` FROM attendance_records
		WHERE user_id = $1 AND work_date = $2`, userID, dateArg(date))
}

func (qs queries) findOne(ctx context.Context, query string, args ...any) (*worktime.AttendanceRecord, error) {
	rec, err := scanAttendance(qs.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (qs queries) UpdateAttendance(ctx context.Context, rec worktime.AttendanceRecord, expectedVersion int64) error {
	tag, err := qs.db.Exec(ctx, `
		UPDATE attendance_records SET
			work_date = $1, clock_in = $2, clock_out = $3, work_minutes = $4,
			clock_in_device = $5, clock_out_device = $6, auto_closed = $7,
			version = $8, updated_at = $9
		WHERE id = $10 AND version = $11`,
		dateArg(rec.Date), rec.ClockIn, rec.ClockOut, rec.WorkMinutes,
		rec.ClockInDevice, rec.ClockOutDevice, rec.AutoClosed,
		rec.Version, rec.UpdatedAt, rec.ID, expectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &worktime.DuplicateDayError{UserID: rec.UserID, Date: rec.Date}
		}
		return fmt.Errorf("update attendance: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var actual int64
	err = qs.db.QueryRow(ctx, `SELECT version FROM attendance_records WHERE id = $1`, rec.ID).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return &worktime.NotFoundError{AttendanceID: rec.ID}
	}
	if err != nil {
		return err
	}
	return &worktime.ConcurrentModificationError{
		AttendanceID:    rec.ID,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actual,
	}
}

func (qs queries) DeleteAttendance(ctx context.Context, id string) error {
	tag, err := qs.db.Exec(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &worktime.NotFoundError{AttendanceID: id}
	}
	return nil
}

func (qs queries) ListOpenAttendance(ctx context.Context) ([]worktime.AttendanceRecord, error) {
	return qs.queryAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance_records
		WHERE clock_out IS NULL ORDER BY work_date, user_id`)
}

func (qs queries) ListClosedAttendanceIDs(ctx context.Context) ([]string, error) {
	rows, err := qs.db.Query(ctx, `SELECT id FROM attendance_records
		WHERE clock_out IS NOT NULL ORDER BY work_date, user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (qs queries) ListAttendanceByDate(ctx context.Context, date worktime.Date) ([]worktime.AttendanceRecord, error) {
	return qs.queryAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance_records
		WHERE work_date = $1 ORDER BY user_id`, dateArg(date))
}

func (qs queries) ListAttendanceRange(ctx context.Context, userID string, from, to worktime.Date) ([]worktime.AttendanceRecord, error) {
	return qs.queryAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance_records
		WHERE user_id = $1 AND work_date BETWEEN $2 AND $3 ORDER BY work_date`,
		userID, dateArg(from), dateArg(to))
}

func (qs queries) queryAttendance(ctx context.Context, query string, args ...any) ([]worktime.AttendanceRecord, error) {
	rows, err := qs.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []worktime.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanAttendance(row pgx.Row) (worktime.AttendanceRecord, error) {
	var (
		rec      worktime.AttendanceRecord
		workDate time.Time
	)
	if err := row.Scan(
		&rec.ID, &rec.UserID, &workDate, &rec.ClockIn, &rec.ClockOut, &rec.WorkMinutes,
		&rec.ClockInDevice, &rec.ClockOutDevice, &rec.AutoClosed, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return worktime.AttendanceRecord{}, err
	}
	rec.Date = worktime.NewDate(workDate.Year(), workDate.Month(), workDate.Day())
	rec.ClockIn = local(rec.ClockIn)
	rec.ClockOut = localPtr(rec.ClockOut)
	rec.CreatedAt = local(rec.CreatedAt)
	rec.UpdatedAt = local(rec.UpdatedAt)
	return rec, nil
}

func (qs queries) AppendAudit(ctx context.Context, entries ...worktime.AuditLogEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, err := qs.db.Exec(ctx, `
			INSERT INTO audit_log (id, attendance_id, field_name, old_value, new_value, editor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.AttendanceID, string(e.Field), e.OldValue, e.NewValue, e.EditorID, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
	}
	return nil
}

func (qs queries) ListAudit(ctx context.Context, filter worktime.AuditFilter) ([]worktime.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.AttendanceID != "" {
		add("attendance_id = $%d", filter.AttendanceID)
	}
	if filter.EditorID != "" {
		add("editor_id = $%d", filter.EditorID)
	}
	if filter.Field != "" {
		add("field_name = $%d", string(filter.Field))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	query := `SELECT id, attendance_id, field_name, old_value, new_value, editor_id, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, seq"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := qs.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []worktime.AuditLogEntry
	for rows.Next() {
		var (
			e     worktime.AuditLogEntry
			field string
		)
		if err := rows.Scan(&e.ID, &e.AttendanceID, &field, &e.OldValue, &e.NewValue, &e.EditorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Field = worktime.FieldName(field)
		e.OldValue = localPtr(e.OldValue)
		e.NewValue = local(e.NewValue)
		e.CreatedAt = local(e.CreatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// BREAK RULES
// =============================================================================

func (s *Store) ActiveRuleSet(ctx context.Context) (worktime.RuleSet, error) {
	var rs worktime.RuleSet
	err := s.pool.QueryRow(ctx,
		`SELECT version, updated_at FROM rule_sets ORDER BY version DESC LIMIT 1`,
	).Scan(&rs.Version, &rs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return worktime.RuleSet{}, nil
	}
	if err != nil {
		return worktime.RuleSet{}, err
	}
	rs.UpdatedAt = local(rs.UpdatedAt)

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, start_seconds, end_seconds, applies_on
		FROM break_rules WHERE version = $1 ORDER BY position`, rs.Version)
	if err != nil {
		return worktime.RuleSet{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r          worktime.BreakRule
			start, end int32
			days       int16
		)
		if err := rows.Scan(&r.ID, &r.Name, &start, &end, &days); err != nil {
			return worktime.RuleSet{}, err
		}
		r.Start = worktime.TimeOfDay(start)
		r.End = worktime.TimeOfDay(end)
		r.AppliesOn = worktime.WeekdaySet(days)
		rs.Rules = append(rs.Rules, r)
	}
	return rs, rows.Err()
}

// SaveRuleSet stores rules as the next version. The table lock serializes
// concurrent admins so versions stay gap-free.
func (s *Store) SaveRuleSet(ctx context.Context, rules []worktime.BreakRule) (worktime.RuleSet, error) {
	rs := worktime.RuleSet{Rules: append([]worktime.BreakRule(nil), rules...)}
	if err := rs.Validate(); err != nil {
		return worktime.RuleSet{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return worktime.RuleSet{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE rule_sets IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return worktime.RuleSet{}, err
	}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM rule_sets`).Scan(&rs.Version); err != nil {
		return worktime.RuleSet{}, err
	}
	rs.UpdatedAt = s.clock.Now().Truncate(time.Second).In(worktime.BusinessLocation)
	if _, err := tx.Exec(ctx, `INSERT INTO rule_sets (version, updated_at) VALUES ($1, $2)`, rs.Version, rs.UpdatedAt); err != nil {
		return worktime.RuleSet{}, fmt.Errorf("insert rule set: %w", err)
	}

	batch := &pgx.Batch{}
	for i, r := range rs.Rules {
		batch.Queue(`
			INSERT INTO break_rules (version, position, id, name, start_seconds, end_seconds, applies_on)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rs.Version, i, r.ID, r.Name, int32(r.Start), int32(r.End), int16(r.AppliesOn))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return worktime.RuleSet{}, fmt.Errorf("insert break rules: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return worktime.RuleSet{}, err
	}
	return rs, nil
}

// =============================================================================
// WORK RECORDS
// =============================================================================

func (s *Store) SaveWorkRecord(ctx context.Context, w worktime.WorkRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO work_records (id, user_id, vehicle_id, process_id, work_date, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			vehicle_id = EXCLUDED.vehicle_id,
			process_id = EXCLUDED.process_id,
			work_date = EXCLUDED.work_date,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time`,
		w.ID, w.UserID, w.VehicleID, w.ProcessID, dateArg(worktime.DateOf(w.StartTime)), w.StartTime, w.EndTime,
	)
	if err != nil {
		return fmt.Errorf("save work record: %w", err)
	}
	return nil
}

func (s *Store) ListWorkRecords(ctx context.Context, userID string, date worktime.Date) ([]worktime.WorkRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, vehicle_id, process_id, start_time, end_time
		FROM work_records WHERE user_id = $1 AND work_date = $2
		ORDER BY start_time`, userID, dateArg(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []worktime.WorkRecord
	for rows.Next() {
		var w worktime.WorkRecord
		if err := rows.Scan(&w.ID, &w.UserID, &w.VehicleID, &w.ProcessID, &w.StartTime, &w.EndTime); err != nil {
			return nil, err
		}
		w.StartTime = local(w.StartTime)
		w.EndTime = localPtr(w.EndTime)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) ListWorkRecordUsers(ctx context.Context, date worktime.Date) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM work_records WHERE work_date = $1 ORDER BY user_id`, dateArg(date))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

func (s *Store) SaveRecalculationRun(ctx context.Context, r worktime.RecalculationRun) error {
	details := r.ErrorDetails
	if details == nil {
		details = []worktime.RecordError{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO recalculation_runs (id, rule_set_version, status, total, updated, errors,
			error_details, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total = EXCLUDED.total,
			updated = EXCLUDED.updated,
			errors = EXCLUDED.errors,
			error_details = EXCLUDED.error_details,
			completed_at = EXCLUDED.completed_at`,
		r.ID, r.RuleSetVersion, string(r.Status), r.Total, r.Updated, r.Errors,
		raw, r.StartedAt, r.CompletedAt,
	)
	return err
}

func (s *Store) ListRecalculationRuns(ctx context.Context, limit int) ([]worktime.RecalculationRun, error) {
	query := `
		SELECT id, rule_set_version, status, total, updated, errors, error_details, started_at, completed_at
		FROM recalculation_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []worktime.RecalculationRun
	for rows.Next() {
		var (
			r      worktime.RecalculationRun
			status string
			raw    []byte
		)
		if err := rows.Scan(&r.ID, &r.RuleSetVersion, &status, &r.Total, &r.Updated, &r.Errors,
			&raw, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Status = worktime.RunStatus(status)
		if err := json.Unmarshal(raw, &r.ErrorDetails); err != nil {
			return nil, fmt.Errorf("run %s error details: %w", r.ID, err)
		}
		r.StartedAt = local(r.StartedAt)
		r.CompletedAt = localPtr(r.CompletedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset truncates every table. Used by demo scenarios and tests.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE audit_log, attendance_records, break_rules, rule_sets,
		work_records, recalculation_runs`)
	return err
}

// Helper functions

func dateArg(d worktime.Date) string { return d.String() }

func local(t time.Time) time.Time { return t.In(worktime.BusinessLocation) }

func localPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	l := local(*t)
	return &l
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
