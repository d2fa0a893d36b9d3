/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every worktime persistence interface on one SQLite database.
  This is the default store for single-instance deployments and demos.

INTERFACES IMPLEMENTED:
  worktime.TxStore:         Attendance records + audit log, transactional
  worktime.BreakRuleAdmin:  Versioned break rule sets
  worktime.WorkRecordStore: Task-level work records
  worktime.RunStore:        Recalculation run history

KEY TABLES:
  attendance_records: One row per (user_id, work_date), optimistic version
  audit_log:          Append-only field corrections (no FK, survives deletes)
  rule_sets:          One row per rule-set version
  break_rules:        Rules of each version
  work_records:       Task time owned by the shop-floor subsystem
  recalculation_runs: Batch job bookkeeping

INDEXES:
  - idx_attendance_user_day (UNIQUE): Enforces one record per user per day
  - idx_attendance_open: Open-record lookups for clock-out and auto-close
  - idx_audit_attendance: History of one record
  - idx_work_records_user_day: Reconciliation hot path

TIMESTAMPS:
  Stored as RFC3339 text in the business zone (UTC+9). Instants are whole
  seconds, so text order is time order and round trips are lossless.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection: SQLite has
  one writer, and ":memory:" databases exist per connection.

USAGE:
  store, err := sqlite.New("./data/worktime.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := worktime.NewAttendanceLedger(store, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - worktime/store.go: Interface definitions
  - worktime/store/memory.go: In-memory implementation for testing
  - store/postgres: Same contracts on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/worktime-engine/worktime"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	clock worktime.Clock
}

var (
	_ worktime.TxStore         = (*Store)(nil)
	_ worktime.BreakRuleAdmin  = (*Store)(nil)
	_ worktime.WorkRecordStore = (*Store)(nil)
	_ worktime.RunStore        = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, clock: worktime.SystemClock{}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// SetClock sets the clock that stamps rule-set versions.
func (s *Store) SetClock(c worktime.Clock) {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Attendance (one row per user per business date)
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		clock_in TEXT NOT NULL,
		clock_out TEXT,
		work_minutes INTEGER NOT NULL DEFAULT 0,
		clock_in_device TEXT NOT NULL DEFAULT '',
		clock_out_device TEXT NOT NULL DEFAULT '',
		auto_closed INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_user_day
		ON attendance_records(user_id, work_date);
	CREATE INDEX IF NOT EXISTS idx_attendance_open
		ON attendance_records(user_id) WHERE clock_out IS NULL;
	CREATE INDEX IF NOT EXISTS idx_attendance_day
		ON attendance_records(work_date);

	-- Audit log (append-only; no FK so entries outlive deleted records)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		attendance_id TEXT NOT NULL,
		field_name TEXT NOT NULL CHECK (field_name IN ('clockIn', 'clockOut')),
		old_value TEXT,
		new_value TEXT NOT NULL,
		editor_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_attendance
		ON audit_log(attendance_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_editor
		ON audit_log(editor_id);

	-- Break rules (versioned sets, highest version is active)
	CREATE TABLE IF NOT EXISTS rule_sets (
		version INTEGER PRIMARY KEY,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS break_rules (
		version INTEGER NOT NULL REFERENCES rule_sets(version),
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		start_seconds INTEGER NOT NULL,
		end_seconds INTEGER NOT NULL,
		applies_on INTEGER NOT NULL,
		PRIMARY KEY (version, position)
	);

	-- Work records (owned by the shop-floor subsystem)
	CREATE TABLE IF NOT EXISTS work_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL DEFAULT '',
		process_id TEXT NOT NULL DEFAULT '',
		work_date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_work_records_user_day
		ON work_records(user_id, work_date);
	CREATE INDEX IF NOT EXISTS idx_work_records_day
		ON work_records(work_date);

	-- Recalculation runs
	CREATE TABLE IF NOT EXISTS recalculation_runs (
		id TEXT PRIMARY KEY,
		rule_set_version INTEGER NOT NULL,
		status TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		error_details_json TEXT NOT NULL DEFAULT '[]',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_recalculation_runs_started
		ON recalculation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ATTENDANCE + AUDIT (worktime.Store interface)
// =============================================================================

func (s *Store) CreateAttendance(ctx context.Context, rec worktime.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.CreateAttendance(ctx, rec)
}

func (s *Store) GetAttendance(ctx context.Context, id string) (worktime.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.GetAttendance(ctx, id)
}

func (s *Store) FindOpenAttendance(ctx context.Context, userID string) (*worktime.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.FindOpenAttendance(ctx, userID)
}

func (s *Store) FindAttendanceByDate(ctx context.Context, userID string, date worktime.Date) (*worktime.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.FindAttendanceByDate(ctx, userID, date)
}

func (s *Store) UpdateAttendance(ctx context.Context, rec worktime.AttendanceRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.UpdateAttendance(ctx, rec, expectedVersion)
}

func (s *Store) DeleteAttendance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.DeleteAttendance(ctx, id)
}

func (s *Store) ListOpenAttendance(ctx context.Context) ([]worktime.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListOpenAttendance(ctx)
}

func (s *Store) ListClosedAttendanceIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListClosedAttendanceIDs(ctx)
}

func (s *Store) ListAttendanceByDate(ctx context.Context, date worktime.Date) ([]worktime.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListAttendanceByDate(ctx, date)
}

func (s *Store) ListAttendanceRange(ctx context.Context, userID string, from, to worktime.Date) ([]worktime.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListAttendanceRange(ctx, userID, from, to)
}

// AppendAudit writes all entries in one transaction.
func (s *Store) AppendAudit(ctx context.Context, entries ...worktime.AuditLogEntry) error {
	return s.WithTx(ctx, func(st worktime.Store) error {
		return st.AppendAudit(ctx, entries...)
	})
}

func (s *Store) ListAudit(ctx context.Context, filter worktime.AuditFilter) ([]worktime.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.ListAudit(ctx, filter)
}

// =============================================================================
// TRANSACTIONAL STORE (worktime.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store worktime.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// queries runs the attendance and audit statements against a db or a tx.
type queries struct {
	q querier
}

const attendanceColumns = `id, user_id, work_date, clock_in, clock_out, work_minutes,
	clock_in_device, clock_out_device, auto_closed, version, created_at, updated_at`

func (qs queries) CreateAttendance(ctx context.Context, rec worktime.AttendanceRecord) error {
	query := `INSERT INTO attendance_records (` + attendanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := qs.q.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Date.String(),
		formatTime(rec.ClockIn),
		formatTimePtr(rec.ClockOut),
		rec.WorkMinutes,
		rec.ClockInDevice,
		rec.ClockOutDevice,
		rec.AutoClosed,
		rec.Version,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &worktime.DuplicateDayError{UserID: rec.UserID, Date: rec.Date}
		}
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

func (qs queries) GetAttendance(ctx context.Context, id string) (worktime.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = ?`
	rec, err := scanAttendance(qs.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return worktime.AttendanceRecord{}, &worktime.NotFoundError{AttendanceID: id}
	}
	return rec, err
}

func (qs queries) FindOpenAttendance(ctx context.Context, userID string) (*worktime.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
		WHERE user_id = ? AND clock_out IS NULL
		ORDER BY clock_in ASC LIMIT 1`
	return qs.findOne(ctx, query, userID)
}

func (qs queries) FindAttendanceByDate(ctx context.Context, userID string, date worktime.Date) (*worktime.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
		WHERE user_id = ? AND work_date = ?`
	return qs.findOne(ctx, query, userID, date.String())
}

func (qs queries) findOne(ctx context.Context, query string, args ...any) (*worktime.AttendanceRecord, error) {
	rec, err := scanAttendance(qs.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (qs queries) UpdateAttendance(ctx context.Context, rec worktime.AttendanceRecord, expectedVersion int64) error {
	query := `
		UPDATE attendance_records SET
			work_date = ?, clock_in = ?, clock_out = ?, work_minutes = ?,
			clock_in_device = ?, clock_out_device = ?, auto_closed = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := qs.q.ExecContext(ctx, query,
		rec.Date.String(),
		formatTime(rec.ClockIn),
		formatTimePtr(rec.ClockOut),
		rec.WorkMinutes,
		rec.ClockInDevice,
		rec.ClockOutDevice,
		rec.AutoClosed,
		rec.Version,
		formatTime(rec.UpdatedAt),
		rec.ID,
		expectedVersion,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &worktime.DuplicateDayError{UserID: rec.UserID, Date: rec.Date}
		}
		return fmt.Errorf("failed to update attendance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var actual int64
	err = qs.q.QueryRowContext(ctx, `SELECT version FROM attendance_records WHERE id = ?`, rec.ID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
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
	res, err := qs.q.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &worktime.NotFoundError{AttendanceID: id}
	}
	return nil
}

func (qs queries) ListOpenAttendance(ctx context.Context) ([]worktime.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
		WHERE clock_out IS NULL
		ORDER BY work_date ASC, user_id ASC`
	return qs.queryAttendance(ctx, query)
}

func (qs queries) ListClosedAttendanceIDs(ctx context.Context) ([]string, error) {
	rows, err := qs.q.QueryContext(ctx, `
		SELECT id FROM attendance_records
		WHERE clock_out IS NOT NULL
		ORDER BY work_date ASC, user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (qs queries) ListAttendanceByDate(ctx context.Context, date worktime.Date) ([]worktime.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
		WHERE work_date = ?
		ORDER BY user_id ASC`
	return qs.queryAttendance(ctx, query, date.String())
}

func (qs queries) ListAttendanceRange(ctx context.Context, userID string, from, to worktime.Date) ([]worktime.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records
		WHERE user_id = ? AND work_date >= ? AND work_date <= ?
		ORDER BY work_date ASC`
	return qs.queryAttendance(ctx, query, userID, from.String(), to.String())
}

func (qs queries) queryAttendance(ctx context.Context, query string, args ...any) ([]worktime.AttendanceRecord, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
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

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row scanner) (worktime.AttendanceRecord, error) {
	var (
		rec                  worktime.AttendanceRecord
		workDate, clockIn    string
		clockOut             sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&rec.ID, &rec.UserID, &workDate, &clockIn, &clockOut, &rec.WorkMinutes,
		&rec.ClockInDevice, &rec.ClockOutDevice, &rec.AutoClosed, &rec.Version,
		&createdAt, &updatedAt,
	); err != nil {
		return worktime.AttendanceRecord{}, err
	}

	var err error
	if rec.Date, err = worktime.ParseDate(workDate); err != nil {
		return worktime.AttendanceRecord{}, fmt.Errorf("attendance %s: %w", rec.ID, err)
	}
	if rec.ClockIn, err = parseTime(clockIn); err != nil {
		return worktime.AttendanceRecord{}, fmt.Errorf("attendance %s clock_in: %w", rec.ID, err)
	}
	if rec.ClockOut, err = parseTimePtr(clockOut); err != nil {
		return worktime.AttendanceRecord{}, fmt.Errorf("attendance %s clock_out: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return worktime.AttendanceRecord{}, fmt.Errorf("attendance %s created_at: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return worktime.AttendanceRecord{}, fmt.Errorf("attendance %s updated_at: %w", rec.ID, err)
	}
	return rec, nil
}

func (qs queries) AppendAudit(ctx context.Context, entries ...worktime.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (id, attendance_id, field_name, old_value, new_value, editor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, err := qs.q.ExecContext(ctx, query,
			e.ID,
			e.AttendanceID,
			string(e.Field),
			formatTimePtr(e.OldValue),
			formatTime(e.NewValue),
			e.EditorID,
			formatTime(e.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}
	return nil
}

func (qs queries) ListAudit(ctx context.Context, filter worktime.AuditFilter) ([]worktime.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.AttendanceID != "" {
		where = append(where, "attendance_id = ?")
		args = append(args, filter.AttendanceID)
	}
	if filter.EditorID != "" {
		where = append(where, "editor_id = ?")
		args = append(args, filter.EditorID)
	}
	if filter.Field != "" {
		where = append(where, "field_name = ?")
		args = append(args, string(filter.Field))
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := `SELECT id, attendance_id, field_name, old_value, new_value, editor_id, created_at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []worktime.AuditLogEntry
	for rows.Next() {
		var (
			e                          worktime.AuditLogEntry
			field, newValue, createdAt string
			oldValue                   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AttendanceID, &field, &oldValue, &newValue, &e.EditorID, &createdAt); err != nil {
			return nil, err
		}
		e.Field = worktime.FieldName(field)
		if e.OldValue, err = parseTimePtr(oldValue); err != nil {
			return nil, fmt.Errorf("audit %s old_value: %w", e.ID, err)
		}
		if e.NewValue, err = parseTime(newValue); err != nil {
			return nil, fmt.Errorf("audit %s new_value: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("audit %s created_at: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// BREAK RULES (worktime.BreakRuleAdmin interface)
// =============================================================================

// ActiveRuleSet returns the highest version. An empty database yields version 0.
func (s *Store) ActiveRuleSet(ctx context.Context) (worktime.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rs        worktime.RuleSet
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, updated_at FROM rule_sets ORDER BY version DESC LIMIT 1`,
	).Scan(&rs.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return worktime.RuleSet{}, nil
	}
	if err != nil {
		return worktime.RuleSet{}, err
	}
	if rs.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return worktime.RuleSet{}, fmt.Errorf("rule set %d: %w", rs.Version, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_seconds, end_seconds, applies_on
		FROM break_rules WHERE version = ?
		ORDER BY position ASC`, rs.Version)
	if err != nil {
		return worktime.RuleSet{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r          worktime.BreakRule
			start, end int
			days       int
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

// SaveRuleSet stores rules as the next version. Older versions are kept.
func (s *Store) SaveRuleSet(ctx context.Context, rules []worktime.BreakRule) (worktime.RuleSet, error) {
	rs := worktime.RuleSet{Rules: append([]worktime.BreakRule(nil), rules...)}
	if err := rs.Validate(); err != nil {
		return worktime.RuleSet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return worktime.RuleSet{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := sqlTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM rule_sets`).Scan(&rs.Version); err != nil {
		return worktime.RuleSet{}, err
	}
	rs.UpdatedAt = s.clock.Now().Truncate(time.Second).In(worktime.BusinessLocation)

	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO rule_sets (version, updated_at) VALUES (?, ?)`,
		rs.Version, formatTime(rs.UpdatedAt)); err != nil {
		return worktime.RuleSet{}, fmt.Errorf("failed to insert rule set: %w", err)
	}
	for i, r := range rs.Rules {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO break_rules (version, position, id, name, start_seconds, end_seconds, applies_on)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rs.Version, i, r.ID, r.Name, int(r.Start), int(r.End), int(r.AppliesOn)); err != nil {
			return worktime.RuleSet{}, fmt.Errorf("failed to insert break rule: %w", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return worktime.RuleSet{}, err
	}
	return rs, nil
}

// =============================================================================
// WORK RECORDS (worktime.WorkRecordStore interface)
// =============================================================================

func (s *Store) SaveWorkRecord(ctx context.Context, w worktime.WorkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO work_records (id, user_id, vehicle_id, process_id, work_date, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			vehicle_id = excluded.vehicle_id,
			process_id = excluded.process_id,
			work_date = excluded.work_date,
			start_time = excluded.start_time,
			end_time = excluded.end_time
	`
	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.VehicleID, w.ProcessID,
		worktime.DateOf(w.StartTime).String(),
		formatTime(w.StartTime),
		formatTimePtr(w.EndTime),
	)
	if err != nil {
		return fmt.Errorf("failed to save work record: %w", err)
	}
	return nil
}

func (s *Store) ListWorkRecords(ctx context.Context, userID string, date worktime.Date) ([]worktime.WorkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, vehicle_id, process_id, start_time, end_time
		FROM work_records
		WHERE user_id = ? AND work_date = ?
		ORDER BY start_time ASC`, userID, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []worktime.WorkRecord
	for rows.Next() {
		var (
			w     worktime.WorkRecord
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.VehicleID, &w.ProcessID, &start, &end); err != nil {
			return nil, err
		}
		if w.StartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("work record %s start_time: %w", w.ID, err)
		}
		if w.EndTime, err = parseTimePtr(end); err != nil {
			return nil, fmt.Errorf("work record %s end_time: %w", w.ID, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) ListWorkRecordUsers(ctx context.Context, date worktime.Date) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM work_records WHERE work_date = ? ORDER BY user_id ASC`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// RECALCULATION RUNS (worktime.RunStore interface)
// =============================================================================

// SaveRecalculationRun saves a recalculation run.
func (s *Store) SaveRecalculationRun(ctx context.Context, r worktime.RecalculationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	details, err := json.Marshal(nonNilDetails(r.ErrorDetails))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recalculation_runs (id, rule_set_version, status, total, updated, errors,
			error_details_json, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			updated = excluded.updated,
			errors = excluded.errors,
			error_details_json = excluded.error_details_json,
			completed_at = excluded.completed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.RuleSetVersion, string(r.Status), r.Total, r.Updated, r.Errors,
		string(details), formatTime(r.StartedAt), formatTimePtr(r.CompletedAt),
	)
	return err
}

// ListRecalculationRuns returns recalculation runs, newest first.
func (s *Store) ListRecalculationRuns(ctx context.Context, limit int) ([]worktime.RecalculationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, rule_set_version, status, total, updated, errors,
			error_details_json, started_at, completed_at
		FROM recalculation_runs
		ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []worktime.RecalculationRun
	for rows.Next() {
		var (
			r                  worktime.RecalculationRun
			status, detailsRaw string
			startedAt          string
			completedAt        sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RuleSetVersion, &status, &r.Total, &r.Updated, &r.Errors,
			&detailsRaw, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Status = worktime.RunStatus(status)
		if err := json.Unmarshal([]byte(detailsRaw), &r.ErrorDetails); err != nil {
			return nil, fmt.Errorf("run %s error details: %w", r.ID, err)
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", r.ID, err)
		}
		if r.CompletedAt, err = parseTimePtr(completedAt); err != nil {
			return nil, fmt.Errorf("run %s completed_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset clears all tables. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_log", "attendance_records", "break_rules", "rule_sets", "work_records", "recalculation_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.In(worktime.BusinessLocation).Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t.In(worktime.BusinessLocation), nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nonNilDetails(d []worktime.RecordError) []worktime.RecordError {
	if d == nil {
		return []worktime.RecordError{}
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
