/*
store.go - Persistence interfaces for attendance, audit, rules and runs

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  never talks SQL; it talks to these interfaces. SQLite, PostgreSQL and
  in-memory implementations satisfy the same contracts.

KEY INTERFACES:
  Store:            Attendance records + audit entries
  TxStore:          Store with atomic multi-write transactions
  BreakRuleStore:   Read side of the active rule set
  BreakRuleAdmin:   Versioned rule-set replacement (admin workflow)
  WorkRecordSource: Task-level time owned by another subsystem
  RunStore:         Recalculation run bookkeeping

CONTRACTS:
  - At most one attendance record per (user, date). CreateAttendance
    returns a DuplicateDayError when the pair is taken.
  - UpdateAttendance is a compare-and-swap on Version. A stale version
    returns ConcurrentModificationError and writes nothing.
  - Audit entries are append-only. There is no update or delete.
  - DeleteAttendance removes the record only; its audit entries stay.

IMPLEMENTATIONS:
  - worktime/store/memory.go: In-memory for tests and demos
  - store/sqlite: Default embedded persistence
  - store/postgres: pgx-backed persistence for shared deployments

SEE ALSO:
  - ledger.go: Writes through TxStore
  - recalc.go: Reads closed IDs, writes per record
*/
package worktime

import "context"

// =============================================================================
// ATTENDANCE + AUDIT
// =============================================================================

type AttendanceStore interface {
	CreateAttendance(ctx context.Context, rec AttendanceRecord) error

	// GetAttendance returns a NotFoundError for unknown ids.
	GetAttendance(ctx context.Context, id string) (AttendanceRecord, error)

	// FindOpenAttendance returns nil, nil when the user has no open record.
	FindOpenAttendance(ctx context.Context, userID string) (*AttendanceRecord, error)

	// FindAttendanceByDate returns nil, nil when the user has no record that day.
	FindAttendanceByDate(ctx context.Context, userID string, date Date) (*AttendanceRecord, error)

	// UpdateAttendance writes rec only if the stored version equals expectedVersion.
	// rec.Version carries the new version.
	UpdateAttendance(ctx context.Context, rec AttendanceRecord, expectedVersion int64) error

	DeleteAttendance(ctx context.Context, id string) error

	ListOpenAttendance(ctx context.Context) ([]AttendanceRecord, error)
	ListClosedAttendanceIDs(ctx context.Context) ([]string, error)
	ListAttendanceByDate(ctx context.Context, date Date) ([]AttendanceRecord, error)

	// ListAttendanceRange returns the user's records with from <= date <= to, ordered by date.
	ListAttendanceRange(ctx context.Context, userID string, from, to Date) ([]AttendanceRecord, error)
}

type AuditStore interface {
	// AppendAudit persists entries in order. All or nothing inside a transaction.
	AppendAudit(ctx context.Context, entries ...AuditLogEntry) error

	// ListAudit returns matching entries ordered by CreatedAt, then insertion.
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditLogEntry, error)
}

type Store interface {
	AttendanceStore
	AuditStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// BREAK RULES
// =============================================================================

type BreakRuleStore interface {
	// ActiveRuleSet returns the rule set in effect now. Version 0 with no
	// rules means nothing has been configured yet.
	ActiveRuleSet(ctx context.Context) (RuleSet, error)
}

// BreakRuleAdmin replaces the whole rule set and assigns the next version.
// Existing records are not touched; recomputation is always explicit.
type BreakRuleAdmin interface {
	BreakRuleStore
	SaveRuleSet(ctx context.Context, rules []BreakRule) (RuleSet, error)
}

// =============================================================================
// WORK RECORDS - Read-only from the engine's side
// =============================================================================

type WorkRecordSource interface {
	// ListWorkRecords returns the user's work records starting on date.
	ListWorkRecords(ctx context.Context, userID string, date Date) ([]WorkRecord, error)

	// ListWorkRecordUsers returns every user with a work record starting on date.
	ListWorkRecordUsers(ctx context.Context, date Date) ([]string, error)
}

// WorkRecordStore is the writable form used by demos, imports and tests.
type WorkRecordStore interface {
	WorkRecordSource
	SaveWorkRecord(ctx context.Context, rec WorkRecord) error
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

type RunStore interface {
	// SaveRecalculationRun inserts or replaces the run by ID.
	SaveRecalculationRun(ctx context.Context, run RecalculationRun) error

	// ListRecalculationRuns returns the most recent runs first. limit <= 0 means all.
	ListRecalculationRuns(ctx context.Context, limit int) ([]RecalculationRun, error)
}
