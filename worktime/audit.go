package worktime

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// AUDIT LOG - Append-only history of field-level corrections
// =============================================================================

// FieldName is the closed set of attendance fields an edit can touch.
type FieldName string

const (
	FieldClockIn  FieldName = "clockIn"
	FieldClockOut FieldName = "clockOut"
)

func (f FieldName) Valid() bool { return f == FieldClockIn || f == FieldClockOut }

// ParseFieldName rejects anything outside the closed set.
func ParseFieldName(s string) (FieldName, error) {
	f := FieldName(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidField, s, FieldClockIn, FieldClockOut)
	}
	return f, nil
}

// AuditLogEntry records one changed field of one edit.
// Entries are never updated or removed once written.
type AuditLogEntry struct {
	ID           string
	AttendanceID string
	Field        FieldName
	OldValue     *time.Time // nil when the field was empty (auto-close)
	NewValue     time.Time
	EditorID     string
	CreatedAt    time.Time
}

func (e AuditLogEntry) Validate() error {
	if e.AttendanceID == "" || e.EditorID == "" {
		return fmt.Errorf("%w: audit entry needs attendance and editor", ErrInvalidInput)
	}
	if !e.Field.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidField, e.Field)
	}
	return nil
}

type AuditFilter struct {
	AttendanceID string
	EditorID     string
	Field        FieldName
	From         *time.Time
	To           *time.Time
	Limit        int
}

// Matches applies the filter in memory; SQL stores translate it to WHERE clauses.
func (f AuditFilter) Matches(e AuditLogEntry) bool {
	if f.AttendanceID != "" && e.AttendanceID != f.AttendanceID {
		return false
	}
	if f.EditorID != "" && e.EditorID != f.EditorID {
		return false
	}
	if f.Field != "" && e.Field != f.Field {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// AuditLog is the read side of the audit trail. Writes happen inside the
// ledger's transactions so an entry never exists without its record change.
type AuditLog struct {
	store AuditStore
}

func NewAuditLog(store AuditStore) *AuditLog {
	return &AuditLog{store: store}
}

// History returns every entry for one attendance record, oldest first.
func (a *AuditLog) History(ctx context.Context, attendanceID string) ([]AuditLogEntry, error) {
	if attendanceID == "" {
		return nil, fmt.Errorf("%w: attendance id is required", ErrInvalidInput)
	}
	return a.store.ListAudit(ctx, AuditFilter{AttendanceID: attendanceID})
}

func (a *AuditLog) Query(ctx context.Context, filter AuditFilter) ([]AuditLogEntry, error) {
	if filter.Field != "" && !filter.Field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, filter.Field)
	}
	return a.store.ListAudit(ctx, filter)
}
