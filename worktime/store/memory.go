// Package store provides in-process implementations of the worktime store interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/worktime-engine/worktime"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements worktime.TxStore, BreakRuleAdmin, WorkRecordStore and
// RunStore. Every value is copied in and out so callers never share state
// with the store.
type Memory struct {
	mu    sync.RWMutex
	d     *data
	clock worktime.Clock
}

func NewMemory() *Memory {
	return &Memory{d: newData(), clock: worktime.SystemClock{}}
}

// SetClock sets the clock that stamps rule-set versions.
func (m *Memory) SetClock(c worktime.Clock) {
	m.mu.Lock()
	m.clock = c
	m.mu.Unlock()
}

var (
	_ worktime.TxStore         = (*Memory)(nil)
	_ worktime.BreakRuleAdmin  = (*Memory)(nil)
	_ worktime.WorkRecordStore = (*Memory)(nil)
	_ worktime.RunStore        = (*Memory)(nil)
)

func (m *Memory) CreateAttendance(ctx context.Context, rec worktime.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateAttendance(ctx, rec)
}

func (m *Memory) GetAttendance(ctx context.Context, id string) (worktime.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetAttendance(ctx, id)
}

func (m *Memory) FindOpenAttendance(ctx context.Context, userID string) (*worktime.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.FindOpenAttendance(ctx, userID)
}

func (m *Memory) FindAttendanceByDate(ctx context.Context, userID string, date worktime.Date) (*worktime.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.FindAttendanceByDate(ctx, userID, date)
}

func (m *Memory) UpdateAttendance(ctx context.Context, rec worktime.AttendanceRecord, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateAttendance(ctx, rec, expectedVersion)
}

func (m *Memory) DeleteAttendance(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.DeleteAttendance(ctx, id)
}

func (m *Memory) ListOpenAttendance(ctx context.Context) ([]worktime.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListOpenAttendance(ctx)
}

func (m *Memory) ListClosedAttendanceIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListClosedAttendanceIDs(ctx)
}

func (m *Memory) ListAttendanceByDate(ctx context.Context, date worktime.Date) ([]worktime.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListAttendanceByDate(ctx, date)
}

func (m *Memory) ListAttendanceRange(ctx context.Context, userID string, from, to worktime.Date) ([]worktime.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListAttendanceRange(ctx, userID, from, to)
}

func (m *Memory) AppendAudit(ctx context.Context, entries ...worktime.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.AppendAudit(ctx, entries...)
}

func (m *Memory) ListAudit(ctx context.Context, filter worktime.AuditFilter) ([]worktime.AuditLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListAudit(ctx, filter)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// fn must only use the Store it is given; calling back into m deadlocks.
func (m *Memory) WithTx(_ context.Context, fn func(worktime.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

// =============================================================================
// BREAK RULES
// =============================================================================

func (m *Memory) ActiveRuleSet(_ context.Context) (worktime.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.d.rules
	rs.Rules = append([]worktime.BreakRule(nil), rs.Rules...)
	return rs, nil
}

func (m *Memory) SaveRuleSet(_ context.Context, rules []worktime.BreakRule) (worktime.RuleSet, error) {
	rs := worktime.RuleSet{Rules: append([]worktime.BreakRule(nil), rules...)}
	if err := rs.Validate(); err != nil {
		return worktime.RuleSet{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rs.Version = m.d.rules.Version + 1
	rs.UpdatedAt = m.clock.Now().Truncate(time.Second).In(worktime.BusinessLocation)
	m.d.rules = rs
	return rs, nil
}

// =============================================================================
// WORK RECORDS
// =============================================================================

func (m *Memory) SaveWorkRecord(_ context.Context, rec worktime.WorkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.EndTime != nil {
		t := *rec.EndTime
		rec.EndTime = &t
	}
	m.d.work[rec.ID] = rec
	return nil
}

func (m *Memory) ListWorkRecords(_ context.Context, userID string, date worktime.Date) ([]worktime.WorkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []worktime.WorkRecord
	for _, w := range m.d.work {
		if w.UserID == userID && worktime.DateOf(w.StartTime) == date {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *Memory) ListWorkRecordUsers(_ context.Context, date worktime.Date) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, w := range m.d.work {
		if worktime.DateOf(w.StartTime) == date && !seen[w.UserID] {
			seen[w.UserID] = true
			out = append(out, w.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

func (m *Memory) SaveRecalculationRun(_ context.Context, run worktime.RecalculationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ErrorDetails = append([]worktime.RecordError(nil), run.ErrorDetails...)
	if _, ok := m.d.runs[run.ID]; !ok {
		m.d.runOrder = append(m.d.runOrder, run.ID)
	}
	m.d.runs[run.ID] = run
	return nil
}

func (m *Memory) ListRecalculationRuns(_ context.Context, limit int) ([]worktime.RecalculationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []worktime.RecalculationRun
	for i := len(m.d.runOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.d.runs[m.d.runOrder[i]])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error { return nil }

// Reset drops everything, rule sets included.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d = newData()
	return nil
}

// =============================================================================
// DATA - Unlocked state, also the transactional view
// =============================================================================

type dayKey struct {
	userID string
	date   worktime.Date
}

type data struct {
	records  map[string]worktime.AttendanceRecord
	byDay    map[dayKey]string
	audit    []worktime.AuditLogEntry
	rules    worktime.RuleSet
	work     map[string]worktime.WorkRecord
	runs     map[string]worktime.RecalculationRun
	runOrder []string
}

func newData() *data {
	return &data{
		records: make(map[string]worktime.AttendanceRecord),
		byDay:   make(map[dayKey]string),
		work:    make(map[string]worktime.WorkRecord),
		runs:    make(map[string]worktime.RecalculationRun),
	}
}

// clone copies what a transaction can write: attendance and audit.
func (d *data) clone() *data {
	c := *d
	c.records = make(map[string]worktime.AttendanceRecord, len(d.records))
	for k, v := range d.records {
		c.records[k] = v.Clone()
	}
	c.byDay = make(map[dayKey]string, len(d.byDay))
	for k, v := range d.byDay {
		c.byDay[k] = v
	}
	c.audit = append([]worktime.AuditLogEntry(nil), d.audit...)
	return &c
}

func (d *data) CreateAttendance(_ context.Context, rec worktime.AttendanceRecord) error {
	k := dayKey{userID: rec.UserID, date: rec.Date}
	if existing, ok := d.byDay[k]; ok {
		return &worktime.DuplicateDayError{UserID: rec.UserID, Date: rec.Date, ExistingID: existing}
	}
	d.records[rec.ID] = rec.Clone()
	d.byDay[k] = rec.ID
	return nil
}

func (d *data) GetAttendance(_ context.Context, id string) (worktime.AttendanceRecord, error) {
	rec, ok := d.records[id]
	if !ok {
		return worktime.AttendanceRecord{}, &worktime.NotFoundError{AttendanceID: id}
	}
	return rec.Clone(), nil
}

func (d *data) FindOpenAttendance(_ context.Context, userID string) (*worktime.AttendanceRecord, error) {
	var found *worktime.AttendanceRecord
	for _, rec := range d.records {
		if rec.UserID == userID && rec.IsOpen() {
			if found == nil || rec.ClockIn.Before(found.ClockIn) {
				c := rec.Clone()
				found = &c
			}
		}
	}
	return found, nil
}

func (d *data) FindAttendanceByDate(_ context.Context, userID string, date worktime.Date) (*worktime.AttendanceRecord, error) {
	id, ok := d.byDay[dayKey{userID: userID, date: date}]
	if !ok {
		return nil, nil
	}
	c := d.records[id].Clone()
	return &c, nil
}

func (d *data) UpdateAttendance(_ context.Context, rec worktime.AttendanceRecord, expectedVersion int64) error {
	cur, ok := d.records[rec.ID]
	if !ok {
		return &worktime.NotFoundError{AttendanceID: rec.ID}
	}
	if cur.Version != expectedVersion {
		return &worktime.ConcurrentModificationError{
			AttendanceID:    rec.ID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   cur.Version,
		}
	}
	if cur.Date != rec.Date {
		k := dayKey{userID: rec.UserID, date: rec.Date}
		if other, taken := d.byDay[k]; taken && other != rec.ID {
			return &worktime.DuplicateDayError{UserID: rec.UserID, Date: rec.Date, ExistingID: other}
		}
		delete(d.byDay, dayKey{userID: cur.UserID, date: cur.Date})
		d.byDay[k] = rec.ID
	}
	d.records[rec.ID] = rec.Clone()
	return nil
}

func (d *data) DeleteAttendance(_ context.Context, id string) error {
	cur, ok := d.records[id]
	if !ok {
		return &worktime.NotFoundError{AttendanceID: id}
	}
	delete(d.records, id)
	delete(d.byDay, dayKey{userID: cur.UserID, date: cur.Date})
	return nil
}

func (d *data) ListOpenAttendance(_ context.Context) ([]worktime.AttendanceRecord, error) {
	var out []worktime.AttendanceRecord
	for _, rec := range d.records {
		if rec.IsOpen() {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

func (d *data) ListClosedAttendanceIDs(_ context.Context) ([]string, error) {
	var closed []worktime.AttendanceRecord
	for _, rec := range d.records {
		if !rec.IsOpen() {
			closed = append(closed, rec)
		}
	}
	sortRecords(closed)
	ids := make([]string, len(closed))
	for i, rec := range closed {
		ids[i] = rec.ID
	}
	return ids, nil
}

func (d *data) ListAttendanceByDate(_ context.Context, date worktime.Date) ([]worktime.AttendanceRecord, error) {
	var out []worktime.AttendanceRecord
	for _, rec := range d.records {
		if rec.Date == date {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

func (d *data) ListAttendanceRange(_ context.Context, userID string, from, to worktime.Date) ([]worktime.AttendanceRecord, error) {
	var out []worktime.AttendanceRecord
	for _, rec := range d.records {
		if rec.UserID == userID && !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

func (d *data) AppendAudit(_ context.Context, entries ...worktime.AuditLogEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.OldValue != nil {
			t := *e.OldValue
			e.OldValue = &t
		}
		d.audit = append(d.audit, e)
	}
	return nil
}

func (d *data) ListAudit(_ context.Context, filter worktime.AuditFilter) ([]worktime.AuditLogEntry, error) {
	var out []worktime.AuditLogEntry
	for _, e := range d.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// sortRecords orders by date, then user, then clock-in.
func sortRecords(recs []worktime.AttendanceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.ClockIn.Before(b.ClockIn)
	})
}
