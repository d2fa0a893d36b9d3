package worktime

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// BUSINESS TIME - Fixed UTC+9 zone, independent of server locale
// =============================================================================

// BusinessLocation is the zone every business date and cutoff is computed in.
var BusinessLocation = time.FixedZone("UTC+9", 9*60*60)

// DayCutoffTime is the local time at which still-open records are force-closed.
const DayCutoffTime TimeOfDay = 23*3600 + 59*60

// Date is a calendar date in the business zone. Comparable, usable as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 12, 0, 0, 0, BusinessLocation))
}

// DateOf returns the business date an instant falls on.
func DateOf(t time.Time) Date {
	y, m, d := t.In(BusinessLocation).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation("2006-01-02", s, BusinessLocation)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// ParseInstant accepts RFC3339 with an offset, or a bare local
// "2006-01-02T15:04:05" read in the business zone.
func ParseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, BusinessLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q (use ISO-8601, e.g. 2024-03-04T08:00:00+09:00)", ErrInvalidInput, s)
	}
	return t, nil
}

// Midnight returns 00:00:00 of the date in the business zone.
func (d Date) Midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, BusinessLocation)
}

// At resolves a time-of-day on this date to an absolute instant.
func (d Date) At(tod TimeOfDay) time.Time {
	return d.Midnight().Add(time.Duration(tod) * time.Second)
}

func (d Date) Weekday() time.Weekday { return d.Midnight().Weekday() }
func (d Date) AddDays(n int) Date { return DateOf(d.Midnight().AddDate(0, 0, n).Add(12 * time.Hour)) }
func (d Date) Before(other Date) bool { return d.Midnight().Before(other.Midnight()) }
func (d Date) After(other Date) bool { return d.Midnight().After(other.Midnight()) }
func (d Date) IsZero() bool { return d == Date{} }
func (d Date) String() string { return d.Midnight().Format("2006-01-02") }
func (d Date) Cutoff() time.Time { return d.At(DayCutoffTime) }

// =============================================================================
// CLOCK - The single source of "now"
// =============================================================================

// Clock returns the current instant. All "today" logic goes through it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// ManualClock is a settable clock for tests and demo scenarios.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock { return &ManualClock{now: t} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// normalizeInstant drops the monotonic reading and sub-second precision so a
// stored timestamp recomputes to the same minutes after any storage round trip.
func normalizeInstant(t time.Time) time.Time {
	return t.Round(0).Truncate(time.Second).In(BusinessLocation)
}

// wholeMinutes truncates to whole seconds, then to whole minutes.
func wholeMinutes(d time.Duration) int {
	return int(int64(d/time.Second) / 60)
}
