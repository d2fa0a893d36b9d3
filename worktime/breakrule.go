package worktime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TIME OF DAY - Clock reading with no date component
// =============================================================================

// TimeOfDay is seconds since local midnight, in [0, 24h].
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS". "24:00" is allowed as an end bound.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: time of day %q (use HH:MM)", ErrInvalidBreakRule, s)
	}
	var fields [3]int
	for i, p := range parts {
		n, ok := clockField(p)
		if !ok {
			return 0, fmt.Errorf("%w: time of day %q", ErrInvalidBreakRule, s)
		}
		fields[i] = n
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if m > 59 || sec > 59 {
		return 0, fmt.Errorf("%w: time of day %q out of range", ErrInvalidBreakRule, s)
	}
	tod := TimeOfDay(h*3600 + m*60 + sec)
	if tod > 24*3600 {
		return 0, fmt.Errorf("%w: time of day %q out of range", ErrInvalidBreakRule, s)
	}
	return tod, nil
}

// clockField parses one or two decimal digits, nothing else.
func clockField(p string) (int, bool) {
	if len(p) == 0 || len(p) > 2 {
		return 0, false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(p)
	return n, err == nil
}

func MustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}

func (t TimeOfDay) String() string {
	s := int(t)
	if s%60 != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/3600, s%3600/60)
}

// =============================================================================
// WEEKDAY SET
// =============================================================================

// WeekdaySet is a bitmask indexed by time.Weekday.
type WeekdaySet uint8

const (
	Weekdays WeekdaySet = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday
	Weekends WeekdaySet = 1<<time.Saturday | 1<<time.Sunday
	AllDays             = Weekdays | Weekends
)

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << d
	}
	return s
}

func (s WeekdaySet) Contains(d time.Weekday) bool { return s&(1<<d) != 0 }
func (s WeekdaySet) IsAll() bool { return s&AllDays == AllDays }

// Days lists the members, Sunday first.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekdaySet accepts "all", "weekdays", "weekends" or weekday names
// ("mon", "Monday", ...).
func ParseWeekdaySet(names []string) (WeekdaySet, error) {
	var s WeekdaySet
	for _, raw := range names {
		n := strings.ToLower(strings.TrimSpace(raw))
		switch n {
		case "all", "*":
			s |= AllDays
			continue
		case "weekdays":
			s |= Weekdays
			continue
		case "weekends":
			s |= Weekends
			continue
		}
		if len(n) >= 3 {
			if d, ok := weekdayNames[n[:3]]; ok {
				s |= 1 << d
				continue
			}
		}
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidBreakRule, raw)
	}
	return s, nil
}

// Names renders the set the way ParseWeekdaySet reads it.
func (s WeekdaySet) Names() []string {
	if s.IsAll() {
		return []string{"all"}
	}
	var out []string
	for _, d := range s.Days() {
		out = append(out, strings.ToLower(d.String()[:3]))
	}
	return out
}

// =============================================================================
// BREAK RULE & RULE SET
// =============================================================================

// BreakRule is a recurring break window [Start, End) on the days in AppliesOn.
// Overnight windows are not allowed.
type BreakRule struct {
	ID        string
	Name      string
	Start     TimeOfDay
	End       TimeOfDay
	AppliesOn WeekdaySet
}

func (r BreakRule) Validate() error {
	if r.Start < 0 || r.End > 24*3600 {
		return fmt.Errorf("%w: %s window out of range", ErrInvalidBreakRule, r.label())
	}
	if r.Start >= r.End {
		return fmt.Errorf("%w: %s start %s must be before end %s", ErrInvalidBreakRule, r.label(), r.Start, r.End)
	}
	if r.AppliesOn&AllDays == 0 {
		return fmt.Errorf("%w: %s applies on no day", ErrInvalidBreakRule, r.label())
	}
	return nil
}

func (r BreakRule) label() string {
	if r.Name != "" {
		return fmt.Sprintf("rule %q", r.Name)
	}
	return fmt.Sprintf("rule %s-%s", r.Start, r.End)
}

// AppliesTo reports whether the rule is active on the given date.
func (r BreakRule) AppliesTo(d Date) bool { return r.AppliesOn.Contains(d.Weekday()) }

// On resolves the window to absolute instants on d.
func (r BreakRule) On(d Date) Interval {
	return Interval{Start: d.At(r.Start), End: d.At(r.End)}
}

// RuleSet is the versioned set of break rules in effect at computation time.
// It is passed explicitly to every computation; nothing reads rules from
// ambient state.
type RuleSet struct {
	Version   int64
	Rules     []BreakRule
	UpdatedAt time.Time
}

func (rs RuleSet) Validate() error {
	for _, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BreaksOn returns the absolute break intervals of every rule applying on d,
// ordered by start.
func (rs RuleSet) BreaksOn(d Date) []Interval {
	var out []Interval
	for _, r := range rs.Rules {
		if r.AppliesTo(d) {
			out = append(out, r.On(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
