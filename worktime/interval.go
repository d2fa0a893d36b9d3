package worktime

import (
	"sort"
	"time"
)

// =============================================================================
// INTERVAL - Half-open [Start, End) span of absolute time
// =============================================================================

type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration {
	if !iv.End.After(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

func (iv Interval) IsEmpty() bool { return !iv.End.After(iv.Start) }

// Intersect returns the overlap of two intervals, empty if they are disjoint.
func (iv Interval) Intersect(other Interval) Interval {
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return Interval{Start: start, End: start}
	}
	return Interval{Start: start, End: end}
}

// MergeIntervals returns the union of ivs as disjoint intervals ordered by
// start. Overlapping or touching intervals are coalesced, so overlapping break
// rules are never counted twice. O(n log n).
func MergeIntervals(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.IsEmpty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var merged []Interval
	for _, iv := range sorted {
		n := len(merged)
		if n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// OverlapDuration is the total time worked shares with the union of breaks.
func OverlapDuration(worked Interval, breaks []Interval) time.Duration {
	var total time.Duration
	for _, b := range MergeIntervals(breaks) {
		total += worked.Intersect(b).Duration()
	}
	return total
}

// =============================================================================
// WORK MINUTES
// =============================================================================

// WorkComputation is the breakdown of one worked interval.
type WorkComputation struct {
	GrossMinutes   int
	BreakMinutes   int
	WorkMinutes    int
	RuleSetVersion int64
}

// ComputeWorkMinutes returns gross minus break overlap for [clockIn, clockOut).
//
// Only rules for clockIn's business date are resolved, even when clockOut
// falls on the following date. This overnight behaviour is kept deliberately
// as the observed policy; see DESIGN.md.
//
// Gross and overlap are each truncated to whole seconds and then whole
// minutes, and the result is clamped at zero.
func ComputeWorkMinutes(clockIn, clockOut time.Time, rules RuleSet) (WorkComputation, error) {
	if !clockOut.After(clockIn) {
		return WorkComputation{}, &InvalidOrderError{ClockIn: clockIn, ClockOut: clockOut}
	}

	worked := Interval{Start: clockIn, End: clockOut}
	breaks := rules.BreaksOn(DateOf(clockIn))

	gross := wholeMinutes(worked.Duration())
	overlap := wholeMinutes(OverlapDuration(worked, breaks))
	net := gross - overlap
	if net < 0 {
		net = 0
	}
	return WorkComputation{
		GrossMinutes:   gross,
		BreakMinutes:   overlap,
		WorkMinutes:    net,
		RuleSetVersion: rules.Version,
	}, nil
}
