// Package milestone classifies timestamped items into milestone buckets
// against a global cutoff.
package milestone

import "time"

// DisplayZone is the fixed offset applied to all recorded item dates.
var DisplayZone = time.FixedZone("UTC+3", 3*60*60)

// displayLayout is the fixed format of recorded item dates. Lexicographic
// comparison of formatted dates matches chronological order.
const displayLayout = "2006-01-02 15:04:05"

// Schedule is the global cutoff instant plus the ordered milestone instants.
// Milestones are consumed in the given order; they need not be sorted.
type Schedule struct {
	NotBefore  time.Time
	Milestones []time.Time
}

// NewSchedule builds a schedule from the cutoff and milestone instants.
func NewSchedule(notBefore time.Time, milestones []time.Time) Schedule {
	return Schedule{
		NotBefore:  notBefore,
		Milestones: milestones,
	}
}

// BeforeCutoff reports whether the timestamp falls strictly before the
// global cutoff. Such items terminate pagination rather than being skipped,
// since list endpoints return items newest first.
func (s Schedule) BeforeCutoff(ts time.Time) bool {
	return ts.Before(s.NotBefore)
}

// Classify returns the index of the first milestone instant strictly after
// the timestamp. The second return is false when the timestamp is at or
// after every milestone; such items are dropped from the snapshot entirely.
func (s Schedule) Classify(ts time.Time) (int, bool) {
	for i, instant := range s.Milestones {
		if ts.Before(instant) {
			return i, true
		}
	}
	return 0, false
}

// DisplayTime renders a timestamp in the fixed display zone.
func DisplayTime(ts time.Time) string {
	return ts.In(DisplayZone).Format(displayLayout)
}
