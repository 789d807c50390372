// Package merge combines the theoretical vehicle-journey schedule, the
// previously recorded trip update and an incoming trip update into one
// canonical trip update, then enforces physical-time consistency on it.
// The package is pure: it takes its inputs as arguments and performs no I/O
// besides logging.
package merge

import (
	"time"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// dateTracker walks a journey's stop events in order and resolves each
// time of day to an absolute naive-UTC datetime, bumping the working
// circulation date whenever the times roll past midnight. Theoretical times
// past 24:00 arrive modulo 24h, so a monotonic decrease is the rollover
// signal.
type dateTracker struct {
	date      time.Time
	lastEvent *rt.DayTime
}

func newDateTracker(circulationDate time.Time) *dateTracker {
	return &dateTracker{date: circulationDate}
}

// next resolves the given time of day against the working date and records
// it as the latest seen event. A nil time of day resets the latest event, so
// a stop without times does not constrain the stops after it.
func (dt *dateTracker) next(t *rt.DayTime) *time.Time {
	if t == nil {
		dt.lastEvent = nil
		return nil
	}
	if dt.lastEvent != nil && *dt.lastEvent > *t {
		dt.date = dt.date.AddDate(0, 0, 1)
	}
	abs := t.On(dt.date)
	dt.lastEvent = t
	return &abs
}
