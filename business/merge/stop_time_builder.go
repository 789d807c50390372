package merge

import (
	"time"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// eventUpdate computes the canonical (time, status, delay) for one side of a
// stop from the base-schedule time and the incoming event's status and delay.
func eventUpdate(base *time.Time, inStatus rt.Status, inDelay *time.Duration) (*time.Time, rt.Status, time.Duration) {
	switch {
	case inStatus == rt.StatusUpdate:
		delay := time.Duration(0)
		if inDelay != nil {
			delay = *inDelay
		}
		var newTime *time.Time
		if base != nil {
			t := base.Add(delay)
			newTime = &t
		}
		return newTime, inStatus, delay
	case inStatus.Deleted():
		// the base-schedule time is dropped but the status kept, so the stop
		// stays identifiable in the journey (lollipop lines)
		return nil, inStatus, 0
	case inStatus.Added():
		return base, inStatus, 0
	default:
		return base, rt.StatusNone, 0
	}
}

// buildStopTimeUpdate produces the canonical stop-time update for one
// theoretical stop from the base schedule and the incoming update.
// lastDeparture is the merged result's previous departure, used to keep the
// trip physically plausible: the arrival is pushed up to it, and the
// departure up to the arrival, with the delays absorbing the difference.
func buildStopTimeUpdate(baseArrival, baseDeparture, lastDeparture *time.Time,
	newSTU *rt.StopTimeUpdate, stopID string, order int) *rt.StopTimeUpdate {

	dep, depStatus, depDelay := eventUpdate(baseDeparture, newSTU.DepartureStatus, newSTU.DepartureDelay)
	arr, arrStatus, arrDelay := eventUpdate(baseArrival, newSTU.ArrivalStatus, newSTU.ArrivalDelay)

	if arr == nil {
		if dep != nil {
			arr = dep
		} else {
			arr = lastDeparture
		}
	}
	if dep == nil {
		dep = arr
	}

	if lastDeparture != nil && arr != nil && lastDeparture.After(*arr) {
		arrDelay += lastDeparture.Sub(*arr)
		arr = lastDeparture
	}
	if arr != nil && dep != nil && arr.After(*dep) {
		depDelay += arr.Sub(*dep)
		dep = arr
	}

	return &rt.StopTimeUpdate{
		StopID:          stopID,
		Order:           order,
		Arrival:         copyTime(arr),
		Departure:       copyTime(dep),
		ArrivalDelay:    &arrDelay,
		DepartureDelay:  &depDelay,
		ArrivalStatus:   arrStatus,
		DepartureStatus: depStatus,
		Message:         newSTU.Message,
	}
}

// copyTime detaches a time pointer so later pushes on the result cannot
// alias the base schedule or a neighboring stop.
func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
