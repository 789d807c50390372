package merge

import (
	"fmt"
	"log"
	"time"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// MalformedTripError rejects a merged trip update whose stop-time updates
// cannot be made consistent. The caller must not link the trip update to its
// ingestion event; the event itself is still persisted.
type MalformedTripError struct {
	TripID string
	Reason string
}

func (e *MalformedTripError) Error() string {
	return fmt.Sprintf("malformed trip update for %s: %s", e.TripID, e.Reason)
}

// stopEventMark remembers the latest accepted stop event while walking a
// trip's stop-time updates.
type stopEventMark struct {
	time  *time.Time
	delay *time.Duration
}

// AdjustConsistency walks a merged trip update's stop-time updates in order,
// fills in missing times and delays, and pushes stop events forward so their
// times never decrease. When the feed announces a delay only on a later stop,
// every earlier unannounced event inherits enough delay to keep the trip
// physically plausible: the push propagates the maximum running delay forward.
//
// Returns a MalformedTripError when the orders are not contiguous or the
// first stop has no derivable arrival time.
func AdjustConsistency(logger *log.Logger, tu *rt.TripUpdate) error {
	previous := stopEventMark{}
	for i, stu := range tu.StopTimeUpdates {
		if stu.Order != i {
			return &MalformedTripError{
				TripID: tu.VJ.TripID,
				Reason: fmt.Sprintf("stop order %d at index %d", stu.Order, i),
			}
		}

		// fill-ins copy values rather than share pointers so that a later
		// push on one event cannot drag its sibling along
		if stu.Arrival == nil {
			stu.Arrival = copyTime(stu.Departure)
			if stu.Arrival == nil {
				stu.Arrival = copyTime(previous.time)
			}
			if stu.Arrival == nil {
				return &MalformedTripError{
					TripID: tu.VJ.TripID,
					Reason: fmt.Sprintf("stop %s has no derivable arrival time", stu.StopID),
				}
			}
			logger.Printf("trip %s stop %d: arrival filled in as %v", tu.VJ.TripID, i, *stu.Arrival)
		}
		if stu.ArrivalDelay == nil && stu.DepartureDelay != nil {
			stu.ArrivalDelay = copyDuration(stu.DepartureDelay)
		}
		if stu.Departure == nil {
			stu.Departure = copyTime(stu.Arrival)
		}
		if stu.DepartureDelay == nil && stu.ArrivalDelay != nil {
			stu.DepartureDelay = copyDuration(stu.ArrivalDelay)
		}
		if stu.ArrivalDelay == nil {
			stu.ArrivalDelay = zeroDelay()
		}
		if stu.DepartureDelay == nil {
			stu.DepartureDelay = zeroDelay()
		}

		if !stu.ArrivalStatus.Deleted() {
			if previous.time != nil && previous.time.After(*stu.Arrival) {
				diff := *previous.delay - *stu.ArrivalDelay
				stu.Arrival, stu.ArrivalDelay = pushedEvent(stu.Arrival, stu.ArrivalDelay, diff)
				logger.Printf("trip %s stop %d: arrival pushed to %v (delay %v)",
					tu.VJ.TripID, i, *stu.Arrival, *stu.ArrivalDelay)
			}
			previous = stopEventMark{time: stu.Arrival, delay: stu.ArrivalDelay}
		}
		if !stu.DepartureStatus.Deleted() {
			if previous.time != nil && previous.time.After(*stu.Departure) {
				diff := *previous.delay - *stu.DepartureDelay
				stu.Departure, stu.DepartureDelay = pushedEvent(stu.Departure, stu.DepartureDelay, diff)
				logger.Printf("trip %s stop %d: departure pushed to %v (delay %v)",
					tu.VJ.TripID, i, *stu.Departure, *stu.DepartureDelay)
			}
			previous = stopEventMark{time: stu.Departure, delay: stu.DepartureDelay}
		}
	}
	return nil
}

// pushedEvent moves a stop event forward by diff so its delay catches up with
// the running maximum.
func pushedEvent(t *time.Time, delay *time.Duration, diff time.Duration) (*time.Time, *time.Duration) {
	newTime := t.Add(diff)
	newDelay := *delay + diff
	return &newTime, &newDelay
}

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func zeroDelay() *time.Duration {
	d := time.Duration(0)
	return &d
}
