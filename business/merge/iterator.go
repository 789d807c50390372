package merge

import (
	"log"
	"time"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// orderedStop pairs a theoretical stop with its position in the result.
type orderedStop struct {
	order int
	stop  *rt.VJStopTime
}

// stopSource yields the sequence of theoretical stops the merge iterates
// over. One of two strategies applies depending on whether the incoming
// update lists the complete trip.
type stopSource interface {
	stops() []orderedStop
}

// makeStopSource selects the iteration strategy. A partial update walks the
// theoretical journey; a complete update walks its own stop list, which may
// reference stops the theoretical journey does not have.
func makeStopSource(logger *log.Logger, vj *rt.VehicleJourney,
	dbTU, newTU *rt.TripUpdate, isNewComplete bool) stopSource {

	if isNewComplete {
		return &feedWalk{log: logger, vj: vj, dbTU: dbTU, newTU: newTU}
	}
	return &theoreticalWalk{vj: vj}
}

// theoreticalWalk yields the theoretical journey's stops in order. The
// incoming partial update is expected to touch a subset of them.
type theoreticalWalk struct {
	vj *rt.VehicleJourney
}

func (w *theoreticalWalk) stops() []orderedStop {
	result := make([]orderedStop, 0, len(w.vj.StopTimes))
	for i := range w.vj.StopTimes {
		result = append(result, orderedStop{order: i, stop: &w.vj.StopTimes[i]})
	}
	return result
}

// feedWalk yields a theoretical stop for each stop-time update of a complete
// incoming trip update, synthesizing fake theoretical stops for additions
// and for deletions of previously added stops.
type feedWalk struct {
	log   *log.Logger
	vj    *rt.VehicleJourney
	dbTU  *rt.TripUpdate
	newTU *rt.TripUpdate
}

func (w *feedWalk) stops() []orderedStop {
	var result []orderedStop
	for order, stu := range w.newTU.StopTimeUpdates {
		if vjStop := w.vj.FindStopTime(stu.StopID); vjStop != nil {
			result = append(result, orderedStop{order: order, stop: vjStop})
			continue
		}
		switch {
		case stu.ArrivalStatus.Added() || stu.DepartureStatus.Added():
			result = append(result, orderedStop{order: order, stop: syntheticStop(stu)})
		case stu.ArrivalStatus.Deleted() || stu.DepartureStatus.Deleted():
			if w.dbTU == nil {
				w.log.Printf("cannot delete stop %s on trip %s: it was never added",
					stu.StopID, w.newTU.VJ.TripID)
				continue
			}
			if !w.dbTU.Deletable(stu.StopID) {
				w.log.Printf("cannot delete stop %s on trip %s: no prior update added it",
					stu.StopID, w.newTU.VJ.TripID)
				continue
			}
			result = append(result, orderedStop{order: order, stop: syntheticStop(stu)})
		}
	}
	return result
}

// syntheticStop builds a fake theoretical stop from a stop-time update the
// theoretical journey has no counterpart for, carrying the update's own
// stop reference and the UTC times of day of its absolute times.
func syntheticStop(stu *rt.StopTimeUpdate) *rt.VJStopTime {
	return &rt.VJStopTime{
		StopID:    stu.StopID,
		Arrival:   dayTimeOfPtr(stu.Arrival),
		Departure: dayTimeOfPtr(stu.Departure),
	}
}

func dayTimeOfPtr(t *time.Time) *rt.DayTime {
	if t == nil {
		return nil
	}
	d := rt.DayTimeOf(*t)
	return &d
}
