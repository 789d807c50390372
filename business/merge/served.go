package merge

import (
	"github.com/opentransit/rtfusion/business/data/rt"
)

// stopEventServed decides whether one side of a theoretical stop is currently
// served. The most recent explicit decision wins: the incoming update first,
// then the stored trip update, then the theoretical availability of the event.
func stopEventServed(navStop *rt.VJStopTime, order int, ev rt.StopEvent,
	newSTU *rt.StopTimeUpdate, dbTU *rt.TripUpdate) bool {

	if newSTU != nil {
		return !newSTU.EventStatus(ev).Deleted()
	}
	if dbTU != nil {
		if dbSTU := dbTU.FindStop(navStop.StopID, order); dbSTU != nil {
			return !dbSTU.EventStatus(ev).Deleted()
		}
		// undecided if the stop is not part of the stored trip update, which
		// happens when the whole trip was deleted
	}
	return navStop.EventTime(ev) != nil
}
