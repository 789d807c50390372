package merge

import (
	"log"
	"time"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// Merge combines three sources into one canonical trip update:
//
//   - the theoretical schedule carried by newTU.VJ
//   - the trip update already stored for the same dated journey (may be nil)
//   - the incoming trip update
//
// The result is dbTU when it exists, otherwise newTU, mutated in place.
// Mutating one of the inputs rather than building a third object is required:
// the persistence layer decides update-vs-insert by primary key, so the
// stored object's identity must survive the merge.
//
// Merge returns nil when the incoming update changes nothing; the caller must
// then not link the trip update to the ingestion event.
//
// isNewComplete marks the incoming update as a full replacement listing every
// stop of the trip. It also changes how an absent message is read: a partial
// update's nil message means "no news", a complete update's nil message means
// "back to normal" and overwrites the stored one.
//
// Changes in the theoretical schedule between two merges are not handled.
func Merge(logger *log.Logger, dbTU, newTU *rt.TripUpdate, isNewComplete bool) *rt.TripUpdate {
	res := dbTU
	if res == nil {
		res = newTU
	}

	res.Status = newTU.Status
	if newTU.Message != nil || isNewComplete {
		res.Message = newTU.Message
	}
	res.Contributor = newTU.Contributor

	if res.Status == rt.StatusDelete {
		// trip cancellation is terminal: no stop-time updates survive
		res.StopTimeUpdates = nil
		return res
	}

	vj := newTU.VJ
	tracker := newDateTracker(vj.CirculationDate)
	var lastDeparture *time.Time
	var resultSTUs []*rt.StopTimeUpdate
	hasChanges := false

	for _, next := range makeStopSource(logger, vj, dbTU, newTU, isNewComplete).stops() {
		navStop := next.stop
		if navStop == nil {
			logger.Printf("no stop point found (order %d) on trip %s", next.order, vj.TripID)
			continue
		}
		order := next.order
		newSTU := newTU.FindStop(navStop.StopID, order)

		// resolve the base-schedule times, only on sides that are served, so
		// that an unserved event neither constrains the rollover detection
		// nor produces a base time
		var baseArrival, baseDeparture *time.Time
		if stopEventServed(navStop, order, rt.Arrival, newSTU, dbTU) {
			baseArrival = tracker.next(navStop.Arrival)
		}
		if stopEventServed(navStop, order, rt.Departure, newSTU, dbTU) {
			baseDeparture = tracker.next(navStop.Departure)
		}

		var resSTU *rt.StopTimeUpdate
		switch {
		case dbTU != nil && newSTU != nil:
			// the delay is already recorded and the incoming update mentions
			// the stop: rebuild, but keep the stored object when the rebuild
			// is identical and nothing changed before it
			dbSTU := dbTU.FindStop(navStop.StopID, order)
			candidate := buildStopTimeUpdate(baseArrival, baseDeparture, lastDeparture, newSTU, navStop.StopID, order)
			hasChanges = hasChanges || dbSTU == nil || !dbSTU.Equal(candidate)
			if hasChanges {
				resSTU = candidate
			} else {
				resSTU = dbSTU
			}

		case dbTU == nil && newSTU != nil:
			// nothing recorded yet for a stop the incoming update mentions
			hasChanges = true
			resSTU = buildStopTimeUpdate(baseArrival, baseDeparture, lastDeparture, newSTU, navStop.StopID, order)
			resSTU.Message = newSTU.Message

		case dbTU != nil && newSTU == nil:
			// a delay is recorded but the incoming update says nothing: keep
			// the stored stop untouched apart from its order
			dbSTU := dbTU.FindStop(navStop.StopID, order)
			if dbSTU != nil {
				resSTU = dbSTU
			} else {
				resSTU = &rt.StopTimeUpdate{
					StopID:          navStop.StopID,
					Order:           order,
					Arrival:         baseArrival,
					Departure:       baseDeparture,
					ArrivalStatus:   rt.StatusNone,
					DepartureStatus: rt.StatusNone,
				}
				hasChanges = true
			}

		default:
			// nothing recorded and no news: materialize the base schedule
			hasChanges = true
			resSTU = &rt.StopTimeUpdate{
				StopID:          navStop.StopID,
				Order:           order,
				Arrival:         baseArrival,
				Departure:       baseDeparture,
				ArrivalStatus:   rt.StatusNone,
				DepartureStatus: rt.StatusNone,
			}
		}

		lastDeparture = resSTU.Departure
		resultSTUs = append(resultSTUs, resSTU)
	}

	// the effect was computed by the connector on the incoming feed
	res.Effect = newTU.Effect

	if hasChanges {
		res.StopTimeUpdates = resultSTUs
		return res
	}
	return nil
}
