package merge

import (
	"io"
	"log"
	"time"

	"github.com/opentransit/rtfusion/business/data/rt"
)

var testLogger = log.New(io.Discard, "", 0)

var june15 = time.Date(2012, 6, 15, 0, 0, 0, 0, time.UTC)

func dayTime(hour, minute, second int) *rt.DayTime {
	d := rt.MakeDayTime(hour, minute, second)
	return &d
}

func utcTime(day, hour, minute, second int) *time.Time {
	t := time.Date(2012, 6, day, hour, minute, second, 0, time.UTC)
	return &t
}

func seconds(n int) *time.Duration {
	d := time.Duration(n) * time.Second
	return &d
}

// fourStopJourney is the plain test trip: four stops half an hour apart,
// arrival and departure identical at each.
func fourStopJourney() *rt.VehicleJourney {
	return &rt.VehicleJourney{
		TripID:          "R:vj1",
		CirculationDate: june15,
		StopTimes: []rt.VJStopTime{
			{StopID: "StopR1", Arrival: dayTime(14, 0, 0), Departure: dayTime(14, 0, 0)},
			{StopID: "StopR2", Arrival: dayTime(14, 30, 0), Departure: dayTime(14, 30, 0)},
			{StopID: "StopR3", Arrival: dayTime(15, 0, 0), Departure: dayTime(15, 0, 0)},
			{StopID: "StopR4", Arrival: dayTime(15, 30, 0), Departure: dayTime(15, 30, 0)},
		},
	}
}

// lollipopJourney revisits StopR2 at a later position.
func lollipopJourney() *rt.VehicleJourney {
	return &rt.VehicleJourney{
		TripID:          "R:vj1",
		CirculationDate: june15,
		StopTimes: []rt.VJStopTime{
			{StopID: "StopR1", Arrival: dayTime(14, 0, 0), Departure: dayTime(14, 0, 0)},
			{StopID: "StopR2", Arrival: dayTime(14, 30, 0), Departure: dayTime(14, 30, 0)},
			{StopID: "StopR3", Arrival: dayTime(15, 0, 0), Departure: dayTime(15, 0, 0)},
			{StopID: "StopR2", Arrival: dayTime(15, 30, 0), Departure: dayTime(15, 30, 0)},
			{StopID: "StopR4", Arrival: dayTime(16, 0, 0), Departure: dayTime(16, 0, 0)},
		},
	}
}

// delayedStop builds an incoming stop-time update announcing an arrival delay
// only, the way partial feeds usually do.
func delayedStop(stopID string, order, delaySeconds int) *rt.StopTimeUpdate {
	return &rt.StopTimeUpdate{
		StopID:          stopID,
		Order:           order,
		ArrivalStatus:   rt.StatusUpdate,
		ArrivalDelay:    seconds(delaySeconds),
		DepartureStatus: rt.StatusNone,
	}
}

func partialTripUpdate(vj *rt.VehicleJourney, stus ...*rt.StopTimeUpdate) *rt.TripUpdate {
	return &rt.TripUpdate{
		VJ:              vj,
		Status:          rt.StatusNone,
		Effect:          rt.EffectSignificantDelays,
		Contributor:     "realtime.test",
		StopTimeUpdates: stus,
	}
}
