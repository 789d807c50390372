// Package rt holds the real-time domain model shared by the merge engine and
// the ingestion service, and its postgres persistence.
package rt

import (
	"time"
)

// Status is the modification state of a trip or of one stop event.
type Status string

const (
	StatusNone             Status = "none"
	StatusUpdate           Status = "update"
	StatusDelete           Status = "delete"
	StatusDeletedForDetour Status = "deleted_for_detour"
	StatusAdd              Status = "add"
	StatusAddedForDetour   Status = "added_for_detour"
)

// Deleted reports whether the status removes the stop event from service.
func (s Status) Deleted() bool {
	return s == StatusDelete || s == StatusDeletedForDetour
}

// Added reports whether the status introduced the stop event.
func (s Status) Added() bool {
	return s == StatusAdd || s == StatusAddedForDetour
}

// StopEvent identifies one side of a stop-time pair.
type StopEvent int

const (
	Arrival StopEvent = iota
	Departure
)

func (e StopEvent) String() string {
	if e == Arrival {
		return "arrival"
	}
	return "departure"
}

// Effect values mirror the downstream wire format's service-effect tags.
const (
	EffectUnknown           = "UNKNOWN_EFFECT"
	EffectSignificantDelays = "SIGNIFICANT_DELAYS"
	EffectReducedService    = "REDUCED_SERVICE"
	EffectNoService         = "NO_SERVICE"
	EffectModifiedService   = "MODIFIED_SERVICE"
	EffectAdditionalService = "ADDITIONAL_SERVICE"
	EffectDetour            = "DETOUR"
)

// VJStopTime is one theoretical stop on a vehicle journey. Either event time
// may be absent (origin has no arrival, terminus no departure).
type VJStopTime struct {
	StopID    string
	Arrival   *DayTime
	Departure *DayTime
}

// EventTime returns the theoretical time of day for one side of the stop.
func (st *VJStopTime) EventTime(ev StopEvent) *DayTime {
	if ev == Arrival {
		return st.Arrival
	}
	return st.Departure
}

// VehicleJourney is the theoretical trip a TripUpdate applies to.
// It is immutable within the scope of one merge.
type VehicleJourney struct {
	TripID          string
	CirculationDate time.Time // UTC calendar day the trip begins on
	StopTimes       []VJStopTime

	// start caches the dated start when the journey was loaded from storage
	// without its theoretical stops.
	start *time.Time
}

// FindStopTime returns the first theoretical stop with stopID, or nil.
func (vj *VehicleJourney) FindStopTime(stopID string) *VJStopTime {
	for i := range vj.StopTimes {
		if vj.StopTimes[i].StopID == stopID {
			return &vj.StopTimes[i]
		}
	}
	return nil
}

// StartTimestamp returns the absolute naive-UTC datetime of the journey's
// first defined stop event on its circulation date. Together with TripID it
// forms the dated identity of the journey.
func (vj *VehicleJourney) StartTimestamp() time.Time {
	if vj.start != nil {
		return *vj.start
	}
	for i := range vj.StopTimes {
		if t := vj.StopTimes[i].Departure; t != nil {
			return t.On(vj.CirculationDate)
		}
		if t := vj.StopTimes[i].Arrival; t != nil {
			return t.On(vj.CirculationDate)
		}
	}
	return vj.CirculationDate
}

// TripKey is the dated identity of a vehicle journey, used for bulk lookup
// of prior trip updates.
type TripKey struct {
	TripID         string
	StartTimestamp time.Time
}

// Key returns the TripKey of the journey.
func (vj *VehicleJourney) Key() TripKey {
	return TripKey{TripID: vj.TripID, StartTimestamp: vj.StartTimestamp()}
}

// StopTimeUpdate is the real-time state of one stop event pair within a trip.
// Times are absolute naive-UTC datetimes; nil means unknown or not served.
type StopTimeUpdate struct {
	ID              int64
	StopID          string
	Order           int
	Arrival         *time.Time
	Departure       *time.Time
	ArrivalDelay    *time.Duration
	DepartureDelay  *time.Duration
	ArrivalStatus   Status
	DepartureStatus Status
	Message         *string
}

// EventTime returns the event's absolute time for one side of the pair.
func (stu *StopTimeUpdate) EventTime(ev StopEvent) *time.Time {
	if ev == Arrival {
		return stu.Arrival
	}
	return stu.Departure
}

// EventStatus returns the event's status for one side of the pair.
func (stu *StopTimeUpdate) EventStatus(ev StopEvent) Status {
	if ev == Arrival {
		return stu.ArrivalStatus
	}
	return stu.DepartureStatus
}

// EventDelay returns the event's delay for one side of the pair.
func (stu *StopTimeUpdate) EventDelay(ev StopEvent) *time.Duration {
	if ev == Arrival {
		return stu.ArrivalDelay
	}
	return stu.DepartureDelay
}

// Equal compares every real-time field of two stop-time updates.
// Used by the merge to decide whether an incoming update changed anything.
func (stu *StopTimeUpdate) Equal(other *StopTimeUpdate) bool {
	if stu == nil || other == nil {
		return stu == other
	}
	return stu.StopID == other.StopID &&
		stu.Order == other.Order &&
		timePtrEqual(stu.Arrival, other.Arrival) &&
		timePtrEqual(stu.Departure, other.Departure) &&
		durationPtrEqual(stu.ArrivalDelay, other.ArrivalDelay) &&
		durationPtrEqual(stu.DepartureDelay, other.DepartureDelay) &&
		stu.ArrivalStatus == other.ArrivalStatus &&
		stu.DepartureStatus == other.DepartureStatus &&
		stringPtrEqual(stu.Message, other.Message)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func durationPtrEqual(a, b *time.Duration) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// TripUpdate is one real-time view of one dated vehicle journey.
// It exclusively owns its StopTimeUpdates list.
type TripUpdate struct {
	ID          int64
	VJ          *VehicleJourney
	Status      Status
	Effect      string
	Message     *string
	Contributor string
	// StopTimeUpdates is empty when Status is StatusDelete.
	StopTimeUpdates []*StopTimeUpdate
	// RealTimeUpdateIDs are the ingestion events that produced or confirmed
	// this state. TripUpdates outlive the RealTimeUpdates that touched them.
	RealTimeUpdateIDs []int64
}

// FindStop locates the stop-time update for (stopID, order), or nil.
// Matching on both fields keeps lollipop journeys unambiguous.
func (tu *TripUpdate) FindStop(stopID string, order int) *StopTimeUpdate {
	if tu == nil {
		return nil
	}
	for _, stu := range tu.StopTimeUpdates {
		if stu.StopID == stopID && stu.Order == order {
			return stu
		}
	}
	return nil
}

// Deletable reports whether stopID may be deleted from this trip update,
// which is only the case when a prior update added it.
func (tu *TripUpdate) Deletable(stopID string) bool {
	if tu == nil {
		return false
	}
	for _, stu := range tu.StopTimeUpdates {
		if stu.StopID == stopID && (stu.ArrivalStatus.Added() || stu.DepartureStatus.Added()) {
			return true
		}
	}
	return false
}

// RealTimeUpdate is one ingestion event: the raw feed received from one
// contributor and the trip updates it produced.
type RealTimeUpdate struct {
	ID          int64
	ReceivedAt  time.Time
	Connector   string
	Contributor string
	Status      string // OK, KO or pending
	Error       *string
	Raw         []byte
	// TripUpdates are the trips this event changed. An unchanged trip is not
	// linked even if the feed mentioned it.
	TripUpdates []*TripUpdate
}
