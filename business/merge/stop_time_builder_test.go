package merge

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/opentransit/rtfusion/business/data/rt"
)

func TestEventUpdate(t *testing.T) {
	base := utcTime(15, 14, 30, 0)
	tests := []struct {
		name       string
		base       *time.Time
		inStatus   rt.Status
		inDelay    *time.Duration
		wantTime   *time.Time
		wantStatus rt.Status
		wantDelay  time.Duration
	}{
		{
			name:       "update applies the delay to the base time",
			base:       base,
			inStatus:   rt.StatusUpdate,
			inDelay:    seconds(60),
			wantTime:   utcTime(15, 14, 31, 0),
			wantStatus: rt.StatusUpdate,
			wantDelay:  time.Minute,
		},
		{
			name:       "update without delay keeps the base time",
			base:       base,
			inStatus:   rt.StatusUpdate,
			wantTime:   base,
			wantStatus: rt.StatusUpdate,
		},
		{
			name:       "update without base yields no time",
			inStatus:   rt.StatusUpdate,
			inDelay:    seconds(60),
			wantStatus: rt.StatusUpdate,
			wantDelay:  time.Minute,
		},
		{
			name:       "deletion drops the time but keeps the status",
			base:       base,
			inStatus:   rt.StatusDeletedForDetour,
			wantStatus: rt.StatusDeletedForDetour,
		},
		{
			name:       "addition keeps the synthesized base time",
			base:       base,
			inStatus:   rt.StatusAdd,
			wantStatus: rt.StatusAdd,
			wantTime:   base,
		},
		{
			name:       "anything else reads as no news",
			base:       base,
			inStatus:   rt.StatusNone,
			inDelay:    seconds(60),
			wantStatus: rt.StatusNone,
			wantTime:   base,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			gotTime, gotStatus, gotDelay := eventUpdate(tt.base, tt.inStatus, tt.inDelay)
			is.Equal(gotTime, tt.wantTime)
			is.Equal(gotStatus, tt.wantStatus)
			is.Equal(gotDelay, tt.wantDelay)
		})
	}
}

func TestBuildStopTimeUpdateGapClosure(t *testing.T) {
	is := is.New(t)

	// arrival-only delay: the departure is pushed up to the arrival and the
	// difference becomes departure delay
	got := buildStopTimeUpdate(utcTime(15, 14, 30, 0), utcTime(15, 14, 30, 0), utcTime(15, 14, 0, 0),
		delayedStop("StopR2", 1, 60), "StopR2", 1)
	is.Equal(got.Arrival, utcTime(15, 14, 31, 0))
	is.Equal(got.ArrivalDelay, seconds(60))
	is.Equal(got.ArrivalStatus, rt.StatusUpdate)
	is.Equal(got.Departure, utcTime(15, 14, 31, 0))
	is.Equal(got.DepartureDelay, seconds(60))
	is.Equal(got.DepartureStatus, rt.StatusNone)
}

func TestBuildStopTimeUpdateArrivalBeforeLastDeparture(t *testing.T) {
	is := is.New(t)

	// the previous merged stop already departed after this stop's updated
	// arrival: the arrival catches up and absorbs the wait as delay
	got := buildStopTimeUpdate(utcTime(15, 14, 30, 0), utcTime(15, 14, 35, 0), utcTime(15, 14, 33, 0),
		delayedStop("StopR2", 1, 60), "StopR2", 1)
	is.Equal(got.Arrival, utcTime(15, 14, 33, 0))
	is.Equal(got.ArrivalDelay, seconds(180))
	is.Equal(got.Departure, utcTime(15, 14, 35, 0))
	is.Equal(got.DepartureDelay, seconds(0))
}

func TestBuildStopTimeUpdateDeletedArrival(t *testing.T) {
	is := is.New(t)

	newSTU := &rt.StopTimeUpdate{
		StopID:          "StopR2",
		Order:           1,
		ArrivalStatus:   rt.StatusDelete,
		DepartureStatus: rt.StatusUpdate,
		DepartureDelay:  seconds(120),
	}
	got := buildStopTimeUpdate(utcTime(15, 14, 30, 0), utcTime(15, 14, 30, 0), nil,
		newSTU, "StopR2", 1)
	// the deleted arrival borrows the departure time so both sides stay dated
	is.Equal(got.Arrival, utcTime(15, 14, 32, 0))
	is.Equal(got.ArrivalStatus, rt.StatusDelete)
	is.Equal(got.Departure, utcTime(15, 14, 32, 0))
	is.Equal(got.DepartureStatus, rt.StatusUpdate)
	is.Equal(got.DepartureDelay, seconds(120))
}

func TestBuildStopTimeUpdateDetachesTimes(t *testing.T) {
	is := is.New(t)

	base := utcTime(15, 14, 30, 0)
	got := buildStopTimeUpdate(base, base, nil, delayedStop("StopR2", 1, 0), "StopR2", 1)
	is.True(got.Arrival != base)
	is.True(got.Departure != base)
	is.True(got.Arrival != got.Departure)
	is.Equal(got.Arrival, base)
}

func TestBuildStopTimeUpdateCarriesMessage(t *testing.T) {
	is := is.New(t)

	msg := "stop moved to the opposite platform"
	newSTU := delayedStop("StopR2", 1, 60)
	newSTU.Message = &msg
	got := buildStopTimeUpdate(utcTime(15, 14, 30, 0), utcTime(15, 14, 30, 0), nil,
		newSTU, "StopR2", 1)
	is.Equal(got.Message, &msg)
}
