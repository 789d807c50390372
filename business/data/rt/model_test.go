package rt

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func dayTimePtr(hour, minute, second int) *DayTime {
	d := MakeDayTime(hour, minute, second)
	return &d
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func durPtr(d time.Duration) *time.Duration {
	return &d
}

func TestVehicleJourneyStartTimestamp(t *testing.T) {
	date := time.Date(2012, 6, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		vj   VehicleJourney
		want time.Time
	}{
		{
			name: "first departure wins",
			vj: VehicleJourney{
				TripID:          "R:vj1",
				CirculationDate: date,
				StopTimes: []VJStopTime{
					{StopID: "StopR1", Arrival: dayTimePtr(13, 55, 0), Departure: dayTimePtr(14, 0, 0)},
					{StopID: "StopR2", Arrival: dayTimePtr(14, 30, 0), Departure: dayTimePtr(14, 30, 0)},
				},
			},
			want: time.Date(2012, 6, 15, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "arrival used when the first stop has no departure",
			vj: VehicleJourney{
				TripID:          "R:vj1",
				CirculationDate: date,
				StopTimes: []VJStopTime{
					{StopID: "StopR1", Arrival: dayTimePtr(14, 0, 0)},
				},
			},
			want: time.Date(2012, 6, 15, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "no stops falls back to the circulation date",
			vj: VehicleJourney{
				TripID:          "R:vj1",
				CirculationDate: date,
			},
			want: date,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(tt.vj.StartTimestamp(), tt.want)
			is.Equal(tt.vj.Key(), TripKey{TripID: "R:vj1", StartTimestamp: tt.want})
		})
	}
}

func TestTripUpdateFindStop(t *testing.T) {
	is := is.New(t)
	// a lollipop trip visits StopR2 twice, so a stop id alone is ambiguous
	tu := &TripUpdate{
		StopTimeUpdates: []*StopTimeUpdate{
			{StopID: "StopR1", Order: 0},
			{StopID: "StopR2", Order: 1},
			{StopID: "StopR3", Order: 2},
			{StopID: "StopR2", Order: 3},
		},
	}
	is.Equal(tu.FindStop("StopR2", 1), tu.StopTimeUpdates[1])
	is.Equal(tu.FindStop("StopR2", 3), tu.StopTimeUpdates[3])
	is.Equal(tu.FindStop("StopR2", 2), nil)
	is.Equal(tu.FindStop("StopR9", 0), nil)

	var nilTU *TripUpdate
	is.Equal(nilTU.FindStop("StopR1", 0), nil)
}

func TestTripUpdateDeletable(t *testing.T) {
	is := is.New(t)
	tu := &TripUpdate{
		StopTimeUpdates: []*StopTimeUpdate{
			{StopID: "StopR1", Order: 0, ArrivalStatus: StatusNone, DepartureStatus: StatusNone},
			{StopID: "Extra", Order: 1, ArrivalStatus: StatusAdd, DepartureStatus: StatusAdd},
			{StopID: "Detour", Order: 2, ArrivalStatus: StatusNone, DepartureStatus: StatusAddedForDetour},
		},
	}
	is.True(!tu.Deletable("StopR1"))
	is.True(tu.Deletable("Extra"))
	is.True(tu.Deletable("Detour"))
	is.True(!tu.Deletable("Unknown"))

	var nilTU *TripUpdate
	is.True(!nilTU.Deletable("StopR1"))
}

func TestStopTimeUpdateEqual(t *testing.T) {
	arrival := time.Date(2012, 6, 15, 14, 31, 0, 0, time.UTC)
	base := func() *StopTimeUpdate {
		return &StopTimeUpdate{
			StopID:          "StopR2",
			Order:           1,
			Arrival:         timePtr(arrival),
			Departure:       timePtr(arrival),
			ArrivalDelay:    durPtr(time.Minute),
			DepartureDelay:  durPtr(time.Minute),
			ArrivalStatus:   StatusUpdate,
			DepartureStatus: StatusUpdate,
		}
	}

	tests := []struct {
		name   string
		mutate func(stu *StopTimeUpdate)
		want   bool
	}{
		{name: "identical copies", mutate: func(*StopTimeUpdate) {}, want: true},
		{name: "different arrival", mutate: func(stu *StopTimeUpdate) {
			stu.Arrival = timePtr(arrival.Add(time.Second))
		}},
		{name: "different delay", mutate: func(stu *StopTimeUpdate) {
			stu.ArrivalDelay = durPtr(2 * time.Minute)
		}},
		{name: "nil versus set delay", mutate: func(stu *StopTimeUpdate) {
			stu.DepartureDelay = nil
		}},
		{name: "different status", mutate: func(stu *StopTimeUpdate) {
			stu.DepartureStatus = StatusDelete
		}},
		{name: "different message", mutate: func(stu *StopTimeUpdate) {
			msg := "holiday schedule"
			stu.Message = &msg
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			a, b := base(), base()
			tt.mutate(b)
			is.Equal(a.Equal(b), tt.want)
		})
	}

	is := is.New(t)
	var nilSTU *StopTimeUpdate
	is.True(nilSTU.Equal(nil))
	is.True(!nilSTU.Equal(base()))

	// the database id is identity, not content
	withID := base()
	withID.ID = 42
	is.True(withID.Equal(base()))
}

func TestStatusPredicates(t *testing.T) {
	is := is.New(t)
	is.True(StatusDelete.Deleted())
	is.True(StatusDeletedForDetour.Deleted())
	is.True(!StatusUpdate.Deleted())
	is.True(StatusAdd.Added())
	is.True(StatusAddedForDetour.Added())
	is.True(!StatusNone.Added())
}
