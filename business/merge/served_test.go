package merge

import (
	"testing"

	"github.com/matryer/is"

	"github.com/opentransit/rtfusion/business/data/rt"
)

func TestStopEventServed(t *testing.T) {
	navStop := &rt.VJStopTime{StopID: "StopR2", Arrival: dayTime(14, 30, 0)}
	terminus := &rt.VJStopTime{StopID: "StopR4", Arrival: dayTime(15, 30, 0)}

	dbTU := &rt.TripUpdate{
		StopTimeUpdates: []*rt.StopTimeUpdate{
			{StopID: "StopR2", Order: 1, ArrivalStatus: rt.StatusDelete, DepartureStatus: rt.StatusNone},
		},
	}

	tests := []struct {
		name   string
		stop   *rt.VJStopTime
		order  int
		event  rt.StopEvent
		newSTU *rt.StopTimeUpdate
		dbTU   *rt.TripUpdate
		want   bool
	}{
		{
			name:  "incoming update wins over everything",
			stop:  navStop,
			order: 1,
			event: rt.Arrival,
			newSTU: &rt.StopTimeUpdate{
				StopID: "StopR2", Order: 1, ArrivalStatus: rt.StatusUpdate,
			},
			dbTU: dbTU,
			want: true,
		},
		{
			name:  "incoming deletion wins over theoretical availability",
			stop:  navStop,
			order: 1,
			event: rt.Arrival,
			newSTU: &rt.StopTimeUpdate{
				StopID: "StopR2", Order: 1, ArrivalStatus: rt.StatusDeletedForDetour,
			},
			want: false,
		},
		{
			name:  "stored deletion answers when the incoming update is silent",
			stop:  navStop,
			order: 1,
			event: rt.Arrival,
			dbTU:  dbTU,
			want:  false,
		},
		{
			name:  "stored state is per event side",
			stop:  navStop,
			order: 1,
			event: rt.Departure,
			dbTU:  dbTU,
			want:  true,
		},
		{
			name:  "theoretical availability is the last resort",
			stop:  terminus,
			order: 3,
			event: rt.Arrival,
			want:  true,
		},
		{
			name:  "terminus without departure is not served on that side",
			stop:  terminus,
			order: 3,
			event: rt.Departure,
			want:  false,
		},
		{
			name:  "stored trip without this stop falls back to theory",
			stop:  terminus,
			order: 3,
			event: rt.Arrival,
			dbTU:  dbTU,
			want:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(stopEventServed(tt.stop, tt.order, tt.event, tt.newSTU, tt.dbTU), tt.want)
		})
	}
}
