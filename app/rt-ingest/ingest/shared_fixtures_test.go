package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/opentransit/rtfusion/business/data/rt"
)

var testLogger = log.New(io.Discard, "", 0)

var june15 = time.Date(2012, 6, 15, 0, 0, 0, 0, time.UTC)

func dayTime(hour, minute, second int) *rt.DayTime {
	d := rt.MakeDayTime(hour, minute, second)
	return &d
}

func seconds(n int) *time.Duration {
	d := time.Duration(n) * time.Second
	return &d
}

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

func delayedStop(stopID string, order, delaySeconds int) *rt.StopTimeUpdate {
	return &rt.StopTimeUpdate{
		StopID:          stopID,
		Order:           order,
		ArrivalStatus:   rt.StatusUpdate,
		ArrivalDelay:    seconds(delaySeconds),
		DepartureStatus: rt.StatusNone,
	}
}

func testTripUpdate(vj *rt.VehicleJourney, stus ...*rt.StopTimeUpdate) *rt.TripUpdate {
	return &rt.TripUpdate{
		VJ:              vj,
		Status:          rt.StatusNone,
		Effect:          rt.EffectSignificantDelays,
		Contributor:     "realtime.test",
		StopTimeUpdates: stus,
	}
}

func testRealTimeUpdate() *rt.RealTimeUpdate {
	return &rt.RealTimeUpdate{
		ReceivedAt:  time.Date(2012, 6, 15, 13, 0, 0, 0, time.UTC),
		Connector:   connectorName,
		Contributor: "realtime.test",
		Status:      "OK",
		Raw:         []byte("raw feed bytes"),
	}
}

// fakeStore keeps everything in memory and mimics the link bookkeeping the
// real store does on save.
type fakeStore struct {
	tripUpdates []*rt.TripUpdate
	savedRTUs   []*rt.RealTimeUpdate
	feedErrors  []string
	findErr     error
	nextRTUID   int64
	nextTUID    int64
}

func (f *fakeStore) FindTripUpdatesByDatedVJs(keys []rt.TripKey) ([]*rt.TripUpdate, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var found []*rt.TripUpdate
	for _, tu := range f.tripUpdates {
		for _, key := range keys {
			if tu.VJ.TripID == key.TripID && tu.VJ.StartTimestamp().Equal(key.StartTimestamp) {
				found = append(found, tu)
			}
		}
	}
	return found, nil
}

func (f *fakeStore) SaveRealTimeUpdate(rtu *rt.RealTimeUpdate) error {
	f.nextRTUID++
	rtu.ID = f.nextRTUID
	for _, tu := range rtu.TripUpdates {
		if tu.ID == 0 {
			f.nextTUID++
			tu.ID = f.nextTUID
			f.tripUpdates = append(f.tripUpdates, tu)
		}
		tu.RealTimeUpdateIDs = append(tu.RealTimeUpdateIDs, rtu.ID)
	}
	f.savedRTUs = append(f.savedRTUs, rtu)
	return nil
}

func (f *fakeStore) RecordFeedError(contributor, connector, reason string, _ []byte) error {
	f.feedErrors = append(f.feedErrors, fmt.Sprintf("%s/%s: %s", contributor, connector, reason))
	return nil
}

type fakePublisher struct {
	published [][]byte
	err       error
}

func (f *fakePublisher) Publish(feed []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, feed)
	return nil
}

// fakeScheduleSource serves journeys from a fixed map keyed by trip id.
type fakeScheduleSource struct {
	journeys map[string]*rt.VehicleJourney
}

func (f *fakeScheduleSource) VehicleJourney(_ context.Context, tripID string, _ time.Time) (*rt.VehicleJourney, error) {
	vj, ok := f.journeys[tripID]
	if !ok {
		return nil, fmt.Errorf("no vehicle journey for trip %s", tripID)
	}
	return vj, nil
}

type fakeLocker struct {
	busy     bool
	acquired int
}

func (f *fakeLocker) Acquire(_ context.Context, _, _ string) (func(), bool, error) {
	if f.busy {
		return nil, false, nil
	}
	f.acquired++
	return func() {}, true, nil
}

// marshalTestFeed builds the upstream bytes of a feed delaying StopR2 by 60
// seconds on trip R:vj1.
func marshalTestFeed() []byte {
	version := "2.0"
	timestamp := uint64(time.Date(2012, 6, 15, 13, 0, 0, 0, time.UTC).Unix())
	tripID := "R:vj1"
	startDate := "20120615"
	entityID := "1"
	stopID := "StopR2"
	stopSequence := uint32(2)
	delay := int32(60)
	feed := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: &version,
			Timestamp:           &timestamp,
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: &entityID,
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:    &tripID,
						StartDate: &startDate,
					},
					StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
						{
							StopSequence: &stopSequence,
							StopId:       &stopID,
							Arrival:      &gtfsproto.TripUpdate_StopTimeEvent{Delay: &delay},
						},
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(feed)
	if err != nil {
		panic(err)
	}
	return raw
}
