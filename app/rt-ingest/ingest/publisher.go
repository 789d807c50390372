package ingest

import (
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// feedSubjectPrefix keys the downstream broker per contributor.
const feedSubjectPrefix = "rtfusion.feed."

// natsFeedPublisher sends merged feeds over nats.
type natsFeedPublisher struct {
	natsConn *nats.Conn
}

// MakeNATSFeedPublisher builds a FeedPublisher over a nats connection.
func MakeNATSFeedPublisher(natsConn *nats.Conn) FeedPublisher {
	return &natsFeedPublisher{natsConn: natsConn}
}

func (n *natsFeedPublisher) Publish(feed []byte, contributor string) error {
	return n.natsConn.Publish(feedSubjectPrefix+contributor, feed)
}

// MarshalFeed serializes the trip updates linked to one ingestion event into
// the downstream GTFS-RT wire format.
func MarshalFeed(rtu *rt.RealTimeUpdate) ([]byte, error) {
	feed := BuildFeedMessage(rtu.ReceivedAt, rtu.TripUpdates)
	data, err := proto.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("marshaling feed message: %w", err)
	}
	return data, nil
}

// BuildFeedMessage converts merged trip updates into a GTFS-RT FeedMessage:
// header with POSIX timestamp, one entity per trip with trip.start_date in
// UTC yyyymmdd, stop sequences, and delays in whole seconds.
func BuildFeedMessage(at time.Time, tripUpdates []*rt.TripUpdate) *gtfsproto.FeedMessage {
	gtfsRealtimeVersion := "2.0"
	incrementality := gtfsproto.FeedHeader_DIFFERENTIAL
	timestamp := uint64(at.Unix())
	feedMessage := gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: &gtfsRealtimeVersion,
			Incrementality:      &incrementality,
			Timestamp:           &timestamp,
		},
		Entity: []*gtfsproto.FeedEntity{},
	}
	for i, tu := range tripUpdates {
		entityId := fmt.Sprintf("%d", i+1)
		feedMessage.Entity = append(feedMessage.Entity, &gtfsproto.FeedEntity{
			Id:         &entityId,
			TripUpdate: makeTripUpdateEntity(tu),
		})
	}
	return &feedMessage
}

func makeTripUpdateEntity(tu *rt.TripUpdate) *gtfsproto.TripUpdate {
	tripId := tu.VJ.TripID
	startDate := tu.VJ.StartTimestamp().UTC().Format("20060102")
	relationship := tripRelationship(tu.Status)
	update := gtfsproto.TripUpdate{
		Trip: &gtfsproto.TripDescriptor{
			TripId:               &tripId,
			StartDate:            &startDate,
			ScheduleRelationship: &relationship,
		},
	}
	for _, stu := range tu.StopTimeUpdates {
		update.StopTimeUpdate = append(update.StopTimeUpdate, makeStopTimeUpdateEntity(stu))
	}
	return &update
}

func tripRelationship(status rt.Status) gtfsproto.TripDescriptor_ScheduleRelationship {
	switch status {
	case rt.StatusDelete:
		return gtfsproto.TripDescriptor_CANCELED
	case rt.StatusAdd:
		return gtfsproto.TripDescriptor_ADDED
	default:
		return gtfsproto.TripDescriptor_SCHEDULED
	}
}

func makeStopTimeUpdateEntity(stu *rt.StopTimeUpdate) *gtfsproto.TripUpdate_StopTimeUpdate {
	// make new variables so the proto pointers don't alias the loop variable
	stopSequence := uint32(stu.Order + 1)
	stopId := stu.StopID
	entity := gtfsproto.TripUpdate_StopTimeUpdate{
		StopSequence: &stopSequence,
		StopId:       &stopId,
	}

	if stu.ArrivalStatus.Deleted() && stu.DepartureStatus.Deleted() {
		skipped := gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED
		entity.ScheduleRelationship = &skipped
		return &entity
	}

	scheduled := gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED
	entity.ScheduleRelationship = &scheduled
	if !stu.ArrivalStatus.Deleted() {
		entity.Arrival = makeStopTimeEvent(stu.Arrival, stu.ArrivalDelay)
	}
	if !stu.DepartureStatus.Deleted() {
		entity.Departure = makeStopTimeEvent(stu.Departure, stu.DepartureDelay)
	}
	return &entity
}

func makeStopTimeEvent(at *time.Time, delay *time.Duration) *gtfsproto.TripUpdate_StopTimeEvent {
	event := gtfsproto.TripUpdate_StopTimeEvent{}
	if at != nil {
		unix := at.Unix()
		event.Time = &unix
	}
	if delay != nil {
		seconds := int32(*delay / time.Second)
		event.Delay = &seconds
	}
	return &event
}
