package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// connectorName identifies this upstream feed format on stored events.
const connectorName = "gtfs-rt"

// ScheduleSource resolves a trip id and a circulation date to the theoretical
// vehicle journey.
type ScheduleSource interface {
	VehicleJourney(ctx context.Context, tripID string, date time.Time) (*rt.VehicleJourney, error)
}

// FeedBuilder decodes upstream GTFS-RT feeds into domain trip updates, each
// resolved against the theoretical schedule.
type FeedBuilder struct {
	log         *log.Logger
	schedule    ScheduleSource
	contributor string
}

// MakeFeedBuilder builds a FeedBuilder for one contributor.
func MakeFeedBuilder(logger *log.Logger, schedule ScheduleSource, contributor string) *FeedBuilder {
	return &FeedBuilder{
		log:         logger,
		schedule:    schedule,
		contributor: contributor,
	}
}

// DecodeFeed unmarshals raw GTFS-RT bytes.
func DecodeFeed(raw []byte) (*gtfsproto.FeedMessage, error) {
	feed := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(raw, feed); err != nil {
		return nil, fmt.Errorf("unmarshaling gtfs-rt feed: %w", err)
	}
	return feed, nil
}

// Build converts the decoded feed into partial trip updates. A trip whose
// journey cannot be resolved in the theoretical schedule is skipped with a
// warning; it does not fail the rest of the feed.
func (b *FeedBuilder) Build(ctx context.Context, feed *gtfsproto.FeedMessage) ([]*rt.TripUpdate, error) {
	feedDate := time.Unix(int64(feed.GetHeader().GetTimestamp()), 0).UTC().Truncate(24 * time.Hour)

	var tripUpdates []*rt.TripUpdate
	for _, entity := range feed.GetEntity() {
		protoTU := entity.GetTripUpdate()
		if protoTU == nil {
			continue
		}
		tripId := protoTU.GetTrip().GetTripId()
		if tripId == "" {
			continue
		}

		circulationDate := feedDate
		if startDate := protoTU.GetTrip().GetStartDate(); startDate != "" {
			parsed, err := time.ParseInLocation("20060102", startDate, time.UTC)
			if err != nil {
				b.log.Printf("trip %s has unparseable start date %q, using feed date", tripId, startDate)
			} else {
				circulationDate = parsed
			}
		}

		vj, err := b.schedule.VehicleJourney(ctx, tripId, circulationDate)
		if err != nil {
			b.log.Printf("no vehicle journey for trip %s on %s: %v",
				tripId, circulationDate.Format("2006-01-02"), err)
			continue
		}
		vj.CirculationDate = circulationDate

		tripUpdates = append(tripUpdates, b.buildTripUpdate(protoTU, vj))
	}
	return tripUpdates, nil
}

func (b *FeedBuilder) buildTripUpdate(protoTU *gtfsproto.TripUpdate, vj *rt.VehicleJourney) *rt.TripUpdate {
	tu := &rt.TripUpdate{
		VJ:          vj,
		Status:      rt.StatusNone,
		Contributor: b.contributor,
	}

	if protoTU.GetTrip().GetScheduleRelationship() == gtfsproto.TripDescriptor_CANCELED {
		tu.Status = rt.StatusDelete
		tu.Effect = rt.EffectNoService
		return tu
	}

	for _, protoSTU := range protoTU.GetStopTimeUpdate() {
		stu := buildStopTimeUpdate(protoSTU)
		if stu != nil {
			tu.StopTimeUpdates = append(tu.StopTimeUpdates, stu)
		}
	}
	tu.Effect = computeEffect(tu.StopTimeUpdates)
	return tu
}

// buildStopTimeUpdate maps one upstream stop-time entry. The upstream
// stop_sequence is 1-based; the domain order is its 0-based counterpart.
func buildStopTimeUpdate(protoSTU *gtfsproto.TripUpdate_StopTimeUpdate) *rt.StopTimeUpdate {
	if protoSTU.GetStopId() == "" {
		return nil
	}
	stu := &rt.StopTimeUpdate{
		StopID:          protoSTU.GetStopId(),
		Order:           int(protoSTU.GetStopSequence()) - 1,
		ArrivalStatus:   rt.StatusNone,
		DepartureStatus: rt.StatusNone,
	}

	if protoSTU.GetScheduleRelationship() == gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED {
		stu.ArrivalStatus = rt.StatusDelete
		stu.DepartureStatus = rt.StatusDelete
		return stu
	}

	if arrival := protoSTU.Arrival; arrival != nil {
		stu.ArrivalStatus = rt.StatusUpdate
		stu.ArrivalDelay = eventDelay(arrival)
		stu.Arrival = eventTime(arrival)
	}
	if departure := protoSTU.Departure; departure != nil {
		stu.DepartureStatus = rt.StatusUpdate
		stu.DepartureDelay = eventDelay(departure)
		stu.Departure = eventTime(departure)
	}
	return stu
}

func eventDelay(event *gtfsproto.TripUpdate_StopTimeEvent) *time.Duration {
	delay := time.Duration(event.GetDelay()) * time.Second
	return &delay
}

func eventTime(event *gtfsproto.TripUpdate_StopTimeEvent) *time.Time {
	if event.Time == nil {
		return nil
	}
	t := time.Unix(event.GetTime(), 0).UTC()
	return &t
}

// computeEffect derives the trip-level diagnostic tag from the per-stop
// statuses of the incoming update.
func computeEffect(stus []*rt.StopTimeUpdate) string {
	hasDeleted := false
	hasAdded := false
	hasUpdated := false
	for _, stu := range stus {
		hasDeleted = hasDeleted || stu.ArrivalStatus.Deleted() || stu.DepartureStatus.Deleted()
		hasAdded = hasAdded || stu.ArrivalStatus.Added() || stu.DepartureStatus.Added()
		hasUpdated = hasUpdated || stu.ArrivalStatus == rt.StatusUpdate || stu.DepartureStatus == rt.StatusUpdate
	}
	switch {
	case hasDeleted:
		return rt.EffectReducedService
	case hasAdded:
		return rt.EffectModifiedService
	case hasUpdated:
		return rt.EffectSignificantDelays
	default:
		return rt.EffectUnknown
	}
}
