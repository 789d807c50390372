// Package ingest drives one real-time update from reception through merge,
// persistence and publication. It hosts the HTTP ingress, the feed poller,
// the GTFS-RT connector and the downstream publisher around the merge engine.
package ingest

import (
	"fmt"
	"log"

	"github.com/opentransit/rtfusion/business/data/rt"
	"github.com/opentransit/rtfusion/business/merge"
)

// Store is the persistence the processor needs: bulk lookup of prior trip
// updates and transactional saving of one ingestion event.
type Store interface {
	FindTripUpdatesByDatedVJs(keys []rt.TripKey) ([]*rt.TripUpdate, error)
	SaveRealTimeUpdate(rtu *rt.RealTimeUpdate) error
	RecordFeedError(contributor, connector, reason string, raw []byte) error
}

// FeedPublisher sends a serialized downstream feed to the message broker.
type FeedPublisher interface {
	Publish(feed []byte, contributor string) error
}

// NotPublishedError reports that the merged feed could not be handed to the
// broker. Persistence has already completed when it is raised; the error is
// surfaced, not rolled back.
type NotPublishedError struct {
	Contributor string
	Err         error
}

func (e *NotPublishedError) Error() string {
	return fmt.Sprintf("feed for contributor %s not published: %v", e.Contributor, e.Err)
}

func (e *NotPublishedError) Unwrap() error {
	return e.Err
}

// Processor merges, persists and publishes real-time updates.
type Processor struct {
	log       *log.Logger
	store     Store
	publisher FeedPublisher
}

// NewProcessor builds a Processor.
func NewProcessor(logger *log.Logger, store Store, publisher FeedPublisher) *Processor {
	return &Processor{
		log:       logger,
		store:     store,
		publisher: publisher,
	}
}

// Process runs one ingestion event: load the prior trip updates for every
// dated journey the feed mentions, merge each incoming trip against its prior
// state and the theoretical schedule, keep the consistent results linked to
// the event, persist the event atomically and publish the merged feed.
//
// A trip the consistency pass rejects is dropped from the event without
// poisoning the other trips. An unchanged trip is not linked, so the stored
// link count reflects which events actually modified the trip.
func (p *Processor) Process(rtu *rt.RealTimeUpdate, tripUpdates []*rt.TripUpdate, isNewComplete bool) error {
	keys := make([]rt.TripKey, 0, len(tripUpdates))
	for _, tu := range tripUpdates {
		keys = append(keys, tu.VJ.Key())
	}
	priors, err := p.store.FindTripUpdatesByDatedVJs(keys)
	if err != nil {
		return fmt.Errorf("loading prior trip updates: %w", err)
	}

	for _, newTU := range tripUpdates {
		dbTU := findByKey(priors, newTU.VJ.Key())
		result := merge.Merge(p.log, dbTU, newTU, isNewComplete)
		if result == nil {
			continue
		}
		if err := merge.AdjustConsistency(p.log, result); err != nil {
			p.log.Printf("dropping trip update: %v", err)
			continue
		}
		rtu.TripUpdates = append(rtu.TripUpdates, result)
	}

	if err := p.store.SaveRealTimeUpdate(rtu); err != nil {
		return fmt.Errorf("persisting real time update: %w", err)
	}

	feed, err := MarshalFeed(rtu)
	if err != nil {
		return fmt.Errorf("serializing downstream feed: %w", err)
	}
	if err := p.publisher.Publish(feed, rtu.Contributor); err != nil {
		return &NotPublishedError{Contributor: rtu.Contributor, Err: err}
	}
	p.log.Printf("processed real time update %d for %s: %d trip updates changed",
		rtu.ID, rtu.Contributor, len(rtu.TripUpdates))
	return nil
}

func findByKey(tripUpdates []*rt.TripUpdate, key rt.TripKey) *rt.TripUpdate {
	for _, tu := range tripUpdates {
		if tu.VJ.TripID == key.TripID && tu.VJ.StartTimestamp().Equal(key.StartTimestamp) {
			return tu
		}
	}
	return nil
}
