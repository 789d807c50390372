package ingest

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opentransit/rtfusion/business/data/rt"
	"github.com/opentransit/rtfusion/foundation/httpclient"
	"github.com/opentransit/rtfusion/foundation/redisutil"
)

// pollerLockTask names the lock serializing polls with HTTP posts for the
// same contributor.
const pollerLockTask = "gtfs_poller"

// PollerConfig is the required properties for one contributor's polling loop.
type PollerConfig struct {
	LoopEverySeconds int
	Timeout          time.Duration
}

// Poller repeatedly fetches one contributor's feed and runs it through the
// ingestion pipeline, skipping polls whose feed has not changed since the
// previous one.
type Poller struct {
	log         *log.Logger
	cfg         PollerConfig
	contributor Contributor
	service     *Service
	redis       *redis.Client
	client      *http.Client
}

// MakePoller builds a Poller for one contributor.
func MakePoller(logger *log.Logger,
	cfg PollerConfig,
	contributor Contributor,
	service *Service,
	redisClient *redis.Client) *Poller {
	return &Poller{
		log:         logger,
		cfg:         cfg,
		contributor: contributor,
		service:     service,
		redis:       redisClient,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Run polls until the shutdown signal. Work time is subtracted from the next
// sleep so the loop approximates its configured period.
func (p *Poller) Run(wg *sync.WaitGroup, shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	loopDuration := time.Duration(p.cfg.LoopEverySeconds) * time.Second
	sleepChan := make(chan bool)
	sleep := time.Duration(0) // poll immediately the first time

	for {
		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			p.log.Printf("exiting poller for %s on shutdown signal", p.contributor.ID)
			return
		case <-sleepChan:
		}

		start := time.Now()
		p.pollOnce(context.Background())
		workTook := time.Since(start)
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}

// pollOnce runs a single poll under the contributor lock. When the lock is
// held elsewhere the poll is skipped entirely rather than queued.
func (p *Poller) pollOnce(ctx context.Context) {
	release, ok, err := p.service.locker.Acquire(ctx, pollerLockTask, p.contributor.ID)
	if err != nil {
		p.log.Printf("lock error polling %s: %v", p.contributor.ID, err)
		return
	}
	if !ok {
		return
	}
	defer release()

	if !p.feedIsNewer(ctx) {
		p.log.Printf("same ETag for %s, skipping poll", p.contributor.ID)
		return
	}

	raw, err := httpclient.FetchRemoteFeed(ctx, p.client, p.contributor.FeedURL)
	if err != nil {
		p.log.Printf("error retrieving feed for %s: %v", p.contributor.ID, err)
		if recordErr := p.service.store.RecordFeedError(p.contributor.ID, connectorName, "http error", nil); recordErr != nil {
			p.log.Printf("recording http error for %s failed: %v", p.contributor.ID, recordErr)
		}
		return
	}

	feed, err := DecodeFeed(raw)
	if err != nil {
		p.log.Printf("invalid feed polled from %s: %v", p.contributor.ID, err)
		if recordErr := p.service.store.RecordFeedError(p.contributor.ID, connectorName, "decode error", raw); recordErr != nil {
			p.log.Printf("recording decode error for %s failed: %v", p.contributor.ID, recordErr)
		}
		return
	}

	tripUpdates, err := p.service.builders[p.contributor.ID].Build(ctx, feed)
	if err != nil {
		p.log.Printf("building trip updates for %s failed: %v", p.contributor.ID, err)
		return
	}
	rtu := &rt.RealTimeUpdate{
		ReceivedAt:  time.Now().UTC(),
		Connector:   connectorName,
		Contributor: p.contributor.ID,
		Status:      "OK",
		Raw:         raw,
	}
	if err := p.service.processor.Process(rtu, tripUpdates, p.contributor.IsNewComplete); err != nil {
		p.log.Printf("processing polled feed for %s failed: %v", p.contributor.ID, err)
	}
}

// feedIsNewer compares the feed's freshness token against the one seen on the
// previous poll. Any failure along the way answers true: polling must not stop
// on a flaky HEAD request or cache.
func (p *Poller) feedIsNewer(ctx context.Context) bool {
	info, err := httpclient.GetRemoteFeedInfo(ctx, p.client, p.contributor.FeedURL)
	if err != nil {
		return true
	}
	token := info.Token()
	if token == "" {
		return true
	}

	key := redisutil.ETagKey(p.contributor.ID)
	oldToken, err := p.redis.Get(ctx, key).Result()
	if err == nil && oldToken == token {
		return false
	}
	if err := p.redis.Set(ctx, key, token, 0).Err(); err != nil {
		p.log.Printf("storing feed freshness token for %s failed: %v", p.contributor.ID, err)
	}
	return true
}
