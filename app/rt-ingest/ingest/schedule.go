package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// ScheduleConfig is the required properties to query the schedule service.
type ScheduleConfig struct {
	URL             string
	Coverage        string
	Token           string
	Timeout         time.Duration
	QueryCacheTTL   time.Duration
	PubDateCacheTTL time.Duration
}

// scheduleClient looks up theoretical vehicle journeys over HTTP, caching
// responses in redis so repeated polls for the same trips stay cheap.
type scheduleClient struct {
	log    *log.Logger
	cfg    ScheduleConfig
	client *http.Client
	redis  *redis.Client
}

// MakeScheduleClient builds a ScheduleSource over the schedule service.
// redisClient may be nil, which disables caching.
func MakeScheduleClient(logger *log.Logger, cfg ScheduleConfig, redisClient *redis.Client) ScheduleSource {
	return &scheduleClient{
		log:    logger,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		redis:  redisClient,
	}
}

// vehicleJourneyResponse is the schedule service's wire shape.
type vehicleJourneyResponse struct {
	StopTimes []struct {
		StopPoint struct {
			ID string `json:"id"`
		} `json:"stop_point"`
		UTCArrivalTime   *string `json:"utc_arrival_time"`
		UTCDepartureTime *string `json:"utc_departure_time"`
	} `json:"stop_times"`
}

// VehicleJourney implements ScheduleSource.
func (s *scheduleClient) VehicleJourney(ctx context.Context, tripID string, date time.Time) (*rt.VehicleJourney, error) {
	cacheKey := fmt.Sprintf("vj|%s|%s|%s", s.cfg.Coverage, tripID, date.Format("20060102"))
	if s.redis != nil {
		// a schedule re-publication must invalidate every cached journey
		if pubDate, err := s.PublicationDate(ctx); err == nil && pubDate != "" {
			cacheKey += "|" + pubDate
		}
	}
	body, err := s.cachedQuery(ctx, cacheKey, s.cfg.QueryCacheTTL, func(ctx context.Context) ([]byte, error) {
		url := fmt.Sprintf("%s/coverage/%s/vehicle_journeys/%s?date=%s",
			s.cfg.URL, s.cfg.Coverage, tripID, date.Format("20060102"))
		return s.get(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	var response vehicleJourneyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parsing vehicle journey for %s: %w", tripID, err)
	}

	vj := &rt.VehicleJourney{
		TripID:          tripID,
		CirculationDate: date,
	}
	for _, st := range response.StopTimes {
		arrival, err := parseScheduleTime(st.UTCArrivalTime)
		if err != nil {
			return nil, fmt.Errorf("vehicle journey %s stop %s: %w", tripID, st.StopPoint.ID, err)
		}
		departure, err := parseScheduleTime(st.UTCDepartureTime)
		if err != nil {
			return nil, fmt.Errorf("vehicle journey %s stop %s: %w", tripID, st.StopPoint.ID, err)
		}
		vj.StopTimes = append(vj.StopTimes, rt.VJStopTime{
			StopID:    st.StopPoint.ID,
			Arrival:   arrival,
			Departure: departure,
		})
	}
	return vj, nil
}

// PublicationDate returns the schedule service's data publication date,
// cached with its own TTL. A publication-date change invalidates downstream
// consumers' view of the theoretical schedule.
func (s *scheduleClient) PublicationDate(ctx context.Context) (string, error) {
	cacheKey := fmt.Sprintf("pubdate|%s", s.cfg.Coverage)
	body, err := s.cachedQuery(ctx, cacheKey, s.cfg.PubDateCacheTTL, func(ctx context.Context) ([]byte, error) {
		url := fmt.Sprintf("%s/coverage/%s/status", s.cfg.URL, s.cfg.Coverage)
		return s.get(ctx, url)
	})
	if err != nil {
		return "", err
	}
	var status struct {
		Status struct {
			PublicationDate string `json:"publication_date"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("parsing status: %w", err)
	}
	return status.Status.PublicationDate, nil
}

// cachedQuery serves the query from redis when possible, otherwise executes
// it and stores the response. Cache failures degrade to direct queries.
func (s *scheduleClient) cachedQuery(ctx context.Context, key string, ttl time.Duration,
	query func(ctx context.Context) ([]byte, error)) ([]byte, error) {

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			return cached, nil
		}
		if err != redis.Nil {
			s.log.Printf("schedule cache read failed for %s: %v", key, err)
		}
	}
	body, err := query(ctx)
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, body, ttl).Err(); err != nil {
			s.log.Printf("schedule cache write failed for %s: %v", key, err)
		}
	}
	return body, nil
}

func (s *scheduleClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building schedule request: %w", err)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", s.cfg.Token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying schedule service: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("schedule service returned %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading schedule response: %w", err)
	}
	return body, nil
}

// scheduleTimeLayouts are the time-of-day formats the schedule service uses.
var scheduleTimeLayouts = []string{"150405", "15:04:05"}

// parseScheduleTime reads a stop time as a plain time of day. Some coverages
// answer full datetimes (possibly with an offset) instead; those reduce to
// their UTC time of day.
func parseScheduleTime(s *string) (*rt.DayTime, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	for _, layout := range scheduleTimeLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			d := rt.MakeDayTime(t.Hour(), t.Minute(), t.Second())
			return &d, nil
		}
	}
	if d, err := rt.ParseDayTime(*s); err == nil {
		return &d, nil
	}
	return nil, fmt.Errorf("unparseable schedule time %q", *s)
}
