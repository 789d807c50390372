package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/opentransit/rtfusion/business/data/rt"
)

// httpLockTask names the lock serializing HTTP-posted feeds with the poller
// for the same contributor.
const httpLockTask = "gtfs_rt_post"

// Service wires the per-contributor feed builders, the processor and the
// locker behind the HTTP and polling entry points.
type Service struct {
	log          *log.Logger
	contributors []Contributor
	builders     map[string]*FeedBuilder
	processor    *Processor
	store        Store
	locker       Locker
}

// MakeService builds the ingestion service front.
func MakeService(logger *log.Logger,
	contributors []Contributor,
	builders map[string]*FeedBuilder,
	processor *Processor,
	store Store,
	locker Locker) *Service {
	return &Service{
		log:          logger,
		contributors: contributors,
		builders:     builders,
		processor:    processor,
		store:        store,
		locker:       locker,
	}
}

// ServeFeedPost handles POST /gtfs_rt/{id}: one upstream binary feed for one
// contributor.
func (s *Service) ServeFeedPost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "contributor id is missing", http.StatusBadRequest)
		return
	}
	contributor := FindContributor(s.contributors, id)
	if contributor == nil {
		http.Error(w, "contributor '"+id+"' not found", http.StatusNotFound)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		http.Error(w, "no gtfs-rt data provided", http.StatusBadRequest)
		return
	}

	release, ok, err := s.locker.Acquire(r.Context(), httpLockTask, id)
	if err != nil {
		s.log.Printf("lock error for contributor %s: %v", id, err)
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "ingestion already in progress for '"+id+"'", http.StatusServiceUnavailable)
		return
	}
	defer release()

	status, message := s.ingest(r.Context(), contributor, raw)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// ingest decodes, merges, persists and publishes one raw feed. The raw bytes
// are recorded even when they cannot be decoded.
func (s *Service) ingest(ctx context.Context, contributor *Contributor, raw []byte) (int, string) {
	feed, err := DecodeFeed(raw)
	if err != nil {
		s.log.Printf("invalid feed from contributor %s: %v", contributor.ID, err)
		if recordErr := s.store.RecordFeedError(contributor.ID, connectorName, "decode error", raw); recordErr != nil {
			s.log.Printf("recording decode error for %s failed: %v", contributor.ID, recordErr)
		}
		return http.StatusBadRequest, "invalid feed"
	}

	tripUpdates, err := s.builders[contributor.ID].Build(ctx, feed)
	if err != nil {
		s.log.Printf("building trip updates for %s failed: %v", contributor.ID, err)
		return http.StatusInternalServerError, "error processing feed"
	}

	rtu := &rt.RealTimeUpdate{
		ReceivedAt:  time.Now().UTC(),
		Connector:   connectorName,
		Contributor: contributor.ID,
		Status:      "OK",
		Raw:         raw,
	}
	err = s.processor.Process(rtu, tripUpdates, contributor.IsNewComplete)
	var notPublished *NotPublishedError
	if errors.As(err, &notPublished) {
		// persistence completed, only the broker hand-off failed
		s.log.Printf("%v", notPublished)
		return http.StatusServiceUnavailable, "feed processed but not published"
	}
	if err != nil {
		s.log.Printf("processing feed for %s failed: %v", contributor.ID, err)
		return http.StatusInternalServerError, "error processing feed"
	}
	return http.StatusOK, "feed processed"
}

// ServeContributorList handles GET /gtfs_rt: the configured contributors.
func (s *Service) ServeContributorList(w http.ResponseWriter, _ *http.Request) {
	type contributorView struct {
		ID       string `json:"id"`
		Coverage string `json:"coverage"`
		FeedURL  string `json:"feed_url,omitempty"`
	}
	views := make([]contributorView, 0, len(s.contributors))
	for _, c := range s.contributors {
		views = append(views, contributorView{ID: c.ID, Coverage: c.Coverage, FeedURL: c.FeedURL})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"gtfs_rt": views}); err != nil {
		s.log.Printf("error writing contributor list: %v", err)
	}
}

// createServer creates the configured http.Server for the ingestion routes.
func createServer(service *Service, httpPort int) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/gtfs_rt", service.ServeContributorList).Methods(http.MethodGet)
	r.HandleFunc("/gtfs_rt/{id}", service.ServeFeedPost).Methods(http.MethodPost)
	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
}

// RunWebService starts the ingestion web service and terminates it on the
// shutdown signal.
func RunWebService(logger *log.Logger,
	wg *sync.WaitGroup,
	service *Service,
	httpPort int,
	shutdownSignal chan bool) {

	wg.Add(1)
	defer wg.Done()
	srv := createServer(service, httpPort)
	logger.Printf("starting ingestion server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Printf("server ListenAndServe ended: %v", err)
		}
	}()

	<-shutdownSignal
	logger.Printf("ending web service on shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("error shutting down web service: %v", err)
	}
}
