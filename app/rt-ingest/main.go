package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/opentransit/rtfusion/app/rt-ingest/ingest"
	"github.com/opentransit/rtfusion/business/data/rt"
	"github.com/opentransit/rtfusion/foundation/database"
	"github.com/opentransit/rtfusion/foundation/redisutil"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "RT_INGEST : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		Redis struct {
			Host     string `conf:"default:0.0.0.0"`
			Port     int    `conf:"default:6379"`
			Password string `conf:"default:,noprint"`
			DB       int    `conf:"default:0"`
		}
		NATS struct {
			URL string `conf:"default:nats://127.0.0.1:4222"`
		}
		Web struct {
			HTTPPort int `conf:"default:8080"`
		}
		Schedule struct {
			URL                 string `conf:"default:http://localhost:5000"`
			QueryCacheSeconds   int    `conf:"default:600"`
			PubDateCacheSeconds int    `conf:"default:600"`
			TimeoutSeconds      int    `conf:"default:5"`
		}
		Poller struct {
			LoopEverySeconds int `conf:"default:60"`
			TimeoutSeconds   int `conf:"default:1"`
			LockTTLSeconds   int `conf:"default:120"`
		}
		ContributorsFile string `conf:"default:contributors.json"`
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Merge and republish real-time public transport feeds"
	const prefix = "RTINGEST"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	contributors, err := ingest.LoadContributors(cfg.ContributorsFile)
	if err != nil {
		return fmt.Errorf("loading contributors: %w", err)
	}
	log.Printf("main: loaded %d contributors", len(contributors))

	// =========================================================================
	// Start Database, Redis, NATS

	log.Println("main: Initializing database support")
	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		if err := db.Close(); err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	log.Println("main: Initializing redis support")
	redisClient, err := redisutil.Open(context.Background(), redisutil.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("main: error closing redis: %v", err)
		}
	}()

	log.Println("main: Initializing nats support")
	natsConn, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("connecting to nats at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConn.Close()

	// =========================================================================
	// Assemble and start services

	store := &rt.Store{DB: db}
	processor := ingest.NewProcessor(log, store, ingest.MakeNATSFeedPublisher(natsConn))
	locker := ingest.MakeRedisLocker(redisClient, time.Duration(cfg.Poller.LockTTLSeconds)*time.Second)

	builders := make(map[string]*ingest.FeedBuilder)
	for _, contributor := range contributors {
		schedule := ingest.MakeScheduleClient(log, ingest.ScheduleConfig{
			URL:             cfg.Schedule.URL,
			Coverage:        contributor.Coverage,
			Token:           contributor.Token,
			Timeout:         time.Duration(cfg.Schedule.TimeoutSeconds) * time.Second,
			QueryCacheTTL:   time.Duration(cfg.Schedule.QueryCacheSeconds) * time.Second,
			PubDateCacheTTL: time.Duration(cfg.Schedule.PubDateCacheSeconds) * time.Second,
		}, redisClient)
		builders[contributor.ID] = ingest.MakeFeedBuilder(log, schedule, contributor.ID)
	}
	service := ingest.MakeService(log, contributors, builders, processor, store, locker)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	wg := sync.WaitGroup{}
	webServiceShutdown := make(chan bool, 1)
	var pollerShutdowns []chan bool

	go ingest.RunWebService(log, &wg, service, cfg.Web.HTTPPort, webServiceShutdown)
	for _, contributor := range contributors {
		if contributor.FeedURL == "" {
			continue
		}
		pollerShutdown := make(chan bool, 1)
		pollerShutdowns = append(pollerShutdowns, pollerShutdown)
		poller := ingest.MakePoller(log, ingest.PollerConfig{
			LoopEverySeconds: cfg.Poller.LoopEverySeconds,
			Timeout:          time.Duration(cfg.Poller.TimeoutSeconds) * time.Second,
		}, contributor, service, redisClient)
		go poller.Run(&wg, pollerShutdown)
	}

	<-shutdown
	log.Printf("main: exiting on shutdown signal, shutting down subroutines")
	webServiceShutdown <- true
	for _, pollerShutdown := range pollerShutdowns {
		pollerShutdown <- true
	}
	wg.Wait()
	log.Printf("main: subroutines shut down")
	return nil
}
