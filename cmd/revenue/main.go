package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"taxi-revenue/internal/archive"
	"taxi-revenue/internal/config"
	"taxi-revenue/internal/db"
	"taxi-revenue/internal/metrics"
	"taxi-revenue/internal/pipeline"
	"taxi-revenue/internal/publisher"
)

// Usage: revenue [run <job>]
//
//	revenue run reconstruct
//	revenue run all        (default)
func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	os.Exit(run(os.Args, cfg))
}

// run executes one job and returns the process exit code. Sinks are closed
// before it returns, whatever the outcome.
func run(args []string, cfg *config.Config) int {
	jobName := "all"
	if len(args) >= 3 && args[1] == "run" {
		jobName = args[2]
	} else if len(args) > 1 {
		log.Printf("usage: %s [run <job>]", filepath.Base(args[0]))
		return 2
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.Workers)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var sinks pipeline.Sinks

	// Result store
	if cfg.DatabaseURL != "" {
		sqlDB, err := openResultsDB(ctx, cfg)
		if err != nil {
			log.Printf("db error: %v", err)
			return 1
		}
		defer sqlDB.Close()
		sinks.DB = sqlDB
		sinks.DBDriver = cfg.DBDriver
	}

	// Trip events
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Printf("nats error: %v", err)
			return 1
		}
		defer pub.Close()
		sinks.Publisher = pub
	}

	// Parquet archive
	if cfg.ArchiveEnabled() {
		sinks.Archive = archive.NewClient(cfg.R2Endpoint, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket)
	}

	runner := &pipeline.Runner{
		Paths: pipeline.Paths{
			Input:   cfg.InputPath,
			Trips:   cfg.TripsPath,
			Revenue: cfg.RevenuePath,
			Series:  cfg.SeriesPath,
		},
		Opts: pipeline.Options{
			Location:       cfg.Location,
			Workers:        cfg.Workers,
			Policy:         cfg.Policy,
			EmitEmptyTrips: cfg.EmitEmptyTrips,
			LandmarkMode:   cfg.LandmarkMode,
			RunID:          runID(cfg),
			Metrics:        mcol,
		},
		Sinks: sinks,
	}

	jobs := runner.Jobs()
	job, ok := pipeline.Lookup(jobs, jobName)
	if !ok {
		log.Printf("Unknown job: %s", jobName)
		log.Printf("Available jobs:")
		for _, j := range jobs {
			log.Printf("  - %s", j.Name)
		}
		return 1
	}

	log.Printf("[run] Executing %s (workers=%d, policy=%s, landmark=%s)...",
		job.Name, cfg.Workers, cfg.Policy, cfg.LandmarkMode)
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("[run] %s failed: %v", job.Name, err)
		return 1
	}
	log.Printf("[run] %s completed successfully in %s", job.Name, time.Since(start).Round(time.Millisecond))
	return 0
}

// openResultsDB opens the result store, switching to RESULTS_DB when set, and
// makes sure its tables exist.
func openResultsDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.ResultsDB != "" && cfg.DBDriver == db.DriverPgx {
		var err error
		dsn, err = db.WithDBName(dsn, cfg.ResultsDB)
		if err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, sqlDB, cfg.DBDriver); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Printf("Database connection: OK (%s)", cfg.DBDriver)
	return sqlDB, nil
}

// runID names a run after its input file, or the trips file when only the
// downstream jobs run.
func runID(cfg *config.Config) string {
	path := cfg.InputPath
	if path == "" {
		path = cfg.TripsPath
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// wrapPublisherMetrics keeps a nil collector from becoming a non-nil interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}
