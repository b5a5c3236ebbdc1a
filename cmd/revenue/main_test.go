package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"taxi-revenue/internal/config"
	"taxi-revenue/internal/db"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		TripsPath:         filepath.Join(dir, "trips.txt"),
		RevenuePath:       filepath.Join(dir, "revenue.txt"),
		SeriesPath:        filepath.Join(dir, "series.txt"),
		Workers:           1,
		Location:          time.UTC,
		DBDriver:          db.DriverSQLite,
		DatabaseURL:       filepath.Join(dir, "results.db"),
		NATSSubjectPrefix: "trips",
	}
}

func TestRunFailedJobClosesSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	// No trips file, so the revenue job fails after the store is open.
	if code := run([]string{"revenue", "run", "revenue"}, cfg); code != 1 {
		t.Fatalf("run=%d want 1", code)
	}
	if _, err := os.Stat(cfg.DatabaseURL + "-wal"); !os.IsNotExist(err) {
		t.Fatalf("store left open after failed job: %v", err)
	}
}

func TestRunSucceeds(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	line := "5,0.5,37.57131,-122.37896,37.67131,-122.37796,true,false,true,2010-12-31 09:00:00,11.1,1\n"
	if err := os.WriteFile(cfg.TripsPath, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := run([]string{"revenue", "run", "revenue"}, cfg); code != 0 {
		t.Fatalf("run=%d want 0", code)
	}

	sqlDB, err := db.Open(db.DriverSQLite, cfg.DatabaseURL)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer sqlDB.Close()
	sum, err := db.LoadTotal(context.Background(), sqlDB, db.DriverSQLite, "trips")
	if err != nil || sum.Trips != 1 {
		t.Fatalf("LoadTotal=%+v,%v want one trip for run trips", sum, err)
	}
}

func TestRunRejectsUnknownJob(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.DatabaseURL = ""
	if code := run([]string{"revenue", "run", "histogram"}, cfg); code != 1 {
		t.Fatalf("run=%d want 1", code)
	}
	if code := run([]string{"revenue", "bogus"}, cfg); code != 2 {
		t.Fatalf("run with bad args=%d want 2", code)
	}
}
