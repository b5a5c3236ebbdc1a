package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"
)

func Open(driver, dsn string) (*sql.DB, error) {
	if driver != DriverPgx && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// One physical connection; sqlite serializes writers anyway.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			"PRAGMA busy_timeout=5000;",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
				break
			}
		}
		return db, nil
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Migrate creates the result tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts := postgresSchema
	if driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS taxi_trips (
  run_id        TEXT NOT NULL,
  vehicle_id    INTEGER NOT NULL,
  start_time    TIMESTAMPTZ NOT NULL,
  hours         DOUBLE PRECISION NOT NULL,
  start_lat     DOUBLE PRECISION NOT NULL,
  start_lon     DOUBLE PRECISION NOT NULL,
  end_lat       DOUBLE PRECISION NOT NULL,
  end_lon       DOUBLE PRECISION NOT NULL,
  occupied      BOOLEAN NOT NULL,
  too_fast      BOOLEAN NOT NULL,
  near_landmark BOOLEAN NOT NULL,
  distance_km   DOUBLE PRECISION NOT NULL,
  segments      INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS taxi_trips_run_idx ON taxi_trips (run_id)`,
	`CREATE TABLE IF NOT EXISTS taxi_revenue_runs (
  run_id      TEXT PRIMARY KEY,
  revenue     DOUBLE PRECISION NOT NULL,
  trips       INTEGER NOT NULL,
  computed_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS taxi_daily_revenue (
  day     TEXT PRIMARY KEY,
  revenue DOUBLE PRECISION NOT NULL
)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS taxi_trips (
  run_id        TEXT NOT NULL,
  vehicle_id    INTEGER NOT NULL,
  start_time    DATETIME NOT NULL,
  hours         REAL NOT NULL,
  start_lat     REAL NOT NULL,
  start_lon     REAL NOT NULL,
  end_lat       REAL NOT NULL,
  end_lon       REAL NOT NULL,
  occupied      INTEGER NOT NULL,
  too_fast      INTEGER NOT NULL,
  near_landmark INTEGER NOT NULL,
  distance_km   REAL NOT NULL,
  segments      INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS taxi_trips_run_idx ON taxi_trips (run_id)`,
	`CREATE TABLE IF NOT EXISTS taxi_revenue_runs (
  run_id      TEXT PRIMARY KEY,
  revenue     REAL NOT NULL,
  trips       INTEGER NOT NULL,
  computed_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS taxi_daily_revenue (
  day     TEXT PRIMARY KEY,
  revenue REAL NOT NULL
)`,
}
