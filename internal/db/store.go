package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"taxi-revenue/internal/revenue"
	"taxi-revenue/internal/segment"
)

const insertBatchSize = 500

var tripColumns = []string{
	"run_id", "vehicle_id", "start_time", "hours",
	"start_lat", "start_lon", "end_lat", "end_lon",
	"occupied", "too_fast", "near_landmark", "distance_km", "segments",
}

func tripRow(runID string, t segment.Segment) []any {
	return []any{
		runID, t.VehicleID, t.StartTime, t.Hours,
		t.StartLat, t.StartLon, t.EndLat, t.EndLon,
		t.Occupied, t.TooFast, t.NearLandmark, t.DistanceKm, t.Segments,
	}
}

// StoreTrips replaces the trips recorded for runID. Postgres rows go through
// COPY on the underlying pgx connection; sqlite gets batched multi-row INSERTs.
// Rows from an earlier run with the same ID are deleted first.
func StoreTrips(ctx context.Context, db *sql.DB, driver, runID string, trips []segment.Segment) error {
	if _, err := db.ExecContext(ctx, rebind(driver, `DELETE FROM taxi_trips WHERE run_id = ?`), runID); err != nil {
		return fmt.Errorf("clear trips for %s: %w", runID, err)
	}
	if len(trips) == 0 {
		return nil
	}
	if driver == DriverPgx {
		return copyTrips(ctx, db, runID, trips)
	}
	return insertTrips(ctx, db, driver, runID, trips)
}

func copyTrips(ctx context.Context, db *sql.DB, runID string, trips []segment.Segment) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	rows := make([][]any, 0, len(trips))
	for _, t := range trips {
		rows = append(rows, tripRow(runID, t))
	}
	err = conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(ctx, pgx.Identifier{"taxi_trips"}, tripColumns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return fmt.Errorf("copy trips: %w", err)
	}
	return nil
}

func insertTrips(ctx context.Context, db *sql.DB, driver, runID string, trips []segment.Segment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(trips); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(trips) {
			end = len(trips)
		}
		batch := trips[i:end]

		var placeholders []string
		args := make([]any, 0, len(batch)*len(tripColumns))
		for _, t := range batch {
			placeholders = append(placeholders, "("+strings.TrimSuffix(strings.Repeat("?,", len(tripColumns)), ",")+")")
			args = append(args, tripRow(runID, t)...)
		}
		query := fmt.Sprintf("INSERT INTO taxi_trips (%s) VALUES %s",
			strings.Join(tripColumns, ","), strings.Join(placeholders, ","))
		if _, err := tx.ExecContext(ctx, rebind(driver, query), args...); err != nil {
			return fmt.Errorf("insert trips batch %d: %w", i/insertBatchSize, err)
		}
	}
	return tx.Commit()
}

// CountTrips returns the number of stored trips for runID. Verification
// only; the jobs never read it back.
func CountTrips(ctx context.Context, db *sql.DB, driver, runID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, rebind(driver, `SELECT COUNT(*) FROM taxi_trips WHERE run_id = ?`), runID).Scan(&n)
	return n, err
}

// StoreTotal records the revenue summary of a run, replacing any earlier one.
func StoreTotal(ctx context.Context, db *sql.DB, driver, runID string, sum revenue.Summary) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, rebind(driver, `DELETE FROM taxi_revenue_runs WHERE run_id = ?`), runID); err != nil {
		return fmt.Errorf("clear total: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		rebind(driver, `INSERT INTO taxi_revenue_runs (run_id, revenue, trips, computed_at) VALUES (?,?,?,?)`),
		runID, sum.Revenue, sum.Trips, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert total: %w", err)
	}
	return tx.Commit()
}

// LoadTotal returns the stored summary for runID. Verification only; the
// jobs never read it back.
func LoadTotal(ctx context.Context, db *sql.DB, driver, runID string) (revenue.Summary, error) {
	var sum revenue.Summary
	err := db.QueryRowContext(ctx,
		rebind(driver, `SELECT revenue, trips FROM taxi_revenue_runs WHERE run_id = ?`), runID,
	).Scan(&sum.Revenue, &sum.Trips)
	return sum, err
}

// StoreDailyRevenue replaces the stored revenue of every day present in rows.
// Days not in rows are left alone, so reruns over the same input are
// idempotent.
func StoreDailyRevenue(ctx context.Context, db *sql.DB, driver string, rows []revenue.DayRevenue) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(rows); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[i:end]

		days := make([]any, 0, len(batch))
		var in, values []string
		args := make([]any, 0, len(batch)*2)
		for _, r := range batch {
			days = append(days, r.Day)
			in = append(in, "?")
			values = append(values, "(?,?)")
			args = append(args, r.Day, r.Revenue)
		}
		del := fmt.Sprintf("DELETE FROM taxi_daily_revenue WHERE day IN (%s)", strings.Join(in, ","))
		if _, err := tx.ExecContext(ctx, rebind(driver, del), days...); err != nil {
			return fmt.Errorf("clear daily revenue: %w", err)
		}
		ins := "INSERT INTO taxi_daily_revenue (day, revenue) VALUES " + strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, rebind(driver, ins), args...); err != nil {
			return fmt.Errorf("insert daily revenue: %w", err)
		}
	}
	return tx.Commit()
}

// LoadDailyRevenue returns every stored day in chronological order.
// Verification only; the jobs never read it back.
func LoadDailyRevenue(ctx context.Context, db *sql.DB) ([]revenue.DayRevenue, error) {
	rows, err := db.QueryContext(ctx, `SELECT day, revenue FROM taxi_daily_revenue ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("query daily revenue: %w", err)
	}
	defer rows.Close()

	var out []revenue.DayRevenue
	for rows.Next() {
		var r revenue.DayRevenue
		if err := rows.Scan(&r.Day, &r.Revenue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rebind turns ? placeholders into $n for postgres.
func rebind(driver, query string) string {
	if driver != DriverPgx {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
