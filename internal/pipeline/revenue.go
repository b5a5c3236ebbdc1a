package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	"taxi-revenue/internal/db"
	"taxi-revenue/internal/revenue"
	"taxi-revenue/internal/segment"
	"taxi-revenue/internal/stream"
)

// Revenue reads intermediate trip records from r and writes the total fare of
// the valid trips followed by their count, one value per line.
func Revenue(ctx context.Context, r io.Reader, w io.Writer, opts Options, sinks Sinks) (revenue.Summary, error) {
	all, rs, err := readTrips(ctx, r, "revenue", opts)
	if err != nil {
		return revenue.Summary{}, fmt.Errorf("read trips: %w", err)
	}

	var sum revenue.Summary
	for _, part := range stream.MapChunks(all, opts.Workers, revenue.Total) {
		sum = sum.Add(part)
	}
	log.Printf("[revenue] %d of %d trips valid (%d skipped), revenue %s",
		sum.Trips, len(all), rs.Skipped, formatAmount(sum.Revenue))

	err = writeLines(w, func(bw *bufio.Writer) error {
		_, err := fmt.Fprintf(bw, "%s\n%d\n", formatAmount(sum.Revenue), sum.Trips)
		return err
	})
	if err != nil {
		return sum, fmt.Errorf("write revenue: %w", err)
	}
	if opts.Metrics != nil {
		opts.Metrics.ValidTrips.Add(float64(sum.Trips))
		opts.Metrics.Revenue.Set(sum.Revenue)
	}

	if sinks.DB != nil {
		if err := db.StoreTotal(ctx, sinks.DB, sinks.DBDriver, opts.RunID, sum); err != nil {
			return sum, fmt.Errorf("store total: %w", err)
		}
	}
	if sinks.Publisher != nil {
		if err := sinks.Publisher.PublishSummary(sum); err != nil {
			return sum, fmt.Errorf("publish summary: %w", err)
		}
	}
	return sum, nil
}

// Series reads intermediate trip records from r, emits one (day, fare) pair
// per trip valid for the series, sums the pairs by day and writes
// "day<TAB>revenue" lines in day order.
func Series(ctx context.Context, r io.Reader, w io.Writer, opts Options, sinks Sinks) ([]revenue.DayRevenue, error) {
	loc := opts.loc()
	all, rs, err := readTrips(ctx, r, "series", opts)
	if err != nil {
		return nil, fmt.Errorf("read trips: %w", err)
	}

	var pairs []revenue.DayRevenue
	for _, part := range stream.MapChunks(all, opts.Workers, func(c []segment.Segment) []revenue.DayRevenue {
		return revenue.Series(c, loc)
	}) {
		pairs = append(pairs, part...)
	}

	byDay := stream.Reduce(
		stream.Group(pairs, func(p revenue.DayRevenue) string { return p.Day }),
		func(day string, ps []revenue.DayRevenue) revenue.DayRevenue {
			out := revenue.DayRevenue{Day: day}
			for _, p := range ps {
				out.Revenue += p.Revenue
			}
			return out
		})
	rows := make([]revenue.DayRevenue, 0, len(byDay))
	for _, row := range byDay {
		rows = append(rows, row)
	}
	revenue.SortByDay(rows)
	log.Printf("[series] %d fares over %d days (%d skipped)", len(pairs), len(rows), rs.Skipped)

	err = writeLines(w, func(bw *bufio.Writer) error {
		for _, row := range rows {
			if _, err := fmt.Fprintf(bw, "%s\t%s\n", row.Day, formatAmount(row.Revenue)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("write series: %w", err)
	}

	if sinks.DB != nil {
		if err := db.StoreDailyRevenue(ctx, sinks.DB, sinks.DBDriver, rows); err != nil {
			return rows, fmt.Errorf("store daily revenue: %w", err)
		}
	}
	return rows, nil
}
