// Package pipeline wires parsing, reconstruction, validation and aggregation
// into the batch jobs run by cmd/revenue.
package pipeline

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"strconv"
	"time"

	"taxi-revenue/internal/metrics"
	"taxi-revenue/internal/publisher"
	"taxi-revenue/internal/revenue"
	"taxi-revenue/internal/segment"
	"taxi-revenue/internal/stream"
)

// Options are the processing knobs shared by every job.
type Options struct {
	Location       *time.Location
	Workers        int
	Policy         stream.Policy
	EmitEmptyTrips bool
	LandmarkMode   segment.LandmarkMode
	// RunID keys the rows a job writes to the result store.
	RunID   string
	Metrics *metrics.Collector
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) streamMetrics(job string) stream.Metrics {
	if o.Metrics == nil {
		return nil
	}
	return o.Metrics.Stream(job)
}

// TripPublisher receives reconstructed trips and revenue totals.
type TripPublisher interface {
	PublishTrip(msg publisher.TripMessage) error
	PublishSummary(sum revenue.Summary) error
}

// ObjectStore holds archived parquet files.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, body []byte, meta map[string]string) error
}

// Sinks are the optional destinations besides the text outputs. Nil fields
// are skipped.
type Sinks struct {
	DB        *sql.DB
	DBDriver  string
	Publisher TripPublisher
	Archive   ObjectStore
}

// readTrips parses intermediate trip records from r.
func readTrips(ctx context.Context, r io.Reader, job string, opts Options) ([]segment.Segment, stream.Stats, error) {
	loc := opts.loc()
	return stream.Read(ctx, r, func(line string) (segment.Segment, error) {
		return segment.ParseTrip(line, loc)
	}, opts.Policy, opts.streamMetrics(job))
}

func writeLines(w io.Writer, lines func(bw *bufio.Writer) error) error {
	bw := bufio.NewWriter(w)
	if err := lines(bw); err != nil {
		return err
	}
	return bw.Flush()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
