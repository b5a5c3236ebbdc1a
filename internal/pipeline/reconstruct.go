package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"taxi-revenue/internal/db"
	"taxi-revenue/internal/publisher"
	"taxi-revenue/internal/segment"
	"taxi-revenue/internal/stream"
	"taxi-revenue/internal/trips"
)

// ReconstructStats summarizes one reconstruction run.
type ReconstructStats struct {
	Read     int
	Skipped  int
	Vehicles int
	Failed   int
	Trips    int
}

// Reconstruct reads raw segment records from r, rebuilds each vehicle's trips
// concurrently and writes one intermediate record per trip to w, ordered by
// vehicle. Unoccupied trips are dropped unless opts.EmitEmptyTrips is set.
// A vehicle whose reconstruction fails is logged and left out; under the
// fail-fast policy it fails the job instead.
func Reconstruct(ctx context.Context, r io.Reader, w io.Writer, opts Options, sinks Sinks) (ReconstructStats, error) {
	var st ReconstructStats
	loc := opts.loc()
	sm := opts.streamMetrics("reconstruct")

	segs, rs, err := stream.Read(ctx, r, func(line string) (segment.Segment, error) {
		return segment.ParseRaw(line, loc, opts.LandmarkMode)
	}, opts.Policy, sm)
	st.Read, st.Skipped = rs.Read, rs.Skipped
	if err != nil {
		return st, fmt.Errorf("read segments: %w", err)
	}

	groups := stream.Group(segs, func(s segment.Segment) int { return s.VehicleID })
	st.Vehicles = len(groups)
	log.Printf("[reconstruct] %d segments from %d vehicles (%d skipped)", len(segs), len(groups), st.Skipped)

	results, failed, err := stream.Process(ctx, groups, stream.Options{Workers: opts.Workers, Metrics: sm},
		func(_ context.Context, _ int, vs []segment.Segment) ([]segment.Segment, error) {
			return trips.Reconstruct(vs), nil
		})
	if err != nil {
		return st, err
	}
	st.Failed = len(failed)
	for _, f := range failed {
		log.Printf("[reconstruct] vehicle %d failed: %v", f.Key, f.Err)
	}
	if len(failed) > 0 && opts.Policy == stream.FailFast {
		return st, failed[0]
	}

	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []segment.Segment
	for _, id := range ids {
		for _, t := range results[id] {
			if !t.Occupied && !opts.EmitEmptyTrips {
				continue
			}
			out = append(out, t)
		}
	}
	st.Trips = len(out)

	err = writeLines(w, func(bw *bufio.Writer) error {
		for _, t := range out {
			if _, err := fmt.Fprintln(bw, segment.FormatTrip(t, loc)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("write trips: %w", err)
	}
	if opts.Metrics != nil {
		opts.Metrics.TripsBuilt.Add(float64(len(out)))
	}

	if sinks.DB != nil {
		if err := db.StoreTrips(ctx, sinks.DB, sinks.DBDriver, opts.RunID, out); err != nil {
			return st, fmt.Errorf("store trips: %w", err)
		}
		log.Printf("[reconstruct] stored %d trips for run %s", len(out), opts.RunID)
	}
	if sinks.Publisher != nil {
		for _, t := range out {
			if err := sinks.Publisher.PublishTrip(publisher.NewTripMessage(t)); err != nil {
				return st, fmt.Errorf("publish trip of vehicle %d: %w", t.VehicleID, err)
			}
		}
	}

	log.Printf("[reconstruct] %d trips written", len(out))
	return st, nil
}
