package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"

	"taxi-revenue/internal/archive"
	"taxi-revenue/internal/revenue"
)

// Archive reads intermediate trip records from r and uploads them as parquet
// under key. An object already stored under key is left untouched and
// reported as skipped.
func Archive(ctx context.Context, r io.Reader, key string, opts Options, store ObjectStore) (skipped bool, err error) {
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		log.Printf("[archive] %s already exists, skipping", key)
		return true, nil
	}

	all, _, err := readTrips(ctx, r, "archive", opts)
	if err != nil {
		return false, fmt.Errorf("read trips: %w", err)
	}
	if len(all) == 0 {
		log.Printf("[archive] no trips to archive")
		return true, nil
	}

	body, err := archive.Encode(all, opts.loc())
	if err != nil {
		return false, err
	}
	meta := map[string]string{
		"rows":  strconv.Itoa(len(all)),
		"valid": strconv.Itoa(revenue.Total(all).Trips),
	}
	if opts.RunID != "" {
		meta["run"] = opts.RunID
	}
	if err := store.Put(ctx, key, body, meta); err != nil {
		return false, err
	}
	log.Printf("[archive] archived %d trips (%.2f KB) to %s", len(all), float64(len(body))/1024, key)
	return false, nil
}
