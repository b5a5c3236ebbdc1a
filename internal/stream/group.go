package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Metrics receives progress from the facility. A nil Metrics is allowed.
type Metrics interface {
	RecordsRead(n int)
	RecordsSkipped(n int)
	KeyProcessed(d time.Duration)
	KeyFailed()
}

// KeyError is the failure of one key's processing unit.
type KeyError[K comparable] struct {
	Key K
	Err error
}

func (e *KeyError[K]) Error() string { return fmt.Sprintf("key %v: %v", e.Key, e.Err) }

func (e *KeyError[K]) Unwrap() error { return e.Err }

// Options configures Process.
type Options struct {
	Workers int
	Metrics Metrics
}

// Group partitions records by key. Records keep their arrival order within a
// key; the order of keys is unspecified.
func Group[K comparable, V any](records []V, key func(V) K) map[K][]V {
	groups := make(map[K][]V)
	for _, r := range records {
		k := key(r)
		groups[k] = append(groups[k], r)
	}
	return groups
}

// Process runs fn once per key with at most opts.Workers units in flight. A
// unit that returns an error or panics is reported as a KeyError and does not
// affect other keys. When ctx is cancelled no further keys are dispatched and
// ctx's error is returned together with the results gathered so far.
func Process[K comparable, V, R any](ctx context.Context, groups map[K][]V, opts Options, fn func(context.Context, K, []V) (R, error)) (map[K]R, []*KeyError[K], error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[K]R, len(groups))
		failed  []*KeyError[K]
	)
	g.SetLimit(workers)

	for k, vs := range groups {
		k, vs := k, vs
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			r, err := runUnit(ctx, k, vs, fn)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, &KeyError[K]{Key: k, Err: err})
				if opts.Metrics != nil {
					opts.Metrics.KeyFailed()
				}
				return nil
			}
			results[k] = r
			if opts.Metrics != nil {
				opts.Metrics.KeyProcessed(time.Since(start))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, failed, ctx.Err()
}

func runUnit[K comparable, V, R any](ctx context.Context, k K, vs []V, fn func(context.Context, K, []V) (R, error)) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, k, vs)
}

// MapChunks splits records into at most workers contiguous chunks and applies
// fn to each chunk concurrently. Results are returned in chunk order.
func MapChunks[T, R any](records []T, workers int, fn func([]T) R) []R {
	if len(records) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}
	size := (len(records) + workers - 1) / workers
	var chunks [][]T
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[i:end])
	}

	out := make([]R, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = fn(c)
		}()
	}
	wg.Wait()
	return out
}

// Reduce folds each key's values into a single result.
func Reduce[K comparable, V, R any](groups map[K][]V, fn func(K, []V) R) map[K]R {
	out := make(map[K]R, len(groups))
	for k, vs := range groups {
		out[k] = fn(k, vs)
	}
	return out
}
