package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"taxi-revenue/internal/archive"
)

// Job is a named unit of work runnable from the command line.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Paths are the text files the jobs read and write.
type Paths struct {
	Input   string
	Trips   string
	Revenue string
	Series  string
}

// Runner runs the jobs against files on disk.
type Runner struct {
	Paths Paths
	Opts  Options
	Sinks Sinks
}

// Jobs returns the job registry. "all" runs the other jobs in order and stops
// at the first failure.
func (r *Runner) Jobs() []Job {
	jobs := []Job{
		{Name: "reconstruct", Run: r.track("reconstruct", r.runReconstruct)},
		{Name: "revenue", Run: r.track("revenue", r.runRevenue)},
		{Name: "series", Run: r.track("series", r.runSeries)},
		{Name: "archive", Run: r.track("archive", r.runArchive)},
	}
	all := func(ctx context.Context) error {
		for _, j := range jobs {
			log.Printf("[all] running %s", j.Name)
			if err := j.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", j.Name, err)
			}
		}
		return nil
	}
	return append(jobs, Job{Name: "all", Run: all})
}

// Lookup finds a job by name.
func Lookup(jobs []Job, name string) (Job, bool) {
	for _, j := range jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

func (r *Runner) track(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := fn(ctx)
		if m := r.Opts.Metrics; m != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.JobRuns.WithLabelValues(name, result).Inc()
		}
		return err
	}
}

func (r *Runner) runReconstruct(ctx context.Context) error {
	if r.Paths.Input == "" {
		return errors.New("INPUT_PATH is not set")
	}
	in, err := os.Open(r.Paths.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFile(r.Paths.Trips, func(w io.Writer) error {
		_, err := Reconstruct(ctx, in, w, r.Opts, r.Sinks)
		return err
	})
}

func (r *Runner) runRevenue(ctx context.Context) error {
	in, err := os.Open(r.Paths.Trips)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFile(r.Paths.Revenue, func(w io.Writer) error {
		_, err := Revenue(ctx, in, w, r.Opts, r.Sinks)
		return err
	})
}

func (r *Runner) runSeries(ctx context.Context) error {
	in, err := os.Open(r.Paths.Trips)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFile(r.Paths.Series, func(w io.Writer) error {
		_, err := Series(ctx, in, w, r.Opts, r.Sinks)
		return err
	})
}

func (r *Runner) runArchive(ctx context.Context) error {
	if r.Sinks.Archive == nil {
		log.Println("[archive] R2 not configured, skipping archive")
		return nil
	}
	in, err := os.Open(r.Paths.Trips)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = Archive(ctx, in, archive.Key(r.Paths.Trips), r.Opts, r.Sinks.Archive)
	return err
}

// writeFile writes through a temporary sibling and renames it into place. A
// failed job leaves no output file.
func writeFile(path string, fn func(w io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = fn(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
