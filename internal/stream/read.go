// Package stream is a small in-process grouped-stream facility: it reads
// delimited records, partitions them by key and runs one processing unit per
// key concurrently.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Policy decides what happens to a record that fails to parse.
type Policy int

const (
	// SkipInvalid drops the record and keeps reading.
	SkipInvalid Policy = iota
	// FailFast aborts the read on the first bad record.
	FailFast
)

func (p Policy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "skip"
}

// Stats counts the records seen by Read.
type Stats struct {
	Read    int
	Skipped int
}

const maxLineBytes = 1 << 20

// ErrLineTooLong reports a record longer than the reader accepts.
var ErrLineTooLong = errors.New("line exceeds 1 MiB")

// Read parses every non-blank line of r with parse. Under SkipInvalid a parse
// error, or a line longer than 1 MiB, only bumps Stats.Skipped; under FailFast
// it is returned with the line number. Reading stops early if ctx is
// cancelled.
func Read[T any](ctx context.Context, r io.Reader, parse func(string) (T, error), policy Policy, m Metrics) ([]T, Stats, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		out   []T
		stats Stats
		line  int
	)
	if m != nil {
		defer func() {
			m.RecordsRead(stats.Read)
			m.RecordsSkipped(stats.Skipped)
		}()
	}
	for {
		raw, tooLong, rerr := readLine(br)
		if rerr != nil && rerr != io.EOF {
			return out, stats, fmt.Errorf("read input: %w", rerr)
		}
		if rerr == io.EOF && len(raw) == 0 && !tooLong {
			return out, stats, nil
		}
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return out, stats, err
			}
		}

		if tooLong {
			stats.Read++
			if policy == FailFast {
				return out, stats, fmt.Errorf("line %d: %w", line, ErrLineTooLong)
			}
			stats.Skipped++
		} else if text := strings.TrimRight(string(raw), "\r\n"); strings.TrimSpace(text) != "" {
			stats.Read++
			v, err := parse(text)
			if err != nil {
				if policy == FailFast {
					return out, stats, fmt.Errorf("line %d: %w", line, err)
				}
				stats.Skipped++
			} else {
				out = append(out, v)
			}
		}

		if rerr == io.EOF {
			return out, stats, nil
		}
	}
}

// readLine returns the next line including its newline. A line longer than
// maxLineBytes is consumed up to its newline and reported as tooLong with no
// content.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		frag, rerr := br.ReadSlice('\n')
		if !tooLong {
			n := len(line) + len(frag)
			if len(frag) > 0 && frag[len(frag)-1] == '\n' {
				n--
			}
			if n > maxLineBytes {
				tooLong = true
				line = nil
			} else {
				line = append(line, frag...)
			}
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, rerr
	}
}
