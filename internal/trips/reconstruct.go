// Package trips rebuilds complete trips from one vehicle's segments.
package trips

import "taxi-revenue/internal/segment"

// Reconstruct merges one vehicle's segments into trips with a greedy single
// pass. The first queued segment is taken off the front and merged into the
// first remaining segment that accepts it; if none does, it is a finished
// trip. The result depends on input order and is not guaranteed to be the
// smallest possible set of trips. The input slice is not modified.
func Reconstruct(segments []segment.Segment) []segment.Segment {
	queue := make([]segment.Segment, len(segments))
	copy(queue, segments)

	var out []segment.Segment
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		absorbed := false
		for i := range queue {
			if merged, ok := segment.Merge(queue[i], curr); ok {
				queue[i] = merged
				absorbed = true
				break
			}
		}
		if !absorbed {
			out = append(out, curr)
		}
	}
	return out
}
