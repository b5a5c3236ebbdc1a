// Package segment defines the movement segment value type, its derived
// kinematic flags, and the merge rule that chains segments into trips.
package segment

import (
	"fmt"
	"strings"
	"time"

	"taxi-revenue/internal/geo"
)

// Landmark and speed limits applied to every segment.
const (
	LandmarkLat    = 37.62131
	LandmarkLon    = -122.37896
	LandmarkRadius = 1.0 / 111 // degrees, roughly one kilometer
	MaxSpeedKmh    = 200.0

	// StatusEmpty is the terminal status code of a segment without a passenger.
	StatusEmpty = 'E'
)

// LandmarkMode selects how proximity to the landmark is measured.
type LandmarkMode int

const (
	// LineMode measures the distance to the infinite line through the segment
	// endpoints, so an extension of the segment can flag it as near.
	LineMode LandmarkMode = iota
	// SegmentMode measures the distance to the bounded segment.
	SegmentMode
)

func (m LandmarkMode) String() string {
	if m == SegmentMode {
		return "segment"
	}
	return "line"
}

// ParseLandmarkMode maps "line" and "segment" to a LandmarkMode.
func ParseLandmarkMode(s string) (LandmarkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "line":
		return LineMode, nil
	case "segment":
		return SegmentMode, nil
	default:
		return LineMode, fmt.Errorf("unknown landmark mode %q", s)
	}
}

// Segment is one vehicle movement between two observed positions, or a trip
// built from several contiguous movements.
type Segment struct {
	VehicleID    int
	StartTime    time.Time
	Hours        float64
	StartLat     float64
	StartLon     float64
	EndLat       float64
	EndLon       float64
	Occupied     bool
	TooFast      bool
	NearLandmark bool
	DistanceKm   float64
	Segments     int // raw segments absorbed into this one
}

// New builds a raw segment from two timestamped positions and the terminal
// status code. The end status decides occupancy for the whole segment.
func New(id int, start, end time.Time, startLat, startLon, endLat, endLon float64, status byte, mode LandmarkMode) Segment {
	s := Segment{
		VehicleID: id,
		StartTime: start,
		Hours:     float64(end.Sub(start).Milliseconds()) / 3_600_000,
		StartLat:  startLat,
		StartLon:  startLon,
		EndLat:    endLat,
		EndLon:    endLon,
		Occupied:  status != StatusEmpty,
		Segments:  1,
	}
	return Derive(s, mode)
}

// Derive recomputes DistanceKm, TooFast and NearLandmark from the endpoints
// and duration. A zero duration is not guarded: a positive distance gives an
// infinite speed (too fast) and a zero distance gives NaN (not too fast).
func Derive(s Segment, mode LandmarkMode) Segment {
	s.DistanceKm = geo.Distance(s.StartLat, s.StartLon, s.EndLat, s.EndLon)
	s.TooFast = s.Speed() > MaxSpeedKmh
	s.NearLandmark = nearLandmark(s, mode)
	return s
}

// Speed returns the average speed in km/h.
func (s Segment) Speed() float64 {
	return s.DistanceKm / s.Hours
}

func nearLandmark(s Segment, mode LandmarkMode) bool {
	var d float64
	if mode == SegmentMode {
		d = geo.SegmentDistance(LandmarkLat, LandmarkLon, s.StartLat, s.StartLon, s.EndLat, s.EndLon)
	} else {
		d = geo.LineDistance(LandmarkLat, LandmarkLon, s.StartLat, s.StartLon, s.EndLat, s.EndLon)
	}
	return d <= LandmarkRadius
}

// CanMerge reports whether b continues a (a ends where b starts) or precedes
// it (a starts where b ends) with the same occupancy. Coordinates must match
// exactly; no tolerance is applied.
func CanMerge(a, b Segment) bool {
	if a.Occupied != b.Occupied {
		return false
	}
	return followedBy(a, b) || followedBy(b, a)
}

func followedBy(a, b Segment) bool {
	return a.EndLat == b.StartLat && a.EndLon == b.StartLon
}

// Merge returns a new segment covering a and b. The forward orientation (a
// ends where b starts) is tried first. The merged segment keeps a's vehicle,
// sums duration, distance and segment count, ANDs TooFast and ORs
// NearLandmark. Neither input is modified. ok is false when the two cannot
// be merged.
func Merge(a, b Segment) (merged Segment, ok bool) {
	if a.Occupied != b.Occupied {
		return a, false
	}
	merged = a
	switch {
	case followedBy(a, b):
		merged.EndLat = b.EndLat
		merged.EndLon = b.EndLon
	case followedBy(b, a):
		merged.StartLat = b.StartLat
		merged.StartLon = b.StartLon
		merged.StartTime = b.StartTime
	default:
		return a, false
	}
	merged.Hours = a.Hours + b.Hours
	merged.TooFast = a.TooFast && b.TooFast
	merged.NearLandmark = a.NearLandmark || b.NearLandmark
	merged.DistanceKm = a.DistanceKm + b.DistanceKm
	merged.Segments = a.Segments + b.Segments
	return merged, true
}
