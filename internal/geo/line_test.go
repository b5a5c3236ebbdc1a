package geo

import (
	"math"
	"testing"
)

func TestLineDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		lat, lon               float64
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{name: "horizontal line", lat: 0, lon: 0, lat1: 1, lon1: 0, lat2: 1, lon2: 2, want: 1},
		{name: "point on line", lat: 2, lon: 2, lat1: 0, lon1: 0, lat2: 1, lon2: 1, want: 0},
		{name: "diagonal", lat: 0, lon: 1, lat1: 0, lon1: 0, lat2: 1, lon2: 1, want: math.Sqrt2 / 2},
		{name: "beyond the segment end", lat: 0, lon: 10, lat1: 0, lon1: 0, lat2: 0, lon2: 1, want: 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := LineDistance(tc.lat, tc.lon, tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("LineDistance=%v want %v", got, tc.want)
			}
		})
	}
}

func TestLineDistanceDegenerate(t *testing.T) {
	t.Parallel()

	if got := LineDistance(0, 0, 1, 5, 2, 5); !math.IsNaN(got) {
		t.Fatalf("vertical line: LineDistance=%v want NaN", got)
	}
	if got := LineDistance(0, 0, 1, 1, 1, 1); !math.IsNaN(got) {
		t.Fatalf("single point: LineDistance=%v want NaN", got)
	}
}

func TestSegmentDistanceClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		lat, lon               float64
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{name: "beyond the segment end", lat: 0, lon: 10, lat1: 0, lon1: 0, lat2: 0, lon2: 1, want: 9},
		{name: "before the start", lat: 0, lon: -3, lat1: 0, lon1: 0, lat2: 0, lon2: 1, want: 3},
		{name: "perpendicular foot inside", lat: 2, lon: 0.5, lat1: 0, lon1: 0, lat2: 0, lon2: 1, want: 2},
		{name: "vertical segment", lat: 0.5, lon: 1, lat1: 0, lon1: 0, lat2: 1, lon2: 0, want: 1},
		{name: "single point", lat: 3, lon: 4, lat1: 0, lon1: 0, lat2: 0, lon2: 0, want: 5},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SegmentDistance(tc.lat, tc.lon, tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("SegmentDistance=%v want %v", got, tc.want)
			}
		})
	}
}
