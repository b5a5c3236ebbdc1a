package geo

import "math"

// LineDistance returns the distance, in raw degrees, from the point (lat, lon)
// to the infinite line through (lat1, lon1) and (lat2, lon2). Degrees are
// treated as cartesian coordinates with longitude on the x axis.
//
// The line is built from its slope, so a vertical line (equal longitudes) or
// a degenerate one (equal endpoints) yields NaN, which never compares as
// close to anything.
func LineDistance(lat, lon, lat1, lon1, lat2, lon2 float64) float64 {
	slope := (lat2 - lat1) / (lon2 - lon1)
	const b = -1.0
	c := lat1 - lon1*slope
	return math.Abs(slope*lon+b*lat+c) / math.Sqrt(slope*slope+b*b)
}

// SegmentDistance returns the distance, in raw degrees, from the point
// (lat, lon) to the bounded segment between (lat1, lon1) and (lat2, lon2).
// The projection is clamped to the segment so extensions beyond either end
// are not considered.
func SegmentDistance(lat, lon, lat1, lon1, lat2, lon2 float64) float64 {
	dx := lon2 - lon1
	dy := lat2 - lat1
	segLen2 := dx*dx + dy*dy
	t := 0.0
	if segLen2 > 0 {
		t = ((lon-lon1)*dx + (lat-lat1)*dy) / segLen2
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	px := lon1 + t*dx - lon
	py := lat1 + t*dy - lat
	return math.Sqrt(px*px + py*py)
}
