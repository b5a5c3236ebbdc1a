// Package revenue filters finished trips and turns them into fare totals.
package revenue

import (
	"sort"
	"time"

	"taxi-revenue/internal/segment"
)

// Flat fare model.
const (
	PerKm    = 1.79
	BaseFare = 3.25
)

// Summary is the total fare over all valid trips.
type Summary struct {
	Revenue float64 `json:"revenue"`
	Trips   int     `json:"trips"`
}

// DayRevenue is the fare attributed to one calendar day.
type DayRevenue struct {
	Day     string  `json:"day"`
	Revenue float64 `json:"revenue"`
}

// Valid reports whether a trip earns revenue: occupied, near the landmark and
// not too fast.
func Valid(s segment.Segment) bool {
	return !s.TooFast && s.NearLandmark && s.Occupied
}

// ValidForSeries is Valid restricted to trips that actually moved.
func ValidForSeries(s segment.Segment) bool {
	return Valid(s) && s.DistanceKm > 0
}

// Fare returns the price of a trip.
func Fare(s segment.Segment) float64 {
	return s.DistanceKm*PerKm + BaseFare
}

// Total sums the fares of the valid trips and counts them.
func Total(trips []segment.Segment) Summary {
	var sum Summary
	for _, s := range trips {
		if !Valid(s) {
			continue
		}
		sum.Revenue += Fare(s)
		sum.Trips++
	}
	return sum
}

// Add folds other into s.
func (s Summary) Add(other Summary) Summary {
	return Summary{Revenue: s.Revenue + other.Revenue, Trips: s.Trips + other.Trips}
}

// Series emits one (day, fare) pair per trip valid for the time series, keyed
// by the trip's start day in loc. Pairs are not summed here.
func Series(trips []segment.Segment, loc *time.Location) []DayRevenue {
	var out []DayRevenue
	for _, s := range trips {
		if !ValidForSeries(s) {
			continue
		}
		out = append(out, DayRevenue{Day: segment.DayKey(s.StartTime, loc), Revenue: Fare(s)})
	}
	return out
}

// SortByDay orders daily rows chronologically in place.
func SortByDay(rows []DayRevenue) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Day < rows[j].Day })
}
