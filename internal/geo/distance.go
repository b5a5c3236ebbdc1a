// Package geo holds the planar and spherical distance helpers used to derive
// segment kinematics.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used by the flat-surface formula.
const EarthRadiusKm = 6371.009

const degToRad = math.Pi / 180

// Distance returns the flat-surface (equirectangular) distance in kilometers
// between two points given in decimal degrees. The longitude difference is
// scaled by the cosine of the mean latitude. Accuracy degrades near the poles
// and across the antimeridian.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat1 - lat2) * degToRad
	dLon := math.Cos((lat1+lat2)*degToRad/2) * (lon1 - lon2) * degToRad
	return EarthRadiusKm * math.Sqrt(dLat*dLat+dLon*dLon)
}

// GreatCircleKm returns the spherical distance in kilometers using s2.
// Archived trips carry it next to the fare distance; fares never use it.
func GreatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}
