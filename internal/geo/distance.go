// Package geo provides great-circle distance, nearest-area joins and
// bounding-box tests over reference areas and points of interest.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// Unit conversion factors. They are not exact inverses of each other.
const (
	kmPerMile = 1.60934
	milePerKm = 0.621371
)

// DistanceKm returns the haversine great-circle distance in kilometers.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Guard against a > 1 from rounding at antipodes.
	a = math.Min(1, math.Max(0, a))
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// MilesToKm converts miles to kilometers.
func MilesToKm(mi float64) float64 { return mi * kmPerMile }

// KmToMiles converts kilometers to miles.
func KmToMiles(km float64) float64 { return km * milePerKm }

// ValidCoord reports whether lat/lon are finite and within range.
func ValidCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
