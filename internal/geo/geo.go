package geo

import (
	"fmt"
	"math"
)

const earthRadiusM = 6371000.0

// DistanceMeters returns the great-circle (haversine) distance between two
// WGS84 coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Centroid returns the mean coordinate of the given points. Valid only for
// venue-scale point sets that do not straddle the antimeridian.
func Centroid(lats, lons []float64) (float64, float64) {
	if len(lats) == 0 || len(lats) != len(lons) {
		return 0, 0
	}
	var sumLat, sumLon float64
	for i := range lats {
		sumLat += lats[i]
		sumLon += lons[i]
	}
	n := float64(len(lats))
	return sumLat / n, sumLon / n
}

// VarianceM2 returns the mean squared distance (in square meters) of the
// points from the given centroid.
func VarianceM2(lats, lons []float64, centerLat, centerLon float64) float64 {
	if len(lats) == 0 || len(lats) != len(lons) {
		return 0
	}
	var sum float64
	for i := range lats {
		d := DistanceMeters(lats[i], lons[i], centerLat, centerLon)
		sum += d * d
	}
	return sum / float64(len(lats))
}

// Key rounds a coordinate to a ~11m grid cell. Two centroids of the same
// physical cluster land in the same cell, which is what the unique
// (session_id, geo_key) index keys on.
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.4f:%.4f", lat, lon)
}
