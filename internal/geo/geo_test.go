package geo

import (
	"math"
	"testing"
)

func TestDistanceMetersZero(t *testing.T) {
	if d := DistanceMeters(40.7128, -74.0060, 40.7128, -74.0060); d != 0 {
		t.Fatalf("distance to self = %f, want 0", d)
	}
}

func TestDistanceMetersKnownPair(t *testing.T) {
	// ~0.001 degrees of latitude is about 111m.
	d := DistanceMeters(40.7128, -74.0060, 40.7138, -74.0060)
	if d < 105 || d > 118 {
		t.Fatalf("distance = %f, want roughly 111m", d)
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	a := DistanceMeters(51.5007, -0.1246, 51.5014, -0.1419)
	b := DistanceMeters(51.5014, -0.1419, 51.5007, -0.1246)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestCentroid(t *testing.T) {
	lat, lon := Centroid([]float64{40.0, 41.0}, []float64{-74.0, -75.0})
	if lat != 40.5 || lon != -74.5 {
		t.Fatalf("centroid = (%f, %f), want (40.5, -74.5)", lat, lon)
	}
}

func TestCentroidEmpty(t *testing.T) {
	lat, lon := Centroid(nil, nil)
	if lat != 0 || lon != 0 {
		t.Fatalf("empty centroid = (%f, %f), want (0, 0)", lat, lon)
	}
}

func TestVarianceM2SinglePoint(t *testing.T) {
	if v := VarianceM2([]float64{40.0}, []float64{-74.0}, 40.0, -74.0); v != 0 {
		t.Fatalf("variance of single point at centroid = %f, want 0", v)
	}
}

func TestVarianceM2Spread(t *testing.T) {
	// Two points ~111m apart, centroid in the middle: each is ~55.5m away,
	// so variance should be near 55.5^2.
	lats := []float64{40.7128, 40.7138}
	lons := []float64{-74.0060, -74.0060}
	cLat, cLon := Centroid(lats, lons)
	v := VarianceM2(lats, lons, cLat, cLon)
	if v < 2500 || v > 3600 {
		t.Fatalf("variance = %f, want about 3080", v)
	}
}

func TestKeyStableForNearbyPoints(t *testing.T) {
	// Within a ten-thousandth of a degree the key is identical.
	a := Key(40.71281, -74.00601)
	b := Key(40.712809, -74.006009)
	if a != b {
		t.Fatalf("keys differ for same cell: %q vs %q", a, b)
	}
}

func TestKeyDistinguishesCells(t *testing.T) {
	if Key(40.7128, -74.0060) == Key(40.7138, -74.0060) {
		t.Fatalf("keys should differ across cells")
	}
}
