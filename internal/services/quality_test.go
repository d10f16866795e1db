package services

import "testing"

func f(v float64) *float64 { return &v }

func TestQualityWeightForNoLocation(t *testing.T) {
	if w := QualityWeightFor(nil, nil, f(5)); w != 0 {
		t.Fatalf("weight without location = %f, want 0", w)
	}
	if w := QualityWeightFor(f(40.0), nil, f(5)); w != 0 {
		t.Fatalf("weight with lat only = %f, want 0", w)
	}
}

func TestQualityWeightForMissingAccuracy(t *testing.T) {
	if w := QualityWeightFor(f(40.0), f(-74.0), nil); w != 0.4 {
		t.Fatalf("weight with nil accuracy = %f, want 0.4", w)
	}
	if w := QualityWeightFor(f(40.0), f(-74.0), f(0)); w != 0.4 {
		t.Fatalf("weight with zero accuracy = %f, want 0.4", w)
	}
}

func TestQualityWeightForBands(t *testing.T) {
	cases := []struct {
		accuracy float64
		want     float64
	}{
		{5, 1.0},
		{10, 1.0},
		{15, 0.9},
		{20, 0.9},
		{35, 0.8},
		{50, 0.6},
		{80, 0.4},
		{500, 0.4},
	}
	for _, tc := range cases {
		if w := QualityWeightFor(f(40.0), f(-74.0), f(tc.accuracy)); w != tc.want {
			t.Fatalf("weight(accuracy=%f) = %f, want %f", tc.accuracy, w, tc.want)
		}
	}
}

func TestQualityWeightMonotoneInAccuracy(t *testing.T) {
	prev := 2.0
	for _, acc := range []float64{1, 10, 11, 20, 21, 35, 36, 50, 51, 100} {
		w := QualityWeightFor(f(40.0), f(-74.0), f(acc))
		if w > prev {
			t.Fatalf("weight increased with worse accuracy at %f: %f > %f", acc, w, prev)
		}
		prev = w
	}
}
