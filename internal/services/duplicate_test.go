package services

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/attendlab/gatesight-backend/internal/types"
)

func TestCosineIdentical(t *testing.T) {
	v := []float64{1, 2, 3}
	if c := cosine(v, v); math.Abs(c-1.0) > 1e-9 {
		t.Fatalf("cosine of identical vectors = %f, want 1", c)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	if c := cosine([]float64{1, 0}, []float64{0, 1}); c != 0 {
		t.Fatalf("cosine of orthogonal vectors = %f, want 0", c)
	}
}

func TestCosineZeroVector(t *testing.T) {
	if c := cosine([]float64{0, 0}, []float64{1, 2}); c != 0 {
		t.Fatalf("cosine with zero vector = %f, want 0", c)
	}
}

func TestCategoryCosineDisjoint(t *testing.T) {
	a := map[string]int64{"ga": 10}
	b := map[string]int64{"vip": 10}
	if c := categoryCosine(a, b); c != 0 {
		t.Fatalf("disjoint category cosine = %f, want 0", c)
	}
}

func TestCategoryCosineSameMix(t *testing.T) {
	a := map[string]int64{"ga": 10, "vip": 5}
	b := map[string]int64{"ga": 20, "vip": 10}
	if c := categoryCosine(a, b); math.Abs(c-1.0) > 1e-9 {
		t.Fatalf("proportional category cosine = %f, want 1", c)
	}
}

func TestCategoryCosineEmpty(t *testing.T) {
	if c := categoryCosine(nil, map[string]int64{"ga": 1}); c != 0 {
		t.Fatalf("empty category cosine = %f, want 0", c)
	}
}

func TestPairSimilarityIdenticalTrafficAtZeroDistance(t *testing.T) {
	var hours [24]float64
	hours[18] = 50
	hours[19] = 80
	traffic := gateTraffic{hours: hours, categories: map[string]int64{"ga": 130}}

	sim := pairSimilarity(0, 30, traffic, traffic)
	if math.Abs(sim-1.0) > 1e-9 {
		t.Fatalf("similarity of identical co-located gates = %f, want 1", sim)
	}
}

func TestPairSimilarityDecaysWithDistance(t *testing.T) {
	var hours [24]float64
	hours[18] = 50
	traffic := gateTraffic{hours: hours, categories: map[string]int64{"ga": 50}}

	near := pairSimilarity(5, 30, traffic, traffic)
	far := pairSimilarity(25, 30, traffic, traffic)
	if far >= near {
		t.Fatalf("similarity did not decay with distance: near %f, far %f", near, far)
	}
}

func TestPairSimilarityDifferentTrafficScoresLow(t *testing.T) {
	var morning, evening [24]float64
	morning[8] = 100
	evening[20] = 100
	a := gateTraffic{hours: morning, categories: map[string]int64{"staff": 100}}
	b := gateTraffic{hours: evening, categories: map[string]int64{"ga": 100}}

	// Co-located but with disjoint traffic: only the distance term scores.
	sim := pairSimilarity(0, 30, a, b)
	if sim > similarityDistanceWeight+1e-9 {
		t.Fatalf("similarity = %f, want at most the distance weight %f", sim, similarityDistanceWeight)
	}
}

func TestPairSimilarityDistanceScoreFloorsAtZero(t *testing.T) {
	var hours [24]float64
	hours[18] = 50
	traffic := gateTraffic{hours: hours, categories: map[string]int64{"ga": 50}}

	atEnvelope := pairSimilarity(30, 30, traffic, traffic)
	want := similarityHoursWeight + similarityCategoryWeight
	if math.Abs(atEnvelope-want) > 1e-9 {
		t.Fatalf("similarity at envelope edge = %f, want %f", atEnvelope, want)
	}
}

func duplicateScanFixture(t *testing.T) (*duplicateGateDetector, uuid.UUID, *types.Gate, *types.Gate, *fakeSuggestionRepo) {
	t.Helper()
	sessionID := uuid.New()

	a := gateAt(baseLat, baseLon)
	a.ID = uuid.New()
	a.SessionID = sessionID
	a.SampleCount = 40
	b := gateAt(baseLat+10*degPerM, baseLon) // ~10m apart
	b.ID = uuid.New()
	b.SessionID = sessionID
	b.SampleCount = 90

	var hours [24]float64
	hours[18] = 60
	hours[19] = 40
	categories := map[string]int64{"ga": 80, "vip": 20}
	events := &fakeEventRepo{
		hours:      map[uuid.UUID][24]float64{a.ID: hours, b.ID: hours},
		categories: map[uuid.UUID]map[string]int64{a.ID: categories, b.ID: categories},
	}

	suggestions := newFakeSuggestionRepo()
	detector := &duplicateGateDetector{
		log:            testLog(t),
		gateRepo:       newFakeGateRepo(a, b),
		eventRepo:      events,
		suggestionRepo: suggestions,
	}
	return detector, sessionID, a, b, suggestions
}

func TestScanFilesSuggestionForNearIdenticalGates(t *testing.T) {
	detector, sessionID, a, b, suggestions := duplicateScanFixture(t)

	emitted, err := detector.Scan(context.Background(), sessionID, validConfig())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(emitted) != 1 || len(suggestions.created) != 1 {
		t.Fatalf("emitted %d suggestions, want 1", len(emitted))
	}
	s := emitted[0]
	if s.Status != types.MergeStatusPending {
		t.Fatalf("suggestion status = %s, want pending", s.Status)
	}
	// Lower-volume gate merges into the higher-volume one.
	if s.SourceGateID != a.ID || s.TargetGateID != b.ID {
		t.Fatalf("merge direction wrong: source %s target %s", s.SourceGateID, s.TargetGateID)
	}
}

func TestScanSkipsPairWithOpenSuggestion(t *testing.T) {
	detector, sessionID, a, b, suggestions := duplicateScanFixture(t)
	suggestions.Create(context.Background(), nil, &types.MergeSuggestion{
		SessionID:    sessionID,
		SourceGateID: a.ID,
		TargetGateID: b.ID,
		Status:       types.MergeStatusPending,
	})
	suggestions.created = nil

	emitted, err := detector.Scan(context.Background(), sessionID, validConfig())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(emitted) != 0 || len(suggestions.created) != 0 {
		t.Fatalf("re-filed a pair that already has an open suggestion")
	}
}

func TestScanSkipsPairRejectedByOperator(t *testing.T) {
	detector, sessionID, a, b, suggestions := duplicateScanFixture(t)
	// Operator already decided these gates are distinct; reversed pair order
	// must match too.
	suggestions.Create(context.Background(), nil, &types.MergeSuggestion{
		SessionID:    sessionID,
		SourceGateID: b.ID,
		TargetGateID: a.ID,
		Status:       types.MergeStatusRejected,
	})
	suggestions.created = nil

	emitted, err := detector.Scan(context.Background(), sessionID, validConfig())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(emitted) != 0 || len(suggestions.created) != 0 {
		t.Fatalf("re-filed a pair the operator rejected")
	}
}
