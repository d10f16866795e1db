package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/types"
)

func TestGateNameForRank(t *testing.T) {
	cases := []struct {
		rank int
		want string
	}{
		{0, "Main Gate"},
		{1, "Secondary Gate"},
		{2, "Access Point 1"},
		{3, "Access Point 2"},
		{7, "Access Point 6"},
	}
	for _, tc := range cases {
		if got := gateNameForRank(tc.rank); got != tc.want {
			t.Fatalf("gateNameForRank(%d) = %q, want %q", tc.rank, got, tc.want)
		}
	}
}

func TestHealthScoreBounds(t *testing.T) {
	now := time.Now()
	// Max: big volume, located, sustained, not premature.
	if s := healthScore(1000, true, now.Add(-2*time.Hour), now, true, 20); s != 100 {
		t.Fatalf("best-case health = %d, want 100", s)
	}
	// Auto-created with almost nothing: 50 + 0 + 15 - 20 = 45.
	if s := healthScore(1, true, now, now, true, 20); s != 45 {
		t.Fatalf("premature gate health = %d, want 45", s)
	}
}

func TestHealthScoreVolumeCap(t *testing.T) {
	now := time.Now()
	at100 := healthScore(100, false, now, now, false, 20)
	at1000 := healthScore(1000, false, now, now, false, 20)
	if at100 != at1000 {
		t.Fatalf("volume bonus not capped: %d vs %d", at100, at1000)
	}
	if at100 != 80 {
		t.Fatalf("capped volume health = %d, want 80", at100)
	}
}

func TestHealthScoreSustainedActivity(t *testing.T) {
	now := time.Now()
	short := healthScore(50, true, now.Add(-30*time.Minute), now, false, 20)
	long := healthScore(50, true, now.Add(-2*time.Hour), now, false, 20)
	if long-short != 10 {
		t.Fatalf("sustained bonus = %d, want 10", long-short)
	}
}

func TestHealthScorePrematureOnlyWhenAutoCreated(t *testing.T) {
	now := time.Now()
	auto := healthScore(5, true, now, now, true, 20)
	manual := healthScore(5, true, now, now, false, 20)
	if manual-auto != 20 {
		t.Fatalf("premature penalty = %d, want 20", manual-auto)
	}
}

func TestNearestGatePicksClosestWithinRadius(t *testing.T) {
	near := gateAt(baseLat+3*degPerM, baseLon)   // ~3m
	far := gateAt(baseLat+30*degPerM, baseLon)   // ~30m
	outOfRange := gateAt(baseLat+500*degPerM, baseLon)
	gates := []*types.Gate{outOfRange, far, near}

	got := nearestGate(gates, baseLat, baseLon, 75)
	if got != near {
		t.Fatalf("nearestGate picked the wrong gate")
	}
}

func TestNearestGateRespectsMaxDistance(t *testing.T) {
	gates := []*types.Gate{gateAt(baseLat+500*degPerM, baseLon)}
	if got := nearestGate(gates, baseLat, baseLon, 75); got != nil {
		t.Fatalf("nearestGate returned a gate beyond max distance")
	}
}

func TestNearestGateSkipsUnlocatedGates(t *testing.T) {
	unlocated := &types.Gate{Name: "No Fix"}
	if got := nearestGate([]*types.Gate{unlocated}, baseLat, baseLon, 75); got != nil {
		t.Fatalf("nearestGate matched a gate without coordinates")
	}
}

func gateAt(lat, lon float64) *types.Gate {
	return &types.Gate{
		Lat:    &lat,
		Lon:    &lon,
		Status: types.GateStatusActive,
	}
}

func clusterAt(lat, lon float64, points int, at time.Time) Cluster {
	c := Cluster{
		Lat:         lat,
		Lon:         lon,
		FirstSeenAt: at,
		LastSeenAt:  at,
	}
	for i := 0; i < points; i++ {
		c.Points = append(c.Points, ScanPoint{ID: uuid.New(), Lat: lat, Lon: lon, ScannedAt: at})
	}
	return c
}

func TestRefineGateMovesCentroidAndKey(t *testing.T) {
	gate := gateAt(40.0000, -75.0000)
	gate.ID = uuid.New()
	gate.GeoKey = geo.Key(40.0000, -75.0000)
	gate.SampleCount = 20
	gate.FirstSeenAt = time.Now().Add(-2 * time.Hour)

	repo := newFakeGateRepo(gate)
	m := &gateMaterializer{log: testLog(t), gateRepo: repo}

	// Heavy cluster in the neighboring cell pulls the rolling centroid over
	// the cell boundary.
	cluster := clusterAt(40.0001, -75.0000, 60, time.Now())
	if err := m.refineGate(context.Background(), gate, cluster, validConfig()); err != nil {
		t.Fatalf("refineGate: %v", err)
	}
	if gate.GeoKey != geo.Key(40.0001, -75.0000) {
		t.Fatalf("geo_key after refine = %s, want the refined cell", gate.GeoKey)
	}
	if gate.SampleCount != 80 {
		t.Fatalf("sample count after refine = %d, want 80", gate.SampleCount)
	}
}

func TestRefineGateKeepsOldKeyWhenNeighborOwnsCell(t *testing.T) {
	oldKey := geo.Key(40.0000, -75.0000)
	gate := gateAt(40.0000, -75.0000)
	gate.ID = uuid.New()
	gate.GeoKey = oldKey
	gate.SampleCount = 20
	gate.FirstSeenAt = time.Now().Add(-2 * time.Hour)

	neighborKey := geo.Key(40.0001, -75.0000)
	repo := newFakeGateRepo(gate)
	repo.updateErr = func(id uuid.UUID, updates map[string]interface{}) error {
		if key, ok := updates["geo_key"].(string); ok && key == neighborKey {
			return &pgconn.PgError{Code: "23505"}
		}
		return nil
	}
	m := &gateMaterializer{log: testLog(t), gateRepo: repo}

	cluster := clusterAt(40.0001, -75.0000, 60, time.Now())
	if err := m.refineGate(context.Background(), gate, cluster, validConfig()); err != nil {
		t.Fatalf("refineGate with occupied neighbor cell: %v", err)
	}
	if gate.GeoKey != oldKey {
		t.Fatalf("geo_key = %s, want old key %s retained", gate.GeoKey, oldKey)
	}
	if len(repo.updates) != 2 {
		t.Fatalf("update attempts = %d, want collision then retry", len(repo.updates))
	}
	if key := repo.updates[1]["geo_key"].(string); key != oldKey {
		t.Fatalf("retry wrote geo_key %s, want %s", key, oldKey)
	}
	// Centroid and volume still advance even when the key stays put.
	if gate.SampleCount != 80 {
		t.Fatalf("sample count after collision retry = %d, want 80", gate.SampleCount)
	}
	if *gate.Lat <= 40.0000 {
		t.Fatalf("centroid did not move toward the cluster: %f", *gate.Lat)
	}
}
