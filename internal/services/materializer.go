package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

type GateMaterializer interface {
	// Reconcile upserts clustering output into Gate rows. A cluster near an
	// existing active gate refines that gate (weighted rolling centroid);
	// anything else becomes a new gate, with the unique (session, geo_key)
	// index deciding the winner under concurrent runs. The losing writer
	// falls back to updating the winner's row.
	Reconcile(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig, clusters []Cluster) ([]*types.Gate, error)
}

type gateMaterializer struct {
	db       *gorm.DB
	log      *logger.Logger
	gateRepo repos.GateRepo
}

func NewGateMaterializer(db *gorm.DB, baseLog *logger.Logger, gateRepo repos.GateRepo) GateMaterializer {
	return &gateMaterializer{
		db:       db,
		log:      baseLog.With("service", "GateMaterializer"),
		gateRepo: gateRepo,
	}
}

func (m *gateMaterializer) Reconcile(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig, clusters []Cluster) ([]*types.Gate, error) {
	if sessionID == uuid.Nil || cfg == nil || len(clusters) == 0 {
		return nil, nil
	}

	existing, err := m.gateRepo.ListActiveBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list active gates: %w", err)
	}

	matchRadius := 2 * cfg.ClusterEpsilonM
	var touched []*types.Gate
	for rank, cluster := range clusters {
		if cluster.VarianceM2 > cfg.MaxSpatialVarianceM2 {
			m.log.Debug("Skipping over-dispersed cluster", "session_id", sessionID, "variance_m2", cluster.VarianceM2)
			continue
		}
		match := nearestGate(existing, cluster.Lat, cluster.Lon, matchRadius)
		if match != nil {
			if err := m.refineGate(ctx, match, cluster, cfg); err != nil {
				return touched, err
			}
			touched = append(touched, match)
			continue
		}
		gate, err := m.createGate(ctx, sessionID, cluster, rank, cfg)
		if err != nil {
			return touched, err
		}
		existing = append(existing, gate)
		touched = append(touched, gate)
	}
	return touched, nil
}

func (m *gateMaterializer) refineGate(ctx context.Context, gate *types.Gate, cluster Cluster, cfg *types.ThresholdConfig) error {
	n := len(cluster.Points)
	newLat, newLon := cluster.Lat, cluster.Lon
	newVariance := cluster.VarianceM2
	if gate.HasLocation() && gate.SampleCount > 0 {
		total := float64(gate.SampleCount + n)
		newLat = (*gate.Lat*float64(gate.SampleCount) + cluster.Lat*float64(n)) / total
		newLon = (*gate.Lon*float64(gate.SampleCount) + cluster.Lon*float64(n)) / total
		newVariance = (gate.SpatialVarianceM2*float64(gate.SampleCount) + cluster.VarianceM2*float64(n)) / total
	}
	gate.Lat = &newLat
	gate.Lon = &newLon
	gate.SpatialVarianceM2 = newVariance
	gate.SampleCount += n
	if cluster.LastSeenAt.After(gate.LastActivityAt) {
		gate.LastActivityAt = cluster.LastSeenAt
	}
	if cluster.FirstSeenAt.Before(gate.FirstSeenAt) {
		gate.FirstSeenAt = cluster.FirstSeenAt
	}
	gate.HealthScore = healthScore(gate.SampleCount, true, gate.FirstSeenAt, gate.LastActivityAt, gate.DerivationMethod == types.GateDerivedFromClustering, cfg.MinGateSamples)

	newKey := geo.Key(newLat, newLon)
	updates := map[string]interface{}{
		"lat":                 newLat,
		"lon":                 newLon,
		"geo_key":             newKey,
		"spatial_variance_m2": gate.SpatialVarianceM2,
		"sample_count":        gate.SampleCount,
		"first_seen_at":       gate.FirstSeenAt,
		"last_activity_at":    gate.LastActivityAt,
		"health_score":        gate.HealthScore,
		"updated_at":          time.Now(),
	}
	err := m.gateRepo.UpdateFields(ctx, nil, gate.ID, updates)
	if err == nil {
		gate.GeoKey = newKey
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("refine gate: %w", err)
	}
	// The refined centroid rolled into a cell another active gate already
	// owns. Keep the old key so the cycle can proceed; the duplicate
	// detector surfaces the pair for merging.
	m.log.Debug("Refined geo_key collides with neighbor, keeping old key", "gate_id", gate.ID, "geo_key", newKey)
	updates["geo_key"] = gate.GeoKey
	if err := m.gateRepo.UpdateFields(ctx, nil, gate.ID, updates); err != nil {
		return fmt.Errorf("refine gate: %w", err)
	}
	return nil
}

func (m *gateMaterializer) createGate(ctx context.Context, sessionID uuid.UUID, cluster Cluster, rank int, cfg *types.ThresholdConfig) (*types.Gate, error) {
	lat, lon := cluster.Lat, cluster.Lon
	gate := &types.Gate{
		SessionID:         sessionID,
		Name:              gateNameForRank(rank),
		Lat:               &lat,
		Lon:               &lon,
		GeoKey:            geo.Key(lat, lon),
		DerivationMethod:  types.GateDerivedFromClustering,
		Status:            types.GateStatusActive,
		SpatialVarianceM2: cluster.VarianceM2,
		SampleCount:       len(cluster.Points),
		FirstSeenAt:       cluster.FirstSeenAt,
		LastActivityAt:    cluster.LastSeenAt,
	}
	gate.HealthScore = healthScore(gate.SampleCount, true, gate.FirstSeenAt, gate.LastActivityAt, true, cfg.MinGateSamples)

	created, err := m.gateRepo.Create(ctx, nil, gate)
	if err == nil {
		return created, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("create gate: %w", err)
	}

	// A concurrent run materialized this cluster first. Re-read the winner
	// and refine it instead of erroring.
	m.log.Debug("Gate geo_key conflict, falling back to update", "session_id", sessionID, "geo_key", gate.GeoKey)
	winner, err := m.gateRepo.GetBySessionAndGeoKey(ctx, nil, sessionID, gate.GeoKey)
	if err != nil {
		return nil, fmt.Errorf("load conflicting gate: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("gate conflict on %s but winner not found", gate.GeoKey)
	}
	if err := m.refineGate(ctx, winner, cluster, cfg); err != nil {
		return nil, err
	}
	return winner, nil
}

func nearestGate(gates []*types.Gate, lat, lon, maxDistanceM float64) *types.Gate {
	var best *types.Gate
	bestDist := maxDistanceM
	for _, g := range gates {
		if !g.HasLocation() {
			continue
		}
		d := geo.DistanceMeters(lat, lon, *g.Lat, *g.Lon)
		if d <= bestDist {
			best = g
			bestDist = d
		}
	}
	return best
}

// gateNameForRank labels gates by volume tier within a materialization run.
// Presentation only; identity lives in the id and geo_key.
func gateNameForRank(rank int) string {
	switch rank {
	case 0:
		return "Main Gate"
	case 1:
		return "Secondary Gate"
	default:
		return fmt.Sprintf("Access Point %d", rank-1)
	}
}

// healthScore: base 50, up to +30 for volume, +15 for valid location, +10
// for sustained activity, -20 when auto-created below the minimum sample
// count. Clamped to 0..100.
func healthScore(sampleCount int, hasLocation bool, firstSeen, lastActivity time.Time, autoCreated bool, minSamples int) int {
	score := 50
	volumeBonus := sampleCount * 3 / 10
	if volumeBonus > 30 {
		volumeBonus = 30
	}
	score += volumeBonus
	if hasLocation {
		score += 15
	}
	if lastActivity.Sub(firstSeen) >= time.Hour {
		score += 10
	}
	if autoCreated && sampleCount < minSamples {
		score -= 20
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
