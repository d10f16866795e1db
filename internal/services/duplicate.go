package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/repos"
	"github.com/attendlab/gatesight-backend/internal/types"
)

// Similarity weights: proximity dominates, traffic shape breaks ties.
const (
	similarityDistanceWeight = 0.5
	similarityHoursWeight    = 0.25
	similarityCategoryWeight = 0.25
)

type gateTraffic struct {
	hours      [24]float64
	categories map[string]int64
}

type DuplicateGateDetector interface {
	// Scan compares every active gate pair inside the distance envelope and
	// files a MergeSuggestion when the pair looks like one physical gate.
	// Suggestions stay pending for review unless session policy allows
	// auto-apply and confidence clears the higher auto-apply threshold.
	Scan(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig) ([]*types.MergeSuggestion, error)
}

type duplicateGateDetector struct {
	db             *gorm.DB
	log            *logger.Logger
	gateRepo       repos.GateRepo
	eventRepo      repos.CheckinEventRepo
	suggestionRepo repos.MergeSuggestionRepo
	mergeService   MergeService
}

func NewDuplicateGateDetector(db *gorm.DB, baseLog *logger.Logger, gateRepo repos.GateRepo, eventRepo repos.CheckinEventRepo, suggestionRepo repos.MergeSuggestionRepo, mergeService MergeService) DuplicateGateDetector {
	return &duplicateGateDetector{
		db:             db,
		log:            baseLog.With("service", "DuplicateGateDetector"),
		gateRepo:       gateRepo,
		eventRepo:      eventRepo,
		suggestionRepo: suggestionRepo,
		mergeService:   mergeService,
	}
}

func (d *duplicateGateDetector) Scan(ctx context.Context, sessionID uuid.UUID, cfg *types.ThresholdConfig) ([]*types.MergeSuggestion, error) {
	if sessionID == uuid.Nil || cfg == nil {
		return nil, nil
	}
	gates, err := d.gateRepo.ListActiveBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list active gates: %w", err)
	}
	if len(gates) < 2 {
		return nil, nil
	}

	envelope := 2 * cfg.MergeDistanceM
	traffic, err := d.loadTraffic(ctx, gates)
	if err != nil {
		return nil, err
	}

	var emitted []*types.MergeSuggestion
	for i := 0; i < len(gates); i++ {
		for j := i + 1; j < len(gates); j++ {
			a, b := gates[i], gates[j]
			if !a.HasLocation() || !b.HasLocation() {
				continue
			}
			dist := geo.DistanceMeters(*a.Lat, *a.Lon, *b.Lat, *b.Lon)
			if dist > envelope {
				continue
			}
			ta, tb := traffic[a.ID], traffic[b.ID]
			similarity := pairSimilarity(dist, envelope, ta, tb)
			if similarity < cfg.SoftConfidence {
				continue
			}

			// An open suggestion means the pair is already queued for review;
			// a rejected one means an operator decided these are distinct
			// gates, so stop re-filing it every scan.
			existing, err := d.suggestionRepo.FindPendingOrRejectedPair(ctx, nil, sessionID, a.ID, b.ID)
			if err != nil {
				return emitted, err
			}
			if existing != nil {
				continue
			}

			// The lower-volume gate merges into the higher-volume one.
			source, target := a, b
			if source.SampleCount > target.SampleCount {
				source, target = target, source
			}
			evidence, _ := json.Marshal(map[string]interface{}{
				"source_hours":      ta.hours,
				"target_hours":      tb.hours,
				"source_categories": ta.categories,
				"target_categories": tb.categories,
			})
			suggestion := &types.MergeSuggestion{
				SessionID:         sessionID,
				SourceGateID:      source.ID,
				TargetGateID:      target.ID,
				DistanceM:         dist,
				TrafficSimilarity: similarity,
				Confidence:        similarity,
				Status:            types.MergeStatusPending,
				Evidence:          datatypes.JSON(evidence),
			}
			created, err := d.suggestionRepo.Create(ctx, nil, suggestion)
			if err != nil {
				return emitted, fmt.Errorf("create merge suggestion: %w", err)
			}
			d.log.Info("Duplicate gate suspected",
				"session_id", sessionID,
				"source_gate", source.ID,
				"target_gate", target.ID,
				"distance_m", dist,
				"confidence", similarity)

			if cfg.AutoApplyMerges && similarity >= cfg.AutoApplyConfidence {
				applied, err := d.mergeService.AutoApply(ctx, created.ID)
				if err != nil {
					d.log.Warn("Auto-apply merge failed, suggestion left pending", "suggestion_id", created.ID, "error", err)
				} else {
					created = applied
				}
			}
			emitted = append(emitted, created)
		}
	}
	return emitted, nil
}

func (d *duplicateGateDetector) loadTraffic(ctx context.Context, gates []*types.Gate) (map[uuid.UUID]gateTraffic, error) {
	traffic := make(map[uuid.UUID]gateTraffic, len(gates))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, gate := range gates {
		gate := gate
		g.Go(func() error {
			hours, err := d.eventRepo.HourHistogram(ctx, nil, gate.ID)
			if err != nil {
				return fmt.Errorf("hour histogram for %s: %w", gate.ID, err)
			}
			categories, err := d.eventRepo.CategoryCounts(ctx, nil, gate.ID)
			if err != nil {
				return fmt.Errorf("category counts for %s: %w", gate.ID, err)
			}
			mu.Lock()
			traffic[gate.ID] = gateTraffic{hours: hours, categories: categories}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return traffic, nil
}

// pairSimilarity blends proximity with traffic-pattern overlap: hourly shape
// and category mix, both as cosine similarity.
func pairSimilarity(distM, envelopeM float64, a, b gateTraffic) float64 {
	distScore := 0.0
	if envelopeM > 0 {
		distScore = 1 - distM/envelopeM
		if distScore < 0 {
			distScore = 0
		}
	}
	hoursScore := cosine(a.hours[:], b.hours[:])
	catScore := categoryCosine(a.categories, b.categories)
	return similarityDistanceWeight*distScore +
		similarityHoursWeight*hoursScore +
		similarityCategoryWeight*catScore
}

func cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func categoryCosine(a, b map[string]int64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	keys := map[string]bool{}
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}
	va := make([]float64, 0, len(keys))
	vb := make([]float64, 0, len(keys))
	for k := range keys {
		va = append(va, float64(a[k]))
		vb = append(vb, float64(b[k]))
	}
	return cosine(va, vb)
}
