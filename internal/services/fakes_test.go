package services

// In-memory repo fakes for exercising service flows without postgres. They
// only model the behavior the services under test rely on.

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/attendlab/gatesight-backend/internal/logger"
	"github.com/attendlab/gatesight-backend/internal/types"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func gatedEvent(gateID uuid.UUID, category string, createdAt time.Time) *types.CheckinEvent {
	gid := gateID
	return &types.CheckinEvent{
		ID:        uuid.New(),
		GateID:    &gid,
		Category:  category,
		Outcome:   types.OutcomeSuccess,
		ScannedAt: createdAt,
		CreatedAt: createdAt,
	}
}

type fakeGateRepo struct {
	gates   map[uuid.UUID]*types.Gate
	updates []map[string]interface{}
	// updateErr, when set, is consulted before an update is applied.
	updateErr func(id uuid.UUID, updates map[string]interface{}) error
}

func newFakeGateRepo(gates ...*types.Gate) *fakeGateRepo {
	r := &fakeGateRepo{gates: map[uuid.UUID]*types.Gate{}}
	for _, g := range gates {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		r.gates[g.ID] = g
	}
	return r
}

func (r *fakeGateRepo) Create(ctx context.Context, tx *gorm.DB, gate *types.Gate) (*types.Gate, error) {
	if gate.ID == uuid.Nil {
		gate.ID = uuid.New()
	}
	r.gates[gate.ID] = gate
	return gate, nil
}

func (r *fakeGateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Gate, error) {
	return r.gates[id], nil
}

func (r *fakeGateRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Gate, error) {
	var out []*types.Gate
	for _, id := range ids {
		if g, ok := r.gates[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeGateRepo) GetBySessionAndGeoKey(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, geoKey string) (*types.Gate, error) {
	for _, g := range r.gates {
		if g.SessionID == sessionID && g.GeoKey == geoKey {
			return g, nil
		}
	}
	return nil, nil
}

func (r *fakeGateRepo) ListActiveBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Gate, error) {
	var out []*types.Gate
	for _, g := range r.gates {
		if g.SessionID == sessionID && g.Status == types.GateStatusActive {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeGateRepo) ListBySessionWithBindings(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Gate, error) {
	var out []*types.Gate
	for _, g := range r.gates {
		if g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeGateRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	recorded := map[string]interface{}{"id": id}
	for k, v := range updates {
		recorded[k] = v
	}
	r.updates = append(r.updates, recorded)
	if r.updateErr != nil {
		if err := r.updateErr(id, updates); err != nil {
			return err
		}
	}
	g, ok := r.gates[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			g.Status = v.(string)
		case "geo_key":
			g.GeoKey = v.(string)
		case "lat":
			lat := v.(float64)
			g.Lat = &lat
		case "lon":
			lon := v.(float64)
			g.Lon = &lon
		case "sample_count":
			g.SampleCount = v.(int)
		case "health_score":
			g.HealthScore = v.(int)
		case "spatial_variance_m2":
			g.SpatialVarianceM2 = v.(float64)
		case "first_seen_at":
			g.FirstSeenAt = v.(time.Time)
		case "last_activity_at":
			g.LastActivityAt = v.(time.Time)
		}
	}
	return nil
}

func (r *fakeGateRepo) CountByNamePrefix(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, prefix string) (int64, error) {
	return 0, nil
}

type fakeEventRepo struct {
	orphans    []*types.CheckinEvent
	gated      []*types.CheckinEvent
	repointed  [][2]uuid.UUID
	hours      map[uuid.UUID][24]float64
	categories map[uuid.UUID]map[string]int64
}

func (r *fakeEventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.CheckinEvent) ([]*types.CheckinEvent, error) {
	return events, nil
}

func (r *fakeEventRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CheckinEvent, error) {
	return nil, nil
}

func (r *fakeEventRepo) GetByClientEventID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, clientEventID string) (*types.CheckinEvent, error) {
	return nil, nil
}

func (r *fakeEventRepo) ListQualityAccepted(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, minWeight float64, limit int) ([]*types.CheckinEvent, error) {
	return nil, nil
}

func (r *fakeEventRepo) ListSuccessfulGatedAfter(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, afterAt time.Time, afterID uuid.UUID, limit int) ([]*types.CheckinEvent, error) {
	var out []*types.CheckinEvent
	for _, e := range r.gated {
		if behindCursor(e.CreatedAt, e.ID, afterAt, afterID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeEventRepo) ListOrphansWithLocation(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.CheckinEvent, error) {
	return r.orphans, nil
}

func (r *fakeEventRepo) AssignGate(ctx context.Context, tx *gorm.DB, eventID, gateID uuid.UUID) (bool, error) {
	return true, nil
}

func (r *fakeEventRepo) RepointGate(ctx context.Context, tx *gorm.DB, fromGateID, toGateID uuid.UUID) (int64, error) {
	r.repointed = append(r.repointed, [2]uuid.UUID{fromGateID, toGateID})
	return 1, nil
}

func (r *fakeEventRepo) CountByGate(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) (int64, error) {
	return 0, nil
}

func (r *fakeEventRepo) HourHistogram(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) ([24]float64, error) {
	return r.hours[gateID], nil
}

func (r *fakeEventRepo) CategoryCounts(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) (map[string]int64, error) {
	return r.categories[gateID], nil
}

type fakeBindingRepo struct {
	bindings []*types.CategoryBinding
	totals   map[string]int
}

func (r *fakeBindingRepo) Create(ctx context.Context, tx *gorm.DB, binding *types.CategoryBinding) (*types.CategoryBinding, error) {
	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}
	r.bindings = append(r.bindings, binding)
	return binding, nil
}

func (r *fakeBindingRepo) GetByGateAndCategory(ctx context.Context, tx *gorm.DB, gateID uuid.UUID, category string) (*types.CategoryBinding, error) {
	for _, b := range r.bindings {
		if b.GateID == gateID && b.Category == category {
			return b, nil
		}
	}
	return nil, nil
}

func (r *fakeBindingRepo) ListByGateID(ctx context.Context, tx *gorm.DB, gateID uuid.UUID) ([]*types.CategoryBinding, error) {
	var out []*types.CategoryBinding
	for _, b := range r.bindings {
		if b.GateID == gateID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) ListBySessionAndCategory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, category string) ([]*types.CategoryBinding, error) {
	var out []*types.CategoryBinding
	for _, b := range r.bindings {
		if b.Category == category {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) SumSamplesByCategory(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (map[string]int, error) {
	totals := map[string]int{}
	for k, v := range r.totals {
		totals[k] = v
	}
	return totals, nil
}

func (r *fakeBindingRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	for _, b := range r.bindings {
		if b.ID != id {
			continue
		}
		for k, v := range updates {
			switch k {
			case "sample_count":
				b.SampleCount = v.(int)
			case "confidence":
				b.Confidence = v.(float64)
			case "status":
				b.Status = v.(string)
			case "violation_count":
				b.ViolationCount = v.(int)
			case "last_violation_at":
				at := v.(time.Time)
				b.LastViolationAt = &at
			}
		}
		return nil
	}
	return nil
}

func (r *fakeBindingRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	kept := r.bindings[:0]
	for _, b := range r.bindings {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	r.bindings = kept
	return nil
}

func (r *fakeBindingRepo) RepointGate(ctx context.Context, tx *gorm.DB, bindingID, toGateID uuid.UUID) error {
	for _, b := range r.bindings {
		if b.ID == bindingID {
			b.GateID = toGateID
		}
	}
	return nil
}

type fakeSuggestionRepo struct {
	suggestions map[uuid.UUID]*types.MergeSuggestion
	created     []*types.MergeSuggestion
	// forceStaleUpdate makes every conditional status update report a lost
	// race.
	forceStaleUpdate bool
}

func newFakeSuggestionRepo(suggestions ...*types.MergeSuggestion) *fakeSuggestionRepo {
	r := &fakeSuggestionRepo{suggestions: map[uuid.UUID]*types.MergeSuggestion{}}
	for _, s := range suggestions {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		r.suggestions[s.ID] = s
	}
	return r
}

func (r *fakeSuggestionRepo) Create(ctx context.Context, tx *gorm.DB, suggestion *types.MergeSuggestion) (*types.MergeSuggestion, error) {
	if suggestion.ID == uuid.Nil {
		suggestion.ID = uuid.New()
	}
	r.suggestions[suggestion.ID] = suggestion
	r.created = append(r.created, suggestion)
	return suggestion, nil
}

func (r *fakeSuggestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MergeSuggestion, error) {
	return r.suggestions[id], nil
}

func (r *fakeSuggestionRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, status string) ([]*types.MergeSuggestion, error) {
	var out []*types.MergeSuggestion
	for _, s := range r.suggestions {
		if s.SessionID != sessionID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeSuggestionRepo) FindPendingOrRejectedPair(ctx context.Context, tx *gorm.DB, sessionID, gateA, gateB uuid.UUID) (*types.MergeSuggestion, error) {
	for _, s := range r.suggestions {
		if s.SessionID != sessionID {
			continue
		}
		if s.Status != types.MergeStatusPending && s.Status != types.MergeStatusRejected {
			continue
		}
		samePair := (s.SourceGateID == gateA && s.TargetGateID == gateB) ||
			(s.SourceGateID == gateB && s.TargetGateID == gateA)
		if samePair {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeSuggestionRepo) UpdateStatusIfPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if r.forceStaleUpdate {
		return false, nil
	}
	s, ok := r.suggestions[id]
	if !ok || s.Status != types.MergeStatusPending {
		return false, nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			s.Status = v.(string)
		case "reviewed_by":
			by := v.(string)
			s.ReviewedBy = &by
		case "review_reason":
			reason := v.(string)
			s.ReviewReason = &reason
		case "reviewed_at":
			at := v.(time.Time)
			s.ReviewedAt = &at
		}
	}
	return true, nil
}
