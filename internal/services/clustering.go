package services

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/attendlab/gatesight-backend/internal/geo"
	"github.com/attendlab/gatesight-backend/internal/logger"
)

// ScanPoint is one quality-accepted scan in the discovery window.
type ScanPoint struct {
	ID        uuid.UUID
	Lat       float64
	Lon       float64
	ScannedAt time.Time
}

// Cluster is a candidate physical gate.
type Cluster struct {
	Points      []ScanPoint
	Lat         float64
	Lon         float64
	VarianceM2  float64
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

type ClusteringService interface {
	// Cluster groups points by epsilon-neighborhood with transitive
	// membership: a point within epsilon of any member joins the cluster,
	// and a point within epsilon of two clusters merges them. Clusters with
	// fewer than minSamples points are discarded. Deterministic for a fixed
	// input set: points are sorted by (scanned_at, id) and output clusters
	// by size descending, earliest member first as tiebreak.
	Cluster(points []ScanPoint, epsilonM float64, minSamples int) []Cluster
}

type clusteringService struct {
	log *logger.Logger
}

func NewClusteringService(baseLog *logger.Logger) ClusteringService {
	return &clusteringService{log: baseLog.With("service", "ClusteringService")}
}

func (s *clusteringService) Cluster(points []ScanPoint, epsilonM float64, minSamples int) []Cluster {
	if len(points) == 0 || epsilonM <= 0 {
		return nil
	}
	if minSamples < 1 {
		minSamples = 1
	}

	sorted := make([]ScanPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ScannedAt.Equal(sorted[j].ScannedAt) {
			return sorted[i].ScannedAt.Before(sorted[j].ScannedAt)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	// Pairwise epsilon check; union gives the transitive chaining, including
	// the merge of two otherwise-disjoint clusters that share a point.
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			d := geo.DistanceMeters(sorted[i].Lat, sorted[i].Lon, sorted[j].Lat, sorted[j].Lon)
			if d <= epsilonM {
				union(i, j)
			}
		}
	}

	groups := map[int][]ScanPoint{}
	for i, p := range sorted {
		root := find(i)
		groups[root] = append(groups[root], p)
	}

	var clusters []Cluster
	for _, members := range groups {
		if len(members) < minSamples {
			continue
		}
		lats := make([]float64, len(members))
		lons := make([]float64, len(members))
		first := members[0].ScannedAt
		last := members[0].ScannedAt
		for i, m := range members {
			lats[i] = m.Lat
			lons[i] = m.Lon
			if m.ScannedAt.Before(first) {
				first = m.ScannedAt
			}
			if m.ScannedAt.After(last) {
				last = m.ScannedAt
			}
		}
		centerLat, centerLon := geo.Centroid(lats, lons)
		clusters = append(clusters, Cluster{
			Points:      members,
			Lat:         centerLat,
			Lon:         centerLon,
			VarianceM2:  geo.VarianceM2(lats, lons, centerLat, centerLon),
			FirstSeenAt: first,
			LastSeenAt:  last,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].Points) != len(clusters[j].Points) {
			return len(clusters[i].Points) > len(clusters[j].Points)
		}
		return clusters[i].FirstSeenAt.Before(clusters[j].FirstSeenAt)
	})
	return clusters
}
