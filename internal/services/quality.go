package services

// Quality weights by reported GPS accuracy band. A scan below the session's
// minimum weight is kept out of clustering and centroid math but is still
// stored and still feeds binding learning once it carries a resolved gate.
const (
	QualityWeightMissing = 0.0
	QualityWeightWorst   = 0.4
)

// QualityWeightFor maps a reported accuracy radius (meters) to a fixed
// weight in {0, 0.4, 0.6, 0.8, 0.9, 1.0}.
func QualityWeightFor(lat, lon, accuracyM *float64) float64 {
	if lat == nil || lon == nil {
		return QualityWeightMissing
	}
	if accuracyM == nil || *accuracyM <= 0 {
		// Located but unqualified accuracy gets the worst usable band.
		return QualityWeightWorst
	}
	acc := *accuracyM
	switch {
	case acc <= 10:
		return 1.0
	case acc <= 20:
		return 0.9
	case acc <= 35:
		return 0.8
	case acc <= 50:
		return 0.6
	default:
		return QualityWeightWorst
	}
}
