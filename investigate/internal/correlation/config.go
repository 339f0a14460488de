package correlation

import "time"

// Config holds the correlation heuristics. Every value is empirically tuned
// and overridable through service configuration.
type Config struct {
	// SameInvestigationRadiusKm widens an IP into an existing investigation.
	SameInvestigationRadiusKm float64
	// GeoProximityRadiusKm bounds geographic_proximity connections.
	GeoProximityRadiusKm float64
	// TemporalWindow bounds temporal_correlation connections.
	TemporalWindow time.Duration
	// MinStrength floors distance/time derived strengths.
	MinStrength               float64
	EvidenceLinkStrength      float64
	BehavioralValueWeight     float64
	BehavioralFrequencyWeight float64
	// BehavioralThreshold must be exceeded (strictly) to record a connection.
	BehavioralThreshold float64
	// CandidateLimit caps heuristic candidates fetched per entity.
	CandidateLimit int
	// MaxEntities is the practical ceiling for one investigation.
	MaxEntities int

	RiskEntityWeight     float64
	RiskEntityCap        float64
	RiskConnectionWeight float64
	RiskTemporalWeight   float64
	RiskGeoWeight        float64
}

// DefaultConfig returns the stock correlation heuristics.
func DefaultConfig() Config {
	return Config{
		SameInvestigationRadiusKm: 200,
		GeoProximityRadiusKm:      100,
		TemporalWindow:            time.Hour,
		MinStrength:               0.1,
		EvidenceLinkStrength:      0.8,
		BehavioralValueWeight:     0.6,
		BehavioralFrequencyWeight: 0.4,
		BehavioralThreshold:       0.7,
		CandidateLimit:            5,
		MaxEntities:               200,
		RiskEntityWeight:          0.1,
		RiskEntityCap:             0.5,
		RiskConnectionWeight:      0.3,
		RiskTemporalWeight:        0.1,
		RiskGeoWeight:             0.05,
	}
}
