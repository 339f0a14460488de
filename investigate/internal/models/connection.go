package models

import (
	"math"
	"time"
)

type ConnectionType string

const (
	ConnectionDirectLink           ConnectionType = "direct_link"
	ConnectionTemporalCorrelation  ConnectionType = "temporal_correlation"
	ConnectionGeographicProximity  ConnectionType = "geographic_proximity"
	ConnectionBehavioralSimilarity ConnectionType = "behavioral_similarity"
	ConnectionEvidenceLink         ConnectionType = "evidence_link"
)

// Connection is a scored relationship between two distinct entities.
type Connection struct {
	Type         ConnectionType `json:"type"`
	Entity1      Entity         `json:"entity1"`
	Entity2      Entity         `json:"entity2"`
	Strength     float64        `json:"strength"`
	EvidenceRefs []string       `json:"evidence_refs,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Description  string         `json:"description"`
	Metadata     Metadata       `json:"metadata,omitempty"`
}

// ClampStrength limits s to [0,1].
func ClampStrength(s float64) float64 {
	switch {
	case s < 0 || math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// NewConnection builds a connection with a clamped strength. It returns
// false when both ends are the same entity.
func NewConnection(typ ConnectionType, e1, e2 Entity, strength float64, at time.Time, description string) (Connection, bool) {
	if e1.Key() == e2.Key() {
		return Connection{}, false
	}
	return Connection{
		Type:        typ,
		Entity1:     e1,
		Entity2:     e2,
		Strength:    ClampStrength(strength),
		Timestamp:   at,
		Description: description,
	}, true
}

// PairKey identifies the connection by type and unordered entity pair.
func (c Connection) PairKey() string {
	a, b := c.Entity1.Key().String(), c.Entity2.Key().String()
	if b < a {
		a, b = b, a
	}
	return string(c.Type) + "|" + a + "|" + b
}

// RiskAssessment is the aggregate risk of an investigation.
type RiskAssessment struct {
	OverallRisk float64   `json:"overall_risk"`
	RiskFactors []string  `json:"risk_factors"`
	LastUpdated time.Time `json:"last_updated"`
}
