package correlation

import (
	"fmt"
	"math"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// AssessRisk scores an investigation from its entity count and connections:
//
//	min(1, min(n*w_e, cap) + avgStrength*w_c + temporal*w_t + geo*w_g)
func AssessRisk(cfg Config, entityCount int, connections []models.Connection, now time.Time) models.RiskAssessment {
	factors := []string{}

	entityTerm := math.Min(float64(entityCount)*cfg.RiskEntityWeight, cfg.RiskEntityCap)
	if entityTerm > 0 {
		factors = append(factors, fmt.Sprintf("%d entities under investigation (+%.2f)", entityCount, entityTerm))
	}

	var connectionTerm float64
	temporal, geo := 0, 0
	if len(connections) > 0 {
		var sum float64
		for _, c := range connections {
			sum += c.Strength
			switch c.Type {
			case models.ConnectionTemporalCorrelation:
				temporal++
			case models.ConnectionGeographicProximity:
				geo++
			}
		}
		avg := sum / float64(len(connections))
		connectionTerm = avg * cfg.RiskConnectionWeight
		if connectionTerm > 0 {
			factors = append(factors, fmt.Sprintf("average connection strength %.2f across %d connections (+%.2f)", avg, len(connections), connectionTerm))
		}
	}

	temporalTerm := float64(temporal) * cfg.RiskTemporalWeight
	if temporalTerm > 0 {
		factors = append(factors, fmt.Sprintf("%d temporal correlations (+%.2f)", temporal, temporalTerm))
	}
	geoTerm := float64(geo) * cfg.RiskGeoWeight
	if geoTerm > 0 {
		factors = append(factors, fmt.Sprintf("%d geographic proximities (+%.2f)", geo, geoTerm))
	}

	overall := math.Min(1, entityTerm+connectionTerm+temporalTerm+geoTerm)
	return models.RiskAssessment{
		OverallRisk: math.Max(0, overall),
		RiskFactors: factors,
		LastUpdated: now,
	}
}
