package correlation

import (
	"context"
	"fmt"
	"math"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// BehavioralAnalyzer connects wallets whose evidence shows similar average
// value and upload frequency.
type BehavioralAnalyzer struct{}

func (BehavioralAnalyzer) Kind() models.ConnectionType { return models.ConnectionBehavioralSimilarity }

type walletProfile struct {
	entity    models.Entity
	avgValue  float64
	frequency float64
}

func (BehavioralAnalyzer) Analyze(_ context.Context, in *Input) ([]models.Connection, error) {
	records, err := in.evidence()
	if err != nil {
		return nil, err
	}
	value := in.Value
	if value == nil {
		value = FileSizeValue
	}

	var profiles []walletProfile
	for _, e := range in.Entities {
		if e.Type != models.EntityWalletAddress {
			continue
		}
		var total float64
		count := 0
		days := make(map[string]struct{})
		for _, ev := range records {
			if !ev.References(e.Value) {
				continue
			}
			total += value(ev)
			count++
			days[ev.UploadedAt.UTC().Format("2006-01-02")] = struct{}{}
		}
		if count == 0 {
			continue
		}
		profiles = append(profiles, walletProfile{
			entity:    e,
			avgValue:  total / float64(count),
			frequency: float64(count) / float64(len(days)),
		})
	}

	var out []models.Connection
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			valueSim := ratioSimilarity(a.avgValue, b.avgValue)
			freqSim := ratioSimilarity(a.frequency, b.frequency)
			sim := in.Config.BehavioralValueWeight*valueSim + in.Config.BehavioralFrequencyWeight*freqSim
			if sim <= in.Config.BehavioralThreshold {
				continue
			}
			desc := fmt.Sprintf("%s and %s show similar activity (similarity %.2f)", a.entity.Value, b.entity.Value, sim)
			c, ok := models.NewConnection(models.ConnectionBehavioralSimilarity, a.entity, b.entity, sim, in.Now, desc)
			if !ok {
				continue
			}
			c.Metadata = models.Metadata{
				models.MetaSimilarity:          sim,
				models.MetaValueSimilarity:     valueSim,
				models.MetaFrequencySimilarity: freqSim,
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// ratioSimilarity is 1 - |a-b|/max(a,b), and 1 when both are zero.
func ratioSimilarity(a, b float64) float64 {
	m := math.Max(a, b)
	if m == 0 {
		return 1
	}
	return 1 - math.Abs(a-b)/m
}
