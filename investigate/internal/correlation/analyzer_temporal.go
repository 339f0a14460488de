package correlation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// TemporalAnalyzer connects entities whose evidence was uploaded within the
// configured window of each other. Strength decays linearly with the gap.
type TemporalAnalyzer struct{}

func (TemporalAnalyzer) Kind() models.ConnectionType { return models.ConnectionTemporalCorrelation }

func (TemporalAnalyzer) Analyze(_ context.Context, in *Input) ([]models.Connection, error) {
	records, err := in.evidence()
	if err != nil {
		return nil, err
	}
	window := in.Config.TemporalWindow
	if window <= 0 {
		return nil, fmt.Errorf("temporal window must be positive")
	}

	sorted := make([]models.Evidence, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].UploadedAt.Equal(sorted[j].UploadedAt) {
			return sorted[i].UploadedAt.Before(sorted[j].UploadedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	owners := make([][]int, len(sorted))
	for i, ev := range sorted {
		owners[i] = in.owners(ev)
	}

	var out []models.Connection
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			diff := sorted[j].UploadedAt.Sub(sorted[i].UploadedAt)
			if diff > window {
				break
			}
			strength := math.Max(in.Config.MinStrength, 1-diff.Seconds()/window.Seconds())
			for _, a := range owners[i] {
				for _, b := range owners[j] {
					e1, e2 := in.Entities[a], in.Entities[b]
					desc := fmt.Sprintf("evidence for %s and %s uploaded %s apart", e1.Value, e2.Value, diff)
					c, ok := models.NewConnection(models.ConnectionTemporalCorrelation, e1, e2, strength, sorted[j].UploadedAt, desc)
					if !ok {
						continue
					}
					c.EvidenceRefs = []string{sorted[i].ID, sorted[j].ID}
					c.Metadata = models.Metadata{models.MetaTimeDiffSeconds: diff.Seconds()}
					out = append(out, c)
				}
			}
		}
	}
	return out, nil
}
