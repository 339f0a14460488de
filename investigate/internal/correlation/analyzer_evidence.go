package correlation

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// EvidenceLinkAnalyzer connects two entities referenced by the same
// evidence record.
type EvidenceLinkAnalyzer struct{}

func (EvidenceLinkAnalyzer) Kind() models.ConnectionType { return models.ConnectionEvidenceLink }

func (EvidenceLinkAnalyzer) Analyze(_ context.Context, in *Input) ([]models.Connection, error) {
	records, err := in.evidence()
	if err != nil {
		return nil, err
	}

	var out []models.Connection
	for _, ev := range records {
		owners := in.owners(ev)
		for i := 0; i < len(owners); i++ {
			for j := i + 1; j < len(owners); j++ {
				e1, e2 := in.Entities[owners[i]], in.Entities[owners[j]]
				desc := fmt.Sprintf("%s and %s both appear on evidence %s", e1.Value, e2.Value, ev.ID)
				c, ok := models.NewConnection(models.ConnectionEvidenceLink, e1, e2, in.Config.EvidenceLinkStrength, ev.UploadedAt, desc)
				if !ok {
					continue
				}
				c.EvidenceRefs = []string{ev.ID}
				c.Metadata = models.Metadata{models.MetaEvidenceID: ev.ID}
				out = append(out, c)
			}
		}
	}
	return out, nil
}
