package correlation

import (
	"context"
	"fmt"
	"math"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// GeoProximityAnalyzer connects IP entities located close to each other.
// IPs that cannot be located are skipped.
type GeoProximityAnalyzer struct{}

func (GeoProximityAnalyzer) Kind() models.ConnectionType { return models.ConnectionGeographicProximity }

func (GeoProximityAnalyzer) Analyze(ctx context.Context, in *Input) ([]models.Connection, error) {
	if in.Locator == nil {
		return nil, nil
	}
	radius := in.Config.GeoProximityRadiusKm

	type located struct {
		entity models.Entity
		geo    *models.GeoInfo
	}
	var ips []located
	for _, e := range in.Entities {
		if e.Type != models.EntityIPAddress {
			continue
		}
		geo, err := in.Locator.Locate(ctx, e.Value)
		if err != nil {
			in.Logger.DebugContext(ctx, "ip not located",
				logging.Entity(string(e.Type), e.Value), logging.Error(err))
			continue
		}
		ips = append(ips, located{entity: e, geo: geo})
	}

	var out []models.Connection
	for i := 0; i < len(ips); i++ {
		for j := i + 1; j < len(ips); j++ {
			a, b := ips[i], ips[j]
			d := geoip.Distance(a.geo.Lat, a.geo.Lon, b.geo.Lat, b.geo.Lon)
			if d > radius {
				continue
			}
			strength := math.Max(in.Config.MinStrength, 1-d/radius)
			desc := fmt.Sprintf("%s and %s are %.1f km apart", a.entity.Value, b.entity.Value, d)
			c, ok := models.NewConnection(models.ConnectionGeographicProximity, a.entity, b.entity, strength, in.Now, desc)
			if !ok {
				continue
			}
			c.Metadata = models.Metadata{models.MetaDistanceKm: d}
			out = append(out, c)
		}
	}
	return out, nil
}
