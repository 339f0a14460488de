package correlation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// kmPerDegreeLat is the length of one degree of latitude on the sphere
// geoip.Distance uses.
const kmPerDegreeLat = 111.19492664455873

func wallet(v string) models.Entity {
	return models.Entity{Type: models.EntityWalletAddress, Value: v}
}

func ip(v string) models.Entity {
	return models.Entity{Type: models.EntityIPAddress, Value: v}
}

func newInput(entities []models.Entity, evidence []models.Evidence) *Input {
	return &Input{
		Entities: entities,
		Evidence: evidence,
		Config:   DefaultConfig(),
		Now:      t0,
		Value:    FileSizeValue,
		Logger:   logging.Discard(),
	}
}

func TestEvidenceLinkAnalyzer(t *testing.T) {
	in := newInput(
		[]models.Entity{wallet("0xA"), wallet("0xB"), wallet("0xC")},
		[]models.Evidence{
			{ID: "ev-1", Entity: "0xa", LinkedEntities: []string{"0xB"}, UploadedAt: t0},
			{ID: "ev-2", Entity: "0xC", UploadedAt: t0},
		},
	)

	conns, err := EvidenceLinkAnalyzer{}.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	c := conns[0]
	assert.Equal(t, models.ConnectionEvidenceLink, c.Type)
	assert.Equal(t, 0.8, c.Strength)
	assert.Equal(t, "0xA", c.Entity1.Value)
	assert.Equal(t, "0xB", c.Entity2.Value)
	assert.Equal(t, []string{"ev-1"}, c.EvidenceRefs)
	assert.Equal(t, t0, c.Timestamp)
}

func TestInput_Owners(t *testing.T) {
	in := newInput([]models.Entity{wallet("0xA"), ip("203.0.113.1"), wallet("0xZ"), wallet("0xB")}, nil)

	assert.Equal(t, []int{0, 1, 3}, in.owners(models.Evidence{
		Entity: "0xa", IPAddress: "203.0.113.1", LinkedEntities: []string{" 0XB"},
	}))
	assert.Empty(t, in.owners(models.Evidence{Entity: "0xQ"}))
}

func TestEvidenceLinkAnalyzer_EvidenceUnavailable(t *testing.T) {
	in := newInput([]models.Entity{wallet("0xA"), wallet("0xB")}, nil)
	in.EvidenceErr = errors.New("connection refused")

	_, err := EvidenceLinkAnalyzer{}.Analyze(context.Background(), in)
	assert.True(t, errors.Is(err, models.ErrCollaboratorUnavailable))
}

func TestTemporalAnalyzer(t *testing.T) {
	tests := []struct {
		name         string
		gap          time.Duration
		wantConn     bool
		wantStrength float64
	}{
		{name: "same instant", gap: 0, wantConn: true, wantStrength: 1},
		{name: "half window", gap: 30 * time.Minute, wantConn: true, wantStrength: 0.5},
		{name: "edge of window floors at minimum", gap: 59*time.Minute + 30*time.Second, wantConn: true, wantStrength: 0.1},
		{name: "exactly the window", gap: time.Hour, wantConn: true, wantStrength: 0.1},
		{name: "outside window", gap: 2 * time.Hour, wantConn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInput(
				[]models.Entity{wallet("0xA"), wallet("0xB")},
				[]models.Evidence{
					{ID: "late", Entity: "0xB", UploadedAt: t0.Add(tt.gap)},
					{ID: "early", Entity: "0xA", UploadedAt: t0},
				},
			)
			conns, err := TemporalAnalyzer{}.Analyze(context.Background(), in)
			require.NoError(t, err)
			if !tt.wantConn {
				assert.Empty(t, conns)
				return
			}
			require.Len(t, conns, 1)
			assert.InDelta(t, tt.wantStrength, conns[0].Strength, 1e-9)
			assert.Equal(t, []string{"early", "late"}, conns[0].EvidenceRefs)
			diff, ok := conns[0].Metadata.Float(models.MetaTimeDiffSeconds)
			require.True(t, ok)
			assert.Equal(t, tt.gap.Seconds(), diff)
		})
	}
}

func TestTemporalAnalyzer_SameEntityIgnored(t *testing.T) {
	in := newInput(
		[]models.Entity{wallet("0xA")},
		[]models.Evidence{
			{ID: "1", Entity: "0xA", UploadedAt: t0},
			{ID: "2", Entity: "0xA", UploadedAt: t0.Add(time.Minute)},
		},
	)
	conns, err := TemporalAnalyzer{}.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestGeoProximityAnalyzer(t *testing.T) {
	locator := geoip.StaticLocator{
		"203.0.113.1": {Lat: 0, Lon: 0},
		"203.0.113.2": {Lat: 50 / kmPerDegreeLat, Lon: 0},
		"203.0.113.3": {Lat: 140 / kmPerDegreeLat, Lon: 0},
	}
	in := newInput([]models.Entity{ip("203.0.113.1"), ip("203.0.113.2"), ip("203.0.113.3"), ip("198.51.100.7")}, nil)
	in.Locator = locator

	conns, err := GeoProximityAnalyzer{}.Analyze(context.Background(), in)
	require.NoError(t, err)

	// .1-.2 are 50 km apart and .2-.3 90 km; .1-.3 at 140 km is out of range.
	require.Len(t, conns, 2)
	assert.Equal(t, "203.0.113.1", conns[0].Entity1.Value)
	assert.Equal(t, "203.0.113.2", conns[0].Entity2.Value)
	assert.InDelta(t, 0.5, conns[0].Strength, 0.001)
	d, ok := conns[0].Metadata.Float(models.MetaDistanceKm)
	require.True(t, ok)
	assert.InDelta(t, 50, d, 0.01)

	assert.Equal(t, "203.0.113.3", conns[1].Entity2.Value)
	assert.InDelta(t, 0.1, conns[1].Strength, 0.001)
}

func TestGeoProximityAnalyzer_NoLocator(t *testing.T) {
	in := newInput([]models.Entity{ip("203.0.113.1"), ip("203.0.113.2")}, nil)
	conns, err := GeoProximityAnalyzer{}.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestBehavioralAnalyzer(t *testing.T) {
	day2 := t0.Add(24 * time.Hour)
	tests := []struct {
		name     string
		evidence []models.Evidence
		wantSim  float64
		wantConn bool
	}{
		{
			name: "identical profiles",
			evidence: []models.Evidence{
				{ID: "a1", Entity: "0xA", FileSize: 100, UploadedAt: t0},
				{ID: "b1", Entity: "0xB", FileSize: 100, UploadedAt: t0},
			},
			wantSim:  1,
			wantConn: true,
		},
		{
			name: "similar value same frequency",
			evidence: []models.Evidence{
				{ID: "a1", Entity: "0xA", FileSize: 100, UploadedAt: t0},
				{ID: "b1", Entity: "0xB", FileSize: 80, UploadedAt: t0},
			},
			// 0.6*0.8 + 0.4*1
			wantSim:  0.88,
			wantConn: true,
		},
		{
			name: "just below threshold",
			evidence: []models.Evidence{
				{ID: "a1", Entity: "0xA", FileSize: 100, UploadedAt: t0},
				{ID: "b1", Entity: "0xB", FileSize: 49, UploadedAt: t0},
			},
			// 0.6*0.49 + 0.4*1 = 0.694
			wantConn: false,
		},
		{
			name: "different frequency",
			evidence: []models.Evidence{
				{ID: "a1", Entity: "0xA", FileSize: 100, UploadedAt: t0},
				{ID: "a2", Entity: "0xA", FileSize: 100, UploadedAt: t0.Add(time.Hour)},
				{ID: "a3", Entity: "0xA", FileSize: 100, UploadedAt: t0.Add(2 * time.Hour)},
				{ID: "a4", Entity: "0xA", FileSize: 100, UploadedAt: t0.Add(3 * time.Hour)},
				{ID: "a5", Entity: "0xA", FileSize: 100, UploadedAt: t0.Add(4 * time.Hour)},
				{ID: "b1", Entity: "0xB", FileSize: 100, UploadedAt: t0},
				{ID: "b2", Entity: "0xB", FileSize: 100, UploadedAt: day2},
			},
			// frequency 5/day vs 1/day: 0.6*1 + 0.4*0.2 = 0.68
			wantConn: false,
		},
		{
			name: "wallet without evidence",
			evidence: []models.Evidence{
				{ID: "a1", Entity: "0xA", FileSize: 100, UploadedAt: t0},
			},
			wantConn: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newInput([]models.Entity{wallet("0xA"), wallet("0xB"), ip("203.0.113.1")}, tt.evidence)
			conns, err := BehavioralAnalyzer{}.Analyze(context.Background(), in)
			require.NoError(t, err)
			if !tt.wantConn {
				assert.Empty(t, conns)
				return
			}
			require.Len(t, conns, 1)
			assert.Equal(t, models.ConnectionBehavioralSimilarity, conns[0].Type)
			assert.InDelta(t, tt.wantSim, conns[0].Strength, 1e-9)
		})
	}
}

func TestBehavioralAnalyzer_CustomValue(t *testing.T) {
	in := newInput(
		[]models.Entity{wallet("0xA"), wallet("0xB")},
		[]models.Evidence{
			{ID: "a1", Entity: "0xA", FileSize: 1, UploadedAt: t0},
			{ID: "b1", Entity: "0xB", FileSize: 1000, UploadedAt: t0},
		},
	)
	in.Value = func(models.Evidence) float64 { return 42 }

	conns, err := BehavioralAnalyzer{}.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.InDelta(t, 1.0, conns[0].Strength, 1e-9)
}

func TestRatioSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, ratioSimilarity(0, 0))
	assert.Equal(t, 1.0, ratioSimilarity(5, 5))
	assert.Equal(t, 0.5, ratioSimilarity(50, 100))
	assert.Equal(t, 0.5, ratioSimilarity(100, 50))
	assert.Equal(t, 0.0, ratioSimilarity(0, 10))
}

type panicAnalyzer struct{}

func (panicAnalyzer) Kind() models.ConnectionType { return models.ConnectionDirectLink }
func (panicAnalyzer) Analyze(context.Context, *Input) ([]models.Connection, error) {
	panic("boom")
}

type fixedAnalyzer struct {
	kind  models.ConnectionType
	conns []models.Connection
	err   error
}

func (f fixedAnalyzer) Kind() models.ConnectionType { return f.kind }
func (f fixedAnalyzer) Analyze(context.Context, *Input) ([]models.Connection, error) {
	return f.conns, f.err
}

func TestRunAnalyzers_IsolatesFailures(t *testing.T) {
	good, _ := models.NewConnection(models.ConnectionEvidenceLink, wallet("0xA"), wallet("0xB"), 0.8, t0, "")
	analyzers := []Analyzer{
		panicAnalyzer{},
		fixedAnalyzer{kind: models.ConnectionEvidenceLink, conns: []models.Connection{good}},
		fixedAnalyzer{kind: models.ConnectionTemporalCorrelation, err: errors.New("timeout")},
	}

	results := runAnalyzers(context.Background(), analyzers, newInput(nil, nil))
	require.Len(t, results, 3)

	assert.True(t, errors.Is(results[0].Err, models.ErrPartialAnalysis))
	assert.Contains(t, results[0].Err.Error(), "panicked")
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[1].Connections, 1)
	assert.True(t, errors.Is(results[2].Err, models.ErrPartialAnalysis))

	merged := mergeConnections(results)
	require.Len(t, merged, 1)
	assert.Equal(t, models.ConnectionEvidenceLink, merged[0].Type)
}

func TestMergeConnections(t *testing.T) {
	a, b, c := wallet("0xA"), wallet("0xB"), wallet("0xC")
	weak, _ := models.NewConnection(models.ConnectionTemporalCorrelation, a, b, 0.3, t0, "weak")
	weak.EvidenceRefs = []string{"1", "2"}
	strong, _ := models.NewConnection(models.ConnectionTemporalCorrelation, b, a, 0.9, t0, "strong")
	strong.EvidenceRefs = []string{"2", "3"}
	other, _ := models.NewConnection(models.ConnectionEvidenceLink, a, b, 0.8, t0, "other type")
	third, _ := models.NewConnection(models.ConnectionTemporalCorrelation, a, c, 0.5, t0, "third")

	merged := mergeConnections([]AnalyzerResult{
		{Kind: models.ConnectionTemporalCorrelation, Connections: []models.Connection{weak, strong, third}},
		{Kind: models.ConnectionEvidenceLink, Connections: []models.Connection{other}},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "strong", merged[0].Description)
	assert.Equal(t, 0.9, merged[0].Strength)
	assert.Equal(t, []string{"1", "2", "3"}, merged[0].EvidenceRefs)
	assert.Equal(t, "third", merged[1].Description)
	assert.Equal(t, models.ConnectionEvidenceLink, merged[2].Type)
}
