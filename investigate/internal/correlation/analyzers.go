package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Analyzer derives one kind of connection from an investigation's entities.
// Analyzers run concurrently and must not mutate the Input.
type Analyzer interface {
	Kind() models.ConnectionType
	Analyze(ctx context.Context, in *Input) ([]models.Connection, error)
}

// Input is the shared, read-only state handed to every analyzer.
type Input struct {
	Entities []models.Entity
	// Evidence holds every record touching any entity. EvidenceErr is set
	// when the fetch failed; analyzers that need evidence then fail alone.
	Evidence    []models.Evidence
	EvidenceErr error
	Locator     geoip.Locator
	Config      Config
	Now         time.Time
	// Value returns the behavioral "value" of a record.
	Value ValueFunc
	Logger *logging.Logger
}

// ValueFunc extracts the amount compared by behavioral similarity.
type ValueFunc func(models.Evidence) float64

// FileSizeValue uses the evidence file size as a stand-in for transaction
// value, since no record carries a real amount.
func FileSizeValue(e models.Evidence) float64 {
	return float64(e.FileSize)
}

// owners maps a record to the indices of the input entities it references.
func (in *Input) owners(ev models.Evidence) []int {
	values := ev.Values()
	refs := make(map[string]struct{}, len(values))
	for _, v := range values {
		refs[models.NormalizeValue(v)] = struct{}{}
	}
	var idx []int
	for i, e := range in.Entities {
		if _, ok := refs[e.Key().Value]; ok {
			idx = append(idx, i)
		}
	}
	return idx
}

func (in *Input) evidence() ([]models.Evidence, error) {
	if in.EvidenceErr != nil {
		return nil, fmt.Errorf("%w: evidence: %v", models.ErrCollaboratorUnavailable, in.EvidenceErr)
	}
	return in.Evidence, nil
}

// AnalyzerResult is the tagged outcome of one analyzer.
type AnalyzerResult struct {
	Kind        models.ConnectionType
	Connections []models.Connection
	Err         error
	Duration    time.Duration
}

// DefaultAnalyzers returns the four built-in analyzers in merge order.
func DefaultAnalyzers() []Analyzer {
	return []Analyzer{
		EvidenceLinkAnalyzer{},
		TemporalAnalyzer{},
		GeoProximityAnalyzer{},
		BehavioralAnalyzer{},
	}
}

// runAnalyzers executes every analyzer concurrently. A failing or panicking
// analyzer yields a result with Err set; the others are unaffected. Results
// are returned in analyzer order.
func runAnalyzers(ctx context.Context, analyzers []Analyzer, in *Input) []AnalyzerResult {
	results := make([]AnalyzerResult, len(analyzers))
	var wg sync.WaitGroup
	for i, a := range analyzers {
		wg.Add(1)
		go func(i int, a Analyzer) {
			defer wg.Done()
			start := time.Now()
			res := AnalyzerResult{Kind: a.Kind()}
			defer func() {
				if r := recover(); r != nil {
					res.Connections = nil
					res.Err = fmt.Errorf("%w: analyzer %s panicked: %v", models.ErrPartialAnalysis, a.Kind(), r)
					in.Logger.Error("analyzer panicked", logging.Analyzer(string(a.Kind())), slog.Any("panic", r))
				}
				res.Duration = time.Since(start)
				results[i] = res
			}()
			conns, err := a.Analyze(ctx, in)
			if err != nil {
				res.Err = fmt.Errorf("%w: analyzer %s: %v", models.ErrPartialAnalysis, a.Kind(), err)
				return
			}
			res.Connections = conns
		}(i, a)
	}
	wg.Wait()
	return results
}

// mergeConnections de-duplicates by type and unordered entity pair, keeping
// the strongest connection and the union of evidence refs. Order follows
// first appearance.
func mergeConnections(results []AnalyzerResult) []models.Connection {
	index := make(map[string]int)
	var out []models.Connection
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, c := range r.Connections {
			c.Strength = models.ClampStrength(c.Strength)
			key := c.PairKey()
			i, ok := index[key]
			if !ok {
				index[key] = len(out)
				c.EvidenceRefs = unionRefs(nil, c.EvidenceRefs)
				out = append(out, c)
				continue
			}
			refs := unionRefs(out[i].EvidenceRefs, c.EvidenceRefs)
			if c.Strength > out[i].Strength {
				out[i] = c
			}
			out[i].EvidenceRefs = refs
		}
	}
	return out
}

func unionRefs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
