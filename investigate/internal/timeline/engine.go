// Package timeline merges reports, evidence, escalations, risk snapshots and
// access logs into one ordered, annotated timeline per entity or case.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Config holds the timeline heuristics.
type Config struct {
	// CrossEntityWindow bounds cross-entity temporal correlations (strict).
	CrossEntityWindow time.Duration
	AccessLogLimit    int
	MaxLinkedEntities int
	// IPTraceOffset places the derived ip_traced event after its report.
	IPTraceOffset time.Duration
}

// DefaultConfig returns the stock timeline heuristics.
func DefaultConfig() Config {
	return Config{
		CrossEntityWindow: 5 * time.Minute,
		AccessLogLimit:    50,
		MaxLinkedEntities: 50,
		IPTraceOffset:     time.Second,
	}
}

// Observer is told about sources that failed during a fetch.
type Observer interface {
	SourceFailed(source string)
}

type nopObserver struct{}

func (nopObserver) SourceFailed(string) {}

// Engine builds timelines. It is stateless and safe for concurrent use.
type Engine struct {
	src      Sources
	cfg      Config
	logger   *logging.Logger
	observer Observer
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithObserver reports failed sources to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a timeline engine over src.
func NewEngine(src Sources, cfg Config, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		src:      src,
		cfg:      cfg,
		logger:   logger.Component("timeline"),
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateTimeline returns every event recorded for the case and/or entity.
// At least one of caseID and entity is required. Unavailable sources are
// skipped, so an empty timeline is a valid result.
func (e *Engine) GenerateTimeline(ctx context.Context, caseID, entity string) (*models.TimelineResult, error) {
	caseID, entity = strings.TrimSpace(caseID), strings.TrimSpace(entity)
	f := models.RecordFilter{CaseID: caseID, Entity: entity}
	if f.IsEmpty() {
		return nil, fmt.Errorf("%w: case_id or entity is required", models.ErrValidation)
	}

	recs := e.fetch(ctx, f)
	b := &builder{}
	for _, r := range recs.reports {
		e.reportEvents(ctx, b, r)
	}
	for _, ev := range recs.evidence {
		evidenceEvents(b, ev)
	}
	for _, esc := range recs.escalations {
		escalationEvent(b, esc)
	}
	for _, rs := range recs.snapshots {
		riskEvent(b, rs)
	}
	for _, l := range recs.accessLogs {
		if IsSignificant(l) {
			accessLogEvent(b, l, entity)
		}
	}

	events := b.events
	if events == nil {
		events = []models.TimelineEvent{}
	}
	models.SortEvents(events)

	e.logger.DebugContext(ctx, "timeline generated",
		logging.CaseID(caseID),
		logging.Count(len(events)))
	return &models.TimelineResult{
		CaseID:   caseID,
		Entity:   entity,
		Timeline: events,
		Summary:  Summarize(events),
	}, nil
}

// GenerateLinkedTimeline merges the timelines of several entities, tagging
// each event with its source entity, and reports events of different
// entities that fall within CrossEntityWindow of each other.
func (e *Engine) GenerateLinkedTimeline(ctx context.Context, entities []string, investigationID string) (*models.TimelineResult, error) {
	unique := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, ent := range entities {
		ent = strings.TrimSpace(ent)
		if ent == "" {
			continue
		}
		if _, ok := seen[ent]; ok {
			continue
		}
		seen[ent] = struct{}{}
		unique = append(unique, ent)
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: at least one entity is required", models.ErrValidation)
	}
	if e.cfg.MaxLinkedEntities > 0 && len(unique) > e.cfg.MaxLinkedEntities {
		return nil, fmt.Errorf("%w: %d entities exceeds linked timeline limit of %d",
			models.ErrTooManyEntities, len(unique), e.cfg.MaxLinkedEntities)
	}

	perEntity := make([][]models.TimelineEvent, len(unique))
	var merged []models.TimelineEvent
	for i, ent := range unique {
		res, err := e.GenerateTimeline(ctx, "", ent)
		if err != nil {
			return nil, err
		}
		for _, ev := range res.Timeline {
			ev.SourceEntity = ent
			ev.InvestigationID = investigationID
			ev.FetchOrder = len(merged)
			merged = append(merged, ev)
		}
		perEntity[i] = res.Timeline
	}
	if merged == nil {
		merged = []models.TimelineEvent{}
	}
	models.SortEvents(merged)

	return &models.TimelineResult{
		InvestigationID:        investigationID,
		Timeline:               merged,
		Summary:                Summarize(merged),
		CrossEntityConnections: e.crossEntityConnections(unique, perEntity),
	}, nil
}

// crossEntityConnections compares every event pair of every entity pair,
// O(e1*e2) per pair. Per-entity timelines are sorted, so the inner scan
// stops once events are past the window.
func (e *Engine) crossEntityConnections(entities []string, perEntity [][]models.TimelineEvent) []models.CrossEntityConnection {
	window := e.cfg.CrossEntityWindow
	out := []models.CrossEntityConnection{}
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			for _, a := range perEntity[i] {
				for _, b := range perEntity[j] {
					diff := b.Timestamp.Sub(a.Timestamp)
					if diff >= window {
						break
					}
					if diff <= -window {
						continue
					}
					if diff < 0 {
						diff = -diff
					}
					out = append(out, models.CrossEntityConnection{
						Type:            models.ConnectionTemporalCorrelation,
						Entity1:         entities[i],
						Entity2:         entities[j],
						Event1:          a.Type,
						Event2:          b.Type,
						Timestamp1:      a.Timestamp,
						Timestamp2:      b.Timestamp,
						TimeDiffSeconds: diff.Seconds(),
					})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp1.Before(out[j].Timestamp1)
	})
	return out
}
