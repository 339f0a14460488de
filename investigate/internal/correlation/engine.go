// Package correlation decides which entities belong to the same
// investigation and scores the connections between them.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/common/middleware"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Store is the investigation persistence the engine needs.
type Store interface {
	Create(ctx context.Context, inv *models.Investigation) error
	Update(ctx context.Context, inv *models.Investigation) error
	// FindByEntities returns investigations in one of statuses containing
	// any of keys, most recently updated first.
	FindByEntities(ctx context.Context, keys []models.EntityKey, statuses []models.Status) ([]*models.Investigation, error)
	// FindByEntityType returns up to limit investigations in one of statuses
	// holding at least one entity of type t, most recently updated first.
	FindByEntityType(ctx context.Context, t models.EntityType, statuses []models.Status, limit int) ([]*models.Investigation, error)
}

// EvidenceSource returns evidence records referencing any of values.
type EvidenceSource interface {
	FindEvidenceByEntities(ctx context.Context, values []string) ([]models.Evidence, error)
}

// Observer receives analyzer outcomes, typically for metrics.
type Observer interface {
	AnalyzerCompleted(kind models.ConnectionType, d time.Duration, connections int, err error)
}

type nopObserver struct{}

func (nopObserver) AnalyzerCompleted(models.ConnectionType, time.Duration, int, error) {}

// Engine links entities into investigations and analyses their connections.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	store     Store
	evidence  EvidenceSource
	locator   geoip.Locator
	sealer    models.Sealer
	cfg       Config
	logger    *logging.Logger
	analyzers []Analyzer
	observer  Observer
	value     ValueFunc
	now       func() time.Time
	newID     func() string
}

// Option customises an Engine.
type Option func(*Engine)

// WithAnalyzers replaces the built-in analyzers.
func WithAnalyzers(a ...Analyzer) Option {
	return func(e *Engine) { e.analyzers = a }
}

// WithObserver reports analyzer outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithValueFunc replaces the behavioral value extractor.
func WithValueFunc(f ValueFunc) Option {
	return func(e *Engine) { e.value = f }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how new investigation ids are minted.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// NewEngine wires an engine with the default analyzers and a UUIDv7 id
// generator. A nil logger falls back to the process default.
func NewEngine(store Store, evidence EvidenceSource, locator geoip.Locator, sealer models.Sealer, cfg Config, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:     store,
		evidence:  evidence,
		locator:   locator,
		sealer:    sealer,
		cfg:       cfg,
		logger:    logger.Component("correlation"),
		analyzers: DefaultAnalyzers(),
		observer:  nopObserver{},
		value:     FileSizeValue,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newUUIDv7,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Config returns the engine's heuristics.
func (e *Engine) Config() Config {
	return e.cfg
}

// LinkOutcome describes what LinkEntities did.
type LinkOutcome struct {
	Investigation *models.Investigation
	Created       bool
	Added         int
	Failures      []AnalyzerResult
}

// LinkEntities finds or creates the investigation for entities, merges them
// in, re-analyses connections and risk, and persists the result. Invalid
// entities are skipped; if none remain the call fails with ErrValidation.
func (e *Engine) LinkEntities(ctx context.Context, entities []models.Entity, meta models.LinkMetadata) (*LinkOutcome, error) {
	valid := e.validEntities(ctx, entities)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: at least one valid entity is required", models.ErrValidation)
	}
	if len(valid) > e.cfg.MaxEntities {
		return nil, fmt.Errorf("%w: %d entities exceeds limit of %d", models.ErrTooManyEntities, len(valid), e.cfg.MaxEntities)
	}

	existing, err := e.FindExistingInvestigation(ctx, valid)
	if err != nil {
		return nil, err
	}

	now := e.now()
	actor := ActorFor(ctx, meta.CreatedBy)
	out := &LinkOutcome{}

	inv := existing
	if inv == nil {
		inv = e.newInvestigation(valid, meta, actor, now)
		out.Created = true
		out.Added = len(inv.Entities)
	} else {
		out.Added = inv.MergeEntities(valid, now)
		if len(inv.Entities) > e.cfg.MaxEntities {
			return nil, fmt.Errorf("%w: investigation %s would hold %d entities, limit is %d",
				models.ErrTooManyEntities, inv.ID, len(inv.Entities), e.cfg.MaxEntities)
		}
		inv.AppendAudit(e.sealer, models.AuditEntry{
			Action:    models.AuditEntitiesLinked,
			Timestamp: now,
			Actor:     actor,
			Details:   models.Metadata{"added": out.Added, "total": len(inv.Entities)},
		})
	}

	failures, err := e.AnalyzeEntityConnections(ctx, inv)
	if err != nil {
		return nil, err
	}
	out.Failures = failures
	e.UpdateRiskAssessment(inv)
	inv.UpdatedAt = now

	if out.Created {
		err = e.create(ctx, inv)
	} else {
		err = e.store.Update(ctx, inv)
	}
	if err != nil {
		return nil, storageErr(err)
	}

	e.logger.InfoContext(ctx, "entities linked",
		logging.InvestigationID(inv.ID),
		logging.Count(out.Added))
	out.Investigation = inv
	return out, nil
}

func (e *Engine) validEntities(ctx context.Context, entities []models.Entity) []models.Entity {
	seen := make(map[models.EntityKey]struct{}, len(entities))
	valid := make([]models.Entity, 0, len(entities))
	for _, ent := range entities {
		ent.Value = strings.TrimSpace(ent.Value)
		if err := ent.Validate(); err != nil {
			e.logger.WarnContext(ctx, "skipping invalid entity",
				logging.Entity(string(ent.Type), ent.Value), logging.Error(err))
			continue
		}
		if _, dup := seen[ent.Key()]; dup {
			continue
		}
		seen[ent.Key()] = struct{}{}
		valid = append(valid, ent)
	}
	return valid
}

// createAttempts bounds retries when a new human code collides.
const createAttempts = 3

func (e *Engine) create(ctx context.Context, inv *models.Investigation) error {
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		if attempt > 0 {
			e.logger.WarnContext(ctx, "investigation id collided, retrying",
				logging.InvestigationID(inv.ID), logging.Error(err))
			e.rekey(inv)
		}
		if err = e.store.Create(ctx, inv); !errors.Is(err, models.ErrConflict) {
			return err
		}
	}
	return err
}

// rekey gives a not yet persisted investigation a fresh id and human code.
func (e *Engine) rekey(inv *models.Investigation) {
	old := inv.ID
	inv.ID = e.newID()
	inv.HumanCode = models.HumanCodeFor(inv.ID, inv.CreatedAt)
	for i := range inv.Timeline {
		if inv.Timeline[i].CaseID == old {
			inv.Timeline[i].CaseID = inv.ID
		}
	}
}

func (e *Engine) newInvestigation(entities []models.Entity, meta models.LinkMetadata, actor string, now time.Time) *models.Investigation {
	id := e.newID()
	priority := meta.Priority
	if !priority.IsValid() {
		priority = models.PriorityMedium
	}
	title := meta.Title
	if title == "" {
		title = fmt.Sprintf("Investigation of %s", entities[0].Value)
		if len(entities) > 1 {
			title = fmt.Sprintf("%s and %d more", title, len(entities)-1)
		}
	}

	inv := &models.Investigation{
		ID:                 id,
		HumanCode:          models.HumanCodeFor(id, now),
		Title:              title,
		Description:        meta.Description,
		Status:             models.StatusActive,
		Priority:           priority,
		Tags:               meta.Tags,
		CreatedBy:          actor,
		Connections:        []models.Connection{},
		Timeline:           []models.TimelineEvent{},
		RelatedEvidenceIDs: []string{},
		RelatedReportIDs:   []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inv.MergeEntities(entities, now)
	inv.AppendAudit(e.sealer, models.AuditEntry{
		Action:    models.AuditCreated,
		Timestamp: now,
		Actor:     actor,
		Details:   models.Metadata{"entity_count": len(inv.Entities)},
	})
	return inv
}

// FindExistingInvestigation returns the open investigation that entities
// belong to, or nil. Exact (type, value) matches win; otherwise IPs within
// SameInvestigationRadiusKm of a candidate IP, and wallets sharing an
// evidence record with a candidate wallet, are matched against at most
// CandidateLimit candidates per entity.
func (e *Engine) FindExistingInvestigation(ctx context.Context, entities []models.Entity) (*models.Investigation, error) {
	keys := make([]models.EntityKey, len(entities))
	for i, ent := range entities {
		keys[i] = ent.Key()
	}
	exact, err := e.store.FindByEntities(ctx, keys, models.OpenStatuses())
	if err != nil {
		return nil, storageErr(err)
	}
	if len(exact) > 0 {
		return exact[0], nil
	}

	geoCache := make(map[string]*models.GeoInfo)
	for _, ent := range entities {
		var match *models.Investigation
		switch ent.Type {
		case models.EntityIPAddress:
			match, err = e.matchByGeo(ctx, ent, geoCache)
		case models.EntityWalletAddress:
			match, err = e.matchBySharedEvidence(ctx, ent)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		if match != nil {
			e.logger.DebugContext(ctx, "heuristic investigation match",
				logging.InvestigationID(match.ID), logging.Entity(string(ent.Type), ent.Value))
			return match, nil
		}
	}
	return nil, nil
}

func (e *Engine) locate(ctx context.Context, ip string, cache map[string]*models.GeoInfo) *models.GeoInfo {
	if geo, ok := cache[ip]; ok {
		return geo
	}
	var geo *models.GeoInfo
	if e.locator != nil {
		var err error
		geo, err = e.locator.Locate(ctx, ip)
		if err != nil {
			e.logger.DebugContext(ctx, "geoip lookup failed", logging.Entity(string(models.EntityIPAddress), ip), logging.Error(err))
			geo = nil
		}
	}
	cache[ip] = geo
	return geo
}

func (e *Engine) matchByGeo(ctx context.Context, ent models.Entity, cache map[string]*models.GeoInfo) (*models.Investigation, error) {
	origin := e.locate(ctx, ent.Value, cache)
	if origin == nil {
		return nil, nil
	}
	candidates, err := e.store.FindByEntityType(ctx, models.EntityIPAddress, models.OpenStatuses(), e.cfg.CandidateLimit)
	if err != nil {
		return nil, storageErr(err)
	}
	for _, cand := range candidates {
		for _, ip := range cand.EntitiesOfType(models.EntityIPAddress) {
			geo := e.locate(ctx, ip.Value, cache)
			if geo == nil {
				continue
			}
			if geoip.Distance(origin.Lat, origin.Lon, geo.Lat, geo.Lon) <= e.cfg.SameInvestigationRadiusKm {
				return cand, nil
			}
		}
	}
	return nil, nil
}

func (e *Engine) matchBySharedEvidence(ctx context.Context, ent models.Entity) (*models.Investigation, error) {
	if e.evidence == nil {
		return nil, nil
	}
	candidates, err := e.store.FindByEntityType(ctx, models.EntityWalletAddress, models.OpenStatuses(), e.cfg.CandidateLimit)
	if err != nil {
		return nil, storageErr(err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	records, err := e.evidence.FindEvidenceByEntities(ctx, []string{ent.Value})
	if err != nil {
		e.logger.WarnContext(ctx, "evidence lookup failed during matching",
			logging.Source("evidence"), logging.Error(err))
		return nil, nil
	}
	for _, cand := range candidates {
		for _, w := range cand.EntitiesOfType(models.EntityWalletAddress) {
			for _, ev := range records {
				if ev.References(ent.Value) && ev.References(w.Value) {
					return cand, nil
				}
			}
		}
	}
	return nil, nil
}

// AnalyzeEntityConnections replaces the investigation's connections with
// the merged output of every analyzer and rewrites its connection_detected
// timeline events. Failed analyzers are logged and returned; they never fail
// the call.
func (e *Engine) AnalyzeEntityConnections(ctx context.Context, inv *models.Investigation) ([]AnalyzerResult, error) {
	if len(inv.Entities) > e.cfg.MaxEntities {
		return nil, fmt.Errorf("%w: investigation %s holds %d entities, limit is %d",
			models.ErrTooManyEntities, inv.ID, len(inv.Entities), e.cfg.MaxEntities)
	}

	in := &Input{
		Entities: inv.Entities,
		Locator:  e.locator,
		Config:   e.cfg,
		Now:      e.now(),
		Value:    e.value,
		Logger:   e.logger,
	}
	if e.evidence != nil {
		values := make([]string, len(inv.Entities))
		for i, ent := range inv.Entities {
			values[i] = ent.Value
		}
		in.Evidence, in.EvidenceErr = e.evidence.FindEvidenceByEntities(ctx, values)
	}

	results := runAnalyzers(ctx, e.analyzers, in)
	var failures []AnalyzerResult
	for _, r := range results {
		e.observer.AnalyzerCompleted(r.Kind, r.Duration, len(r.Connections), r.Err)
		if r.Err != nil {
			e.logger.WarnContext(ctx, "connection analyzer failed",
				logging.InvestigationID(inv.ID),
				logging.Analyzer(string(r.Kind)),
				logging.Error(r.Err))
			failures = append(failures, r)
		}
	}

	inv.Connections = mergeConnections(results)
	if inv.Connections == nil {
		inv.Connections = []models.Connection{}
	}
	for _, c := range inv.Connections {
		inv.AddRelatedEvidence(c.EvidenceRefs...)
	}
	e.rebuildConnectionEvents(inv)
	return failures, nil
}

func (e *Engine) rebuildConnectionEvents(inv *models.Investigation) {
	kept := make([]models.TimelineEvent, 0, len(inv.Timeline)+len(inv.Connections))
	for _, ev := range inv.Timeline {
		if ev.Type != models.EventConnectionDetected {
			ev.FetchOrder = len(kept)
			kept = append(kept, ev)
		}
	}
	for _, c := range inv.Connections {
		kept = append(kept, connectionEvent(inv.ID, c, len(kept)))
	}
	models.SortEvents(kept)
	inv.Timeline = kept
}

func connectionEvent(investigationID string, c models.Connection, order int) models.TimelineEvent {
	priority := models.EventPriorityLow
	switch {
	case c.Strength >= 0.8:
		priority = models.EventPriorityHigh
	case c.Strength >= 0.5:
		priority = models.EventPriorityMedium
	}
	return models.TimelineEvent{
		Type:      models.EventConnectionDetected,
		Timestamp: c.Timestamp,
		Entity:    c.Entity1.Value,
		CaseID:    investigationID,
		Data: models.Metadata{
			models.MetaConnectionType: string(c.Type),
			models.MetaStrength:       c.Strength,
			models.MetaEntity1:        c.Entity1.Key().String(),
			models.MetaEntity2:        c.Entity2.Key().String(),
		},
		Description: fmt.Sprintf("%s: %s", c.Type, c.Description),
		Icon:        models.IconConnection,
		Priority:    priority,
		FetchOrder:  order,
	}
}

// UpdateRiskAssessment recomputes the investigation's risk.
func (e *Engine) UpdateRiskAssessment(inv *models.Investigation) {
	inv.RiskAssessment = AssessRisk(e.cfg, len(inv.Entities), inv.Connections, e.now())
}

// Sealer exposes the audit sealer for callers that append their own
// entries.
func (e *Engine) Sealer() models.Sealer {
	return e.sealer
}

// ActorFor resolves the actor for an audit entry: explicit, then the
// authenticated request actor, then "system".
func ActorFor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if actor := middleware.GetActor(ctx); actor != "" {
		return actor
	}
	return "system"
}

func storageErr(err error) error {
	if errors.Is(err, models.ErrStorageUnavailable) || errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
