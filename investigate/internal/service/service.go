// Package service implements the investigation lifecycle on top of the
// correlation and timeline engines.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/common/audit"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/correlation"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/graph"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/metrics"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/repository"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/timeline"
)

// EventPublisher announces investigation changes to other services.
type EventPublisher interface {
	PublishCreated(ctx context.Context, event *models.InvestigationEvent) error
	PublishUpdated(ctx context.Context, event *models.InvestigationEvent) error
	PublishAnalyzed(ctx context.Context, event *models.InvestigationEvent) error
	PublishEscalated(ctx context.Context, event *models.InvestigationEvent) error
}

// GraphProjector mirrors investigations into the connection graph.
type GraphProjector interface {
	Project(ctx context.Context, inv *models.Investigation) error
	Neighbors(ctx context.Context, key models.EntityKey, minStrength float64, limit int) ([]graph.Neighbor, error)
}

// AuditVerifier re-checks a sealed audit trail.
type AuditVerifier interface {
	VerifyChain(links []audit.Link) (int, error)
}

// Service provides business logic for the investigate service
type Service struct {
	repo        repository.Repository
	records     repository.RecordStore
	correlation *correlation.Engine
	timeline    *timeline.Engine
	verifier    AuditVerifier
	publisher   EventPublisher
	projector   GraphProjector
	logger      *logging.Logger
	now         func() time.Time
}

type Option func(*Service)

// WithPublisher enables lifecycle event publication.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithProjector enables graph projection after every mutation.
func WithProjector(p GraphProjector) Option {
	return func(s *Service) { s.projector = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service instance
func NewService(repo repository.Repository, records repository.RecordStore, corr *correlation.Engine,
	tl *timeline.Engine, verifier AuditVerifier, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:        repo,
		records:     records,
		correlation: corr,
		timeline:    tl,
		verifier:    verifier,
		logger:      logger.Component("service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the investigation store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) load(ctx context.Context, id string) (*models.Investigation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return inv, nil
}

func (s *Service) save(ctx context.Context, inv *models.Investigation) error {
	if err := s.repo.Update(ctx, inv); err != nil {
		return storageErr(err)
	}
	return nil
}

// project and publish are best effort: the investigation is already
// persisted, so failures are logged and counted only.
func (s *Service) project(ctx context.Context, inv *models.Investigation) {
	if s.projector == nil {
		return
	}
	if err := s.projector.Project(ctx, inv); err != nil {
		metrics.GraphProjectionErrors.Inc()
		s.logger.WarnContext(ctx, "graph projection failed",
			logging.InvestigationID(inv.ID), logging.Error(err))
	}
}

type publishFunc func(EventPublisher, context.Context, *models.InvestigationEvent) error

func (s *Service) publish(ctx context.Context, fn publishFunc, event *models.InvestigationEvent) {
	if s.publisher == nil {
		return
	}
	if err := fn(s.publisher, ctx, event); err != nil {
		metrics.EventPublishErrors.Inc()
		s.logger.WarnContext(ctx, "failed to publish investigation event",
			logging.InvestigationID(event.InvestigationID), logging.Error(err))
	}
}

func storageErr(err error) error {
	if errors.Is(err, models.ErrStorageUnavailable) || errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
