package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/metrics"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/timeline"
)

func (s *Service) GenerateTimeline(ctx context.Context, caseID, entity string) (*models.TimelineResult, error) {
	timer := prometheus.NewTimer(metrics.TimelineDuration.WithLabelValues("single"))
	defer timer.ObserveDuration()
	return s.timeline.GenerateTimeline(ctx, caseID, entity)
}

func (s *Service) GenerateLinkedTimeline(ctx context.Context, req *models.LinkedTimelineRequest) (*models.TimelineResult, error) {
	timer := prometheus.NewTimer(metrics.TimelineDuration.WithLabelValues("linked"))
	defer timer.ObserveDuration()
	return s.timeline.GenerateLinkedTimeline(ctx, req.Entities, req.InvestigationID)
}

func (s *Service) ExportTimeline(ctx context.Context, caseID, entity, format string) (*timeline.Export, error) {
	timer := prometheus.NewTimer(metrics.TimelineDuration.WithLabelValues("export"))
	defer timer.ObserveDuration()
	return s.timeline.ExportTimeline(ctx, caseID, entity, format)
}

// InvestigationTimeline builds the linked timeline over an investigation's
// entities and records the report ids it surfaced.
func (s *Service) InvestigationTimeline(ctx context.Context, id string) (*models.TimelineResult, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(inv.Entities))
	for i, e := range inv.Entities {
		values[i] = e.Value
	}

	res, err := s.GenerateLinkedTimeline(ctx, &models.LinkedTimelineRequest{Entities: values, InvestigationID: inv.ID})
	if err != nil {
		return nil, err
	}

	before := len(inv.RelatedReportIDs)
	inv.AddRelatedReports(timeline.ReportIDs(res.Timeline)...)
	if len(inv.RelatedReportIDs) > before {
		if err := s.save(ctx, inv); err != nil {
			return nil, err
		}
		s.logger.DebugContext(ctx, "related reports recorded",
			logging.InvestigationID(inv.ID), logging.Count(len(inv.RelatedReportIDs)-before))
	}
	return res, nil
}

// IngestRecords loads collaborator records. Records already stored under
// the same id are left untouched.
func (s *Service) IngestRecords(ctx context.Context, batch *models.RecordBatch) (*models.IngestResult, error) {
	if batch.IsEmpty() {
		return nil, fmt.Errorf("%w: batch contains no records", models.ErrValidation)
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	if len(batch.Reports) > 0 {
		if err := s.records.InsertReports(ctx, batch.Reports); err != nil {
			return nil, storageErr(err)
		}
	}
	if len(batch.Evidence) > 0 {
		if err := s.records.InsertEvidence(ctx, batch.Evidence); err != nil {
			return nil, storageErr(err)
		}
	}
	if len(batch.Escalations) > 0 {
		if err := s.records.InsertEscalations(ctx, batch.Escalations); err != nil {
			return nil, storageErr(err)
		}
	}
	if len(batch.RiskSnapshots) > 0 {
		if err := s.records.InsertRiskSnapshots(ctx, batch.RiskSnapshots); err != nil {
			return nil, storageErr(err)
		}
	}

	res := &models.IngestResult{
		Reports:       len(batch.Reports),
		Evidence:      len(batch.Evidence),
		Escalations:   len(batch.Escalations),
		RiskSnapshots: len(batch.RiskSnapshots),
	}
	s.logger.InfoContext(ctx, "records ingested",
		logging.Count(res.Reports+res.Evidence+res.Escalations+res.RiskSnapshots))
	return res, nil
}

func validateBatch(b *models.RecordBatch) error {
	for i, r := range b.Reports {
		if r.ID == "" || r.EntityID == "" || r.CreatedAt.IsZero() {
			return fmt.Errorf("%w: report %d needs id, entity_id and created_at", models.ErrValidation, i)
		}
	}
	for i, e := range b.Evidence {
		if e.ID == "" || e.UploadedAt.IsZero() {
			return fmt.Errorf("%w: evidence %d needs id and uploaded_at", models.ErrValidation, i)
		}
	}
	for i, e := range b.Escalations {
		if e.ID == "" || e.Entity == "" || e.CreatedAt.IsZero() {
			return fmt.Errorf("%w: escalation %d needs id, entity and created_at", models.ErrValidation, i)
		}
	}
	for i, rs := range b.RiskSnapshots {
		if rs.ID == "" || rs.Wallet == "" || rs.UpdatedAt.IsZero() {
			return fmt.Errorf("%w: risk snapshot %d needs id, wallet and updated_at", models.ErrValidation, i)
		}
	}
	return nil
}
