package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/telhawk-systems/telhawk-investigate/common/audit"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/correlation"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/graph"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/metrics"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// LinkEntities attaches entities to their investigation, creating one when
// none matches.
func (s *Service) LinkEntities(ctx context.Context, req *models.LinkEntitiesRequest) (*models.Investigation, error) {
	out, err := s.correlation.LinkEntities(ctx, req.Entities, req.Metadata)
	if err != nil {
		metrics.LinkRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	inv := out.Investigation
	metrics.EntitiesLinkedTotal.Add(float64(out.Added))

	s.project(ctx, inv)
	event := models.NewInvestigationEvent(inv, correlation.ActorFor(ctx, req.Metadata.CreatedBy), s.now())
	if out.Created {
		metrics.LinkRequestsTotal.WithLabelValues("created").Inc()
		s.publish(ctx, EventPublisher.PublishCreated, event)
	} else {
		metrics.LinkRequestsTotal.WithLabelValues("merged").Inc()
		s.publish(ctx, EventPublisher.PublishUpdated, event)
	}
	return inv, nil
}

// GetAllInvestigations lists investigations matching the filters.
func (s *Service) GetAllInvestigations(ctx context.Context, req *models.ListInvestigationsRequest) (*models.ListInvestigationsResponse, error) {
	if req.Status != "" && !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, req.Status)
	}
	if req.Priority != "" && !req.Priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, req.Priority)
	}
	if req.EntityType != "" && !req.EntityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", models.ErrValidation, req.EntityType)
	}
	req.Normalize()

	invs, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, storageErr(err)
	}
	if invs == nil {
		invs = []*models.Investigation{}
	}
	return &models.ListInvestigationsResponse{
		Investigations: invs,
		Pagination:     models.NewPagination(req.Page, req.Limit, total),
	}, nil
}

func (s *Service) GetInvestigationByID(ctx context.Context, id string) (*models.Investigation, error) {
	return s.load(ctx, id)
}

// UpdateInvestigation applies a partial update. Status moves must follow
// the lifecycle and a resolution is only accepted with a move to closed.
func (s *Service) UpdateInvestigation(ctx context.Context, id string, req *models.UpdateInvestigationRequest) (*models.Investigation, error) {
	if req.Title == nil && req.Description == nil && req.Status == nil && req.Priority == nil &&
		req.Tags == nil && req.Resolution == nil && req.Notes == "" {
		return nil, fmt.Errorf("%w: no fields to update", models.ErrValidation)
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", models.ErrValidation)
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, *req.Status)
	}
	if req.Priority != nil && !req.Priority.IsValid() {
		return nil, fmt.Errorf("%w: unknown priority %q", models.ErrValidation, *req.Priority)
	}
	if req.Resolution != nil {
		if !req.Resolution.IsValid() {
			return nil, fmt.Errorf("%w: unknown resolution %q", models.ErrValidation, *req.Resolution)
		}
		if req.Status == nil || *req.Status != models.StatusClosed {
			return nil, fmt.Errorf("%w: resolution can only be set when closing", models.ErrValidation)
		}
	}

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	details := models.Metadata{}
	var fields []string
	if req.Status != nil && *req.Status != inv.Status {
		if !models.CanTransition(inv.Status, *req.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, inv.Status, *req.Status)
		}
		metrics.StatusTransitions.WithLabelValues(string(inv.Status), string(*req.Status)).Inc()
		details["from_status"] = string(inv.Status)
		details["to_status"] = string(*req.Status)
		inv.Status = *req.Status
		fields = append(fields, "status")
	}
	if req.Title != nil {
		inv.Title = strings.TrimSpace(*req.Title)
		fields = append(fields, "title")
	}
	if req.Description != nil {
		inv.Description = *req.Description
		fields = append(fields, "description")
	}
	if req.Priority != nil {
		inv.Priority = *req.Priority
		fields = append(fields, "priority")
	}
	if req.Tags != nil {
		inv.Tags = *req.Tags
		fields = append(fields, "tags")
	}
	if req.Resolution != nil {
		r := *req.Resolution
		inv.Resolution = &r
		details["resolution"] = string(r)
		fields = append(fields, "resolution")
	}
	if len(fields) > 0 {
		details["fields"] = fields
	}
	if req.Notes != "" {
		details["notes"] = req.Notes
	}

	now := s.now()
	actor := correlation.ActorFor(ctx, "")
	inv.AppendAudit(s.correlation.Sealer(), models.AuditEntry{
		Action:    models.AuditInvestigationUpdated,
		Timestamp: now,
		Actor:     actor,
		Details:   details,
	})
	inv.UpdatedAt = now
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "investigation updated",
		logging.InvestigationID(inv.ID), logging.Count(len(fields)))
	s.project(ctx, inv)
	s.publish(ctx, EventPublisher.PublishUpdated, models.NewInvestigationEvent(inv, actor, now))
	return inv, nil
}

// AnalyzeConnections re-derives connections and risk for an existing
// investigation, typically after new records have arrived.
func (s *Service) AnalyzeConnections(ctx context.Context, id string) (*models.AnalysisResult, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	failures, err := s.correlation.AnalyzeEntityConnections(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.correlation.UpdateRiskAssessment(inv)

	now := s.now()
	actor := correlation.ActorFor(ctx, "")
	details := models.Metadata{
		"connections":  len(inv.Connections),
		"overall_risk": inv.RiskAssessment.OverallRisk,
	}
	if len(failures) > 0 {
		failed := make([]string, len(failures))
		for i, f := range failures {
			failed[i] = string(f.Kind)
		}
		details["failed_analyzers"] = failed
	}
	inv.AppendAudit(s.correlation.Sealer(), models.AuditEntry{
		Action:    models.AuditConnectionsAnalyzed,
		Timestamp: now,
		Actor:     actor,
		Details:   details,
	})
	inv.UpdatedAt = now
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.project(ctx, inv)
	s.publish(ctx, EventPublisher.PublishAnalyzed, models.NewInvestigationEvent(inv, actor, now))

	breakdown := make(map[models.ConnectionType]int)
	for _, c := range inv.Connections {
		breakdown[c.Type]++
	}
	return &models.AnalysisResult{
		InvestigationID:          inv.ID,
		TotalConnections:         len(inv.Connections),
		ConnectionTypesBreakdown: breakdown,
		RiskAssessment:           inv.RiskAssessment,
		Timeline:                 inv.Timeline,
	}, nil
}

// EscalateInvestigation records an escalation raised outside this service.
func (s *Service) EscalateInvestigation(ctx context.Context, id string, req *models.EscalateRequest) (*models.Investigation, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: escalation reason is required", models.ErrValidation)
	}

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.StatusEscalated || !models.CanTransition(inv.Status, models.StatusEscalated) {
		return nil, fmt.Errorf("%w: cannot escalate from %s", models.ErrInvalidTransition, inv.Status)
	}

	now := s.now()
	actor := correlation.ActorFor(ctx, "")
	metrics.StatusTransitions.WithLabelValues(string(inv.Status), string(models.StatusEscalated)).Inc()
	inv.AppendAudit(s.correlation.Sealer(), models.AuditEntry{
		Action:    models.AuditEscalated,
		Timestamp: now,
		Actor:     actor,
		Details:   models.Metadata{"reason": reason, "from_status": string(inv.Status)},
	})
	inv.Status = models.StatusEscalated
	inv.UpdatedAt = now
	if err := s.save(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "investigation escalated", logging.InvestigationID(inv.ID))
	s.project(ctx, inv)
	event := models.NewInvestigationEvent(inv, actor, now)
	event.Reason = reason
	s.publish(ctx, EventPublisher.PublishEscalated, event)
	return inv, nil
}

// VerifyAuditTrail recomputes the signature chain of the audit trail.
func (s *Service) VerifyAuditTrail(ctx context.Context, id string) (*models.AuditVerification, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &models.AuditVerification{
		InvestigationID: inv.ID,
		Entries:         len(inv.AuditTrail),
		Valid:           true,
	}
	idx, err := s.verifier.VerifyChain(inv.AuditLinks())
	if err != nil {
		if !errors.Is(err, audit.ErrChainBroken) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "audit trail tampered",
			logging.InvestigationID(inv.ID), logging.Error(err))
		out.Valid = false
		out.BrokenAt = &idx
	}
	return out, nil
}

// ResolveEvidence looks up evidence records by id. Unknown ids are omitted.
func (s *Service) ResolveEvidence(ctx context.Context, ids []string) ([]models.Evidence, error) {
	if len(ids) == 0 {
		return []models.Evidence{}, nil
	}
	evs, err := s.records.GetEvidenceByIDs(ctx, ids)
	if err != nil {
		return nil, storageErr(err)
	}
	return evs, nil
}

// InvestigationEvidence resolves the investigation's related evidence ids.
func (s *Service) InvestigationEvidence(ctx context.Context, id string) ([]models.Evidence, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ResolveEvidence(ctx, inv.RelatedEvidenceIDs)
}

// EntityNeighbors returns the entities connected to key across every
// projected investigation.
func (s *Service) EntityNeighbors(ctx context.Context, key string, minStrength float64, limit int) ([]graph.Neighbor, error) {
	k, err := models.ParseEntityKey(key)
	if err != nil {
		return nil, err
	}
	if minStrength < 0 || minStrength > 1 {
		return nil, fmt.Errorf("%w: min_strength must be within [0,1]", models.ErrValidation)
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	if s.projector == nil {
		return nil, fmt.Errorf("%w: connection graph is disabled", models.ErrCollaboratorUnavailable)
	}
	neighbors, err := s.projector.Neighbors(ctx, k, minStrength, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	if neighbors == nil {
		neighbors = []graph.Neighbor{}
	}
	return neighbors, nil
}
