package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/common/audit"
)

// Status is the lifecycle state of an investigation.
type Status string

const (
	StatusActive      Status = "active"
	StatusUnderReview Status = "under_review"
	StatusEscalated   Status = "escalated"
	StatusCompleted   Status = "completed"
	StatusClosed      Status = "closed"
	StatusArchived    Status = "archived"
)

var transitions = map[Status][]Status{
	StatusActive:      {StatusUnderReview, StatusEscalated},
	StatusUnderReview: {StatusCompleted, StatusClosed, StatusArchived, StatusEscalated},
	StatusEscalated:   {StatusUnderReview, StatusClosed},
	StatusCompleted:   {StatusArchived, StatusClosed},
	StatusClosed:      {StatusArchived},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusUnderReview, StatusEscalated, StatusCompleted, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed move. Staying in
// the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OpenStatuses are the statuses in which an investigation accepts new
// entities through linking.
func OpenStatuses() []Status {
	return []Status{StatusActive, StatusUnderReview}
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Resolution records why an investigation was closed.
type Resolution string

const (
	ResolutionResolved             Resolution = "resolved"
	ResolutionFalsePositive        Resolution = "false_positive"
	ResolutionEscalated            Resolution = "escalated"
	ResolutionInsufficientEvidence Resolution = "insufficient_evidence"
	ResolutionOngoing              Resolution = "ongoing"
)

func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionResolved, ResolutionFalsePositive, ResolutionEscalated,
		ResolutionInsufficientEvidence, ResolutionOngoing:
		return true
	}
	return false
}

// Audit actions.
const (
	AuditCreated              = "created"
	AuditEntitiesLinked       = "entities_linked"
	AuditConnectionsAnalyzed  = "connections_analyzed"
	AuditInvestigationUpdated = "investigation_updated"
	AuditEscalated            = "investigation_escalated"
)

// AuditEntry is one append-only record of a mutation. Signature chains to
// the previous entry.
type AuditEntry struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Details   Metadata  `json:"details,omitempty"`
	Signature string    `json:"signature"`
}

// Link returns the signed content of the entry.
func (a AuditEntry) Link() audit.Link {
	payload, _ := json.Marshal(a.Details)
	return audit.Link{
		Timestamp: a.Timestamp,
		Actor:     a.Actor,
		Action:    a.Action,
		Payload:   payload,
		Signature: a.Signature,
	}
}

// Sealer signs audit entries.
type Sealer interface {
	Seal(prev string, l audit.Link) string
}

// Investigation is the aggregate grouping entities, connections, timeline
// and risk state under one case.
type Investigation struct {
	ID                 string          `json:"id"`
	HumanCode          string          `json:"human_code"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Status             Status          `json:"status"`
	Priority           Priority        `json:"priority"`
	Tags               []string        `json:"tags,omitempty"`
	CreatedBy          string          `json:"created_by"`
	Entities           []Entity        `json:"entities"`
	Connections        []Connection    `json:"connections"`
	Timeline           []TimelineEvent `json:"timeline"`
	RiskAssessment     RiskAssessment  `json:"risk_assessment"`
	AuditTrail         []AuditEntry    `json:"audit_trail"`
	RelatedEvidenceIDs []string        `json:"related_evidence_ids"`
	RelatedReportIDs   []string        `json:"related_report_ids"`
	Resolution         *Resolution     `json:"resolution,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// HumanCodeFor derives INV-YYYYMMDD-XXXXXX from the creation date and the
// last six hex digits of the id.
func HumanCodeFor(id string, createdAt time.Time) string {
	h := strings.ReplaceAll(id, "-", "")
	if len(h) > 6 {
		h = h[len(h)-6:]
	}
	return fmt.Sprintf("INV-%s-%s", createdAt.UTC().Format("20060102"), strings.ToUpper(h))
}

// HasEntity reports whether an entity with key k is already present.
func (inv *Investigation) HasEntity(k EntityKey) bool {
	k.Value = NormalizeValue(k.Value)
	for _, e := range inv.Entities {
		if e.Key() == k {
			return true
		}
	}
	return false
}

// MergeEntities appends the entities not already present (including
// duplicates within the input) and returns how many were added.
func (inv *Investigation) MergeEntities(entities []Entity, now time.Time) int {
	seen := make(map[EntityKey]struct{}, len(inv.Entities)+len(entities))
	for _, e := range inv.Entities {
		seen[e.Key()] = struct{}{}
	}
	added := 0
	for _, e := range entities {
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = now
		}
		seen[e.Key()] = struct{}{}
		inv.Entities = append(inv.Entities, e)
		added++
	}
	return added
}

// EntitiesOfType returns the entities with the given type, in order.
func (inv *Investigation) EntitiesOfType(t EntityType) []Entity {
	var out []Entity
	for _, e := range inv.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// EntityKeys returns the keys of every entity, in order.
func (inv *Investigation) EntityKeys() []EntityKey {
	keys := make([]EntityKey, len(inv.Entities))
	for i, e := range inv.Entities {
		keys[i] = e.Key()
	}
	return keys
}

// AddRelatedEvidence records evidence ids, skipping ones already present.
func (inv *Investigation) AddRelatedEvidence(ids ...string) {
	inv.RelatedEvidenceIDs = appendUnique(inv.RelatedEvidenceIDs, ids...)
}

// AddRelatedReports records report ids, skipping ones already present.
func (inv *Investigation) AddRelatedReports(ids ...string) {
	inv.RelatedReportIDs = appendUnique(inv.RelatedReportIDs, ids...)
}

func appendUnique(dst []string, ids ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, id := range dst {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}

// AppendAudit seals entry against the current tail and appends it.
func (inv *Investigation) AppendAudit(s Sealer, entry AuditEntry) {
	prev := ""
	if n := len(inv.AuditTrail); n > 0 {
		prev = inv.AuditTrail[n-1].Signature
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.Signature = s.Seal(prev, entry.Link())
	inv.AuditTrail = append(inv.AuditTrail, entry)
}

// AuditLinks exposes the trail for chain verification.
func (inv *Investigation) AuditLinks() []audit.Link {
	links := make([]audit.Link, len(inv.AuditTrail))
	for i, a := range inv.AuditTrail {
		links[i] = a.Link()
	}
	return links
}

// =============================================================================
// Requests and responses
// =============================================================================

// LinkMetadata carries optional attributes for a newly created investigation.
type LinkMetadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
}

// LinkEntitiesRequest is the body of a link call.
type LinkEntitiesRequest struct {
	Entities []Entity     `json:"entities"`
	Metadata LinkMetadata `json:"metadata"`
}

// UpdateInvestigationRequest is a partial update. Nil fields are untouched.
type UpdateInvestigationRequest struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *Status     `json:"status,omitempty"`
	Priority    *Priority   `json:"priority,omitempty"`
	Tags        *[]string   `json:"tags,omitempty"`
	Resolution  *Resolution `json:"resolution,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// EscalateRequest records an escalation.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// ListInvestigationsRequest holds list filters. Empty strings mean "any".
type ListInvestigationsRequest struct {
	Page       int
	Limit      int
	Status     Status
	Priority   Priority
	EntityType EntityType
}

// Normalize applies paging defaults: page >= 1 and 1 <= limit <= 100
// (default 50).
func (r *ListInvestigationsRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 || r.Limit > 100 {
		r.Limit = 50
	}
}

type ListInvestigationsResponse struct {
	Investigations []*Investigation `json:"investigations"`
	Pagination     Pagination       `json:"pagination"`
}

// Pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes TotalPages from total and limit.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// AnalysisResult summarises a re-analysis of an existing investigation.
type AnalysisResult struct {
	InvestigationID          string                 `json:"investigation_id"`
	TotalConnections         int                    `json:"total_connections"`
	ConnectionTypesBreakdown map[ConnectionType]int `json:"connection_types_breakdown"`
	RiskAssessment           RiskAssessment         `json:"risk_assessment"`
	Timeline                 []TimelineEvent        `json:"timeline"`
}

// AuditVerification reports the outcome of re-checking the audit chain.
type AuditVerification struct {
	InvestigationID string `json:"investigation_id"`
	Entries         int    `json:"entries"`
	Valid           bool   `json:"valid"`
	BrokenAt        *int   `json:"broken_at,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
