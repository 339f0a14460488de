package models

import "time"

// InvestigationEvent is published whenever an investigation changes.
type InvestigationEvent struct {
	InvestigationID string    `json:"investigation_id"`
	HumanCode       string    `json:"human_code"`
	Status          Status    `json:"status"`
	Priority        Priority  `json:"priority"`
	EntityCount     int       `json:"entity_count"`
	ConnectionCount int       `json:"connection_count"`
	OverallRisk     float64   `json:"overall_risk"`
	Actor           string    `json:"actor"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewInvestigationEvent snapshots inv for publication.
func NewInvestigationEvent(inv *Investigation, actor string, at time.Time) *InvestigationEvent {
	return &InvestigationEvent{
		InvestigationID: inv.ID,
		HumanCode:       inv.HumanCode,
		Status:          inv.Status,
		Priority:        inv.Priority,
		EntityCount:     len(inv.Entities),
		ConnectionCount: len(inv.Connections),
		OverallRisk:     inv.RiskAssessment.OverallRisk,
		Actor:           actor,
		OccurredAt:      at,
	}
}

// RecordBatch is a bulk load of collaborator records.
type RecordBatch struct {
	Reports       []Report       `json:"reports,omitempty"`
	Evidence      []Evidence     `json:"evidence,omitempty"`
	Escalations   []Escalation   `json:"escalations,omitempty"`
	RiskSnapshots []RiskSnapshot `json:"risk_snapshots,omitempty"`
}

func (b *RecordBatch) IsEmpty() bool {
	return len(b.Reports) == 0 && len(b.Evidence) == 0 && len(b.Escalations) == 0 && len(b.RiskSnapshots) == 0
}

// IngestResult counts the records submitted per kind.
type IngestResult struct {
	Reports       int `json:"reports"`
	Evidence      int `json:"evidence"`
	Escalations   int `json:"escalations"`
	RiskSnapshots int `json:"risk_snapshots"`
}
