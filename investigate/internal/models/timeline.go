package models

import (
	"sort"
	"time"
)

type EventType string

const (
	EventReportSubmitted    EventType = "report_submitted"
	EventEvidenceUploaded   EventType = "evidence_uploaded"
	EventRiskAssessment     EventType = "risk_assessment"
	EventIPTraced           EventType = "ip_traced"
	EventEscalation         EventType = "escalation"
	EventVerification       EventType = "verification"
	EventActionTaken        EventType = "action_taken"
	EventConnectionDetected EventType = "connection_detected"
)

// EventTypeRank orders event types that share a timestamp. Lower sorts first.
func EventTypeRank(t EventType) int {
	switch t {
	case EventReportSubmitted:
		return 0
	case EventIPTraced:
		return 1
	case EventEvidenceUploaded:
		return 2
	case EventVerification:
		return 3
	case EventEscalation:
		return 4
	case EventRiskAssessment:
		return 5
	case EventActionTaken:
		return 6
	case EventConnectionDetected:
		return 7
	default:
		return 8
	}
}

type EventPriority string

const (
	EventPriorityLow    EventPriority = "low"
	EventPriorityMedium EventPriority = "medium"
	EventPriorityHigh   EventPriority = "high"
)

// Icons rendered by the front end per event type.
const (
	IconReport       = "flag"
	IconEvidence     = "file"
	IconRisk         = "gauge"
	IconIPTrace      = "globe"
	IconEscalation   = "alert-triangle"
	IconVerification = "shield-check"
	IconAction       = "activity"
	IconConnection   = "link"
)

// TimelineEvent is one entry in a merged timeline. Data keys are the Meta*
// constants relevant to Type.
type TimelineEvent struct {
	Type            EventType     `json:"type"`
	Timestamp       time.Time     `json:"timestamp"`
	Entity          string        `json:"entity,omitempty"`
	CaseID          string        `json:"case_id,omitempty"`
	Data            Metadata      `json:"data,omitempty"`
	Description     string        `json:"description"`
	Icon            string        `json:"icon,omitempty"`
	Priority        EventPriority `json:"priority"`
	Sequence        int           `json:"sequence"`
	TimeGap         *float64      `json:"time_gap,omitempty"`
	SourceEntity    string        `json:"source_entity,omitempty"`
	InvestigationID string        `json:"investigation_id,omitempty"`

	// FetchOrder is the position at which the event was produced, used as
	// the last sort tie-break.
	FetchOrder int `json:"-"`
}

// Timespan is the first and last timestamp of a timeline.
type Timespan struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	HumanDuration string    `json:"human_duration"`
}

// RiskPoint is one sample of the risk progression series.
type RiskPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Type      EventType `json:"type"`
}

// Milestones are first occurrences. Absent ones are nil.
type Milestones struct {
	FirstReport       *TimelineEvent `json:"first_report,omitempty"`
	FirstEvidence     *TimelineEvent `json:"first_evidence,omitempty"`
	FirstEscalation   *TimelineEvent `json:"first_escalation,omitempty"`
	FirstHighPriority *TimelineEvent `json:"first_high_priority,omitempty"`
}

type TimelineSummary struct {
	TotalEvents     int               `json:"total_events"`
	EventTypes      map[EventType]int `json:"event_types"`
	Timespan        *Timespan         `json:"timespan"`
	RiskProgression []RiskPoint       `json:"risk_progression"`
	Milestones      Milestones        `json:"milestones"`
}

// CrossEntityConnection links events of two different entities that
// happened close together in a linked timeline.
type CrossEntityConnection struct {
	Type            ConnectionType `json:"type"`
	Entity1         string         `json:"entity1"`
	Entity2         string         `json:"entity2"`
	Event1          EventType      `json:"event1"`
	Event2          EventType      `json:"event2"`
	Timestamp1      time.Time      `json:"timestamp1"`
	Timestamp2      time.Time      `json:"timestamp2"`
	TimeDiffSeconds float64        `json:"time_diff_seconds"`
}

// TimelineResult is the output of timeline generation.
type TimelineResult struct {
	CaseID                 string                  `json:"case_id,omitempty"`
	Entity                 string                  `json:"entity,omitempty"`
	InvestigationID        string                  `json:"investigation_id,omitempty"`
	Timeline               []TimelineEvent         `json:"timeline"`
	Summary                TimelineSummary         `json:"summary"`
	CrossEntityConnections []CrossEntityConnection `json:"cross_entity_connections,omitempty"`
}

// LinkedTimelineRequest is the body of a linked-timeline call.
type LinkedTimelineRequest struct {
	Entities        []string `json:"entities"`
	InvestigationID string   `json:"investigation_id,omitempty"`
}

// SortEvents orders events by timestamp, then EventTypeRank, then
// FetchOrder, and rewrites Sequence (1-based) and TimeGap (seconds since the
// previous event; nil for the first).
func SortEvents(events []TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if ra, rb := EventTypeRank(a.Type), EventTypeRank(b.Type); ra != rb {
			return ra < rb
		}
		return a.FetchOrder < b.FetchOrder
	})
	for i := range events {
		events[i].Sequence = i + 1
		if i == 0 {
			events[i].TimeGap = nil
			continue
		}
		gap := events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds()
		events[i].TimeGap = &gap
	}
}
