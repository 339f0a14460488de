package client

import (
	"encoding/json"
	"time"
)

// envelope is the response wrapper every investigate endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Entity struct {
	Type     string                 `json:"type"`
	Value    string                 `json:"value"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	AddedAt  *time.Time             `json:"added_at,omitempty"`
	Verified bool                   `json:"verified"`
}

type Connection struct {
	Entity1      Entity   `json:"entity1"`
	Entity2      Entity   `json:"entity2"`
	Type         string   `json:"type"`
	Strength     float64  `json:"strength"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
	Description  string   `json:"description"`
}

type RiskAssessment struct {
	OverallRisk float64   `json:"overall_risk"`
	RiskFactors []string  `json:"risk_factors"`
	LastUpdated time.Time `json:"last_updated"`
}

type AuditEntry struct {
	Action    string                 `json:"action"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Signature string                 `json:"signature"`
}

type Investigation struct {
	ID                 string          `json:"id"`
	HumanCode          string          `json:"human_code"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Status             string          `json:"status"`
	Priority           string          `json:"priority"`
	Tags               []string        `json:"tags,omitempty"`
	CreatedBy          string          `json:"created_by"`
	Entities           []Entity        `json:"entities"`
	Connections        []Connection    `json:"connections"`
	Timeline           []TimelineEvent `json:"timeline"`
	RiskAssessment     RiskAssessment  `json:"risk_assessment"`
	AuditTrail         []AuditEntry    `json:"audit_trail"`
	RelatedEvidenceIDs []string        `json:"related_evidence_ids"`
	RelatedReportIDs   []string        `json:"related_report_ids"`
	Resolution         string          `json:"resolution,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type ListOptions struct {
	Page       int
	Limit      int
	Status     string
	Priority   string
	EntityType string
}

type LinkMetadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
}

type LinkRequest struct {
	Entities []Entity     `json:"entities"`
	Metadata LinkMetadata `json:"metadata"`
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Resolution  *string   `json:"resolution,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type AnalysisResult struct {
	InvestigationID          string          `json:"investigation_id"`
	TotalConnections         int             `json:"total_connections"`
	ConnectionTypesBreakdown map[string]int  `json:"connection_types_breakdown"`
	RiskAssessment           RiskAssessment  `json:"risk_assessment"`
	Timeline                 []TimelineEvent `json:"timeline"`
}

type AuditVerification struct {
	InvestigationID string `json:"investigation_id"`
	Entries         int    `json:"entries"`
	Valid           bool   `json:"valid"`
	BrokenAt        *int   `json:"broken_at,omitempty"`
}

type TimelineEvent struct {
	Type         string                 `json:"type"`
	Timestamp    time.Time              `json:"timestamp"`
	Entity       string                 `json:"entity,omitempty"`
	CaseID       string                 `json:"case_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Description  string                 `json:"description"`
	Priority     string                 `json:"priority"`
	Sequence     int                    `json:"sequence"`
	TimeGap      *float64               `json:"time_gap,omitempty"`
	SourceEntity string                 `json:"source_entity,omitempty"`
}

type TimelineSummary struct {
	TotalEvents int            `json:"total_events"`
	EventTypes  map[string]int `json:"event_types"`
	Timespan    *struct {
		Start         time.Time `json:"start"`
		End           time.Time `json:"end"`
		HumanDuration string    `json:"human_duration"`
	} `json:"timespan"`
}

type CrossEntityConnection struct {
	Type            string    `json:"type"`
	Entity1         string    `json:"entity1"`
	Entity2         string    `json:"entity2"`
	Event1          string    `json:"event1"`
	Event2          string    `json:"event2"`
	Timestamp1      time.Time `json:"timestamp1"`
	Timestamp2      time.Time `json:"timestamp2"`
	TimeDiffSeconds float64   `json:"time_diff_seconds"`
}

type Timeline struct {
	CaseID                 string                  `json:"case_id,omitempty"`
	Entity                 string                  `json:"entity,omitempty"`
	InvestigationID        string                  `json:"investigation_id,omitempty"`
	Timeline               []TimelineEvent         `json:"timeline"`
	Summary                TimelineSummary         `json:"summary"`
	CrossEntityConnections []CrossEntityConnection `json:"cross_entity_connections,omitempty"`
}

type LinkedTimelineRequest struct {
	Entities        []string `json:"entities"`
	InvestigationID string   `json:"investigation_id,omitempty"`
}

// Export is a downloaded timeline file.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

type Neighbor struct {
	Key             string  `json:"key"`
	Type            string  `json:"type"`
	Strength        float64 `json:"strength"`
	InvestigationID string  `json:"investigation_id"`
}

type Report struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	CaseID     string    `json:"case_id,omitempty"`
	Reason     string    `json:"reason"`
	Severity   int       `json:"severity"`
	RiskLevel  string    `json:"risk_level,omitempty"`
	RiskScore  *float64  `json:"risk_score,omitempty"`
	ReporterIP string    `json:"reporter_ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
}

type Evidence struct {
	ID                 string    `json:"id"`
	CaseID             string    `json:"case_id,omitempty"`
	Entity             string    `json:"entity,omitempty"`
	IPAddress          string    `json:"ip_address,omitempty"`
	LinkedEntities     []string  `json:"linked_entities,omitempty"`
	FileHash           string    `json:"file_hash"`
	FileSize           int64     `json:"file_size"`
	UploadedAt         time.Time `json:"uploaded_at"`
	RiskLevel          string    `json:"risk_level,omitempty"`
	VerificationStatus string    `json:"verification_status,omitempty"`
	IntegrityStatus    string    `json:"integrity_status,omitempty"`
}

type Escalation struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	CaseID    string    `json:"case_id,omitempty"`
	RiskScore *float64  `json:"risk_score,omitempty"`
	Trigger   string    `json:"trigger"`
	CreatedAt time.Time `json:"created_at"`
}

type RiskSnapshot struct {
	ID          string    `json:"id"`
	Wallet      string    `json:"wallet"`
	Level       string    `json:"level"`
	Score       *float64  `json:"score,omitempty"`
	ReportCount int       `json:"report_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RecordBatch struct {
	Reports       []Report       `json:"reports,omitempty"`
	Evidence      []Evidence     `json:"evidence,omitempty"`
	Escalations   []Escalation   `json:"escalations,omitempty"`
	RiskSnapshots []RiskSnapshot `json:"risk_snapshots,omitempty"`
}

type IngestResult struct {
	Reports       int `json:"reports"`
	Evidence      int `json:"evidence"`
	Escalations   int `json:"escalations"`
	RiskSnapshots int `json:"risk_snapshots"`
}
