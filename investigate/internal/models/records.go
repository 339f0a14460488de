package models

import (
	"strings"
	"time"
)

// Records below are owned by other subsystems and read here.

// Evidence is an uploaded evidence file.
type Evidence struct {
	ID                 string     `json:"id"`
	CaseID             string     `json:"case_id,omitempty"`
	Entity             string     `json:"entity,omitempty"`
	IPAddress          string     `json:"ip_address,omitempty"`
	LinkedEntities     []string   `json:"linked_entities,omitempty"`
	FileHash           string     `json:"file_hash"`
	FileSize           int64      `json:"file_size"`
	UploadedAt         time.Time  `json:"uploaded_at"`
	RiskLevel          string     `json:"risk_level,omitempty"`
	VerificationStatus string     `json:"verification_status,omitempty"`
	IntegrityStatus    string     `json:"integrity_status,omitempty"`
	LastVerified       *time.Time `json:"last_verified,omitempty"`
}

// Verification outcomes.
const (
	VerificationVerified = "verified"
	VerificationFailed   = "failed"
	VerificationPending  = "pending"

	IntegrityIntact      = "intact"
	IntegrityCompromised = "compromised"
)

// References reports whether value appears as the record's entity, its IP
// or one of its linked entities.
func (e Evidence) References(value string) bool {
	if value == "" {
		return false
	}
	if strings.EqualFold(e.Entity, value) || strings.EqualFold(e.IPAddress, value) {
		return true
	}
	for _, v := range e.LinkedEntities {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// Values returns every entity value the record references.
func (e Evidence) Values() []string {
	out := make([]string, 0, 2+len(e.LinkedEntities))
	if e.Entity != "" {
		out = append(out, e.Entity)
	}
	if e.IPAddress != "" {
		out = append(out, e.IPAddress)
	}
	return append(out, e.LinkedEntities...)
}

// GeoInfo is a Geo-IP lookup result.
type GeoInfo struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city,omitempty"`
	Region  string  `json:"region,omitempty"`
	Country string  `json:"country,omitempty"`
	Org     string  `json:"org,omitempty"`
}

// Report is a fraud report filed against an entity.
type Report struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	CaseID     string    `json:"case_id,omitempty"`
	Reason     string    `json:"reason"`
	Severity   int       `json:"severity"`
	RiskLevel  string    `json:"risk_level,omitempty"`
	RiskScore  *float64  `json:"risk_score,omitempty"`
	IPGeo      *GeoInfo  `json:"ip_geo,omitempty"`
	ReporterIP string    `json:"reporter_ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
}

// Escalation is an entry of the escalation log.
type Escalation struct {
	ID              string    `json:"id"`
	Entity          string    `json:"entity"`
	CaseID          string    `json:"case_id,omitempty"`
	RiskScore       *float64  `json:"risk_score,omitempty"`
	Trigger         string    `json:"trigger"`
	WebhookResponse string    `json:"webhook_response,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RiskSnapshot is the risk state of a wallet at a point in time.
type RiskSnapshot struct {
	ID          string    `json:"id"`
	Wallet      string    `json:"wallet"`
	Level       string    `json:"level"`
	Score       *float64  `json:"score,omitempty"`
	ReportCount int       `json:"report_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AccessLog is one HTTP access/audit record.
type AccessLog struct {
	ID        string    `json:"id,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	User      string    `json:"user,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordFilter scopes record-store queries. At least one field is set.
type RecordFilter struct {
	CaseID string
	Entity string
}

func (f RecordFilter) IsEmpty() bool {
	return f.CaseID == "" && f.Entity == ""
}
