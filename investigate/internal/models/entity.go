package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityType is the closed set of identifiers an investigation can track.
type EntityType string

const (
	EntityWalletAddress   EntityType = "wallet_address"
	EntityIPAddress       EntityType = "ip_address"
	EntityDomain          EntityType = "domain"
	EntityEmail           EntityType = "email"
	EntityPhone           EntityType = "phone"
	EntityDeviceID        EntityType = "device_id"
	EntityTransactionHash EntityType = "transaction_hash"
)

// EntityTypes lists every valid EntityType.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityWalletAddress, EntityIPAddress, EntityDomain, EntityEmail,
		EntityPhone, EntityDeviceID, EntityTransactionHash,
	}
}

func (t EntityType) IsValid() bool {
	for _, known := range EntityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is a typed identifier under investigation.
type Entity struct {
	Type     EntityType `json:"type"`
	Value    string     `json:"value"`
	Metadata Metadata   `json:"metadata,omitempty"`
	AddedAt  time.Time  `json:"added_at"`
	Verified bool       `json:"verified"`
}

// EntityKey identifies an entity within an investigation.
type EntityKey struct {
	Type  EntityType
	Value string
}

func (k EntityKey) String() string {
	return string(k.Type) + ":" + k.Value
}

// ParseEntityKey parses "type:value". The value may itself contain colons.
func ParseEntityKey(s string) (EntityKey, error) {
	typ, value, ok := strings.Cut(s, ":")
	k := EntityKey{Type: EntityType(typ), Value: NormalizeValue(value)}
	if !ok || !k.Type.IsValid() || k.Value == "" {
		return EntityKey{}, fmt.Errorf("%w: entity must be type:value, got %q", ErrValidation, s)
	}
	return k, nil
}

// NormalizeValue is the canonical form of an entity value. Record lookups
// match values case-insensitively, so entity identity does too; the value
// as first submitted is kept for display.
func NormalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func (e Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, Value: NormalizeValue(e.Value)}
}

// Validate reports a missing value or an unknown type.
func (e Entity) Validate() error {
	if strings.TrimSpace(e.Value) == "" {
		return fmt.Errorf("%w: entity value is required", ErrValidation)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrValidation, e.Type)
	}
	return nil
}

// Metadata is an open key/value map. Known keys are listed below; consumers
// must tolerate keys they do not recognise.
type Metadata map[string]interface{}

// Known metadata keys.
const (
	// Entity
	MetaLabel      = "label"
	MetaSource     = "source"
	MetaConfidence = "confidence"

	// Connection
	MetaEvidenceID          = "evidence_id"
	MetaTimeDiffSeconds     = "time_diff_seconds"
	MetaDistanceKm          = "distance_km"
	MetaSimilarity          = "similarity"
	MetaValueSimilarity     = "value_similarity"
	MetaFrequencySimilarity = "frequency_similarity"

	// Timeline event data
	MetaReportID        = "report_id"
	MetaReason          = "reason"
	MetaSeverity        = "severity"
	MetaRiskLevel       = "risk_level"
	MetaRiskScore       = "risk_score"
	MetaStatus          = "status"
	MetaFileHash        = "file_hash"
	MetaFileSize        = "file_size"
	MetaVerification    = "verification_status"
	MetaIntegrity       = "integrity_status"
	MetaCity            = "city"
	MetaCountry         = "country"
	MetaOrg             = "org"
	MetaLatitude        = "lat"
	MetaLongitude       = "lon"
	MetaTrigger         = "trigger"
	MetaWebhookResponse = "webhook_response"
	MetaReportCount     = "report_count"
	MetaMethod          = "method"
	MetaPath            = "path"
	MetaUser            = "user"
	MetaIP              = "ip"
	MetaConnectionType  = "connection_type"
	MetaStrength        = "strength"
	MetaEntity1         = "entity1"
	MetaEntity2         = "entity2"
)

// String returns the value at key if it is a string.
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the value at key as a float64, accepting any numeric type.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Clone makes a shallow copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
