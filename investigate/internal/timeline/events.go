package timeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// ReportPriority ranks a report by severity and risk score.
func ReportPriority(severity int, riskScore *float64) models.EventPriority {
	score := 0.0
	if riskScore != nil {
		score = *riskScore
	}
	switch {
	case severity >= 4 || score >= 80:
		return models.EventPriorityHigh
	case severity >= 3 || score >= 60:
		return models.EventPriorityMedium
	default:
		return models.EventPriorityLow
	}
}

// EvidencePriority ranks an upload by its risk level and verification.
func EvidencePriority(ev models.Evidence) models.EventPriority {
	switch {
	case ev.RiskLevel == "high" || ev.VerificationStatus == models.VerificationFailed:
		return models.EventPriorityHigh
	case ev.RiskLevel == "medium":
		return models.EventPriorityMedium
	default:
		return models.EventPriorityLow
	}
}

// VerificationPriority is low for intact evidence and high otherwise.
func VerificationPriority(integrity string) models.EventPriority {
	if integrity == models.IntegrityIntact {
		return models.EventPriorityLow
	}
	return models.EventPriorityHigh
}

func levelPriority(level string) models.EventPriority {
	switch strings.ToLower(level) {
	case "high", "critical":
		return models.EventPriorityHigh
	case "medium":
		return models.EventPriorityMedium
	default:
		return models.EventPriorityLow
	}
}

var significantPath = regexp.MustCompile(`(?i)(evidence|escalate|reports|risk|admin)`)

// IsSignificant reports whether an access-log entry is worth showing: any
// write, or a read of a sensitive path.
func IsSignificant(l models.AccessLog) bool {
	switch strings.ToUpper(l.Method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return significantPath.MatchString(l.Path)
}

// builder accumulates events in fetch order.
type builder struct {
	events []models.TimelineEvent
}

func (b *builder) add(ev models.TimelineEvent) {
	ev.FetchOrder = len(b.events)
	b.events = append(b.events, ev)
}

func (e *Engine) reportEvents(ctx context.Context, b *builder, r models.Report) {
	data := models.Metadata{
		models.MetaReportID: r.ID,
		models.MetaReason:   r.Reason,
		models.MetaSeverity: r.Severity,
		models.MetaStatus:   r.Status,
	}
	if r.RiskLevel != "" {
		data[models.MetaRiskLevel] = r.RiskLevel
	}
	if r.RiskScore != nil {
		data[models.MetaRiskScore] = *r.RiskScore
	}
	b.add(models.TimelineEvent{
		Type:        models.EventReportSubmitted,
		Timestamp:   r.CreatedAt,
		Entity:      r.EntityID,
		CaseID:      r.CaseID,
		Data:        data,
		Description: fmt.Sprintf("Report submitted against %s: %s", r.EntityID, r.Reason),
		Icon:        models.IconReport,
		Priority:    ReportPriority(r.Severity, r.RiskScore),
	})

	geo := r.IPGeo
	if geo == nil && r.ReporterIP != "" && e.src.Locator != nil {
		var err error
		if geo, err = e.src.Locator.Locate(ctx, r.ReporterIP); err != nil {
			e.logger.DebugContext(ctx, "skipping ip trace",
				logging.Source("geoip"), logging.Error(err))
			return
		}
	}
	if geo == nil {
		return
	}

	where := strings.Trim(strings.Join([]string{geo.City, geo.Country}, ", "), ", ")
	if where == "" {
		where = fmt.Sprintf("%.4f, %.4f", geo.Lat, geo.Lon)
	}
	traced := models.Metadata{
		models.MetaReportID:  r.ID,
		models.MetaLatitude:  geo.Lat,
		models.MetaLongitude: geo.Lon,
	}
	if r.ReporterIP != "" {
		traced[models.MetaIP] = r.ReporterIP
	}
	if geo.City != "" {
		traced[models.MetaCity] = geo.City
	}
	if geo.Country != "" {
		traced[models.MetaCountry] = geo.Country
	}
	if geo.Org != "" {
		traced[models.MetaOrg] = geo.Org
	}
	b.add(models.TimelineEvent{
		Type:        models.EventIPTraced,
		Timestamp:   r.CreatedAt.Add(e.cfg.IPTraceOffset),
		Entity:      r.EntityID,
		CaseID:      r.CaseID,
		Data:        traced,
		Description: fmt.Sprintf("Reporter IP traced to %s", where),
		Icon:        models.IconIPTrace,
		Priority:    models.EventPriorityLow,
	})
}

func evidenceEvents(b *builder, ev models.Evidence) {
	data := models.Metadata{
		models.MetaEvidenceID: ev.ID,
		models.MetaFileHash:   ev.FileHash,
		models.MetaFileSize:   ev.FileSize,
	}
	if ev.RiskLevel != "" {
		data[models.MetaRiskLevel] = ev.RiskLevel
	}
	if ev.VerificationStatus != "" {
		data[models.MetaVerification] = ev.VerificationStatus
	}
	b.add(models.TimelineEvent{
		Type:        models.EventEvidenceUploaded,
		Timestamp:   ev.UploadedAt,
		Entity:      ev.Entity,
		CaseID:      ev.CaseID,
		Data:        data,
		Description: fmt.Sprintf("Evidence %s uploaded (%d bytes)", ev.ID, ev.FileSize),
		Icon:        models.IconEvidence,
		Priority:    EvidencePriority(ev),
	})

	if ev.LastVerified == nil {
		return
	}
	integrity := ev.IntegrityStatus
	if integrity == "" {
		integrity = "unknown"
	}
	b.add(models.TimelineEvent{
		Type:      models.EventVerification,
		Timestamp: *ev.LastVerified,
		Entity:    ev.Entity,
		CaseID:    ev.CaseID,
		Data: models.Metadata{
			models.MetaEvidenceID:   ev.ID,
			models.MetaIntegrity:    integrity,
			models.MetaVerification: ev.VerificationStatus,
		},
		Description: fmt.Sprintf("Evidence %s verified, integrity %s", ev.ID, integrity),
		Icon:        models.IconVerification,
		Priority:    VerificationPriority(ev.IntegrityStatus),
	})
}

func escalationEvent(b *builder, esc models.Escalation) {
	data := models.Metadata{models.MetaTrigger: esc.Trigger}
	if esc.RiskScore != nil {
		data[models.MetaRiskScore] = *esc.RiskScore
	}
	if esc.WebhookResponse != "" {
		data[models.MetaWebhookResponse] = esc.WebhookResponse
	}
	b.add(models.TimelineEvent{
		Type:        models.EventEscalation,
		Timestamp:   esc.CreatedAt,
		Entity:      esc.Entity,
		CaseID:      esc.CaseID,
		Data:        data,
		Description: fmt.Sprintf("Escalated: %s", esc.Trigger),
		Icon:        models.IconEscalation,
		Priority:    models.EventPriorityHigh,
	})
}

func riskEvent(b *builder, rs models.RiskSnapshot) {
	data := models.Metadata{
		models.MetaRiskLevel:   rs.Level,
		models.MetaReportCount: rs.ReportCount,
	}
	if rs.Score != nil {
		data[models.MetaRiskScore] = *rs.Score
	}
	b.add(models.TimelineEvent{
		Type:        models.EventRiskAssessment,
		Timestamp:   rs.UpdatedAt,
		Entity:      rs.Wallet,
		Data:        data,
		Description: fmt.Sprintf("Risk assessed as %s from %d reports", rs.Level, rs.ReportCount),
		Icon:        models.IconRisk,
		Priority:    levelPriority(rs.Level),
	})
}

func accessLogEvent(b *builder, l models.AccessLog, entity string) {
	data := models.Metadata{
		models.MetaMethod: l.Method,
		models.MetaPath:   l.Path,
	}
	if l.User != "" {
		data[models.MetaUser] = l.User
	}
	if l.IP != "" {
		data[models.MetaIP] = l.IP
	}
	actor := l.User
	if actor == "" {
		actor = "anonymous"
	}
	b.add(models.TimelineEvent{
		Type:        models.EventActionTaken,
		Timestamp:   l.Timestamp,
		Entity:      entity,
		Data:        data,
		Description: fmt.Sprintf("%s %s by %s", strings.ToUpper(l.Method), l.Path, actor),
		Icon:        models.IconAction,
		Priority:    models.EventPriorityLow,
	})
}
