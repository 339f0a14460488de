package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// RiskScore maps a risk or escalation event to a number: the explicit
// risk score when present, else the risk level (high 80, medium 50, low 20).
func RiskScore(ev models.TimelineEvent) float64 {
	if score, ok := ev.Data.Float(models.MetaRiskScore); ok {
		return score
	}
	switch strings.ToLower(ev.Data.String(models.MetaRiskLevel)) {
	case "high":
		return 80
	case "medium":
		return 50
	case "low":
		return 20
	default:
		return 0
	}
}

// Summarize computes counts, timespan, risk progression and milestones for
// a sorted timeline.
func Summarize(events []models.TimelineEvent) models.TimelineSummary {
	s := models.TimelineSummary{
		TotalEvents:     len(events),
		EventTypes:      make(map[models.EventType]int),
		RiskProgression: []models.RiskPoint{},
	}
	if len(events) == 0 {
		return s
	}

	start, end := events[0].Timestamp, events[len(events)-1].Timestamp
	s.Timespan = &models.Timespan{
		Start:         start,
		End:           end,
		HumanDuration: HumanDuration(end.Sub(start)),
	}

	first := func(slot **models.TimelineEvent, ev models.TimelineEvent) {
		if *slot == nil {
			*slot = &ev
		}
	}
	for _, ev := range events {
		s.EventTypes[ev.Type]++
		switch ev.Type {
		case models.EventReportSubmitted:
			first(&s.Milestones.FirstReport, ev)
		case models.EventEvidenceUploaded:
			first(&s.Milestones.FirstEvidence, ev)
		case models.EventEscalation:
			first(&s.Milestones.FirstEscalation, ev)
		}
		if ev.Priority == models.EventPriorityHigh {
			first(&s.Milestones.FirstHighPriority, ev)
		}
		if ev.Type == models.EventRiskAssessment || ev.Type == models.EventEscalation {
			s.RiskProgression = append(s.RiskProgression, models.RiskPoint{
				Timestamp: ev.Timestamp,
				Score:     RiskScore(ev),
				Type:      ev.Type,
			})
		}
	}
	return s
}

// HumanDuration renders d with its two largest units, e.g. "2 days 3 hours".
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return plural(int(d/time.Second), "second")
	}

	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
	}
	var parts []string
	for _, u := range units {
		if n := int(d / u.size); n > 0 {
			parts = append(parts, plural(n, u.name))
			d -= time.Duration(n) * u.size
		} else if len(parts) > 0 {
			break
		}
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// ReportIDs returns the ids of the reports behind report_submitted events.
func ReportIDs(events []models.TimelineEvent) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.Type != models.EventReportSubmitted {
			continue
		}
		id := ev.Data.String(models.MetaReportID)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
