package timeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

// Export is a rendered timeline ready to be served.
type Export struct {
	Format      string
	ContentType string
	Filename    string
	Body        []byte
}

// Document is the structured payload handed to the PDF renderer.
type Document struct {
	Title       string                 `json:"title"`
	GeneratedAt time.Time              `json:"generated_at"`
	CaseID      string                 `json:"case_id,omitempty"`
	Entity      string                 `json:"entity,omitempty"`
	Summary     models.TimelineSummary `json:"summary"`
	Events      []models.TimelineEvent `json:"events"`
}

var csvHeader = []string{"sequence", "timestamp", "type", "entity", "description", "priority", "data"}

// ExportTimeline renders the timeline of caseID/entity as json, csv or pdf.
// The pdf format yields a Document for a downstream renderer.
func (e *Engine) ExportTimeline(ctx context.Context, caseID, entity, format string) (*Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	switch format {
	case FormatJSON, FormatCSV, FormatPDF:
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", models.ErrValidation, format)
	}

	res, err := e.GenerateTimeline(ctx, caseID, entity)
	if err != nil {
		return nil, err
	}
	name := exportName(res.CaseID, res.Entity)

	switch format {
	case FormatCSV:
		body, err := EncodeCSV(res.Timeline)
		if err != nil {
			return nil, err
		}
		return &Export{Format: format, ContentType: "text/csv", Filename: name + ".csv", Body: body}, nil
	case FormatPDF:
		doc := Document{
			Title:       "Timeline " + name,
			GeneratedAt: e.now(),
			CaseID:      res.CaseID,
			Entity:      res.Entity,
			Summary:     res.Summary,
			Events:      res.Timeline,
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode timeline document: %w", err)
		}
		return &Export{Format: format, ContentType: "application/json", Filename: name + ".pdf.json", Body: body}, nil
	default:
		body, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to encode timeline: %w", err)
		}
		return &Export{Format: format, ContentType: "application/json", Filename: name + ".json", Body: body}, nil
	}
}

func exportName(caseID, entity string) string {
	parts := []string{"timeline"}
	for _, p := range []string{caseID, entity} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.Join(parts, "_"))
}

// EncodeCSV writes one row per event. The description and data columns are
// always quoted.
func EncodeCSV(events []models.TimelineEvent) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(csvHeader, ","))
	buf.WriteString("\n")
	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event data: %w", err)
		}
		if ev.Data == nil {
			data = []byte("{}")
		}
		fields := []string{
			strconv.Itoa(ev.Sequence),
			ev.Timestamp.UTC().Format(time.RFC3339),
			string(ev.Type),
			csvField(ev.Entity),
			quote(ev.Description),
			string(ev.Priority),
			quote(string(data)),
		}
		buf.WriteString(strings.Join(fields, ","))
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// csvField quotes s only when it needs it.
func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}
