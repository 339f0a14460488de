package timeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

type ReportSource interface {
	ListReports(ctx context.Context, f models.RecordFilter) ([]models.Report, error)
}

type EvidenceSource interface {
	ListEvidence(ctx context.Context, f models.RecordFilter) ([]models.Evidence, error)
}

type EscalationSource interface {
	ListEscalations(ctx context.Context, f models.RecordFilter) ([]models.Escalation, error)
}

type RiskSource interface {
	ListRiskSnapshots(ctx context.Context, entity string) ([]models.RiskSnapshot, error)
}

// AccessLogSource returns up to limit significant access-log entries whose
// path mentions any of terms, most recent first.
type AccessLogSource interface {
	SearchSignificant(ctx context.Context, terms []string, limit int) ([]models.AccessLog, error)
}

// Sources bundles the read-only collaborators. Nil members are skipped.
type Sources struct {
	Reports     ReportSource
	Evidence    EvidenceSource
	Escalations EscalationSource
	Risk        RiskSource
	AccessLogs  AccessLogSource
	Locator     geoip.Locator
}

// records is everything fetched for one timeline.
type records struct {
	reports     []models.Report
	evidence    []models.Evidence
	escalations []models.Escalation
	snapshots   []models.RiskSnapshot
	accessLogs  []models.AccessLog
}

// fetch queries every source concurrently. A failing source is logged and
// contributes nothing.
func (e *Engine) fetch(ctx context.Context, f models.RecordFilter) *records {
	out := &records{}
	var wg sync.WaitGroup

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.ErrorContext(ctx, "timeline source panicked",
						logging.Source(name), logging.Error(fmt.Errorf("%v", r)))
				}
			}()
			if err := fn(); err != nil {
				e.observer.SourceFailed(name)
				e.logger.WarnContext(ctx, "timeline source unavailable",
					logging.Source(name),
					logging.CaseID(f.CaseID),
					logging.Error(fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)))
			}
		}()
	}

	if e.src.Reports != nil {
		run("reports", func() (err error) {
			out.reports, err = e.src.Reports.ListReports(ctx, f)
			return err
		})
	}
	if e.src.Evidence != nil {
		run("evidence", func() (err error) {
			out.evidence, err = e.src.Evidence.ListEvidence(ctx, f)
			return err
		})
	}
	if e.src.Escalations != nil {
		run("escalations", func() (err error) {
			out.escalations, err = e.src.Escalations.ListEscalations(ctx, f)
			return err
		})
	}
	if e.src.Risk != nil && f.Entity != "" {
		run("risk_snapshots", func() (err error) {
			out.snapshots, err = e.src.Risk.ListRiskSnapshots(ctx, f.Entity)
			return err
		})
	}
	if e.src.AccessLogs != nil && e.cfg.AccessLogLimit > 0 {
		var terms []string
		for _, t := range []string{f.CaseID, f.Entity} {
			if t != "" {
				terms = append(terms, t)
			}
		}
		run("access_logs", func() (err error) {
			out.accessLogs, err = e.src.AccessLogs.SearchSignificant(ctx, terms, e.cfg.AccessLogLimit)
			return err
		})
	}

	wg.Wait()
	return out
}
