package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// PostgresRecordStore implements RecordStore over the reports, evidence,
// escalations and risk_snapshots tables. Entity matching is case-insensitive.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

// recordWhere builds "case_id = $n OR <entity predicate>" for f.
func recordWhere(f models.RecordFilter, entityPredicate string, args []interface{}) (string, []interface{}) {
	var clauses []string
	if f.CaseID != "" {
		args = append(args, f.CaseID)
		clauses = append(clauses, fmt.Sprintf("case_id = $%d", len(args)))
	}
	if f.Entity != "" {
		args = append(args, []string{strings.ToLower(f.Entity)})
		clauses = append(clauses, fmt.Sprintf(entityPredicate, len(args)))
	}
	if len(clauses) == 0 {
		return "WHERE FALSE", args
	}
	where := "WHERE " + clauses[0]
	if len(clauses) == 2 {
		where = fmt.Sprintf("WHERE (%s OR %s)", clauses[0], clauses[1])
	}
	return where, args
}

const evidenceEntityPredicate = `(lower(entity) = ANY($%[1]d) OR lower(ip_address) = ANY($%[1]d)
	OR EXISTS (SELECT 1 FROM unnest(linked_entities) le WHERE lower(le) = ANY($%[1]d)))`

func (s *PostgresRecordStore) ListReports(ctx context.Context, f models.RecordFilter) ([]models.Report, error) {
	where, args := recordWhere(f, "lower(entity_id) = ANY($%d)", nil)
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, case_id, reason, severity, risk_level, risk_score, ip_geo, reporter_ip, status, created_at
		FROM reports `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	out := []models.Report{}
	for rows.Next() {
		var rep models.Report
		var geo []byte
		if err := rows.Scan(&rep.ID, &rep.EntityID, &rep.CaseID, &rep.Reason, &rep.Severity, &rep.RiskLevel,
			&rep.RiskScore, &geo, &rep.ReporterIP, &rep.Status, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if len(geo) > 0 {
			rep.IPGeo = &models.GeoInfo{}
			if err := json.Unmarshal(geo, rep.IPGeo); err != nil {
				return nil, fmt.Errorf("failed to decode report geo: %w", err)
			}
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

const evidenceColumns = `id, case_id, entity, ip_address, linked_entities, file_hash, file_size,
	uploaded_at, risk_level, verification_status, integrity_status, last_verified`

func (s *PostgresRecordStore) queryEvidence(ctx context.Context, query string, args ...interface{}) ([]models.Evidence, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	out := []models.Evidence{}
	for rows.Next() {
		var ev models.Evidence
		if err := rows.Scan(&ev.ID, &ev.CaseID, &ev.Entity, &ev.IPAddress, &ev.LinkedEntities, &ev.FileHash, &ev.FileSize,
			&ev.UploadedAt, &ev.RiskLevel, &ev.VerificationStatus, &ev.IntegrityStatus, &ev.LastVerified); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) ListEvidence(ctx context.Context, f models.RecordFilter) ([]models.Evidence, error) {
	where, args := recordWhere(f, evidenceEntityPredicate, nil)
	return s.queryEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence `+where+` ORDER BY uploaded_at, id`, args...)
}

func (s *PostgresRecordStore) FindEvidenceByEntities(ctx context.Context, values []string) ([]models.Evidence, error) {
	if len(values) == 0 {
		return []models.Evidence{}, nil
	}
	return s.queryEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE `+
		fmt.Sprintf(evidenceEntityPredicate, 1)+` ORDER BY uploaded_at, id`, lowerAll(values))
}

func (s *PostgresRecordStore) GetEvidenceByIDs(ctx context.Context, ids []string) ([]models.Evidence, error) {
	if len(ids) == 0 {
		return []models.Evidence{}, nil
	}
	return s.queryEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE id = ANY($1) ORDER BY uploaded_at, id`, ids)
}

func (s *PostgresRecordStore) ListEscalations(ctx context.Context, f models.RecordFilter) ([]models.Escalation, error) {
	where, args := recordWhere(f, "lower(entity) = ANY($%d)", nil)
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity, case_id, risk_score, trigger_reason, webhook_response, created_at
		FROM escalations `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	out := []models.Escalation{}
	for rows.Next() {
		var esc models.Escalation
		if err := rows.Scan(&esc.ID, &esc.Entity, &esc.CaseID, &esc.RiskScore, &esc.Trigger,
			&esc.WebhookResponse, &esc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		out = append(out, esc)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) ListRiskSnapshots(ctx context.Context, entity string) ([]models.RiskSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet, level, score, report_count, updated_at
		FROM risk_snapshots WHERE lower(wallet) = lower($1) ORDER BY updated_at, id`, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.RiskSnapshot{}
	for rows.Next() {
		var rs models.RiskSnapshot
		if err := rows.Scan(&rs.ID, &rs.Wallet, &rs.Level, &rs.Score, &rs.ReportCount, &rs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk snapshot: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) InsertReports(ctx context.Context, reports []models.Report) error {
	batch := &pgx.Batch{}
	for _, rep := range reports {
		var geo []byte
		if rep.IPGeo != nil {
			var err error
			if geo, err = json.Marshal(rep.IPGeo); err != nil {
				return fmt.Errorf("failed to encode report geo: %w", err)
			}
		}
		batch.Queue(`
			INSERT INTO reports (id, entity_id, case_id, reason, severity, risk_level, risk_score, ip_geo, reporter_ip, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			rep.ID, rep.EntityID, rep.CaseID, rep.Reason, rep.Severity, rep.RiskLevel, rep.RiskScore, geo,
			rep.ReporterIP, rep.Status, rep.CreatedAt)
	}
	return s.sendBatch(ctx, batch, "reports")
}

func (s *PostgresRecordStore) InsertEvidence(ctx context.Context, evidence []models.Evidence) error {
	batch := &pgx.Batch{}
	for _, ev := range evidence {
		linked := ev.LinkedEntities
		if linked == nil {
			linked = []string{}
		}
		batch.Queue(`
			INSERT INTO evidence (`+evidenceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.CaseID, ev.Entity, ev.IPAddress, linked, ev.FileHash, ev.FileSize,
			ev.UploadedAt, ev.RiskLevel, ev.VerificationStatus, ev.IntegrityStatus, ev.LastVerified)
	}
	return s.sendBatch(ctx, batch, "evidence")
}

func (s *PostgresRecordStore) InsertEscalations(ctx context.Context, escalations []models.Escalation) error {
	batch := &pgx.Batch{}
	for _, esc := range escalations {
		batch.Queue(`
			INSERT INTO escalations (id, entity, case_id, risk_score, trigger_reason, webhook_response, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			esc.ID, esc.Entity, esc.CaseID, esc.RiskScore, esc.Trigger, esc.WebhookResponse, esc.CreatedAt)
	}
	return s.sendBatch(ctx, batch, "escalations")
}

func (s *PostgresRecordStore) InsertRiskSnapshots(ctx context.Context, snapshots []models.RiskSnapshot) error {
	batch := &pgx.Batch{}
	for _, rs := range snapshots {
		batch.Queue(`
			INSERT INTO risk_snapshots (id, wallet, level, score, report_count, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			rs.ID, rs.Wallet, rs.Level, rs.Score, rs.ReportCount, rs.UpdatedAt)
	}
	return s.sendBatch(ctx, batch, "risk snapshots")
}

func (s *PostgresRecordStore) sendBatch(ctx context.Context, batch *pgx.Batch, what string) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert %s: %w", what, err)
	}
	return nil
}
