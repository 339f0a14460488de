package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL. Aggregate
// collections are stored as JSONB; entity membership is mirrored into
// investigation_entities for indexed lookups.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects and pings the database.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Records returns a RecordStore sharing this repository's pool.
func (r *PostgresRepository) Records() *PostgresRecordStore {
	return &PostgresRecordStore{pool: r.pool}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const investigationColumns = `
	i.id, i.human_code, i.title, i.description, i.status, i.priority, i.tags,
	i.created_by, i.entities, i.connections, i.timeline, i.risk_assessment,
	i.audit_trail, i.related_evidence_ids, i.related_report_ids, i.resolution,
	i.created_at, i.updated_at, i.version`

type investigationDocs struct {
	tags, entities, connections, timeline, risk, audit, evidenceIDs, reportIDs []byte
}

func encodeDocs(inv *models.Investigation) (*investigationDocs, error) {
	var d investigationDocs
	var err error
	fields := []struct {
		dst *[]byte
		src interface{}
	}{
		{&d.tags, nonNil(inv.Tags)},
		{&d.entities, nonNilSlice(inv.Entities)},
		{&d.connections, nonNilSlice(inv.Connections)},
		{&d.timeline, nonNilSlice(inv.Timeline)},
		{&d.risk, inv.RiskAssessment},
		{&d.audit, nonNilSlice(inv.AuditTrail)},
		{&d.evidenceIDs, nonNil(inv.RelatedEvidenceIDs)},
		{&d.reportIDs, nonNil(inv.RelatedReportIDs)},
	}
	for _, f := range fields {
		if *f.dst, err = json.Marshal(f.src); err != nil {
			return nil, fmt.Errorf("failed to encode investigation: %w", err)
		}
	}
	return &d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func scanInvestigation(row pgx.Row) (*models.Investigation, error) {
	inv := &models.Investigation{}
	var d investigationDocs
	var resolution *string
	if err := row.Scan(
		&inv.ID, &inv.HumanCode, &inv.Title, &inv.Description, &inv.Status, &inv.Priority, &d.tags,
		&inv.CreatedBy, &d.entities, &d.connections, &d.timeline, &d.risk,
		&d.audit, &d.evidenceIDs, &d.reportIDs, &resolution,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.Version,
	); err != nil {
		return nil, err
	}

	targets := []struct {
		src []byte
		dst interface{}
	}{
		{d.tags, &inv.Tags},
		{d.entities, &inv.Entities},
		{d.connections, &inv.Connections},
		{d.timeline, &inv.Timeline},
		{d.risk, &inv.RiskAssessment},
		{d.audit, &inv.AuditTrail},
		{d.evidenceIDs, &inv.RelatedEvidenceIDs},
		{d.reportIDs, &inv.RelatedReportIDs},
	}
	for _, t := range targets {
		if len(t.src) == 0 {
			continue
		}
		if err := json.Unmarshal(t.src, t.dst); err != nil {
			return nil, fmt.Errorf("failed to decode investigation %s: %w", inv.ID, err)
		}
	}
	if resolution != nil {
		res := models.Resolution(*resolution)
		inv.Resolution = &res
	}
	return inv, nil
}

func resolutionArg(inv *models.Investigation) *string {
	if inv.Resolution == nil {
		return nil
	}
	s := string(*inv.Resolution)
	return &s
}

// Create inserts a new investigation with Version 1.
func (r *PostgresRepository) Create(ctx context.Context, inv *models.Investigation) error {
	docs, err := encodeDocs(inv)
	if err != nil {
		return err
	}
	inv.Version = 1

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO investigations (
			id, human_code, title, description, status, priority, tags, created_by,
			entities, connections, timeline, risk_assessment, audit_trail,
			related_evidence_ids, related_report_ids, resolution, overall_risk,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		inv.ID, inv.HumanCode, inv.Title, inv.Description, string(inv.Status), string(inv.Priority), docs.tags, inv.CreatedBy,
		docs.entities, docs.connections, docs.timeline, docs.risk, docs.audit,
		docs.evidenceIDs, docs.reportIDs, resolutionArg(inv), inv.RiskAssessment.OverallRisk,
		inv.CreatedAt, inv.UpdatedAt, inv.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("failed to create investigation: %w", err)
	}
	if err := syncEntities(ctx, tx, inv); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns ErrInvestigationNotFound for unknown ids.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Investigation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvestigationNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+investigationColumns+` FROM investigations i WHERE i.id = $1`, id)
	inv, err := scanInvestigation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvestigationNotFound
		}
		return nil, fmt.Errorf("failed to get investigation: %w", err)
	}
	return inv, nil
}

// Update overwrites every mutable column. HumanCode, CreatedBy and CreatedAt
// are never rewritten.
func (r *PostgresRepository) Update(ctx context.Context, inv *models.Investigation) error {
	if _, err := uuid.Parse(inv.ID); err != nil {
		return ErrInvestigationNotFound
	}
	docs, err := encodeDocs(inv)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE investigations SET
			title = $2, description = $3, status = $4, priority = $5, tags = $6,
			entities = $7, connections = $8, timeline = $9, risk_assessment = $10,
			audit_trail = $11, related_evidence_ids = $12, related_report_ids = $13,
			resolution = $14, overall_risk = $15, updated_at = $16, version = version + 1
		WHERE id = $1
		RETURNING version`,
		inv.ID, inv.Title, inv.Description, string(inv.Status), string(inv.Priority), docs.tags,
		docs.entities, docs.connections, docs.timeline, docs.risk,
		docs.audit, docs.evidenceIDs, docs.reportIDs,
		resolutionArg(inv), inv.RiskAssessment.OverallRisk, inv.UpdatedAt,
	).Scan(&inv.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvestigationNotFound
		}
		return fmt.Errorf("failed to update investigation: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM investigation_entities WHERE investigation_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("failed to reset investigation entities: %w", err)
	}
	if err := syncEntities(ctx, tx, inv); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func syncEntities(ctx context.Context, tx pgx.Tx, inv *models.Investigation) error {
	if len(inv.Entities) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range inv.Entities {
		batch.Queue(`
			INSERT INTO investigation_entities (investigation_id, entity_type, entity_value)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			inv.ID, string(e.Type), e.Key().Value)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store investigation entities: %w", err)
	}
	return nil
}

// List returns one page of investigations, most recently updated first, and
// the total matching count.
func (r *PostgresRepository) List(ctx context.Context, req *models.ListInvestigationsRequest) ([]*models.Investigation, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.Status != "" {
		whereClause += fmt.Sprintf(" AND i.status = $%d", argPos)
		args = append(args, string(req.Status))
		argPos++
	}
	if req.Priority != "" {
		whereClause += fmt.Sprintf(" AND i.priority = $%d", argPos)
		args = append(args, string(req.Priority))
		argPos++
	}
	if req.EntityType != "" {
		whereClause += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM investigation_entities ie
			WHERE ie.investigation_id = i.id AND ie.entity_type = $%d)`, argPos)
		args = append(args, string(req.EntityType))
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM investigations i "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count investigations: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	args = append(args, req.Limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM investigations i %s
		ORDER BY i.updated_at DESC, i.id
		LIMIT $%d OFFSET $%d`, investigationColumns, whereClause, argPos, argPos+1)

	invs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list investigations: %w", err)
	}
	return invs, total, nil
}

func (r *PostgresRepository) FindByEntities(ctx context.Context, keys []models.EntityKey, statuses []models.Status) ([]*models.Investigation, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	types := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		types[i], values[i] = string(k.Type), models.NormalizeValue(k.Value)
	}

	invs, err := r.query(ctx, `SELECT `+investigationColumns+` FROM investigations i
		WHERE i.status = ANY($1)
		AND EXISTS (
			SELECT 1 FROM investigation_entities ie
			JOIN unnest($2::text[], $3::text[]) AS k(entity_type, entity_value)
				ON ie.entity_type = k.entity_type AND ie.entity_value = k.entity_value
			WHERE ie.investigation_id = i.id)
		ORDER BY i.updated_at DESC, i.id`,
		statusStrings(statuses), types, values)
	if err != nil {
		return nil, fmt.Errorf("failed to find investigations by entities: %w", err)
	}
	return invs, nil
}

func (r *PostgresRepository) FindByEntityType(ctx context.Context, t models.EntityType, statuses []models.Status, limit int) ([]*models.Investigation, error) {
	invs, err := r.query(ctx, `SELECT `+investigationColumns+` FROM investigations i
		WHERE i.status = ANY($1)
		AND EXISTS (
			SELECT 1 FROM investigation_entities ie
			WHERE ie.investigation_id = i.id AND ie.entity_type = $2)
		ORDER BY i.updated_at DESC, i.id
		LIMIT $3`,
		statusStrings(statuses), string(t), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find investigations by entity type: %w", err)
	}
	return invs, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Investigation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invs := []*models.Investigation{}
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
