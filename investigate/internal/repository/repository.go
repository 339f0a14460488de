package repository

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// ErrInvestigationNotFound is returned when an investigation id is unknown.
var ErrInvestigationNotFound = fmt.Errorf("investigation %w", models.ErrNotFound)

// Repository persists investigations.
type Repository interface {
	Create(ctx context.Context, inv *models.Investigation) error
	GetByID(ctx context.Context, id string) (*models.Investigation, error)
	// Update overwrites the stored aggregate (last write wins) and bumps
	// inv.Version.
	Update(ctx context.Context, inv *models.Investigation) error
	List(ctx context.Context, req *models.ListInvestigationsRequest) ([]*models.Investigation, int, error)
	FindByEntities(ctx context.Context, keys []models.EntityKey, statuses []models.Status) ([]*models.Investigation, error)
	FindByEntityType(ctx context.Context, t models.EntityType, statuses []models.Status, limit int) ([]*models.Investigation, error)

	Ping(ctx context.Context) error
	Close() error
}

// RecordStore reads and writes the records investigations are built from.
// Filters match a record when its case id equals CaseID or it references
// Entity; with both set either match is enough.
type RecordStore interface {
	ListReports(ctx context.Context, f models.RecordFilter) ([]models.Report, error)
	ListEvidence(ctx context.Context, f models.RecordFilter) ([]models.Evidence, error)
	FindEvidenceByEntities(ctx context.Context, values []string) ([]models.Evidence, error)
	GetEvidenceByIDs(ctx context.Context, ids []string) ([]models.Evidence, error)
	ListEscalations(ctx context.Context, f models.RecordFilter) ([]models.Escalation, error)
	ListRiskSnapshots(ctx context.Context, entity string) ([]models.RiskSnapshot, error)

	InsertReports(ctx context.Context, reports []models.Report) error
	InsertEvidence(ctx context.Context, evidence []models.Evidence) error
	InsertEscalations(ctx context.Context, escalations []models.Escalation) error
	InsertRiskSnapshots(ctx context.Context, snapshots []models.RiskSnapshot) error
}
