package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// MemoryRepository is an in-process Repository and RecordStore. Values are
// deep-copied on the way in and out so callers never share state with the
// store.
type MemoryRepository struct {
	mu             sync.RWMutex
	investigations map[string]*models.Investigation
	reports        []models.Report
	evidence       []models.Evidence
	escalations    []models.Escalation
	riskSnapshots  []models.RiskSnapshot
}

var (
	_ Repository  = (*MemoryRepository)(nil)
	_ RecordStore = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{investigations: make(map[string]*models.Investigation)}
}

func clone(inv *models.Investigation) *models.Investigation {
	data, err := json.Marshal(inv)
	if err != nil {
		panic(fmt.Sprintf("clone investigation: %v", err))
	}
	out := &models.Investigation{}
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("clone investigation: %v", err))
	}
	return out
}

func (m *MemoryRepository) Create(_ context.Context, inv *models.Investigation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.investigations[inv.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", models.ErrConflict, inv.ID)
	}
	for _, other := range m.investigations {
		if inv.HumanCode != "" && other.HumanCode == inv.HumanCode {
			return fmt.Errorf("%w: duplicate human code %s", models.ErrConflict, inv.HumanCode)
		}
	}
	inv.Version = 1
	m.investigations[inv.ID] = clone(inv)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*models.Investigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.investigations[id]
	if !ok {
		return nil, ErrInvestigationNotFound
	}
	return clone(inv), nil
}

func (m *MemoryRepository) Update(_ context.Context, inv *models.Investigation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.investigations[inv.ID]
	if !ok {
		return ErrInvestigationNotFound
	}
	inv.Version = stored.Version + 1
	updated := clone(inv)
	updated.HumanCode = stored.HumanCode
	updated.CreatedBy = stored.CreatedBy
	updated.CreatedAt = stored.CreatedAt
	m.investigations[inv.ID] = updated
	return nil
}

// sorted returns every investigation, most recently updated first.
func (m *MemoryRepository) sorted() []*models.Investigation {
	all := make([]*models.Investigation, 0, len(m.investigations))
	for _, inv := range m.investigations {
		all = append(all, inv)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

func (m *MemoryRepository) List(_ context.Context, req *models.ListInvestigationsRequest) ([]*models.Investigation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.Investigation
	for _, inv := range m.sorted() {
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		if req.Priority != "" && inv.Priority != req.Priority {
			continue
		}
		if req.EntityType != "" && len(inv.EntitiesOfType(req.EntityType)) == 0 {
			continue
		}
		matched = append(matched, inv)
	}

	total := len(matched)
	start := (req.Page - 1) * req.Limit
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}
	page := make([]*models.Investigation, 0, end-start)
	for _, inv := range matched[start:end] {
		page = append(page, clone(inv))
	}
	return page, total, nil
}

func hasStatus(s models.Status, statuses []models.Status) bool {
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) FindByEntities(_ context.Context, keys []models.EntityKey, statuses []models.Status) ([]*models.Investigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Investigation{}
	for _, inv := range m.sorted() {
		if !hasStatus(inv.Status, statuses) {
			continue
		}
		for _, k := range keys {
			if inv.HasEntity(k) {
				out = append(out, clone(inv))
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryRepository) FindByEntityType(_ context.Context, t models.EntityType, statuses []models.Status, limit int) ([]*models.Investigation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Investigation{}
	for _, inv := range m.sorted() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if hasStatus(inv.Status, statuses) && len(inv.EntitiesOfType(t)) > 0 {
			out = append(out, clone(inv))
		}
	}
	return out, nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }
func (m *MemoryRepository) Close() error               { return nil }

func matchesFilter(f models.RecordFilter, caseID string, references func(string) bool) bool {
	if f.CaseID != "" && caseID == f.CaseID {
		return true
	}
	return f.Entity != "" && references(f.Entity)
}

func equalFold(a string) func(string) bool {
	return func(b string) bool { return a != "" && strings.EqualFold(a, b) }
}

func (m *MemoryRepository) ListReports(_ context.Context, f models.RecordFilter) ([]models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Report{}
	for _, r := range m.reports {
		if matchesFilter(f, r.CaseID, equalFold(r.EntityID)) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListEvidence(_ context.Context, f models.RecordFilter) ([]models.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Evidence{}
	for _, ev := range m.evidence {
		if matchesFilter(f, ev.CaseID, ev.References) {
			out = append(out, ev)
		}
	}
	sortEvidence(out)
	return out, nil
}

func (m *MemoryRepository) FindEvidenceByEntities(_ context.Context, values []string) ([]models.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Evidence{}
	for _, ev := range m.evidence {
		for _, v := range values {
			if ev.References(v) {
				out = append(out, ev)
				break
			}
		}
	}
	sortEvidence(out)
	return out, nil
}

func (m *MemoryRepository) GetEvidenceByIDs(_ context.Context, ids []string) ([]models.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := []models.Evidence{}
	for _, ev := range m.evidence {
		if _, ok := want[ev.ID]; ok {
			out = append(out, ev)
		}
	}
	sortEvidence(out)
	return out, nil
}

func sortEvidence(ev []models.Evidence) {
	sort.SliceStable(ev, func(i, j int) bool {
		if !ev[i].UploadedAt.Equal(ev[j].UploadedAt) {
			return ev[i].UploadedAt.Before(ev[j].UploadedAt)
		}
		return ev[i].ID < ev[j].ID
	})
}

func (m *MemoryRepository) ListEscalations(_ context.Context, f models.RecordFilter) ([]models.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Escalation{}
	for _, e := range m.escalations {
		if matchesFilter(f, e.CaseID, equalFold(e.Entity)) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListRiskSnapshots(_ context.Context, entity string) ([]models.RiskSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.RiskSnapshot{}
	for _, rs := range m.riskSnapshots {
		if strings.EqualFold(rs.Wallet, entity) {
			out = append(out, rs)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryRepository) InsertReports(_ context.Context, reports []models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = insertNew(m.reports, reports, func(r models.Report) string { return r.ID })
	return nil
}

func (m *MemoryRepository) InsertEvidence(_ context.Context, evidence []models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evidence = insertNew(m.evidence, evidence, func(e models.Evidence) string { return e.ID })
	return nil
}

func (m *MemoryRepository) InsertEscalations(_ context.Context, escalations []models.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations = insertNew(m.escalations, escalations, func(e models.Escalation) string { return e.ID })
	return nil
}

func (m *MemoryRepository) InsertRiskSnapshots(_ context.Context, snapshots []models.RiskSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskSnapshots = insertNew(m.riskSnapshots, snapshots, func(rs models.RiskSnapshot) string { return rs.ID })
	return nil
}

// insertNew appends the records whose id is not yet stored, matching the
// ON CONFLICT (id) DO NOTHING behaviour of the Postgres store.
func insertNew[T any](dst, src []T, id func(T) string) []T {
	seen := make(map[string]struct{}, len(dst))
	for _, r := range dst {
		seen[id(r)] = struct{}{}
	}
	for _, r := range src {
		if _, ok := seen[id(r)]; ok {
			continue
		}
		seen[id(r)] = struct{}{}
		dst = append(dst, r)
	}
	return dst
}
