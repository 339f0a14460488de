package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

var baseTime = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

func newInvestigation(status models.Status, updated time.Time, entities ...models.Entity) *models.Investigation {
	id := uuid.Must(uuid.NewV7()).String()
	return &models.Investigation{
		ID:          id,
		HumanCode:   models.HumanCodeFor(id, updated),
		Title:       "test investigation",
		Status:      status,
		Priority:    models.PriorityMedium,
		CreatedBy:   "tester",
		Entities:    entities,
		Connections: []models.Connection{},
		Timeline:    []models.TimelineEvent{},
		RiskAssessment: models.RiskAssessment{
			OverallRisk: 0.3,
			RiskFactors: []string{"x"},
			LastUpdated: updated,
		},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func wallet(v string) models.Entity {
	return models.Entity{Type: models.EntityWalletAddress, Value: v, AddedAt: baseTime}
}

func ip(v string) models.Entity {
	return models.Entity{Type: models.EntityIPAddress, Value: v, AddedAt: baseTime}
}

// testRepositoryContract exercises behaviour every Repository must share.
func testRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		inv := newInvestigation(models.StatusActive, baseTime, wallet("0xC0FFEE"))
		inv.Tags = []string{"phishing"}
		gap := 12.5
		inv.Timeline = []models.TimelineEvent{{
			Type: models.EventConnectionDetected, Timestamp: baseTime, Sequence: 1, TimeGap: &gap,
			Priority: models.EventPriorityHigh, Data: models.Metadata{models.MetaStrength: 0.8},
		}}
		res := models.ResolutionOngoing
		inv.Resolution = &res
		require.NoError(t, repo.Create(ctx, inv))
		assert.Equal(t, 1, inv.Version)

		got, err := repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, inv.HumanCode, got.HumanCode)
		assert.Equal(t, []string{"phishing"}, got.Tags)
		require.Len(t, got.Entities, 1)
		assert.Equal(t, "0xC0FFEE", got.Entities[0].Value)
		require.Len(t, got.Timeline, 1)
		require.NotNil(t, got.Timeline[0].TimeGap)
		assert.Equal(t, 12.5, *got.Timeline[0].TimeGap)
		require.NotNil(t, got.Resolution)
		assert.Equal(t, models.ResolutionOngoing, *got.Resolution)
		assert.Equal(t, 0.3, got.RiskAssessment.OverallRisk)

		found, err := repo.FindByEntities(ctx, []models.EntityKey{wallet("0xc0ffee").Key()}, models.OpenStatuses())
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, inv.ID, found[0].ID)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.True(t, errors.Is(err, models.ErrNotFound))
		_, err = repo.GetByID(ctx, "not-a-uuid")
		assert.True(t, errors.Is(err, ErrInvestigationNotFound))
	})

	t.Run("update bumps version and rewrites entities", func(t *testing.T) {
		inv := newInvestigation(models.StatusActive, baseTime, wallet("0xUPD1"))
		require.NoError(t, repo.Create(ctx, inv))

		inv.Entities = append(inv.Entities, ip("203.0.113.9"))
		inv.Title = "renamed"
		inv.UpdatedAt = baseTime.Add(time.Hour)
		require.NoError(t, repo.Update(ctx, inv))
		assert.Equal(t, 2, inv.Version)

		got, err := repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Title)
		assert.Equal(t, 2, got.Version)
		assert.Len(t, got.Entities, 2)

		found, err := repo.FindByEntities(ctx, []models.EntityKey{ip("203.0.113.9").Key()}, models.OpenStatuses())
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, inv.ID, found[0].ID)
	})

	t.Run("update unknown", func(t *testing.T) {
		inv := newInvestigation(models.StatusActive, baseTime)
		assert.True(t, errors.Is(repo.Update(ctx, inv), models.ErrNotFound))
	})

	t.Run("find by entities respects status", func(t *testing.T) {
		closed := newInvestigation(models.StatusClosed, baseTime, wallet("0xCLOSED"))
		require.NoError(t, repo.Create(ctx, closed))

		found, err := repo.FindByEntities(ctx, []models.EntityKey{wallet("0xCLOSED").Key()}, models.OpenStatuses())
		require.NoError(t, err)
		assert.Empty(t, found)

		found, err = repo.FindByEntities(ctx, []models.EntityKey{wallet("0xCLOSED").Key()}, []models.Status{models.StatusClosed})
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("find by entity type orders and limits", func(t *testing.T) {
		var ids []string
		for i := 0; i < 4; i++ {
			inv := newInvestigation(models.StatusUnderReview, baseTime.Add(time.Duration(100+i)*time.Hour),
				models.Entity{Type: models.EntityDeviceID, Value: fmt.Sprintf("dev-%d", i)})
			require.NoError(t, repo.Create(ctx, inv))
			ids = append(ids, inv.ID)
		}
		found, err := repo.FindByEntityType(ctx, models.EntityDeviceID, models.OpenStatuses(), 3)
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, ids[3], found[0].ID)
		assert.Equal(t, ids[2], found[1].ID)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			inv := newInvestigation(models.StatusEscalated, baseTime.Add(time.Duration(i)*time.Minute),
				models.Entity{Type: models.EntityPhone, Value: fmt.Sprintf("+1555000%d", i)})
			inv.Priority = models.PriorityCritical
			require.NoError(t, repo.Create(ctx, inv))
		}

		req := &models.ListInvestigationsRequest{Page: 1, Limit: 2, Status: models.StatusEscalated}
		page, total, err := repo.List(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page, 2)

		req.Page = 2
		page, _, err = repo.List(ctx, req)
		require.NoError(t, err)
		assert.Len(t, page, 1)

		page, total, err = repo.List(ctx, &models.ListInvestigationsRequest{Page: 1, Limit: 50, EntityType: models.EntityPhone, Priority: models.PriorityCritical})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page, 3)
	})
}

func testRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()
	score := 85.0
	verified := baseTime.Add(2 * time.Hour)

	require.NoError(t, store.InsertReports(ctx, []models.Report{
		{ID: "rep-1", EntityID: "0xAbC", CaseID: "case-1", Reason: "scam", Severity: 5, RiskScore: &score,
			IPGeo: &models.GeoInfo{Lat: 1, Lon: 2, City: "Paris"}, CreatedAt: baseTime, Status: "open"},
		{ID: "rep-2", EntityID: "0xother", CaseID: "case-2", Severity: 1, CreatedAt: baseTime.Add(time.Hour), Status: "open"},
	}))
	require.NoError(t, store.InsertEvidence(ctx, []models.Evidence{
		{ID: "ev-2", CaseID: "case-1", Entity: "0xabc", FileSize: 10, UploadedAt: baseTime.Add(time.Hour), LastVerified: &verified},
		{ID: "ev-1", Entity: "0xdef", IPAddress: "198.51.100.4", LinkedEntities: []string{"0xABC"}, FileSize: 20, UploadedAt: baseTime},
		{ID: "ev-3", CaseID: "case-9", Entity: "0xzzz", UploadedAt: baseTime},
	}))
	require.NoError(t, store.InsertEscalations(ctx, []models.Escalation{
		{ID: "esc-1", Entity: "0xABC", Trigger: "threshold", RiskScore: &score, CreatedAt: baseTime},
	}))
	require.NoError(t, store.InsertRiskSnapshots(ctx, []models.RiskSnapshot{
		{ID: "rs-1", Wallet: "0xabc", Level: "high", ReportCount: 3, UpdatedAt: baseTime},
		{ID: "rs-2", Wallet: "0xdef", Level: "low", UpdatedAt: baseTime},
	}))

	t.Run("inserts are idempotent by id", func(t *testing.T) {
		require.NoError(t, store.InsertReports(ctx, []models.Report{
			{ID: "rep-1", EntityID: "0xAbC", Reason: "duplicate", Severity: 1, CreatedAt: baseTime, Status: "open"},
		}))
		reps, err := store.ListReports(ctx, models.RecordFilter{CaseID: "case-1"})
		require.NoError(t, err)
		require.Len(t, reps, 1)
		assert.Equal(t, "scam", reps[0].Reason)
	})

	t.Run("reports by entity or case", func(t *testing.T) {
		reps, err := store.ListReports(ctx, models.RecordFilter{Entity: "0xabc"})
		require.NoError(t, err)
		require.Len(t, reps, 1)
		require.NotNil(t, reps[0].IPGeo)
		assert.Equal(t, "Paris", reps[0].IPGeo.City)
		require.NotNil(t, reps[0].RiskScore)
		assert.Equal(t, 85.0, *reps[0].RiskScore)

		reps, err = store.ListReports(ctx, models.RecordFilter{Entity: "0xabc", CaseID: "case-2"})
		require.NoError(t, err)
		assert.Len(t, reps, 2)

		reps, err = store.ListReports(ctx, models.RecordFilter{})
		require.NoError(t, err)
		assert.Empty(t, reps)
	})

	t.Run("evidence references", func(t *testing.T) {
		evs, err := store.ListEvidence(ctx, models.RecordFilter{Entity: "0xABC"})
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, "ev-1", evs[0].ID)
		assert.Equal(t, "ev-2", evs[1].ID)
		require.NotNil(t, evs[1].LastVerified)

		evs, err = store.FindEvidenceByEntities(ctx, []string{"198.51.100.4", "0xzzz"})
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, "ev-1", evs[0].ID, "same upload time orders by id")
		assert.Equal(t, "ev-3", evs[1].ID)

		evs, err = store.GetEvidenceByIDs(ctx, []string{"ev-3", "missing"})
		require.NoError(t, err)
		require.Len(t, evs, 1)
		assert.Equal(t, "ev-3", evs[0].ID)
	})

	t.Run("escalations and risk snapshots", func(t *testing.T) {
		escs, err := store.ListEscalations(ctx, models.RecordFilter{Entity: "0xabc"})
		require.NoError(t, err)
		require.Len(t, escs, 1)
		assert.Equal(t, "threshold", escs[0].Trigger)

		snaps, err := store.ListRiskSnapshots(ctx, "0xABC")
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, 3, snaps[0].ReportCount)
	})
}
