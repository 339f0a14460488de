package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/repository"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fakeAccessLogs struct {
	logs  []models.AccessLog
	terms []string
	limit int
}

func (f *fakeAccessLogs) SearchSignificant(_ context.Context, terms []string, limit int) ([]models.AccessLog, error) {
	f.terms, f.limit = terms, limit
	return f.logs, nil
}

type failingReports struct{}

func (failingReports) ListReports(context.Context, models.RecordFilter) ([]models.Report, error) {
	return nil, errors.New("connection reset")
}

type countingObserver struct {
	mu     sync.Mutex
	failed []string
}

func (o *countingObserver) SourceFailed(source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, source)
}

func seedRecords(t *testing.T, repo *repository.MemoryRepository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.InsertReports(ctx, []models.Report{
		{ID: "rep-1", EntityID: "0xA", CaseID: "case-1", Reason: "phishing", Severity: 5, RiskScore: ptr(85.0),
			IPGeo: &models.GeoInfo{Lat: 48.85, Lon: 2.35, City: "Paris", Country: "FR"}, CreatedAt: t0, Status: "open"},
		{ID: "rep-2", EntityID: "0xA", CaseID: "case-1", Reason: "spam", Severity: 2, RiskScore: ptr(20.0),
			CreatedAt: t0.Add(2 * time.Hour), Status: "open"},
	}))
	require.NoError(t, repo.InsertEvidence(ctx, []models.Evidence{
		{ID: "ev-1", CaseID: "case-1", Entity: "0xA", FileHash: "abc", FileSize: 2048, RiskLevel: "medium",
			UploadedAt: t0.Add(30 * time.Minute), VerificationStatus: models.VerificationVerified,
			IntegrityStatus: models.IntegrityIntact, LastVerified: ptr(t0.Add(time.Hour))},
	}))
	require.NoError(t, repo.InsertEscalations(ctx, []models.Escalation{
		{ID: "esc-1", Entity: "0xA", CaseID: "case-1", Trigger: "risk threshold", RiskScore: ptr(90.0), CreatedAt: t0.Add(3 * time.Hour)},
	}))
	require.NoError(t, repo.InsertRiskSnapshots(ctx, []models.RiskSnapshot{
		{ID: "rs-1", Wallet: "0xA", Level: "medium", ReportCount: 2, UpdatedAt: t0.Add(150 * time.Minute)},
	}))
}

func newEngine(repo *repository.MemoryRepository, opts ...Option) (*Engine, *fakeAccessLogs) {
	logs := &fakeAccessLogs{}
	src := Sources{Reports: repo, Evidence: repo, Escalations: repo, Risk: repo, AccessLogs: logs}
	return NewEngine(src, DefaultConfig(), logging.Discard(), opts...), logs
}

func assertOrdered(t *testing.T, events []models.TimelineEvent) {
	t.Helper()
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Sequence)
		if i == 0 {
			assert.Nil(t, ev.TimeGap)
			continue
		}
		require.NotNil(t, ev.TimeGap)
		assert.False(t, ev.Timestamp.Before(events[i-1].Timestamp))
		assert.Equal(t, ev.Timestamp.Sub(events[i-1].Timestamp).Seconds(), *ev.TimeGap)
		assert.GreaterOrEqual(t, *ev.TimeGap, 0.0)
	}
}

func TestGenerateTimeline_Entity(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedRecords(t, repo)
	engine, logs := newEngine(repo)
	logs.logs = []models.AccessLog{
		{Method: "GET", Path: "/api/wallets/0xA", Timestamp: t0.Add(4 * time.Hour)},
		{Method: "POST", Path: "/api/evidence/0xA", User: "analyst", Timestamp: t0.Add(5 * time.Hour)},
	}

	res, err := engine.GenerateTimeline(context.Background(), "", "0xA")
	require.NoError(t, err)

	types := make([]models.EventType, len(res.Timeline))
	for i, ev := range res.Timeline {
		types[i] = ev.Type
	}
	assert.Equal(t, []models.EventType{
		models.EventReportSubmitted,
		models.EventIPTraced,
		models.EventEvidenceUploaded,
		models.EventVerification,
		models.EventReportSubmitted,
		models.EventRiskAssessment,
		models.EventEscalation,
		models.EventActionTaken,
	}, types)
	assertOrdered(t, res.Timeline)

	assert.Equal(t, t0.Add(time.Second), res.Timeline[1].Timestamp)
	assert.Equal(t, "Paris", res.Timeline[1].Data.String(models.MetaCity))
	assert.Equal(t, models.EventPriorityHigh, res.Timeline[0].Priority)
	assert.Equal(t, models.EventPriorityMedium, res.Timeline[2].Priority)
	assert.Equal(t, models.EventPriorityLow, res.Timeline[3].Priority)
	assert.Equal(t, models.EventPriorityLow, res.Timeline[4].Priority)
	assert.Equal(t, models.EventPriorityHigh, res.Timeline[6].Priority)
	assert.Equal(t, models.EventPriorityLow, res.Timeline[7].Priority)
	assert.Equal(t, "0xA", res.Timeline[7].Entity)

	assert.Equal(t, []string{"0xA"}, logs.terms)
	assert.Equal(t, 50, logs.limit)

	s := res.Summary
	assert.Equal(t, 8, s.TotalEvents)
	assert.Equal(t, 2, s.EventTypes[models.EventReportSubmitted])
	require.NotNil(t, s.Timespan)
	assert.Equal(t, t0, s.Timespan.Start)
	assert.Equal(t, "5 hours", s.Timespan.HumanDuration)
	require.Len(t, s.RiskProgression, 2)
	assert.Equal(t, 50.0, s.RiskProgression[0].Score)
	assert.Equal(t, 90.0, s.RiskProgression[1].Score)
	require.NotNil(t, s.Milestones.FirstReport)
	assert.Equal(t, "rep-1", s.Milestones.FirstReport.Data.String(models.MetaReportID))
	require.NotNil(t, s.Milestones.FirstEvidence)
	require.NotNil(t, s.Milestones.FirstEscalation)
	require.NotNil(t, s.Milestones.FirstHighPriority)
	assert.Equal(t, models.EventReportSubmitted, s.Milestones.FirstHighPriority.Type)

	assert.Equal(t, []string{"rep-1", "rep-2"}, ReportIDs(res.Timeline))
}

func TestGenerateTimeline_CaseSkipsRiskSnapshots(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedRecords(t, repo)
	engine, _ := newEngine(repo)

	res, err := engine.GenerateTimeline(context.Background(), "case-1", "")
	require.NoError(t, err)
	assert.Zero(t, res.Summary.EventTypes[models.EventRiskAssessment])
	assert.Equal(t, 2, res.Summary.EventTypes[models.EventReportSubmitted])
	assert.Equal(t, "case-1", res.CaseID)
}

func TestGenerateTimeline_Empty(t *testing.T) {
	engine, _ := newEngine(repository.NewMemoryRepository())

	res, err := engine.GenerateTimeline(context.Background(), "", "0xNOBODY")
	require.NoError(t, err)
	assert.NotNil(t, res.Timeline)
	assert.Empty(t, res.Timeline)
	assert.Equal(t, 0, res.Summary.TotalEvents)
	assert.Nil(t, res.Summary.Timespan)

	body, err := json.Marshal(res.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"timespan":null`)
}

func TestGenerateTimeline_RequiresScope(t *testing.T) {
	engine, _ := newEngine(repository.NewMemoryRepository())
	_, err := engine.GenerateTimeline(context.Background(), " ", "")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestGenerateTimeline_FailingSourceSkipped(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedRecords(t, repo)
	obs := &countingObserver{}
	src := Sources{Reports: failingReports{}, Evidence: repo}
	engine := NewEngine(src, DefaultConfig(), logging.Discard(), WithObserver(obs))

	res, err := engine.GenerateTimeline(context.Background(), "", "0xA")
	require.NoError(t, err)
	assert.Zero(t, res.Summary.EventTypes[models.EventReportSubmitted])
	assert.Equal(t, 1, res.Summary.EventTypes[models.EventEvidenceUploaded])
	assert.Equal(t, []string{"reports"}, obs.failed)
}

func TestGenerateTimeline_IPTraceViaLocator(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.InsertReports(ctx, []models.Report{
		{ID: "r1", EntityID: "0xB", ReporterIP: "203.0.113.5", CreatedAt: t0},
		{ID: "r2", EntityID: "0xB", ReporterIP: "198.51.100.9", CreatedAt: t0.Add(time.Minute)},
	}))
	src := Sources{
		Reports: repo,
		Locator: geoip.StaticLocator{"203.0.113.5": {Lat: 1, Lon: 2, City: "Lagos", Country: "NG"}},
	}
	engine := NewEngine(src, DefaultConfig(), logging.Discard())

	res, err := engine.GenerateTimeline(ctx, "", "0xB")
	require.NoError(t, err)
	// the second lookup fails, dropping only its ip_traced event
	assert.Equal(t, 2, res.Summary.EventTypes[models.EventReportSubmitted])
	assert.Equal(t, 1, res.Summary.EventTypes[models.EventIPTraced])
	assert.Equal(t, "203.0.113.5", res.Timeline[1].Data.String(models.MetaIP))
}

func TestGenerateTimeline_TieBreak(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.InsertEscalations(ctx, []models.Escalation{{ID: "e", Entity: "0xC", CreatedAt: t0}}))
	require.NoError(t, repo.InsertEvidence(ctx, []models.Evidence{{ID: "v", Entity: "0xC", UploadedAt: t0}}))
	require.NoError(t, repo.InsertReports(ctx, []models.Report{{ID: "r", EntityID: "0xC", CreatedAt: t0}}))
	engine, _ := newEngine(repo)

	for i := 0; i < 5; i++ {
		res, err := engine.GenerateTimeline(ctx, "", "0xC")
		require.NoError(t, err)
		require.Len(t, res.Timeline, 3)
		assert.Equal(t, models.EventReportSubmitted, res.Timeline[0].Type)
		assert.Equal(t, models.EventEvidenceUploaded, res.Timeline[1].Type)
		assert.Equal(t, models.EventEscalation, res.Timeline[2].Type)
		assert.Equal(t, 0.0, *res.Timeline[2].TimeGap)
	}
}

func TestGenerateLinkedTimeline(t *testing.T) {
	tests := []struct {
		name      string
		gap       time.Duration
		wantCross int
	}{
		{name: "three minutes apart", gap: 3 * time.Minute, wantCross: 1},
		{name: "ten minutes apart", gap: 10 * time.Minute, wantCross: 0},
		{name: "exactly five minutes", gap: 5 * time.Minute, wantCross: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := repository.NewMemoryRepository()
			require.NoError(t, repo.InsertReports(ctx, []models.Report{
				{ID: "a", EntityID: "0xA", Severity: 1, CreatedAt: t0.Add(tt.gap)},
				{ID: "b", EntityID: "0xB", Severity: 1, CreatedAt: t0},
			}))
			engine, _ := newEngine(repo)

			res, err := engine.GenerateLinkedTimeline(ctx, []string{"0xA", "0xB", "0xA"}, "inv-1")
			require.NoError(t, err)
			require.Len(t, res.Timeline, 2)
			assertOrdered(t, res.Timeline)
			assert.Equal(t, "0xB", res.Timeline[0].SourceEntity)
			assert.Equal(t, "0xA", res.Timeline[1].SourceEntity)
			assert.Equal(t, "inv-1", res.Timeline[0].InvestigationID)
			assert.Equal(t, "inv-1", res.InvestigationID)

			require.Len(t, res.CrossEntityConnections, tt.wantCross)
			if tt.wantCross > 0 {
				c := res.CrossEntityConnections[0]
				assert.Equal(t, models.ConnectionTemporalCorrelation, c.Type)
				assert.Equal(t, "0xA", c.Entity1)
				assert.Equal(t, "0xB", c.Entity2)
				assert.Equal(t, tt.gap.Seconds(), c.TimeDiffSeconds)
			}
		})
	}
}

func TestGenerateLinkedTimeline_Limits(t *testing.T) {
	engine, _ := newEngine(repository.NewMemoryRepository())
	_, err := engine.GenerateLinkedTimeline(context.Background(), []string{" ", ""}, "")
	assert.True(t, errors.Is(err, models.ErrValidation))

	cfg := DefaultConfig()
	cfg.MaxLinkedEntities = 2
	small := NewEngine(Sources{}, cfg, logging.Discard())
	_, err = small.GenerateLinkedTimeline(context.Background(), []string{"a", "b", "c"}, "")
	assert.True(t, errors.Is(err, models.ErrTooManyEntities))
}

func TestExportTimeline(t *testing.T) {
	repo := repository.NewMemoryRepository()
	seedRecords(t, repo)
	engine, _ := newEngine(repo, WithClock(func() time.Time { return t0 }))
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		exp, err := engine.ExportTimeline(ctx, "case-1", "", "")
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, exp.Format)
		assert.Equal(t, "timeline_case-1.json", exp.Filename)
		var res models.TimelineResult
		require.NoError(t, json.Unmarshal(exp.Body, &res))
		assert.NotEmpty(t, res.Timeline)
	})

	t.Run("csv", func(t *testing.T) {
		exp, err := engine.ExportTimeline(ctx, "case-1", "", "CSV")
		require.NoError(t, err)
		assert.Equal(t, "text/csv", exp.ContentType)
		lines := strings.Split(strings.TrimSpace(string(exp.Body)), "\n")
		assert.Equal(t, "sequence,timestamp,type,entity,description,priority,data", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "1,2024-05-06T09:00:00Z,report_submitted,0xA,\"Report submitted against 0xA: phishing\",high,\"{"))
	})

	t.Run("pdf", func(t *testing.T) {
		exp, err := engine.ExportTimeline(ctx, "", "0xA", "pdf")
		require.NoError(t, err)
		var doc Document
		require.NoError(t, json.Unmarshal(exp.Body, &doc))
		assert.Equal(t, "Timeline timeline_0xA", doc.Title)
		assert.Equal(t, t0, doc.GeneratedAt)
		assert.Equal(t, doc.Summary.TotalEvents, len(doc.Events))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := engine.ExportTimeline(ctx, "case-1", "", "xlsx")
		assert.True(t, errors.Is(err, models.ErrValidation))
	})
}

func TestEncodeCSV_Quoting(t *testing.T) {
	events := []models.TimelineEvent{{
		Sequence:    1,
		Timestamp:   t0,
		Type:        models.EventActionTaken,
		Entity:      "a,b",
		Description: `said "hi"`,
		Priority:    models.EventPriorityLow,
		Data:        models.Metadata{"k": "v"},
	}}
	body, err := EncodeCSV(events)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Equal(t, `1,2024-05-06T09:00:00Z,action_taken,"a,b","said ""hi""",low,"{""k"":""v""}"`, lines[1])
}

func TestPriorities(t *testing.T) {
	assert.Equal(t, models.EventPriorityHigh, ReportPriority(5, ptr(85.0)))
	assert.Equal(t, models.EventPriorityHigh, ReportPriority(1, ptr(80.0)))
	assert.Equal(t, models.EventPriorityMedium, ReportPriority(3, nil))
	assert.Equal(t, models.EventPriorityMedium, ReportPriority(1, ptr(60.0)))
	assert.Equal(t, models.EventPriorityLow, ReportPriority(2, ptr(20.0)))

	assert.Equal(t, models.EventPriorityHigh, EvidencePriority(models.Evidence{RiskLevel: "high"}))
	assert.Equal(t, models.EventPriorityHigh, EvidencePriority(models.Evidence{VerificationStatus: models.VerificationFailed}))
	assert.Equal(t, models.EventPriorityMedium, EvidencePriority(models.Evidence{RiskLevel: "medium"}))
	assert.Equal(t, models.EventPriorityLow, EvidencePriority(models.Evidence{}))

	assert.Equal(t, models.EventPriorityLow, VerificationPriority(models.IntegrityIntact))
	assert.Equal(t, models.EventPriorityHigh, VerificationPriority(models.IntegrityCompromised))
}

func TestIsSignificant(t *testing.T) {
	tests := []struct {
		method, path string
		want         bool
	}{
		{"POST", "/api/anything", true},
		{"delete", "/x", true},
		{"GET", "/api/evidence/1", true},
		{"GET", "/admin/users", true},
		{"GET", "/api/cases/9/escalate", true},
		{"GET", "/healthz", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSignificant(models.AccessLog{Method: tt.method, Path: tt.path}), tt.path)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{61 * time.Second, "1 minute"},
		{90 * time.Minute, "1 hour 30 minutes"},
		{49 * time.Hour, "2 days 1 hour"},
		{48*time.Hour + 5*time.Minute, "2 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanDuration(tt.d))
	}
}

func TestRiskScore(t *testing.T) {
	assert.Equal(t, 42.0, RiskScore(models.TimelineEvent{Data: models.Metadata{models.MetaRiskScore: 42.0}}))
	assert.Equal(t, 80.0, RiskScore(models.TimelineEvent{Data: models.Metadata{models.MetaRiskLevel: "HIGH"}}))
	assert.Equal(t, 20.0, RiskScore(models.TimelineEvent{Data: models.Metadata{models.MetaRiskLevel: "low"}}))
	assert.Equal(t, 0.0, RiskScore(models.TimelineEvent{}))
}
