package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/common/audit"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/accesslog"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/auth"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/correlation"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/handlers"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/repository"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/service"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/timeline"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	handler   http.Handler
	accessLog *accesslog.MemoryStore
	tokens    *auth.TokenValidator
}

func newTestServer(t *testing.T, authRequired bool) *testServer {
	t.Helper()
	repo := repository.NewMemoryRepository()
	signer := audit.NewChainSigner("test-key")
	logger := logging.Discard()
	logs := accesslog.NewMemoryStore()

	corr := correlation.NewEngine(repo, repo, geoip.StaticLocator{}, signer, correlation.DefaultConfig(), logger)
	tl := timeline.NewEngine(timeline.Sources{
		Reports:     repo,
		Evidence:    repo,
		Escalations: repo,
		Risk:        repo,
		AccessLogs:  logs,
	}, timeline.DefaultConfig(), logger)
	svc := service.NewService(repo, repo, corr, tl, signer, logger)
	tokens := auth.NewTokenValidator("jwt-secret")

	h := NewRouter(handlers.NewHandler(svc, logger),
		auth.Middleware(tokens, authRequired, logger),
		accesslog.Middleware(logs, logger),
	)
	return &testServer{handler: h, accessLog: logs, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func linkBody(values ...string) models.LinkEntitiesRequest {
	req := models.LinkEntitiesRequest{Metadata: models.LinkMetadata{Title: "Drainer"}}
	for _, v := range values {
		req.Entities = append(req.Entities, models.Entity{Type: models.EntityWalletAddress, Value: v})
	}
	return req
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, true)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec, _ := s.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

func TestRouter_InvestigationLifecycle(t *testing.T) {
	s := newTestServer(t, false)

	rec, env := s.do(t, http.MethodPost, "/api/v1/investigations/link", linkBody("0xA", "0xB"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, env.Success)
	var inv models.Investigation
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	assert.Equal(t, "Drainer", inv.Title)
	assert.Len(t, inv.Entities, 2)

	rec, env = s.do(t, http.MethodGet, "/api/v1/investigations?status=active", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Pagination
	require.NoError(t, json.Unmarshal(env.Meta, &page))
	assert.Equal(t, 1, page.Total)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/investigations/"+inv.ID, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPatch, "/api/v1/investigations/"+inv.ID,
		map[string]string{"status": "completed"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_transition", env.Error.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/investigations/"+inv.ID,
		map[string]string{"status": "under_review"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/v1/investigations/"+inv.ID+"/analyze", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis models.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &analysis))
	assert.Equal(t, inv.ID, analysis.InvestigationID)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/investigations/"+inv.ID+"/escalate",
		models.EscalateRequest{Reason: "exchange freeze requested"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/v1/investigations/"+inv.ID+"/audit/verify", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v models.AuditVerification
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.True(t, v.Valid)
	assert.Equal(t, 4, v.Entries)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/investigations/"+inv.ID+"/timeline", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/investigations/"+inv.ID+"/evidence", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"unknown investigation", http.MethodGet, "/api/v1/investigations/00000000-0000-7000-8000-000000000999", nil, http.StatusNotFound, "not_found"},
		{"empty link", http.MethodPost, "/api/v1/investigations/link", linkBody(), http.StatusBadRequest, "validation_error"},
		{"bad body", http.MethodPost, "/api/v1/investigations/link", map[string]int{"unknown": 1}, http.StatusBadRequest, "validation_error"},
		{"timeline needs scope", http.MethodGet, "/api/v1/timeline", nil, http.StatusBadRequest, "validation_error"},
		{"unknown export format", http.MethodGet, "/api/v1/timeline/export?entity=0xA&format=docx", nil, http.StatusBadRequest, "validation_error"},
		{"graph disabled", http.MethodGet, "/api/v1/entities/wallet_address:0xA/neighbors", nil, http.StatusServiceUnavailable, "unavailable"},
		{"wrong method", http.MethodDelete, "/api/v1/investigations", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
		{"empty records", http.MethodPost, "/api/v1/records", models.RecordBatch{}, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestRouter_RecordsAndExport(t *testing.T) {
	s := newTestServer(t, false)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rec, env := s.do(t, http.MethodPost, "/api/v1/records", models.RecordBatch{
		Reports: []models.Report{{ID: "rep-1", EntityID: "0xA", Reason: "scam, \"urgent\"", Severity: 5, CreatedAt: t0, Status: "open"}},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res models.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Reports)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/timeline/export?entity=0xA&format=csv", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "timeline_")
	assert.Contains(t, rec.Body.String(), "report_submitted")

	rec, env = s.do(t, http.MethodPost, "/api/v1/timeline/linked",
		models.LinkedTimelineRequest{Entities: []string{"0xA", "0xB"}}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tl models.TimelineResult
	require.NoError(t, json.Unmarshal(env.Data, &tl))
	assert.Len(t, tl.Timeline, 1)
}

func TestRouter_AuthAndAccessLog(t *testing.T) {
	s := newTestServer(t, true)

	rec, env := s.do(t, http.MethodPost, "/api/v1/investigations/link", linkBody("0xA"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)

	token, err := s.tokens.Issue("analyst-9", []string{"analyst"}, time.Minute)
	require.NoError(t, err)
	rec, env = s.do(t, http.MethodPost, "/api/v1/investigations/link", linkBody("0xA"), token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var inv models.Investigation
	require.NoError(t, json.Unmarshal(env.Data, &inv))
	assert.Equal(t, "analyst-9", inv.CreatedBy)
	assert.Equal(t, "analyst-9", inv.AuditTrail[0].Actor)

	assert.Eventually(t, func() bool {
		logs, err := s.accessLog.SearchSignificant(context.Background(), nil, 10)
		if err != nil {
			return false
		}
		for _, l := range logs {
			if l.User == "analyst-9" && l.Method == http.MethodPost {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
