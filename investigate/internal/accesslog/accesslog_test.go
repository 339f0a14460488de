package accesslog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/common/middleware"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, handler http.HandlerFunc) *OpenSearchStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := NewOpenSearchStore(Config{URL: server.URL, Index: "access-logs-*"})
	require.NoError(t, err)
	store.now = func() time.Time { return t0 }
	return store
}

func TestOpenSearchStore_SearchSignificant(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":2},"hits":[
			{"_id":"a1","_source":{"method":"POST","path":"/api/evidence/0xA","user":"analyst","timestamp":"2024-05-06T10:00:00Z"}},
			{"_id":"bad","_source":"not an object"}
		]}}`))
	})

	logs, err := store.SearchSignificant(context.Background(), []string{"0xA"}, 50)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a1", logs[0].ID)
	assert.Equal(t, "POST", logs[0].Method)
	assert.Equal(t, "analyst", logs[0].User)
	assert.Equal(t, t0.Add(time.Hour), logs[0].Timestamp.UTC())

	assert.Equal(t, "/access-logs-*/_search", gotPath)
	assert.Equal(t, float64(50), gotBody["size"])
	encoded, _ := json.Marshal(gotBody["query"])
	assert.Contains(t, string(encoded), `"*0xA*"`)
	assert.Contains(t, string(encoded), `"DELETE"`)
}

func TestOpenSearchStore_SearchError(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	})
	_, err := store.SearchSignificant(context.Background(), nil, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenSearchStore_Record(t *testing.T) {
	var gotPath string
	var doc models.AccessLog
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&doc)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := store.Record(context.Background(), models.AccessLog{Method: "PATCH", Path: "/api/v1/investigations/1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/access-logs-2024.05.06/_doc"), gotPath)
	assert.Equal(t, "PATCH", doc.Method)
	assert.Equal(t, t0, doc.Timestamp)
}

func TestOpenSearchStore_EnsureTemplate(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, store.EnsureTemplate(context.Background()))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/_index_template/access-logs-template", gotPath)
	assert.Equal(t, []interface{}{"access-logs-*"}, gotBody["index_patterns"])

	props := gotBody["template"].(map[string]interface{})["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	for _, field := range []string{"method", "path"} {
		assert.Equal(t, "keyword", props[field].(map[string]interface{})["type"], field)
	}
	assert.Equal(t, "date", props["timestamp"].(map[string]interface{})["type"])
}

func TestOpenSearchStore_EnsureTemplateError(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	})
	err := store.EnsureTemplate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestBuildSignificantQuery_EscapesWildcards(t *testing.T) {
	q := buildSignificantQuery([]string{"a*b?c@example.com"}, 10)
	filter := q["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, filter, 2)
	should := filter[1]["bool"].(map[string]interface{})["should"].([]map[string]interface{})
	require.Len(t, should, 1)
	path := should[0]["wildcard"].(map[string]interface{})["path"].(map[string]interface{})
	assert.Equal(t, `*a\*b\?c@example.com*`, path["value"])
}

func TestBuildSignificantQuery_NoTerms(t *testing.T) {
	q := buildSignificantQuery(nil, 5)
	filter := q["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	assert.Len(t, filter, 1)
	assert.Equal(t, 5, q["size"])
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i, l := range []models.AccessLog{
		{Method: "GET", Path: "/api/wallets/0xA"},
		{Method: "GET", Path: "/api/reports/0xA"},
		{Method: "POST", Path: "/api/evidence/0xa"},
		{Method: "DELETE", Path: "/api/other/0xB"},
	} {
		l.Timestamp = t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Record(ctx, l))
	}

	logs, err := store.SearchSignificant(ctx, []string{"0xA"}, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "/api/evidence/0xa", logs[0].Path)

	logs, err = store.SearchSignificant(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "DELETE", logs[0].Method)
}

type chanRecorder struct {
	got chan models.AccessLog
}

func (c *chanRecorder) Record(_ context.Context, l models.AccessLog) error {
	c.got <- l
	return nil
}

func TestMiddleware(t *testing.T) {
	rec := &chanRecorder{got: make(chan models.AccessLog, 4)}
	handler := Middleware(rec, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/investigations/link?x=1", nil)
	req = req.WithContext(middleware.WithActor(req.Context(), "analyst"))
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	select {
	case l := <-rec.got:
		assert.Equal(t, "POST", l.Method)
		assert.Equal(t, "/api/v1/investigations/link?x=1", l.Path)
		assert.Equal(t, "analyst", l.User)
		assert.Equal(t, "192.0.2.10", l.IP)
	case <-time.After(time.Second):
		t.Fatal("access log not recorded")
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	select {
	case l := <-rec.got:
		t.Fatalf("unexpected record for %s", l.Path)
	case <-time.After(50 * time.Millisecond):
	}
}
