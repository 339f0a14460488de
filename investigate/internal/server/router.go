// Package server provides HTTP server setup for the investigate service.
package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/telhawk-systems/telhawk-investigate/common/middleware"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/handlers"
)

// Middleware wraps the API handler.
type Middleware func(http.Handler) http.Handler

// NewRouter constructs a ServeMux with investigate API routes registered.
// mws wrap the mux inside the request-id middleware, the first one
// outermost.
func NewRouter(h *handlers.Handler, mws ...Middleware) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.ReadyCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// Investigation routes
	mux.HandleFunc("/api/v1/investigations", h.InvestigationsHandler)
	mux.HandleFunc("/api/v1/investigations/link", h.LinkEntities)
	mux.HandleFunc("/api/v1/investigations/", investigationRouteHandler(h))

	// Timeline routes
	mux.HandleFunc("/api/v1/timeline", h.TimelineHandler)
	mux.HandleFunc("/api/v1/timeline/linked", h.LinkedTimelineHandler)
	mux.HandleFunc("/api/v1/timeline/export", h.ExportTimelineHandler)

	// Records and graph
	mux.HandleFunc("/api/v1/records", h.RecordsHandler)
	mux.HandleFunc("/api/v1/entities/", entityRouteHandler(h))

	var handler http.Handler = mux
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return middleware.RequestID(handler)
}

// investigationRouteHandler routes /api/v1/investigations/{id}/* requests to appropriate handlers
func investigationRouteHandler(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case strings.HasSuffix(path, "/analyze"):
			h.AnalyzeHandler(w, r)
		case strings.HasSuffix(path, "/escalate"):
			h.EscalateHandler(w, r)
		case strings.HasSuffix(path, "/audit/verify"):
			h.VerifyAuditHandler(w, r)
		case strings.HasSuffix(path, "/timeline"):
			h.InvestigationTimelineHandler(w, r)
		case strings.HasSuffix(path, "/evidence"):
			h.InvestigationEvidenceHandler(w, r)
		default:
			// Handle /api/v1/investigations/{id} directly
			h.InvestigationHandler(w, r)
		}
	}
}

// entityRouteHandler routes /api/v1/entities/{key}/* requests
func entityRouteHandler(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/neighbors") {
			h.NeighborsHandler(w, r)
			return
		}
		http.NotFound(w, r)
	}
}
