// Package handlers provides HTTP request handlers for the investigate service.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/common/httputil"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/service"
)

// Handler provides HTTP handlers for the investigate service
type Handler struct {
	svc    *service.Service
	logger *logging.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(svc *service.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger.Component("http")}
}

// =============================================================================
// Helper Methods
// =============================================================================

// extractIDFromPath extracts an ID from a URL path like /api/v1/investigations/{id}
func extractIDFromPath(path, prefix string) string {
	remaining := strings.TrimPrefix(path, prefix)
	remaining = strings.TrimPrefix(remaining, "/")

	parts := strings.Split(remaining, "/")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

func methodNotAllowed(w http.ResponseWriter) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		httputil.WriteError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, models.ErrTooManyEntities):
		httputil.WriteError(w, http.StatusBadRequest, "too_many_entities", err.Error())
	case errors.Is(err, models.ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, models.ErrStorageUnavailable), errors.Is(err, models.ErrCollaboratorUnavailable):
		h.logger.WarnContext(r.Context(), "dependency unavailable", logging.Path(r.URL.Path), logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable", "A backing service is unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", logging.Path(r.URL.Path), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// =============================================================================
// Health Check Handlers
// =============================================================================

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Service: "investigate",
	})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed", logging.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, models.HealthResponse{
			Status:  "unavailable",
			Service: "investigate",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:  "ready",
		Service: "investigate",
	})
}
