package handlers

import (
	"net/http"
	"strconv"

	"github.com/telhawk-systems/telhawk-investigate/common/httputil"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

const investigationsPrefix = "/api/v1/investigations"

// InvestigationsHandler handles /api/v1/investigations
func (h *Handler) InvestigationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	h.ListInvestigations(w, r)
}

// InvestigationHandler handles /api/v1/investigations/{id}
func (h *Handler) InvestigationHandler(w http.ResponseWriter, r *http.Request) {
	id := extractIDFromPath(r.URL.Path, investigationsPrefix)
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", "Investigation ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetInvestigation(w, r, id)
	case http.MethodPatch:
		h.UpdateInvestigation(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

// LinkEntities handles POST /api/v1/investigations/link
func (h *Handler) LinkEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req models.LinkEntitiesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	inv, err := h.svc.LinkEntities(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, inv)
}

// ListInvestigations handles GET /api/v1/investigations
func (h *Handler) ListInvestigations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.ListInvestigationsRequest{
		Page:       httputil.ParseIntParam(q.Get("page"), 1),
		Limit:      httputil.ParseIntParam(q.Get("limit"), 50),
		Status:     models.Status(q.Get("status")),
		Priority:   models.Priority(q.Get("priority")),
		EntityType: models.EntityType(q.Get("entity_type")),
	}

	resp, err := h.svc.GetAllInvestigations(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccessWithMeta(w, http.StatusOK, resp.Investigations, resp.Pagination)
}

// GetInvestigation handles GET /api/v1/investigations/{id}
func (h *Handler) GetInvestigation(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := h.svc.GetInvestigationByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, inv)
}

// UpdateInvestigation handles PATCH /api/v1/investigations/{id}
func (h *Handler) UpdateInvestigation(w http.ResponseWriter, r *http.Request, id string) {
	var req models.UpdateInvestigationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	inv, err := h.svc.UpdateInvestigation(r.Context(), id, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, inv)
}

// AnalyzeHandler handles POST /api/v1/investigations/{id}/analyze
func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := extractIDFromPath(r.URL.Path, investigationsPrefix)

	res, err := h.svc.AnalyzeConnections(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res)
}

// EscalateHandler handles POST /api/v1/investigations/{id}/escalate
func (h *Handler) EscalateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := extractIDFromPath(r.URL.Path, investigationsPrefix)

	var req models.EscalateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	inv, err := h.svc.EscalateInvestigation(r.Context(), id, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, inv)
}

// VerifyAuditHandler handles GET /api/v1/investigations/{id}/audit/verify
func (h *Handler) VerifyAuditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := extractIDFromPath(r.URL.Path, investigationsPrefix)

	res, err := h.svc.VerifyAuditTrail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res)
}

// InvestigationTimelineHandler handles GET /api/v1/investigations/{id}/timeline
func (h *Handler) InvestigationTimelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := extractIDFromPath(r.URL.Path, investigationsPrefix)

	res, err := h.svc.InvestigationTimeline(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res)
}

// InvestigationEvidenceHandler handles GET /api/v1/investigations/{id}/evidence
func (h *Handler) InvestigationEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := extractIDFromPath(r.URL.Path, investigationsPrefix)

	evs, err := h.svc.InvestigationEvidence(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"investigation_id": id,
		"evidence":         evs,
	})
}

// NeighborsHandler handles GET /api/v1/entities/{type:value}/neighbors
func (h *Handler) NeighborsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	key := extractIDFromPath(r.URL.Path, "/api/v1/entities")
	q := r.URL.Query()

	minStrength := 0.0
	if s := q.Get("min_strength"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "validation_error", "min_strength must be a number")
			return
		}
		minStrength = v
	}

	neighbors, err := h.svc.EntityNeighbors(r.Context(), key, minStrength, httputil.ParseIntParam(q.Get("limit"), 25))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"entity":    key,
		"neighbors": neighbors,
	})
}
