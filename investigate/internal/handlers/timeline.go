package handlers

import (
	"fmt"
	"net/http"

	"github.com/telhawk-systems/telhawk-investigate/common/httputil"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// TimelineHandler handles GET /api/v1/timeline?case_id=&entity=
func (h *Handler) TimelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	res, err := h.svc.GenerateTimeline(r.Context(), q.Get("case_id"), q.Get("entity"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res)
}

// LinkedTimelineHandler handles POST /api/v1/timeline/linked
func (h *Handler) LinkedTimelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req models.LinkedTimelineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	res, err := h.svc.GenerateLinkedTimeline(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, res)
}

// ExportTimelineHandler handles GET /api/v1/timeline/export?case_id=&entity=&format=
// and streams the export as an attachment.
func (h *Handler) ExportTimelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	exp, err := h.svc.ExportTimeline(r.Context(), q.Get("case_id"), q.Get("entity"), q.Get("format"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(exp.Body); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write export", "error", err.Error())
	}
}

// RecordsHandler handles POST /api/v1/records
func (h *Handler) RecordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var batch models.RecordBatch
	if err := httputil.DecodeJSON(r, &batch); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	res, err := h.svc.IngestRecords(r.Context(), &batch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, res)
}
