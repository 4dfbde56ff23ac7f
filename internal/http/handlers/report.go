package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forensicnotes/server/internal/apperr"
	"github.com/forensicnotes/server/internal/middleware"
	"github.com/forensicnotes/server/internal/model"
	"github.com/forensicnotes/server/internal/report"
)

// ReportHandler handles report endpoints
type ReportHandler struct {
	reports *report.Service
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *report.Service) *ReportHandler {
	return &ReportHandler{reports: reports}
}

type createReportRequest struct {
	Images        []model.ReportImage `json:"images"`
	ChatHistory   []model.ChatMessage `json:"chatHistory"`
	ReportContent string              `json:"reportContent"`
	EvidenceTags  []string            `json:"evidenceTags"`
	Status        *model.ReportStatus `json:"status"`
}

type updateReportRequest struct {
	Images        *[]model.ReportImage `json:"images"`
	ChatHistory   []model.ChatMessage  `json:"chatHistory"`
	ReportContent *string              `json:"reportContent"`
	EvidenceTags  *[]string            `json:"evidenceTags"`
	Status        *model.ReportStatus  `json:"status"`
}

type deleteReportResponse struct {
	ID string `json:"id"`
}

// reportID parses the {id} path parameter
func reportID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid id: "+raw, apperr.FieldError{Field: "id", Message: "Invalid format"})
	}
	return id, nil
}

// HandleCreate handles POST /reports
func (h *ReportHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	fe.images(req.Images)
	fe.chat(req.ChatHistory)
	in := report.CreateInput{
		Images:        req.Images,
		ChatHistory:   req.ChatHistory,
		ReportContent: req.ReportContent,
		EvidenceTags:  req.EvidenceTags,
	}
	if req.Status != nil {
		fe.status(*req.Status)
		in.Status = *req.Status
	}
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.reports.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Report created successfully", created)
}

// HandleList handles GET /reports with an optional ?status= filter
func (h *ReportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	status := model.ReportStatus(r.URL.Query().Get("status"))
	if status != "" {
		var fe fieldErrors
		fe.status(status)
		if err := fe.err(); err != nil {
			writeError(w, r, err)
			return
		}
	}

	reports, err := h.reports.List(r.Context(), userID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Reports retrieved successfully", reports)
}

// HandleGet handles GET /reports/{id}
func (h *ReportHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := reportID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	found, err := h.reports.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Report retrieved successfully", found)
}

// HandleUpdate handles PUT /reports/{id}
func (h *ReportHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := reportID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var fe fieldErrors
	if req.Images != nil {
		fe.images(*req.Images)
	}
	fe.chat(req.ChatHistory)
	if req.Status != nil {
		fe.status(*req.Status)
	}
	if err := fe.err(); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.reports.Update(r.Context(), userID, id, report.UpdateInput{
		Images:        req.Images,
		ChatHistory:   req.ChatHistory,
		ReportContent: req.ReportContent,
		EvidenceTags:  req.EvidenceTags,
		Status:        req.Status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Report updated successfully", updated)
}

// HandleDelete handles DELETE /reports/{id}
func (h *ReportHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := reportID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.reports.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Report deleted successfully", deleteReportResponse{ID: id.String()})
}

// HandleStats handles GET /reports/stats
func (h *ReportHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	stats, err := h.reports.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Statistics retrieved successfully", stats)
}
