package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
)

// Handlers handles HTTP requests for exports
type Handlers struct {
	service  *Service
	activity activity.Recorder
}

// NewHandlers creates new handlers
func NewHandlers(service *Service, recorder activity.Recorder) *Handlers {
	if recorder == nil {
		recorder = activity.Nop{}
	}
	return &Handlers{service: service, activity: recorder}
}

// HandleCreate handles POST /v1/exports
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	profileID, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req CreateExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	export, err := h.service.CreateExport(r.Context(), profileID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "invalid_format", "Format must be 'pdf' or 'csv'")
		case errors.Is(err, ErrInvalidDate):
			writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format, use YYYY-MM-DD")
		case errors.Is(err, ErrInvalidDateRange):
			writeError(w, http.StatusBadRequest, "invalid_range", "From date must be before to date")
		case errors.Is(err, ErrRangeTooLarge):
			writeError(w, http.StatusBadRequest, "range_too_large", fmt.Sprintf("Date range exceeds maximum of %d days", h.service.MaxRangeDays()))
		case errors.Is(err, ErrProfileNotFound):
			writeError(w, http.StatusNotFound, "profile_not_found", "Profile not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create export")
		}
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, &profileID, activity.ActionExportCreated,
		fmt.Sprintf("%s %s..%s", export.Format, export.FromDate, export.ToDate)))
	writeJSON(w, http.StatusCreated, h.service.toDTO(r.Context(), export, getBaseURL(r)))
}

// HandleList handles GET /v1/exports
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	profileID, ok := currentProfile(w, r)
	if !ok {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	list, err := h.service.ListExports(r.Context(), profileID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list exports")
		return
	}

	baseURL := getBaseURL(r)
	dtos := make([]ExportDTO, len(list))
	for i := range list {
		dtos[i] = h.service.toDTO(r.Context(), &list[i], baseURL)
	}
	writeJSON(w, http.StatusOK, ExportsResponse{Exports: dtos})
}

// HandleDownload handles GET /v1/exports/{id}/download
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	profileID, ok := currentProfile(w, r)
	if !ok {
		return
	}
	exportID, ok := pathID(w, r)
	if !ok {
		return
	}

	export, err := h.service.GetExport(r.Context(), profileID, exportID)
	if err != nil {
		if errors.Is(err, ErrExportNotFound) {
			writeError(w, http.StatusNotFound, "export_not_found", "Export not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load export")
		}
		return
	}

	if export.ObjectKey != nil && !h.service.LocalMode() {
		// S3: отдаём ссылку, файл не проксируем
		url, err := h.service.DownloadURL(r.Context(), export, getBaseURL(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to generate download URL")
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	data, contentType, err := h.service.ExportData(r.Context(), export)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read export")
		return
	}

	filename := fmt.Sprintf("adherence_%s_%s.%s", export.FromDate, export.ToDate, export.Format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(data)), 10))
	w.Write(data)
}

// HandleDelete handles DELETE /v1/exports/{id}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	profileID, ok := currentProfile(w, r)
	if !ok {
		return
	}
	exportID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteExport(r.Context(), profileID, exportID); err != nil {
		if errors.Is(err, ErrExportNotFound) {
			writeError(w, http.StatusNotFound, "export_not_found", "Export not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete export")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func currentProfile(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := userctx.GetMemberID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Profile is not selected")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid profile identity")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid export ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func getBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
