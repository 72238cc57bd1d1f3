package activity

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// Handler handles HTTP requests for the activity log.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleList handles GET /v1/admin/activity?profile_id=&page=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var profileID *uuid.UUID
	if raw := r.URL.Query().Get("profile_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "profile_id must be a UUID")
			return
		}
		profileID = &id
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "page must be a positive integer")
			return
		}
		page = p
	}

	resp, err := h.service.List(r.Context(), profileID, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list activity")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
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
