package aimodels

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/google/uuid"
)

type Handler struct {
	service  *Service
	activity activity.Recorder
}

func NewHandler(service *Service, recorder activity.Recorder) *Handler {
	return &Handler{service: service, activity: recorder}
}

// HandleList handles GET /v1/admin/models
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list models")
		return
	}
	dtos := make([]ModelDTO, len(models))
	for i, m := range models {
		dtos[i] = ToDTO(m)
	}
	writeJSON(w, http.StatusOK, ListModelsResponse{Models: dtos})
}

// HandleCreate handles POST /v1/admin/models
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	model, err := h.service.Create(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidProvider), errors.Is(err, ErrInvalidModelID):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, ErrModelExists):
		writeError(w, http.StatusConflict, "model_exists", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create model")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionModelChanged, "added "+model.Provider+"/"+model.ModelID))
	writeJSON(w, http.StatusCreated, ToDTO(model))
}

// HandleDelete handles DELETE /v1/admin/models/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid model ID")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionModelChanged, "deleted "+id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetDefault handles POST /v1/admin/models/{id}/default
func (h *Handler) HandleSetDefault(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid model ID")
		return
	}
	if err := h.service.SetDefault(r.Context(), id); err != nil {
		h.writeLookupError(w, err)
		return
	}
	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionModelChanged, "default "+id.String()))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrModelNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Model not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update model")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
