package recipes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
)

type Handler struct {
	service  *Service
	activity activity.Recorder
}

func NewHandler(service *Service, recorder activity.Recorder) *Handler {
	return &Handler{service: service, activity: recorder}
}

// HandleDish handles GET /v1/entries/{id}/recipe
func (h *Handler) HandleDish(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetMemberID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Profile is not selected")
		return
	}
	entryID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid entry ID")
		return
	}

	detail, err := h.service.DishInfo(r.Context(), entryID, userID)
	if err != nil {
		if errors.Is(err, planentries.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Plan entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load dish")
		return
	}

	var profileID *uuid.UUID
	if id, err := uuid.Parse(userID); err == nil {
		profileID = &id
	}
	h.activity.Record(r.Context(), activity.FromRequest(r, profileID, activity.ActionDishViewed, detail.Entry.DishName))
	writeJSON(w, http.StatusOK, DishResponse{
		Entry:  planentries.ToDTO(detail.Entry),
		Recipe: ToRecipeDTO(detail.Recipe),
	})
}

// HandleInvalidate handles POST /v1/admin/recipes/invalidate
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	var resp InvalidateResponse
	var err error
	switch {
	case strings.TrimSpace(req.Signature) != "":
		resp.Signature = strings.TrimSpace(req.Signature)
		resp.Invalidated, err = h.service.InvalidateSignature(r.Context(), resp.Signature)
	case strings.TrimSpace(req.DishName) != "":
		resp.Signature, resp.Invalidated, err = h.service.Invalidate(r.Context(), req.DishName, req.Description)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "signature or dish_name is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to invalidate recipe")
		return
	}
	writeJSON(w, http.StatusOK, resp)
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
