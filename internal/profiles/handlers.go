package profiles

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/auth"
	"github.com/google/uuid"
)

// TokenIssuer выдаёт member-токен выбранному профилю.
type TokenIssuer interface {
	IssueMemberToken(profileID string) (auth.TokenResponse, error)
}

// Handler содержит HTTP обработчики для профилей
type Handler struct {
	service  *Service
	tokens   TokenIssuer
	activity activity.Recorder
}

// NewHandler создаёт новый handler. tokens может быть nil (AUTH_MODE=none).
func NewHandler(service *Service, tokens TokenIssuer, recorder activity.Recorder) *Handler {
	if recorder == nil {
		recorder = activity.Nop{}
	}
	return &Handler{service: service, tokens: tokens, activity: recorder}
}

// HandleList обрабатывает GET /v1/profiles
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "internal_error", "Failed to list profiles")
		return
	}

	h.sendJSON(w, http.StatusOK, ProfilesResponse{Profiles: profiles})
}

// HandleCreate обрабатывает POST /v1/profiles
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON")
		return
	}

	profile, err := h.service.CreateProfile(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyName):
			h.sendError(w, http.StatusBadRequest, "empty_name", "Name cannot be empty")
		case errors.Is(err, ErrNameTooLong):
			h.sendError(w, http.StatusBadRequest, "name_too_long", err.Error())
		default:
			h.sendError(w, http.StatusInternalServerError, "internal_error", "Failed to create profile")
		}
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, &profile.ID, activity.ActionProfileCreated, profile.Name))
	h.sendJSON(w, http.StatusCreated, profile)
}

// HandleSelect обрабатывает POST /v1/profiles/{id}/select
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_id", "Invalid profile ID")
		return
	}

	profile, err := h.service.SelectProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.sendError(w, http.StatusNotFound, "not_found", "Profile not found")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "internal_error", "Failed to select profile")
		return
	}

	resp := SelectResponse{Profile: *profile}
	if h.tokens != nil {
		token, err := h.tokens.IssueMemberToken(profile.ID.String())
		if err != nil {
			h.sendError(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
			return
		}
		resp.AccessToken = token.AccessToken
		resp.TokenType = token.TokenType
		resp.ExpiresIn = token.ExpiresIn
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, &profile.ID, activity.ActionProfileSelected, profile.Name))
	h.sendJSON(w, http.StatusOK, resp)
}

// HandleDelete обрабатывает DELETE /v1/admin/profiles/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_id", "Invalid profile ID")
		return
	}

	if err := h.service.DeleteProfile(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.sendError(w, http.StatusNotFound, "not_found", "Profile not found")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "internal_error", "Failed to delete profile")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionProfileDeleted, id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// sendJSON отправляет JSON ответ
func (h *Handler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sendError отправляет ошибку в JSON формате
func (h *Handler) sendError(w http.ResponseWriter, status int, code, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
