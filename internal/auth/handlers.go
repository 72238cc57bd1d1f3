package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/userctx"
)

type Handlers struct {
	service  *Service
	activity activity.Recorder
}

func NewHandlers(service *Service, recorder activity.Recorder) *Handlers {
	if recorder == nil {
		recorder = activity.Nop{}
	}
	return &Handlers{service: service, activity: recorder}
}

// HandleAdminLogin handles POST /v1/auth/admin/login
func (h *Handlers) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	resp, err := h.service.AdminLogin(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		writeErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Login failed")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionAdminLogin, req.Username))
	writeJSON(w, http.StatusOK, resp)
}

// HandleChangePassword handles POST /v1/admin/password
func (h *Handlers) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	err := h.service.ChangePassword(r.Context(), username, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, ErrWeakPassword):
		writeErrorResponse(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	case errors.Is(err, ErrInvalidCredentials):
		writeErrorResponse(w, http.StatusForbidden, "invalid_credentials", "Current password is incorrect")
		return
	case err != nil:
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to change password")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionPasswordChanged, username))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
