package adherence

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
)

// Handler handles member HTTP requests for adherence.
type Handler struct {
	service  *Service
	activity activity.Recorder
}

// NewHandler creates a new adherence handler.
func NewHandler(service *Service, recorder activity.Recorder) *Handler {
	return &Handler{service: service, activity: recorder}
}

// HandleToday handles GET /v1/today?date=
func (h *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(w, r)
	if !ok {
		return
	}

	view, err := h.service.Dashboard(r.Context(), userID, r.URL.Query().Get("date"))
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to build day view")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, profileRef(userID), activity.ActionPageView, "today "+view.Date))
	writeJSON(w, http.StatusOK, ToDashboardDTO(view))
}

// HandleWeek handles GET /v1/week?week_offset=|week_start=
func (h *Handler) HandleWeek(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	weekStart := q.Get("week_start")
	if weekStart == "" {
		offset := 0
		if raw := q.Get("week_offset"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "week_offset must be an integer")
				return
			}
			offset = n
		}
		weekStart = h.service.WeekStartFor(offset)
	}

	view, err := h.service.WeeklyView(r.Context(), userID, weekStart)
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			writeError(w, http.StatusBadRequest, "invalid_date", "week_start must be YYYY-MM-DD")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to build week view")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, profileRef(userID), activity.ActionHistoryView, "week "+weekStart))
	writeJSON(w, http.StatusOK, ToWeekDTO(view))
}

// HandleMark handles POST /v1/entries/{id}/mark
func (h *Handler) HandleMark(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(w, r)
	if !ok {
		return
	}
	entryID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	res, err := h.service.MarkByID(r.Context(), entryID, userID, req.Status, req.ExpectedRevision)
	if err != nil {
		h.writeServiceError(w, err, "Failed to mark entry")
		return
	}

	action := activity.ActionMealPrepared
	if Kind(res.Record.Status) == KindMissed {
		action = activity.ActionMealMissed
	}
	h.activity.Record(r.Context(), activity.FromRequest(r, profileRef(userID), action, entryID.String()))
	writeJSON(w, http.StatusOK, toMarkResponse(res))
}

// HandleUnmark handles DELETE /v1/entries/{id}/mark
func (h *Handler) HandleUnmark(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(w, r)
	if !ok {
		return
	}
	entryID, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Unmark(r.Context(), entryID, userID); err != nil {
		h.writeServiceError(w, err, "Failed to unmark entry")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, profileRef(userID), activity.ActionMealUnprepared, entryID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /v1/entries/{id}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := memberID(w, r)
	if !ok {
		return
	}
	entryID, ok := pathID(w, r)
	if !ok {
		return
	}

	entry, st, err := h.service.EffectiveStatus(r.Context(), entryID, userID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get status")
		return
	}

	resp := EntryStatusDTO{Entry: planentries.ToDTO(entry), StatusDTO: toStatusDTO(st)}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, failMsg string) {
	switch {
	case errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, planentries.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Plan entry not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", failMsg)
	}
}

func memberID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := userctx.GetMemberID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Profile is not selected")
		return "", false
	}
	return userID, true
}

func profileRef(userID string) *uuid.UUID {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &id
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid entry ID")
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
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
