package planentries

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
)

// Handler handles admin HTTP requests for plan entries.
type Handler struct {
	service  *Service
	activity activity.Recorder
}

// NewHandler creates a new plan entries handler.
func NewHandler(service *Service, recorder activity.Recorder) *Handler {
	return &Handler{service: service, activity: recorder}
}

// HandleTemplate handles GET /v1/admin/template
func (h *Handler) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := Template()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to build template")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meal_plan_template.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleList handles GET /v1/admin/entries?from=&to=&scope=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")

	var scopes []string
	if raw := q.Get("scope"); raw != "" {
		scope, verr := NormalizeScope(raw)
		if verr != nil {
			writeValidationError(w, verr)
			return
		}
		scopes = []string{scope}
	}

	entries, err := h.service.ListRange(r.Context(), from, to, scopes)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeValidationError(w, verr)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list plan entries")
		return
	}

	dtos := make([]PlanEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = ToDTO(e)
	}
	writeJSON(w, http.StatusOK, ListResponse{From: from, To: to, Entries: dtos})
}

// HandleCreate handles POST /v1/admin/entries
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	scope, verr := NormalizeScope(req.Scope)
	if verr != nil {
		writeValidationError(w, verr)
		return
	}

	res, err := h.service.AddManual(r.Context(), scope, req.raw())
	if !h.writeResult(w, err, "Failed to add plan entry") {
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionEntryAdded,
		fmt.Sprintf("%s %s: %s", res.Entry.PlanDate, res.Entry.MealType, res.Entry.DishName)))
	status := http.StatusOK
	if res.Outcome == storage.OutcomeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, toWriteResponse(res))
}

// HandleEdit handles PATCH /v1/admin/entries/{id}
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	res, err := h.service.Edit(r.Context(), id, req)
	if !h.writeResult(w, err, "Failed to edit plan entry") {
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionEntryEdited,
		fmt.Sprintf("%s %s: %s", res.Entry.PlanDate, res.Entry.MealType, res.Entry.DishName)))
	writeJSON(w, http.StatusOK, toWriteResponse(res))
}

// HandleCopy handles POST /v1/admin/entries/{id}/copy
func (h *Handler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req CopyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid request body")
		return
	}

	res, err := h.service.Copy(r.Context(), id, req.TargetDate)
	if !h.writeResult(w, err, "Failed to copy plan entry") {
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionEntryCopied,
		fmt.Sprintf("%s -> %s", id, req.TargetDate)))
	writeJSON(w, http.StatusOK, toWriteResponse(res))
}

// HandleDelete handles DELETE /v1/admin/entries/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete plan entry")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "Plan entry not found")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionEntryDeleted, id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteRange handles DELETE /v1/admin/entries?from=&to=&scope=
func (h *Handler) HandleDeleteRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")

	var scopes []string
	if raw := q.Get("scope"); raw != "" {
		scope, verr := NormalizeScope(raw)
		if verr != nil {
			writeValidationError(w, verr)
			return
		}
		scopes = []string{scope}
	}

	n, err := h.service.DeleteRange(r.Context(), from, to, scopes)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeValidationError(w, verr)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete plan entries")
		return
	}

	h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionWeekCleared,
		fmt.Sprintf("%s..%s: %d entries", from, to, n)))
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// writeResult maps service errors; returns true when the caller should write the success body.
func (h *Handler) writeResult(w http.ResponseWriter, err error, failMsg string) bool {
	if err == nil {
		return true
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr)
	case errors.Is(err, ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Plan entry not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", failMsg)
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func writeValidationError(w http.ResponseWriter, verr *ValidationError) {
	writeError(w, http.StatusBadRequest, string(verr.Reason), verr.Error())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes an error response in the standard format.
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
