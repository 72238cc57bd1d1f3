package analytics

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HandleStats handles GET /v1/admin/stats
func HandleStats(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := service.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to load stats")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// HandleAdherence handles GET /v1/admin/adherence?week_start=
func HandleAdherence(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := service.WeeklyAdherence(r.Context(), r.URL.Query().Get("week_start"))
		if err != nil {
			if errors.Is(err, ErrInvalidDate) {
				writeError(w, http.StatusBadRequest, "invalid_date", "week_start must be YYYY-MM-DD")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal", "Failed to load adherence")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
