package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/planentries"
)

// Handler handles plan upload requests.
type Handler struct {
	service  *Service
	activity activity.Recorder
	maxBytes int64
}

// NewHandler creates an import handler; maxBytes limits the multipart body.
func NewHandler(service *Service, recorder activity.Recorder, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Handler{service: service, activity: recorder, maxBytes: maxBytes}
}

// HandleImport handles POST /v1/admin/imports?dry_run=&scope= (multipart field "file")
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "dry_run must be a boolean")
			return
		}
		dryRun = v
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Sprintf("upload exceeds %d bytes", h.maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read upload")
		return
	}

	report, err := h.service.Import(r.Context(), Request{
		Data:     data,
		Filename: header.Filename,
		Scope:    r.URL.Query().Get("scope"),
		DryRun:   dryRun,
	})
	if err != nil {
		var verr *planentries.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, string(verr.Reason), verr.Error())
		case errors.Is(err, ErrInvalidHeader):
			writeError(w, http.StatusBadRequest, "invalid_header", err.Error())
		case errors.Is(err, ErrUnsupportedFormat):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
		case errors.Is(err, ErrEmptyFile):
			writeError(w, http.StatusBadRequest, "empty_file", err.Error())
		case errors.Is(err, ErrMalformedFile):
			writeError(w, http.StatusBadRequest, "invalid_file", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to import plan")
		}
		return
	}

	if !dryRun {
		h.activity.Record(r.Context(), activity.FromRequest(r, nil, activity.ActionImportCommitted,
			fmt.Sprintf("%s: accepted=%d replaced=%d rejected=%d", header.Filename, report.Accepted, len(report.Replaced), len(report.Rejected))))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(report)
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
