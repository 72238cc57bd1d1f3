package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fdg312/meal-tracker/internal/adherence"
	"github.com/fdg312/meal-tracker/internal/blob"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type testEnv struct {
	store   *memory.MemoryStorage
	service *Service
	mux     *http.ServeMux
	member  uuid.UUID
}

func setupTestEnv(t *testing.T, blobStore blob.Store) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	clk := clock.AtDate("2026-02-22")
	logger := zap.NewNop()

	profile := &storage.Profile{Name: "Test User"}
	if err := store.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	seed := func(date, meal, dish string, kcal float64) storage.PlanEntry {
		res, err := store.UpsertPlanEntry(ctx, storage.PlanEntry{
			Scope: storage.ScopeEveryone, PlanDate: date, MealType: meal, DishName: dish, Calories: kcal,
		}, clk.Now())
		if err != nil {
			t.Fatalf("UpsertPlanEntry: %v", err)
		}
		return res.Entry
	}
	seed("2026-02-20", "Breakfast", "Oatmeal with Berries", 350)
	lunch := seed("2026-02-22", "Lunch", "Grilled Chicken Salad", 450)
	seed("2026-02-23", "Dinner", "Salmon with Vegetables", 480)

	ledger := adherence.NewService(store, clk, logger)
	if _, err := ledger.Mark(ctx, lunch.Key(), profile.ID.String(), storage.StatusPrepared); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	service := NewService(store, store, ledger, blobStore, Options{MaxRangeDays: 90, PresignTTL: 900}, clk, logger)
	handler := NewHandlers(service, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/exports", handler.HandleCreate)
	mux.HandleFunc("GET /v1/exports", handler.HandleList)
	mux.HandleFunc("GET /v1/exports/{id}/download", handler.HandleDownload)
	mux.HandleFunc("DELETE /v1/exports/{id}", handler.HandleDelete)

	return &testEnv{store: store, service: service, mux: mux, member: profile.ID}
}

func (e *testEnv) do(method, path string, body interface{}, member uuid.UUID) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if member != uuid.Nil {
		req = req.WithContext(userctx.WithIdentity(req.Context(), member.String(), userctx.RoleMember))
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, req CreateExportRequest) ExportDTO {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/exports", req, e.member)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp ExportDTO
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleCreate_CSV_Success(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp := env.create(t, CreateExportRequest{From: "2026-02-16", To: "2026-02-23", Format: FormatCSV})
	if resp.Format != FormatCSV {
		t.Errorf("expected format csv, got %s", resp.Format)
	}
	if !strings.HasSuffix(resp.DownloadURL, "/v1/exports/"+resp.ID.String()+"/download") {
		t.Errorf("expected local download URL, got %s", resp.DownloadURL)
	}

	w := env.do(http.MethodGet, "/v1/exports/"+resp.ID.String()+"/download", nil, env.member)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}

	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("unexpected header %v", rows[0])
	}

	statuses := map[string]string{}
	for _, row := range rows[1:] {
		statuses[row[0]] = row[8]
	}
	want := map[string]string{"2026-02-20": "missed", "2026-02-22": "prepared", "2026-02-23": "pending"}
	for date, status := range want {
		if statuses[date] != status {
			t.Errorf("expected %s on %s, got %q", status, date, statuses[date])
		}
	}
}

func TestHandleCreate_PDF_Success(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp := env.create(t, CreateExportRequest{From: "2026-02-16", To: "2026-02-23", Format: FormatPDF})
	if resp.Format != FormatPDF {
		t.Errorf("expected format pdf, got %s", resp.Format)
	}

	w := env.do(http.MethodGet, "/v1/exports/"+resp.ID.String()+"/download", nil, env.member)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("expected PDF content")
	}
}

func TestHandleCreate_Validation(t *testing.T) {
	env := setupTestEnv(t, nil)

	cases := []struct {
		name string
		req  CreateExportRequest
		code string
	}{
		{"RangeTooLarge", CreateExportRequest{From: "2026-01-01", To: "2026-06-01", Format: FormatCSV}, "range_too_large"},
		{"Reversed", CreateExportRequest{From: "2026-02-10", To: "2026-02-01", Format: FormatCSV}, "invalid_range"},
		{"BadDate", CreateExportRequest{From: "2026-02-30", To: "2026-03-01", Format: FormatCSV}, "invalid_date"},
		{"BadFormat", CreateExportRequest{From: "2026-02-01", To: "2026-02-02", Format: "xlsx"}, "invalid_format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/v1/exports", tc.req, env.member)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			var errResp map[string]map[string]string
			json.NewDecoder(w.Body).Decode(&errResp)
			if errResp["error"]["code"] != tc.code {
				t.Errorf("expected error code %s, got %s", tc.code, errResp["error"]["code"])
			}
		})
	}
}

func TestHandleCreate_Unauthorized(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.do(http.MethodPost, "/v1/exports", CreateExportRequest{From: "2026-02-01", To: "2026-02-02", Format: FormatCSV}, uuid.Nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestHandleCreate_ProfileNotFound(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.do(http.MethodPost, "/v1/exports", CreateExportRequest{From: "2026-02-01", To: "2026-02-02", Format: FormatCSV}, uuid.New())
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleDownload_OtherMember(t *testing.T) {
	env := setupTestEnv(t, nil)
	resp := env.create(t, CreateExportRequest{From: "2026-02-16", To: "2026-02-23", Format: FormatCSV})

	w := env.do(http.MethodGet, "/v1/exports/"+resp.ID.String()+"/download", nil, uuid.New())
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleList(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.create(t, CreateExportRequest{From: "2026-02-16", To: "2026-02-23", Format: FormatCSV})
	env.create(t, CreateExportRequest{From: "2026-02-16", To: "2026-02-23", Format: FormatPDF})

	w := env.do(http.MethodGet, "/v1/exports", nil, env.member)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp ExportsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Exports) != 2 {
		t.Errorf("expected 2 exports, got %d", len(resp.Exports))
	}
}

func TestObjectStorageMode(t *testing.T) {
	objects := blob.NewMemStore()
	env := setupTestEnv(t, objects)

	resp := env.create(t, CreateExportRequest{From: "2026-02-16", To: "2026-02-23", Format: FormatCSV})
	if !strings.HasPrefix(resp.DownloadURL, "memory://exports/"+env.member.String()+"/") {
		t.Errorf("expected presigned URL, got %s", resp.DownloadURL)
	}
	if keys := objects.Keys("exports/"); len(keys) != 1 {
		t.Fatalf("expected one stored object, got %v", keys)
	}

	w := env.do(http.MethodGet, "/v1/exports/"+resp.ID.String()+"/download", nil, env.member)
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != resp.DownloadURL {
		t.Errorf("expected redirect to %s, got %s", resp.DownloadURL, loc)
	}

	w = env.do(http.MethodDelete, "/v1/exports/"+resp.ID.String(), nil, env.member)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if keys := objects.Keys("exports/"); len(keys) != 0 {
		t.Errorf("expected object to be removed, got %v", keys)
	}
	if _, ok, _ := env.store.GetExport(context.Background(), resp.ID); ok {
		t.Error("expected metadata to be removed")
	}
}

func TestSummaryRate(t *testing.T) {
	s := Summary{Counts: adherence.Counts{Prepared: 3, Missed: 1, Pending: 5}}
	rate, ok := s.Rate()
	if !ok || rate != 75 {
		t.Errorf("expected 75%%, got %v (%v)", rate, ok)
	}
	if _, ok := (Summary{}).Rate(); ok {
		t.Error("expected no rate without decided meals")
	}
}
