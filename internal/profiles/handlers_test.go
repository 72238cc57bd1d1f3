package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/auth"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type testEnv struct {
	store   *memory.MemoryStorage
	clock   *clock.Fixed
	service *Service
	auth    *auth.Service
	mux     *http.ServeMux
}

func setup(t *testing.T, withTokens bool) *testEnv {
	t.Helper()
	store := memory.New()
	clk := clock.AtDate("2025-03-10")
	logger := zap.NewNop()

	authService := auth.NewService(&config.Config{
		JWTSecret:     "test-secret",
		JWTIssuer:     "meal-tracker-test",
		JWTTTLMinutes: 60,
	}, store, clk, logger)

	service := NewService(store, clk, logger)
	var tokens TokenIssuer
	if withTokens {
		tokens = authService
	}
	handler := NewHandler(service, tokens, activity.NewService(store, clk, logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/profiles", handler.HandleList)
	mux.HandleFunc("POST /v1/profiles", handler.HandleCreate)
	mux.HandleFunc("POST /v1/profiles/{id}/select", handler.HandleSelect)
	mux.HandleFunc("DELETE /v1/admin/profiles/{id}", handler.HandleDelete)

	return &testEnv{store: store, clock: clk, service: service, auth: authService, mux: mux}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, name string) ProfileDTO {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/profiles", CreateProfileRequest{Name: name})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var p ProfileDTO
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return p
}

func TestHandleList(t *testing.T) {
	env := setup(t, true)

	w := env.do(http.MethodGet, "/v1/profiles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp ProfilesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(resp.Profiles))
	}

	env.create(t, "Маша")
	env.create(t, "Алексей")

	w = env.do(http.MethodGet, "/v1/profiles", nil)
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(resp.Profiles))
	}
	if resp.Profiles[0].Name != "Алексей" {
		t.Errorf("expected profiles sorted by name, got %q first", resp.Profiles[0].Name)
	}
}

func TestHandleCreate(t *testing.T) {
	env := setup(t, true)

	p := env.create(t, "  Guest 1  ")
	if p.Name != "Guest 1" {
		t.Errorf("expected trimmed name, got %q", p.Name)
	}
	if p.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if !p.CreatedAt.Equal(env.clock.Now()) {
		t.Errorf("expected created_at from clock, got %v", p.CreatedAt)
	}

	events, total, _ := env.store.ListActivity(context.Background(), &p.ID, 10, 0)
	if total != 1 || events[0].Action != activity.ActionProfileCreated {
		t.Errorf("expected profile_created event, got %+v", events)
	}
}

func TestHandleCreate_Validation(t *testing.T) {
	env := setup(t, true)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"Empty", `{"name":"   "}`, "empty_name"},
		{"TooLong", `{"name":"` + strings.Repeat("я", 101) + `"}`, "name_too_long"},
		{"InvalidJSON", `{`, "invalid_json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/profiles", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, resp.Error.Code)
			}
		})
	}

	// ровно 100 символов допустимо
	w := env.do(http.MethodPost, "/v1/profiles", CreateProfileRequest{Name: strings.Repeat("я", 100)})
	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201 for 100 characters, got %d", w.Code)
	}
}

func TestHandleSelect(t *testing.T) {
	env := setup(t, true)
	p := env.create(t, "Маша")

	env.clock.Advance(3 * time.Hour)
	w := env.do(http.MethodPost, "/v1/profiles/"+p.ID.String()+"/select", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var resp SelectResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("expected bearer token, got %+v", resp)
	}
	if !resp.Profile.LastSeenAt.Equal(env.clock.Now()) {
		t.Errorf("expected last_seen_at to be touched, got %v", resp.Profile.LastSeenAt)
	}

	identity, err := env.auth.VerifyJWT(resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if identity.Subject != p.ID.String() || identity.Role != userctx.RoleMember {
		t.Errorf("unexpected identity %+v", identity)
	}

	stored, _, _ := env.store.GetProfile(context.Background(), p.ID)
	if !stored.LastSeenAt.Equal(env.clock.Now()) {
		t.Errorf("expected stored last_seen_at to be updated")
	}
}

func TestHandleSelect_WithoutTokens(t *testing.T) {
	env := setup(t, false)
	p := env.create(t, "Маша")

	w := env.do(http.MethodPost, "/v1/profiles/"+p.ID.String()+"/select", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp SelectResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.AccessToken != "" {
		t.Errorf("expected no token, got %q", resp.AccessToken)
	}
	if resp.Profile.ID != p.ID {
		t.Errorf("expected profile %s, got %s", p.ID, resp.Profile.ID)
	}
}

func TestHandleSelect_Errors(t *testing.T) {
	env := setup(t, true)

	w := env.do(http.MethodPost, "/v1/profiles/not-a-uuid/select", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	w = env.do(http.MethodPost, "/v1/profiles/"+uuid.NewString()+"/select", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleDelete(t *testing.T) {
	env := setup(t, true)
	ctx := context.Background()
	p := env.create(t, "Маша")
	scope := p.ID.String()

	_, err := env.store.UpsertPlanEntry(ctx, storage.PlanEntry{
		Scope:    scope,
		PlanDate: "2025-03-10",
		MealType: "Обед",
		DishName: "Борщ",
	}, env.clock.Now())
	if err != nil {
		t.Fatalf("UpsertPlanEntry: %v", err)
	}

	w := env.do(http.MethodDelete, "/v1/admin/profiles/"+scope, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	if _, ok, _ := env.store.GetProfile(ctx, p.ID); ok {
		t.Error("expected profile to be deleted")
	}
	entries, _ := env.store.ListPlanEntries(ctx, "2025-03-01", "2025-03-31", []string{scope})
	if len(entries) != 0 {
		t.Errorf("expected personal plan to be removed, got %d entries", len(entries))
	}

	w = env.do(http.MethodDelete, "/v1/admin/profiles/"+scope, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 on second delete, got %d", w.Code)
	}
}
