package aimodels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService() *Service {
	return NewService(memory.New(), clock.AtDate("2026-02-22"), zap.NewNop())
}

func TestSeedIfEmpty(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	n, err := svc.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	def, found, err := svc.Default(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "groq", def.Provider)
	assert.Equal(t, "openai/gpt-oss-120b", def.ModelID)

	// повторный вызов ничего не добавляет
	n, err = svc.SeedIfEmpty(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseSeed(t *testing.T) {
	models, err := ParseSeed(seedYAML)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.True(t, models[0].Default)
	assert.Equal(t, "arcee-ai/trinity-large-preview:free", models[1].ModelID)

	_, err = ParseSeed([]byte("models: [unclosed"))
	assert.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateModelRequest{Provider: "ollama", ModelID: "x"})
	assert.ErrorIs(t, err, ErrInvalidProvider)
	_, err = svc.Create(ctx, CreateModelRequest{Provider: "groq", ModelID: "  "})
	assert.ErrorIs(t, err, ErrInvalidModelID)

	m, err := svc.Create(ctx, CreateModelRequest{Provider: " Anthropic ", ModelID: "claude"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Provider)
	assert.Equal(t, "claude", m.DisplayName)

	_, err = svc.Create(ctx, CreateModelRequest{Provider: "anthropic", ModelID: "claude"})
	assert.ErrorIs(t, err, ErrModelExists)
}

func TestDefaultFallsBackToFirst(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, found, err := svc.Default(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	m, err := svc.Create(ctx, CreateModelRequest{Provider: "gemini", ModelID: "g"})
	require.NoError(t, err)
	def, found, err := svc.Default(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, m.ID, def.ID)

	other, err := svc.Create(ctx, CreateModelRequest{Provider: "openai", ModelID: "o"})
	require.NoError(t, err)
	require.NoError(t, svc.SetDefault(ctx, other.ID))
	def, _, err = svc.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.ID, def.ID)

	assert.ErrorIs(t, svc.SetDefault(ctx, uuid.New()), ErrModelNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, uuid.New()), ErrModelNotFound)
	assert.NoError(t, svc.Delete(ctx, other.ID))
}

func TestHandlers(t *testing.T) {
	h := NewHandler(newService(), activity.Nop{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/admin/models", h.HandleList)
	mux.HandleFunc("POST /v1/admin/models", h.HandleCreate)
	mux.HandleFunc("DELETE /v1/admin/models/{id}", h.HandleDelete)
	mux.HandleFunc("POST /v1/admin/models/{id}/default", h.HandleSetDefault)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/v1/admin/models", `{"provider":"groq","model_id":"llama"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(http.MethodPost, "/v1/admin/models", `{"provider":"groq","model_id":"llama"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(http.MethodPost, "/v1/admin/models", `{"provider":"nope","model_id":"llama"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/v1/admin/models", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model_id":"llama"`)

	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/v1/admin/models/"+uuid.NewString()+"/default", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodDelete, "/v1/admin/models/bad", "").Code)
}
