package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fdg312/meal-tracker/internal/activity"
	"github.com/fdg312/meal-tracker/internal/adherence"
	"github.com/fdg312/meal-tracker/internal/ai"
	"github.com/fdg312/meal-tracker/internal/aimodels"
	"github.com/fdg312/meal-tracker/internal/analytics"
	"github.com/fdg312/meal-tracker/internal/auth"
	"github.com/fdg312/meal-tracker/internal/blob"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/importer"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/profiles"
	"github.com/fdg312/meal-tracker/internal/recipes"
	"github.com/fdg312/meal-tracker/internal/reports"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/fdg312/meal-tracker/internal/storage/postgres"
	"github.com/fdg312/meal-tracker/internal/storage/sqlite"
	"go.uber.org/zap"
)

// Server представляет HTTP сервер
type Server struct {
	config         *config.Config
	logger         *zap.Logger
	clock          clock.Clock
	mux            *http.ServeMux
	handler        http.Handler
	storage        storage.Store
	authMiddleware *auth.Middleware
}

// Option настраивает сервер (используется в тестах)
type Option func(*Server)

// WithClock подменяет системные часы
func WithClock(clk clock.Clock) Option {
	return func(s *Server) { s.clock = clk }
}

// WithStorage подставляет готовое хранилище вместо выбора по STORAGE_MODE
func WithStorage(st storage.Store) Option {
	return func(s *Server) { s.storage = st }
}

// New создаёт новый HTTP сервер
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger.Named("http"),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.System{Loc: cfg.Location()}
	}

	if s.storage == nil {
		st, err := s.initStorage(context.Background())
		if err != nil {
			return nil, err
		}
		s.storage = st
	}

	if err := s.routes(); err != nil {
		s.storage.Close()
		return nil, err
	}

	// Middleware chain (outermost first): CORS → Identify → Rate Limit → Router
	var handler http.Handler = s.mux
	handler = RateLimitMiddleware(s.config, s.logger, handler)
	handler = s.authMiddleware.Identify(handler)
	handler = CORSMiddleware(s.config, handler)
	s.handler = handler

	return s, nil
}

// initStorage выбирает хранилище по STORAGE_MODE.
// auto: Postgres, если задан DATABASE_URL, иначе in-memory.
func (s *Server) initStorage(ctx context.Context) (storage.Store, error) {
	switch s.config.StorageMode {
	case config.StorageModeMemory:
		s.logger.Info("using in-memory storage")
		return memory.New(), nil

	case config.StorageModeSQLite:
		s.logger.Info("opening SQLite", zap.String("path", s.config.SQLitePath))
		st, err := sqlite.Open(s.config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return st, nil

	case config.StorageModePostgres:
		if s.config.DatabaseURL == "" {
			return nil, errors.New("STORAGE_MODE=postgres requires DATABASE_URL")
		}
		st, err := postgres.New(ctx, s.config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.logger.Info("PostgreSQL connected")
		return st, nil
	}

	if s.config.DatabaseURL == "" {
		s.logger.Info("using in-memory storage")
		return memory.New(), nil
	}

	s.logger.Info("connecting to PostgreSQL")
	st, err := postgres.New(ctx, s.config.DatabaseURL)
	if err != nil {
		s.logger.Warn("PostgreSQL unavailable, fallback to in-memory storage", zap.Error(err))
		return memory.New(), nil
	}
	s.logger.Info("PostgreSQL connected")
	return st, nil
}

// initBlobStores строит хранилища объектов для выгрузок и архива импортов.
// Если оба режима совпадают, клиент S3 переиспользуется.
func (s *Server) initBlobStores() (exportsStore blob.Store, importsStore blob.Store, err error) {
	stdLog := zap.NewStdLog(s.logger.Named("blob"))
	s3cfg := s.config.Blob.S3

	exportsStore, exportsMode, err := blob.NewBlobStore("exports", s.config.Blob.EffectiveExportsMode(), s3cfg, stdLog)
	if err != nil {
		return nil, nil, err
	}

	if s.config.Blob.EffectiveImportsMode() == s.config.Blob.EffectiveExportsMode() {
		s.logger.Info("blob modes", zap.String("exports", exportsMode), zap.String("imports", exportsMode+" (shared)"))
		return exportsStore, exportsStore, nil
	}

	importsStore, importsMode, err := blob.NewBlobStore("imports", s.config.Blob.EffectiveImportsMode(), s3cfg, stdLog)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("blob modes", zap.String("exports", exportsMode), zap.String("imports", importsMode))
	return exportsStore, importsStore, nil
}

// routes собирает сервисы и регистрирует маршруты
func (s *Server) routes() error {
	ctx := context.Background()
	st := s.storage
	clk := s.clock
	logger := s.logger.Named("app")

	exportsStore, importsStore, err := s.initBlobStores()
	if err != nil {
		return fmt.Errorf("failed to init blob stores: %w", err)
	}

	// Сервисы
	activityService := activity.NewService(st, clk, logger)
	authService := auth.NewService(s.config, st, clk, logger)
	if err := authService.EnsureAdmin(ctx); err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	s.authMiddleware = auth.NewMiddleware(s.config, authService)

	modelsService := aimodels.NewService(st, clk, logger)
	if n, err := modelsService.SeedIfEmpty(ctx); err != nil {
		return fmt.Errorf("failed to seed ai models: %w", err)
	} else if n > 0 {
		s.logger.Info("ai models seeded", zap.Int("count", n))
	}

	profilesService := profiles.NewService(st, clk, logger)
	entriesService := planentries.NewService(st, clk, logger)
	importService := importer.NewService(entriesService, st, importsStore, clk, logger)
	ledger := adherence.NewService(st, clk, logger)

	rc := s.config.Recipes
	cache := recipes.NewCache(st, clk, recipes.CacheConfig{
		FreshTTL:        rc.FreshTTL(),
		FallbackTTL:     rc.FallbackTTL(),
		LeaseTTL:        rc.LeaseTTL(),
		GenerateTimeout: rc.GenerateTimeoutDuration(),
		WaitPoll:        rc.WaitPoll(),
	}, logger)
	recipesService := recipes.NewService(cache, st, modelsService, rc, ai.NewProvider, logger)

	reportsService := reports.NewService(st, st, ledger, exportsStore, reports.Options{
		MaxRangeDays:    s.config.ExportsMaxRangeDays,
		PresignTTL:      s.config.Blob.S3.PresignTTLSeconds,
		PublicBaseURL:   s.config.Blob.S3.PublicBaseURL,
		PreferPublicURL: s.config.Blob.S3.PreferPublicURL,
	}, clk, logger)
	analyticsService := analytics.NewService(st, st, st, cache, ledger, clk)

	// Handlers
	authHandlers := auth.NewHandlers(authService, activityService)
	profileHandler := profiles.NewHandler(profilesService, authService, activityService)
	entriesHandler := planentries.NewHandler(entriesService, activityService)
	importHandler := importer.NewHandler(importService, activityService, int64(s.config.UploadMaxMB)<<20)
	adherenceHandler := adherence.NewHandler(ledger, activityService)
	recipesHandler := recipes.NewHandler(recipesService, activityService)
	reportsHandlers := reports.NewHandlers(reportsService, activityService)
	modelsHandler := aimodels.NewHandler(modelsService, activityService)
	activityHandler := activity.NewHandler(activityService)

	// Public
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /v1/auth/admin/login", authHandlers.HandleAdminLogin)
	s.mux.HandleFunc("GET /v1/profiles", profileHandler.HandleList)
	s.mux.HandleFunc("POST /v1/profiles", profileHandler.HandleCreate)
	s.mux.HandleFunc("POST /v1/profiles/{id}/select", profileHandler.HandleSelect)

	// Member
	s.mux.Handle("GET /v1/today", s.member(adherenceHandler.HandleToday))
	s.mux.Handle("GET /v1/week", s.member(adherenceHandler.HandleWeek))
	s.mux.Handle("POST /v1/entries/{id}/mark", s.member(adherenceHandler.HandleMark))
	s.mux.Handle("DELETE /v1/entries/{id}/mark", s.member(adherenceHandler.HandleUnmark))
	s.mux.Handle("GET /v1/entries/{id}/status", s.member(adherenceHandler.HandleStatus))
	s.mux.Handle("GET /v1/entries/{id}/recipe", s.member(recipesHandler.HandleDish))
	s.mux.Handle("POST /v1/exports", s.member(reportsHandlers.HandleCreate))
	s.mux.Handle("GET /v1/exports", s.member(reportsHandlers.HandleList))
	s.mux.Handle("GET /v1/exports/{id}/download", s.member(reportsHandlers.HandleDownload))
	s.mux.Handle("DELETE /v1/exports/{id}", s.member(reportsHandlers.HandleDelete))

	// Admin
	s.mux.Handle("GET /v1/admin/template", s.admin(entriesHandler.HandleTemplate))
	s.mux.Handle("POST /v1/admin/imports", s.admin(importHandler.HandleImport))
	s.mux.Handle("GET /v1/admin/entries", s.admin(entriesHandler.HandleList))
	s.mux.Handle("POST /v1/admin/entries", s.admin(entriesHandler.HandleCreate))
	s.mux.Handle("PATCH /v1/admin/entries/{id}", s.admin(entriesHandler.HandleEdit))
	s.mux.Handle("DELETE /v1/admin/entries/{id}", s.admin(entriesHandler.HandleDelete))
	s.mux.Handle("POST /v1/admin/entries/{id}/copy", s.admin(entriesHandler.HandleCopy))
	s.mux.Handle("DELETE /v1/admin/entries", s.admin(entriesHandler.HandleDeleteRange))
	s.mux.Handle("GET /v1/admin/stats", s.admin(analytics.HandleStats(analyticsService)))
	s.mux.Handle("GET /v1/admin/adherence", s.admin(analytics.HandleAdherence(analyticsService)))
	s.mux.Handle("GET /v1/admin/activity", s.admin(activityHandler.HandleList))
	s.mux.Handle("GET /v1/admin/models", s.admin(modelsHandler.HandleList))
	s.mux.Handle("POST /v1/admin/models", s.admin(modelsHandler.HandleCreate))
	s.mux.Handle("DELETE /v1/admin/models/{id}", s.admin(modelsHandler.HandleDelete))
	s.mux.Handle("POST /v1/admin/models/{id}/default", s.admin(modelsHandler.HandleSetDefault))
	s.mux.Handle("POST /v1/admin/recipes/invalidate", s.admin(recipesHandler.HandleInvalidate))
	s.mux.Handle("POST /v1/admin/password", s.admin(authHandlers.HandleChangePassword))
	s.mux.Handle("DELETE /v1/admin/profiles/{id}", s.admin(profileHandler.HandleDelete))

	return nil
}

func (s *Server) member(h http.HandlerFunc) http.Handler {
	return s.authMiddleware.RequireMember(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.authMiddleware.RequireAdmin(h)
}

// handleHealthz возвращает статус сервера
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Handler возвращает корневой обработчик со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start запускает HTTP сервер и останавливает его при отмене ctx
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started",
			zap.String("addr", "http://localhost"+addr),
			zap.String("healthz", "http://localhost"+addr+"/healthz"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close закрывает storage и освобождает ресурсы
func (s *Server) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
