package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/dbmigrate"
	"github.com/fdg312/meal-tracker/internal/httpserver"
	"github.com/fdg312/meal-tracker/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL config: %v", err)
	}

	printStartupBanner(cfg)
	validateProductionConfig(cfg)

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("FATAL logger: %v", err)
	}
	defer logger.Sync()

	if cfg.RunMigrationsOnStartup && usesPostgres(cfg) {
		dbURL, source, _, err := dbmigrate.SelectDatabaseURL(cfg, true)
		if err != nil {
			logger.Fatal("startup migrations", zap.Error(err))
		}

		logger.Info("startup migrations", zap.String("command", "up"), zap.String("using", source))
		if err := dbmigrate.Run("up", dbURL, dbmigrate.DefaultMigrationsDir); err != nil {
			logger.Fatal("startup migrations failed", zap.Error(err))
		}
		logger.Info("startup migrations completed")
	}

	server, err := httpserver.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", zap.Error(err))
	}
}

func usesPostgres(cfg *config.Config) bool {
	switch cfg.StorageMode {
	case config.StorageModePostgres:
		return true
	case config.StorageModeAuto:
		return cfg.DatabaseURL != ""
	}
	return false
}

// printStartupBanner logs a one-time summary of the resolved configuration.
// No secrets are ever printed — only masked indicators ("set" / "not set").
func printStartupBanner(cfg *config.Config) {
	log.Println("========== Meal Tracker API ==========")
	log.Printf("  env              = %s", cfg.Env)
	log.Printf("  port             = %d", cfg.Port)
	log.Printf("  timezone         = %s", cfg.Timezone)
	log.Printf("  log_level        = %s", cfg.LogLevel)

	// ---- Storage ----
	log.Println("---- storage ----")
	log.Printf("  storage_mode     = %s", cfg.StorageMode)
	switch cfg.StorageMode {
	case config.StorageModeSQLite:
		log.Printf("  sqlite_path      = %s", cfg.SQLitePath)
	case config.StorageModeMemory:
	default:
		log.Printf("  runtime_url      = %s", describeDBURL(cfg.DatabaseURL, cfg.DatabaseURLPooled))
		log.Printf("  pooled           = %s", setOrNot(cfg.DatabaseURLPooled))
		log.Printf("  direct           = %s", setOrNot(cfg.DatabaseURLDirect))
		log.Printf("  migrations_on_startup = %t", cfg.RunMigrationsOnStartup)
		if cfg.RunMigrationsOnStartup && cfg.DatabaseURLDirect == "" {
			log.Printf("  migrations_via   = (will fail: DATABASE_URL_DIRECT not set)")
		}
	}

	// ---- Auth ----
	log.Println("---- auth ----")
	log.Printf("  auth_mode        = %s", cfg.AuthMode)
	log.Printf("  jwt_secret       = %s", secretStatus(cfg.JWTSecret, "change_me"))
	log.Printf("  jwt_ttl_minutes  = %d", cfg.JWTTTLMinutes)
	log.Printf("  admin_username   = %s", nonEmptyOrDash(cfg.AdminUsername))
	log.Printf("  admin_password   = %s", setOrNot(cfg.AdminPassword))

	// ---- Blob / S3 ----
	log.Println("---- blob ----")
	log.Printf("  blob_mode        = %s", cfg.Blob.Mode)
	log.Printf("  exports_mode     = %s", cfg.Blob.EffectiveExportsMode())
	log.Printf("  imports_mode     = %s", cfg.Blob.EffectiveImportsMode())
	if cfg.Blob.EffectiveExportsMode() != config.BlobModeLocal || cfg.Blob.EffectiveImportsMode() != config.BlobModeLocal {
		log.Printf("  s3: %s", cfg.Blob.S3.DiagnosticsSummary())
	}

	// ---- Recipes ----
	rc := cfg.Recipes
	log.Println("---- recipes ----")
	log.Printf("  provider         = %s", rc.Provider)
	log.Printf("  default_model    = %s", nonEmptyOrDash(rc.DefaultModel))
	log.Printf("  api_key          = %s", setOrNot(rc.APIKeyFor(rc.Provider)))
	log.Printf("  generate_timeout = %s", rc.GenerateTimeoutDuration())
	log.Printf("  fresh_ttl        = %s", rc.FreshTTL())
	log.Printf("  fallback_ttl     = %s", rc.FallbackTTL())
	log.Printf("  lease            = %s", rc.LeaseTTL())

	log.Println("======================================")
}

// validateProductionConfig performs fatal checks that only matter in non-local envs.
func validateProductionConfig(cfg *config.Config) {
	isProd := cfg.Env == "production" || cfg.Env == "staging"

	needsS3 := cfg.Blob.EffectiveExportsMode() == config.BlobModeS3 || cfg.Blob.EffectiveImportsMode() == config.BlobModeS3
	if needsS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			log.Fatalf("FATAL blob: s3 mode requested but S3 config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if isProd && cfg.AuthMode == config.AuthModeJWT && cfg.JWTSecret == "change_me" {
		log.Fatalf("FATAL auth: JWT_SECRET must not be 'change_me' in %s", cfg.Env)
	}
	if isProd && cfg.AuthMode == config.AuthModeNone {
		log.Printf("WARN auth: AUTH_MODE=none in %s, any client can act as any profile", cfg.Env)
	}

	if cfg.StorageMode == config.StorageModePostgres && cfg.DatabaseURL == "" {
		log.Fatalf("FATAL db: STORAGE_MODE=postgres but no DATABASE_URL configured")
	}
	if isProd && cfg.StorageMode == config.StorageModeAuto && cfg.DatabaseURL == "" {
		log.Fatalf("FATAL db: no DATABASE_URL configured in %s", cfg.Env)
	}
}

// ---- helpers (no secrets) ----

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func nonEmptyOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "not set"
	}
	if v == insecureDefault {
		return fmt.Sprintf("set (DEFAULT, insecure '%s')", insecureDefault)
	}
	return "set (custom)"
}

func describeDBURL(runtime, pooled string) string {
	if runtime == "" {
		return "not set (will use in-memory storage)"
	}
	if pooled != "" && runtime == pooled {
		return "set (via DATABASE_URL_POOLED)"
	}
	return "set"
}
