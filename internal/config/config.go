package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	StorageModeAuto     = "auto"
	StorageModeMemory   = "memory"
	StorageModePostgres = "postgres"
	StorageModeSQLite   = "sqlite"
)

const (
	AuthModeNone = "none"
	AuthModeJWT  = "jwt"
)

// Recipe providers known to the generator factory.
const (
	ProviderMock       = "mock"
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

type S3Config struct {
	Endpoint          string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region            string `yaml:"region" env:"S3_REGION"`
	Bucket            string `yaml:"bucket" env:"S3_BUCKET"`
	AccessKeyID       string `yaml:"-" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey   string `yaml:"-" env:"S3_SECRET_ACCESS_KEY"`
	PublicBaseURL     string `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
	PresignTTLSeconds int    `yaml:"presign_ttl_seconds" env:"S3_PRESIGN_TTL_SECONDS" env-default:"900"`
	PreferPublicURL   bool   `yaml:"prefer_public_url" env:"S3_PREFER_PUBLIC_URL" env-default:"false"`
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 6)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

func (c S3Config) Diagnostics() (level string, code string, msg string) {
	allEmpty := strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == "" &&
		strings.TrimSpace(c.PublicBaseURL) == ""

	if allEmpty {
		return "INFO", "s3_not_configured", "not configured (all empty)"
	}

	missing := c.MissingRequired()
	if len(missing) > 0 {
		return "WARN", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}

	return "INFO", "s3_ready", "ready"
}

// DiagnosticsSummary returns a detailed summary for logging (no secrets)
func (c S3Config) DiagnosticsSummary() string {
	return fmt.Sprintf("endpoint=%s region=%s bucket=%s public_base_url=%s presign_ttl=%ds prefer_public_url=%t access_key_id=%s secret_access_key=%s",
		nonEmptyOrDash(c.Endpoint),
		nonEmptyOrDash(c.Region),
		nonEmptyOrDash(c.Bucket),
		nonEmptyOrDash(c.PublicBaseURL),
		c.PresignTTLSeconds,
		c.PreferPublicURL,
		setOrNotSet(c.AccessKeyID),
		setOrNotSet(c.SecretAccessKey),
	)
}

func nonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func setOrNotSet(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

type BlobConfig struct {
	Mode        string   `yaml:"mode" env:"BLOB_MODE" env-default:"local"` // local|s3|auto
	ExportsMode string   `yaml:"exports_mode" env:"EXPORTS_MODE"`          // local|s3|auto (override)
	ImportsMode string   `yaml:"imports_mode" env:"IMPORTS_ARCHIVE_MODE"`  // local|s3|auto (override)
	S3          S3Config `yaml:"s3"`
}

func (c BlobConfig) EffectiveExportsMode() string {
	if c.ExportsMode != "" {
		return c.ExportsMode
	}
	return c.Mode
}

func (c BlobConfig) EffectiveImportsMode() string {
	if c.ImportsMode != "" {
		return c.ImportsMode
	}
	return c.Mode
}

// RecipeConfig настройки генерации и кэширования рецептов.
type RecipeConfig struct {
	Provider          string  `yaml:"provider" env:"RECIPE_PROVIDER" env-default:"mock"`
	GroqAPIKey        string  `yaml:"-" env:"GROQ_API_KEY"`
	OpenRouterAPIKey  string  `yaml:"-" env:"OPENROUTER_API_KEY"`
	OpenAIAPIKey      string  `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey   string  `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey      string  `yaml:"-" env:"GEMINI_API_KEY"`
	DefaultModel      string  `yaml:"default_model" env:"RECIPE_MODEL"`
	MaxOutputTokens   int     `yaml:"max_output_tokens" env:"AI_MAX_OUTPUT_TOKENS" env-default:"2000"`
	Temperature       float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.7"`
	GenerateTimeout   int     `yaml:"generate_timeout_seconds" env:"RECIPE_GENERATE_TIMEOUT_SECONDS" env-default:"30"`
	FreshTTLHours     int     `yaml:"fresh_ttl_hours" env:"RECIPE_FRESH_TTL_HOURS" env-default:"720"`
	FallbackTTLMinute int     `yaml:"fallback_ttl_minutes" env:"RECIPE_FALLBACK_TTL_MINUTES" env-default:"10"`
	LeaseSeconds      int     `yaml:"lease_seconds" env:"RECIPE_LEASE_SECONDS" env-default:"45"`
	WaitPollMillis    int     `yaml:"wait_poll_ms" env:"RECIPE_WAIT_POLL_MS" env-default:"200"`
	AppURL            string  `yaml:"app_url" env:"APP_URL" env-default:"http://localhost:8080"`
}

func (c RecipeConfig) GenerateTimeoutDuration() time.Duration {
	return time.Duration(c.GenerateTimeout) * time.Second
}

func (c RecipeConfig) FreshTTL() time.Duration {
	return time.Duration(c.FreshTTLHours) * time.Hour
}

func (c RecipeConfig) FallbackTTL() time.Duration {
	return time.Duration(c.FallbackTTLMinute) * time.Minute
}

func (c RecipeConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

func (c RecipeConfig) WaitPoll() time.Duration {
	return time.Duration(c.WaitPollMillis) * time.Millisecond
}

// APIKeyFor возвращает ключ для провайдера (пустая строка, если не задан).
func (c RecipeConfig) APIKeyFor(provider string) string {
	switch provider {
	case ProviderGroq:
		return c.GroqAPIKey
	case ProviderOpenRouter:
		return c.OpenRouterAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// Config содержит конфигурацию приложения
type Config struct {
	Env      string `yaml:"env" env:"APP_ENV" env-default:"local"` // local | staging | prod
	Port     int    `yaml:"port" env:"PORT" env-default:"8080"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"debug"`
	Timezone string `yaml:"timezone" env:"APP_TIMEZONE" env-default:"UTC"`

	// Storage
	StorageMode string `yaml:"storage_mode" env:"STORAGE_MODE" env-default:"auto"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"meal_tracker.db"`

	// Database
	DatabaseURL       string `yaml:"-"`                          // runtime connection (resolved: pooled > url > direct)
	DatabaseURLRaw    string `yaml:"-" env:"DATABASE_URL"`        // as provided
	DatabaseURLPooled string `yaml:"-" env:"DATABASE_URL_POOLED"` // as provided
	DatabaseURLDirect string `yaml:"-" env:"DATABASE_URL_DIRECT"` // for migrations / DDL (may be empty)

	// CORS
	CORSAllowedOriginsRaw string   `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	CORSAllowedOrigins    []string `yaml:"-"`
	CORSAllowCredentials  bool     `yaml:"cors_allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`

	// Rate Limiting
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"0"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"0"`

	Blob BlobConfig `yaml:"blob"`

	// Exports / Uploads
	ExportsMaxRangeDays int `yaml:"exports_max_range_days" env:"EXPORTS_MAX_RANGE_DAYS" env-default:"92"`
	UploadMaxMB         int `yaml:"upload_max_mb" env:"UPLOAD_MAX_MB" env-default:"10"`

	// Authentication & Authorization
	AuthMode      string `yaml:"auth_mode" env:"AUTH_MODE" env-default:"none"` // none | jwt
	JWTSecret     string `yaml:"-" env:"JWT_SECRET" env-default:"change_me"`
	JWTIssuer     string `yaml:"jwt_issuer" env:"JWT_ISSUER" env-default:"meal-tracker"`
	JWTTTLMinutes int    `yaml:"jwt_ttl_minutes" env:"JWT_TTL_MINUTES" env-default:"10080"`
	AdminUsername string `yaml:"admin_username" env:"ADMIN_USERNAME" env-default:"admin"`
	AdminPassword string `yaml:"-" env:"ADMIN_PASSWORD" env-default:"admin123"`

	Recipes RecipeConfig `yaml:"recipes"`

	// Migrations
	RunMigrationsOnStartup bool `yaml:"run_migrations_on_startup" env:"RUN_MIGRATIONS_ON_STARTUP" env-default:"false"`
}

// Load загружает конфигурацию: CONFIG_FILE (yaml, опционально), затем переменные окружения.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize приводит значения к допустимым, с предупреждениями вместо падения.
func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = "local"
	}

	// Priority: DATABASE_URL_POOLED > DATABASE_URL > DATABASE_URL_DIRECT
	c.DatabaseURLRaw = strings.TrimSpace(c.DatabaseURLRaw)
	c.DatabaseURLPooled = strings.TrimSpace(c.DatabaseURLPooled)
	c.DatabaseURLDirect = strings.TrimSpace(c.DatabaseURLDirect)
	c.DatabaseURL = c.DatabaseURLPooled
	if c.DatabaseURL == "" {
		c.DatabaseURL = c.DatabaseURLRaw
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = c.DatabaseURLDirect
	}

	c.StorageMode = oneOf("STORAGE_MODE", c.StorageMode, StorageModeAuto,
		StorageModeAuto, StorageModeMemory, StorageModePostgres, StorageModeSQLite)
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		log.Printf("WARNING: unknown APP_TIMEZONE=%q, fallback to UTC", c.Timezone)
		c.Timezone = "UTC"
	}

	c.CORSAllowedOrigins = parseCORSOrigins(c.CORSAllowedOriginsRaw, c.Env)

	c.Blob.Mode = oneOf("BLOB_MODE", c.Blob.Mode, BlobModeLocal, BlobModeLocal, BlobModeS3, BlobModeAuto)
	if c.Blob.ExportsMode != "" {
		c.Blob.ExportsMode = oneOf("EXPORTS_MODE", c.Blob.ExportsMode, BlobModeLocal, BlobModeLocal, BlobModeS3, BlobModeAuto)
	}
	if c.Blob.ImportsMode != "" {
		c.Blob.ImportsMode = oneOf("IMPORTS_ARCHIVE_MODE", c.Blob.ImportsMode, BlobModeLocal, BlobModeLocal, BlobModeS3, BlobModeAuto)
	}
	c.Blob.S3.Endpoint = strings.TrimSpace(c.Blob.S3.Endpoint)
	c.Blob.S3.Region = strings.TrimSpace(c.Blob.S3.Region)
	c.Blob.S3.Bucket = strings.TrimSpace(c.Blob.S3.Bucket)
	c.Blob.S3.AccessKeyID = strings.TrimSpace(c.Blob.S3.AccessKeyID)
	c.Blob.S3.SecretAccessKey = strings.TrimSpace(c.Blob.S3.SecretAccessKey)
	c.Blob.S3.PublicBaseURL = strings.TrimSpace(c.Blob.S3.PublicBaseURL)
	if c.Blob.S3.PresignTTLSeconds <= 0 {
		c.Blob.S3.PresignTTLSeconds = 900
	}

	if c.ExportsMaxRangeDays <= 0 {
		c.ExportsMaxRangeDays = 92
	}
	if c.UploadMaxMB <= 0 {
		c.UploadMaxMB = 10
	}

	c.AuthMode = oneOf("AUTH_MODE", c.AuthMode, AuthModeNone, AuthModeNone, AuthModeJWT)
	if c.JWTSecret == "change_me" && c.Env != "local" {
		log.Println("WARNING: JWT_SECRET is set to 'change_me' in non-local environment!")
	}
	if c.JWTTTLMinutes <= 0 {
		c.JWTTTLMinutes = 10080
	}
	c.AdminUsername = strings.TrimSpace(c.AdminUsername)
	if c.AdminUsername == "" {
		c.AdminUsername = "admin"
	}

	r := &c.Recipes
	r.Provider = oneOf("RECIPE_PROVIDER", r.Provider, ProviderMock,
		ProviderMock, ProviderGroq, ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGemini)
	if r.Provider != ProviderMock && strings.TrimSpace(r.APIKeyFor(r.Provider)) == "" {
		log.Printf("WARNING: RECIPE_PROVIDER=%s without API key, fallback to mock", r.Provider)
		r.Provider = ProviderMock
	}
	if r.MaxOutputTokens <= 0 {
		r.MaxOutputTokens = 2000
	}
	if r.Temperature < 0 {
		r.Temperature = 0
	}
	if r.Temperature > 2 {
		r.Temperature = 2
	}
	if r.GenerateTimeout <= 0 {
		r.GenerateTimeout = 30
	}
	if r.FreshTTLHours <= 0 {
		r.FreshTTLHours = 720
	}
	if r.FallbackTTLMinute <= 0 {
		r.FallbackTTLMinute = 10
	}
	if r.LeaseSeconds <= 0 {
		r.LeaseSeconds = 45
	}
	// лиз должен пережить таймаут генерации
	if r.LeaseSeconds <= r.GenerateTimeout {
		r.LeaseSeconds = r.GenerateTimeout + 5
	}
	if r.WaitPollMillis <= 0 {
		r.WaitPollMillis = 200
	}
}

// Location returns the configured "today" timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func oneOf(key, value, fallback string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return fallback
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	log.Printf("WARNING: unknown %s=%q, fallback to %s", key, v, fallback)
	return fallback
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to localhost origins if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:8081"}
		}
		return nil // prod: deny by default
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
