package config

import "testing"

func TestS3ConfigIsConfigured(t *testing.T) {
	t.Run("empty config is not configured", func(t *testing.T) {
		cfg := S3Config{}
		if cfg.IsConfigured() {
			t.Fatal("expected IsConfigured=false for empty config")
		}
	})

	t.Run("required fields set is configured", func(t *testing.T) {
		cfg := S3Config{
			Endpoint:        "https://storage.yandexcloud.net",
			Region:          "ru-central1",
			Bucket:          "bucket",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			PublicBaseURL:   "https://storage.yandexcloud.net/bucket",
		}
		if !cfg.IsConfigured() {
			t.Fatal("expected IsConfigured=true when all required fields are set")
		}
	})
}

func TestS3ConfigMissingRequired(t *testing.T) {
	cfg := S3Config{
		Endpoint: "https://storage.yandexcloud.net",
		Bucket:   "bucket",
	}
	missing := cfg.MissingRequired()

	want := []string{"S3_REGION", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_PUBLIC_BASE_URL"}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing fields, got %d (%v)", len(want), len(missing), missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("expected missing[%d]=%s, got %s", i, want[i], missing[i])
		}
	}
}

func TestS3ConfigDiagnostics(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		level, code, _ := (S3Config{}).Diagnostics()
		if level != "INFO" || code != "s3_not_configured" {
			t.Fatalf("expected INFO/s3_not_configured, got %s/%s", level, code)
		}
	})

	t.Run("partial config", func(t *testing.T) {
		level, code, _ := (S3Config{Endpoint: "https://storage.yandexcloud.net"}).Diagnostics()
		if level != "WARN" || code != "s3_partial_config" {
			t.Fatalf("expected WARN/s3_partial_config, got %s/%s", level, code)
		}
	})

	t.Run("region missing", func(t *testing.T) {
		level, code, _ := (S3Config{
			Endpoint:        "https://storage.yandexcloud.net",
			Bucket:          "bucket",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
		}).Diagnostics()
		if level != "WARN" || code != "s3_partial_config" {
			t.Fatalf("expected WARN/s3_partial_config (missing region+publicBaseURL), got %s/%s", level, code)
		}
	})

	t.Run("ready", func(t *testing.T) {
		level, code, _ := (S3Config{
			Endpoint:        "https://storage.yandexcloud.net",
			Region:          "ru-central1",
			Bucket:          "bucket",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			PublicBaseURL:   "https://storage.yandexcloud.net/bucket",
		}).Diagnostics()
		if level != "INFO" || code != "s3_ready" {
			t.Fatalf("expected INFO/s3_ready, got %s/%s", level, code)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RECIPE_PROVIDER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Recipes.Provider != ProviderMock {
		t.Fatalf("expected mock provider, got %s", cfg.Recipes.Provider)
	}
	if cfg.Recipes.MaxOutputTokens != 2000 || cfg.Recipes.Temperature != 0.7 {
		t.Fatalf("unexpected generation defaults: %d %.2f", cfg.Recipes.MaxOutputTokens, cfg.Recipes.Temperature)
	}
	if cfg.Recipes.LeaseTTL() <= cfg.Recipes.GenerateTimeoutDuration() {
		t.Fatalf("lease %s must outlive generate timeout %s", cfg.Recipes.LeaseTTL(), cfg.Recipes.GenerateTimeoutDuration())
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	cfg := &Config{
		Env:         "prod",
		StorageMode: "mongo",
		Timezone:    "Mars/Olympus",
		AuthMode:    "siwa",
		Blob:        BlobConfig{Mode: "ftp", ExportsMode: "S3"},
		Recipes: RecipeConfig{
			Provider:        "groq",
			Temperature:     5,
			GenerateTimeout: 60,
			LeaseSeconds:    10,
		},
		DatabaseURLRaw:    " postgres://raw ",
		DatabaseURLDirect: "postgres://direct",
	}
	cfg.normalize()

	if cfg.StorageMode != StorageModeAuto {
		t.Fatalf("expected auto storage, got %s", cfg.StorageMode)
	}
	if cfg.Timezone != "UTC" {
		t.Fatalf("expected UTC fallback, got %s", cfg.Timezone)
	}
	if cfg.AuthMode != AuthModeNone {
		t.Fatalf("expected auth none, got %s", cfg.AuthMode)
	}
	if cfg.Blob.Mode != BlobModeLocal || cfg.Blob.EffectiveExportsMode() != BlobModeS3 {
		t.Fatalf("unexpected blob modes: %s/%s", cfg.Blob.Mode, cfg.Blob.EffectiveExportsMode())
	}
	if cfg.Blob.EffectiveImportsMode() != BlobModeLocal {
		t.Fatalf("imports mode should inherit blob mode, got %s", cfg.Blob.EffectiveImportsMode())
	}
	// groq without key
	if cfg.Recipes.Provider != ProviderMock {
		t.Fatalf("expected mock fallback, got %s", cfg.Recipes.Provider)
	}
	if cfg.Recipes.Temperature != 2 {
		t.Fatalf("expected clamped temperature 2, got %.2f", cfg.Recipes.Temperature)
	}
	if cfg.Recipes.LeaseSeconds != 65 {
		t.Fatalf("expected lease 65s, got %d", cfg.Recipes.LeaseSeconds)
	}
	if cfg.DatabaseURL != "postgres://raw" {
		t.Fatalf("expected DATABASE_URL priority over direct, got %q", cfg.DatabaseURL)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins in prod, got %v", cfg.CORSAllowedOrigins)
	}
}
