package dbmigrate

import (
	"fmt"

	"github.com/fdg312/meal-tracker/internal/config"
)

// EmbeddedMigrations selects the migrations compiled into the binary.
const EmbeddedMigrations = "embedded"

// DefaultMigrationsDir is used by cmd/migrate when MIGRATIONS_DIR is unset.
const DefaultMigrationsDir = EmbeddedMigrations

// Commands supported by cmd/migrate.
var Commands = []string{"up", "down", "status", "version", "redo"}

// ErrNotPostgres — goose работает только с Postgres; SQLite мигрирует себя при открытии.
var ErrNotPostgres = fmt.Errorf("goose migrations apply to postgres storage only")

// SelectDatabaseURL selects DB URL for migrations.
// Priority: DIRECT > DATABASE_URL > POOLED (with warning).
// If requireDirect is true, only DATABASE_URL_DIRECT is accepted.
func SelectDatabaseURL(cfg *config.Config, requireDirect bool) (dbURL string, source string, warning string, err error) {
	switch cfg.StorageMode {
	case config.StorageModeMemory, config.StorageModeSQLite:
		return "", "", "", fmt.Errorf("STORAGE_MODE=%s: %w", cfg.StorageMode, ErrNotPostgres)
	}

	if requireDirect {
		if cfg.DatabaseURLDirect == "" {
			return "", "", "", fmt.Errorf("DATABASE_URL_DIRECT is required for DDL/migrations")
		}
		return cfg.DatabaseURLDirect, "DATABASE_URL_DIRECT", "", nil
	}

	switch {
	case cfg.DatabaseURLDirect != "":
		return cfg.DatabaseURLDirect, "DATABASE_URL_DIRECT", "", nil
	case cfg.DatabaseURLRaw != "":
		return cfg.DatabaseURLRaw, "DATABASE_URL", "", nil
	case cfg.DatabaseURLPooled != "":
		return cfg.DatabaseURLPooled, "DATABASE_URL_POOLED", "using pooled connection for DDL is not recommended; set DATABASE_URL_DIRECT", nil
	}

	return "", "", "", fmt.Errorf("no database URL configured (set DATABASE_URL_DIRECT or DATABASE_URL)")
}

// ValidCommand reports whether cmd is a supported goose command.
func ValidCommand(cmd string) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}
