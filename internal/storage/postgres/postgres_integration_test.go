//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/dbmigrate"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/storage/storagetest"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedConnStr string
	sharedOnce    sync.Once
	sharedErr     error
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedOnce.Do(func() {
		sharedConnStr, sharedErr = startPostgres()
	})
	if sharedErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedErr)
	}
	return sharedConnStr
}

func startPostgres() (string, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "meals",
			"POSTGRES_USER":     "meals",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://meals:test_password@%s:%s/meals?sslmode=disable", host, port.Port())
	if err := dbmigrate.Run("up", connStr, dbmigrate.EmbeddedMigrations); err != nil {
		return "", err
	}
	return connStr, nil
}

func TestPostgresStorage(t *testing.T) {
	connStr := testDatabaseURL(t)

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := New(ctx, connStr)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		_, err = s.pool.Exec(ctx, `
			TRUNCATE plan_entries, adherence_records, recipe_infos, recipe_leases,
			         profiles, ai_models, activity_log, admins, exports CASCADE
		`)
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
