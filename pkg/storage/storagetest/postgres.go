//go:build integration

package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewPostgres starts a disposable PostgreSQL container, applies the given
// components' migrations and tears everything down when the test ends. The
// test is skipped when no container runtime is available.
func NewPostgres(t *testing.T, components ...Component) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("collab_test"),
		postgres.WithUsername("collab"),
		postgres.WithPassword("collab_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		// fresh context: the test's may already be cancelled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	cfg := storage.DefaultConfig()
	cfg.URL = connStr
	db, _, err := storage.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, c := range components {
		if err := storage.Migrate(ctx, db, c.Name, c.Migrations); err != nil {
			t.Fatalf("Failed to migrate %s: %v", c.Name, err)
		}
	}

	return db
}
