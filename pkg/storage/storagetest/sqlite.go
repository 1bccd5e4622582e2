// Package storagetest provides database fixtures for tests.
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/platinummonkey/collab/pkg/storage"
)

// Component pairs a migration set with the component name it is recorded under
type Component struct {
	Name       string
	Migrations []storage.Migration
}

var dbSeq atomic.Int64

// NewSQLite opens a private in-memory SQLite database, applies the given
// components' migrations in order and closes the database when the test ends.
func NewSQLite(t *testing.T, components ...Component) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("file:collabtest%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, _, err := storage.Open(context.Background(), storage.Config{
		Driver: string(storage.DialectSQLite),
		URL:    name,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, c := range components {
		if err := storage.Migrate(context.Background(), db, c.Name, c.Migrations); err != nil {
			t.Fatalf("Failed to migrate %s: %v", c.Name, err)
		}
	}

	return db
}

// Exec runs a fixture statement and fails the test on error
func Exec(t *testing.T, db *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("Failed to execute fixture %q: %v", query, err)
	}
}
