// Package storage opens the relational database and Redis connections shared
// by the stores, and applies their schema migrations.
//
// Two SQL backends are supported:
//
//   - PostgreSQL (github.com/lib/pq) for production. Per-project writes are
//     serialized with pg_advisory_xact_lock.
//   - SQLite (github.com/mattn/go-sqlite3) for local development and tests.
//     Connections are opened with _txlock=immediate and _foreign_keys=on and
//     the pool is capped at one connection.
//
// All queries use $N placeholders, which both drivers accept as long as
// parameters appear in ascending order in the statement text.
//
// # Migrations
//
// Each component (grants, projects, directory) owns a []Migration slice.
// Migrate records applied versions per component in schema_migrations:
//
//	if err := storage.Migrate(ctx, db, "grants", grants.Migrations()); err != nil {
//		return err
//	}
package storage
