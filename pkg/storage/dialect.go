package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect identifies the SQL backend. Queries are written with $N
// placeholders, which both drivers accept.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// ParseDialect maps a driver name to a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s (must be postgres or sqlite3)", driver)
	}
}

// DriverName returns the database/sql driver name
func (d Dialect) DriverName() string {
	return string(d)
}

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// LockKey takes a transaction-scoped lock on key. On PostgreSQL this is an
// advisory lock released at commit or rollback. SQLite serializes writers
// itself once the transaction has begun IMMEDIATE, so nothing is issued.
func (d Dialect) LockKey(ctx context.Context, tx Execer, key string) error {
	switch d {
	case DialectPostgres:
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}
		return nil
	case DialectSQLite:
		return nil
	default:
		return fmt.Errorf("unsupported dialect: %s", d)
	}
}
