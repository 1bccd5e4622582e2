package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Open connects to the configured database, applies pool settings and
// verifies the connection with a ping bounded by cfg.Timeout.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	if cfg.URL == "" {
		return nil, "", fmt.Errorf("database URL is required")
	}

	dsn := cfg.URL
	if dialect == DialectSQLite {
		dsn = SQLiteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite has a single writer; one connection also keeps :memory:
		// databases from splitting across the pool.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MinConns)
		db.SetConnMaxLifetime(cfg.MaxLifetime)
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}

	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	return db, dialect, nil
}

// SQLiteDSN adds the connection parameters the stores rely on: IMMEDIATE
// transactions (so a transaction holds the write lock from BEGIN) and
// foreign key enforcement (so grants cascade with their project).
func SQLiteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_foreign_keys=") && !strings.Contains(dsn, "_fk=") {
		params = append(params, "_foreign_keys=on")
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
