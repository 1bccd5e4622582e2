package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"sqlite3", DialectSQLite, false},
		{"sqlite", DialectSQLite, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := ParseDialect(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_txlock=immediate&_foreign_keys=on", SQLiteDSN(":memory:"))
	assert.Equal(t, "file:x.db?mode=rwc&_txlock=immediate&_foreign_keys=on", SQLiteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "file:x.db?_txlock=deferred&_fk=1", SQLiteDSN("file:x.db?_txlock=deferred&_fk=1"))
}

func TestDialectLockKey(t *testing.T) {
	t.Run("postgres takes an advisory lock", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
			WithArgs("project:p1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, DialectPostgres.LockKey(context.Background(), db, "project:p1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlite is a no-op", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, DialectSQLite.LockKey(context.Background(), db, "project:p1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite in memory", func(t *testing.T) {
		db, dialect, err := Open(ctx, Config{Driver: "sqlite3", URL: ":memory:"})
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, DialectSQLite, dialect)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})

	t.Run("missing url", func(t *testing.T) {
		_, _, err := Open(ctx, Config{Driver: "postgres"})
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, _, err := Open(ctx, Config{Driver: "oracle", URL: "x"})
		assert.Error(t, err)
	})
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, Config{Driver: "sqlite3", URL: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{Version: 2, Description: "add column", SQL: `ALTER TABLE widgets ADD COLUMN color TEXT`},
		{Version: 1, Description: "create widgets", SQL: `CREATE TABLE widgets (id TEXT PRIMARY KEY)`},
	}

	require.NoError(t, Migrate(ctx, db, "widgets", migrations))
	// Second run is a no-op; re-applying ALTER TABLE would fail
	require.NoError(t, Migrate(ctx, db, "widgets", migrations))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE component = $1`, "widgets").Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.Exec(`INSERT INTO widgets (id, color) VALUES ($1, $2)`, "w1", "red")
	assert.NoError(t, err)
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db, _, err := Open(ctx, Config{Driver: "sqlite3", URL: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(ctx, db, "broken", []Migration{
		{Version: 1, Description: "bad sql", SQL: `CREATE TABLE (`},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without url", func(t *testing.T) {
		client, err := OpenRedis(ctx, Config{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects to miniredis", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		client, err := OpenRedis(ctx, Config{RedisURL: "redis://" + mr.Addr(), RedisPoolSize: 5})
		require.NoError(t, err)
		defer client.Close()

		assert.NoError(t, client.Ping(ctx).Err())
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := OpenRedis(ctx, Config{RedisURL: "not a url"})
		assert.Error(t, err)
	})
}
