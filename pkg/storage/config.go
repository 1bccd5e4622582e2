package storage

import "time"

// Config holds database and Redis connection settings
type Config struct {
	// Driver is "postgres" or "sqlite3"
	Driver string
	URL    string

	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration

	// Redis is optional; an empty URL disables it
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          string(DialectPostgres),
		MaxConns:        20,
		MinConns:        2,
		Timeout:         10 * time.Second,
		MaxLifetime:     30 * time.Minute,
		MaxIdleTime:     5 * time.Minute,
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	}
}
