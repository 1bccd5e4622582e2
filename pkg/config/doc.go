// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	COLLAB_HOST="0.0.0.0"
//	COLLAB_PORT="8080"
//	COLLAB_HEALTH_PORT="9090"
//	COLLAB_REQUEST_TIMEOUT="10s"
//	COLLAB_IDENTITY_HEADER="X-Authenticated-User-Id"
//
// Storage settings:
//
//	COLLAB_DATABASE_DRIVER="postgres"  # postgres, sqlite3
//	COLLAB_DATABASE_URL="postgres://localhost/app?sslmode=disable"
//	COLLAB_DATABASE_MAX_CONNS="20"
//	COLLAB_REDIS_URL="redis://localhost:6379"
//
// Access control settings:
//
//	COLLAB_MANAGE_HOST_SCHEMA="false"     # create projects/users tables (dev only)
//	COLLAB_PLANS_FILE="/etc/collab/plans.yaml"
//	COLLAB_UPGRADE_URL="https://example.com/billing"
//	COLLAB_LOCK_BACKEND="none"            # none, local, redis
//	COLLAB_LOCK_TTL="10s"
//	COLLAB_DIRECTORY_CACHE_SIZE="4096"
//	COLLAB_DIRECTORY_CACHE_TTL="1m"
//	COLLAB_MUTATION_RATE_LIMIT="60"       # per user per minute, 0 disables
//	COLLAB_QUOTA_AUDIT_SCHEDULE="0 * * * *"
//
// Observability settings:
//
//	COLLAB_LOG_LEVEL="info"
//	COLLAB_METRICS_ENABLED="true"
//	COLLAB_OTEL_ENABLED="false"
//	COLLAB_OTEL_ENDPOINT="localhost:4317"
//	COLLAB_OTEL_SAMPLE_RATIO="1.0"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadConfig validates before returning; the redis lock backend requires
// COLLAB_REDIS_URL.
package config
