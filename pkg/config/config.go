package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
)

// Lock backends
const (
	LockBackendNone  = "none"
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Access control configuration
	Access AccessConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// IdentityHeader carries the authenticated user id from the gateway
	IdentityHeader string
}

// AccessConfig holds settings for the access control engine and the jobs around it
type AccessConfig struct {
	// ManageHostSchema creates the projects and users mirror tables. Leave it
	// off when the host application owns them.
	ManageHostSchema bool

	// PlansFile overrides the built-in plan limits (YAML)
	PlansFile string
	// UpgradeURL is returned with quota errors
	UpgradeURL string

	LockBackend     string
	LockTTL         time.Duration
	LockWaitTimeout time.Duration

	DirectoryCacheSize int
	DirectoryCacheTTL  time.Duration

	// MutationRateLimit is the number of membership changes a user may make
	// per minute; 0 disables limiting
	MutationRateLimit int
	MutationRateBurst int
	// RateLimitFailOpen lets membership changes through when the limiter
	// backend is unavailable; false rejects them with 503
	RateLimitFailOpen bool

	// QuotaAuditSchedule is a cron spec; empty disables the audit
	QuotaAuditSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Access:        loadAccessConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("COLLAB_HOST", "0.0.0.0"),
		Port:            getEnv("COLLAB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("COLLAB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COLLAB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("COLLAB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("COLLAB_SHUTDOWN_TIMEOUT", 30*time.Second),
		RequestTimeout:  getEnvDuration("COLLAB_REQUEST_TIMEOUT", 10*time.Second),
		HealthPort:      getEnv("COLLAB_HEALTH_PORT", "9090"),
		IdentityHeader:  getEnv("COLLAB_IDENTITY_HEADER", "X-Authenticated-User-Id"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("COLLAB_DATABASE_DRIVER", ""); driver != "" {
		cfg.Driver = driver
	}
	cfg.URL = getEnv("COLLAB_DATABASE_URL", "")
	if maxConns := getEnvInt("COLLAB_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("COLLAB_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("COLLAB_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	// Redis config
	cfg.RedisURL = getEnv("COLLAB_REDIS_URL", "")
	if redisPassword := getEnv("COLLAB_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("COLLAB_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("COLLAB_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("COLLAB_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadAccessConfig loads access control settings from environment
func loadAccessConfig() AccessConfig {
	return AccessConfig{
		ManageHostSchema:   getEnvBool("COLLAB_MANAGE_HOST_SCHEMA", false),
		PlansFile:          getEnv("COLLAB_PLANS_FILE", ""),
		UpgradeURL:         getEnv("COLLAB_UPGRADE_URL", ""),
		LockBackend:        strings.ToLower(getEnv("COLLAB_LOCK_BACKEND", LockBackendNone)),
		LockTTL:            getEnvDuration("COLLAB_LOCK_TTL", 10*time.Second),
		LockWaitTimeout:    getEnvDuration("COLLAB_LOCK_WAIT_TIMEOUT", 5*time.Second),
		DirectoryCacheSize: getEnvInt("COLLAB_DIRECTORY_CACHE_SIZE", 4096),
		DirectoryCacheTTL:  getEnvDuration("COLLAB_DIRECTORY_CACHE_TTL", time.Minute),
		MutationRateLimit:  getEnvInt("COLLAB_MUTATION_RATE_LIMIT", 60),
		MutationRateBurst:  getEnvInt("COLLAB_MUTATION_RATE_BURST", 10),
		RateLimitFailOpen:  getEnvBool("COLLAB_RATE_LIMIT_FAIL_OPEN", true),
		QuotaAuditSchedule: getEnv("COLLAB_QUOTA_AUDIT_SCHEDULE", "0 * * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("COLLAB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("COLLAB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("COLLAB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("COLLAB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("COLLAB_OTEL_SERVICE_NAME", "collab"),
		OTelServiceVersion: getEnv("COLLAB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("COLLAB_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("COLLAB_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if strings.TrimSpace(c.Server.IdentityHeader) == "" {
		return fmt.Errorf("identity header is required")
	}

	// Validate storage config
	if _, err := storage.ParseDialect(c.Storage.Driver); err != nil {
		return err
	}
	if c.Storage.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	// Validate access config
	switch c.Access.LockBackend {
	case LockBackendNone, LockBackendLocal:
	case LockBackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("invalid lock backend: %s (must be none, local, or redis)", c.Access.LockBackend)
	}
	if c.Access.LockBackend != LockBackendNone && c.Access.LockTTL <= 0 {
		return fmt.Errorf("lock TTL must be positive")
	}
	if c.Access.MutationRateLimit < 0 || c.Access.MutationRateBurst < 0 {
		return fmt.Errorf("mutation rate limit must not be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
