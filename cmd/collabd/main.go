package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/collab/pkg/api"
	"github.com/platinummonkey/collab/pkg/async"
	"github.com/platinummonkey/collab/pkg/config"
	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/engine"
	"github.com/platinummonkey/collab/pkg/grants"
	"github.com/platinummonkey/collab/pkg/lock"
	"github.com/platinummonkey/collab/pkg/members"
	"github.com/platinummonkey/collab/pkg/middleware"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/plans"
	"github.com/platinummonkey/collab/pkg/projects"
	"github.com/platinummonkey/collab/pkg/quotaaudit"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	migrateOnly  = flag.Bool("migrate-only", false, "Apply database migrations and exit")
	auditOnce    = flag.Bool("audit-once", false, "Run the quota audit once, print the report and exit")
	auditTimeout = flag.Duration("audit-timeout", 5*time.Minute, "Maximum duration of one quota audit run")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Info("Starting collab access control service")

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Service failed: %v", err)
	}
	logger.Info("Service stopped")
}

func setupLogger(level observability.LogLevel) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level.String())
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx := context.Background()
	svcLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, svcLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, dialect, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.Infof("Connected to %s database", dialect)

	if err := migrate(ctx, db, cfg.Access.ManageHostSchema, logger); err != nil {
		db.Close()
		return err
	}
	if *migrateOnly {
		logger.Info("Migrations applied")
		return db.Close()
	}

	redisClient, err := storage.OpenRedis(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return err
	}
	if redisClient != nil {
		logger.Info("Connected to Redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	table, err := plans.LoadTableFile(cfg.Access.PlansFile)
	if err != nil {
		return err
	}
	for _, tier := range table.Tiers() {
		logger.Debugf("Plan %s allows %d collaborators per project", tier, table.MaxCollaborators(tier))
	}

	store := grants.NewSQLStore(db, dialect)
	repo := projects.NewSQLRepository(db)
	dir := directory.NewCachedDirectory(directory.NewSQLDirectory(db), cfg.Access.DirectoryCacheSize, cfg.Access.DirectoryCacheTTL, metrics)

	opts := []engine.Option{
		engine.WithPlanTable(table),
		engine.WithDirectory(dir),
		engine.WithLogger(svcLogger),
	}
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}
	if locker := newLocker(cfg.Access, redisClient, svcLogger); locker != nil {
		logger.Infof("Using %s project lock", cfg.Access.LockBackend)
		opts = append(opts, engine.WithLocker(locker))
	}
	eng := engine.New(store, opts...)

	auditor := quotaaudit.NewAuditor(store, repo, dir, table, metrics, svcLogger)
	if *auditOnce {
		return runAuditOnce(auditor, db)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	handlers := api.NewHandlers(eng, repo, members.NewView(store, dir), dir, cfg.Access.UpgradeURL)
	router := api.NewRouter(handlers, api.RouterConfig{
		Logger:         svcLogger,
		Identity:       middleware.NewIdentityMiddleware(cfg.Server.IdentityHeader, false),
		RateLimit:      newRateLimit(serveCtx, cfg.Access, redisClient),
		Metrics:        metrics,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := cron.New()
	if cfg.Access.QuotaAuditSchedule != "" {
		if _, err := auditor.Schedule(scheduler, cfg.Access.QuotaAuditSchedule, *auditTimeout); err != nil {
			return fmt.Errorf("failed to schedule quota audit: %w", err)
		}
		scheduler.Start()
		logger.Infof("Quota audit schedule: %s", cfg.Access.QuotaAuditSchedule)
	}

	if metrics != nil {
		async.SafeGo(serveCtx, svcLogger, 0, "db stats", func(ctx context.Context) error {
			recordDBStats(ctx, db, metrics)
			return nil
		})
	}

	shutdown := observability.NewShutdownManager(svcLogger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, svcLogger)
	})
	// Shutdown funcs run concurrently, so the audit must finish before the
	// connections it uses are closed.
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
		cancel()
		if redisClient != nil {
			redisClient.Close()
		}
		return db.Close()
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func() {
			logger.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serveErr <- fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
		}()
	}

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		select {
		case err := <-serveErr:
			logger.Error(err)
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	return shutdown.WaitForShutdown(waitCtx)
}

type component struct {
	name       string
	migrations []storage.Migration
}

// migrate applies the schema. The projects and users tables belong to the
// host application unless hostSchema is set.
func migrate(ctx context.Context, db *sql.DB, hostSchema bool, logger *logrus.Logger) error {
	var components []component
	if hostSchema {
		components = append(components,
			component{directory.Component, directory.Migrations()},
			component{projects.Component, projects.Migrations()},
		)
	}
	components = append(components, component{grants.Component, grants.Migrations()})

	for _, c := range components {
		if err := storage.Migrate(ctx, db, c.name, c.migrations); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", c.name, err)
		}
		logger.Debugf("Migrated %s", c.name)
	}
	return nil
}

func newLocker(cfg config.AccessConfig, redisClient *redis.Client, logger *observability.Logger) engine.Locker {
	switch cfg.LockBackend {
	case config.LockBackendLocal:
		return engine.NewKeyedLocker()
	case config.LockBackendRedis:
		locker := lock.NewRedisLocker(redisClient, "collab:lock:", cfg.LockTTL, cfg.LockWaitTimeout)
		locker.SetLogger(logger)
		return locker
	default:
		return nil
	}
}

func newRateLimit(ctx context.Context, cfg config.AccessConfig, redisClient *redis.Client) *middleware.RateLimitMiddleware {
	if cfg.MutationRateLimit <= 0 {
		return nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.MutationRateLimit,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.MutationRateBurst,
	}

	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, limits, "collab:ratelimit")
	} else {
		local := middleware.NewRateLimiter(limits)
		local.StartCleanup(ctx)
		limiter = local
	}

	rl := middleware.NewRateLimitMiddleware(limiter)
	rl.SetFailOpen(cfg.RateLimitFailOpen)
	return rl
}

func recordDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.RecordDBStats(db.Stats())
		case <-ctx.Done():
			return
		}
	}
}

func runAuditOnce(auditor *quotaaudit.Auditor, db *sql.DB) error {
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *auditTimeout)
	defer cancel()

	report, err := auditor.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
