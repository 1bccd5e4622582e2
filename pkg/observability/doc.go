// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Logger writes JSON lines through log/slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("project_id", projectID).Info("grant applied")
//
// Request-scoped loggers travel in the context. FromContext adds the request
// ID, the acting user and the active trace/span IDs:
//
//	observability.FromContext(ctx).WithError(err).Error("revoke failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AccessDecisionsTotal.WithLabelValues("grant", "quota_exceeded").Inc()
//
// HTTPMetricsMiddleware must run inside a gorilla/mux router (router.Use) so
// requests are labelled by route template.
//
// # OpenTelemetry
//
// InitOTel installs OTLP/gRPC trace and metric providers globally. Tracer()
// returns the service tracer; with OTel disabled it is a no-op.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// /health/live always answers 200; /health/ready answers 503 when the
// database is unreachable and reports "degraded" when only Redis is down.
package observability
