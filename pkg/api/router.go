package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/collab/pkg/httputil"
	"github.com/platinummonkey/collab/pkg/middleware"
	"github.com/platinummonkey/collab/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterConfig holds the middleware settings for the API router
type RouterConfig struct {
	Logger   *observability.Logger
	Identity *middleware.IdentityMiddleware
	// RateLimit guards membership changes; nil disables it
	RateLimit *middleware.RateLimitMiddleware
	// Metrics records per-route HTTP metrics; nil disables them
	Metrics        *observability.Metrics
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter builds the API handler: request ids, logging, panic recovery and
// tracing around a mux router that requires a caller identity.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Identity == nil {
		cfg.Identity = middleware.NewIdentityMiddleware("", false)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})
	if cfg.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	router.Use(
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
		cfg.Identity.Handler,
	)

	var mutations func(http.Handler) http.Handler
	if cfg.RateLimit != nil {
		mutations = cfg.RateLimit.Handler
	}
	h.RegisterRoutes(router, mutations)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(cfg.Logger),
		httputil.RecoveryMiddleware(cfg.Logger),
		httputil.TimeoutMiddleware(cfg.RequestTimeout),
	)(router)

	return otelhttp.NewHandler(handler, "collab.api")
}
