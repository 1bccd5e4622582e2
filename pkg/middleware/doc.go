// Package middleware provides the HTTP middleware that establishes who is
// calling and how often they may change memberships.
//
// # Identity
//
// Authentication happens upstream. The gateway forwards the authenticated
// user id in a trusted header, X-Authenticated-User-Id by default:
//
//	identity := middleware.NewIdentityMiddleware(cfg.IdentityHeader, false)
//	router.Use(identity.Handler)
//	// handlers read middleware.UserID(r)
//
// Requests without the header get 401.
//
// # Rate Limiting
//
// Membership changes are limited per acting user (per client address when
// anonymous). RateLimiter is an in-process token bucket; DistributedRateLimiter
// keeps fixed-window counters in Redis so all instances share one budget.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "")
//	mutations.Use(middleware.NewRateLimitMiddleware(limiter).Handler)
//
// Default: 60 req/min, 10 burst. Limiter errors fail open.
//
// # Related Packages
//
//   - pkg/httputil: request ids, logging and error bodies
//   - pkg/api: the routes these wrap
package middleware
