// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that the
// packages setting a value and the packages reading it agree on one key.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/collab/pkg/contextkeys"
//	ctx = contextkeys.WithUserID(ctx, userID)
//	userID := contextkeys.GetUserID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses, tracing attributes
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's opaque id
	// Set by: middleware.IdentityMiddleware from the auth provider's header
	// Used by: api handlers as the acting user, logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers and the engine for request-scoped structured logging
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
