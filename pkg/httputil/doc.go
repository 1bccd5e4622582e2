// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "role is required")
//	httputil.WriteErrorResponse(w, r, http.StatusPaymentRequired, httputil.ErrorResponse{
//		Error: err.Error(),
//		Code:  "quota_exceeded",
//	})
//
// Error bodies carry the request ID when RequestIDMiddleware ran.
//
// # Request Parsing
//
//	var req GrantRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	projectID, ok := httputil.ParsePathStringOrError(w, r, "project_id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.TimeoutMiddleware(10*time.Second),
//		httputil.MaxBytesMiddleware(64*1024),
//	)
//
// # Related Packages
//
//   - pkg/middleware: caller identity
//   - pkg/api: the handlers built on these helpers
package httputil
