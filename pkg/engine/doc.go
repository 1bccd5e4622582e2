// Package engine is the single decision point for project access.
//
// Every read or write of project membership goes through an Engine:
// ResolveRole and Authorize answer "what may this user do here", Grant and
// Revoke change membership. Grant and Revoke run their checks and their
// write inside one transaction serialized per project (grants.Store's
// WithProjectTx), optionally wrapped in a Locker for deployments that need
// a cross-process lock. That keeps the collaborator count and the write
// atomic, so concurrent grants cannot overshoot a plan's quota.
//
// Errors are classified with KindOf:
//
//	ErrForbidden          actor lacks the required role
//	ErrInvalidTarget      target is the owner or an unknown user
//	ErrInvalidRole        role is not viewer, editor or manager
//	*QuotaExceededError   the owner's plan has no free seat
//	*StorageError         the store or directory failed; Retryable
//
// A failed operation never leaves a partial write behind.
package engine
