package engine

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/collab/pkg/plans"
	"github.com/platinummonkey/collab/pkg/projects"
)

var (
	// ErrForbidden means the actor's role does not allow the operation
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTarget means the operation targets the owner or an
	// unknown user
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidRole means the requested role cannot be granted
	ErrInvalidRole = errors.New("invalid role")
)

// QuotaExceededError is returned when a new grant would take a project past
// its owner's plan limit
type QuotaExceededError struct {
	Plan    plans.Tier
	Limit   int
	Current int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("collaborator limit reached: the %s plan allows %d collaborators per project and this project has %d; upgrade the plan to add more",
		e.Plan, e.Limit, e.Current)
}

// StorageError wraps a persistence or dependency failure with the operation
// it interrupted. It is the only retryable error the engine returns.
type StorageError struct {
	Op        string
	ProjectID string
	ActorID   string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s on project %s by %s: %v", e.Op, e.ProjectID, e.ActorID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Kind classifies engine errors for callers that map them to responses
type Kind string

const (
	KindNone          Kind = ""
	KindForbidden     Kind = "forbidden"
	KindInvalidTarget Kind = "invalid_target"
	KindInvalidRole   Kind = "invalid_role"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindStorage       Kind = "storage"
	KindNotFound      Kind = "not_found"
	KindUnknown       Kind = "unknown"
)

// KindOf returns the kind of err, KindNone for nil and KindUnknown for
// errors the engine does not produce
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var quota *QuotaExceededError
	var storage *StorageError
	switch {
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidTarget):
		return KindInvalidTarget
	case errors.Is(err, ErrInvalidRole):
		return KindInvalidRole
	case errors.As(err, &quota):
		return KindQuotaExceeded
	case errors.Is(err, projects.ErrProjectNotFound):
		return KindNotFound
	case errors.As(err, &storage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// Retryable reports whether err is a transient failure the caller may retry
func Retryable(err error) bool {
	var storage *StorageError
	return errors.As(err, &storage)
}

// isDecision reports whether err is a precondition outcome rather than a failure
func isDecision(err error) bool {
	switch KindOf(err) {
	case KindForbidden, KindInvalidTarget, KindInvalidRole, KindQuotaExceeded:
		return true
	}
	return false
}
