package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/collab/pkg/access"
	"github.com/platinummonkey/collab/pkg/contextkeys"
	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/grants"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/plans"
	"github.com/platinummonkey/collab/pkg/projects"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	opResolve = "resolve_role"
	opGrant   = "grant"
	opRevoke  = "revoke"
	opList    = "list_grants"
	opShared  = "shared_with"
	opPurge   = "purge_project"
)

// Engine makes every access decision for projects. It holds no state of its
// own beyond configuration and is safe for concurrent use.
type Engine struct {
	store   grants.Store
	plans   *plans.Table
	users   directory.UserLookup
	locker  Locker
	metrics *observability.Metrics
	logger  *observability.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithPlanTable replaces the built-in plan limits
func WithPlanTable(t *plans.Table) Option {
	return func(e *Engine) { e.plans = t }
}

// WithDirectory makes Grant reject targets the directory does not know
func WithDirectory(users directory.UserLookup) Option {
	return func(e *Engine) { e.users = users }
}

// WithLocker wraps Grant and Revoke in a per-project lock in addition to
// the store transaction
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithMetrics records decisions and latencies
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the fallback logger for calls whose context carries none
func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source used for granted-at timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over store
func New(store grants.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		plans:  plans.DefaultTable(),
		logger: observability.NewNopLogger(),
		tracer: observability.Tracer(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveRole returns actorID's role on project. The owner always resolves
// to RoleOwner; anyone else gets their stored grant or RoleNone. The store
// is read on every call.
func (e *Engine) ResolveRole(ctx context.Context, project *projects.Project, actorID string) (access.Role, error) {
	ctx, span := e.startSpan(ctx, opResolve, project, actorID)
	defer span.End()
	start := time.Now()

	role, err := e.resolveRole(ctx, e.store, project, actorID)
	if err != nil {
		err = e.wrapStorage(opResolve, project, actorID, err)
		e.finish(ctx, span, opResolve, start, err)
		return access.RoleNone, err
	}

	e.finish(ctx, span, opResolve, start, nil)
	span.SetAttributes(attribute.String("collab.role", role.String()))
	return role, nil
}

func (e *Engine) resolveRole(ctx context.Context, store grants.Store, project *projects.Project, actorID string) (access.Role, error) {
	if actorID == "" {
		return access.RoleNone, nil
	}
	if actorID == project.OwnerID {
		return access.RoleOwner, nil
	}

	g, err := store.Find(ctx, project.ID, actorID)
	if err != nil {
		return access.RoleNone, err
	}
	if g == nil {
		return access.RoleNone, nil
	}
	return g.Role, nil
}

// Authorize resolves actorID's role and checks that it includes capability.
// The resolved role is returned even when the check fails.
func (e *Engine) Authorize(ctx context.Context, project *projects.Project, actorID string, capability access.Capability) (access.Role, error) {
	role, err := e.ResolveRole(ctx, project, actorID)
	if err != nil {
		return role, err
	}
	if !role.Can(capability) {
		return role, fmt.Errorf("%w: %s on project %s requires %s", ErrForbidden, role, project.ID, capability)
	}
	return role, nil
}

// Grant gives targetID the role on project, or changes the role of an
// existing grant. Preconditions are checked in order and the first failure
// is returned before anything is written:
//
//  1. the actor must be the owner or a manager (ErrForbidden)
//  2. the target must not be the owner and must be a known user (ErrInvalidTarget)
//  3. the role must be viewer, editor or manager (ErrInvalidRole)
//  4. a manager may neither grant manager nor change another manager (ErrForbidden)
//  5. a new grant must fit the owner's plan (*QuotaExceededError)
//
// The count and the write happen in one transaction serialized per project.
func (e *Engine) Grant(ctx context.Context, project *projects.Project, actorID, targetID string, role access.Role) (*grants.Grant, error) {
	ctx, span := e.startSpan(ctx, opGrant, project, actorID)
	defer span.End()
	span.SetAttributes(
		attribute.String("collab.target_id", targetID),
		attribute.String("collab.requested_role", role.String()),
	)
	start := time.Now()

	// The directory may share the store's connection pool, so the target is
	// looked up before the transaction opens. Its outcome is still reported
	// in precondition order.
	targetErr := e.checkTarget(ctx, project, targetID)

	var result *grants.Grant
	err := e.withProjectLock(ctx, project.ID, func() error {
		return e.store.WithProjectTx(ctx, project.ID, func(tx grants.Store) error {
			actorRole, err := e.resolveRole(ctx, tx, project, actorID)
			if err != nil {
				return err
			}
			if !actorRole.CanManageMembers() {
				return fmt.Errorf("%w: %s cannot manage members of project %s", ErrForbidden, actorRole, project.ID)
			}

			if targetErr != nil {
				return targetErr
			}

			if !role.Grantable() {
				return fmt.Errorf("%w: %s cannot be granted", ErrInvalidRole, role)
			}

			existing, err := tx.Find(ctx, project.ID, targetID)
			if err != nil {
				return err
			}

			if actorRole == access.RoleManager {
				if role == access.RoleManager {
					return fmt.Errorf("%w: only the owner can grant the manager role", ErrForbidden)
				}
				if existing != nil && existing.Role == access.RoleManager {
					return fmt.Errorf("%w: only the owner can change a manager's role", ErrForbidden)
				}
			}

			if existing == nil {
				limit := e.plans.MaxCollaborators(project.OwnerPlan)
				count, err := tx.CountByProject(ctx, project.ID)
				if err != nil {
					return err
				}
				if count+1 > limit {
					return &QuotaExceededError{Plan: plans.ParseTier(string(project.OwnerPlan)), Limit: limit, Current: count}
				}
			}

			g, err := tx.Upsert(ctx, project.ID, targetID, role, actorID, e.now())
			if err != nil {
				return err
			}
			result = g
			return nil
		})
	})
	if err != nil {
		err = e.wrapStorage(opGrant, project, actorID, err)
		e.finish(ctx, span, opGrant, start, err)
		return nil, err
	}

	e.finish(ctx, span, opGrant, start, nil)
	e.log(ctx).WithFields(map[string]interface{}{
		"project_id": project.ID,
		"actor_id":   actorID,
		"target_id":  targetID,
		"role":       role.String(),
	}).Info("Access granted")
	return result, nil
}

// Revoke removes targetID's grant on project. Revoking a user without a
// grant succeeds without writing. Only the owner may revoke a manager.
func (e *Engine) Revoke(ctx context.Context, project *projects.Project, actorID, targetID string) error {
	ctx, span := e.startSpan(ctx, opRevoke, project, actorID)
	defer span.End()
	span.SetAttributes(attribute.String("collab.target_id", targetID))
	start := time.Now()

	removed := false
	err := e.withProjectLock(ctx, project.ID, func() error {
		return e.store.WithProjectTx(ctx, project.ID, func(tx grants.Store) error {
			actorRole, err := e.resolveRole(ctx, tx, project, actorID)
			if err != nil {
				return err
			}
			if !actorRole.CanManageMembers() {
				return fmt.Errorf("%w: %s cannot manage members of project %s", ErrForbidden, actorRole, project.ID)
			}

			if targetID == "" {
				return fmt.Errorf("%w: target user is required", ErrInvalidTarget)
			}
			if targetID == project.OwnerID {
				return fmt.Errorf("%w: the project owner cannot be removed", ErrInvalidTarget)
			}

			existing, err := tx.Find(ctx, project.ID, targetID)
			if err != nil {
				return err
			}
			if existing == nil {
				return nil
			}

			if existing.Role == access.RoleManager && actorRole != access.RoleOwner {
				return fmt.Errorf("%w: only the owner can remove a manager", ErrForbidden)
			}

			if err := tx.Delete(ctx, project.ID, targetID); err != nil {
				return err
			}
			removed = true
			return nil
		})
	})
	if err != nil {
		err = e.wrapStorage(opRevoke, project, actorID, err)
		e.finish(ctx, span, opRevoke, start, err)
		return err
	}

	e.finish(ctx, span, opRevoke, start, nil)
	if removed {
		e.log(ctx).WithFields(map[string]interface{}{
			"project_id": project.ID,
			"actor_id":   actorID,
			"target_id":  targetID,
		}).Info("Access revoked")
	}
	return nil
}

// ListGrants returns the project's grants in grant order
func (e *Engine) ListGrants(ctx context.Context, project *projects.Project) ([]*grants.Grant, error) {
	ctx, span := e.startSpan(ctx, opList, project, "")
	defer span.End()
	start := time.Now()

	list, err := e.store.ListByProject(ctx, project.ID)
	if err != nil {
		err = e.wrapStorage(opList, project, "", err)
	}
	e.finish(ctx, span, opList, start, err)
	return list, err
}

// SharedWith returns the grants userID holds on other users' projects
func (e *Engine) SharedWith(ctx context.Context, userID string) ([]*grants.Grant, error) {
	ctx, span := e.tracer.Start(ctx, "engine."+opShared, trace.WithAttributes(attribute.String("collab.actor_id", userID)))
	defer span.End()
	start := time.Now()

	list, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		err = &StorageError{Op: opShared, ActorID: userID, Err: err}
	}
	e.finish(ctx, span, opShared, start, err)
	return list, err
}

// PurgeProject deletes every grant on project. Only the owner may purge;
// it is meant to run alongside project deletion on stores without
// cascading foreign keys.
func (e *Engine) PurgeProject(ctx context.Context, project *projects.Project, actorID string) (int, error) {
	ctx, span := e.startSpan(ctx, opPurge, project, actorID)
	defer span.End()
	start := time.Now()

	var removed int
	err := e.store.WithProjectTx(ctx, project.ID, func(tx grants.Store) error {
		role, err := e.resolveRole(ctx, tx, project, actorID)
		if err != nil {
			return err
		}
		if !role.CanDeleteProject() {
			return fmt.Errorf("%w: only the owner can delete project %s", ErrForbidden, project.ID)
		}
		removed, err = tx.DeleteByProject(ctx, project.ID)
		return err
	})
	if err != nil {
		err = e.wrapStorage(opPurge, project, actorID, err)
		e.finish(ctx, span, opPurge, start, err)
		return 0, err
	}

	e.finish(ctx, span, opPurge, start, nil)
	e.log(ctx).WithField("project_id", project.ID).WithField("removed", removed).Info("Project grants purged")
	return removed, nil
}

func (e *Engine) checkTarget(ctx context.Context, project *projects.Project, targetID string) error {
	if targetID == "" {
		return fmt.Errorf("%w: target user is required", ErrInvalidTarget)
	}
	if targetID == project.OwnerID {
		return fmt.Errorf("%w: the project owner already has full access", ErrInvalidTarget)
	}
	if e.users == nil {
		return nil
	}

	if _, err := e.users.GetUser(ctx, targetID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return fmt.Errorf("%w: user %s does not exist", ErrInvalidTarget, targetID)
		}
		return err
	}
	return nil
}

func (e *Engine) withProjectLock(ctx context.Context, projectID string, fn func() error) error {
	if e.locker == nil {
		return fn()
	}

	start := time.Now()
	unlock, err := e.locker.Lock(ctx, "project:"+projectID)
	if e.metrics != nil {
		backend := "custom"
		if n, ok := e.locker.(namedLocker); ok {
			backend = n.Name()
		}
		e.metrics.LockWaitDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to lock project: %w", err)
	}
	defer unlock()

	return fn()
}

// wrapStorage passes precondition errors through and wraps everything else
func (e *Engine) wrapStorage(op string, project *projects.Project, actorID string, err error) error {
	if isDecision(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, ProjectID: project.ID, ActorID: actorID, Err: err}
}

func (e *Engine) startSpan(ctx context.Context, op string, project *projects.Project, actorID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(
		attribute.String("collab.project_id", project.ID),
		attribute.String("collab.actor_id", actorID),
	))
}

// finish records the outcome of op on the span, in metrics and in the log
func (e *Engine) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	kind := KindOf(err)
	outcome := "allowed"
	if kind != KindNone {
		outcome = string(kind)
	}

	if err != nil {
		span.SetAttributes(attribute.String("collab.outcome", outcome))
		if kind == KindStorage {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if e.metrics != nil {
		e.metrics.AccessDecisionsTotal.WithLabelValues(op, outcome).Inc()
		e.metrics.AccessOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		switch kind {
		case KindQuotaExceeded:
			var quota *QuotaExceededError
			errors.As(err, &quota)
			e.metrics.QuotaRejectionsTotal.WithLabelValues(string(quota.Plan)).Inc()
		case KindStorage:
			e.metrics.StorageErrorsTotal.WithLabelValues(op).Inc()
		}
	}

	switch kind {
	case KindNone:
	case KindStorage:
		e.log(ctx).WithError(err).WithField("operation", op).Error("Access operation failed")
	default:
		e.log(ctx).WithError(err).WithField("operation", op).Debug("Access denied")
	}
}

func (e *Engine) log(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, e.logger)
}
