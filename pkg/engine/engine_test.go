package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/collab/pkg/access"
	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/grants"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/plans"
	"github.com/platinummonkey/collab/pkg/projects"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/platinummonkey/collab/pkg/storage/storagetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "owner"

// stepClock advances one second per call so grant order is deterministic
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	engine  *Engine
	store   *grants.SQLStore
	project *projects.Project
}

func newFixture(t *testing.T, plan plans.Tier, opts ...Option) *fixture {
	t.Helper()

	db := storagetest.NewSQLite(t,
		storagetest.Component{Name: projects.Component, Migrations: projects.Migrations()},
		storagetest.Component{Name: grants.Component, Migrations: grants.Migrations()},
	)
	storagetest.Exec(t, db, `INSERT INTO projects (id, name, owner_id) VALUES ('p1', 'Website', $1)`, owner)

	store := grants.NewSQLStore(db, storage.DialectSQLite)
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	return &fixture{
		engine:  New(store, opts...),
		store:   store,
		project: &projects.Project{ID: "p1", OwnerID: owner, OwnerPlan: plan},
	}
}

func (f *fixture) grant(t *testing.T, actor, target string, role access.Role) {
	t.Helper()
	_, err := f.engine.Grant(context.Background(), f.project, actor, target, role)
	require.NoError(t, err)
}

func (f *fixture) role(t *testing.T, user string) access.Role {
	t.Helper()
	role, err := f.engine.ResolveRole(context.Background(), f.project, user)
	require.NoError(t, err)
	return role
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.store.CountByProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	return n
}

func TestResolveRole_OwnerTakesPrecedence(t *testing.T) {
	f := newFixture(t, plans.TierTeam)

	// a stray grant row for the owner must not demote them
	_, err := f.store.Upsert(context.Background(), "p1", owner, access.RoleViewer, owner, time.Now())
	require.NoError(t, err)

	assert.Equal(t, access.RoleOwner, f.role(t, owner))
}

func TestResolveRole_NoGrant(t *testing.T) {
	f := newFixture(t, plans.TierTeam)

	assert.Equal(t, access.RoleNone, f.role(t, "stranger"))
	assert.Equal(t, access.RoleNone, f.role(t, ""))
}

func TestGrant_ThenResolve(t *testing.T) {
	f := newFixture(t, plans.TierTeam)

	for i, role := range access.GrantableRoles() {
		user := fmt.Sprintf("user-%d", i)
		g, err := f.engine.Grant(context.Background(), f.project, owner, user, role)
		require.NoError(t, err)
		assert.Equal(t, role, g.Role)
		assert.Equal(t, owner, g.GrantedBy)
		assert.Equal(t, role, f.role(t, user))
	}
}

func TestRevoke_ThenResolveNone(t *testing.T) {
	f := newFixture(t, plans.TierPro)
	f.grant(t, owner, "bob", access.RoleEditor)

	require.NoError(t, f.engine.Revoke(context.Background(), f.project, owner, "bob"))
	assert.Equal(t, access.RoleNone, f.role(t, "bob"))

	// second revoke is a no-op
	require.NoError(t, f.engine.Revoke(context.Background(), f.project, owner, "bob"))
	require.NoError(t, f.engine.Revoke(context.Background(), f.project, owner, "never-granted"))
}

func TestGrant_PreconditionOrder(t *testing.T) {
	f := newFixture(t, plans.TierFree)
	// seed collaborators directly; the free plan would reject them
	ctx := context.Background()
	_, err := f.store.Upsert(ctx, "p1", "viewer", access.RoleViewer, owner, time.Now())
	require.NoError(t, err)
	_, err = f.store.Upsert(ctx, "p1", "editor", access.RoleEditor, owner, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		actor  string
		target string
		role   access.Role
		want   Kind
	}{
		{"stranger with every other fault", "stranger", owner, access.RoleOwner, KindForbidden},
		{"viewer", "viewer", "bob", access.RoleViewer, KindForbidden},
		{"editor", "editor", "bob", access.RoleViewer, KindForbidden},
		{"owner as target with bad role", owner, owner, access.RoleOwner, KindInvalidTarget},
		{"empty target", owner, "", access.RoleViewer, KindInvalidTarget},
		{"owner role over quota", owner, "bob", access.RoleOwner, KindInvalidRole},
		{"none role", owner, "bob", access.RoleNone, KindInvalidRole},
		{"quota last", owner, "bob", access.RoleViewer, KindQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Grant(ctx, f.project, tt.actor, tt.target, tt.role)
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err), err.Error())
			assert.False(t, Retryable(err))
			assert.Equal(t, 2, f.count(t), "failed grant must not write")
		})
	}
}

func TestRevoke_PreconditionOrder(t *testing.T) {
	f := newFixture(t, plans.TierTeam)
	f.grant(t, owner, "viewer", access.RoleViewer)

	err := f.engine.Revoke(context.Background(), f.project, "viewer", owner)
	assert.ErrorIs(t, err, ErrForbidden)

	err = f.engine.Revoke(context.Background(), f.project, "stranger", "viewer")
	assert.ErrorIs(t, err, ErrForbidden)

	err = f.engine.Revoke(context.Background(), f.project, owner, owner)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Contains(t, err.Error(), "owner cannot be removed")

	err = f.engine.Revoke(context.Background(), f.project, owner, "")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Contains(t, err.Error(), "target user is required")

	assert.Equal(t, access.RoleViewer, f.role(t, "viewer"))
}

func TestEscalationGuard(t *testing.T) {
	f := newFixture(t, plans.TierTeam)
	ctx := context.Background()
	f.grant(t, owner, "mgr", access.RoleManager)
	f.grant(t, owner, "peer", access.RoleManager)
	f.grant(t, owner, "ed", access.RoleEditor)

	_, err := f.engine.Grant(ctx, f.project, "mgr", "newbie", access.RoleManager)
	assert.ErrorIs(t, err, ErrForbidden, "manager cannot create managers")

	_, err = f.engine.Grant(ctx, f.project, "mgr", "peer", access.RoleViewer)
	assert.ErrorIs(t, err, ErrForbidden, "manager cannot demote a manager")

	_, err = f.engine.Grant(ctx, f.project, "mgr", "ed", access.RoleManager)
	assert.ErrorIs(t, err, ErrForbidden, "manager cannot promote to manager")

	err = f.engine.Revoke(ctx, f.project, "mgr", "peer")
	assert.ErrorIs(t, err, ErrForbidden, "manager cannot remove a manager")
	assert.Equal(t, access.RoleManager, f.role(t, "peer"))

	g, err := f.engine.Grant(ctx, f.project, "mgr", "ed", access.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, access.RoleViewer, g.Role)

	f.grant(t, "mgr", "newbie", access.RoleEditor)
	assert.Equal(t, access.RoleEditor, f.role(t, "newbie"))

	// the owner can do all of it
	f.grant(t, owner, "peer", access.RoleEditor)
	require.NoError(t, f.engine.Revoke(ctx, f.project, owner, "mgr"))
	assert.Equal(t, access.RoleNone, f.role(t, "mgr"))
}

func TestScenarioA_FreePlanHasNoSeats(t *testing.T) {
	f := newFixture(t, plans.TierFree)

	_, err := f.engine.Grant(context.Background(), f.project, owner, "userX", access.RoleViewer)

	var quota *QuotaExceededError
	require.True(t, errors.As(err, &quota))
	assert.Equal(t, plans.TierFree, quota.Plan)
	assert.Equal(t, 0, quota.Limit)
	assert.Equal(t, 0, quota.Current)
	assert.Contains(t, err.Error(), "upgrade")
	assert.Zero(t, f.count(t))
}

func TestScenarioB_ProPlanFourthSeat(t *testing.T) {
	f := newFixture(t, plans.TierPro)
	f.grant(t, owner, "a", access.RoleViewer)
	f.grant(t, owner, "b", access.RoleViewer)
	f.grant(t, owner, "c", access.RoleViewer)

	_, err := f.engine.Grant(context.Background(), f.project, owner, "d", access.RoleViewer)
	var quota *QuotaExceededError
	require.True(t, errors.As(err, &quota))
	assert.Equal(t, plans.TierPro, quota.Plan)
	assert.Equal(t, 3, quota.Limit)
	assert.Equal(t, 3, quota.Current)
	assert.Equal(t, 3, f.count(t))
	assert.Equal(t, access.RoleNone, f.role(t, "d"))

	// role change consumes no seat
	g, err := f.engine.Grant(context.Background(), f.project, owner, "b", access.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, access.RoleEditor, g.Role)
	assert.Equal(t, 3, f.count(t))
}

func TestScenarioC_ManagerRevokes(t *testing.T) {
	f := newFixture(t, plans.TierPro)
	f.grant(t, owner, "userA", access.RoleManager)
	f.grant(t, owner, "userB", access.RoleViewer)
	f.grant(t, owner, "userC", access.RoleManager)

	require.NoError(t, f.engine.Revoke(context.Background(), f.project, "userA", "userB"))
	assert.Equal(t, access.RoleNone, f.role(t, "userB"))

	err := f.engine.Revoke(context.Background(), f.project, "userA", "userC")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, access.RoleManager, f.role(t, "userC"))
}

func TestScenarioD_RevokeThenRegrant(t *testing.T) {
	f := newFixture(t, plans.TierPro)
	f.grant(t, owner, "userA", access.RoleViewer)

	require.NoError(t, f.engine.Revoke(context.Background(), f.project, owner, "userA"))
	assert.Equal(t, access.RoleNone, f.role(t, "userA"))

	f.grant(t, owner, "userA", access.RoleEditor)
	assert.Equal(t, access.RoleEditor, f.role(t, "userA"))
}

func TestGrant_KeepsGrantedAtOnRoleChange(t *testing.T) {
	f := newFixture(t, plans.TierPro)
	ctx := context.Background()

	first, err := f.engine.Grant(ctx, f.project, owner, "bob", access.RoleViewer)
	require.NoError(t, err)
	second, err := f.engine.Grant(ctx, f.project, owner, "bob", access.RoleEditor)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.GrantedAt.Equal(first.GrantedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestGrant_ConcurrentNeverOvershootsQuota(t *testing.T) {
	for _, withLocker := range []bool{false, true} {
		t.Run(fmt.Sprintf("locker=%v", withLocker), func(t *testing.T) {
			var opts []Option
			if withLocker {
				opts = append(opts, WithLocker(NewKeyedLocker()))
			}
			f := newFixture(t, plans.TierPro, opts...)

			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded, rejected := 0, 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := f.engine.Grant(context.Background(), f.project, owner, fmt.Sprintf("user-%d", i), access.RoleViewer)
					mu.Lock()
					defer mu.Unlock()
					switch KindOf(err) {
					case KindNone:
						succeeded++
					case KindQuotaExceeded:
						rejected++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 3, succeeded)
			assert.Equal(t, 7, rejected)
			assert.Equal(t, 3, f.count(t))
		})
	}
}

type fakeUsers struct {
	known map[string]bool
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*directory.UserSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.known[id] {
		return nil, directory.ErrUserNotFound
	}
	return &directory.UserSummary{ID: id, Name: id}, nil
}

func (f *fakeUsers) GetUsers(ctx context.Context, ids []string) (map[string]directory.UserSummary, error) {
	return nil, errors.New("not used")
}

func TestGrant_UnknownTarget(t *testing.T) {
	users := &fakeUsers{known: map[string]bool{"bob": true}}
	f := newFixture(t, plans.TierPro, WithDirectory(users))
	ctx := context.Background()

	_, err := f.engine.Grant(ctx, f.project, owner, "ghost", access.RoleViewer)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = f.engine.Grant(ctx, f.project, "stranger", "ghost", access.RoleViewer)
	assert.ErrorIs(t, err, ErrForbidden, "authorization is reported before the target")

	f.grant(t, owner, "bob", access.RoleViewer)

	users.err = errors.New("directory unavailable")
	_, err = f.engine.Grant(ctx, f.project, owner, "bob", access.RoleEditor)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.True(t, Retryable(err))
	assert.Equal(t, access.RoleViewer, f.role(t, "bob"))
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, plans.TierTeam)
	f.grant(t, owner, "viewer", access.RoleViewer)
	f.grant(t, owner, "editor", access.RoleEditor)
	ctx := context.Background()

	role, err := f.engine.Authorize(ctx, f.project, "viewer", access.CapabilityView)
	require.NoError(t, err)
	assert.Equal(t, access.RoleViewer, role)

	role, err = f.engine.Authorize(ctx, f.project, "viewer", access.CapabilityEdit)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, access.RoleViewer, role)

	_, err = f.engine.Authorize(ctx, f.project, "editor", access.CapabilityEdit)
	assert.NoError(t, err)

	_, err = f.engine.Authorize(ctx, f.project, "editor", access.CapabilityManageMembers)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.Authorize(ctx, f.project, "stranger", access.CapabilityView)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.Authorize(ctx, f.project, owner, access.CapabilityDeleteProject)
	assert.NoError(t, err)
}

func TestListGrantsAndSharedWith(t *testing.T) {
	f := newFixture(t, plans.TierTeam)
	f.grant(t, owner, "zed", access.RoleViewer)
	f.grant(t, owner, "amy", access.RoleEditor)
	ctx := context.Background()

	list, err := f.engine.ListGrants(ctx, f.project)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "zed", list[0].UserID, "grant order, not name order")
	assert.Equal(t, "amy", list[1].UserID)

	shared, err := f.engine.SharedWith(ctx, "amy")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, "p1", shared[0].ProjectID)

	none, err := f.engine.SharedWith(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPurgeProject(t *testing.T) {
	f := newFixture(t, plans.TierTeam)
	f.grant(t, owner, "mgr", access.RoleManager)
	f.grant(t, owner, "ed", access.RoleEditor)
	ctx := context.Background()

	_, err := f.engine.PurgeProject(ctx, f.project, "mgr")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 2, f.count(t))

	n, err := f.engine.PurgeProject(ctx, f.project, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, f.count(t))
}

func TestPlanTableOverride(t *testing.T) {
	table, err := plans.LoadTable(strings.NewReader("plans:\n  free:\n    max_collaborators: 1\n"))
	require.NoError(t, err)
	f := newFixture(t, plans.TierFree, WithPlanTable(table))

	f.grant(t, owner, "a", access.RoleViewer)
	_, err = f.engine.Grant(context.Background(), f.project, owner, "b", access.RoleViewer)
	var quota *QuotaExceededError
	require.True(t, errors.As(err, &quota))
	assert.Equal(t, 1, quota.Limit)
}

func TestMetricsRecorded(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, plans.TierFree, WithMetrics(metrics), WithLocker(NewKeyedLocker()))

	_, err := f.engine.Grant(context.Background(), f.project, owner, "bob", access.RoleViewer)
	require.Error(t, err)
	_, err = f.engine.Grant(context.Background(), f.project, "stranger", "bob", access.RoleViewer)
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.QuotaRejectionsTotal.WithLabelValues("free")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("grant", "quota_exceeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AccessDecisionsTotal.WithLabelValues("grant", "forbidden")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.LockWaitDuration))
}

var grantColumns = []string{"id", "project_id", "user_id", "role", "granted_by", "granted_at", "updated_at"}

func TestGrant_StorageFailureLeavesNoPartialState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	eng := New(grants.NewSQLStore(db, storage.DialectSQLite), WithMetrics(metrics))
	project := &projects.Project{ID: "p1", OwnerID: owner, OwnerPlan: plans.TierTeam}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, project_id").WithArgs("p1", "bob").WillReturnRows(sqlmock.NewRows(grantColumns))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WithArgs("p1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO project_grants").WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err = eng.Grant(context.Background(), project, owner, "bob", access.RoleEditor)
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "grant", se.Op)
	assert.Equal(t, "p1", se.ProjectID)
	assert.Equal(t, owner, se.ActorID)
	assert.Contains(t, se.Unwrap().Error(), "connection reset by peer")
	assert.True(t, Retryable(err))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StorageErrorsTotal.WithLabelValues("grant")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke_StorageFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eng := New(grants.NewSQLStore(db, storage.DialectSQLite))
	project := &projects.Project{ID: "p1", OwnerID: owner, OwnerPlan: plans.TierTeam}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, project_id").WithArgs("p1", "bob").
		WillReturnRows(sqlmock.NewRows(grantColumns).AddRow("g1", "p1", "bob", "editor", owner, now, now))
	mock.ExpectExec("DELETE FROM project_grants").WithArgs("p1", "bob").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err = eng.Revoke(context.Background(), project, owner, "bob")
	assert.Equal(t, KindStorage, KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRole_StorageFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eng := New(grants.NewSQLStore(db, storage.DialectSQLite))
	project := &projects.Project{ID: "p1", OwnerID: owner}

	mock.ExpectQuery("SELECT id, project_id").WillReturnError(context.DeadlineExceeded)

	role, err := eng.ResolveRole(context.Background(), project, "bob")
	assert.Equal(t, access.RoleNone, role)
	assert.True(t, Retryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// owner resolution never touches the store
	role, err = eng.ResolveRole(context.Background(), project, owner)
	require.NoError(t, err)
	assert.Equal(t, access.RoleOwner, role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
