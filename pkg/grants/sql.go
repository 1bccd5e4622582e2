package grants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/collab/pkg/access"
	"github.com/platinummonkey/collab/pkg/storage"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements Store over database/sql for PostgreSQL and SQLite
type SQLStore struct {
	db      *sql.DB
	q       querier
	dialect storage.Dialect
	inTx    bool
}

// NewSQLStore creates a grant store
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{db: db, q: db, dialect: dialect}
}

const grantColumns = `id, project_id, user_id, role, granted_by, granted_at, updated_at`

// Find returns a single grant or nil when the user holds none
func (s *SQLStore) Find(ctx context.Context, projectID, userID string) (*Grant, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM project_grants WHERE project_id = $1 AND user_id = $2`,
		projectID, userID)

	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}
	return g, nil
}

// ListByProject returns a project's grants in grant order
func (s *SQLStore) ListByProject(ctx context.Context, projectID string) ([]*Grant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM project_grants WHERE project_id = $1 ORDER BY granted_at ASC, user_id ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project grants: %w", err)
	}
	return collectGrants(rows)
}

// ListByUser returns the grants a user holds across projects
func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]*Grant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM project_grants WHERE user_id = $1 ORDER BY granted_at ASC, project_id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user grants: %w", err)
	}
	return collectGrants(rows)
}

// CountByProject counts a project's grants
func (s *SQLStore) CountByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_grants WHERE project_id = $1`, projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count project grants: %w", err)
	}
	return n, nil
}

// ProjectCount is the number of grants held on one project
type ProjectCount struct {
	ProjectID string
	Count     int
}

// CountsAbove returns every project holding more than min grants, ordered by
// project id
func (s *SQLStore) CountsAbove(ctx context.Context, min int) ([]ProjectCount, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT project_id, COUNT(*)
		FROM project_grants
		GROUP BY project_id
		HAVING COUNT(*) > $1
		ORDER BY project_id`, min)
	if err != nil {
		return nil, fmt.Errorf("failed to count grants by project: %w", err)
	}
	defer rows.Close()

	var result []ProjectCount
	for rows.Next() {
		var pc ProjectCount
		if err := rows.Scan(&pc.ProjectID, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan project count: %w", err)
		}
		result = append(result, pc)
	}
	return result, rows.Err()
}

// Upsert inserts a grant or, when one exists for the pair, replaces its role.
// granted_at and granted_by keep their original values on update.
func (s *SQLStore) Upsert(ctx context.Context, projectID, userID string, role access.Role, grantedBy string, at time.Time) (*Grant, error) {
	if !role.Grantable() {
		return nil, fmt.Errorf("failed to upsert grant: role %q is not grantable", role)
	}
	at = at.UTC()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO project_grants (id, project_id, user_id, role, granted_by, granted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (project_id, user_id) DO UPDATE
		SET role = excluded.role, updated_at = excluded.updated_at
	`, uuid.NewString(), projectID, userID, role, grantedBy, at)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}

	g, err := s.Find(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("failed to upsert grant: row for %s/%s not found after write", projectID, userID)
	}
	return g, nil
}

// Delete removes a grant if present
func (s *SQLStore) Delete(ctx context.Context, projectID, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM project_grants WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	return nil
}

// DeleteByProject removes every grant on a project
func (s *SQLStore) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM project_grants WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project grants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted grants: %w", err)
	}
	return int(n), nil
}

// WithProjectTx runs fn inside a transaction holding the project's lock.
// Calls made on an already transaction-bound store join that transaction.
func (s *SQLStore) WithProjectTx(ctx context.Context, projectID string, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.dialect.LockKey(ctx, tx, lockKey(projectID)); err != nil {
		return err
	}

	if err := fn(&SQLStore{db: s.db, q: tx, dialect: s.dialect, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func lockKey(projectID string) string {
	return "project_grants:" + projectID
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(s scanner) (*Grant, error) {
	var g Grant
	if err := s.Scan(&g.ID, &g.ProjectID, &g.UserID, &g.Role, &g.GrantedBy, &g.GrantedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.GrantedAt = g.GrantedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return &g, nil
}

func collectGrants(rows *sql.Rows) ([]*Grant, error) {
	defer rows.Close()

	var result []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grants: %w", err)
	}
	return result, nil
}
