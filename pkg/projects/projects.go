// Package projects reads the project records access decisions depend on.
//
// Projects are owned by the surrounding application. This package never
// creates, updates or transfers them; it only loads the owner, the
// organization and the owner's current plan.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/collab/pkg/plans"
)

// ErrProjectNotFound is returned when a project does not exist
var ErrProjectNotFound = errors.New("project not found")

// Project is the subset of a project record needed for access control
type Project struct {
	ID             string     `json:"id"`
	Name           string     `json:"name,omitempty"`
	OwnerID        string     `json:"owner_id"`
	OrganizationID string     `json:"organization_id,omitempty"`
	OwnerPlan      plans.Tier `json:"owner_plan"`
}

// HasOrganization reports whether the project belongs to an organization
func (p *Project) HasOrganization() bool {
	return p.OrganizationID != ""
}

// Repository loads projects
type Repository interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListOwned(ctx context.Context, ownerID string) ([]*Project, error)
}

// SQLRepository reads projects joined with their owner's plan
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a new project repository
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const selectProject = `
	SELECT p.id, p.name, p.owner_id, COALESCE(p.organization_id, ''), COALESCE(u.plan, '')
	FROM projects p
	LEFT JOIN users u ON u.id = p.owner_id`

// GetProject loads a project and derives the owner's plan from the owner's
// user record. A missing or unrecognized plan resolves to free.
func (r *SQLRepository) GetProject(ctx context.Context, projectID string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, selectProject+` WHERE p.id = $1`, projectID)

	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListOwned returns the projects owned by a user, ordered by id
func (r *SQLRepository) ListOwned(ctx context.Context, ownerID string) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, selectProject+` WHERE p.owner_id = $1 ORDER BY p.id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned projects: %w", err)
	}
	defer rows.Close()

	var result []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var plan string
	if err := s.Scan(&p.ID, &p.Name, &p.OwnerID, &p.OrganizationID, &plan); err != nil {
		return nil, err
	}
	p.OwnerPlan = plans.ParseTier(plan)
	return &p, nil
}
