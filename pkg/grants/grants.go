// Package grants persists non-owner access grants on projects.
//
// A grant ties one user to one project with a role of viewer, editor or
// manager. The project owner is never stored here. There is at most one
// grant per (project, user); granting again updates the role in place and
// keeps the original granted-at time.
package grants

import (
	"context"
	"time"

	"github.com/platinummonkey/collab/pkg/access"
)

// Grant is a stored access grant
type Grant struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	UserID    string      `json:"user_id"`
	Role      access.Role `json:"role"`
	GrantedBy string      `json:"granted_by"`
	GrantedAt time.Time   `json:"granted_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store persists access grants
type Store interface {
	// Find returns the grant for (projectID, userID), or nil, nil when absent
	Find(ctx context.Context, projectID, userID string) (*Grant, error)
	// ListByProject returns a project's grants, oldest first, ties by user id
	ListByProject(ctx context.Context, projectID string) ([]*Grant, error)
	// ListByUser returns every grant held by a user, oldest first
	ListByUser(ctx context.Context, userID string) ([]*Grant, error)
	// CountByProject returns the number of grants on a project
	CountByProject(ctx context.Context, projectID string) (int, error)
	// Upsert creates the grant or updates the role of the existing one
	Upsert(ctx context.Context, projectID, userID string, role access.Role, grantedBy string, at time.Time) (*Grant, error)
	// Delete removes a grant. Deleting an absent grant is not an error.
	Delete(ctx context.Context, projectID, userID string) error
	// DeleteByProject removes all of a project's grants and returns how many
	// were removed
	DeleteByProject(ctx context.Context, projectID string) (int, error)
	// WithProjectTx runs fn in a single transaction that is serialized with
	// every other WithProjectTx call for the same project. The Store passed
	// to fn is bound to that transaction. Returning an error rolls back.
	WithProjectTx(ctx context.Context, projectID string, fn func(Store) error) error
}
