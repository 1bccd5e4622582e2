package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/collab/pkg/plans"
)

// SQLDirectory reads users and organization memberships from the mirror
// tables maintained by the identity provider sync
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a new SQL-backed directory
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// GetUser loads a single user summary
func (d *SQLDirectory) GetUser(ctx context.Context, userID string) (*UserSummary, error) {
	var u UserSummary
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, email, avatar_url FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUsers batch-loads user summaries
func (d *SQLDirectory) GetUsers(ctx context.Context, userIDs []string) (map[string]UserSummary, error) {
	result := make(map[string]UserSummary, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT id, name, email, avatar_url FROM users WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result[u.ID] = u
	}
	return result, rows.Err()
}

// OrgMembers lists an organization's members in join order
func (d *SQLDirectory) OrgMembers(ctx context.Context, orgID string) ([]UserSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.avatar_url
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.joined_at ASC, u.id ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	defer rows.Close()

	var members []UserSummary
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan organization member: %w", err)
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

// UserPlan returns the user's plan tier. Unknown plan names resolve to free.
func (d *SQLDirectory) UserPlan(ctx context.Context, userID string) (plans.Tier, error) {
	var plan string
	err := d.db.QueryRowContext(ctx, `SELECT plan FROM users WHERE id = $1`, userID).Scan(&plan)
	if err == sql.ErrNoRows {
		return plans.TierFree, ErrUserNotFound
	}
	if err != nil {
		return plans.TierFree, fmt.Errorf("failed to get user plan: %w", err)
	}
	return plans.ParseTier(plan), nil
}
