package directory

import (
	"context"
	"errors"

	"github.com/platinummonkey/collab/pkg/plans"
)

// ErrUserNotFound is returned when a user id is unknown to the directory
var ErrUserNotFound = errors.New("user not found")

// UserSummary is the public profile shown next to a project member
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Placeholder returns the summary used for a user the directory no longer knows
func Placeholder(userID string) UserSummary {
	return UserSummary{ID: userID, Name: userID}
}

// UserLookup resolves user profiles
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*UserSummary, error)
	// GetUsers returns the summaries it could find, keyed by id. Unknown ids
	// are omitted rather than reported as errors.
	GetUsers(ctx context.Context, userIDs []string) (map[string]UserSummary, error)
}

// OrgDirectory lists the members of an organization
type OrgDirectory interface {
	// OrgMembers returns members in directory order (join time, then id)
	OrgMembers(ctx context.Context, orgID string) ([]UserSummary, error)
}

// PlanLookup resolves a user's subscription plan
type PlanLookup interface {
	UserPlan(ctx context.Context, userID string) (plans.Tier, error)
}

// Directory is the identity and organization directory
type Directory interface {
	UserLookup
	OrgDirectory
	PlanLookup
}
