// Package members builds the read-only membership views shown next to a
// project: who owns it, who has been granted access, and which organization
// members could still be invited.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/grants"
	"github.com/platinummonkey/collab/pkg/projects"
	"golang.org/x/sync/errgroup"
)

// Member is a grant with its holder's profile
type Member struct {
	Grant *grants.Grant         `json:"grant"`
	User  directory.UserSummary `json:"user"`
}

// Roster is a project's owner and collaborators in grant order
type Roster struct {
	Owner   directory.UserSummary `json:"owner"`
	Members []Member              `json:"members"`
}

// GrantLister is the part of the grant store the views read
type GrantLister interface {
	ListByProject(ctx context.Context, projectID string) ([]*grants.Grant, error)
}

// View composes grants with directory profiles
type View struct {
	grants GrantLister
	users  directory.UserLookup
}

// NewView creates a membership view
func NewView(store GrantLister, users directory.UserLookup) *View {
	return &View{grants: store, users: users}
}

// ListMembers returns the owner's profile and every grant with its holder's
// profile. Users the directory no longer knows are shown by id.
func (v *View) ListMembers(ctx context.Context, project *projects.Project) (*Roster, error) {
	var owner directory.UserSummary
	var list []*grants.Grant

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := v.users.GetUser(gctx, project.OwnerID)
		if errors.Is(err, directory.ErrUserNotFound) {
			owner = directory.Placeholder(project.OwnerID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load project owner: %w", err)
		}
		owner = *u
		return nil
	})
	g.Go(func() error {
		var err error
		list, err = v.grants.ListByProject(gctx, project.ID)
		if err != nil {
			return fmt.Errorf("failed to list project grants: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	roster := &Roster{Owner: owner, Members: make([]Member, 0, len(list))}
	if len(list) == 0 {
		return roster, nil
	}

	ids := make([]string, len(list))
	for i, gr := range list {
		ids[i] = gr.UserID
	}
	profiles, err := v.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load member profiles: %w", err)
	}

	for _, gr := range list {
		u, ok := profiles[gr.UserID]
		if !ok {
			u = directory.Placeholder(gr.UserID)
		}
		roster.Members = append(roster.Members, Member{Grant: gr, User: u})
	}
	return roster, nil
}

// ListGrantCandidates returns the project organization's members who are
// neither the owner nor already granted, in directory order. Projects
// outside an organization have no candidates.
func (v *View) ListGrantCandidates(ctx context.Context, project *projects.Project, orgDir directory.OrgDirectory) ([]directory.UserSummary, error) {
	candidates := []directory.UserSummary{}
	if !project.HasOrganization() || orgDir == nil {
		return candidates, nil
	}

	var orgMembers []directory.UserSummary
	var list []*grants.Grant

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orgMembers, err = orgDir.OrgMembers(gctx, project.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to list organization members: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		list, err = v.grants.ListByProject(gctx, project.ID)
		if err != nil {
			return fmt.Errorf("failed to list project grants: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(list)+1)
	excluded[project.OwnerID] = struct{}{}
	for _, gr := range list {
		excluded[gr.UserID] = struct{}{}
	}

	for _, m := range orgMembers {
		if _, skip := excluded[m.ID]; skip {
			continue
		}
		candidates = append(candidates, m)
	}
	return candidates, nil
}
