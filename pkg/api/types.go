package api

import (
	"time"

	"github.com/platinummonkey/collab/pkg/access"
	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/grants"
	"github.com/platinummonkey/collab/pkg/members"
	"github.com/platinummonkey/collab/pkg/projects"
)

// RoleResponse is the caller's standing on a project
type RoleResponse struct {
	ProjectID    string          `json:"project_id"`
	UserID       string          `json:"user_id"`
	Role         access.Role     `json:"role"`
	Capabilities map[string]bool `json:"capabilities"`
}

// MembersResponse is a project roster. Candidates are included only for
// callers who can manage members.
type MembersResponse struct {
	ProjectID  string                  `json:"project_id"`
	Owner      directory.UserSummary   `json:"owner"`
	Members    []members.Member        `json:"members"`
	Candidates []directory.UserSummary `json:"candidates,omitempty"`
}

// CandidatesResponse lists organization members who can be added
type CandidatesResponse struct {
	ProjectID  string                  `json:"project_id"`
	Candidates []directory.UserSummary `json:"candidates"`
}

// GrantRequest is the body of PUT /projects/{project_id}/members/{user_id}
type GrantRequest struct {
	Role string `json:"role"`
}

// SharedProject is one project shared with the caller
type SharedProject struct {
	ProjectID string      `json:"project_id"`
	Role      access.Role `json:"role"`
	GrantedBy string      `json:"granted_by"`
	GrantedAt time.Time   `json:"granted_at"`
}

// SharedProjectsResponse lists the projects shared with the caller
type SharedProjectsResponse struct {
	UserID   string          `json:"user_id"`
	Projects []SharedProject `json:"projects"`
}

// AccessibleProject is one project the caller can open
type AccessibleProject struct {
	ProjectID string      `json:"project_id"`
	Name      string      `json:"name,omitempty"`
	Role      access.Role `json:"role"`
}

// ProjectsResponse lists owned and shared projects
type ProjectsResponse struct {
	UserID   string              `json:"user_id"`
	Projects []AccessibleProject `json:"projects"`
}

// PurgeResponse reports how many grants were removed
type PurgeResponse struct {
	ProjectID string `json:"project_id"`
	Removed   int    `json:"removed"`
}

func capabilities(role access.Role) map[string]bool {
	caps := []access.Capability{
		access.CapabilityView,
		access.CapabilityEdit,
		access.CapabilityManageMembers,
		access.CapabilityDeleteProject,
	}
	out := make(map[string]bool, len(caps))
	for _, c := range caps {
		out[string(c)] = role.Can(c)
	}
	return out
}

func sharedProjects(list []*grants.Grant) []SharedProject {
	out := make([]SharedProject, 0, len(list))
	for _, g := range list {
		out = append(out, SharedProject{
			ProjectID: g.ProjectID,
			Role:      g.Role,
			GrantedBy: g.GrantedBy,
			GrantedAt: g.GrantedAt,
		})
	}
	return out
}

// accessibleProjects merges owned projects with grants. Ownership wins over a
// stray grant on the same project.
func accessibleProjects(owned []*projects.Project, shared []*grants.Grant) []AccessibleProject {
	out := make([]AccessibleProject, 0, len(owned)+len(shared))
	seen := make(map[string]bool, len(owned))
	for _, p := range owned {
		seen[p.ID] = true
		out = append(out, AccessibleProject{ProjectID: p.ID, Name: p.Name, Role: access.RoleOwner})
	}
	for _, g := range shared {
		if seen[g.ProjectID] {
			continue
		}
		out = append(out, AccessibleProject{ProjectID: g.ProjectID, Role: g.Role})
	}
	return out
}
