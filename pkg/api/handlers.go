package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/collab/pkg/access"
	"github.com/platinummonkey/collab/pkg/directory"
	"github.com/platinummonkey/collab/pkg/engine"
	"github.com/platinummonkey/collab/pkg/httputil"
	"github.com/platinummonkey/collab/pkg/members"
	"github.com/platinummonkey/collab/pkg/middleware"
	"github.com/platinummonkey/collab/pkg/projects"
)

// Handlers provides HTTP handlers for project access
type Handlers struct {
	engine     *engine.Engine
	projects   projects.Repository
	members    *members.View
	orgs       directory.OrgDirectory
	upgradeURL string
}

// NewHandlers creates new access handlers. orgs may be nil, in which case
// no grant candidates are offered. upgradeURL is returned with quota errors.
func NewHandlers(eng *engine.Engine, repo projects.Repository, view *members.View, orgs directory.OrgDirectory, upgradeURL string) *Handlers {
	return &Handlers{
		engine:     eng,
		projects:   repo,
		members:    view,
		orgs:       orgs,
		upgradeURL: upgradeURL,
	}
}

// RegisterRoutes registers all access routes. mutations wraps the routes
// that change memberships and may be nil.
func (h *Handlers) RegisterRoutes(router *mux.Router, mutations func(http.Handler) http.Handler) {
	if mutations == nil {
		mutations = func(next http.Handler) http.Handler { return next }
	}

	router.HandleFunc("/projects/{project_id}/role", h.GetRole).Methods("GET")
	router.HandleFunc("/projects/{project_id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/projects/{project_id}/members/candidates", h.ListCandidates).Methods("GET")
	router.Handle("/projects/{project_id}/members/{user_id}", mutations(http.HandlerFunc(h.GrantMember))).Methods("PUT")
	router.Handle("/projects/{project_id}/members/{user_id}", mutations(http.HandlerFunc(h.RevokeMember))).Methods("DELETE")
	router.Handle("/projects/{project_id}/members", mutations(http.HandlerFunc(h.PurgeMembers))).Methods("DELETE")

	router.HandleFunc("/me/projects", h.MyProjects).Methods("GET")
	router.HandleFunc("/me/shared-projects", h.SharedProjects).Methods("GET")
}

// loadProject reads the project named in the path. On failure the response
// has been written.
func (h *Handlers) loadProject(w http.ResponseWriter, r *http.Request, op string) (*projects.Project, bool) {
	projectID, ok := httputil.ParsePathStringOrError(w, r, "project_id")
	if !ok {
		return nil, false
	}

	project, err := h.projects.GetProject(r.Context(), projectID)
	if err != nil {
		if !errors.Is(err, projects.ErrProjectNotFound) {
			err = &engine.StorageError{Op: "load_project", ProjectID: projectID, ActorID: middleware.UserID(r), Err: err}
		}
		h.writeEngineError(w, r, op, err)
		return nil, false
	}
	return project, true
}

// GetRole returns the caller's role on a project. Callers without access
// get role "none" rather than an error.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r, "resolve_role")
	if !ok {
		return
	}
	actorID := middleware.UserID(r)

	role, err := h.engine.ResolveRole(r.Context(), project, actorID)
	if err != nil {
		h.writeEngineError(w, r, "resolve_role", err)
		return
	}

	httputil.WriteSuccess(w, RoleResponse{
		ProjectID:    project.ID,
		UserID:       actorID,
		Role:         role,
		Capabilities: capabilities(role),
	})
}

// ListMembers returns the owner and every collaborator. Viewers and above
// may list; managers and the owner also receive grant candidates.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, ok := h.loadProject(w, r, "list_members")
	if !ok {
		return
	}

	role, err := h.engine.Authorize(ctx, project, middleware.UserID(r), access.CapabilityView)
	if err != nil {
		h.writeEngineError(w, r, "list_members", err)
		return
	}

	roster, err := h.members.ListMembers(ctx, project)
	if err != nil {
		h.writeEngineError(w, r, "list_members", &engine.StorageError{Op: "list_members", ProjectID: project.ID, ActorID: middleware.UserID(r), Err: err})
		return
	}

	resp := MembersResponse{
		ProjectID: project.ID,
		Owner:     roster.Owner,
		Members:   roster.Members,
	}
	if role.CanManageMembers() {
		candidates, err := h.members.ListGrantCandidates(ctx, project, h.orgs)
		if err != nil {
			h.writeEngineError(w, r, "list_members", &engine.StorageError{Op: "list_candidates", ProjectID: project.ID, ActorID: middleware.UserID(r), Err: err})
			return
		}
		resp.Candidates = candidates
	}

	httputil.WriteSuccess(w, resp)
}

// ListCandidates returns organization members who hold no role on the project
func (h *Handlers) ListCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, ok := h.loadProject(w, r, "list_candidates")
	if !ok {
		return
	}

	if _, err := h.engine.Authorize(ctx, project, middleware.UserID(r), access.CapabilityManageMembers); err != nil {
		h.writeEngineError(w, r, "list_candidates", err)
		return
	}

	candidates, err := h.members.ListGrantCandidates(ctx, project, h.orgs)
	if err != nil {
		h.writeEngineError(w, r, "list_candidates", &engine.StorageError{Op: "list_candidates", ProjectID: project.ID, ActorID: middleware.UserID(r), Err: err})
		return
	}

	httputil.WriteSuccess(w, CandidatesResponse{ProjectID: project.ID, Candidates: candidates})
}

// GrantMember adds a collaborator or changes their role
func (h *Handlers) GrantMember(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r, "grant")
	if !ok {
		return
	}
	targetID := mux.Vars(r)["user_id"]

	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	// Unknown names become RoleNone so the engine reports them in
	// precondition order.
	role, _ := access.ParseRole(req.Role)

	grant, err := h.engine.Grant(r.Context(), project, middleware.UserID(r), targetID, role)
	if err != nil {
		h.writeEngineError(w, r, "grant", err)
		return
	}

	httputil.WriteSuccess(w, grant)
}

// RevokeMember removes a collaborator. Removing someone without a grant
// succeeds.
func (h *Handlers) RevokeMember(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r, "revoke")
	if !ok {
		return
	}

	if err := h.engine.Revoke(r.Context(), project, middleware.UserID(r), mux.Vars(r)["user_id"]); err != nil {
		h.writeEngineError(w, r, "revoke", err)
		return
	}

	httputil.WriteNoContent(w)
}

// PurgeMembers removes every collaborator from a project. Owner only.
func (h *Handlers) PurgeMembers(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r, "purge_project")
	if !ok {
		return
	}

	removed, err := h.engine.PurgeProject(r.Context(), project, middleware.UserID(r))
	if err != nil {
		h.writeEngineError(w, r, "purge_project", err)
		return
	}

	httputil.WriteSuccess(w, PurgeResponse{ProjectID: project.ID, Removed: removed})
}

// SharedProjects lists the projects other users have shared with the caller
func (h *Handlers) SharedProjects(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	list, err := h.engine.SharedWith(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, r, "shared_with", err)
		return
	}

	httputil.WriteSuccess(w, SharedProjectsResponse{UserID: userID, Projects: sharedProjects(list)})
}

// MyProjects lists every project the caller can open: owned projects first,
// then projects shared with them. A revoked grant drops out immediately.
func (h *Handlers) MyProjects(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	owned, err := h.projects.ListOwned(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, r, "list_projects", &engine.StorageError{Op: "list_owned", ActorID: userID, Err: err})
		return
	}

	shared, err := h.engine.SharedWith(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, r, "list_projects", err)
		return
	}

	httputil.WriteSuccess(w, ProjectsResponse{UserID: userID, Projects: accessibleProjects(owned, shared)})
}
