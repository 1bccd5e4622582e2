// Package api exposes project access control over HTTP.
//
// Callers are identified by the header set by the authentication gateway
// (see pkg/middleware). Routes:
//
//	GET    /projects/{project_id}/role                caller's role and capabilities
//	GET    /projects/{project_id}/members             roster (viewer+), candidates for manager+
//	GET    /projects/{project_id}/members/candidates  org members without a role (manager+)
//	PUT    /projects/{project_id}/members/{user_id}   grant or change a role, body {"role":"editor"}
//	DELETE /projects/{project_id}/members/{user_id}   revoke (idempotent)
//	DELETE /projects/{project_id}/members             remove all collaborators (owner)
//	GET    /me/projects                               projects the caller owns or was granted
//	GET    /me/shared-projects                        projects shared with the caller
//
// # Errors
//
// Engine errors map to statuses by kind:
//
//	forbidden       403
//	invalid_target  422
//	invalid_role    400
//	quota_exceeded  402, details carry plan, limit, current and upgrade_url
//	storage         503 with Retry-After
//	not_found       404
//
// Storage failures never expose the underlying error; grant and revoke
// report "failed to add team member" and "failed to remove team member".
package api
