package access

// Capability is an action gated by a project role
type Capability string

const (
	CapabilityView          Capability = "view"
	CapabilityEdit          Capability = "edit"
	CapabilityManageMembers Capability = "manage_members"
	CapabilityDeleteProject Capability = "delete_project"
)

// Can reports whether the role grants the capability. Unknown capabilities
// are always denied.
func (r Role) Can(c Capability) bool {
	switch c {
	case CapabilityView:
		return r.CanView()
	case CapabilityEdit:
		return r.CanEdit()
	case CapabilityManageMembers:
		return r.CanManageMembers()
	case CapabilityDeleteProject:
		return r.CanDeleteProject()
	default:
		return false
	}
}

// GrantableRoles lists the roles that can be assigned to collaborators,
// lowest first.
func GrantableRoles() []Role {
	return []Role{RoleViewer, RoleEditor, RoleManager}
}
