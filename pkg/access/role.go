package access

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is a user's standing on a single project. Roles are totally ordered:
// RoleNone < RoleViewer < RoleEditor < RoleManager < RoleOwner.
type Role int

const (
	// RoleNone means the user has no access to the project
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleManager
	// RoleOwner is implicit from the project record and never stored as a grant
	RoleOwner
)

var roleNames = [...]string{
	RoleNone:    "none",
	RoleViewer:  "viewer",
	RoleEditor:  "editor",
	RoleManager: "manager",
	RoleOwner:   "owner",
}

// String returns the lowercase role name
func (r Role) String() string {
	if r < RoleNone || r > RoleOwner {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// ParseRole parses a role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range roleNames {
		if n == name {
			return Role(i), nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role: %q", s)
}

// Valid reports whether r is one of the defined roles
func (r Role) Valid() bool {
	return r >= RoleNone && r <= RoleOwner
}

// AtLeast reports whether r ranks at or above other
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// Grantable reports whether r may be stored in an access grant.
// Owner is derived from the project and none is the absence of a grant.
func (r Role) Grantable() bool {
	return r == RoleViewer || r == RoleEditor || r == RoleManager
}

// CanView is true for every role except none
func (r Role) CanView() bool {
	return r.AtLeast(RoleViewer) && r.Valid()
}

// CanEdit is true for editor, manager and owner
func (r Role) CanEdit() bool {
	return r.AtLeast(RoleEditor) && r.Valid()
}

// CanManageMembers is true for manager and owner
func (r Role) CanManageMembers() bool {
	return r.AtLeast(RoleManager) && r.Valid()
}

// CanDeleteProject is true only for the owner
func (r Role) CanDeleteProject() bool {
	return r == RoleOwner
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements driver.Valuer. Roles are stored by name.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot store invalid role %d", int(r))
	}
	return r.String(), nil
}

// Scan implements sql.Scanner
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case nil:
		*r = RoleNone
		return nil
	default:
		return fmt.Errorf("cannot scan %T into role", src)
	}
}
