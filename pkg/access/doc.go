// Package access defines the project role model.
//
// A user's relationship to a project is one of five ordered roles:
//
//	owner > manager > editor > viewer > none
//
// The owner is a property of the project itself. Viewer, editor and manager
// are stored as access grants (see package grants). None is the sentinel for
// "no access" and is what callers get for any user without a grant.
//
// Capabilities are derived purely from the role:
//
//	Role     View  Edit  ManageMembers  DeleteProject
//	owner     x     x         x              x
//	manager   x     x         x
//	editor    x     x
//	viewer    x
//	none
//
// Roles serialize by name in JSON (encoding.TextMarshaler) and SQL
// (driver.Valuer / sql.Scanner).
package access
