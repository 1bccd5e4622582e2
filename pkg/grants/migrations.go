package grants

import "github.com/platinummonkey/collab/pkg/storage"

// Component is the schema_migrations component name for this package
const Component = "grants"

// Migrations creates the project_grants table. It references projects(id),
// so the projects schema must be in place first.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create project_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_grants (
					id VARCHAR(36) PRIMARY KEY,
					project_id VARCHAR(64) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id VARCHAR(128) NOT NULL,
					role VARCHAR(16) NOT NULL CHECK (role IN ('viewer', 'editor', 'manager')),
					granted_by VARCHAR(128) NOT NULL,
					granted_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_project_grants_project_id ON project_grants(project_id, granted_at);
				CREATE INDEX IF NOT EXISTS idx_project_grants_user_id ON project_grants(user_id);
			`,
		},
	}
}
