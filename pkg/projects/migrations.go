package projects

import "github.com/platinummonkey/collab/pkg/storage"

// Component is the schema_migrations component name for this package
const Component = "projects"

// Migrations creates the projects table. Production deployments share the
// application's database, where the table already exists and these
// statements are no-ops. They let local and test databases stand alone.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL DEFAULT '',
					owner_id VARCHAR(128) NOT NULL,
					organization_id VARCHAR(64),
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id);
				CREATE INDEX IF NOT EXISTS idx_projects_organization_id ON projects(organization_id);
			`,
		},
	}
}
