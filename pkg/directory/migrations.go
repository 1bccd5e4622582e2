package directory

import "github.com/platinummonkey/collab/pkg/storage"

// Component is the schema_migrations component name for this package
const Component = "directory"

// Migrations creates the user and organization membership mirror tables
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(128) PRIMARY KEY,
					name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					avatar_url TEXT NOT NULL DEFAULT '',
					plan VARCHAR(32) NOT NULL DEFAULT 'free',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organization_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					organization_id VARCHAR(64) NOT NULL,
					user_id VARCHAR(128) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (organization_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_organization_members_user_id ON organization_members(user_id);
			`,
		},
	}
}
