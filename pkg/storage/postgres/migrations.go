package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the schema generation this code understands. Startup
// fails if the stored version differs or a migration is marked in progress.
const SchemaVersion = 1

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all groups-service migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create groups tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					owner TEXT NOT NULL,
					is_private BOOLEAN NOT NULL DEFAULT FALSE,
					private_member_list BOOLEAN NOT NULL DEFAULT FALSE,
					custom_fields JSONB NOT NULL DEFAULT '{}',
					created TIMESTAMPTZ NOT NULL,
					modified TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX idx_groups_owner ON groups(owner);
				CREATE INDEX idx_groups_private_id ON groups(is_private, id);

				CREATE TABLE IF NOT EXISTS group_members (
					group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					user_name TEXT NOT NULL,
					role TEXT NOT NULL,
					joined TIMESTAMPTZ NOT NULL,
					last_visit TIMESTAMPTZ,
					custom_fields JSONB NOT NULL DEFAULT '{}',
					PRIMARY KEY (group_id, user_name)
				);

				CREATE INDEX idx_group_members_user ON group_members(user_name, role);

				CREATE TABLE IF NOT EXISTS group_resources (
					group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					resource_type TEXT NOT NULL,
					resource_id TEXT NOT NULL,
					admin_id TEXT NOT NULL,
					added TIMESTAMPTZ,
					PRIMARY KEY (group_id, resource_type, resource_id)
				);

				CREATE INDEX idx_group_resources_resource ON group_resources(resource_type, resource_id);
			`,
		},
		{
			Version:     2,
			Description: "Create requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS requests (
					id UUID PRIMARY KEY,
					group_id TEXT NOT NULL,
					requester TEXT NOT NULL,
					request_type TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					resource_admin_id TEXT NOT NULL,
					resource_id TEXT NOT NULL,
					status TEXT NOT NULL,
					closed_by TEXT,
					closed_reason TEXT,
					characteristic_string TEXT,
					created TIMESTAMPTZ NOT NULL,
					modified TIMESTAMPTZ NOT NULL,
					expires TIMESTAMPTZ NOT NULL
				);

				CREATE UNIQUE INDEX idx_requests_characteristic
					ON requests(characteristic_string);
				CREATE INDEX idx_requests_group_modified
					ON requests(group_id, modified);
				CREATE INDEX idx_requests_group_status_modified
					ON requests(group_id, status, modified);
				CREATE INDEX idx_requests_requester_status_modified
					ON requests(requester, status, modified);
				CREATE INDEX idx_requests_resource_admin
					ON requests(resource_type, resource_admin_id, status, modified);
				CREATE INDEX idx_requests_resource
					ON requests(resource_type, resource_id, status, modified);
				CREATE INDEX idx_requests_status_expires
					ON requests(status, expires);
			`,
		},
		{
			Version:     3,
			Description: "Create schema config row",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS config (
					key TEXT PRIMARY KEY,
					schema_version INT NOT NULL,
					in_progress BOOLEAN NOT NULL DEFAULT FALSE
				);

				INSERT INTO config (key, schema_version, in_progress)
					VALUES ('schema', %d, FALSE)
					ON CONFLICT (key) DO NOTHING;
			`, SchemaVersion),
		},
	}
}

// RunMigrations executes all pending migrations inside transactions.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// CheckSchema verifies the stored schema version matches this code and no
// migration is marked in progress. Callers treat a failure as fatal.
func CheckSchema(ctx context.Context, db *sql.DB) error {
	var version int
	var inProgress bool
	err := db.QueryRowContext(ctx,
		"SELECT schema_version, in_progress FROM config WHERE key = 'schema'",
	).Scan(&version, &inProgress)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no schema config record found; database is not initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to read schema config: %w", err)
	}
	if inProgress {
		return fmt.Errorf("a schema migration is in progress; refusing to start")
	}
	if version != SchemaVersion {
		return fmt.Errorf("incompatible schema version: database is at %d, code requires %d",
			version, SchemaVersion)
	}
	return nil
}
