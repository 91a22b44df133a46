package db

import (
	"context"

	"github.com/pkg/errors"
)

// schema is the minimum table set the portal reads and writes. Postgres
// deployments manage it externally; sqlite databases get it from EnsureSchema.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		owner_uuid TEXT UNIQUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ssh_keys (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vlan_ids (
		id TEXT PRIMARY KEY,
		owner_uuid TEXT NOT NULL REFERENCES users(owner_uuid) ON DELETE RESTRICT,
		vlan_id INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (owner_uuid, vlan_id)
	)`,
}

// EnsureSchema creates any missing table.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to create schema")
		}
	}
	return nil
}
