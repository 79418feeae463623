// Package migrations holds the schema for local users, sessions and the
// authorization policy. Files register themselves in init and run in
// timestamp order.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
