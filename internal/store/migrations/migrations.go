// Package migrations embeds the schema shared by the SQL store drivers.
package migrations

import _ "embed"

// Postgres is the initial schema for the postgres and pgx drivers.
//
//go:embed 001_initial.sql
var Postgres string

// SQLite is the same schema expressed in the sqlite dialect.
//
//go:embed 001_initial_sqlite.sql
var SQLite string
