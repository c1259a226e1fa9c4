package migrations

import "embed"

// Files exposes embedded SQL migration files. Postgres migrations live at the
// root and run in lexicographical order; the sqlite/ subdirectory holds the
// SQLite schema.
//
//go:embed *.sql sqlite/*.sql
var Files embed.FS
