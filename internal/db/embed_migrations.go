package db

import "embed"

// MigrationFS embeds the postgres SQL migrations from internal/db/migrations.
// Used by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
