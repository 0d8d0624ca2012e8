package db

import (
	"context"
	"database/sql"
	"fmt"
)

// sqliteSchema mirrors migrations/*.up.sql for SQLite, which is not managed by golang-migrate.
// Insertion order comes from the implicit rowid.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    user_token       TEXT NOT NULL,
    lookup_key       TEXT,
    messages         TEXT NOT NULL DEFAULT '[]',
    last_interaction DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_last_interaction_idx ON sessions (last_interaction);
CREATE INDEX IF NOT EXISTS sessions_lookup_key_idx ON sessions (lookup_key);

CREATE TABLE IF NOT EXISTS transcript_entries (
    id          TEXT PRIMARY KEY,
    user_token  TEXT NOT NULL,
    lookup_key  TEXT,
    content     TEXT NOT NULL,
    response    TEXT,
    created_at  DATETIME NOT NULL,
    session_ref TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transcript_entries_lookup_key_idx ON transcript_entries (lookup_key);
`

// ApplySQLiteSchema creates the relay tables if they do not exist.
func ApplySQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("db: sqlite schema: %w", err)
	}
	return nil
}
