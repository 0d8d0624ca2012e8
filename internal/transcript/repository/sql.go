package repository

import (
	"context"
	"database/sql"
	"fmt"

	"dm-relay/internal/db"
	"dm-relay/internal/transcript/domain"
)

// SQLRepository stores entries in the transcript_entries table.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a transcript repository backed by conn.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

const entryColumns = "id, user_token, lookup_key, content, response, created_at, session_ref"

func (r *SQLRepository) Create(ctx context.Context, e *domain.Entry) error {
	var response sql.NullString
	if e.Response != nil {
		response = sql.NullString{String: *e.Response, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind("INSERT INTO transcript_entries ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		e.ID, e.UserToken, nullString(e.LookupKey), e.Content, response, e.Timestamp.UTC(), e.SessionRef)
	return err
}

func (r *SQLRepository) List(ctx context.Context, lookupKey string) ([]*domain.Entry, error) {
	if lookupKey == "" {
		return r.ListAll(ctx)
	}
	return r.query(ctx, "SELECT "+entryColumns+" FROM transcript_entries WHERE lookup_key = ? OR lookup_key IS NULL ORDER BY "+r.dialect.SeqColumn, lookupKey)
}

func (r *SQLRepository) ListAll(ctx context.Context) ([]*domain.Entry, error) {
	return r.query(ctx, "SELECT "+entryColumns+" FROM transcript_entries ORDER BY "+r.dialect.SeqColumn)
}

func (r *SQLRepository) UpdateIdentity(ctx context.Context, id, userToken, lookupKey string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind("UPDATE transcript_entries SET user_token = ?, lookup_key = ? WHERE id = ?"),
		userToken, nullString(lookupKey), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transcript entry %s not found", id)
	}
	return nil
}

func (r *SQLRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var (
			e         domain.Entry
			lookupKey sql.NullString
			response  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserToken, &lookupKey, &e.Content, &response, &e.Timestamp, &e.SessionRef); err != nil {
			return nil, err
		}
		e.LookupKey = lookupKey.String
		if response.Valid {
			s := response.String
			e.Response = &s
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
