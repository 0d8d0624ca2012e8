package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dm-relay/internal/db"
	"dm-relay/internal/session/domain"
)

// SQLRepository stores sessions in the sessions table of a postgres or sqlite database.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a session repository backed by conn using the given dialect.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

const sessionColumns = "id, user_token, lookup_key, messages, last_interaction"

// ListActive returns sessions touched at or after since, in insertion order.
func (r *SQLRepository) ListActive(ctx context.Context, since time.Time, lookupKey string) ([]*domain.Session, error) {
	q := "SELECT " + sessionColumns + " FROM sessions WHERE last_interaction >= ?"
	args := []any{since.UTC()}
	if lookupKey != "" {
		q += " AND (lookup_key = ? OR lookup_key IS NULL)"
		args = append(args, lookupKey)
	}
	q += " ORDER BY " + r.dialect.SeqColumn
	return r.query(ctx, q, args...)
}

// ListAll returns every stored session in insertion order.
func (r *SQLRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	return r.query(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY "+r.dialect.SeqColumn)
}

// Save upserts the session row keyed by ID.
func (r *SQLRepository) Save(ctx context.Context, s *domain.Session) error {
	msgs := s.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_token = excluded.user_token,
			lookup_key = excluded.lookup_key,
			messages = excluded.messages,
			last_interaction = excluded.last_interaction`),
		s.ID, s.UserToken, nullString(s.LookupKey), string(payload), s.LastInteraction.UTC())
	return err
}

// UpdateIdentity rewrites user_token and lookup_key for the row with id.
func (r *SQLRepository) UpdateIdentity(ctx context.Context, id, userToken, lookupKey string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind("UPDATE sessions SET user_token = ?, lookup_key = ? WHERE id = ?"),
		userToken, nullString(lookupKey), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

func (r *SQLRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var (
			s         domain.Session
			lookupKey sql.NullString
			payload   []byte
		)
		if err := rows.Scan(&s.ID, &s.UserToken, &lookupKey, &payload, &s.LastInteraction); err != nil {
			return nil, err
		}
		if lookupKey.Valid {
			s.LookupKey = lookupKey.String
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &s.Messages); err != nil {
				return nil, fmt.Errorf("decode messages of session %s: %w", s.ID, err)
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
