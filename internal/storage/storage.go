// Package storage opens the session and transcript repositories for the configured driver.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"dm-relay/internal/config"
	"dm-relay/internal/db"
	sessionrepo "dm-relay/internal/session/repository"
	transcriptrepo "dm-relay/internal/transcript/repository"
)

// Stores holds the repositories backing one relay process.
type Stores struct {
	Sessions    sessionrepo.Repository
	Transcripts transcriptrepo.Repository
	// DB is the shared handle, nil for the memory driver.
	DB *sql.DB
}

// Open connects to the store selected by cfg.DatabaseDriver and pings it. The memory driver keeps
// everything in process and loses it on exit.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		return &Stores{
			Sessions:    sessionrepo.NewMemoryRepository(),
			Transcripts: transcriptrepo.NewMemoryRepository(),
		}, nil
	}

	dialect := db.DialectFor(cfg.DatabaseDriver)
	opts := db.Options{ConnectTimeout: cfg.StoreTimeoutDuration()}
	if dialect == db.Postgres {
		opts.Database = cfg.DatabaseName
	}
	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return &Stores{
		Sessions:    sessionrepo.NewSQLRepository(conn, dialect),
		Transcripts: transcriptrepo.NewSQLRepository(conn, dialect),
		DB:          conn,
	}, nil
}

// Close closes the database handle, if any.
func (s *Stores) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// PingContext checks the database handle. The memory driver is always reachable.
func (s *Stores) PingContext(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}
