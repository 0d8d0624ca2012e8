// Package migrate applies the embedded postgres schema migrations using golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"dm-relay/internal/db"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Directions accepted by Run.
const (
	Up      = "up"
	Down    = "down"
	Version = "version"
)

// Result reports the schema version after a run.
type Result struct {
	Version uint
	Dirty   bool
	// Empty is true when no migration has ever been applied.
	Empty bool
}

// Run applies migrations in direction ("up", "down" or "version" for a read-only check) against dsn.
// Already being at the target version is not an error.
func Run(dsn string, direction string) (Result, error) {
	if dsn == "" {
		return Result{}, errors.New("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if direction != Up && direction != Down && direction != Version {
		return Result{}, fmt.Errorf("direction must be up, down or version, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return Result{}, fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return Result{}, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Result{}, err
	}
	return currentVersion(m)
}

func currentVersion(m *migrate.Migrate) (Result, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Result{Empty: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("migrate version: %w", err)
	}
	return Result{Version: v, Dirty: dirty}, nil
}
