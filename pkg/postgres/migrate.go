package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies the migrations found at sourceURL (e.g. "file://migrations")
// and returns the schema version the database ends up at.
// The DSN scheme is rewritten for the pgx/v5 migrate driver.
func RunMigrations(sourceURL, dsn string) (uint, error) {
	const op = "postgres.RunMigrations"

	m, err := migrate.New(sourceURL, MigrateDSN(dsn))
	if err != nil {
		return 0, fmt.Errorf("%s: failed to initialize migrations: %w", op, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("%s: failed to read schema version: %w", op, err)
	}

	return version, nil
}

// MigrateDSN converts a postgres:// DSN into the pgx5:// form expected by migrate.
func MigrateDSN(dsn string) string {
	if rest, ok := strings.CutPrefix(dsn, "postgres://"); ok {
		return "pgx5://" + rest
	}

	return dsn
}
