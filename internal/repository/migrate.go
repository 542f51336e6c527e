package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration sets, one per directory under migrations/.
const (
	MigrationsSQLite   = "sqlite"
	MigrationsPostgres = "postgres"
	MigrationsMySQL    = "mysql"
)

func newMigrationProvider(db *sql.DB, set string) (*goose.Provider, error) {
	var dialect goose.Dialect
	switch set {
	case MigrationsSQLite:
		dialect = goose.DialectSQLite3
	case MigrationsPostgres:
		dialect = goose.DialectPostgres
	case MigrationsMySQL:
		dialect = goose.DialectMySQL
	default:
		return nil, fmt.Errorf("unknown migration set %q", set)
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+set)
	if err != nil {
		return nil, err
	}

	return goose.NewProvider(dialect, db, sub)
}

// Migrate applies every pending migration of set and returns how many ran.
func Migrate(ctx context.Context, db *sql.DB, set string) (int, error) {
	provider, err := newMigrationProvider(db, set)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		log.WithFields(log.Fields{
			"component": "migrate",
			"set":       set,
			"version":   r.Source.Version,
			"duration":  r.Duration,
		}).Info("Migration applied")
	}
	return len(results), nil
}

// MigrationStatus returns "version: state" lines for every migration of set.
func MigrationStatus(ctx context.Context, db *sql.DB, set string) ([]string, error) {
	provider, err := newMigrationProvider(db, set)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, fmt.Sprintf("%05d %s: %s", s.Source.Version, s.Source.Path, s.State))
	}
	return out, nil
}
