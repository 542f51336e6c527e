package app

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lootcase-api/internal/config"
	"lootcase-api/internal/repository"
)

// Migration targets accepted by OpenMigrationDB.
const (
	TargetStore = "store"
	TargetAudit = "audit"
)

// OpenMigrationDB opens a plain database/sql handle for target along with
// the migration set that applies to it. The caller closes the handle.
func OpenMigrationDB(cfg *config.Config, target string) (*sql.DB, string, error) {
	switch target {
	case TargetStore:
		if cfg.Store.IsPostgres() {
			db, err := sql.Open("pgx", cfg.Store.PostgresDSN())
			return db, repository.MigrationsPostgres, err
		}
		db, err := repository.OpenSQLite(cfg.Store.Path)
		return db, repository.MigrationsSQLite, err
	case TargetAudit:
		if cfg.Audit.Type != "mysql" {
			return nil, "", fmt.Errorf("audit sink is the store (AUDIT_DB_TYPE=%q), migrate the store instead", cfg.Audit.Type)
		}
		db, err := sql.Open("mysql", cfg.Audit.DSN())
		return db, repository.MigrationsMySQL, err
	default:
		return nil, "", fmt.Errorf("unknown migration target %q", target)
	}
}
