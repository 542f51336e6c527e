package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store on a single SQLite file. Times are stored
// as unix milliseconds.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and
// applies pending migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(ctx, db, MigrationsSQLite); err != nil {
		db.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"component": "store", "driver": "sqlite", "path": path}).Info("Store initialized")
	return &SQLiteStore{db: db, path: path}, nil
}

// OpenSQLite opens path with WAL, a busy timeout and foreign keys on.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// DB exposes the handle for tooling.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetStats returns statistics about the store.
func (s *SQLiteStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"driver": "sqlite"}

	var items, owners int64
	var value sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id), SUM(value) FROM inventory_items`,
	).Scan(&items, &owners, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory stats: %w", err)
	}
	stats["items"] = items
	stats["owners"] = owners
	stats["inventory_value"] = value.Float64

	for key, table := range map[string]string{
		"players":        "players",
		"ledger_entries": "ledger_entries",
		"audit_entries":  "audit_log",
	} {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[key] = n
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// marshalMetadata encodes metadata for a JSON column; nil stays NULL.
func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(metadata)
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
