package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/model"
)

// MySQLAuditRepository keeps the audit trail in a separate MySQL database,
// away from the game store.
type MySQLAuditRepository struct {
	db *sql.DB
}

var _ AuditRepository = (*MySQLAuditRepository)(nil)

// NewMySQLAuditRepository connects, migrates and returns the repository.
func NewMySQLAuditRepository(ctx context.Context, dsn string) (*MySQLAuditRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if _, err := Migrate(ctx, db, MigrationsMySQL); err != nil {
		db.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"component": "audit", "driver": "mysql"}).Info("Audit repository initialized")
	return NewMySQLAuditRepositoryFromDB(db), nil
}

// NewMySQLAuditRepositoryFromDB wraps an open handle.
func NewMySQLAuditRepositoryFromDB(db *sql.DB) *MySQLAuditRepository {
	return &MySQLAuditRepository{db: db}
}

// InsertAuditEntry appends one entry.
func (r *MySQLAuditRepository) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detail interface{}
	if len(e.Detail) > 0 {
		detail = string(e.Detail)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, action, detail, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Action, detail, e.IPAddress, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListAuditEntries returns one page, newest first.
func (r *MySQLAuditRepository) ListAuditEntries(ctx context.Context, limit, offset int) ([]model.AuditEntry, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(user_id, ''), action, detail, COALESCE(ip_address, ''), created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &detail, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if detail.Valid {
			e.Detail = json.RawMessage(detail.String)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteAuditBefore prunes entries created before the cutoff.
func (r *MySQLAuditRepository) DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the audit database.
func (r *MySQLAuditRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *MySQLAuditRepository) Close() error {
	return r.db.Close()
}
