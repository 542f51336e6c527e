package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lootcase-api/internal/model"
)

// InsertAuditEntry appends one entry.
func (s *SQLiteStore) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detail interface{}
	if len(e.Detail) > 0 {
		detail = string(e.Detail)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, action, detail, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Action, detail, e.IPAddress, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListAuditEntries returns one page, newest first.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, limit, offset int) ([]model.AuditEntry, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(user_id, ''), action, detail, COALESCE(ip_address, ''), created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e       model.AuditEntry
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &detail, &e.IPAddress, &created); err != nil {
			return nil, 0, err
		}
		if detail.Valid {
			e.Detail = json.RawMessage(detail.String)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteAuditBefore prunes entries created before the cutoff.
func (s *SQLiteStore) DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return res.RowsAffected()
}
