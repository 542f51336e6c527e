package repository

import (
	"context"
	"fmt"
	"time"

	"lootcase-api/internal/model"
)

// InsertAuditEntry appends one entry.
func (s *PostgresStore) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var detail []byte
	if len(e.Detail) > 0 {
		detail = e.Detail
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO audit_log (user_id, action, detail, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.UserID, e.Action, detail, e.IPAddress, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns one page, newest first.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, limit, offset int) ([]model.AuditEntry, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(user_id, ''), action, COALESCE(detail::text, ''), COALESCE(ip_address, ''), created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			detail string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &detail, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if detail != "" {
			e.Detail = []byte(detail)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteAuditBefore prunes entries created before the cutoff.
func (s *PostgresStore) DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
