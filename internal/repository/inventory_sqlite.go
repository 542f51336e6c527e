package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"lootcase-api/internal/model"
)

const sqliteItemColumns = `id, user_id, name, rarity, color, value, source, acquired_at`

func scanSQLiteItem(s rowScanner) (model.InventoryItem, error) {
	var (
		item     model.InventoryItem
		rarity   string
		value    sql.NullFloat64
		acquired int64
	)
	if err := s.Scan(&item.ID, &item.UserID, &item.Name, &rarity, &item.Color, &value, &item.Source, &acquired); err != nil {
		return model.InventoryItem{}, err
	}

	item.Rarity = model.Rarity(rarity)
	// NULL is how SQLite keeps a NaN; surface it as one so validation rejects it.
	item.Value = math.NaN()
	if value.Valid {
		item.Value = value.Float64
	}
	item.AcquiredAt = time.UnixMilli(acquired).UTC()
	return item, nil
}

func collectSQLiteItems(rows *sql.Rows) ([]model.InventoryItem, error) {
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetOwnedItem returns ErrNotFound when the item is absent or not owned.
func (s *SQLiteStore) GetOwnedItem(ctx context.Context, ownerID, itemID string) (*model.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM inventory_items WHERE id = ? AND user_id = ?`,
		itemID, ownerID)

	item, err := scanSQLiteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// ListOwnedItems returns the owner's items among itemIDs.
func (s *SQLiteStore) ListOwnedItems(ctx context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(itemIDs)+1)
	args = append(args, ownerID)
	for _, id := range itemIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM inventory_items
		WHERE user_id = ? AND id IN (`+placeholders(len(itemIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return collectSQLiteItems(rows)
}

// ListOwnedByRarity returns the owner's items in any of rarities.
func (s *SQLiteStore) ListOwnedByRarity(ctx context.Context, ownerID string, rarities []model.Rarity) ([]model.InventoryItem, error) {
	if len(rarities) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(rarities)+1)
	args = append(args, ownerID)
	for _, r := range rarities {
		args = append(args, string(r))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM inventory_items
		WHERE user_id = ? AND rarity IN (`+placeholders(len(rarities))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items by rarity: %w", err)
	}
	return collectSQLiteItems(rows)
}

// ListInventory returns one page of the owner's items, newest first.
func (s *SQLiteStore) ListInventory(ctx context.Context, ownerID string, limit, offset int) ([]model.InventoryItem, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_items WHERE user_id = ?`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM inventory_items
		WHERE user_id = ? ORDER BY acquired_at DESC, id LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inventory: %w", err)
	}

	items, err := collectSQLiteItems(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read inventory: %w", err)
	}
	return items, total, nil
}

// DeleteOwnedItems removes the owner's items among itemIDs and returns the
// removed rows. Rows already gone are simply absent from the result.
func (s *SQLiteStore) DeleteOwnedItems(ctx context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(itemIDs)+1)
	args = append(args, ownerID)
	for _, id := range itemIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM inventory_items
		WHERE user_id = ? AND id IN (`+placeholders(len(itemIDs))+`)
		RETURNING `+sqliteItemColumns, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete items: %w", err)
	}

	items, err := collectSQLiteItems(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read deleted items: %w", err)
	}
	return items, nil
}

// InsertItems writes items in one transaction.
func (s *SQLiteStore) InsertItems(ctx context.Context, items []model.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO inventory_items (`+sqliteItemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx,
			item.ID, item.UserID, item.Name, string(item.Rarity), item.Color,
			item.Value, item.Source, item.AcquiredAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}
	return nil
}
