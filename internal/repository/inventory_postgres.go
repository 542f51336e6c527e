package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"lootcase-api/internal/model"
)

const pgItemColumns = `id, user_id, name, rarity, color, value, source, acquired_at`

func scanPostgresItem(s rowScanner) (model.InventoryItem, error) {
	var (
		item   model.InventoryItem
		rarity string
	)
	if err := s.Scan(&item.ID, &item.UserID, &item.Name, &rarity, &item.Color, &item.Value, &item.Source, &item.AcquiredAt); err != nil {
		return model.InventoryItem{}, err
	}
	item.Rarity = model.Rarity(rarity)
	item.AcquiredAt = item.AcquiredAt.UTC()
	return item, nil
}

func collectPostgresItems(rows pgx.Rows) ([]model.InventoryItem, error) {
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanPostgresItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func raritiesToStrings(rarities []model.Rarity) []string {
	out := make([]string, len(rarities))
	for i, r := range rarities {
		out[i] = string(r)
	}
	return out
}

// GetOwnedItem returns ErrNotFound when the item is absent or not owned.
func (s *PostgresStore) GetOwnedItem(ctx context.Context, ownerID, itemID string) (*model.InventoryItem, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pgItemColumns+` FROM inventory_items WHERE id = $1 AND user_id = $2`,
		itemID, ownerID)

	item, err := scanPostgresItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// ListOwnedItems returns the owner's items among itemIDs.
func (s *PostgresStore) ListOwnedItems(ctx context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+pgItemColumns+` FROM inventory_items WHERE user_id = $1 AND id = ANY($2)`,
		ownerID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return collectPostgresItems(rows)
}

// ListOwnedByRarity returns the owner's items in any of rarities.
func (s *PostgresStore) ListOwnedByRarity(ctx context.Context, ownerID string, rarities []model.Rarity) ([]model.InventoryItem, error) {
	if len(rarities) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+pgItemColumns+` FROM inventory_items WHERE user_id = $1 AND rarity = ANY($2)`,
		ownerID, raritiesToStrings(rarities))
	if err != nil {
		return nil, fmt.Errorf("failed to list items by rarity: %w", err)
	}
	return collectPostgresItems(rows)
}

// ListInventory returns one page of the owner's items, newest first.
func (s *PostgresStore) ListInventory(ctx context.Context, ownerID string, limit, offset int) ([]model.InventoryItem, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_items WHERE user_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+pgItemColumns+` FROM inventory_items
		WHERE user_id = $1 ORDER BY acquired_at DESC, id LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inventory: %w", err)
	}

	items, err := collectPostgresItems(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read inventory: %w", err)
	}
	return items, total, nil
}

// DeleteOwnedItems removes the owner's items among itemIDs and returns the
// removed rows.
func (s *PostgresStore) DeleteOwnedItems(ctx context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`DELETE FROM inventory_items WHERE user_id = $1 AND id = ANY($2) RETURNING `+pgItemColumns,
		ownerID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete items: %w", err)
	}

	items, err := collectPostgresItems(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read deleted items: %w", err)
	}
	return items, nil
}

// InsertItems writes items in one transaction.
func (s *PostgresStore) InsertItems(ctx context.Context, items []model.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	for _, item := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO inventory_items (`+pgItemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, item.UserID, item.Name, string(item.Rarity), item.Color,
			item.Value, item.Source, item.AcquiredAt,
		); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit items: %w", err)
	}
	return nil
}
