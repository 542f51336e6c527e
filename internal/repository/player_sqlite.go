package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lootcase-api/internal/model"
)

// GetPlayer returns ErrNotFound for an unknown user.
func (s *SQLiteStore) GetPlayer(ctx context.Context, userID string) (*model.PlayerStats, error) {
	var (
		p        model.PlayerStats
		referrer string
		created  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, balance_cents, inventory_max, level, COALESCE(referred_by, ''), created_at
		FROM players WHERE id = ?`, userID,
	).Scan(&p.UserID, &p.Username, &p.BalanceCents, &p.InventoryMax, &p.Level, &referrer, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if referrer != "" {
		p.ReferredBy = &referrer
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	return &p, nil
}

// CreatePlayer inserts a player record.
func (s *SQLiteStore) CreatePlayer(ctx context.Context, p *model.PlayerStats) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, username, balance_cents, inventory_max, level, referred_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Username, p.BalanceCents, p.InventoryMax, p.Level, p.ReferredBy, p.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

// GetRank returns the 1-based position of the user ordered by balance.
func (s *SQLiteStore) GetRank(ctx context.Context, userID string) (int64, error) {
	var rank int64
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 + (SELECT COUNT(*) FROM players p WHERE p.balance_cents > me.balance_cents)
		FROM players me WHERE me.id = ?`, userID,
	).Scan(&rank)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, nil
}

// Increment applies deltaCents and records a ledger entry in one transaction.
func (s *SQLiteStore) Increment(ctx context.Context, userID string, deltaCents int64, memo string, metadata map[string]interface{}) (int64, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode ledger metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE players SET balance_cents = balance_cents + ?
		WHERE id = ? AND balance_cents + ? >= 0
		RETURNING balance_cents`, deltaCents, userID, deltaCents,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM players WHERE id = ?)`, userID,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check player: %w", err)
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	var metaArg interface{}
	if meta != nil {
		metaArg = string(meta)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (user_id, delta_cents, balance_after, memo, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, deltaCents, balance, memo, metaArg, time.Now().UnixMilli(),
	); err != nil {
		return 0, fmt.Errorf("failed to write ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit balance change: %w", err)
	}
	return balance, nil
}

// UpgradeCapacity checks funds and capacity and applies the upgrade in one
// transaction.
func (s *SQLiteStore) UpgradeCapacity(ctx context.Context, userID string, policy model.CapacityPolicy) (*model.UpgradeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		currentMax int
		balance    int64
		referrer   string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT inventory_max, balance_cents, COALESCE(referred_by, '') FROM players WHERE id = ?`, userID,
	).Scan(&currentMax, &balance, &referrer)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.UpgradeResult{Outcome: model.UpgradeUserNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read player: %w", err)
	}

	result := &model.UpgradeResult{CurrentMax: currentMax, BalanceCents: balance}

	newMax, ok := policy.Next(currentMax)
	if !ok {
		result.Outcome = model.UpgradeAtCapacity
		return result, nil
	}

	cost, discounted := policy.Cost(currentMax, referrer != "")
	result.CostCents = cost
	result.DiscountApplied = discounted
	if balance < cost {
		result.Outcome = model.UpgradeInsufficientFunds
		return result, nil
	}

	var newBalance int64
	if err := tx.QueryRowContext(ctx, `
		UPDATE players SET inventory_max = ?, balance_cents = balance_cents - ?
		WHERE id = ? RETURNING balance_cents`, newMax, cost, userID,
	).Scan(&newBalance); err != nil {
		return nil, fmt.Errorf("failed to apply upgrade: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (user_id, delta_cents, balance_after, memo, metadata, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)`,
		userID, -cost, newBalance, capacityMemo(newMax), time.Now().UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("failed to write ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upgrade: %w", err)
	}

	result.NewMax = newMax
	result.NewBalanceCents = newBalance
	return result, nil
}

func capacityMemo(newMax int) string {
	return fmt.Sprintf("Inventory capacity upgrade to %d", newMax)
}
