package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lootcase-api/internal/model"
)

// GetPlayer returns ErrNotFound for an unknown user.
func (s *PostgresStore) GetPlayer(ctx context.Context, userID string) (*model.PlayerStats, error) {
	var (
		p        model.PlayerStats
		referrer string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, username, balance_cents, inventory_max, level, COALESCE(referred_by, ''), created_at
		FROM players WHERE id = $1`, userID,
	).Scan(&p.UserID, &p.Username, &p.BalanceCents, &p.InventoryMax, &p.Level, &referrer, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if referrer != "" {
		p.ReferredBy = &referrer
	}
	return &p, nil
}

// CreatePlayer inserts a player record.
func (s *PostgresStore) CreatePlayer(ctx context.Context, p *model.PlayerStats) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO players (id, username, balance_cents, inventory_max, level, referred_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.UserID, p.Username, p.BalanceCents, p.InventoryMax, p.Level, p.ReferredBy, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

// GetRank returns the 1-based position of the user ordered by balance.
func (s *PostgresStore) GetRank(ctx context.Context, userID string) (int64, error) {
	var rank int64
	err := s.db.QueryRow(ctx, `
		SELECT 1 + (SELECT COUNT(*) FROM players p WHERE p.balance_cents > me.balance_cents)
		FROM players me WHERE me.id = $1`, userID,
	).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, nil
}

// Increment applies deltaCents and records a ledger entry in one transaction.
func (s *PostgresStore) Increment(ctx context.Context, userID string, deltaCents int64, memo string, metadata map[string]interface{}) (int64, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode ledger metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, txOptions)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var balance int64
	err = tx.QueryRow(ctx, `
		UPDATE players SET balance_cents = balance_cents + $2
		WHERE id = $1 AND balance_cents + $2 >= 0
		RETURNING balance_cents`, userID, deltaCents,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM players WHERE id = $1)`, userID,
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

	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (user_id, delta_cents, balance_after, memo, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, deltaCents, balance, memo, meta,
	); err != nil {
		return 0, fmt.Errorf("failed to write ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit balance change: %w", err)
	}
	return balance, nil
}

// UpgradeCapacity locks the player row, checks funds and capacity and
// applies the upgrade in one transaction.
func (s *PostgresStore) UpgradeCapacity(ctx context.Context, userID string, policy model.CapacityPolicy) (*model.UpgradeResult, error) {
	tx, err := s.db.BeginTx(ctx, txOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var (
		currentMax int
		balance    int64
		referrer   string
	)
	err = tx.QueryRow(ctx, `
		SELECT inventory_max, balance_cents, COALESCE(referred_by, '')
		FROM players WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&currentMax, &balance, &referrer)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.UpgradeResult{Outcome: model.UpgradeUserNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock player: %w", err)
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
	if err := tx.QueryRow(ctx, `
		UPDATE players SET inventory_max = $2, balance_cents = balance_cents - $3
		WHERE id = $1 RETURNING balance_cents`, userID, newMax, cost,
	).Scan(&newBalance); err != nil {
		return nil, fmt.Errorf("failed to apply upgrade: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (user_id, delta_cents, balance_after, memo)
		VALUES ($1, $2, $3, $4)`,
		userID, -cost, newBalance, capacityMemo(newMax),
	); err != nil {
		return nil, fmt.Errorf("failed to write ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit upgrade: %w", err)
	}

	result.NewMax = newMax
	result.NewBalanceCents = newBalance
	return result, nil
}
