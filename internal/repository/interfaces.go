package repository

import (
	"context"
	"errors"
	"time"

	"lootcase-api/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrInsufficientFunds is returned when a debit would take a balance
	// below zero.
	ErrInsufficientFunds = errors.New("repository: insufficient funds")
)

// InventoryRepository defines inventory data access methods. Every read and
// delete is scoped by owner.
type InventoryRepository interface {
	// GetOwnedItem returns ErrNotFound when the item is absent or owned by
	// someone else.
	GetOwnedItem(ctx context.Context, ownerID, itemID string) (*model.InventoryItem, error)

	// ListOwnedItems returns the subset of itemIDs the owner holds.
	ListOwnedItems(ctx context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error)

	// ListOwnedByRarity returns every item of the owner in one of rarities.
	ListOwnedByRarity(ctx context.Context, ownerID string, rarities []model.Rarity) ([]model.InventoryItem, error)

	// ListInventory returns one page of the owner's items, newest first, and
	// the total item count.
	ListInventory(ctx context.Context, ownerID string, limit, offset int) ([]model.InventoryItem, int64, error)

	// DeleteOwnedItems removes the owner's items among itemIDs in a single
	// statement and returns the rows it actually removed.
	DeleteOwnedItems(ctx context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error)

	// InsertItems writes items verbatim, all or nothing.
	InsertItems(ctx context.Context, items []model.InventoryItem) error

	// GetStats returns statistics about the store.
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// LedgerRepository is the balance ledger. Increment is atomic per call: the
// balance update and its ledger entry commit together.
type LedgerRepository interface {
	// Increment adds deltaCents (which may be negative) and returns the new
	// balance. Fails with ErrNotFound or ErrInsufficientFunds.
	Increment(ctx context.Context, userID string, deltaCents int64, memo string, metadata map[string]interface{}) (int64, error)
}

// PlayerRepository defines player record access.
type PlayerRepository interface {
	GetPlayer(ctx context.Context, userID string) (*model.PlayerStats, error)

	CreatePlayer(ctx context.Context, p *model.PlayerStats) error

	// GetRank returns the 1-based leaderboard position by balance.
	GetRank(ctx context.Context, userID string) (int64, error)

	// UpgradeCapacity checks and applies one capacity upgrade in a single
	// transaction. Business outcomes are reported in the result, not as
	// errors.
	UpgradeCapacity(ctx context.Context, userID string, policy model.CapacityPolicy) (*model.UpgradeResult, error)
}

// AuditRepository stores audit entries.
type AuditRepository interface {
	InsertAuditEntry(ctx context.Context, entry *model.AuditEntry) error

	// ListAuditEntries returns one page, newest first, and the total count.
	ListAuditEntries(ctx context.Context, limit, offset int) ([]model.AuditEntry, int64, error)

	// DeleteAuditBefore prunes entries older than before.
	DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store is everything the service layer needs from one database.
type Store interface {
	InventoryRepository
	LedgerRepository
	PlayerRepository
	AuditRepository

	Ping(ctx context.Context) error
	Close() error
}
