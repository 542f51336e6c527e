package repository

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootcase-api/internal/model"
)

var testPolicy = model.CapacityPolicy{
	StartMax:         50,
	Step:             10,
	MaxCapacity:      70,
	BaseCostCents:    10000,
	IncrementCents:   5000,
	ReferralDiscount: 10,
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPlayer(t *testing.T, s *SQLiteStore, id string, balanceCents int64, referredBy *string) {
	t.Helper()
	require.NoError(t, s.CreatePlayer(context.Background(), &model.PlayerStats{
		UserID:       id,
		Username:     "player-" + id,
		BalanceCents: balanceCents,
		InventoryMax: 50,
		Level:        1,
		ReferredBy:   referredBy,
	}))
}

func testItem(id, owner string, rarity model.Rarity, value float64) model.InventoryItem {
	return model.InventoryItem{
		ID:         id,
		UserID:     owner,
		Name:       "Item " + id,
		Rarity:     rarity,
		Color:      "#ff00aa",
		Value:      value,
		Source:     "case:starter",
		AcquiredAt: time.UnixMilli(1700000000123).UTC(),
	}
}

func TestSQLiteStore_GetOwnedItemIsScopedByOwner(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertItems(ctx, []model.InventoryItem{testItem("a", "u1", model.RarityRare, 12.345)}))

	item, err := s.GetOwnedItem(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, testItem("a", "u1", model.RarityRare, 12.345), *item)

	_, err = s.GetOwnedItem(ctx, "u2", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetOwnedItem(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_NaNValueReadsBackInvalid(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertItems(ctx, []model.InventoryItem{testItem("nan", "u1", model.RarityEpic, math.NaN())}))

	item, err := s.GetOwnedItem(ctx, "u1", "nan")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(item.Value))
	assert.False(t, item.HasValidValue())
}

func TestSQLiteStore_DeleteOwnedItemsReturnsRemovedRows(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertItems(ctx, []model.InventoryItem{
		testItem("a", "u1", model.RarityRare, 1.5),
		testItem("b", "u1", model.RarityCommon, 2.25),
		testItem("c", "u1", model.RarityCommon, 3),
		testItem("x", "u2", model.RarityRare, 100),
	}))

	removed, err := s.DeleteOwnedItems(ctx, "u1", []string{"a", "b", "x", "nope"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, model.ItemIDs(removed))

	// a second sale of the same rows removes nothing
	removed, err = s.DeleteOwnedItems(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = s.GetOwnedItem(ctx, "u2", "x")
	assert.NoError(t, err, "another owner's row must survive")
}

func TestSQLiteStore_InsertItemsRestoresExactRows(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	original := []model.InventoryItem{
		testItem("a", "u1", model.RarityMythic, 999.99),
		testItem("b", "u1", model.RarityUncommon, 0.01),
	}
	require.NoError(t, s.InsertItems(ctx, original))

	removed, err := s.DeleteOwnedItems(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, s.InsertItems(ctx, removed))

	restored, err := s.ListOwnedItems(ctx, "u1", []string{"a", "b"})
	require.NoError(t, err)
	assert.ElementsMatch(t, original, restored)
}

func TestSQLiteStore_InsertItemsIsAllOrNothing(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertItems(ctx, []model.InventoryItem{testItem("dup", "u1", model.RarityRare, 1)}))

	err := s.InsertItems(ctx, []model.InventoryItem{
		testItem("fresh", "u1", model.RarityRare, 1),
		testItem("dup", "u1", model.RarityRare, 1),
	})
	require.Error(t, err)

	_, err = s.GetOwnedItem(ctx, "u1", "fresh")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListOwnedByRarity(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertItems(ctx, []model.InventoryItem{
		testItem("a", "u1", model.RarityRare, 1),
		testItem("b", "u1", model.RarityEpic, 1),
		testItem("c", "u1", model.RarityCommon, 1),
		testItem("d", "u2", model.RarityRare, 1),
	}))

	items, err := s.ListOwnedByRarity(ctx, "u1", []model.Rarity{model.RarityRare, model.RarityEpic})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, model.ItemIDs(items))

	items, err = s.ListOwnedByRarity(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSQLiteStore_ListInventory(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	older := testItem("old", "u1", model.RarityRare, 1)
	older.AcquiredAt = older.AcquiredAt.Add(-time.Hour)
	require.NoError(t, s.InsertItems(ctx, []model.InventoryItem{older, testItem("new", "u1", model.RarityRare, 1)}))

	items, total, err := s.ListInventory(ctx, "u1", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].ID)
}

func TestSQLiteStore_Increment(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPlayer(t, s, "u1", 10000, nil)

	balance, err := s.Increment(ctx, "u1", 1235, "Sold Item a", map[string]interface{}{"item_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(11235), balance)

	_, err = s.Increment(ctx, "u1", -20000, "debit", nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = s.Increment(ctx, "ghost", 100, "credit", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := s.GetPlayer(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(11235), p.BalanceCents)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["ledger_entries"])
}

func TestSQLiteStore_GetRank(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	seedPlayer(t, s, "rich", 50000, nil)
	seedPlayer(t, s, "mid", 20000, nil)
	seedPlayer(t, s, "poor", 100, nil)

	rank, err := s.GetRank(ctx, "mid")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	_, err = s.GetRank(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpgradeCapacity(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	referrer := "rich"
	seedPlayer(t, s, "u1", 25000, &referrer)
	seedPlayer(t, s, "broke", 100, nil)

	res, err := s.UpgradeCapacity(ctx, "u1", testPolicy)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 60, res.NewMax)
	assert.Equal(t, int64(9000), res.CostCents)
	assert.True(t, res.DiscountApplied)
	assert.Equal(t, int64(16000), res.NewBalanceCents)

	res, err = s.UpgradeCapacity(ctx, "u1", testPolicy)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 70, res.NewMax)
	assert.Equal(t, int64(13500), res.CostCents)
	assert.Equal(t, int64(2500), res.NewBalanceCents)

	res, err = s.UpgradeCapacity(ctx, "u1", testPolicy)
	require.NoError(t, err)
	assert.Equal(t, model.UpgradeAtCapacity, res.Outcome)

	res, err = s.UpgradeCapacity(ctx, "broke", testPolicy)
	require.NoError(t, err)
	assert.Equal(t, model.UpgradeInsufficientFunds, res.Outcome)
	assert.Equal(t, int64(10000), res.CostCents)

	res, err = s.UpgradeCapacity(ctx, "ghost", testPolicy)
	require.NoError(t, err)
	assert.Equal(t, model.UpgradeUserNotFound, res.Outcome)

	p, err := s.GetPlayer(ctx, "broke")
	require.NoError(t, err)
	assert.Equal(t, 50, p.InventoryMax)
	assert.Equal(t, int64(100), p.BalanceCents)
}

func TestSQLiteStore_Audit(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := &model.AuditEntry{Action: "sell_item", UserID: "u1", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := &model.AuditEntry{
		Action:    "rate_limited",
		UserID:    "u2",
		IPAddress: "10.0.0.1",
		Detail:    json.RawMessage(`{"scope":"sell"}`),
		CreatedAt: now,
	}
	require.NoError(t, s.InsertAuditEntry(ctx, old))
	require.NoError(t, s.InsertAuditEntry(ctx, fresh))
	assert.NotZero(t, fresh.ID)

	entries, total, err := s.ListAuditEntries(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "rate_limited", entries[0].Action)
	assert.JSONEq(t, `{"scope":"sell"}`, string(entries[0].Detail))

	n, err := s.DeleteAuditBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMigrationStatus(t *testing.T) {
	t.Parallel()

	s := newTestSQLiteStore(t)
	lines, err := MigrationStatus(context.Background(), s.DB(), MigrationsSQLite)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "applied")
}
