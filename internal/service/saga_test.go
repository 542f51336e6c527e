package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootcase-api/internal/model"
	"lootcase-api/pkg/money"
)

func TestSaleExecutor_Execute(t *testing.T) {
	t.Parallel()

	type deps struct {
		store *memStore
		audit *auditSpy
	}

	type testCase struct {
		name string
		kind SaleKind

		// prepareFn seeds the store and returns the items to sell.
		prepareFn func(t *testing.T, d *deps) []model.InventoryItem

		expectedErr     error
		expectedState   SaleState
		expectedCents   int64
		expectedBalance int64
		expectedItems   int
		expectedActions []string
	}

	tests := []testCase{
		{
			name: "credits the rounded sum of removed rows",
			kind: SaleSelected,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				return []model.InventoryItem{
					d.store.addItem("u1", model.RarityRare, 100),
					d.store.addItem("u1", model.RarityEpic, 12.345),
				}
			},
			expectedState:   SaleCredited,
			expectedCents:   11235,
			expectedBalance: 1000 + 11235,
			expectedItems:   0,
		},
		{
			name: "single item rounds half away from zero",
			kind: SaleSingle,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				return []model.InventoryItem{d.store.addItem("u1", model.RarityCommon, 0.125)}
			},
			expectedState:   SaleCredited,
			expectedCents:   13,
			expectedBalance: 1013,
		},
		{
			name: "credit covers only rows actually removed",
			kind: SaleSelected,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				kept := d.store.addItem("u1", model.RarityRare, 5)
				gone := d.store.addItem("u1", model.RarityRare, 7)
				_, err := d.store.DeleteOwnedItems(context.Background(), "u1", []string{gone.ID})
				require.NoError(t, err)
				return []model.InventoryItem{kept, gone}
			},
			expectedState:   SaleCredited,
			expectedCents:   500,
			expectedBalance: 1500,
		},
		{
			name: "lost race on single item",
			kind: SaleSingle,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				it := d.store.addItem("u1", model.RarityRare, 5)
				_, err := d.store.DeleteOwnedItems(context.Background(), "u1", []string{it.ID})
				require.NoError(t, err)
				return []model.InventoryItem{it}
			},
			expectedErr:     ErrItemNotFound,
			expectedState:   SaleNotStarted,
			expectedBalance: 1000,
		},
		{
			name: "lost race on batch",
			kind: SaleByRarity,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				return []model.InventoryItem{{ID: "00000000-0000-0000-0000-000000000001", UserID: "u1", Value: 1}}
			},
			expectedErr:     ErrNoItemsMatched,
			expectedState:   SaleNotStarted,
			expectedBalance: 1000,
		},
		{
			name: "unpayable single row goes back",
			kind: SaleSingle,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				return []model.InventoryItem{d.store.addItem("u1", model.RarityRare, math.NaN())}
			},
			expectedErr:     ErrItemNotFound,
			expectedState:   SaleRemoved,
			expectedBalance: 1000,
			expectedItems:   1,
		},
		{
			name: "unpayable batch goes back",
			kind: SaleSelected,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				return []model.InventoryItem{
					d.store.addItem("u1", model.RarityRare, math.NaN()),
					d.store.addItem("u1", model.RarityRare, math.Inf(1)),
				}
			},
			expectedErr:     ErrNoValidItems,
			expectedState:   SaleRemoved,
			expectedBalance: 1000,
			expectedItems:   2,
		},
		{
			name: "remove failure changes nothing",
			kind: SaleSingle,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				d.store.deleteErr = errInjected
				return []model.InventoryItem{d.store.addItem("u1", model.RarityRare, 5)}
			},
			expectedErr:     ErrPersistence,
			expectedState:   SaleNotStarted,
			expectedBalance: 1000,
			expectedItems:   1,
		},
		{
			name: "credit failure restores items",
			kind: SaleSelected,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				d.store.incrementErr = errInjected
				return []model.InventoryItem{
					d.store.addItem("u1", model.RarityRare, 5),
					d.store.addItem("u1", model.RarityMythic, 250.5),
				}
			},
			expectedErr:     ErrSaleCompensated,
			expectedState:   SaleCompensated,
			expectedCents:   25550,
			expectedBalance: 1000,
			expectedItems:   2,
			expectedActions: []string{ActionSaleCompensated},
		},
		{
			name: "credit and restore failure is fatal",
			kind: SaleSingle,
			prepareFn: func(t *testing.T, d *deps) []model.InventoryItem {
				d.store.incrementErr = errInjected
				d.store.insertErr = errInjected
				return []model.InventoryItem{d.store.addItem("u1", model.RarityRare, 5)}
			},
			expectedErr:     ErrSaleFatal,
			expectedState:   SaleFatalInconsistent,
			expectedCents:   500,
			expectedBalance: 1000,
			expectedItems:   0,
			expectedActions: []string{ActionSaleFatal},
		},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &deps{store: newMemStore(), audit: &auditSpy{}}
			d.store.addPlayer("u1", 1000, nil)
			items := tt.prepareFn(t, d)

			exec := NewSaleExecutor(d.store, d.store, nil, d.audit, time.Second)
			out, err := exec.Execute(context.Background(), SaleRequest{
				Kind:    tt.kind,
				OwnerID: "u1",
				Items:   items,
				Memo:    "test sale",
			})

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedBalance, out.NewBalanceCents)
			}
			assert.Equal(t, tt.expectedState, out.State)
			assert.Equal(t, tt.expectedCents, out.ValueCents)
			assert.Equal(t, tt.expectedBalance, d.store.balance("u1"))
			assert.Equal(t, tt.expectedItems, d.store.itemCount())
			assert.Equal(t, tt.expectedActions, nilIfEmpty(d.audit.actions()))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestSaleExecutor_CompensationRestoresExactRows(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addPlayer("u1", 0, nil)
	a := store.addItem("u1", model.RarityLegendary, 999.99)
	b := store.addItem("u1", model.RarityUncommon, 0.01)
	store.incrementErr = errInjected

	exec := NewSaleExecutor(store, store, nil, &auditSpy{}, time.Second)
	_, err := exec.Execute(context.Background(), SaleRequest{
		Kind:    SaleSelected,
		OwnerID: "u1",
		Items:   []model.InventoryItem{a, b},
	})
	require.ErrorIs(t, err, ErrSaleCompensated)

	for _, want := range []model.InventoryItem{a, b} {
		got, ok := store.item(want.ID)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestSaleExecutor_UnsettleableTotalRestoresItems(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.addPlayer("u1", 1000, nil)

	// Each row is at the per-item ceiling; together they pass int64 cents.
	n := int(math.MaxInt64/100/int64(money.MaxAmount)) + 1
	items := make([]model.InventoryItem, n)
	for i := range items {
		items[i] = store.addItem("u1", model.RarityMythic, money.MaxAmount)
	}
	audit := &auditSpy{}

	exec := NewSaleExecutor(store, store, nil, audit, 10*time.Second)
	out, err := exec.Execute(context.Background(), SaleRequest{
		Kind:    SaleByRarity,
		OwnerID: "u1",
		Items:   items,
		IP:      "203.0.113.7",
	})

	require.ErrorIs(t, err, ErrSaleCompensated)
	assert.Equal(t, SaleCompensated, out.State)
	assert.Zero(t, out.ValueCents)
	assert.Equal(t, int64(1000), store.balance("u1"))
	assert.Equal(t, n, store.itemCount())
	require.Len(t, audit.events, 1)
	assert.Equal(t, ActionSaleCompensated, audit.events[0].Action)
	assert.Equal(t, "203.0.113.7", audit.events[0].IP)
}

func TestSaleExecutor_DetachedFromCancellation(t *testing.T) {
	t.Parallel()

	t.Run("cancelled before start does nothing", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.addPlayer("u1", 0, nil)
		it := store.addItem("u1", model.RarityRare, 5)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		exec := NewSaleExecutor(store, store, nil, &auditSpy{}, time.Second)
		out, err := exec.Execute(ctx, SaleRequest{Kind: SaleSingle, OwnerID: "u1", Items: []model.InventoryItem{it}})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, SaleNotStarted, out.State)
		assert.Equal(t, 1, store.itemCount())
		assert.Equal(t, int64(0), store.inventoryCalls.Load())
	})

	t.Run("cancel during sale still credits", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.addPlayer("u1", 0, nil)
		it := store.addItem("u1", model.RarityRare, 5)

		ctx, cancel := context.WithCancel(context.Background())
		cancelling := &cancelOnDelete{memStore: store, cancel: cancel}

		exec := NewSaleExecutor(cancelling, store, nil, &auditSpy{}, time.Second)
		out, err := exec.Execute(ctx, SaleRequest{Kind: SaleSingle, OwnerID: "u1", Items: []model.InventoryItem{it}})

		require.NoError(t, err)
		assert.Equal(t, SaleCredited, out.State)
		assert.Equal(t, int64(500), store.balance("u1"))
	})
}

// cancelOnDelete cancels the request context as soon as the delete runs.
type cancelOnDelete struct {
	*memStore
	cancel context.CancelFunc
}

func (c *cancelOnDelete) DeleteOwnedItems(ctx context.Context, ownerID string, ids []string) ([]model.InventoryItem, error) {
	c.cancel()
	return c.memStore.DeleteOwnedItems(ctx, ownerID, ids)
}

func TestSaleExecutor_Commission(t *testing.T) {
	t.Parallel()

	t.Run("hook receives the credited amount", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.addPlayer("u1", 0, nil)
		it := store.addItem("u1", model.RarityRare, 42.5)
		hook := &commissionSpy{}

		exec := NewSaleExecutor(store, store, hook, &auditSpy{}, time.Second)
		_, err := exec.Execute(context.Background(), SaleRequest{Kind: SaleSingle, OwnerID: "u1", Items: []model.InventoryItem{it}})
		require.NoError(t, err)

		exec.Wait()
		assert.Equal(t, []int64{4250}, hook.calls)
	})

	t.Run("hook failure keeps the sale", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.addPlayer("u1", 0, nil)
		it := store.addItem("u1", model.RarityRare, 1)
		hook := &commissionSpy{err: errInjected}
		audit := &auditSpy{}

		exec := NewSaleExecutor(store, store, hook, audit, time.Second)
		out, err := exec.Execute(context.Background(), SaleRequest{Kind: SaleSingle, OwnerID: "u1", Items: []model.InventoryItem{it}})
		require.NoError(t, err)

		exec.Wait()
		assert.Equal(t, SaleCredited, out.State)
		assert.Equal(t, int64(100), store.balance("u1"))
		assert.Equal(t, []string{ActionCommissionFailed}, audit.actions())
	})
}

func TestSaleState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "credited", SaleCredited.String())
	assert.Equal(t, "fatal_inconsistent", SaleFatalInconsistent.String())
	assert.Equal(t, "unknown", SaleState(42).String())
}
