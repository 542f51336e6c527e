package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lootcase-api/internal/model"
	"lootcase-api/internal/repository"
	"lootcase-api/pkg/uid"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory repository.Store with failure injection.
type memStore struct {
	mu      sync.Mutex
	items   map[string]model.InventoryItem
	players map[string]*model.PlayerStats
	audit   []model.AuditEntry
	memos   []string

	deleteErr    error
	incrementErr error
	insertErr    error
	readErr      error
	rankErr      error

	inventoryCalls atomic.Int64
	rankCalls      atomic.Int64
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		items:   make(map[string]model.InventoryItem),
		players: make(map[string]*model.PlayerStats),
	}
}

func (s *memStore) addPlayer(id string, balanceCents int64, referredBy *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[id] = &model.PlayerStats{
		UserID:       id,
		Username:     "player-" + id,
		BalanceCents: balanceCents,
		InventoryMax: 50,
		Level:        1,
		ReferredBy:   referredBy,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) addItem(owner string, rarity model.Rarity, value float64) model.InventoryItem {
	item := model.InventoryItem{
		ID:         uid.New(),
		UserID:     owner,
		Name:       string(rarity) + " Knife",
		Rarity:     rarity,
		Color:      "#ffffff",
		Value:      value,
		Source:     "case",
		AcquiredAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	s.mu.Lock()
	s.items[item.ID] = item
	s.mu.Unlock()
	return item
}

func (s *memStore) balance(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[id].BalanceCents
}

func (s *memStore) item(id string) (model.InventoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	return it, ok
}

func (s *memStore) itemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *memStore) GetOwnedItem(_ context.Context, ownerID, itemID string) (*model.InventoryItem, error) {
	s.inventoryCalls.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok || it.UserID != ownerID {
		return nil, repository.ErrNotFound
	}
	return &it, nil
}

func (s *memStore) ListOwnedItems(_ context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error) {
	s.inventoryCalls.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryItem
	for _, id := range itemIDs {
		if it, ok := s.items[id]; ok && it.UserID == ownerID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *memStore) ListOwnedByRarity(_ context.Context, ownerID string, rarities []model.Rarity) ([]model.InventoryItem, error) {
	s.inventoryCalls.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	want := make(map[model.Rarity]bool, len(rarities))
	for _, r := range rarities {
		want[r] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryItem
	for _, it := range s.items {
		if it.UserID == ownerID && want[it.Rarity] {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListInventory(_ context.Context, ownerID string, limit, offset int) ([]model.InventoryItem, int64, error) {
	s.inventoryCalls.Add(1)
	if s.readErr != nil {
		return nil, 0, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var owned []model.InventoryItem
	for _, it := range s.items {
		if it.UserID == ownerID {
			owned = append(owned, it)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	total := int64(len(owned))
	if offset >= len(owned) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], total, nil
}

func (s *memStore) DeleteOwnedItems(_ context.Context, ownerID string, itemIDs []string) ([]model.InventoryItem, error) {
	s.inventoryCalls.Add(1)
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []model.InventoryItem
	for _, id := range itemIDs {
		if it, ok := s.items[id]; ok && it.UserID == ownerID {
			removed = append(removed, it)
			delete(s.items, id)
		}
	}
	return removed, nil
}

func (s *memStore) InsertItems(_ context.Context, items []model.InventoryItem) error {
	s.inventoryCalls.Add(1)
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if _, ok := s.items[it.ID]; ok {
			return errors.New("duplicate item id")
		}
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return nil
}

func (s *memStore) GetStats(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"type": "memory", "total_items": s.itemCount()}, nil
}

func (s *memStore) Increment(_ context.Context, userID string, deltaCents int64, memo string, _ map[string]interface{}) (int64, error) {
	if s.incrementErr != nil {
		return 0, s.incrementErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if p.BalanceCents+deltaCents < 0 {
		return 0, repository.ErrInsufficientFunds
	}
	p.BalanceCents += deltaCents
	s.memos = append(s.memos, memo)
	return p.BalanceCents, nil
}

func (s *memStore) GetPlayer(_ context.Context, userID string) (*model.PlayerStats, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) CreatePlayer(_ context.Context, p *model.PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.players[p.UserID] = &cp
	return nil
}

func (s *memStore) GetRank(_ context.Context, userID string) (int64, error) {
	s.rankCalls.Add(1)
	if s.rankErr != nil {
		return 0, s.rankErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.players[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rank := int64(1)
	for _, p := range s.players {
		if p.BalanceCents > me.BalanceCents {
			rank++
		}
	}
	return rank, nil
}

func (s *memStore) UpgradeCapacity(_ context.Context, userID string, policy model.CapacityPolicy) (*model.UpgradeResult, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[userID]
	if !ok {
		return &model.UpgradeResult{Outcome: model.UpgradeUserNotFound}, nil
	}
	next, ok := policy.Next(p.InventoryMax)
	if !ok {
		return &model.UpgradeResult{Outcome: model.UpgradeAtCapacity, CurrentMax: p.InventoryMax}, nil
	}
	cost, discount := policy.Cost(p.InventoryMax, p.Referred())
	if p.BalanceCents < cost {
		return &model.UpgradeResult{
			Outcome:      model.UpgradeInsufficientFunds,
			CurrentMax:   p.InventoryMax,
			BalanceCents: p.BalanceCents,
			CostCents:    cost,
		}, nil
	}
	p.BalanceCents -= cost
	p.InventoryMax = next
	return &model.UpgradeResult{
		NewMax:          next,
		NewBalanceCents: p.BalanceCents,
		CostCents:       cost,
		DiscountApplied: discount,
	}, nil
}

func (s *memStore) InsertAuditEntry(_ context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *e)
	return nil
}

func (s *memStore) ListAuditEntries(_ context.Context, limit, offset int) ([]model.AuditEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := int64(len(s.audit))
	if offset >= len(s.audit) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(s.audit) {
		end = len(s.audit)
	}
	return append([]model.AuditEntry(nil), s.audit[offset:end]...), total, nil
}

func (s *memStore) DeleteAuditBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	var n int64
	for _, e := range s.audit {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return n, nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

type recordedEvent struct {
	UserID string
	Action string
	Detail map[string]interface{}
	IP     string
}

// auditSpy records events synchronously.
type auditSpy struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *auditSpy) Record(userID, action string, detail map[string]interface{}, ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{UserID: userID, Action: action, Detail: detail, IP: ip})
}

func (a *auditSpy) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

// stubSessions accepts token "token-<userID>".
type stubSessions struct {
	store *memStore
	err   error
	calls atomic.Int64
}

func (s *stubSessions) Validate(ctx context.Context, token, claimedUserID string, fields []string) (SessionResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return SessionResult{}, s.err
	}
	if token != "token-"+claimedUserID {
		return SessionResult{Valid: false, Error: "invalid token"}, nil
	}
	p, err := s.store.GetPlayer(ctx, claimedUserID)
	if err != nil {
		return SessionResult{Valid: false, Error: "unknown player"}, nil
	}
	return SessionResult{Valid: true, Stats: p.Project(fields), Player: p}, nil
}

// stubLimiter admits up to max per key, or fails with err.
type stubLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (l *stubLimiter) Allow(_ context.Context, key string, max int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	if l.counts[key] >= max {
		return false, nil
	}
	l.counts[key]++
	return true, nil
}

type commissionSpy struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (c *commissionSpy) OnSale(_ context.Context, _, _ string, saleCents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, saleCents)
	return c.err
}
