package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/model"
	"lootcase-api/internal/ratelimit"
	"lootcase-api/internal/repository"
	"lootcase-api/pkg/money"
	"lootcase-api/pkg/uid"
)

// Rate-limited operations.
const (
	OpSell    = "sell"
	OpBulk    = "bulk_sell"
	OpUpgrade = "upgrade"
	OpList    = "list"
)

const (
	maxUserIDLength = 64

	// maxListPage keeps (page-1)*limit far from int overflow.
	maxListPage = 1_000_000
)

// Caller identifies the player behind a request, as claimed by the client.
type Caller struct {
	UserID string
	Token  string
	IP     string
}

// Limits are the per-operation request budgets.
type Limits struct {
	Sell    ratelimit.Rule
	Bulk    ratelimit.Rule
	Upgrade ratelimit.Rule
	List    ratelimit.Rule
}

func (l Limits) rule(op string) ratelimit.Rule {
	switch op {
	case OpSell:
		return l.Sell
	case OpBulk:
		return l.Bulk
	case OpUpgrade:
		return l.Upgrade
	default:
		return l.List
	}
}

// SellItemResult is a successful single-item sale.
type SellItemResult struct {
	Success    bool    `json:"success"`
	SoldValue  float64 `json:"soldValue"`
	NewBalance float64 `json:"newBalance"`
	ItemName   string  `json:"itemName"`
	SaleID     string  `json:"saleId"`
}

// BatchSaleResult is a successful selected-set or by-rarity sale.
type BatchSaleResult struct {
	Success      bool     `json:"success"`
	TotalValue   float64  `json:"totalValue"`
	NewBalance   float64  `json:"newBalance"`
	SoldCount    int      `json:"soldCount"`
	SkippedCount int      `json:"skippedCount"`
	Rarities     []string `json:"rarities,omitempty"`
	SaleID       string   `json:"saleId"`
}

// UpgradeCapacityResult is a successful capacity upgrade.
type UpgradeCapacityResult struct {
	Success         bool    `json:"success"`
	NewMax          int     `json:"newMax"`
	NewBalance      float64 `json:"newBalance"`
	Cost            float64 `json:"cost"`
	DiscountApplied bool    `json:"discountApplied"`
}

// InventoryPage is one page of the caller's inventory.
type InventoryPage struct {
	Success      bool                  `json:"success"`
	Items        []model.InventoryItem `json:"items"`
	Total        int64                 `json:"total"`
	Page         int                   `json:"page"`
	Limit        int                   `json:"limit"`
	Balance      float64               `json:"balance"`
	InventoryMax int                   `json:"inventoryMax"`
	Rank         *int64                `json:"rank"`
}

// SalesService orchestrates every economy mutation: rate limit, shape
// validation, session, ownership, saga, audit, in that order.
type SalesService struct {
	gates     map[string]*ratelimit.Gate
	limits    Limits
	sessions  SessionValidator
	ownership *OwnershipValidator
	executor  *SaleExecutor
	players   repository.PlayerRepository
	inventory repository.InventoryRepository
	ranks     *RankLookup
	audit     AuditRecorder
	policy    model.CapacityPolicy
}

// SalesDeps groups the collaborators of SalesService.
type SalesDeps struct {
	Limiter  ratelimit.Limiter
	Limits   Limits
	Sessions SessionValidator
	Store    repository.Store
	Executor *SaleExecutor
	Ranks    *RankLookup
	Audit    AuditRecorder
	Capacity model.CapacityPolicy
}

// NewSalesService creates the service. Every economy gate fails closed.
func NewSalesService(d SalesDeps) *SalesService {
	gates := make(map[string]*ratelimit.Gate, 4)
	for _, op := range []string{OpSell, OpBulk, OpUpgrade, OpList} {
		gates[op] = ratelimit.NewGate(d.Limiter, op, ratelimit.FailClosed)
	}

	return &SalesService{
		gates:     gates,
		limits:    d.Limits,
		sessions:  d.Sessions,
		ownership: NewOwnershipValidator(d.Store),
		executor:  d.Executor,
		players:   d.Store,
		inventory: d.Store,
		ranks:     d.Ranks,
		audit:     d.Audit,
		policy:    d.Capacity,
	}
}

// GateStats returns limiter errors and denials per operation.
func (s *SalesService) GateStats() map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(s.gates))
	for op, g := range s.gates {
		errs, denied := g.Stats()
		out[op] = map[string]int64{"errors": errs, "denied": denied}
	}
	return out
}

// SellItem sells one owned item.
func (s *SalesService) SellItem(ctx context.Context, c Caller, itemID string) (*SellItemResult, error) {
	if err := s.admit(ctx, c, OpSell); err != nil {
		return nil, err
	}
	if err := validateCaller(c); err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, invalid("itemId", "is required")
	}
	if _, ok := uid.Normalize(itemID); !ok {
		return nil, invalid("itemId", "must be a valid item id")
	}
	if err := s.authenticate(ctx, c); err != nil {
		return nil, err
	}

	item, err := s.ownership.ResolveOne(ctx, itemID, c.UserID)
	if err != nil {
		s.auditResolveFailure(c, err, map[string]interface{}{"item_id": itemID})
		return nil, err
	}

	out, err := s.executor.Execute(ctx, SaleRequest{
		Kind:    SaleSingle,
		OwnerID: c.UserID,
		IP:      c.IP,
		Items:   []model.InventoryItem{*item},
		Memo:    fmt.Sprintf("Sold item: %s", item.Name),
		Metadata: map[string]interface{}{
			"action":  ActionSellItem,
			"item_id": item.ID,
		},
	})
	if err != nil {
		s.auditSaleFailure(c, err, map[string]interface{}{"item_id": item.ID})
		return nil, err
	}

	s.audit.Record(c.UserID, ActionSellItem, map[string]interface{}{
		"sale_id":   out.SaleID,
		"item_id":   item.ID,
		"item_name": item.Name,
		"rarity":    string(item.Rarity),
		"value":     money.Float(out.Value),
	}, c.IP)
	s.ranks.Invalidate(ctx, c.UserID)

	return &SellItemResult{
		Success:    true,
		SoldValue:  money.Float(out.Value),
		NewBalance: money.CentsFloat(out.NewBalanceCents),
		ItemName:   item.Name,
		SaleID:     out.SaleID,
	}, nil
}

// SellSelected sells an explicit set of owned items.
func (s *SalesService) SellSelected(ctx context.Context, c Caller, itemIDs []string) (*BatchSaleResult, error) {
	if err := s.admit(ctx, c, OpBulk); err != nil {
		return nil, err
	}
	if err := validateCaller(c); err != nil {
		return nil, err
	}
	// Shape is checked before the session so an oversized request never
	// costs a lookup.
	if len(itemIDs) == 0 {
		return nil, invalid("itemIds", "at least one item id is required")
	}
	if len(itemIDs) > MaxSelectedItems {
		return nil, invalid("itemIds", fmt.Sprintf("at most %d items per request", MaxSelectedItems))
	}
	if err := s.authenticate(ctx, c); err != nil {
		return nil, err
	}

	sel, err := s.ownership.ResolveSelected(ctx, itemIDs, c.UserID)
	if err != nil {
		s.auditBatchFailure(c, sel, err, map[string]interface{}{"requested": len(itemIDs)})
		return nil, err
	}
	s.auditSkipped(c, sel)

	out, err := s.executor.Execute(ctx, SaleRequest{
		Kind:    SaleSelected,
		OwnerID: c.UserID,
		IP:      c.IP,
		Items:   sel.Items,
		Memo:    fmt.Sprintf("Sold %d selected items", len(sel.Items)),
		Metadata: map[string]interface{}{
			"action": ActionSellSelected,
		},
	})
	if err != nil {
		s.auditSaleFailure(c, err, map[string]interface{}{"item_ids": model.ItemIDs(sel.Items)})
		return nil, err
	}

	s.audit.Record(c.UserID, ActionSellSelected, map[string]interface{}{
		"sale_id":  out.SaleID,
		"item_ids": model.ItemIDs(out.Removed),
		"count":    len(out.Removed),
		"skipped":  len(sel.Skipped),
		"value":    money.Float(out.Value),
	}, c.IP)
	s.ranks.Invalidate(ctx, c.UserID)

	return &BatchSaleResult{
		Success:      true,
		TotalValue:   money.Float(out.Value),
		NewBalance:   money.CentsFloat(out.NewBalanceCents),
		SoldCount:    len(out.Removed),
		SkippedCount: len(sel.Skipped),
		SaleID:       out.SaleID,
	}, nil
}

// SellByRarity sells every owned item in the requested rarity classes.
func (s *SalesService) SellByRarity(ctx context.Context, c Caller, labels []string) (*BatchSaleResult, error) {
	if err := s.admit(ctx, c, OpBulk); err != nil {
		return nil, err
	}
	if err := validateCaller(c); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, invalid("rarities", "at least one rarity is required")
	}
	if err := s.authenticate(ctx, c); err != nil {
		return nil, err
	}

	sel, err := s.ownership.ResolveByRarity(ctx, labels, c.UserID)
	if err != nil {
		s.auditBatchFailure(c, sel, err, map[string]interface{}{"rarities": labels})
		return nil, err
	}
	s.auditSkipped(c, sel)

	names := rarityNames(sel.Rarities)
	out, err := s.executor.Execute(ctx, SaleRequest{
		Kind:    SaleByRarity,
		OwnerID: c.UserID,
		IP:      c.IP,
		Items:   sel.Items,
		Memo:    fmt.Sprintf("Sold %d items by rarity: %s", len(sel.Items), strings.Join(names, ", ")),
		Metadata: map[string]interface{}{
			"action":   ActionSellByRarity,
			"rarities": names,
		},
	})
	if err != nil {
		s.auditSaleFailure(c, err, map[string]interface{}{"rarities": names})
		return nil, err
	}

	s.audit.Record(c.UserID, ActionSellByRarity, map[string]interface{}{
		"sale_id":  out.SaleID,
		"rarities": names,
		"item_ids": model.ItemIDs(out.Removed),
		"count":    len(out.Removed),
		"skipped":  len(sel.Skipped),
		"value":    money.Float(out.Value),
	}, c.IP)
	s.ranks.Invalidate(ctx, c.UserID)

	return &BatchSaleResult{
		Success:      true,
		TotalValue:   money.Float(out.Value),
		NewBalance:   money.CentsFloat(out.NewBalanceCents),
		SoldCount:    len(out.Removed),
		SkippedCount: len(sel.Skipped),
		Rarities:     names,
		SaleID:       out.SaleID,
	}, nil
}

// UpgradeCapacity buys one inventory capacity step.
func (s *SalesService) UpgradeCapacity(ctx context.Context, c Caller) (*UpgradeCapacityResult, error) {
	if err := s.admit(ctx, c, OpUpgrade); err != nil {
		return nil, err
	}
	if err := validateCaller(c); err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx, c); err != nil {
		return nil, err
	}

	res, err := s.players.UpgradeCapacity(ctx, c.UserID, s.policy)
	if err != nil {
		log.WithFields(log.Fields{
			"component": "sales",
			"user_id":   c.UserID,
		}).WithError(err).Error("Capacity upgrade failed")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !res.Succeeded() {
		s.audit.Record(c.UserID, ActionUpgradeRejected, map[string]interface{}{
			"outcome":     string(res.Outcome),
			"current_max": res.CurrentMax,
			"cost":        money.CentsFloat(res.CostCents),
			"balance":     money.CentsFloat(res.BalanceCents),
		}, c.IP)
		return nil, &UpgradeRejectedError{Result: res}
	}

	s.audit.Record(c.UserID, ActionUpgradeCapacity, map[string]interface{}{
		"new_max":          res.NewMax,
		"cost":             money.CentsFloat(res.CostCents),
		"discount_applied": res.DiscountApplied,
		"new_balance":      money.CentsFloat(res.NewBalanceCents),
	}, c.IP)
	s.ranks.Invalidate(ctx, c.UserID)

	return &UpgradeCapacityResult{
		Success:         true,
		NewMax:          res.NewMax,
		NewBalance:      money.CentsFloat(res.NewBalanceCents),
		Cost:            money.CentsFloat(res.CostCents),
		DiscountApplied: res.DiscountApplied,
	}, nil
}

// ListInventory returns one page of the caller's items and a best-effort rank.
func (s *SalesService) ListInventory(ctx context.Context, c Caller, page, limit int) (*InventoryPage, error) {
	if err := s.admit(ctx, c, OpList); err != nil {
		return nil, err
	}
	if err := validateCaller(c); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if page > maxListPage {
		return nil, invalid("page", "is too large")
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	player, err := s.authenticatePlayer(ctx, c)
	if err != nil {
		return nil, err
	}

	items, total, err := s.inventory.ListInventory(ctx, c.UserID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if items == nil {
		items = []model.InventoryItem{}
	}

	result := &InventoryPage{
		Success: true,
		Items:   items,
		Total:   total,
		Page:    page,
		Limit:   limit,
		Rank:    s.ranks.Lookup(ctx, c.UserID),
	}
	if player != nil {
		result.Balance = money.CentsFloat(player.BalanceCents)
		result.InventoryMax = player.InventoryMax
	}
	return result, nil
}

func (s *SalesService) admit(ctx context.Context, c Caller, op string) error {
	id := strings.TrimSpace(c.UserID)
	if id == "" {
		id = "ip:" + c.IP
	}

	rule := s.limits.rule(op)
	if s.gates[op].Admit(ctx, id, rule) {
		return nil
	}

	s.audit.Record(c.UserID, ActionRateLimited, map[string]interface{}{"operation": op}, c.IP)
	return &RateLimitError{Scope: op, RetryAfter: rule.RetryAfterSeconds()}
}

func validateCaller(c Caller) error {
	id := strings.TrimSpace(c.UserID)
	if id == "" {
		return invalid("userId", "is required")
	}
	if id != c.UserID || len(id) > maxUserIDLength || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return invalid("userId", "is malformed")
	}
	if strings.TrimSpace(c.Token) == "" {
		return invalid("authToken", "is required")
	}
	return nil
}

func (s *SalesService) authenticate(ctx context.Context, c Caller) error {
	_, err := s.authenticatePlayer(ctx, c)
	return err
}

// authenticatePlayer treats a failed check exactly like a rejected one.
func (s *SalesService) authenticatePlayer(ctx context.Context, c Caller) (*model.PlayerStats, error) {
	res, err := s.sessions.Validate(ctx, c.Token, c.UserID, nil)
	if err == nil && res.Valid {
		return res.Player, nil
	}

	entry := log.WithFields(log.Fields{
		"component": "sales",
		"event":     "security",
		"user_id":   c.UserID,
		"ip":        c.IP,
	})
	detail := map[string]interface{}{}
	if err != nil {
		entry.WithError(err).Warn("Session validation errored, rejecting")
		detail["error"] = "validator_error"
	} else {
		entry.WithField("reason", res.Error).Info("Session rejected")
		detail["reason"] = res.Error
	}

	s.audit.Record(c.UserID, ActionAuthFailed, detail, c.IP)
	return nil, ErrUnauthorized
}

func (s *SalesService) auditResolveFailure(c Caller, err error, detail map[string]interface{}) {
	var corrupt *CorruptItemError
	switch {
	case errors.As(err, &corrupt):
		detail["value"] = fmt.Sprint(corrupt.Value)
		s.audit.Record(c.UserID, ActionCorruptItem, detail, c.IP)
	case errors.Is(err, ErrItemNotFound):
		s.audit.Record(c.UserID, ActionItemNotFound, detail, c.IP)
	}
}

func (s *SalesService) auditBatchFailure(c Caller, sel *Selection, err error, detail map[string]interface{}) {
	switch {
	case errors.Is(err, ErrNoItemsMatched):
		s.audit.Record(c.UserID, ActionNoItemsMatched, detail, c.IP)
	case errors.Is(err, ErrNoValidItems):
		s.auditSkipped(c, sel)
		detail["skipped"] = len(sel.Skipped)
		s.audit.Record(c.UserID, ActionNoValidItems, detail, c.IP)
	}
}

func (s *SalesService) auditSkipped(c Caller, sel *Selection) {
	if sel == nil {
		return
	}
	for _, row := range sel.Skipped {
		s.audit.Record(c.UserID, ActionCorruptItem, map[string]interface{}{
			"item_id": row.ID,
			"value":   fmt.Sprint(row.Value),
		}, c.IP)
	}
}

// auditSaleFailure covers saga errors not already audited by the executor.
func (s *SalesService) auditSaleFailure(c Caller, err error, detail map[string]interface{}) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		s.audit.Record(c.UserID, ActionItemNotFound, detail, c.IP)
	case errors.Is(err, ErrNoItemsMatched):
		s.audit.Record(c.UserID, ActionNoItemsMatched, detail, c.IP)
	case errors.Is(err, ErrNoValidItems):
		s.audit.Record(c.UserID, ActionNoValidItems, detail, c.IP)
	}
}

func rarityNames(rs []model.Rarity) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
