package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lootcase-api/internal/model"
	"lootcase-api/internal/repository"
	"lootcase-api/pkg/uid"
)

// MaxSelectedItems caps one selected-set sale.
const MaxSelectedItems = 100

// CorruptItemError is an owned row whose stored value cannot be paid out.
// It matches ErrItemNotFound so the caller sees the same answer as for a
// missing item.
type CorruptItemError struct {
	ItemID string
	Value  float64
}

func (e *CorruptItemError) Error() string {
	return fmt.Sprintf("item %s has an invalid value", e.ItemID)
}

func (e *CorruptItemError) Is(target error) bool {
	return target == ErrItemNotFound
}

// Selection is the resolved side of a batch sale. Items may be sold;
// Skipped are owned rows with a value that cannot be paid out.
type Selection struct {
	Items    []model.InventoryItem
	Skipped  []model.InventoryItem
	Rarities []model.Rarity
}

// OwnershipValidator resolves client-supplied item references into rows the
// caller actually owns. Lookups are always keyed by id and owner together.
type OwnershipValidator struct {
	inventory repository.InventoryRepository
}

// NewOwnershipValidator creates an ownership validator.
func NewOwnershipValidator(inventory repository.InventoryRepository) *OwnershipValidator {
	return &OwnershipValidator{inventory: inventory}
}

// ResolveOne returns the owned, sellable item. Absent, foreign and corrupt
// rows all come back as ErrItemNotFound.
func (v *OwnershipValidator) ResolveOne(ctx context.Context, itemID, ownerID string) (*model.InventoryItem, error) {
	id, ok := uid.Normalize(itemID)
	if !ok {
		return nil, invalid("itemId", "must be a valid item id")
	}

	item, err := v.inventory.GetOwnedItem(ctx, ownerID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !item.HasValidValue() {
		return nil, &CorruptItemError{ItemID: item.ID, Value: item.Value}
	}
	return item, nil
}

// ResolveSelected resolves an explicit id list. The size cap applies to the
// raw request, before de-duplication, and is checked before any store access.
func (v *OwnershipValidator) ResolveSelected(ctx context.Context, itemIDs []string, ownerID string) (*Selection, error) {
	if len(itemIDs) == 0 {
		return nil, invalid("itemIds", "at least one item id is required")
	}
	if len(itemIDs) > MaxSelectedItems {
		return nil, invalid("itemIds", fmt.Sprintf("at most %d items per request", MaxSelectedItems))
	}

	ids, err := normalizeItemIDs(itemIDs)
	if err != nil {
		return nil, err
	}

	rows, err := v.inventory.ListOwnedItems(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return partition(rows, nil)
}

// ResolveByRarity resolves every owned item in the requested rarity classes.
// Unknown labels are dropped; a request left empty by the drop is invalid.
func (v *OwnershipValidator) ResolveByRarity(ctx context.Context, labels []string, ownerID string) (*Selection, error) {
	if len(labels) == 0 {
		return nil, invalid("rarities", "at least one rarity is required")
	}

	rarities := model.ParseRarities(labels)
	if len(rarities) == 0 {
		return nil, invalid("rarities", "no recognised rarity in request")
	}

	rows, err := v.inventory.ListOwnedByRarity(ctx, ownerID, rarities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return partition(rows, rarities)
}

func normalizeItemIDs(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))

	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		id, ok := uid.Normalize(r)
		if !ok {
			return nil, invalid("itemIds", "contains an invalid item id")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, invalid("itemIds", "at least one item id is required")
	}
	return ids, nil
}

// partition splits rows into sellable and skipped. The returned selection
// is non-nil even alongside an error so callers can audit what was seen.
func partition(rows []model.InventoryItem, rarities []model.Rarity) (*Selection, error) {
	sel := &Selection{Rarities: rarities}
	for _, row := range rows {
		if row.HasValidValue() {
			sel.Items = append(sel.Items, row)
		} else {
			sel.Skipped = append(sel.Skipped, row)
		}
	}

	switch {
	case len(rows) == 0:
		return sel, ErrNoItemsMatched
	case len(sel.Items) == 0:
		return sel, ErrNoValidItems
	}
	return sel, nil
}
