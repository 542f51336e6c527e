package model

import (
	"strings"
	"time"

	"lootcase-api/pkg/money"
)

// Rarity is the drop class of an inventory item.
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityUncommon  Rarity = "Uncommon"
	RarityRare      Rarity = "Rare"
	RarityEpic      Rarity = "Epic"
	RarityLegendary Rarity = "Legendary"
	RarityMythic    Rarity = "Mythic"
)

// Rarities lists every rarity in ascending order.
var Rarities = []Rarity{
	RarityCommon,
	RarityUncommon,
	RarityRare,
	RarityEpic,
	RarityLegendary,
	RarityMythic,
}

// ParseRarity maps a client label to its canonical rarity.
// Matching ignores case and surrounding whitespace.
func ParseRarity(label string) (Rarity, bool) {
	label = strings.TrimSpace(label)
	for _, r := range Rarities {
		if strings.EqualFold(label, string(r)) {
			return r, true
		}
	}
	return "", false
}

// ParseRarities keeps the known labels of a request, de-duplicated, in
// request order. Unknown labels are dropped.
func ParseRarities(labels []string) []Rarity {
	seen := make(map[Rarity]struct{}, len(labels))
	out := make([]Rarity, 0, len(labels))
	for _, label := range labels {
		r, ok := ParseRarity(label)
		if !ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// InventoryItem is one collectible owned by a player.
type InventoryItem struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	Rarity     Rarity    `json:"rarity"`
	Color      string    `json:"color"`
	Value      float64   `json:"value"`
	Source     string    `json:"source"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// HasValidValue reports whether the stored value may be paid out.
func (i *InventoryItem) HasValidValue() bool {
	return money.IsValidAmount(i.Value)
}

// ItemIDs returns the ids of items in order.
func ItemIDs(items []InventoryItem) []string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}
