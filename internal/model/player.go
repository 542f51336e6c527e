package model

import (
	"time"

	"github.com/shopspring/decimal"

	"lootcase-api/pkg/money"
)

// Player stat fields a caller may request from session validation.
const (
	FieldBalance      = "balance"
	FieldInventoryMax = "inventory_max"
	FieldUsername     = "username"
	FieldLevel        = "level"
	FieldReferredBy   = "referred_by"
	FieldCreatedAt    = "created_at"
)

// PlayerStats is the trusted player record returned alongside a valid
// session. Balance is held in cents.
type PlayerStats struct {
	UserID       string
	Username     string
	BalanceCents int64
	InventoryMax int
	Level        int
	ReferredBy   *string
	CreatedAt    time.Time
}

// Referred reports whether the player joined through a referral.
func (p *PlayerStats) Referred() bool {
	return p.ReferredBy != nil && *p.ReferredBy != ""
}

// Project returns only the requested fields. Unknown names are ignored.
func (p *PlayerStats) Project(fields []string) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		switch f {
		case FieldBalance:
			out[f] = money.CentsFloat(p.BalanceCents)
		case FieldInventoryMax:
			out[f] = p.InventoryMax
		case FieldUsername:
			out[f] = p.Username
		case FieldLevel:
			out[f] = p.Level
		case FieldReferredBy:
			out[f] = p.ReferredBy
		case FieldCreatedAt:
			out[f] = p.CreatedAt
		}
	}
	return out
}

// UpgradeOutcome tags a failed capacity upgrade. Empty means success.
type UpgradeOutcome string

const (
	UpgradeOK                UpgradeOutcome = ""
	UpgradeInsufficientFunds UpgradeOutcome = "INSUFFICIENT_FUNDS"
	UpgradeAtCapacity        UpgradeOutcome = "AT_CAPACITY"
	UpgradeUserNotFound      UpgradeOutcome = "USER_NOT_FOUND"
)

// UpgradeResult is the tagged result of the atomic capacity upgrade.
type UpgradeResult struct {
	Outcome         UpgradeOutcome
	NewMax          int
	CurrentMax      int
	NewBalanceCents int64
	BalanceCents    int64
	CostCents       int64
	DiscountApplied bool
}

// Succeeded reports whether the upgrade was applied.
func (r *UpgradeResult) Succeeded() bool {
	return r.Outcome == UpgradeOK
}

// CapacityPolicy prices inventory capacity upgrades.
type CapacityPolicy struct {
	StartMax         int
	Step             int
	MaxCapacity      int
	BaseCostCents    int64
	IncrementCents   int64
	ReferralDiscount int // percent
}

// Cost returns the price of the next upgrade from currentMax and whether
// the referral discount was applied.
func (p CapacityPolicy) Cost(currentMax int, referred bool) (int64, bool) {
	step := p.Step
	if step <= 0 {
		step = 1
	}
	tier := (currentMax - p.StartMax) / step
	if tier < 0 {
		tier = 0
	}

	cost := p.BaseCostCents + int64(tier)*p.IncrementCents
	if !referred || p.ReferralDiscount <= 0 {
		return cost, false
	}

	keep := decimal.NewFromInt(int64(100 - p.ReferralDiscount)).Div(decimal.NewFromInt(100))
	return decimal.NewFromInt(cost).Mul(keep).Round(0).IntPart(), true
}

// Next returns the capacity after one upgrade, and false when currentMax
// is already at the ceiling.
func (p CapacityPolicy) Next(currentMax int) (int, bool) {
	if currentMax >= p.MaxCapacity {
		return currentMax, false
	}
	next := currentMax + p.Step
	if next > p.MaxCapacity {
		next = p.MaxCapacity
	}
	return next, true
}
