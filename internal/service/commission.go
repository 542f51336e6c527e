package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/repository"
	"lootcase-api/pkg/money"
)

// CommissionHook is told about every credited sale. It runs after the sale
// has committed; its failure never reverses the sale.
type CommissionHook interface {
	OnSale(ctx context.Context, sellerID, saleID string, saleCents int64) error
}

// ReferralCommission credits the seller's referrer with a share of the sale.
type ReferralCommission struct {
	players repository.PlayerRepository
	ledger  repository.LedgerRepository
	rate    decimal.Decimal
}

var _ CommissionHook = (*ReferralCommission)(nil)

// NewReferralCommission creates the hook. rate is a fraction, 0.05 for 5%.
func NewReferralCommission(players repository.PlayerRepository, ledger repository.LedgerRepository, rate float64) *ReferralCommission {
	return &ReferralCommission{
		players: players,
		ledger:  ledger,
		rate:    decimal.NewFromFloat(rate),
	}
}

func (c *ReferralCommission) OnSale(ctx context.Context, sellerID, saleID string, saleCents int64) error {
	if !c.rate.IsPositive() || saleCents <= 0 {
		return nil
	}

	seller, err := c.players.GetPlayer(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("failed to load seller: %w", err)
	}
	if !seller.Referred() || *seller.ReferredBy == sellerID {
		return nil
	}

	cents, err := money.ToCents(money.FromCents(saleCents).Mul(c.rate))
	if err != nil {
		return fmt.Errorf("commission for sale %s: %w", saleID, err)
	}
	if cents <= 0 {
		return nil
	}

	referrer := *seller.ReferredBy
	_, err = c.ledger.Increment(ctx, referrer, cents, "Referral commission", map[string]interface{}{
		"sale_id":   saleID,
		"seller_id": sellerID,
	})
	if errors.Is(err, repository.ErrNotFound) {
		log.WithFields(log.Fields{
			"component":   "commission",
			"referrer_id": referrer,
			"sale_id":     saleID,
		}).Warn("Referrer no longer exists, commission skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to credit referrer: %w", err)
	}

	log.WithFields(log.Fields{
		"component":   "commission",
		"referrer_id": referrer,
		"sale_id":     saleID,
		"amount":      money.CentsFloat(cents),
	}).Debug("Referral commission credited")
	return nil
}
