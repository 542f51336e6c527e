package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/model"
	"lootcase-api/internal/repository"
	"lootcase-api/pkg/money"
	"lootcase-api/pkg/uid"
)

// SaleState is a step of the sale saga.
type SaleState int

const (
	SaleNotStarted SaleState = iota
	SaleRemoved
	SaleCredited
	SaleCompensated
	SaleFatalInconsistent
)

func (s SaleState) String() string {
	switch s {
	case SaleNotStarted:
		return "not_started"
	case SaleRemoved:
		return "removed"
	case SaleCredited:
		return "credited"
	case SaleCompensated:
		return "compensated"
	case SaleFatalInconsistent:
		return "fatal_inconsistent"
	default:
		return "unknown"
	}
}

// SaleKind selects the variant, which only changes the memo and the error
// returned when nothing was removed.
type SaleKind string

const (
	SaleSingle   SaleKind = "single"
	SaleSelected SaleKind = "selected"
	SaleByRarity SaleKind = "by_rarity"
)

// SaleRequest is a sale of rows already resolved against their owner.
type SaleRequest struct {
	Kind     SaleKind
	OwnerID  string
	Items    []model.InventoryItem
	Memo     string
	Metadata map[string]interface{}
	// IP is the caller's address, recorded on audit entries.
	IP       string
}

// SaleOutcome describes a finished saga, successful or not.
type SaleOutcome struct {
	SaleID          string
	State           SaleState
	Removed         []model.InventoryItem
	Value           decimal.Decimal
	ValueCents      int64
	NewBalanceCents int64
}

// SaleExecutor runs the remove, credit, compensate saga. The two store
// calls share no transaction; the credit is always derived from the rows the
// delete actually returned.
type SaleExecutor struct {
	inventory  repository.InventoryRepository
	ledger     repository.LedgerRepository
	commission CommissionHook
	audit      AuditRecorder
	timeout    time.Duration

	wg sync.WaitGroup
}

// NewSaleExecutor creates an executor. commission may be nil.
func NewSaleExecutor(inventory repository.InventoryRepository, ledger repository.LedgerRepository, commission CommissionHook, audit AuditRecorder, timeout time.Duration) *SaleExecutor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SaleExecutor{
		inventory:  inventory,
		ledger:     ledger,
		commission: commission,
		audit:      audit,
		timeout:    timeout,
	}
}

// Execute runs the saga for req. Once the delete has been issued the saga is
// detached from ctx cancellation and bounded by its own timeout instead.
func (e *SaleExecutor) Execute(ctx context.Context, req SaleRequest) (*SaleOutcome, error) {
	out := &SaleOutcome{SaleID: uid.New(), State: SaleNotStarted}
	if len(req.Items) == 0 {
		return out, e.emptyError(req.Kind)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"component": "saga",
		"sale_id":   out.SaleID,
		"kind":      string(req.Kind),
		"owner_id":  req.OwnerID,
	})

	removed, err := e.inventory.DeleteOwnedItems(ctx, req.OwnerID, model.ItemIDs(req.Items))
	if err != nil {
		logger.WithError(err).Error("Sale remove step failed, nothing changed")
		return out, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(removed) == 0 {
		logger.Info("Sale removed no rows")
		return out, e.emptyError(req.Kind)
	}

	out.State = SaleRemoved
	out.Removed = removed

	// A row can change between resolve and delete. Anything that cannot be
	// paid out goes straight back.
	var payable, unpayable []model.InventoryItem
	for _, row := range removed {
		if row.HasValidValue() {
			payable = append(payable, row)
		} else {
			unpayable = append(unpayable, row)
		}
	}
	if len(unpayable) > 0 {
		if err := e.restore(unpayable); err != nil {
			logger.WithError(err).WithField("item_ids", model.ItemIDs(unpayable)).Error("Failed to restore unpayable rows")
		}
		out.Removed = payable
		if len(payable) == 0 {
			if req.Kind == SaleSingle {
				return out, ErrItemNotFound
			}
			return out, ErrNoValidItems
		}
	}

	values := make([]float64, len(payable))
	for i := range payable {
		values[i] = payable[i].Value
	}
	out.Value = money.Sum(values...)

	cents, err := money.ToCents(out.Value)
	if err != nil {
		logger.WithField("value", out.Value.String()).Error("Sale total cannot be settled")
		return out, e.compensate(out, req, payable, err, logger)
	}
	out.ValueCents = cents

	logger = logger.WithFields(log.Fields{
		"item_count": len(payable),
		"value":      out.Value.StringFixed(money.Places),
	})
	logger.WithField("state", out.State.String()).Info("Sale items removed")

	metadata := make(map[string]interface{}, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["sale_id"] = out.SaleID
	metadata["item_ids"] = model.ItemIDs(payable)
	metadata["item_count"] = len(payable)

	balance, err := e.ledger.Increment(ctx, req.OwnerID, out.ValueCents, req.Memo, metadata)
	if err != nil {
		return out, e.compensate(out, req, payable, err, logger)
	}

	out.State = SaleCredited
	out.NewBalanceCents = balance
	logger.WithFields(log.Fields{
		"state":       out.State.String(),
		"new_balance": money.CentsFloat(balance),
	}).Info("Sale credited")

	e.fireCommission(req.OwnerID, req.IP, out)
	return out, nil
}

func (e *SaleExecutor) compensate(out *SaleOutcome, req SaleRequest, rows []model.InventoryItem, creditErr error, logger *log.Entry) error {
	logger.WithError(creditErr).Warn("Sale credit failed, restoring items")

	if err := e.restore(rows); err != nil {
		out.State = SaleFatalInconsistent
		logger.WithFields(log.Fields{
			"state":        out.State.String(),
			"severity":     "critical",
			"item_ids":     model.ItemIDs(rows),
			"credit_error": creditErr.Error(),
		}).WithError(err).Error("Sale left items removed without credit")

		e.record(req.OwnerID, req.IP, ActionSaleFatal, map[string]interface{}{
			"sale_id":       out.SaleID,
			"item_ids":      model.ItemIDs(rows),
			"value":         money.Float(out.Value),
			"credit_error":  creditErr.Error(),
			"restore_error": err.Error(),
		})
		return fmt.Errorf("%w: sale %s", ErrSaleFatal, out.SaleID)
	}

	out.State = SaleCompensated
	logger.WithField("state", out.State.String()).Warn("Sale compensated, items restored")

	e.record(req.OwnerID, req.IP, ActionSaleCompensated, map[string]interface{}{
		"sale_id":      out.SaleID,
		"item_ids":     model.ItemIDs(rows),
		"value":        money.Float(out.Value),
		"credit_error": creditErr.Error(),
	})
	return ErrSaleCompensated
}

// restore re-inserts rows verbatim on a fresh context so that an expired
// saga deadline cannot prevent the compensation.
func (e *SaleExecutor) restore(rows []model.InventoryItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	return e.inventory.InsertItems(ctx, rows)
}

func (e *SaleExecutor) fireCommission(sellerID, ip string, out *SaleOutcome) {
	if e.commission == nil || out.ValueCents <= 0 {
		return
	}

	saleID, cents := out.SaleID, out.ValueCents
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.commission.OnSale(ctx, sellerID, saleID, cents); err != nil {
			log.WithFields(log.Fields{
				"component": "commission",
				"sale_id":   saleID,
				"seller_id": sellerID,
			}).WithError(err).Warn("Commission hook failed")
			e.record(sellerID, ip, ActionCommissionFailed, map[string]interface{}{
				"sale_id": saleID,
				"error":   err.Error(),
			})
		}
	}()
}

func (e *SaleExecutor) record(userID, ip, action string, detail map[string]interface{}) {
	if e.audit != nil {
		e.audit.Record(userID, action, detail, ip)
	}
}

func (e *SaleExecutor) emptyError(kind SaleKind) error {
	if kind == SaleSingle {
		return ErrItemNotFound
	}
	return ErrNoItemsMatched
}

// Wait blocks until every commission hook started so far has returned.
func (e *SaleExecutor) Wait() {
	e.wg.Wait()
}

// IsSaleFailure reports whether err came out of a saga that got past the
// remove step.
func IsSaleFailure(err error) bool {
	return errors.Is(err, ErrSaleCompensated) || errors.Is(err, ErrSaleFatal)
}
