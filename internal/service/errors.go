package service

import (
	"errors"
	"fmt"

	"lootcase-api/internal/model"
)

var (
	// ErrUnauthorized covers a bad, expired or mismatched session, and a
	// session check that could not be completed.
	ErrUnauthorized = errors.New("invalid or expired session")

	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("too many requests")

	// ErrItemNotFound does not distinguish an absent item from one owned by
	// another player.
	ErrItemNotFound = errors.New("item not found")

	// ErrNoItemsMatched means a batch selected no rows at all.
	ErrNoItemsMatched = errors.New("no matching items found")

	// ErrNoValidItems means a batch selected rows but none can be paid out.
	ErrNoValidItems = errors.New("no valid items to sell")

	// ErrPersistence is a store failure before any balance change.
	ErrPersistence = errors.New("storage temporarily unavailable")

	// ErrSaleCompensated means the credit failed and the items were put back.
	ErrSaleCompensated = errors.New("transaction failed, item(s) restored")

	// ErrSaleFatal means the credit failed and the items could not be put
	// back.
	ErrSaleFatal = errors.New("sale left an inconsistent state")
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, &ValidationError{}) match any validation error.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitError is a denied request with its Retry-After hint.
type RateLimitError struct {
	Scope      string
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// UpgradeRejectedError carries a non-success capacity upgrade outcome.
type UpgradeRejectedError struct {
	Result *model.UpgradeResult
}

func (e *UpgradeRejectedError) Error() string {
	switch e.Result.Outcome {
	case model.UpgradeInsufficientFunds:
		return "insufficient funds for capacity upgrade"
	case model.UpgradeAtCapacity:
		return "inventory is already at maximum capacity"
	case model.UpgradeUserNotFound:
		return "user not found"
	default:
		return "capacity upgrade rejected"
	}
}

// Outcome returns the tagged outcome code.
func (e *UpgradeRejectedError) Outcome() model.UpgradeOutcome {
	return e.Result.Outcome
}
