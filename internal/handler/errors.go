package handler

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/model"
	"lootcase-api/internal/service"
	"lootcase-api/pkg/apierror"
)

// mapError converts a service error into the client-facing API error. It is
// the only place domain errors meet HTTP status codes.
func mapError(err error) *apierror.Error {
	var (
		validation *service.ValidationError
		limited    *service.RateLimitError
		rejected   *service.UpgradeRejectedError
	)

	switch {
	case errors.As(err, &validation):
		return apierror.ValidationError(validation.Error(), apierror.FieldError{
			Field:   validation.Field,
			Message: validation.Message,
		})
	case errors.Is(err, service.ErrUnauthorized):
		return apierror.Unauthorized("Invalid or expired session")
	case errors.As(err, &limited):
		return apierror.TooManyRequests("", limited.RetryAfter)
	case errors.Is(err, service.ErrItemNotFound):
		return apierror.NotFound("Item not found")
	case errors.Is(err, service.ErrNoItemsMatched):
		return apierror.NotFound("No matching items found")
	case errors.Is(err, service.ErrNoValidItems):
		return apierror.NotFound("No valid items to sell").WithCode("NO_VALID_ITEMS")
	case errors.As(err, &rejected):
		return upgradeError(rejected)
	case errors.Is(err, service.ErrSaleCompensated):
		return apierror.InternalError("Transaction failed, item(s) restored").WithCode("SALE_RESTORED")
	case errors.Is(err, service.ErrPersistence):
		return apierror.InternalError("Storage temporarily unavailable, please retry")
	}

	log.WithField("component", "handler").WithError(err).Error("Unhandled service error")
	return apierror.InternalError("")
}

func upgradeError(e *service.UpgradeRejectedError) *apierror.Error {
	code := string(e.Outcome())
	if e.Outcome() == model.UpgradeUserNotFound {
		return apierror.NotFound(e.Error()).WithCode(code)
	}
	return apierror.BadRequest(e.Error()).WithCode(code)
}
