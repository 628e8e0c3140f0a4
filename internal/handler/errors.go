package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"case-market/internal/market"
	"case-market/internal/middleware"
	"case-market/internal/pkg/lock"
	"case-market/internal/repository"
	"case-market/internal/service"
	"case-market/internal/steam"
	"case-market/pkg/apierror"
	"case-market/pkg/response"
)

// toAPIError maps domain errors to API errors. Unknown errors become nil.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, service.ErrInsufficientFunds):
		return apierror.InsufficientFunds("")
	case errors.Is(err, service.ErrInvalidContract):
		return apierror.BadRequest("a contract needs at least 3 different items")
	case errors.Is(err, service.ErrInvalidAmount):
		return apierror.BadRequest("amount must not be negative")
	case errors.Is(err, service.ErrEmptyStake):
		return apierror.BadRequest("nothing staked")
	case errors.Is(err, service.ErrNoTradeURL):
		return apierror.BadRequest("set a trade URL first")
	case errors.Is(err, steam.ErrInvalidTradeURL):
		return apierror.BadRequest("invalid trade URL")
	case errors.Is(err, steam.ErrTradeURLNotOwned):
		return apierror.BadRequest("trade URL belongs to another account")
	case errors.Is(err, service.ErrWithdrawBlocked):
		return apierror.Forbidden("withdrawals are blocked for this account")
	case errors.Is(err, service.ErrItemLocked):
		return apierror.Conflict("item is being withdrawn")
	case errors.Is(err, service.ErrCaseEmpty):
		return apierror.Conflict("case has no items")
	case errors.Is(err, lock.ErrLockTimeout):
		return apierror.Conflict("another request is in progress")
	case errors.Is(err, repository.ErrCaseNotFound):
		return apierror.NotFound("case not found")
	case errors.Is(err, repository.ErrItemNotFound):
		return apierror.NotFound("item not found")
	case errors.Is(err, repository.ErrInventoryItemNotFound):
		return apierror.NotFound("inventory item not found")
	case errors.Is(err, repository.ErrProfileNotFound):
		return apierror.NotFound("profile not found")
	case errors.Is(err, market.ErrUnavailable), errors.Is(err, market.ErrRejected):
		return apierror.ServiceUnavailable("")
	}
	return nil
}

// writeError maps err and writes it. Unmapped errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr := toAPIError(err); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg("Request failed")
	response.Error(w, apierror.InternalError(""))
}
