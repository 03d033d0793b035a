package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/poolset"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relay"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/usage"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		// Don't send response if already committed
		if c.Response().Committed {
			return
		}

		// Handle Echo HTTP errors (like 404, 400, etc.)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		// Handle all other errors as internal server error
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

var errUsageUnavailable = errors.New("usage accounting unavailable")

// statusFor maps relay core errors to HTTP status codes
func statusFor(err error) (int, string) {
	var (
		pnf   *router.PoolsNotFoundError
		ibe   *relay.InsufficientBalanceError
		ice   *relay.InvalidContextError
		stale *feecontext.StaleContextError
		re    *feecontext.RetrievalError
	)
	switch {
	case errors.As(err, &pnf):
		return http.StatusUnprocessableEntity, "no pools connect the mints"
	case errors.As(err, &ibe):
		return http.StatusPaymentRequired, "insufficient paying balance"
	case errors.As(err, &ice):
		return http.StatusBadRequest, "invalid fee context"
	case errors.As(err, &stale):
		return http.StatusConflict, "fee context is stale"
	case errors.As(err, &re):
		return http.StatusBadGateway, "failed to retrieve fee context"
	case errors.Is(err, poolset.ErrNoSnapshot):
		return http.StatusServiceUnavailable, "pools not loaded"
	case errors.Is(err, usage.ErrAllowanceExhausted):
		return http.StatusConflict, "free-tier allowance exhausted"
	case errors.Is(err, errUsageUnavailable):
		return http.StatusServiceUnavailable, "usage accounting unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}
