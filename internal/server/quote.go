package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
)

const (
	modeExactIn  = "in"
	modeExactOut = "out"
)

// Routes lists every route between two mints over the current snapshot and
// prices them for an amount. With mode=in the amount is the input and the best
// route yields the most output; with mode=out it is the desired output and the
// best route needs the least input.
func (h *Handlers) Routes(c echo.Context) error {
	from, err := parsePubkey(c.QueryParam("from"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid from", map[string]any{"from": err.Error()})
	}
	to, err := parsePubkey(c.QueryParam("to"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid to", map[string]any{"to": err.Error()})
	}
	amountStr := strings.TrimSpace(c.QueryParam("amount"))
	if amountStr == "" {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "required"})
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": err.Error()})
	}

	mode := strings.TrimSpace(c.QueryParam("mode"))
	if mode == "" {
		mode = modeExactOut
	}
	if mode != modeExactIn && mode != modeExactOut {
		return h.err(c, http.StatusBadRequest, "invalid mode", map[string]any{"mode": "must be in or out"})
	}

	snap, err := h.Pools.Current()
	if err != nil {
		return h.coreErr(c, err)
	}

	pools := h.switches(c.Request().Context()).Filter(snap.Pools)
	routes := h.Router.FindRoutes(from, to, pools)
	if len(routes) == 0 {
		return h.coreErr(c, &router.PoolsNotFoundError{Source: from, Destination: to})
	}

	resp := RoutesResponse{Mode: mode, Amount: amount, PoolVersion: snap.Version}
	for i, route := range routes {
		q, ok := h.priceRoute(route, i, amount, mode)
		if !ok {
			continue
		}
		resp.Routes = append(resp.Routes, q)
	}

	switch mode {
	case modeExactOut:
		best, err := h.Router.FindBestPoolsPairForEstimatedAmount(amount, routes)
		if err != nil && !errors.Is(err, router.ErrNoViableRoute) {
			return h.coreErr(c, err)
		}
		if best != nil {
			q := toRouteQuote(best.Route, best.Index, best.InputAmount, best.OutputAmount)
			resp.Best = &q
		}
	case modeExactIn:
		for i := range resp.Routes {
			q := resp.Routes[i]
			if resp.Best == nil || q.OutputAmount > resp.Best.OutputAmount ||
				(q.OutputAmount == resp.Best.OutputAmount && len(q.Hops) < len(resp.Best.Hops)) {
				resp.Best = &q
			}
		}
	}

	if resp.Best == nil {
		return h.coreErr(c, &router.PoolsNotFoundError{Source: from, Destination: to, Err: router.ErrNoViableRoute})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) priceRoute(route router.PoolsPair, index int, amount uint64, mode string) (RouteQuoteResponse, bool) {
	if mode == modeExactIn {
		out, err := h.Router.PriceRouteForInput(route, amount)
		if err != nil {
			return RouteQuoteResponse{}, false
		}
		return toRouteQuote(route, index, amount, out), true
	}

	in, err := h.Router.PriceRouteForOutput(route, amount)
	if err != nil {
		return RouteQuoteResponse{}, false
	}
	out, err := h.Router.PriceRouteForInput(route, in)
	if err != nil {
		return RouteQuoteResponse{}, false
	}
	return toRouteQuote(route, index, in, out), true
}
