package router

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/metrics"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

// Router finds and prices routes over a pool snapshot
type Router interface {
	FindRoutes(from, to solana.PublicKey, pools []pool.Pool) []PoolsPair
	PriceRouteForInput(route PoolsPair, inputAmount uint64) (uint64, error)
	PriceRouteForOutput(route PoolsPair, desiredOutput uint64) (uint64, error)
	FindBestPoolsPairForEstimatedAmount(estimatedAmount uint64, routes []PoolsPair) (*Quote, error)
}

// Default is the Router backed by the package functions, with logging and metrics
type Default struct {
	logger *logrus.Logger
}

// NewDefault creates a Router
func NewDefault(logger *logrus.Logger) *Default {
	if logger == nil {
		logger = logrus.New()
	}
	return &Default{logger: logger}
}

func (d *Default) FindRoutes(from, to solana.PublicKey, pools []pool.Pool) []PoolsPair {
	routes := FindRoutes(from, to, pools)
	outcome := "found"
	if len(routes) == 0 {
		outcome = "empty"
	}
	metrics.RouteSearches.WithLabelValues(outcome).Inc()

	d.logger.WithFields(logrus.Fields{
		"from":   from.String(),
		"to":     to.String(),
		"pools":  len(pools),
		"routes": len(routes),
	}).Debug("route search")
	return routes
}

func (d *Default) PriceRouteForInput(route PoolsPair, inputAmount uint64) (uint64, error) {
	return PriceRouteForInput(route, inputAmount)
}

func (d *Default) PriceRouteForOutput(route PoolsPair, desiredOutput uint64) (uint64, error) {
	return PriceRouteForOutput(route, desiredOutput)
}

func (d *Default) FindBestPoolsPairForEstimatedAmount(estimatedAmount uint64, routes []PoolsPair) (*Quote, error) {
	q, err := FindBestPoolsPairForEstimatedAmount(estimatedAmount, routes)
	if err != nil {
		d.logger.WithError(err).WithField("candidates", len(routes)).Debug("no route can deliver")
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"route":  q.Route.String(),
		"input":  q.InputAmount,
		"output": q.OutputAmount,
	}).Debug("best route selected")
	return q, nil
}

// FindRoutes returns every 1-hop and 2-hop route from one mint to another.
// Direct routes come first in pool order, then transitive routes ordered by
// (first hop index, second hop index). Deprecated and empty pools are skipped.
func FindRoutes(from, to solana.PublicKey, pools []pool.Pool) []PoolsPair {
	if from.Equals(to) {
		return []PoolsPair{}
	}

	routable := make([]int, 0, len(pools))
	for i := range pools {
		if pools[i].Routable() {
			routable = append(routable, i)
		}
	}

	routes := make([]PoolsPair, 0)
	for _, i := range routable {
		p := pools[i]
		if p.Contains(from) && p.Contains(to) {
			routes = append(routes, PoolsPair{{Pool: p, SourceMint: from, DestinationMint: to}})
		}
	}

	for _, i := range routable {
		first := pools[i]
		mid, ok := first.Other(from)
		if !ok || mid.Equals(to) {
			continue
		}
		for _, j := range routable {
			if i == j {
				continue
			}
			second := pools[j]
			if !second.Contains(mid) || !second.Contains(to) {
				continue
			}
			routes = append(routes, PoolsPair{
				{Pool: first, SourceMint: from, DestinationMint: mid},
				{Pool: second, SourceMint: mid, DestinationMint: to},
			})
		}
	}

	return routes
}

// PriceRouteForInput returns the output of swapping inputAmount along the route,
// flooring at every hop.
func PriceRouteForInput(route PoolsPair, inputAmount uint64) (uint64, error) {
	if err := route.Validate(); err != nil {
		return 0, err
	}
	amount := inputAmount
	for i, hop := range route {
		out, err := hop.Pool.OutputForInput(hop.SourceMint, amount)
		if err != nil {
			return 0, fmt.Errorf("hop %d: %w", i, err)
		}
		amount = out
	}
	return amount, nil
}

// PriceRouteForOutput returns the smallest input that yields at least
// desiredOutput along the route. Hops are sized from the last one backwards.
func PriceRouteForOutput(route PoolsPair, desiredOutput uint64) (uint64, error) {
	if err := route.Validate(); err != nil {
		return 0, err
	}
	amount := desiredOutput
	for i := len(route) - 1; i >= 0; i-- {
		hop := route[i]
		in, err := hop.Pool.InputForOutput(hop.SourceMint, amount)
		if err != nil {
			return 0, fmt.Errorf("hop %d: %w", i, err)
		}
		amount = in
	}
	return amount, nil
}

// FindBestPoolsPairForEstimatedAmount picks the route needing the least input
// to produce estimatedAmount. Ties prefer fewer hops, then the lower index.
func FindBestPoolsPairForEstimatedAmount(estimatedAmount uint64, routes []PoolsPair) (*Quote, error) {
	var best *Quote
	var lastErr error

	for i, route := range routes {
		in, err := PriceRouteForOutput(route, estimatedAmount)
		if err != nil {
			metrics.RoutePricingFailures.Inc()
			lastErr = err
			continue
		}
		out, err := PriceRouteForInput(route, in)
		if err != nil {
			metrics.RoutePricingFailures.Inc()
			lastErr = err
			continue
		}

		candidate := &Quote{Route: route, Index: i, InputAmount: in, OutputAmount: out}
		if best == nil || better(candidate, best) {
			best = candidate
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, errors.Join(ErrNoViableRoute, lastErr)
		}
		return nil, ErrNoViableRoute
	}
	return best, nil
}

func better(a, b *Quote) bool {
	if a.InputAmount != b.InputAmount {
		return a.InputAmount < b.InputAmount
	}
	if len(a.Route) != len(b.Route) {
		return len(a.Route) < len(b.Route)
	}
	return a.Index < b.Index
}
