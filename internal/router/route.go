package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

// MaxHops is the longest route the router builds
const MaxHops = 2

// Hop is one swap through one pool
type Hop struct {
	Pool            pool.Pool
	SourceMint      solana.PublicKey
	DestinationMint solana.PublicKey
}

// PoolsPair is an ordered route of one or two hops
type PoolsPair []Hop

// Source returns the mint the route consumes
func (r PoolsPair) Source() solana.PublicKey {
	if len(r) == 0 {
		return solana.PublicKey{}
	}
	return r[0].SourceMint
}

// Destination returns the mint the route produces
func (r PoolsPair) Destination() solana.PublicKey {
	if len(r) == 0 {
		return solana.PublicKey{}
	}
	return r[len(r)-1].DestinationMint
}

// Intermediate returns the hop mint of a two-hop route
func (r PoolsPair) Intermediate() (solana.PublicKey, bool) {
	if len(r) != 2 {
		return solana.PublicKey{}, false
	}
	return r[0].DestinationMint, true
}

// IsDirect reports whether the route is a single hop
func (r PoolsPair) IsDirect() bool {
	return len(r) == 1
}

// Validate checks that consecutive hops connect through their shared mint
func (r PoolsPair) Validate() error {
	if len(r) == 0 || len(r) > MaxHops {
		return fmt.Errorf("route must have 1 to %d hops, got %d", MaxHops, len(r))
	}
	for i, hop := range r {
		if !hop.Pool.Contains(hop.SourceMint) || !hop.Pool.Contains(hop.DestinationMint) ||
			hop.SourceMint.Equals(hop.DestinationMint) {
			return fmt.Errorf("hop %d does not swap between the pool's mints", i)
		}
		if i > 0 && !r[i-1].DestinationMint.Equals(hop.SourceMint) {
			return fmt.Errorf("hop %d does not start where hop %d ends", i, i-1)
		}
	}
	return nil
}

func (r PoolsPair) String() string {
	names := make([]string, 0, len(r))
	for _, hop := range r {
		names = append(names, hop.Pool.Name)
	}
	return strings.Join(names, " -> ")
}

// Quote is a priced route
type Quote struct {
	Route        PoolsPair
	Index        int // Position of Route in the candidate list
	InputAmount  uint64
	OutputAmount uint64
}

// ErrNoViableRoute is returned when no candidate route can deliver the requested amount
var ErrNoViableRoute = errors.New("no viable route")

// PoolsNotFoundError reports that no pool path connects two mints
type PoolsNotFoundError struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Err         error
}

func (e *PoolsNotFoundError) Error() string {
	msg := fmt.Sprintf("pools not found for %s -> %s", e.Source, e.Destination)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PoolsNotFoundError) Unwrap() error {
	return e.Err
}
