package pool

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrInsufficientLiquidity is returned when a pool cannot deliver the requested amount
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")

	// ErrMintNotInPool is returned when a mint is not one of the pool's two mints
	ErrMintNotInPool = errors.New("mint does not belong to pool")
)

// Pool is an immutable snapshot of one liquidity pool: reserves, fee schedule and curve.
// Snapshots are replaced wholesale on refresh and never mutated in place.
type Pool struct {
	ID        solana.PublicKey // Swap state account
	Name      string
	ProgramID solana.PublicKey
	Authority solana.PublicKey

	MintA  solana.PublicKey
	MintB  solana.PublicKey
	VaultA solana.PublicKey
	VaultB solana.PublicKey

	PoolMint   solana.PublicKey
	FeeAccount solana.PublicKey

	ReserveA uint64
	ReserveB uint64

	// Trade fee and the optional owner trade fee. The chain charges them
	// separately, each rounded on its own.
	FeeNumerator        uint64
	FeeDenominator      uint64
	OwnerFeeNumerator   uint64
	OwnerFeeDenominator uint64

	Curve      Curve
	Deprecated bool
}

// Validate checks the structural invariants of a pool snapshot
func (p Pool) Validate() error {
	if p.FeeDenominator == 0 {
		return fmt.Errorf("pool %s: fee denominator must be > 0", p.label())
	}
	if p.FeeNumerator > p.FeeDenominator {
		return fmt.Errorf("pool %s: fee numerator %d exceeds denominator %d",
			p.label(), p.FeeNumerator, p.FeeDenominator)
	}
	if p.OwnerFeeNumerator > 0 && p.OwnerFeeNumerator > p.OwnerFeeDenominator {
		return fmt.Errorf("pool %s: owner fee numerator %d exceeds denominator %d",
			p.label(), p.OwnerFeeNumerator, p.OwnerFeeDenominator)
	}
	if p.MintA.Equals(p.MintB) {
		return fmt.Errorf("pool %s: mints must differ", p.label())
	}
	if p.Curve == nil {
		return fmt.Errorf("pool %s: curve is not set", p.label())
	}
	if err := p.Curve.validate(); err != nil {
		return fmt.Errorf("pool %s: %w", p.label(), err)
	}
	return nil
}

// Routable reports whether the pool may take part in a route
func (p Pool) Routable() bool {
	if p.Deprecated || p.ReserveA == 0 || p.ReserveB == 0 {
		return false
	}
	return p.Validate() == nil
}

// Contains reports whether mint is one of the pool's two mints
func (p Pool) Contains(mint solana.PublicKey) bool {
	return p.MintA.Equals(mint) || p.MintB.Equals(mint)
}

// Other returns the pool's mint on the opposite side of mint
func (p Pool) Other(mint solana.PublicKey) (solana.PublicKey, bool) {
	switch {
	case p.MintA.Equals(mint):
		return p.MintB, true
	case p.MintB.Equals(mint):
		return p.MintA, true
	}
	return solana.PublicKey{}, false
}

// Direction reports whether swapping from sourceMint goes A->B
func (p Pool) Direction(sourceMint solana.PublicKey) (bool, error) {
	if p.MintA.Equals(sourceMint) {
		return true, nil
	}
	if p.MintB.Equals(sourceMint) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s not in %s", ErrMintNotInPool, sourceMint, p.label())
}

// Reserves returns reserves ordered for a swap direction
func (p Pool) Reserves(aToB bool) (reserveIn, reserveOut uint64) {
	if aToB {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

// Vaults returns the pool vaults ordered for a swap direction
func (p Pool) Vaults(aToB bool) (source, destination solana.PublicKey) {
	if aToB {
		return p.VaultA, p.VaultB
	}
	return p.VaultB, p.VaultA
}

// FeeBps converts the combined fee to basis points
func (p Pool) FeeBps() uint16 {
	var bps uint64
	if p.FeeDenominator != 0 {
		bps += (p.FeeNumerator * 10000) / p.FeeDenominator
	}
	if p.OwnerFeeDenominator != 0 {
		bps += (p.OwnerFeeNumerator * 10000) / p.OwnerFeeDenominator
	}
	return uint16(bps)
}

// OutputForInput prices a swap of amountIn sourceMint through the pool.
// Rounding always favours the pool, so the result never exceeds what the chain pays out.
func (p Pool) OutputForInput(sourceMint solana.PublicKey, amountIn uint64) (uint64, error) {
	aToB, err := p.Direction(sourceMint)
	if err != nil {
		return 0, err
	}
	if amountIn == 0 {
		return 0, nil
	}

	reserveIn, reserveOut := p.Reserves(aToB)
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("%w: %s has an empty reserve", ErrInsufficientLiquidity, p.label())
	}

	effectiveIn, err := applyFees(amountIn,
		feeFraction{p.FeeNumerator, p.FeeDenominator},
		feeFraction{p.OwnerFeeNumerator, p.OwnerFeeDenominator})
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.label(), err)
	}

	out, err := swapOutput(p.Curve, effectiveIn, reserveIn, reserveOut, aToB)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", p.label(), err)
	}
	if out >= reserveOut {
		return 0, fmt.Errorf("%w: %s cannot pay out %d", ErrInsufficientLiquidity, p.label(), out)
	}
	return out, nil
}

// InputForOutput returns the smallest input of sourceMint whose priced output
// is at least amountOut.
func (p Pool) InputForOutput(sourceMint solana.PublicKey, amountOut uint64) (uint64, error) {
	aToB, err := p.Direction(sourceMint)
	if err != nil {
		return 0, err
	}
	if amountOut == 0 {
		return 0, nil
	}

	_, reserveOut := p.Reserves(aToB)
	if amountOut >= reserveOut {
		return 0, fmt.Errorf("%w: %s holds %d, need %d",
			ErrInsufficientLiquidity, p.label(), reserveOut, amountOut)
	}

	enough := func(in uint64) (bool, error) {
		out, err := p.OutputForInput(sourceMint, in)
		if errors.Is(err, ErrInsufficientLiquidity) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return out >= amountOut, nil
	}

	// Grow an upper bound, then bisect down to the smallest sufficient input.
	hi := uint64(1)
	for {
		ok, err := enough(hi)
		if err != nil {
			return 0, err
		}
		if ok {
			break
		}
		if hi > maxUint64/2 {
			return 0, fmt.Errorf("%w: %s cannot reach %d", ErrInsufficientLiquidity, p.label(), amountOut)
		}
		hi *= 2
	}

	lo := hi / 2
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ok, err := enough(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid
		}
	}

	out, err := p.OutputForInput(sourceMint, hi)
	if err != nil {
		return 0, err
	}
	if out < amountOut {
		return 0, fmt.Errorf("%w: %s cannot reach %d", ErrInsufficientLiquidity, p.label(), amountOut)
	}
	return hi, nil
}

func (p Pool) label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID.String()
}
