package pool

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

const (
	maxUint64 = math.MaxUint64

	// stableIterations caps Newton iterations for the stable invariant
	stableIterations = 256

	bpsDenominator = 10000
)

var errOverflow = errors.New("u64 overflow")

func u256(v uint64) *uint256.Int { return uint256.NewInt(v) }

func add(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Add(x, y) }
func sub(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Sub(x, y) }
func mul(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Mul(x, y) }
func div(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Div(x, y) }

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, errOverflow
	}
	return v.Uint64(), nil
}

func absDiff(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return sub(x, y)
	}
	return sub(y, x)
}

// applyFee returns floor(amount * (den - num) / den)
func applyFee(amount, feeNumerator, feeDenominator uint64) (uint64, error) {
	if feeDenominator == 0 {
		return 0, errors.New("fee denominator cannot be 0")
	}
	if feeNumerator > feeDenominator {
		return 0, errors.New("fee numerator exceeds denominator")
	}
	num := mul(u256(amount), u256(feeDenominator-feeNumerator))
	return toUint64(div(num, u256(feeDenominator)))
}

type feeFraction struct {
	numerator, denominator uint64
}

// applyFees deducts each fee from amount on its own, as the swap program
// does, so every non-zero fee costs at least one unit. A zero numerator is
// no fee.
func applyFees(amount uint64, fees ...feeFraction) (uint64, error) {
	left := amount
	for _, f := range fees {
		if f.numerator == 0 {
			continue
		}
		net, err := applyFee(amount, f.numerator, f.denominator)
		if err != nil {
			return 0, err
		}
		charged := amount - net
		if charged >= left {
			return 0, nil
		}
		left -= charged
	}
	return left, nil
}

// MulDiv computes floor(a*b/c) without intermediate overflow
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, errors.New("division by zero")
	}
	return toUint64(div(mul(u256(a), u256(b)), u256(c)))
}

// MulDivCeil computes ceil(a*b/c) without intermediate overflow
func MulDivCeil(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, errors.New("division by zero")
	}
	num := mul(u256(a), u256(b))
	num = add(num, u256(c-1))
	return toUint64(div(num, u256(c)))
}

// AddSlippage inflates an input amount by slippageBps, rounding up.
// slippageBps: basis points (e.g., 100 = 1%, 50 = 0.5%)
func AddSlippage(amount uint64, slippageBps uint16) (uint64, error) {
	if slippageBps == 0 {
		return amount, nil
	}
	return MulDivCeil(amount, bpsDenominator+uint64(slippageBps), bpsDenominator)
}

// ApplySlippage calculates minimum output with slippage tolerance
func ApplySlippage(amountOut uint64, slippageBps uint16) uint64 {
	if slippageBps >= bpsDenominator {
		return 0
	}
	out, _ := MulDiv(amountOut, bpsDenominator-uint64(slippageBps), bpsDenominator)
	return out
}

// computeD solves the two-coin StableSwap invariant for D
func computeD(amp, x, y uint64) (*uint256.Int, error) {
	sum := add(u256(x), u256(y))
	if sum.IsZero() {
		return u256(0), nil
	}
	if x == 0 || y == 0 {
		return nil, fmt.Errorf("%w: stable reserves must be non-zero", ErrInsufficientLiquidity)
	}

	two, three := u256(2), u256(3)
	leverage := u256(amp * 2)
	leverageLessOne := sub(leverage, u256(1))
	xTimesN := mul(u256(x), two)
	yTimesN := mul(u256(y), two)

	d := sum.Clone()
	for i := 0; i < stableIterations; i++ {
		dP := d.Clone()
		dP = div(mul(dP, d), xTimesN)
		dP = div(mul(dP, d), yTimesN)
		prev := d

		// d = (leverage*sum + 2*dP) * d / ((leverage-1)*d + 3*dP)
		num := mul(add(mul(leverage, sum), mul(dP, two)), d)
		den := add(mul(leverageLessOne, d), mul(dP, three))
		if den.IsZero() {
			return nil, errors.New("stable invariant diverged")
		}
		d = div(num, den)

		if !absDiff(d, prev).Gt(u256(1)) {
			break
		}
	}
	return d, nil
}

// computeY returns the out-side balance that keeps D constant for a new in-side balance
func computeY(amp uint64, newIn, d *uint256.Int) (*uint256.Int, error) {
	if newIn.IsZero() {
		return nil, errors.New("stable input balance is zero")
	}
	two := u256(2)
	leverage := u256(amp * 2)

	// c = d^3 / (4 * x * leverage), b = x + d/leverage
	c := div(mul(d, d), mul(newIn, two))
	c = div(mul(c, d), mul(leverage, two))
	b := add(newIn, div(d, leverage))

	y := d.Clone()
	for i := 0; i < stableIterations; i++ {
		prev := y
		den := add(mul(y, two), b)
		if !den.Gt(d) {
			return nil, errors.New("stable invariant diverged")
		}
		y = div(add(mul(y, y), c), sub(den, d))
		if !absDiff(y, prev).Gt(u256(1)) {
			break
		}
	}
	return y, nil
}
