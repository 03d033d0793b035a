package pool

import (
	"errors"
	"fmt"
)

// MaxAmplification bounds the stable curve coefficient so 256-bit math cannot overflow
const MaxAmplification = 1_000_000

// ErrUnknownCurve is returned when a curve variant has no pricing function
var ErrUnknownCurve = errors.New("unknown curve")

// CurveKind identifies a bonding curve. Values follow the token-swap program's curve type byte.
type CurveKind uint8

const (
	KindConstantProduct CurveKind = 0
	KindConstantPrice   CurveKind = 1
	KindStable          CurveKind = 2
	KindOffset          CurveKind = 3
)

func (k CurveKind) String() string {
	switch k {
	case KindConstantProduct:
		return "constant_product"
	case KindConstantPrice:
		return "constant_price"
	case KindStable:
		return "stable"
	case KindOffset:
		return "offset"
	default:
		return fmt.Sprintf("curve(%d)", uint8(k))
	}
}

// ParseCurveKind is the inverse of CurveKind.String
func ParseCurveKind(s string) (CurveKind, error) {
	switch s {
	case "constant_product", "":
		return KindConstantProduct, nil
	case "constant_price":
		return KindConstantPrice, nil
	case "stable":
		return KindStable, nil
	case "offset":
		return KindOffset, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCurve, s)
}

// Curve is the bonding curve of a pool. The set of variants is closed.
type Curve interface {
	Kind() CurveKind
	validate() error
}

// ConstantProduct is the x*y=k curve
type ConstantProduct struct{}

// ConstantPrice trades at a fixed price: one B costs TokenBPrice units of A
type ConstantPrice struct {
	TokenBPrice uint64
}

// Stable is the two-coin StableSwap invariant
type Stable struct {
	Amplification uint64
}

// Offset is a constant product over a virtual B reserve of ReserveB+TokenBOffset
type Offset struct {
	TokenBOffset uint64
}

func (ConstantProduct) Kind() CurveKind { return KindConstantProduct }
func (ConstantPrice) Kind() CurveKind   { return KindConstantPrice }
func (Stable) Kind() CurveKind          { return KindStable }
func (Offset) Kind() CurveKind          { return KindOffset }

func (ConstantProduct) validate() error { return nil }

func (c ConstantPrice) validate() error {
	if c.TokenBPrice == 0 {
		return errors.New("constant price curve needs a non-zero price")
	}
	return nil
}

func (c Stable) validate() error {
	if c.Amplification == 0 || c.Amplification > MaxAmplification {
		return fmt.Errorf("stable amplification %d out of range [1, %d]", c.Amplification, MaxAmplification)
	}
	return nil
}

func (Offset) validate() error { return nil }

// swapOutput dispatches to the pricing function of the curve variant.
// effectiveIn is the input after the pool fee.
func swapOutput(c Curve, effectiveIn, reserveIn, reserveOut uint64, aToB bool) (uint64, error) {
	switch c := c.(type) {
	case ConstantProduct:
		return constantProductOutput(effectiveIn, reserveIn, reserveOut)
	case ConstantPrice:
		return constantPriceOutput(c, effectiveIn, aToB)
	case Stable:
		return stableOutput(c, effectiveIn, reserveIn, reserveOut)
	case Offset:
		return offsetOutput(c, effectiveIn, reserveIn, reserveOut, aToB)
	case nil:
		return 0, fmt.Errorf("%w: curve is not set", ErrUnknownCurve)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownCurve, c)
	}
}

// constantProductOutput computes floor(in*Rout/(Rin+in)), which equals
// Rout - ceil(Rin*Rout/(Rin+in)).
func constantProductOutput(effectiveIn, reserveIn, reserveOut uint64) (uint64, error) {
	if effectiveIn == 0 {
		return 0, nil
	}
	num := mul(u256(effectiveIn), u256(reserveOut))
	den := add(u256(reserveIn), u256(effectiveIn))
	return toUint64(div(num, den))
}

func constantPriceOutput(c ConstantPrice, effectiveIn uint64, aToB bool) (uint64, error) {
	if aToB {
		return effectiveIn / c.TokenBPrice, nil
	}
	return toUint64(mul(u256(effectiveIn), u256(c.TokenBPrice)))
}

func offsetOutput(c Offset, effectiveIn, reserveIn, reserveOut uint64, aToB bool) (uint64, error) {
	if effectiveIn == 0 {
		return 0, nil
	}
	// B is always the side carrying the virtual offset.
	virtualIn, virtualOut := u256(reserveIn), u256(reserveOut)
	if aToB {
		virtualOut = add(virtualOut, u256(c.TokenBOffset))
	} else {
		virtualIn = add(virtualIn, u256(c.TokenBOffset))
	}
	num := mul(u256(effectiveIn), virtualOut)
	den := add(virtualIn, u256(effectiveIn))
	return toUint64(div(num, den))
}

func stableOutput(c Stable, effectiveIn, reserveIn, reserveOut uint64) (uint64, error) {
	if effectiveIn == 0 {
		return 0, nil
	}
	d, err := computeD(c.Amplification, reserveIn, reserveOut)
	if err != nil {
		return 0, err
	}
	newIn := add(u256(reserveIn), u256(effectiveIn))
	y, err := computeY(c.Amplification, newIn, d)
	if err != nil {
		return 0, err
	}

	// One unit is held back to absorb the iteration's rounding.
	out := u256(reserveOut)
	y = add(y, u256(1))
	if !out.Gt(y) {
		return 0, nil
	}
	return toUint64(sub(out, y))
}
