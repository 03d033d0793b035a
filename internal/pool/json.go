package pool

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// CurveConfig is the serialized form of a Curve
type CurveConfig struct {
	Kind          string `json:"kind"`
	TokenBPrice   uint64 `json:"token_b_price,omitempty"`
	Amplification uint64 `json:"amplification,omitempty"`
	TokenBOffset  uint64 `json:"token_b_offset,omitempty"`
}

// CurveFromConfig builds the curve variant named by cfg.Kind
func CurveFromConfig(cfg CurveConfig) (Curve, error) {
	kind, err := ParseCurveKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	return NewCurve(kind, cfg.TokenBPrice, cfg.Amplification, cfg.TokenBOffset)
}

// NewCurve builds a curve variant from its kind and parameters. Parameters
// that the kind does not use are ignored.
func NewCurve(kind CurveKind, tokenBPrice, amplification, tokenBOffset uint64) (Curve, error) {
	var c Curve
	switch kind {
	case KindConstantProduct:
		c = ConstantProduct{}
	case KindConstantPrice:
		c = ConstantPrice{TokenBPrice: tokenBPrice}
	case KindStable:
		c = Stable{Amplification: amplification}
	case KindOffset:
		c = Offset{TokenBOffset: tokenBOffset}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurve, kind)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ConfigFromCurve is the inverse of CurveFromConfig
func ConfigFromCurve(c Curve) CurveConfig {
	switch c := c.(type) {
	case ConstantPrice:
		return CurveConfig{Kind: c.Kind().String(), TokenBPrice: c.TokenBPrice}
	case Stable:
		return CurveConfig{Kind: c.Kind().String(), Amplification: c.Amplification}
	case Offset:
		return CurveConfig{Kind: c.Kind().String(), TokenBOffset: c.TokenBOffset}
	default:
		return CurveConfig{Kind: KindConstantProduct.String()}
	}
}

type poolJSON struct {
	ID             solana.PublicKey `json:"id"`
	Name           string           `json:"name,omitempty"`
	ProgramID      solana.PublicKey `json:"program_id"`
	Authority      solana.PublicKey `json:"authority"`
	MintA          solana.PublicKey `json:"mint_a"`
	MintB          solana.PublicKey `json:"mint_b"`
	VaultA         solana.PublicKey `json:"vault_a"`
	VaultB         solana.PublicKey `json:"vault_b"`
	PoolMint       solana.PublicKey `json:"pool_mint"`
	FeeAccount     solana.PublicKey `json:"fee_account"`
	ReserveA       uint64           `json:"reserve_a"`
	ReserveB       uint64           `json:"reserve_b"`
	FeeNumerator   uint64           `json:"fee_numerator"`
	FeeDenominator uint64           `json:"fee_denominator"`
	OwnerFeeNum    uint64           `json:"owner_fee_numerator,omitempty"`
	OwnerFeeDen    uint64           `json:"owner_fee_denominator,omitempty"`
	Curve          CurveConfig      `json:"curve"`
	Deprecated     bool             `json:"deprecated,omitempty"`
}

// MarshalJSON encodes the pool with its curve as a tagged object
func (p Pool) MarshalJSON() ([]byte, error) {
	return json.Marshal(poolJSON{
		ID:             p.ID,
		Name:           p.Name,
		ProgramID:      p.ProgramID,
		Authority:      p.Authority,
		MintA:          p.MintA,
		MintB:          p.MintB,
		VaultA:         p.VaultA,
		VaultB:         p.VaultB,
		PoolMint:       p.PoolMint,
		FeeAccount:     p.FeeAccount,
		ReserveA:       p.ReserveA,
		ReserveB:       p.ReserveB,
		FeeNumerator:   p.FeeNumerator,
		FeeDenominator: p.FeeDenominator,
		OwnerFeeNum:    p.OwnerFeeNumerator,
		OwnerFeeDen:    p.OwnerFeeDenominator,
		Curve:          ConfigFromCurve(p.Curve),
		Deprecated:     p.Deprecated,
	})
}

// UnmarshalJSON decodes a pool written by MarshalJSON
func (p *Pool) UnmarshalJSON(data []byte) error {
	var raw poolJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	curve, err := CurveFromConfig(raw.Curve)
	if err != nil {
		return fmt.Errorf("pool %s: %w", raw.ID, err)
	}
	*p = Pool{
		ID:                  raw.ID,
		Name:                raw.Name,
		ProgramID:           raw.ProgramID,
		Authority:           raw.Authority,
		MintA:               raw.MintA,
		MintB:               raw.MintB,
		VaultA:              raw.VaultA,
		VaultB:              raw.VaultB,
		PoolMint:            raw.PoolMint,
		FeeAccount:          raw.FeeAccount,
		ReserveA:            raw.ReserveA,
		ReserveB:            raw.ReserveB,
		FeeNumerator:        raw.FeeNumerator,
		FeeDenominator:      raw.FeeDenominator,
		OwnerFeeNumerator:   raw.OwnerFeeNum,
		OwnerFeeDenominator: raw.OwnerFeeDen,
		Curve:               curve,
		Deprecated:          raw.Deprecated,
	}
	return nil
}
