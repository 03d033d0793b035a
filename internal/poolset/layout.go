package poolset

import (
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

// SwapStateSize is the account size of an SPL token-swap pool
const SwapStateSize = 324

var errNotInitialized = errors.New("swap account not initialized")

// swapState is the on-chain state of a token-swap pool
type swapState struct {
	Version        uint8
	IsInitialized  bool
	BumpSeed       uint8
	TokenProgramID solana.PublicKey
	TokenA         solana.PublicKey // Vault A
	TokenB         solana.PublicKey // Vault B
	PoolMint       solana.PublicKey
	TokenAMint     solana.PublicKey
	TokenBMint     solana.PublicKey
	PoolFeeAccount solana.PublicKey

	TradeFeeNumerator           uint64
	TradeFeeDenominator         uint64
	OwnerTradeFeeNumerator      uint64
	OwnerTradeFeeDenominator    uint64
	OwnerWithdrawFeeNumerator   uint64
	OwnerWithdrawFeeDenominator uint64
	HostFeeNumerator            uint64
	HostFeeDenominator          uint64

	CurveType       uint8
	CurveParameters [32]byte
}

func (s *swapState) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if s.Version, err = dec.ReadUint8(); err != nil {
		return err
	}
	if s.IsInitialized, err = dec.ReadBool(); err != nil {
		return err
	}
	if s.BumpSeed, err = dec.ReadUint8(); err != nil {
		return err
	}
	for _, pk := range []*solana.PublicKey{
		&s.TokenProgramID, &s.TokenA, &s.TokenB, &s.PoolMint,
		&s.TokenAMint, &s.TokenBMint, &s.PoolFeeAccount,
	} {
		raw, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		*pk = solana.PublicKeyFromBytes(raw)
	}
	for _, v := range []*uint64{
		&s.TradeFeeNumerator, &s.TradeFeeDenominator,
		&s.OwnerTradeFeeNumerator, &s.OwnerTradeFeeDenominator,
		&s.OwnerWithdrawFeeNumerator, &s.OwnerWithdrawFeeDenominator,
		&s.HostFeeNumerator, &s.HostFeeDenominator,
	} {
		if *v, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return err
		}
	}
	if s.CurveType, err = dec.ReadUint8(); err != nil {
		return err
	}
	raw, err := dec.ReadNBytes(len(s.CurveParameters))
	if err != nil {
		return err
	}
	copy(s.CurveParameters[:], raw)
	return nil
}

// curve decodes the curve type and its leading u64 parameter
func (s *swapState) curve() (pool.Curve, error) {
	param := binary.LittleEndian.Uint64(s.CurveParameters[:8])
	return pool.NewCurve(pool.CurveKind(s.CurveType), param, param, param)
}

// fees returns the trade fee and the owner trade fee. They stay separate
// because the swap program rounds each one on its own.
func (s *swapState) fees() (trade, owner [2]uint64, err error) {
	tn, td := s.TradeFeeNumerator, s.TradeFeeDenominator
	on, od := s.OwnerTradeFeeNumerator, s.OwnerTradeFeeDenominator
	if (td == 0 && tn != 0) || (od == 0 && on != 0) {
		return trade, owner, errors.New("fee with zero denominator")
	}
	if td == 0 {
		td = 1
	}
	return [2]uint64{tn, td}, [2]uint64{on, od}, nil
}

// decodeSwapState parses a token-swap account into a pool without reserves
func decodeSwapState(id, programID solana.PublicKey, data []byte) (pool.Pool, error) {
	if len(data) < SwapStateSize {
		return pool.Pool{}, fmt.Errorf("swap account %s: %d bytes, want %d", id, len(data), SwapStateSize)
	}

	var s swapState
	if err := s.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return pool.Pool{}, fmt.Errorf("swap account %s: %w", id, err)
	}
	if !s.IsInitialized {
		return pool.Pool{}, fmt.Errorf("swap account %s: %w", id, errNotInitialized)
	}

	authority, err := solana.CreateProgramAddress([][]byte{id.Bytes(), {s.BumpSeed}}, programID)
	if err != nil {
		return pool.Pool{}, fmt.Errorf("swap account %s: derive authority: %w", id, err)
	}
	curve, err := s.curve()
	if err != nil {
		return pool.Pool{}, fmt.Errorf("swap account %s: %w", id, err)
	}
	trade, owner, err := s.fees()
	if err != nil {
		return pool.Pool{}, fmt.Errorf("swap account %s: fees: %w", id, err)
	}

	p := pool.Pool{
		ID:                  id,
		ProgramID:           programID,
		Authority:           authority,
		MintA:               s.TokenAMint,
		MintB:               s.TokenBMint,
		VaultA:              s.TokenA,
		VaultB:              s.TokenB,
		PoolMint:            s.PoolMint,
		FeeAccount:          s.PoolFeeAccount,
		FeeNumerator:        trade[0],
		FeeDenominator:      trade[1],
		OwnerFeeNumerator:   owner[0],
		OwnerFeeDenominator: owner[1],
		Curve:               curve,
	}
	if err := p.Validate(); err != nil {
		return pool.Pool{}, err
	}
	return p, nil
}

// decodeTokenAmount reads the amount held by an SPL token account
func decodeTokenAmount(data []byte) (uint64, error) {
	var acc token.Account
	if err := acc.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return 0, fmt.Errorf("decode token account: %w", err)
	}
	return acc.Amount, nil
}
