package fee

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
)

// DefaultTopUpSignatureBuffer is the number of extra signatures a top-up
// transaction adds on top of the shortfall it funds.
const DefaultTopUpSignatureBuffer = 1

// Operation describes an action the user wants relayed
type Operation struct {
	Owner        solana.PublicKey     `json:"owner"`
	PayingMint   solana.PublicKey     `json:"paying_mint"`
	Instructions []solana.Instruction `json:"-"`
	NewAccounts  uint64               `json:"new_accounts"`
	OtherFees    []OtherFee           `json:"other_fees,omitempty"`
}

// Calculator turns operations into fees. It holds no mutable state and is safe
// for concurrent use.
type Calculator struct {
	nativeMint           solana.PublicKey
	topUpSignatureBuffer uint64
}

// Option configures a Calculator
type Option func(*Calculator)

// WithNativeMint overrides the mint treated as the native asset
func WithNativeMint(mint solana.PublicKey) Option {
	return func(c *Calculator) {
		c.nativeMint = mint
	}
}

// WithTopUpSignatureBuffer sets how many signatures a top-up adds
func WithTopUpSignatureBuffer(n uint64) Option {
	return func(c *Calculator) {
		c.topUpSignatureBuffer = n
	}
}

// NewCalculator creates a fee calculator
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		nativeMint:           solana.WrappedSol,
		topUpSignatureBuffer: DefaultTopUpSignatureBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NativeMint returns the mint treated as the native asset
func (c *Calculator) NativeMint() solana.PublicKey {
	return c.nativeMint
}

// IsNative reports whether mint is the native asset. The zero key means native.
func (c *Calculator) IsNative(mint solana.PublicKey) bool {
	return mint.IsZero() || mint.Equals(c.nativeMint)
}

// FeePayer returns who pays the network fee when op is relayed without a
// subsidy: the owner when paying native, the relay otherwise.
func (c *Calculator) FeePayer(op Operation, fc feecontext.FeeContext) solana.PublicKey {
	if c.IsNative(op.PayingMint) {
		return op.Owner
	}
	return fc.FeePayerAddress
}

// NumSignatures counts the distinct signers of the relayed transaction
func (c *Calculator) NumSignatures(op Operation, feePayer solana.PublicKey) uint64 {
	signers := make(map[solana.PublicKey]struct{})
	if !feePayer.IsZero() {
		signers[feePayer] = struct{}{}
	}
	if !op.Owner.IsZero() {
		signers[op.Owner] = struct{}{}
	}
	for _, ix := range op.Instructions {
		for _, meta := range ix.Accounts() {
			if meta != nil && meta.IsSigner {
				signers[meta.PublicKey] = struct{}{}
			}
		}
	}
	return uint64(len(signers))
}

// CalculateFee prices op against fc. A native-paying operation within the free
// tier carries no transaction fee.
func (c *Calculator) CalculateFee(op Operation, fc feecontext.FeeContext) (Amount, error) {
	if op.Owner.IsZero() {
		return Amount{}, errors.New("operation owner is zero")
	}
	for i, f := range op.OtherFees {
		if f.Label == "" {
			return Amount{}, fmt.Errorf("other fee %d has no label", i)
		}
	}

	signatures := c.NumSignatures(op, c.FeePayer(op, fc))
	amount := Amount{
		TransactionFee:     saturatingMul(fc.LamportsPerSignature, signatures),
		AccountCreationFee: saturatingMul(fc.MinimumRelayBalance, op.NewAccounts),
		OtherFees:          append([]OtherFee(nil), op.OtherFees...),
	}

	if c.IsFree(op, fc) {
		amount.TransactionFee = 0
		amount.Subsidized = true
	}
	return amount, nil
}

// SubsidizedFee returns the network fee the relay pays when it is the fee
// payer of op, which is what a subsidy spends from the allowance.
func (c *Calculator) SubsidizedFee(op Operation, fc feecontext.FeeContext) uint64 {
	return saturatingMul(fc.LamportsPerSignature, c.NumSignatures(op, fc.FeePayerAddress))
}

// IsFree reports whether the operator subsidizes the transaction fee of op.
// The allowance is checked against the relay-paid transaction, not the
// owner-paid one.
func (c *Calculator) IsFree(op Operation, fc feecontext.FeeContext) bool {
	return c.IsNative(op.PayingMint) && fc.Usage.IsFreeTransactionAvailable(c.SubsidizedFee(op, fc))
}

// CalculateNeededTopUp returns how many lamports must be swapped into the relay
// account before expected can be paid from it. For a non-native paying mint the
// target also covers the top-up's own signature and, when the relay account does
// not exist yet, its rent-exempt minimum.
func (c *Calculator) CalculateNeededTopUp(fc feecontext.FeeContext, expected Amount, payingMint solana.PublicKey) uint64 {
	shortfall := saturatingSub(expected.Total(), fc.RelayAccountBalance)
	if c.IsNative(payingMint) {
		return shortfall
	}
	if shortfall == 0 {
		return 0
	}
	if !fc.RelayAccountExists {
		shortfall = saturatingAdd(shortfall, fc.MinimumRelayBalance)
	}
	return saturatingAdd(shortfall, saturatingMul(fc.LamportsPerSignature, c.topUpSignatureBuffer))
}

// PaybackFee returns the part of expected the relay balance does not already cover
func PaybackFee(fc feecontext.FeeContext, expected Amount) uint64 {
	total := expected.Total()
	covered := fc.RelayAccountBalance
	if covered > total {
		covered = total
	}
	return total - covered
}
