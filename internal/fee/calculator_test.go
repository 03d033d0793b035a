package fee

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
)

var usdc = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

func testContext() feecontext.FeeContext {
	return feecontext.FeeContext{
		LamportsPerSignature: 5000,
		MinimumRelayBalance:  890_880,
		RelayAccountBalance:  0,
		RelayAccountExists:   true,
		FeePayerAddress:      solana.NewWallet().PublicKey(),
		RecentBlockhash:      solana.Hash{9},
	}
}

func transferOp(owner, payingMint solana.PublicKey) Operation {
	ix := system.NewTransferInstruction(1_000, owner, solana.NewWallet().PublicKey()).Build()
	return Operation{
		Owner:        owner,
		PayingMint:   payingMint,
		Instructions: []solana.Instruction{ix},
	}
}

func TestCalculateFee_Native(t *testing.T) {
	c := NewCalculator()
	owner := solana.NewWallet().PublicKey()
	op := transferOp(owner, solana.WrappedSol)
	op.NewAccounts = 1

	amount, err := c.CalculateFee(op, testContext())
	require.NoError(t, err)

	// The owner signs the transfer and pays the fee: one signature.
	assert.Equal(t, uint64(5000), amount.TransactionFee)
	assert.Equal(t, uint64(890_880), amount.AccountCreationFee)
	assert.Equal(t, uint64(895_880), amount.Total())
}

func TestCalculateFee_NonNativeAddsRelaySignature(t *testing.T) {
	c := NewCalculator()
	op := transferOp(solana.NewWallet().PublicKey(), usdc)

	amount, err := c.CalculateFee(op, testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), amount.TransactionFee)
	assert.Equal(t, uint64(0), amount.AccountCreationFee)
}

func TestCalculateFee_ExtraSigners(t *testing.T) {
	c := NewCalculator()
	owner := solana.NewWallet().PublicKey()
	cosigner := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(owner).SIGNER().WRITE(),
		solana.Meta(cosigner).SIGNER(),
		solana.Meta(cosigner).SIGNER(),
		solana.Meta(solana.NewWallet().PublicKey()).WRITE(),
	}, []byte{0})

	op := Operation{Owner: owner, PayingMint: solana.WrappedSol, Instructions: []solana.Instruction{ix}}
	assert.Equal(t, uint64(2), c.NumSignatures(op, owner))

	amount, err := c.CalculateFee(op, testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), amount.TransactionFee)
}

func TestCalculateFee_OtherFees(t *testing.T) {
	c := NewCalculator()
	op := transferOp(solana.NewWallet().PublicKey(), solana.WrappedSol)
	op.OtherFees = []OtherFee{
		{Label: "deposit", Mint: solana.WrappedSol, Amount: 2_039_280, NativeAmount: 2_039_280},
		{Label: "close", Mint: usdc, Amount: 1, NativeAmount: 100},
	}

	amount, err := c.CalculateFee(op, testContext())
	require.NoError(t, err)
	assert.Len(t, amount.OtherFees, 2)
	assert.Equal(t, uint64(5000+2_039_280+100), amount.Total())

	// The operation's slice is not shared with the result.
	amount.OtherFees[0].NativeAmount = 0
	assert.Equal(t, uint64(2_039_280), op.OtherFees[0].NativeAmount)

	op.OtherFees = []OtherFee{{NativeAmount: 1}}
	_, err = c.CalculateFee(op, testContext())
	assert.Error(t, err)
}

func TestCalculateFee_FreeTier(t *testing.T) {
	c := NewCalculator()
	fc := testContext()
	fc.Usage = feecontext.UsageStatus{MaxUsage: 10, CurrentUsage: 5, MaxAmount: 1_000_000}
	require.Equal(t, uint64(5), fc.Usage.RemainingFree())

	amount, err := c.CalculateFee(transferOp(solana.NewWallet().PublicKey(), solana.WrappedSol), fc)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), amount.Total())
	assert.True(t, amount.Subsidized)

	// The free tier only applies to native payments.
	amount, err = c.CalculateFee(transferOp(solana.NewWallet().PublicKey(), usdc), fc)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), amount.TransactionFee)

	// Exhausted allowance
	fc.Usage.CurrentUsage = 10
	amount, err = c.CalculateFee(transferOp(solana.NewWallet().PublicKey(), solana.WrappedSol), fc)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), amount.TransactionFee)
}

func TestCalculateFee_FreeTierPricesRelayPaidTransaction(t *testing.T) {
	c := NewCalculator()
	fc := testContext()
	// Enough for the owner-paid transaction but not for the relay-paid one,
	// which carries the relay's signature too.
	fc.Usage = feecontext.UsageStatus{MaxUsage: 10, MaxAmount: 5000}
	op := transferOp(solana.NewWallet().PublicKey(), solana.WrappedSol)

	assert.Equal(t, uint64(10_000), c.SubsidizedFee(op, fc))
	assert.False(t, c.IsFree(op, fc))

	amount, err := c.CalculateFee(op, fc)
	require.NoError(t, err)
	assert.False(t, amount.Subsidized)
	assert.Equal(t, uint64(5000), amount.TransactionFee)

	fc.Usage.MaxAmount = 10_000
	assert.True(t, c.IsFree(op, fc))
	amount, err = c.CalculateFee(op, fc)
	require.NoError(t, err)
	assert.True(t, amount.Subsidized)
}

func TestCalculateFee_FreeTierKeepsAccountCreation(t *testing.T) {
	c := NewCalculator()
	fc := testContext()
	fc.Usage = feecontext.UsageStatus{MaxUsage: 1, MaxAmount: 1_000_000}

	op := transferOp(solana.NewWallet().PublicKey(), solana.WrappedSol)
	op.NewAccounts = 2

	amount, err := c.CalculateFee(op, fc)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), amount.TransactionFee)
	assert.Equal(t, uint64(2*890_880), amount.Total())
}

func TestCalculateFee_ZeroOwner(t *testing.T) {
	_, err := NewCalculator().CalculateFee(Operation{}, testContext())
	assert.Error(t, err)
}

func TestCalculateNeededTopUp_Native(t *testing.T) {
	c := NewCalculator()
	fc := testContext()
	expected := Amount{TransactionFee: 5000, AccountCreationFee: 890_880}

	fc.RelayAccountBalance = 100_000
	assert.Equal(t, uint64(795_880), c.CalculateNeededTopUp(fc, expected, solana.WrappedSol))

	fc.RelayAccountBalance = 10_000_000
	assert.Equal(t, uint64(0), c.CalculateNeededTopUp(fc, expected, solana.WrappedSol))

	// The zero key is the native asset.
	fc.RelayAccountBalance = 0
	assert.Equal(t, uint64(895_880), c.CalculateNeededTopUp(fc, expected, solana.PublicKey{}))
}

func TestCalculateNeededTopUp_NonNativeCoversOwnSignature(t *testing.T) {
	c := NewCalculator()
	fc := testContext()
	fc.RelayAccountBalance = 4_000
	expected := Amount{TransactionFee: 10_000}

	// shortfall 6,000 plus the top-up's own signature
	assert.Equal(t, uint64(11_000), c.CalculateNeededTopUp(fc, expected, usdc))

	fc.RelayAccountBalance = 10_000
	assert.Equal(t, uint64(0), c.CalculateNeededTopUp(fc, expected, usdc))
}

func TestCalculateNeededTopUp_CreatesRelayAccount(t *testing.T) {
	c := NewCalculator()
	fc := testContext()
	fc.RelayAccountExists = false
	expected := Amount{TransactionFee: 10_000}

	assert.Equal(t, uint64(10_000+890_880+5000), c.CalculateNeededTopUp(fc, expected, usdc))
}

func TestCalculateNeededTopUp_SignatureBuffer(t *testing.T) {
	c := NewCalculator(WithTopUpSignatureBuffer(2))
	expected := Amount{TransactionFee: 10_000}
	assert.Equal(t, uint64(20_000), c.CalculateNeededTopUp(testContext(), expected, usdc))
}

func TestCalculator_NativeMintOption(t *testing.T) {
	c := NewCalculator(WithNativeMint(usdc))
	assert.True(t, c.IsNative(usdc))
	assert.False(t, c.IsNative(solana.WrappedSol))
	assert.Equal(t, usdc, c.NativeMint())
}

func TestPaybackFee(t *testing.T) {
	fc := testContext()
	expected := Amount{TransactionFee: 10_000, AccountCreationFee: 5_000}

	fc.RelayAccountBalance = 0
	assert.Equal(t, uint64(15_000), PaybackFee(fc, expected))

	fc.RelayAccountBalance = 6_000
	assert.Equal(t, uint64(9_000), PaybackFee(fc, expected))

	fc.RelayAccountBalance = 20_000
	assert.Equal(t, uint64(0), PaybackFee(fc, expected))
}

func TestAmount_TotalSaturates(t *testing.T) {
	a := Amount{
		TransactionFee:     math.MaxUint64 - 1,
		AccountCreationFee: 10,
		OtherFees:          []OtherFee{{Label: "x", NativeAmount: 10}},
	}
	assert.Equal(t, uint64(math.MaxUint64), a.Total())
	assert.False(t, a.IsZero())
	assert.True(t, Amount{}.IsZero())

	fc := testContext()
	fc.LamportsPerSignature = math.MaxUint64
	amount, err := NewCalculator().CalculateFee(transferOp(solana.NewWallet().PublicKey(), usdc), fc)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), amount.TransactionFee)
}
