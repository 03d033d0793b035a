package relay

import (
	"encoding/base64"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relayprogram"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
)

var (
	relayProgram = solana.MustPublicKeyFromBase58(relayprogram.MainnetProgramID)
	swapProgram  = solana.MustPublicKeyFromBase58("9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP")
	usdc         = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	usdt         = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

// spyRouter counts route searches
type spyRouter struct {
	*router.Default
	findCalls atomic.Int32
}

func (s *spyRouter) FindRoutes(from, to solana.PublicKey, pools []pool.Pool) []router.PoolsPair {
	s.findCalls.Add(1)
	return s.Default.FindRoutes(from, to, pools)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestBuilder(t *testing.T, guard ContextGuard) (*Builder, *spyRouter) {
	t.Helper()
	spy := &spyRouter{Default: router.NewDefault(quietLogger())}
	b, err := NewBuilder(BuilderConfig{
		Router:         spy,
		RelayProgramID: relayProgram,
		SlippageBps:    DefaultSlippageBps,
		Guard:          guard,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)
	return b, spy
}

func makePool(name string, mintA, mintB solana.PublicKey, reserveA, reserveB uint64) pool.Pool {
	return pool.Pool{
		ID:             solana.NewWallet().PublicKey(),
		Name:           name,
		ProgramID:      swapProgram,
		Authority:      solana.NewWallet().PublicKey(),
		MintA:          mintA,
		MintB:          mintB,
		VaultA:         solana.NewWallet().PublicKey(),
		VaultB:         solana.NewWallet().PublicKey(),
		PoolMint:       solana.NewWallet().PublicKey(),
		FeeAccount:     solana.NewWallet().PublicKey(),
		ReserveA:       reserveA,
		ReserveB:       reserveB,
		FeeNumerator:   30,
		FeeDenominator: 10000,
		Curve:          pool.ConstantProduct{},
	}
}

func testPools() []pool.Pool {
	return []pool.Pool{
		makePool("USDC/SOL", usdc, solana.WrappedSol, 1_000_000_000_000, 10_000_000_000_000),
		makePool("USDC/USDT", usdc, usdt, 5_000_000_000_000, 5_000_000_000_000),
		makePool("USDT/SOL", usdt, solana.WrappedSol, 2_000_000_000_000, 20_000_000_000_000),
	}
}

func testContext(owner solana.PublicKey) feecontext.FeeContext {
	relayAccount, _ := relayprogram.RelayAccount(relayProgram, owner)
	return feecontext.FeeContext{
		Owner:                owner,
		LamportsPerSignature: 5000,
		MinimumRelayBalance:  890_880,
		RelayAccount:         relayAccount,
		RelayAccountExists:   true,
		FeePayerAddress:      solana.NewWallet().PublicKey(),
		RecentBlockhash:      solana.Hash{7, 7, 7},
		Generation:           1,
	}
}

func transferAction(owner solana.PublicKey) Action {
	return Action{
		Owner: owner,
		Instructions: []solana.Instruction{
			system.NewTransferInstruction(1_000_000, owner, solana.NewWallet().PublicKey()).Build(),
		},
	}
}

func TestPrepare_NativeSufficientBalanceSingleTransaction(t *testing.T) {
	b, spy := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)
	fc.RelayAccountBalance = 1_000_000_000

	res, err := b.PrepareRelayedAction(fc, transferAction(owner), solana.WrappedSol, testPools())
	require.NoError(t, err)

	require.Len(t, res.Transactions, 1)
	assert.Nil(t, res.TopUp)
	assert.Equal(t, PathDirect, res.Path)
	assert.Equal(t, owner, res.Transactions[0].FeePayer)
	assert.Equal(t, uint64(0), res.AdditionalPaybackFee)
	assert.Equal(t, int32(0), spy.findCalls.Load())
}

func TestPrepare_NativeNeverRoutes(t *testing.T) {
	b, spy := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()

	// Empty relay balance and no pools: still one direct transaction.
	res, err := b.PrepareRelayedAction(testContext(owner), transferAction(owner), solana.WrappedSol, nil)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, int32(0), spy.findCalls.Load())
}

func TestPrepare_FreeTier(t *testing.T) {
	b, spy := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)
	fc.Usage = feecontext.UsageStatus{MaxUsage: 10, CurrentUsage: 5, MaxAmount: 10_000_000}
	require.Equal(t, uint64(5), fc.Usage.RemainingFree())

	res, err := b.PrepareRelayedAction(fc, transferAction(owner), solana.WrappedSol, testPools())
	require.NoError(t, err)

	assert.Equal(t, uint64(0), res.Fee.Total())
	assert.Equal(t, PathSubsidized, res.Path)
	assert.Equal(t, int32(0), spy.findCalls.Load())
	require.Len(t, res.Transactions, 1)

	tx := res.Transactions[0]
	assert.Equal(t, fc.FeePayerAddress, tx.FeePayer)
	assert.Len(t, tx.Instructions, 1)
	assert.Equal(t, []solana.PublicKey{fc.FeePayerAddress, owner}, tx.Signers)
}

func TestPrepare_FreeTierAllowanceBelowRelayFee(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)
	// Covers one signature; the subsidized transaction needs two.
	fc.Usage = feecontext.UsageStatus{MaxUsage: 10, MaxAmount: 5000}

	res, err := b.PrepareRelayedAction(fc, transferAction(owner), solana.WrappedSol, nil)
	require.NoError(t, err)

	assert.Equal(t, PathDirect, res.Path)
	assert.False(t, res.Fee.Subsidized)
	assert.Equal(t, uint64(5000), res.Fee.TransactionFee)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, owner, res.Transactions[0].FeePayer)
}

func TestPrepare_FreeTierPaysBackAccountCreation(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)
	fc.Usage = feecontext.UsageStatus{MaxUsage: 10, MaxAmount: 10_000_000}

	action := transferAction(owner)
	action.NewAccounts = 1

	res, err := b.PrepareRelayedAction(fc, action, solana.WrappedSol, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(890_880), res.AdditionalPaybackFee)

	ixs := res.Transactions[0].Instructions
	require.Len(t, ixs, 2)
	assert.Equal(t, solana.SystemProgramID, ixs[1].ProgramID())
	assert.Equal(t, fc.FeePayerAddress, ixs[1].Accounts()[1].PublicKey)
}

func TestPrepare_TopUpThenAction(t *testing.T) {
	b, spy := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)

	res, err := b.PrepareRelayedAction(fc, transferAction(owner), usdc, testPools())
	require.NoError(t, err)
	assert.Equal(t, int32(1), spy.findCalls.Load())
	assert.Equal(t, PathRelayed, res.Path)

	// Relay and owner sign: two signatures.
	assert.Equal(t, uint64(10_000), res.Fee.TransactionFee)
	require.Len(t, res.Transactions, 2)
	require.NotNil(t, res.TopUp)

	// The shortfall plus the top-up's own signature
	assert.Equal(t, uint64(15_000), res.TopUp.TargetLamports)
	assert.Equal(t, uint64(15_000), res.TopUp.MinimumAmountOut)
	assert.GreaterOrEqual(t, res.TopUp.QuotedOutput, res.TopUp.TargetLamports)
	assert.Equal(t, "USDC/SOL", res.TopUp.Route.String())

	out, err := router.PriceRouteForInput(res.TopUp.Route, res.TopUp.InputAmount)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out, res.TopUp.TargetLamports)

	topUp := res.Transactions[0]
	assert.Equal(t, fc.FeePayerAddress, topUp.FeePayer)
	require.Len(t, topUp.Instructions, 1)
	assert.Equal(t, relayProgram, topUp.Instructions[0].ProgramID())
	data, err := topUp.Instructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, relayprogram.InstructionTopUpWithDirectSwap, data[0])

	action := res.Transactions[1]
	assert.Equal(t, fc.FeePayerAddress, action.FeePayer)
	require.Len(t, action.Instructions, 2)
	assert.Equal(t, relayProgram, action.Instructions[1].ProgramID())
	assert.Equal(t, uint64(10_000), res.AdditionalPaybackFee)
}

func TestPrepare_RelayBalanceCoversFee(t *testing.T) {
	b, spy := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)
	fc.RelayAccountBalance = 50_000

	res, err := b.PrepareRelayedAction(fc, transferAction(owner), usdc, testPools())
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Nil(t, res.TopUp)
	assert.Equal(t, uint64(0), res.AdditionalPaybackFee)
	assert.Len(t, res.Transactions[0].Instructions, 1)
	assert.Equal(t, int32(0), spy.findCalls.Load())
}

func TestPrepare_TransitiveTopUp(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	pools := testPools()[1:] // USDC/USDT, USDT/SOL

	res, err := b.PrepareRelayedAction(testContext(owner), transferAction(owner), usdc, pools)
	require.NoError(t, err)
	require.NotNil(t, res.TopUp)
	assert.False(t, res.TopUp.Route.IsDirect())

	data, err := res.Transactions[0].Instructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, relayprogram.InstructionTopUpWithTransitiveSwap, data[0])
}

func TestPrepare_EmptyPoolsNotFound(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()

	_, err := b.PrepareRelayedAction(testContext(owner), transferAction(owner), usdc, []pool.Pool{})
	var pnf *router.PoolsNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, usdc, pnf.Source)
	assert.Equal(t, solana.WrappedSol, pnf.Destination)
}

func TestPrepare_NoViableRoute(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	pools := []pool.Pool{makePool("USDC/SOL thin", usdc, solana.WrappedSol, 1_000, 100)}

	_, err := b.PrepareRelayedAction(testContext(owner), transferAction(owner), usdc, pools)
	var pnf *router.PoolsNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.ErrorIs(t, err, router.ErrNoViableRoute)
}

func TestPrepare_InsufficientBalance(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	action := transferAction(owner)
	balance := uint64(1)
	action.PayingBalance = &balance

	_, err := b.PrepareRelayedAction(testContext(owner), action, usdc, testPools())
	var ibe *InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.Equal(t, uint64(1), ibe.Available)
	assert.Greater(t, ibe.Required, uint64(1))
}

func TestPrepare_InvalidContext(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()

	fc := testContext(owner)
	fc.RecentBlockhash = solana.Hash{}
	_, err := b.PrepareRelayedAction(fc, transferAction(owner), usdc, testPools())
	var ice *InvalidContextError
	require.ErrorAs(t, err, &ice)
	assert.Contains(t, ice.Reason, "blockhash")

	fc = testContext(owner)
	fc.LamportsPerSignature = 0
	_, err = b.PrepareRelayedAction(fc, transferAction(owner), usdc, testPools())
	require.ErrorAs(t, err, &ice)

	// Context fetched for another owner
	_, err = b.PrepareRelayedAction(testContext(solana.NewWallet().PublicKey()), transferAction(owner), usdc, testPools())
	require.ErrorAs(t, err, &ice)
}

func TestPrepare_GuardRejectsStaleContext(t *testing.T) {
	guard := func(fc feecontext.FeeContext) error {
		return &feecontext.StaleContextError{Generation: fc.Generation, Epoch: fc.Generation + 1}
	}
	b, _ := newTestBuilder(t, guard)
	owner := solana.NewWallet().PublicKey()

	_, err := b.PrepareRelayedAction(testContext(owner), transferAction(owner), usdc, testPools())
	var stale *feecontext.StaleContextError
	require.ErrorAs(t, err, &stale)
}

func TestPrepare_Deterministic(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)
	action := transferAction(owner)
	pools := testPools()

	first, err := b.PrepareRelayedAction(fc, action, usdc, pools)
	require.NoError(t, err)
	second, err := b.PrepareRelayedAction(fc, action, usdc, pools)
	require.NoError(t, err)

	assert.Equal(t, first.TopUp.Route.String(), second.TopUp.Route.String())
	assert.Equal(t, first.TopUp.InputAmount, second.TopUp.InputAmount)
	assert.Equal(t, first.AdditionalPaybackFee, second.AdditionalPaybackFee)
}

func TestPrepare_InvalidAction(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()

	_, err := b.PrepareRelayedAction(testContext(owner), Action{Owner: owner}, usdc, testPools())
	assert.Error(t, err)
}

func TestPreparedTransaction_Encode(t *testing.T) {
	b, _ := newTestBuilder(t, nil)
	owner := solana.NewWallet().PublicKey()
	fc := testContext(owner)

	res, err := b.PrepareRelayedAction(fc, transferAction(owner), usdc, testPools())
	require.NoError(t, err)

	for _, tx := range res.Transactions {
		enc, err := tx.Encode()
		require.NoError(t, err)
		assert.NotEmpty(t, enc.Base58)

		raw, err := base64.StdEncoding.DecodeString(enc.Base64)
		require.NoError(t, err)
		// Compact signature count, two zeroed signatures, then the message
		assert.Equal(t, byte(2), raw[0])

		built, err := tx.Build()
		require.NoError(t, err)
		assert.Equal(t, fc.FeePayerAddress, built.Message.AccountKeys[0])
		assert.Equal(t, fc.RecentBlockhash, built.Message.RecentBlockhash)
	}

	_, err = PreparedTransaction{}.Build()
	assert.Error(t, err)
}

func TestNewBuilder_Validation(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{})
	assert.Error(t, err)

	_, err = NewBuilder(BuilderConfig{RelayProgramID: relayProgram, SlippageBps: 10000})
	assert.Error(t, err)

	b, err := NewBuilder(BuilderConfig{RelayProgramID: relayProgram})
	require.NoError(t, err)
	assert.NotNil(t, b.Calculator())
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "pools_not_found", failureReason(&router.PoolsNotFoundError{}))
	assert.Equal(t, "invalid_context", failureReason(&InvalidContextError{}))
	assert.Equal(t, "insufficient_balance", failureReason(&InsufficientBalanceError{}))
	assert.Equal(t, "stale_context", failureReason(&feecontext.StaleContextError{}))
	assert.Equal(t, "other", failureReason(errors.New("boom")))
}
