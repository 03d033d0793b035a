package relay

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/fee"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/metrics"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relayprogram"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
)

// Path names the way an action is paid for
type Path string

const (
	PathDirect     Path = "direct"     // Owner pays the network fee in native
	PathSubsidized Path = "subsidized" // Free tier, relay pays
	PathRelayed    Path = "relayed"    // Relay pays, owner pays back from the relay account
)

// DefaultSlippageBps pads the top-up input against price movement
const DefaultSlippageBps uint16 = 50

// Action is the user operation to relay
type Action struct {
	Owner        solana.PublicKey
	Instructions []solana.Instruction
	NewAccounts  uint64
	OtherFees    []fee.OtherFee

	// PayingTokenAccount defaults to the owner's associated token account.
	PayingTokenAccount solana.PublicKey
	// PayingBalance, when set, is checked against the top-up input.
	PayingBalance *uint64
}

// TopUpPlan describes the swap that funds the relay account
type TopUpPlan struct {
	InputAmount      uint64           `json:"input_amount"`
	Route            router.PoolsPair `json:"-"`
	ExpectedFee      fee.Amount       `json:"expected_fee"`
	TargetLamports   uint64           `json:"target_lamports"`
	MinimumAmountOut uint64           `json:"minimum_amount_out"`
	QuotedOutput     uint64           `json:"quoted_output"`
}

// Result lists the transactions to submit, in order
type Result struct {
	Transactions         []PreparedTransaction
	AdditionalPaybackFee uint64
	TopUp                *TopUpPlan
	Fee                  fee.Amount
	Path                 Path
}

// ContextGuard rejects contexts that may no longer be used
type ContextGuard func(feecontext.FeeContext) error

// BuilderConfig holds Builder dependencies
type BuilderConfig struct {
	Calculator     *fee.Calculator
	Router         router.Router
	RelayProgramID solana.PublicKey
	SlippageBps    uint16
	Guard          ContextGuard // Optional
	Logger         *logrus.Logger
}

// Builder prepares relayed actions. It performs no I/O and keeps no state
// between calls.
type Builder struct {
	calculator     *fee.Calculator
	router         router.Router
	relayProgramID solana.PublicKey
	slippageBps    uint16
	guard          ContextGuard
	logger         *logrus.Logger
}

// NewBuilder creates a Builder
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.RelayProgramID.IsZero() {
		return nil, errors.New("relay program id is zero")
	}
	if cfg.Calculator == nil {
		cfg.Calculator = fee.NewCalculator()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Router == nil {
		cfg.Router = router.NewDefault(cfg.Logger)
	}
	if cfg.SlippageBps >= 10000 {
		return nil, fmt.Errorf("slippage %d bps out of range", cfg.SlippageBps)
	}

	return &Builder{
		calculator:     cfg.Calculator,
		router:         cfg.Router,
		relayProgramID: cfg.RelayProgramID,
		slippageBps:    cfg.SlippageBps,
		guard:          cfg.Guard,
		logger:         cfg.Logger,
	}, nil
}

// Calculator returns the fee calculator the builder prices with
func (b *Builder) Calculator() *fee.Calculator {
	return b.calculator
}

// PrepareRelayedAction prices action against fc and returns the transactions
// that relay it: an optional top-up swap followed by the action itself. The
// top-up must land before the action is submitted.
func (b *Builder) PrepareRelayedAction(
	fc feecontext.FeeContext,
	action Action,
	payingAsset solana.PublicKey,
	pools []pool.Pool,
) (*Result, error) {

	res, err := b.prepare(fc, action, payingAsset, pools)
	if err != nil {
		metrics.PrepareFailures.WithLabelValues(failureReason(err)).Inc()
		b.logger.WithError(err).WithFields(logrus.Fields{
			"owner":        action.Owner.String(),
			"paying_asset": payingAsset.String(),
		}).Warn("prepare relayed action failed")
		return nil, err
	}

	metrics.PreparedActions.WithLabelValues(string(res.Path)).Inc()
	b.logger.WithFields(logrus.Fields{
		"owner":        action.Owner.String(),
		"path":         res.Path,
		"transactions": len(res.Transactions),
		"fee_total":    res.Fee.Total(),
		"payback":      res.AdditionalPaybackFee,
	}).Debug("relayed action prepared")
	return res, nil
}

func (b *Builder) prepare(
	fc feecontext.FeeContext,
	action Action,
	payingAsset solana.PublicKey,
	pools []pool.Pool,
) (*Result, error) {

	if err := b.validate(fc, action); err != nil {
		return nil, err
	}

	op := fee.Operation{
		Owner:        action.Owner,
		PayingMint:   payingAsset,
		Instructions: action.Instructions,
		NewAccounts:  action.NewAccounts,
		OtherFees:    action.OtherFees,
	}
	amount, err := b.calculator.CalculateFee(op, fc)
	if err != nil {
		return nil, err
	}

	if b.calculator.IsNative(payingAsset) {
		return b.prepareNative(fc, action, amount)
	}

	res := &Result{Fee: amount, Path: PathRelayed}

	target := b.calculator.CalculateNeededTopUp(fc, amount, payingAsset)
	if target > 0 {
		plan, tx, err := b.prepareTopUp(fc, action, payingAsset, pools, amount, target)
		if err != nil {
			return nil, err
		}
		res.TopUp = plan
		res.Transactions = append(res.Transactions, tx)
	}

	payback := fee.PaybackFee(fc, amount)
	ixs := append([]solana.Instruction(nil), action.Instructions...)
	if payback > 0 {
		ix, err := relayprogram.NewTransferSolInstruction(b.relayProgramID, action.Owner, fc.FeePayerAddress, payback)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, ix)
	}
	res.AdditionalPaybackFee = payback
	res.Transactions = append(res.Transactions, b.transaction(fc, fc.FeePayerAddress, ixs))
	return res, nil
}

// prepareNative never routes: the action is either subsidized or paid by the
// owner directly.
func (b *Builder) prepareNative(fc feecontext.FeeContext, action Action, amount fee.Amount) (*Result, error) {
	if !amount.Subsidized {
		return &Result{
			Transactions: []PreparedTransaction{b.transaction(fc, action.Owner, action.Instructions)},
			Fee:          amount,
			Path:         PathDirect,
		}, nil
	}

	ixs := append([]solana.Instruction(nil), action.Instructions...)
	payback := amount.Total()
	if payback > 0 {
		ixs = append(ixs, system.NewTransferInstruction(payback, action.Owner, fc.FeePayerAddress).Build())
	}
	return &Result{
		Transactions:         []PreparedTransaction{b.transaction(fc, fc.FeePayerAddress, ixs)},
		AdditionalPaybackFee: payback,
		Fee:                  amount,
		Path:                 PathSubsidized,
	}, nil
}

func (b *Builder) prepareTopUp(
	fc feecontext.FeeContext,
	action Action,
	payingAsset solana.PublicKey,
	pools []pool.Pool,
	amount fee.Amount,
	target uint64,
) (*TopUpPlan, PreparedTransaction, error) {

	native := b.calculator.NativeMint()
	routes := b.router.FindRoutes(payingAsset, native, pools)
	if len(routes) == 0 {
		return nil, PreparedTransaction{}, &router.PoolsNotFoundError{Source: payingAsset, Destination: native}
	}

	quote, err := b.router.FindBestPoolsPairForEstimatedAmount(target, routes)
	if err != nil {
		return nil, PreparedTransaction{}, &router.PoolsNotFoundError{Source: payingAsset, Destination: native, Err: err}
	}

	amountIn, err := pool.AddSlippage(quote.InputAmount, b.slippageBps)
	if err != nil {
		return nil, PreparedTransaction{}, err
	}
	if action.PayingBalance != nil && *action.PayingBalance < amountIn {
		return nil, PreparedTransaction{}, &InsufficientBalanceError{
			Mint:      payingAsset,
			Required:  amountIn,
			Available: *action.PayingBalance,
		}
	}

	source := action.PayingTokenAccount
	if source.IsZero() {
		source, err = relayprogram.FindAssociatedTokenAddress(action.Owner, payingAsset)
		if err != nil {
			return nil, PreparedTransaction{}, err
		}
	}

	params := relayprogram.TopUpParams{
		ProgramID:          b.relayProgramID,
		FeePayer:           fc.FeePayerAddress,
		Owner:              action.Owner,
		SourceTokenAccount: source,
		AmountIn:           amountIn,
		MinimumAmountOut:   target,
	}

	var ix solana.Instruction
	first := quote.Route[0]
	if quote.Route.IsDirect() {
		ix, err = relayprogram.NewTopUpWithDirectSwapInstruction(params,
			relayprogram.SwapHop{Pool: first.Pool, SourceMint: first.SourceMint})
	} else {
		second := quote.Route[1]
		var transitMin uint64
		transitMin, err = first.Pool.OutputForInput(first.SourceMint, quote.InputAmount)
		if err == nil {
			ix, err = relayprogram.NewTopUpWithTransitiveSwapInstruction(params,
				relayprogram.SwapHop{Pool: first.Pool, SourceMint: first.SourceMint},
				relayprogram.SwapHop{Pool: second.Pool, SourceMint: second.SourceMint},
				transitMin,
			)
		}
	}
	if err != nil {
		return nil, PreparedTransaction{}, fmt.Errorf("build top-up instruction: %w", err)
	}

	metrics.TopUpLamports.Observe(float64(target))

	plan := &TopUpPlan{
		InputAmount:      amountIn,
		Route:            quote.Route,
		ExpectedFee:      amount,
		TargetLamports:   target,
		MinimumAmountOut: target,
		QuotedOutput:     quote.OutputAmount,
	}
	return plan, b.transaction(fc, fc.FeePayerAddress, []solana.Instruction{ix}), nil
}

func (b *Builder) validate(fc feecontext.FeeContext, action Action) error {
	if b.guard != nil {
		if err := b.guard(fc); err != nil {
			return err
		}
	}
	switch {
	case fc.RecentBlockhash == (solana.Hash{}):
		return &InvalidContextError{Reason: "missing recent blockhash"}
	case fc.FeePayerAddress.IsZero():
		return &InvalidContextError{Reason: "missing fee payer address"}
	case fc.LamportsPerSignature == 0:
		return &InvalidContextError{Reason: "lamports per signature is zero"}
	case !fc.Owner.IsZero() && !fc.Owner.Equals(action.Owner):
		return &InvalidContextError{Reason: fmt.Sprintf("context belongs to %s, action to %s", fc.Owner, action.Owner)}
	}
	if action.Owner.IsZero() {
		return errors.New("action owner is zero")
	}
	if len(action.Instructions) == 0 {
		return errors.New("action has no instructions")
	}
	return nil
}

func (b *Builder) transaction(fc feecontext.FeeContext, feePayer solana.PublicKey, ixs []solana.Instruction) PreparedTransaction {
	return PreparedTransaction{
		Instructions:    ixs,
		Signers:         collectSigners(feePayer, ixs),
		FeePayer:        feePayer,
		RecentBlockhash: fc.RecentBlockhash,
	}
}

func failureReason(err error) string {
	var (
		pnf   *router.PoolsNotFoundError
		ice   *InvalidContextError
		ibe   *InsufficientBalanceError
		stale *feecontext.StaleContextError
	)
	switch {
	case errors.As(err, &pnf):
		return "pools_not_found"
	case errors.As(err, &ice):
		return "invalid_context"
	case errors.As(err, &ibe):
		return "insufficient_balance"
	case errors.As(err, &stale):
		return "stale_context"
	default:
		return "other"
	}
}
