package server

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/constants"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/fee"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relay"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
)

// NativeDecimals is the number of decimals of the native asset
const NativeDecimals = 9

// maxInstructions bounds a client action
const maxInstructions = 32

// uiAmount renders a base-unit amount with the given decimals
func uiAmount(v uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -decimals).String()
}

func parsePubkey(s string) (solana.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("required")
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid public key")
	}
	return pk, nil
}

// parseOptionalPubkey returns the zero key for an empty string
func parseOptionalPubkey(s string) (solana.PublicKey, error) {
	if strings.TrimSpace(s) == "" {
		return solana.PublicKey{}, nil
	}
	return parsePubkey(s)
}

// fieldError names the request field that failed to parse
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string {
	return e.field + ": " + e.msg
}

func (e *fieldError) details() map[string]any {
	return map[string]any{e.field: e.msg}
}

// operation decodes the request into a relay action and its paying mint
func (r OperationRequest) operation() (relay.Action, solana.PublicKey, error) {
	owner, err := parsePubkey(r.Owner)
	if err != nil {
		return relay.Action{}, solana.PublicKey{}, &fieldError{"owner", err.Error()}
	}
	payingMint, err := parseOptionalPubkey(r.PayingMint)
	if err != nil {
		return relay.Action{}, solana.PublicKey{}, &fieldError{"paying_mint", err.Error()}
	}
	if len(r.Instructions) == 0 {
		return relay.Action{}, solana.PublicKey{}, &fieldError{"instructions", "required"}
	}
	if len(r.Instructions) > maxInstructions {
		return relay.Action{}, solana.PublicKey{}, &fieldError{"instructions", fmt.Sprintf("max %d", maxInstructions)}
	}

	ixs := make([]solana.Instruction, 0, len(r.Instructions))
	for i, in := range r.Instructions {
		ix, err := in.instruction()
		if err != nil {
			return relay.Action{}, solana.PublicKey{}, &fieldError{fmt.Sprintf("instructions[%d]", i), err.Error()}
		}
		ixs = append(ixs, ix)
	}

	others := make([]fee.OtherFee, 0, len(r.OtherFees))
	for i, f := range r.OtherFees {
		if strings.TrimSpace(f.Label) == "" {
			return relay.Action{}, solana.PublicKey{}, &fieldError{fmt.Sprintf("other_fees[%d].label", i), "required"}
		}
		mint, err := parseOptionalPubkey(f.Mint)
		if err != nil {
			return relay.Action{}, solana.PublicKey{}, &fieldError{fmt.Sprintf("other_fees[%d].mint", i), err.Error()}
		}
		others = append(others, fee.OtherFee{
			Label:        f.Label,
			Mint:         mint,
			Amount:       f.Amount,
			NativeAmount: f.NativeAmount,
		})
	}

	return relay.Action{
		Owner:        owner,
		Instructions: ixs,
		NewAccounts:  r.NewAccounts,
		OtherFees:    others,
	}, payingMint, nil
}

func (r InstructionRequest) instruction() (solana.Instruction, error) {
	programID, err := parsePubkey(r.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program_id: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, fmt.Errorf("data: invalid base64")
	}

	metas := make(solana.AccountMetaSlice, 0, len(r.Accounts))
	for i, a := range r.Accounts {
		pk, err := parsePubkey(a.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		metas = append(metas, solana.NewAccountMeta(pk, a.IsWritable, a.IsSigner))
	}
	return solana.NewInstruction(programID, metas, data), nil
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be uint64")
	}
	return n, nil
}

func toFeeResponse(a fee.Amount) FeeResponse {
	var others []OtherFeeRequest
	for _, f := range a.OtherFees {
		mint := ""
		if !f.Mint.IsZero() {
			mint = f.Mint.String()
		}
		others = append(others, OtherFeeRequest{
			Label:        f.Label,
			Mint:         mint,
			Amount:       f.Amount,
			NativeAmount: f.NativeAmount,
		})
	}
	return FeeResponse{
		TransactionFee:     a.TransactionFee,
		AccountCreationFee: a.AccountCreationFee,
		OtherFees:          others,
		Total:              a.Total(),
		TotalUI:            uiAmount(a.Total(), NativeDecimals),
		Subsidized:         a.Subsidized,
	}
}

func toContextResponse(fc feecontext.FeeContext) ContextResponse {
	return ContextResponse{
		Owner:                 fc.Owner.String(),
		FeePayer:              fc.FeePayerAddress.String(),
		RelayAccount:          fc.RelayAccount.String(),
		RelayAccountExists:    fc.RelayAccountExists,
		RelayAccountBalance:   fc.RelayAccountBalance,
		RelayAccountBalanceUI: uiAmount(fc.RelayAccountBalance, NativeDecimals),
		LamportsPerSignature:  fc.LamportsPerSignature,
		MinimumRelayBalance:   fc.MinimumRelayBalance,
		RecentBlockhash:       fc.RecentBlockhash.String(),
		Usage: UsageResponse{
			MaxUsage:      fc.Usage.MaxUsage,
			CurrentUsage:  fc.Usage.CurrentUsage,
			RemainingFree: fc.Usage.RemainingFree(),
			MaxAmount:     fc.Usage.MaxAmount,
			AmountUsed:    fc.Usage.AmountUsed,
		},
		Generation: fc.Generation,
		FetchedAt:  fc.FetchedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

// tokenUI renders amount of mint in UI units when its decimals are known
func tokenUI(mint solana.PublicKey, amount uint64) string {
	d, ok := constants.TokenDecimals[mint.String()]
	if !ok {
		return ""
	}
	return uiAmount(amount, d)
}

func toRouteQuote(route router.PoolsPair, index int, in, out uint64) RouteQuoteResponse {
	return RouteQuoteResponse{
		Index:        index,
		Hops:         toHops(route),
		InputAmount:  in,
		OutputAmount: out,
		InputUI:      tokenUI(route.Source(), in),
		OutputUI:     tokenUI(route.Destination(), out),
	}
}

func toHops(route router.PoolsPair) []HopResponse {
	hops := make([]HopResponse, 0, len(route))
	for _, hop := range route {
		hops = append(hops, HopResponse{
			Pool:            hop.Pool.ID.String(),
			Name:            hop.Pool.Name,
			SourceMint:      hop.SourceMint.String(),
			DestinationMint: hop.DestinationMint.String(),
		})
	}
	return hops
}

func toPoolResponse(p pool.Pool) PoolResponse {
	curve := ""
	if p.Curve != nil {
		curve = p.Curve.Kind().String()
	}
	return PoolResponse{
		ID:         p.ID.String(),
		Name:       p.Name,
		MintA:      p.MintA.String(),
		MintB:      p.MintB.String(),
		ReserveA:   p.ReserveA,
		ReserveB:   p.ReserveB,
		FeeBps:     p.FeeBps(),
		Curve:      curve,
		Deprecated: p.Deprecated,
		Routable:   p.Routable(),
	}
}
