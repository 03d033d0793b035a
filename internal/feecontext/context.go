package feecontext

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// UsageStatus holds the free-tier counters of one owner for the current period
type UsageStatus struct {
	MaxUsage     uint64 `json:"max_usage"`     // Free relays allowed per period
	CurrentUsage uint64 `json:"current_usage"` // Free relays used this period
	MaxAmount    uint64 `json:"max_amount"`    // Lamports the operator subsidizes per period
	AmountUsed   uint64 `json:"amount_used"`   // Lamports subsidized this period
}

// RemainingFree returns how many free relays are left this period
func (u UsageStatus) RemainingFree() uint64 {
	if u.CurrentUsage >= u.MaxUsage {
		return 0
	}
	return u.MaxUsage - u.CurrentUsage
}

// IsFreeTransactionAvailable reports whether a transaction fee of transactionFee
// lamports can still be subsidized.
func (u UsageStatus) IsFreeTransactionAvailable(transactionFee uint64) bool {
	if u.RemainingFree() == 0 {
		return false
	}
	if transactionFee > u.MaxAmount {
		return false
	}
	return u.AmountUsed <= u.MaxAmount-transactionFee
}

// FeeContext is a consistent snapshot of the chain parameters fee math depends on.
// It is replaced as a whole on refresh.
type FeeContext struct {
	Owner                solana.PublicKey `json:"owner"`
	LamportsPerSignature uint64           `json:"lamports_per_signature"`
	MinimumRelayBalance  uint64           `json:"minimum_relay_balance"`
	RelayAccount         solana.PublicKey `json:"relay_account"`
	RelayAccountBalance  uint64           `json:"relay_account_balance"`
	RelayAccountExists   bool             `json:"relay_account_exists"`
	FeePayerAddress      solana.PublicKey `json:"fee_payer_address"`
	RecentBlockhash      solana.Hash      `json:"recent_blockhash"`
	Usage                UsageStatus      `json:"usage"`
	FetchedAt            time.Time        `json:"fetched_at"`
	Generation           uint64           `json:"generation"`
}

// ChainData is the chain-data provider the manager reads from
type ChainData interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
	LamportsPerSignature(ctx context.Context) (uint64, error)
	AccountBalance(ctx context.Context, account solana.PublicKey) (balance uint64, exists bool, err error)
}

// UsageSource reports free-tier usage for an owner
type UsageSource interface {
	UsageStatus(ctx context.Context, owner solana.PublicKey) (UsageStatus, error)
}

// RetrievalError reports a failed chain-data or usage fetch. Callers decide
// whether to retry.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("fee context retrieval failed (%s): %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// StaleContextError reports a context fetched before an explicit invalidation
type StaleContextError struct {
	Generation uint64
	Epoch      uint64
}

func (e *StaleContextError) Error() string {
	return fmt.Sprintf("fee context generation %d is stale (valid from %d)", e.Generation, e.Epoch)
}
