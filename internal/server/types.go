package server

import (
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relay"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/storage"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK           bool   `json:"ok"`
	PoolVersion  uint64 `json:"pool_version,omitempty"`
	Pools        int    `json:"pools"`
	RoutablePool int    `json:"routable_pools"`
}

// UsageResponse is the owner's free-tier status
type UsageResponse struct {
	MaxUsage      uint64 `json:"max_usage"`
	CurrentUsage  uint64 `json:"current_usage"`
	RemainingFree uint64 `json:"remaining_free"`
	MaxAmount     uint64 `json:"max_amount"`
	AmountUsed    uint64 `json:"amount_used"`
}

// ContextResponse renders a fee context
type ContextResponse struct {
	Owner                 string        `json:"owner"`
	FeePayer              string        `json:"fee_payer"`
	RelayAccount          string        `json:"relay_account"`
	RelayAccountExists    bool          `json:"relay_account_exists"`
	RelayAccountBalance   uint64        `json:"relay_account_balance"`
	RelayAccountBalanceUI string        `json:"relay_account_balance_ui"`
	LamportsPerSignature  uint64        `json:"lamports_per_signature"`
	MinimumRelayBalance   uint64        `json:"minimum_relay_balance"`
	RecentBlockhash       string        `json:"recent_blockhash"`
	Usage                 UsageResponse `json:"usage"`
	Generation            uint64        `json:"generation"`
	FetchedAt             string        `json:"fetched_at"`
}

// AccountMetaRequest is one account of a client instruction
type AccountMetaRequest struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// InstructionRequest is a client instruction. Data is base64.
type InstructionRequest struct {
	ProgramID string               `json:"program_id"`
	Accounts  []AccountMetaRequest `json:"accounts"`
	Data      string               `json:"data"`
}

// OtherFeeRequest is an extra fee charged with the action
type OtherFeeRequest struct {
	Label        string `json:"label"`
	Mint         string `json:"mint"`
	Amount       uint64 `json:"amount"`
	NativeAmount uint64 `json:"native_amount"`
}

// OperationRequest describes an action to price or relay
type OperationRequest struct {
	Owner        string               `json:"owner"`
	PayingMint   string               `json:"paying_mint"`
	Instructions []InstructionRequest `json:"instructions"`
	NewAccounts  uint64               `json:"new_accounts"`
	OtherFees    []OtherFeeRequest    `json:"other_fees"`
}

// PrepareRequest asks for the transactions that relay an action
type PrepareRequest struct {
	OperationRequest
	PayingTokenAccount string `json:"paying_token_account"`
	PayingBalance      string `json:"paying_balance"` // Optional, decimal string
}

// FeeResponse renders a fee amount
type FeeResponse struct {
	TransactionFee     uint64            `json:"transaction_fee"`
	AccountCreationFee uint64            `json:"account_creation_fee"`
	OtherFees          []OtherFeeRequest `json:"other_fees,omitempty"`
	Total              uint64            `json:"total"`
	TotalUI            string            `json:"total_ui"`
	Subsidized         bool              `json:"subsidized"`
}

// FeeCalculateResponse is the result of /fees/calculate
type FeeCalculateResponse struct {
	Fee        FeeResponse `json:"fee"`
	Generation uint64      `json:"generation"`
}

// TopUpResponse is the result of /fees/topup
type TopUpResponse struct {
	Fee            FeeResponse `json:"fee"`
	TopUpLamports  uint64      `json:"top_up_lamports"`
	TopUpUI        string      `json:"top_up_ui"`
	PaybackLamport uint64      `json:"payback_lamports"`
	Generation     uint64      `json:"generation"`
}

// HopResponse is one hop of a route
type HopResponse struct {
	Pool            string `json:"pool"`
	Name            string `json:"name"`
	SourceMint      string `json:"source_mint"`
	DestinationMint string `json:"destination_mint"`
}

// RouteQuoteResponse is one priced route
type RouteQuoteResponse struct {
	Index        int           `json:"index"`
	Hops         []HopResponse `json:"hops"`
	InputAmount  uint64        `json:"input_amount"`
	OutputAmount uint64        `json:"output_amount"`
	InputUI      string        `json:"input_ui,omitempty"`
	OutputUI     string        `json:"output_ui,omitempty"`
}

// RoutesResponse lists every priced route and the best one
type RoutesResponse struct {
	Mode        string               `json:"mode"`
	Amount      uint64               `json:"amount"`
	PoolVersion uint64               `json:"pool_version"`
	Routes      []RouteQuoteResponse `json:"routes"`
	Best        *RouteQuoteResponse  `json:"best,omitempty"`
}

// TopUpPlanResponse renders a top-up plan
type TopUpPlanResponse struct {
	InputAmount      uint64        `json:"input_amount"`
	TargetLamports   uint64        `json:"target_lamports"`
	MinimumAmountOut uint64        `json:"minimum_amount_out"`
	QuotedOutput     uint64        `json:"quoted_output"`
	Hops             []HopResponse `json:"hops"`
}

// PrepareResponse is the result of /relay/prepare. Transactions are unsigned
// and must be submitted in order.
type PrepareResponse struct {
	Path                 relay.Path                 `json:"path"`
	Transactions         []relay.EncodedTransaction `json:"transactions"`
	AdditionalPaybackFee uint64                     `json:"additional_payback_fee"`
	Fee                  FeeResponse                `json:"fee"`
	TopUp                *TopUpPlanResponse         `json:"top_up,omitempty"`
	Generation           uint64                     `json:"generation"`
}

// PoolResponse summarizes one pool of the current snapshot
type PoolResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MintA      string `json:"mint_a"`
	MintB      string `json:"mint_b"`
	ReserveA   uint64 `json:"reserve_a"`
	ReserveB   uint64 `json:"reserve_b"`
	FeeBps     uint16 `json:"fee_bps"`
	Curve      string `json:"curve"`
	Deprecated bool   `json:"deprecated"`
	Routable   bool   `json:"routable"`
}

// PoolHistoryResponse lists stored reserve rows of a pool
type PoolHistoryResponse struct {
	Items []storage.ReserveRow `json:"items"`
}

// FlagUpsertRequest creates or updates a relay switch
type FlagUpsertRequest struct {
	Key   string `json:"key"`   // Flag key (must match regex pattern)
	Value bool   `json:"value"` // Flag value (true/false)
}

// FlagUpdateRequest sets the value of an existing switch
type FlagUpdateRequest struct {
	Value bool `json:"value"` // New flag value
}
