package rpc

import (
	"encoding/base64"
	"fmt"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ResponseContext is the slot a contextual result was read at
type ResponseContext struct {
	Slot uint64 `json:"slot"`
}

// TokenAmount represents token balance information
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// AccountData is the [payload, encoding] pair returned for base64 accounts
type AccountData []string

// Bytes decodes the payload
func (d AccountData) Bytes() ([]byte, error) {
	if len(d) == 0 {
		return nil, nil
	}
	if len(d) > 1 && d[1] != "base64" {
		return nil, fmt.Errorf("unsupported account encoding %q", d[1])
	}
	return base64.StdEncoding.DecodeString(d[0])
}

// AccountInfo is an on-chain account
type AccountInfo struct {
	Lamports   uint64      `json:"lamports"`
	Owner      string      `json:"owner"`
	Data       AccountData `json:"data"`
	Executable bool        `json:"executable"`
	RentEpoch  uint64      `json:"rentEpoch"`
}

// KeyedAccount is an account returned by getProgramAccounts
type KeyedAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account AccountInfo `json:"account"`
}

// LatestBlockhash is the result of getLatestBlockhash
type LatestBlockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type uint64Response struct {
	Result uint64    `json:"result"`
	Error  *RPCError `json:"error"`
}

type contextualResponse[T any] struct {
	Result *struct {
		Context ResponseContext `json:"context"`
		Value   T               `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

type programAccountsResponse struct {
	Result []KeyedAccount `json:"result"`
	Error  *RPCError      `json:"error"`
}
