package rpc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/constants"
)

func callContextual[T any](ctx context.Context, c *Client, method string, params []interface{}) (T, error) {
	var resp contextualResponse[T]
	var zero T
	if err := c.Call(ctx, method, params, &resp); err != nil {
		return zero, err
	}
	if resp.Error != nil {
		return zero, resp.Error
	}
	if resp.Result == nil {
		return zero, fmt.Errorf("%s returned no result", method)
	}
	return resp.Result.Value, nil
}

// GetLatestBlockhash returns the most recent blockhash
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	params := []interface{}{map[string]interface{}{"commitment": c.commitment}}

	value, err := callContextual[LatestBlockhash](ctx, c, "getLatestBlockhash", params)
	if err != nil {
		return solana.Hash{}, err
	}
	hash, err := solana.HashFromBase58(value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("parse blockhash: %w", err)
	}
	return hash, nil
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for an
// account holding dataLen bytes
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	var resp uint64Response
	if err := c.Call(ctx, "getMinimumBalanceForRentExemption", []interface{}{dataLen}, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, resp.Error
	}
	return resp.Result, nil
}

// GetFeeForMessage returns the fee the network charges for a base64 message.
// A nil result means the message's blockhash has expired.
func (c *Client) GetFeeForMessage(ctx context.Context, message string) (*uint64, error) {
	params := []interface{}{message, map[string]interface{}{"commitment": c.commitment}}
	return callContextual[*uint64](ctx, c, "getFeeForMessage", params)
}

// GetBalance returns an account's lamports
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	params := []interface{}{account.String(), map[string]interface{}{"commitment": c.commitment}}
	return callContextual[uint64](ctx, c, "getBalance", params)
}

// GetAccountInfo returns an account, or nil if it does not exist
func (c *Client) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*AccountInfo, error) {
	params := []interface{}{
		account.String(),
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": c.commitment,
			"dataSlice":  map[string]int{"offset": 0, "length": 0},
		},
	}
	return callContextual[*AccountInfo](ctx, c, "getAccountInfo", params)
}

// GetTokenAccountBalance returns the raw amount held by an SPL token account
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	params := []interface{}{account.String(), map[string]interface{}{"commitment": c.commitment}}

	value, err := callContextual[TokenAmount](ctx, c, "getTokenAccountBalance", params)
	if err != nil {
		return 0, err
	}
	amount, err := strconv.ParseUint(value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", value.Amount, err)
	}
	return amount, nil
}

// GetMultipleAccounts fetches accounts in batches. Missing accounts are nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, accounts []solana.PublicKey) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, 0, len(accounts))
	for start := 0; start < len(accounts); start += constants.MultipleAccountsBatchSize {
		end := start + constants.MultipleAccountsBatchSize
		if end > len(accounts) {
			end = len(accounts)
		}

		keys := make([]string, 0, end-start)
		for _, pk := range accounts[start:end] {
			keys = append(keys, pk.String())
		}
		params := []interface{}{
			keys,
			map[string]interface{}{"encoding": "base64", "commitment": c.commitment},
		}

		batch, err := callContextual[[]*AccountInfo](ctx, c, "getMultipleAccounts", params)
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("getMultipleAccounts returned %d accounts, want %d", len(batch), end-start)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// GetProgramAccounts lists the accounts owned by program. dataSize 0 disables
// the size filter.
func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64) ([]KeyedAccount, error) {
	opts := map[string]interface{}{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
	if dataSize > 0 {
		opts["filters"] = []map[string]interface{}{{"dataSize": dataSize}}
	}

	var resp programAccountsResponse
	if err := c.Call(ctx, "getProgramAccounts", []interface{}{program.String(), opts}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}
