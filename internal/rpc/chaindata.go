package rpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
)

var _ feecontext.ChainData = (*ChainData)(nil)

// ChainData serves the fee context manager from a JSON-RPC node
type ChainData struct {
	client   *Client
	feePayer solana.PublicKey
}

// NewChainData creates a chain-data provider. feePayer signs the fee quote message
// used to price a signature.
func NewChainData(client *Client, feePayer solana.PublicKey) *ChainData {
	return &ChainData{client: client, feePayer: feePayer}
}

func (d *ChainData) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return d.client.GetLatestBlockhash(ctx)
}

func (d *ChainData) MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error) {
	return d.client.GetMinimumBalanceForRentExemption(ctx, dataLen)
}

// LamportsPerSignature prices a message with exactly one signature
func (d *ChainData) LamportsPerSignature(ctx context.Context) (uint64, error) {
	blockhash, err := d.client.GetLatestBlockhash(ctx)
	if err != nil {
		return 0, err
	}
	message, err := feeQuoteMessage(d.feePayer, blockhash)
	if err != nil {
		return 0, err
	}

	fee, err := d.client.GetFeeForMessage(ctx, message)
	if err != nil {
		return 0, err
	}
	if fee == nil {
		return 0, errors.New("fee for fee quote message unavailable")
	}
	return *fee, nil
}

func (d *ChainData) AccountBalance(ctx context.Context, account solana.PublicKey) (uint64, bool, error) {
	info, err := d.client.GetAccountInfo(ctx, account)
	if err != nil {
		return 0, false, err
	}
	if info == nil {
		return 0, false, nil
	}
	return info.Lamports, true, nil
}

// feeQuoteMessage is a base64 self-transfer signed only by feePayer
func feeQuoteMessage(feePayer solana.PublicKey, blockhash solana.Hash) (string, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(0, feePayer, feePayer).Build()},
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return "", fmt.Errorf("build fee quote message: %w", err)
	}
	raw, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize fee quote message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
