package relay

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// PreparedTransaction is an unsigned transaction ready for the signing layer
type PreparedTransaction struct {
	Instructions    []solana.Instruction
	Signers         []solana.PublicKey // Fee payer first
	FeePayer        solana.PublicKey
	RecentBlockhash solana.Hash
}

// EncodedTransaction is the wire form of an unsigned transaction with zeroed
// signature slots
type EncodedTransaction struct {
	Base64   string             `json:"base64"`
	Base58   string             `json:"base58"`
	FeePayer solana.PublicKey   `json:"fee_payer"`
	Signers  []solana.PublicKey `json:"signers"`
}

// Build assembles the unsigned transaction
func (t PreparedTransaction) Build() (*solana.Transaction, error) {
	if len(t.Instructions) == 0 {
		return nil, fmt.Errorf("transaction has no instructions")
	}
	tx, err := solana.NewTransaction(t.Instructions, t.RecentBlockhash, solana.TransactionPayer(t.FeePayer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// Encode serializes the unsigned transaction
func (t PreparedTransaction) Encode() (EncodedTransaction, error) {
	tx, err := t.Build()
	if err != nil {
		return EncodedTransaction{}, err
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	raw, err := tx.MarshalBinary()
	if err != nil {
		return EncodedTransaction{}, fmt.Errorf("serialize transaction: %w", err)
	}

	return EncodedTransaction{
		Base64:   base64.StdEncoding.EncodeToString(raw),
		Base58:   base58.Encode(raw),
		FeePayer: t.FeePayer,
		Signers:  append([]solana.PublicKey(nil), t.Signers...),
	}, nil
}

// collectSigners lists feePayer followed by every other signer of ixs, once each
func collectSigners(feePayer solana.PublicKey, ixs []solana.Instruction) []solana.PublicKey {
	seen := map[solana.PublicKey]bool{feePayer: true}
	signers := []solana.PublicKey{feePayer}
	for _, ix := range ixs {
		for _, meta := range ix.Accounts() {
			if meta == nil || !meta.IsSigner || seen[meta.PublicKey] {
				continue
			}
			seen[meta.PublicKey] = true
			signers = append(signers, meta.PublicKey)
		}
	}
	return signers
}
