package relay

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// InvalidContextError reports a fee context that cannot back a transaction
type InvalidContextError struct {
	Reason string
}

func (e *InvalidContextError) Error() string {
	return "invalid fee context: " + e.Reason
}

// InsufficientBalanceError reports that the user cannot afford the top-up input
type InsufficientBalanceError struct {
	Mint      solana.PublicKey
	Required  uint64
	Available uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %d, have %d", e.Mint, e.Required, e.Available)
}
