package relayprogram

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Fee relay program IDs
const (
	MainnetProgramID = "12YKFL4mnZz6CBEGePrf293mEzueQM3h8VLPUJsKpGs9"
	DevnetProgramID  = "6xKJFyuM6UHCT8F5SBxnjGt6ZrZYjsVfnAnAeHPU775k"
)

// Instruction indexes of the relay program
const (
	InstructionTopUpWithDirectSwap     uint8 = 0
	InstructionTopUpWithTransitiveSwap uint8 = 1
	InstructionTransferSol             uint8 = 2
)

// PDA seeds
var (
	relaySeed         = []byte("relay")
	temporaryWSOLSeed = []byte("temporary_wsol")
	transitSeed       = []byte("transit")
)

// RelayAccount derives the user's relay account, which holds the native
// balance the relay draws fees from.
func RelayAccount(programID, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{relaySeed, owner.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive relay account: %w", err)
	}
	return addr, nil
}

// TemporaryWSOLAccount derives the account the top-up swap pays wrapped SOL into
// before it is unwrapped to the relay account.
func TemporaryWSOLAccount(programID, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{temporaryWSOLSeed, owner.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive temporary wsol account: %w", err)
	}
	return addr, nil
}

// TransitTokenAccount derives the account holding the intermediate token of a
// two-hop top-up.
func TransitTokenAccount(programID, owner, intermediateMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{transitSeed, owner.Bytes(), intermediateMint.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive transit account: %w", err)
	}
	return addr, nil
}

// FindAssociatedTokenAddress derives the ATA PDA for (owner, mint).
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	// Seeds: [owner, token_program, mint]
	ata, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			solana.TokenProgramID.Bytes(),
			mint.Bytes(),
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return ata, nil
}

type directSwapData struct {
	Instruction      uint8
	AmountIn         uint64
	MinimumAmountOut uint64
}

type transitiveSwapData struct {
	Instruction          uint8
	AmountIn             uint64
	TransitMinimumAmount uint64
	MinimumAmountOut     uint64
}

type transferSolData struct {
	Instruction uint8
	Lamports    uint64
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode instruction data: %w", err)
	}
	return buf.Bytes(), nil
}

func requirePubkey(pk solana.PublicKey, name string) error {
	if pk.IsZero() {
		return fmt.Errorf("%s is zero", name)
	}
	return nil
}
