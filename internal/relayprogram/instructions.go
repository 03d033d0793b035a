package relayprogram

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

// SwapHop is one pool traversal of a top-up swap
type SwapHop struct {
	Pool       pool.Pool
	SourceMint solana.PublicKey
}

// TopUpParams are the amounts and parties of a top-up swap
type TopUpParams struct {
	ProgramID          solana.PublicKey
	FeePayer           solana.PublicKey
	Owner              solana.PublicKey // Signs for the source token account
	SourceTokenAccount solana.PublicKey
	AmountIn           uint64
	MinimumAmountOut   uint64 // Native lamports credited to the relay account
}

func (p TopUpParams) validate() error {
	for name, pk := range map[string]solana.PublicKey{
		"program id":           p.ProgramID,
		"fee payer":            p.FeePayer,
		"owner":                p.Owner,
		"source token account": p.SourceTokenAccount,
	} {
		if err := requirePubkey(pk, name); err != nil {
			return err
		}
	}
	if p.AmountIn == 0 {
		return fmt.Errorf("top-up amount in is zero")
	}
	return nil
}

// NewTopUpWithDirectSwapInstruction builds a top-up that swaps the paying token
// to wrapped SOL through one pool and credits the relay account.
//
// Account order:
// 0. wsol mint
// 1. fee payer (signer, writable)
// 2. owner (signer)
// 3. relay account (writable)
// 4. token program
// 5. swap program
// 6. swap account
// 7. swap authority
// 8. user source token account (writable)
// 9. temporary wsol account (writable)
// 10. pool source vault (writable)
// 11. pool destination vault (writable)
// 12. pool mint (writable)
// 13. pool fee account (writable)
// 14. rent sysvar
// 15. system program
func NewTopUpWithDirectSwapInstruction(params TopUpParams, hop SwapHop) (solana.Instruction, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	relayAccount, err := RelayAccount(params.ProgramID, params.Owner)
	if err != nil {
		return nil, err
	}
	wsolAccount, err := TemporaryWSOLAccount(params.ProgramID, params.Owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(solana.WrappedSol),
		solana.Meta(params.FeePayer).SIGNER().WRITE(),
		solana.Meta(params.Owner).SIGNER(),
		solana.Meta(relayAccount).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}
	swap, err := swapAccounts(hop)
	if err != nil {
		return nil, err
	}
	accounts = append(accounts, swap.program, swap.state, swap.authority)
	accounts = append(accounts,
		solana.Meta(params.SourceTokenAccount).WRITE(),
		solana.Meta(wsolAccount).WRITE(),
		swap.source, swap.destination, swap.poolMint, swap.feeAccount,
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SystemProgramID),
	)

	data, err := encode(directSwapData{
		Instruction:      InstructionTopUpWithDirectSwap,
		AmountIn:         params.AmountIn,
		MinimumAmountOut: params.MinimumAmountOut,
	})
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(params.ProgramID, accounts, data), nil
}

// NewTopUpWithTransitiveSwapInstruction builds a top-up that swaps through an
// intermediate token held in the transit account.
//
// Account order:
// 0. wsol mint
// 1. fee payer (signer, writable)
// 2. owner (signer)
// 3. relay account (writable)
// 4. token program
// 5. user source token account (writable)
// 6. transit token account (writable)
// 7. temporary wsol account (writable)
// 8-14. first hop: program, state, authority, source vault, destination vault, pool mint, fee account
// 15-21. second hop: same layout
// 22. rent sysvar
// 23. system program
func NewTopUpWithTransitiveSwapInstruction(
	params TopUpParams,
	first, second SwapHop,
	transitMinimumAmount uint64,
) (solana.Instruction, error) {

	if err := params.validate(); err != nil {
		return nil, err
	}

	intermediate, ok := first.Pool.Other(first.SourceMint)
	if !ok {
		return nil, fmt.Errorf("first hop pool %s does not hold %s", first.Pool.Name, first.SourceMint)
	}
	if !second.SourceMint.Equals(intermediate) {
		return nil, fmt.Errorf("second hop starts at %s, expected %s", second.SourceMint, intermediate)
	}

	relayAccount, err := RelayAccount(params.ProgramID, params.Owner)
	if err != nil {
		return nil, err
	}
	transitAccount, err := TransitTokenAccount(params.ProgramID, params.Owner, intermediate)
	if err != nil {
		return nil, err
	}
	wsolAccount, err := TemporaryWSOLAccount(params.ProgramID, params.Owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(solana.WrappedSol),
		solana.Meta(params.FeePayer).SIGNER().WRITE(),
		solana.Meta(params.Owner).SIGNER(),
		solana.Meta(relayAccount).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(params.SourceTokenAccount).WRITE(),
		solana.Meta(transitAccount).WRITE(),
		solana.Meta(wsolAccount).WRITE(),
	}
	for _, hop := range []SwapHop{first, second} {
		swap, err := swapAccounts(hop)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, swap.all()...)
	}
	accounts = append(accounts,
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SystemProgramID),
	)

	data, err := encode(transitiveSwapData{
		Instruction:          InstructionTopUpWithTransitiveSwap,
		AmountIn:             params.AmountIn,
		TransitMinimumAmount: transitMinimumAmount,
		MinimumAmountOut:     params.MinimumAmountOut,
	})
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(params.ProgramID, accounts, data), nil
}

// NewTransferSolInstruction moves lamports out of the owner's relay account.
//
// Account order:
// 0. owner (signer)
// 1. relay account (writable)
// 2. recipient (writable)
// 3. system program
func NewTransferSolInstruction(programID, owner, recipient solana.PublicKey, lamports uint64) (solana.Instruction, error) {
	if err := requirePubkey(programID, "program id"); err != nil {
		return nil, err
	}
	if err := requirePubkey(owner, "owner"); err != nil {
		return nil, err
	}
	if err := requirePubkey(recipient, "recipient"); err != nil {
		return nil, err
	}

	relayAccount, err := RelayAccount(programID, owner)
	if err != nil {
		return nil, err
	}

	data, err := encode(transferSolData{
		Instruction: InstructionTransferSol,
		Lamports:    lamports,
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(owner).SIGNER(),
		solana.Meta(relayAccount).WRITE(),
		solana.Meta(recipient).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

type hopAccounts struct {
	program, state, authority *solana.AccountMeta
	source, destination       *solana.AccountMeta
	poolMint, feeAccount      *solana.AccountMeta
}

func (h hopAccounts) all() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		h.program, h.state, h.authority, h.source, h.destination, h.poolMint, h.feeAccount,
	}
}

func swapAccounts(hop SwapHop) (hopAccounts, error) {
	aToB, err := hop.Pool.Direction(hop.SourceMint)
	if err != nil {
		return hopAccounts{}, err
	}
	source, destination := hop.Pool.Vaults(aToB)

	return hopAccounts{
		program:     solana.Meta(hop.Pool.ProgramID),
		state:       solana.Meta(hop.Pool.ID),
		authority:   solana.Meta(hop.Pool.Authority),
		source:      solana.Meta(source).WRITE(),
		destination: solana.Meta(destination).WRITE(),
		poolMint:    solana.Meta(hop.Pool.PoolMint).WRITE(),
		feeAccount:  solana.Meta(hop.Pool.FeeAccount).WRITE(),
	}, nil
}
