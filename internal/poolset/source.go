package poolset

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/constants"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/rpc"
)

// ChainReader is the subset of the RPC client pool sources read from
type ChainReader interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetMultipleAccounts(ctx context.Context, accounts []solana.PublicKey) ([]*rpc.AccountInfo, error)
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64) ([]rpc.KeyedAccount, error)
}

// Source produces a fresh pool set with reserves filled in
type Source interface {
	Name() string
	Load(ctx context.Context) ([]pool.Pool, error)
}

// RegistrySource fills the reserves of statically configured pools
type RegistrySource struct {
	registry    *Registry
	chain       ChainReader
	concurrency int
}

// NewRegistrySource creates a source over a pool registry
func NewRegistrySource(registry *Registry, chain ChainReader, concurrency int) *RegistrySource {
	if concurrency <= 0 {
		concurrency = constants.PoolLoadConcurrency
	}
	return &RegistrySource{registry: registry, chain: chain, concurrency: concurrency}
}

func (s *RegistrySource) Name() string { return "registry" }

// Load fetches both vault balances of every configured pool
func (s *RegistrySource) Load(ctx context.Context) ([]pool.Pool, error) {
	pools := s.registry.Pools()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range pools {
		p := &pools[i]
		g.Go(func() error {
			reserveA, err := s.chain.GetTokenAccountBalance(gctx, p.VaultA)
			if err != nil {
				return fmt.Errorf("pool %s: failed to fetch vault A balance: %w", p.Name, err)
			}
			reserveB, err := s.chain.GetTokenAccountBalance(gctx, p.VaultB)
			if err != nil {
				return fmt.Errorf("pool %s: failed to fetch vault B balance: %w", p.Name, err)
			}
			p.ReserveA, p.ReserveB = reserveA, reserveB
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pools, nil
}

// DiscoverySource enumerates every pool owned by a token-swap program
type DiscoverySource struct {
	programID solana.PublicKey
	chain     ChainReader
	logger    *logrus.Logger
}

// NewDiscoverySource creates a source that scans programID
func NewDiscoverySource(programID solana.PublicKey, chain ChainReader, logger *logrus.Logger) *DiscoverySource {
	if logger == nil {
		logger = logrus.New()
	}
	return &DiscoverySource{programID: programID, chain: chain, logger: logger}
}

func (s *DiscoverySource) Name() string { return "discovery" }

// Load decodes the program's swap accounts and reads their vault reserves in
// batches. Accounts that fail to decode are skipped.
func (s *DiscoverySource) Load(ctx context.Context) ([]pool.Pool, error) {
	accounts, err := s.chain.GetProgramAccounts(ctx, s.programID, SwapStateSize)
	if err != nil {
		return nil, fmt.Errorf("list swap accounts: %w", err)
	}

	pools := make([]pool.Pool, 0, len(accounts))
	for _, acc := range accounts {
		id, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			s.logger.WithError(err).WithField("pubkey", acc.Pubkey).Debug("skipping account")
			continue
		}
		data, err := acc.Account.Data.Bytes()
		if err != nil {
			s.logger.WithError(err).WithField("pubkey", acc.Pubkey).Debug("skipping account")
			continue
		}
		p, err := decodeSwapState(id, s.programID, data)
		if err != nil {
			s.logger.WithError(err).WithField("pubkey", acc.Pubkey).Debug("skipping account")
			continue
		}
		pools = append(pools, p)
	}

	vaults := make([]solana.PublicKey, 0, 2*len(pools))
	for _, p := range pools {
		vaults = append(vaults, p.VaultA, p.VaultB)
	}
	infos, err := s.chain.GetMultipleAccounts(ctx, vaults)
	if err != nil {
		return nil, fmt.Errorf("fetch vaults: %w", err)
	}

	for i := range pools {
		pools[i].ReserveA = vaultAmount(infos[2*i])
		pools[i].ReserveB = vaultAmount(infos[2*i+1])
		pools[i].Name = shortName(pools[i])
	}

	s.logger.WithFields(logrus.Fields{
		"program":  s.programID.String(),
		"accounts": len(accounts),
		"pools":    len(pools),
	}).Info("discovered pools")
	return pools, nil
}

// vaultAmount returns 0 for missing or undecodable vaults, which leaves the
// pool unroutable
func vaultAmount(info *rpc.AccountInfo) uint64 {
	if info == nil {
		return 0
	}
	data, err := info.Data.Bytes()
	if err != nil {
		return 0
	}
	amount, err := decodeTokenAmount(data)
	if err != nil {
		return 0
	}
	return amount
}

func shortName(p pool.Pool) string {
	return constants.Symbol(p.MintA.String()) + "/" + constants.Symbol(p.MintB.String())
}

// SourceConfig selects and configures a pool source
type SourceConfig struct {
	Kind       string // "registry" or "discovery"
	ConfigPath string // Registry file, for "registry"
	ProgramID  solana.PublicKey
	Chain      ChainReader
	Logger     *logrus.Logger
}

// NewSource builds the source named by cfg.Kind
func NewSource(cfg SourceConfig) (Source, error) {
	switch cfg.Kind {
	case "registry":
		registry, err := LoadRegistry(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		return NewRegistrySource(registry, cfg.Chain, 0), nil
	case "discovery":
		return NewDiscoverySource(cfg.ProgramID, cfg.Chain, cfg.Logger), nil
	}
	return nil, fmt.Errorf("unknown pool source %q", cfg.Kind)
}
