package poolset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

// PoolConfig represents a pool entry in the JSON config
type PoolConfig struct {
	Name           string           `json:"name"`
	ProgramID      string           `json:"program_id"`
	SwapAccount    string           `json:"swap_account"`
	Authority      string           `json:"authority"`
	TokenMintA     string           `json:"token_mint_a"`
	TokenMintB     string           `json:"token_mint_b"`
	VaultA         string           `json:"vault_a"`
	VaultB         string           `json:"vault_b"`
	PoolMint       string           `json:"pool_mint"`
	FeeAccount     string           `json:"fee_account"`
	FeeNumerator   uint64           `json:"fee_numerator"`
	FeeDenominator uint64           `json:"fee_denominator"`
	OwnerFeeNum    uint64           `json:"owner_fee_numerator,omitempty"`
	OwnerFeeDen    uint64           `json:"owner_fee_denominator,omitempty"`
	Curve          pool.CurveConfig `json:"curve"`
	Deprecated     bool             `json:"deprecated,omitempty"`
}

// Registry holds statically configured pools without reserves
type Registry struct {
	pools []pool.Pool
}

// LoadRegistry reads pool configurations from a JSON file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool config: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses a JSON array of pool configurations
func ParseRegistry(data []byte) (*Registry, error) {
	var configs []PoolConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	pools := make([]pool.Pool, 0, len(configs))
	seen := make(map[solana.PublicKey]bool, len(configs))
	for i, cfg := range configs {
		p, err := parsePoolConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, cfg.Name, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("pool %d (%s): duplicate swap account %s", i, cfg.Name, p.ID)
		}
		seen[p.ID] = true
		pools = append(pools, p)
	}

	return &Registry{pools: pools}, nil
}

// parsePoolConfig converts a config entry to a pool with validation
func parsePoolConfig(cfg PoolConfig) (pool.Pool, error) {
	p := pool.Pool{
		Name:                cfg.Name,
		FeeNumerator:        cfg.FeeNumerator,
		FeeDenominator:      cfg.FeeDenominator,
		OwnerFeeNumerator:   cfg.OwnerFeeNum,
		OwnerFeeDenominator: cfg.OwnerFeeDen,
		Deprecated:          cfg.Deprecated,
	}

	keys := []struct {
		field string
		value string
		dst   *solana.PublicKey
	}{
		{"program_id", cfg.ProgramID, &p.ProgramID},
		{"swap_account", cfg.SwapAccount, &p.ID},
		{"authority", cfg.Authority, &p.Authority},
		{"token_mint_a", cfg.TokenMintA, &p.MintA},
		{"token_mint_b", cfg.TokenMintB, &p.MintB},
		{"vault_a", cfg.VaultA, &p.VaultA},
		{"vault_b", cfg.VaultB, &p.VaultB},
		{"pool_mint", cfg.PoolMint, &p.PoolMint},
		{"fee_account", cfg.FeeAccount, &p.FeeAccount},
	}
	for _, k := range keys {
		pk, err := solana.PublicKeyFromBase58(k.value)
		if err != nil {
			return pool.Pool{}, fmt.Errorf("invalid %s: %w", k.field, err)
		}
		*k.dst = pk
	}

	curve, err := pool.CurveFromConfig(cfg.Curve)
	if err != nil {
		return pool.Pool{}, err
	}
	p.Curve = curve

	if err := p.Validate(); err != nil {
		return pool.Pool{}, err
	}
	return p, nil
}

// Pools returns a copy of the configured pools
func (r *Registry) Pools() []pool.Pool {
	return append([]pool.Pool(nil), r.pools...)
}

// FindByMints returns the first pool trading the pair in either direction
func (r *Registry) FindByMints(mintA, mintB solana.PublicKey) (pool.Pool, bool) {
	for _, p := range r.pools {
		if p.Contains(mintA) && p.Contains(mintB) {
			return p, true
		}
	}
	return pool.Pool{}, false
}

// FindByName searches for a pool by its name
func (r *Registry) FindByName(name string) (pool.Pool, bool) {
	for _, p := range r.pools {
		if p.Name == name {
			return p, true
		}
	}
	return pool.Pool{}, false
}

// Len returns the number of registered pools
func (r *Registry) Len() int {
	return len(r.pools)
}
