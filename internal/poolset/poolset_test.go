package poolset

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/rpc"
)

var (
	swapProgram = solana.MustPublicKeyFromBase58("SwaPpA9LAaLfeLi3a68M4DjnLqgtticKg6CnyNwgAC8")
	usdc        = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

type fakeChain struct {
	balances map[solana.PublicKey]uint64
	accounts map[solana.PublicKey][]byte
	program  []rpc.KeyedAccount
	fail     error
}

func (f *fakeChain) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	b, ok := f.balances[account]
	if !ok {
		return 0, fmt.Errorf("account %s not found", account)
	}
	return b, nil
}

func (f *fakeChain) GetMultipleAccounts(ctx context.Context, accounts []solana.PublicKey) ([]*rpc.AccountInfo, error) {
	out := make([]*rpc.AccountInfo, len(accounts))
	for i, pk := range accounts {
		if data, ok := f.accounts[pk]; ok {
			out[i] = &rpc.AccountInfo{Data: rpc.AccountData{base64.StdEncoding.EncodeToString(data), "base64"}}
		}
	}
	return out, nil
}

func (f *fakeChain) GetProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64) ([]rpc.KeyedAccount, error) {
	return f.program, f.fail
}

func registryJSON(entries ...PoolConfig) []byte {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, `{"name":%q,"program_id":%q,"swap_account":%q,"authority":%q,"token_mint_a":%q,"token_mint_b":%q,"vault_a":%q,"vault_b":%q,"pool_mint":%q,"fee_account":%q,"fee_numerator":%d,"fee_denominator":%d,"curve":{"kind":%q,"amplification":%d},"deprecated":%t}`,
			e.Name, e.ProgramID, e.SwapAccount, e.Authority, e.TokenMintA, e.TokenMintB, e.VaultA, e.VaultB,
			e.PoolMint, e.FeeAccount, e.FeeNumerator, e.FeeDenominator, e.Curve.Kind, e.Curve.Amplification, e.Deprecated)
	}
	buf.WriteString("]")
	return buf.Bytes()
}

func newConfig(name string, mintA, mintB solana.PublicKey) PoolConfig {
	key := func() string { return solana.NewWallet().PublicKey().String() }
	return PoolConfig{
		Name:           name,
		ProgramID:      swapProgram.String(),
		SwapAccount:    key(),
		Authority:      key(),
		TokenMintA:     mintA.String(),
		TokenMintB:     mintB.String(),
		VaultA:         key(),
		VaultB:         key(),
		PoolMint:       key(),
		FeeAccount:     key(),
		FeeNumerator:   30,
		FeeDenominator: 10000,
	}
}

func TestParseRegistry(t *testing.T) {
	stable := newConfig("USDC/USDT", usdc, solana.NewWallet().PublicKey())
	stable.Curve = pool.CurveConfig{Kind: "stable", Amplification: 100}
	old := newConfig("USDC/SOL old", usdc, solana.WrappedSol)
	old.Deprecated = true

	reg, err := ParseRegistry(registryJSON(newConfig("USDC/SOL", usdc, solana.WrappedSol), stable, old))
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	p, ok := reg.FindByName("USDC/USDT")
	require.True(t, ok)
	assert.Equal(t, pool.Stable{Amplification: 100}, p.Curve)

	p, ok = reg.FindByMints(solana.WrappedSol, usdc)
	require.True(t, ok)
	assert.Equal(t, "USDC/SOL", p.Name)
	assert.Equal(t, pool.ConstantProduct{}, p.Curve)

	p, ok = reg.FindByName("USDC/SOL old")
	require.True(t, ok)
	assert.True(t, p.Deprecated)

	_, ok = reg.FindByName("missing")
	assert.False(t, ok)

	// Pools returns a copy.
	pools := reg.Pools()
	pools[0].Name = "changed"
	first, _ := reg.FindByMints(usdc, solana.WrappedSol)
	assert.Equal(t, "USDC/SOL", first.Name)
}

func TestParseRegistry_Errors(t *testing.T) {
	bad := newConfig("bad", usdc, solana.WrappedSol)
	bad.VaultA = "not-a-key"
	_, err := ParseRegistry(registryJSON(bad))
	assert.ErrorContains(t, err, "vault_a")

	zeroFee := newConfig("zero", usdc, solana.WrappedSol)
	zeroFee.FeeDenominator = 0
	_, err = ParseRegistry(registryJSON(zeroFee))
	assert.Error(t, err)

	dup := newConfig("a", usdc, solana.WrappedSol)
	_, err = ParseRegistry(registryJSON(dup, dup))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseRegistry([]byte("{"))
	assert.Error(t, err)
}

func TestRegistrySource_Load(t *testing.T) {
	cfg := newConfig("USDC/SOL", usdc, solana.WrappedSol)
	reg, err := ParseRegistry(registryJSON(cfg))
	require.NoError(t, err)

	chain := &fakeChain{balances: map[solana.PublicKey]uint64{
		solana.MustPublicKeyFromBase58(cfg.VaultA): 1_000_000,
		solana.MustPublicKeyFromBase58(cfg.VaultB): 2_000_000,
	}}

	pools, err := NewRegistrySource(reg, chain, 2).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, uint64(1_000_000), pools[0].ReserveA)
	assert.Equal(t, uint64(2_000_000), pools[0].ReserveB)
	assert.True(t, pools[0].Routable())

	// The registry itself keeps no reserves.
	p, _ := reg.FindByName("USDC/SOL")
	assert.Equal(t, uint64(0), p.ReserveA)

	chain.fail = errors.New("rpc down")
	_, err = NewRegistrySource(reg, chain, 2).Load(context.Background())
	assert.Error(t, err)
}

type swapFixture struct {
	id, vaultA, vaultB, mintA, mintB solana.PublicKey
	bump                             uint8
}

func encodeSwapState(t *testing.T, f swapFixture, curveType uint8, param uint64, initialized bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteByte(1)
	if initialized {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(f.bump)
	for _, pk := range []solana.PublicKey{
		solana.TokenProgramID, f.vaultA, f.vaultB, solana.NewWallet().PublicKey(),
		f.mintA, f.mintB, solana.NewWallet().PublicKey(),
	} {
		buf.Write(pk.Bytes())
	}
	for _, v := range []uint64{25, 10000, 5, 10000, 0, 0, 20, 100} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.WriteByte(curveType)
	var params [32]byte
	binary.LittleEndian.PutUint64(params[:8], param)
	buf.Write(params[:])
	require.Equal(t, SwapStateSize, buf.Len())
	return buf.Bytes()
}

func encodeTokenAccount(mint solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], solana.NewWallet().PublicKey().Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1 // Initialized
	return data
}

func newSwapFixture(t *testing.T, mintA, mintB solana.PublicKey) swapFixture {
	id := solana.NewWallet().PublicKey()
	_, bump, err := solana.FindProgramAddress([][]byte{id.Bytes()}, swapProgram)
	require.NoError(t, err)
	return swapFixture{
		id:     id,
		vaultA: solana.NewWallet().PublicKey(),
		vaultB: solana.NewWallet().PublicKey(),
		mintA:  mintA,
		mintB:  mintB,
		bump:   bump,
	}
}

func TestDecodeSwapState(t *testing.T) {
	f := newSwapFixture(t, usdc, solana.WrappedSol)

	p, err := decodeSwapState(f.id, swapProgram, encodeSwapState(t, f, 2, 85, true))
	require.NoError(t, err)
	assert.Equal(t, f.mintA, p.MintA)
	assert.Equal(t, f.mintB, p.MintB)
	assert.Equal(t, f.vaultA, p.VaultA)
	assert.Equal(t, pool.Stable{Amplification: 85}, p.Curve)
	assert.Equal(t, uint64(25), p.FeeNumerator)
	assert.Equal(t, uint64(10000), p.FeeDenominator)
	assert.Equal(t, uint64(5), p.OwnerFeeNumerator)
	assert.Equal(t, uint64(10000), p.OwnerFeeDenominator)

	authority, _, err := solana.FindProgramAddress([][]byte{f.id.Bytes()}, swapProgram)
	require.NoError(t, err)
	assert.Equal(t, authority, p.Authority)

	_, err = decodeSwapState(f.id, swapProgram, encodeSwapState(t, f, 0, 0, false))
	assert.ErrorIs(t, err, errNotInitialized)

	_, err = decodeSwapState(f.id, swapProgram, make([]byte, 10))
	assert.Error(t, err)

	// Unknown curve type
	_, err = decodeSwapState(f.id, swapProgram, encodeSwapState(t, f, 9, 0, true))
	assert.Error(t, err)
}

func TestSwapStateFees(t *testing.T) {
	s := swapState{TradeFeeNumerator: 25, TradeFeeDenominator: 10000, OwnerTradeFeeNumerator: 1, OwnerTradeFeeDenominator: 2000}
	trade, owner, err := s.fees()
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{25, 10000}, trade)
	assert.Equal(t, [2]uint64{1, 2000}, owner)

	// Large fractions are kept as they are, nothing is summed.
	s = swapState{
		TradeFeeNumerator: math.MaxUint64 / 2, TradeFeeDenominator: math.MaxUint64,
		OwnerTradeFeeNumerator: math.MaxUint64 / 2, OwnerTradeFeeDenominator: math.MaxUint64 - 1,
	}
	trade, owner, err = s.fees()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), trade[0])
	assert.Equal(t, uint64(math.MaxUint64-1), owner[1])

	trade, owner, err = (&swapState{}).fees()
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{0, 1}, trade)
	assert.Equal(t, [2]uint64{0, 0}, owner)

	_, _, err = (&swapState{OwnerTradeFeeNumerator: 1}).fees()
	assert.Error(t, err)
}

func TestDiscoverySource_Load(t *testing.T) {
	good := newSwapFixture(t, usdc, solana.WrappedSol)
	empty := newSwapFixture(t, usdc, solana.NewWallet().PublicKey())

	encode := func(data []byte) rpc.AccountData {
		return rpc.AccountData{base64.StdEncoding.EncodeToString(data), "base64"}
	}
	chain := &fakeChain{
		program: []rpc.KeyedAccount{
			{Pubkey: good.id.String(), Account: rpc.AccountInfo{Data: encode(encodeSwapState(t, good, 0, 0, true))}},
			{Pubkey: empty.id.String(), Account: rpc.AccountInfo{Data: encode(encodeSwapState(t, empty, 0, 0, true))}},
			{Pubkey: "garbage", Account: rpc.AccountInfo{Data: encode([]byte{1})}},
		},
		accounts: map[solana.PublicKey][]byte{
			good.vaultA: encodeTokenAccount(good.mintA, 5_000_000),
			good.vaultB: encodeTokenAccount(good.mintB, 7_000_000),
		},
	}

	pools, err := NewDiscoverySource(swapProgram, chain, quietLogger()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)

	assert.Equal(t, good.id, pools[0].ID)
	assert.Equal(t, uint64(5_000_000), pools[0].ReserveA)
	assert.Equal(t, uint64(7_000_000), pools[0].ReserveB)
	assert.True(t, pools[0].Routable())
	assert.NotEmpty(t, pools[0].Name)

	// Missing vaults leave the pool unroutable.
	assert.False(t, pools[1].Routable())
}

type staticSource struct {
	pools []pool.Pool
	err   error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Load(ctx context.Context) ([]pool.Pool, error) {
	return s.pools, s.err
}

func TestArena_KeepsNewest(t *testing.T) {
	var arena Arena
	_, err := arena.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	assert.True(t, arena.Store(&Snapshot{Version: 2}))
	assert.False(t, arena.Store(&Snapshot{Version: 1}))
	assert.False(t, arena.Store(&Snapshot{Version: 2}))

	snap, err := arena.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestLoader_Refresh(t *testing.T) {
	reg, err := ParseRegistry(registryJSON(newConfig("USDC/SOL", usdc, solana.WrappedSol)))
	require.NoError(t, err)
	pools := reg.Pools()
	pools[0].ReserveA, pools[0].ReserveB = 10, 20

	var arena Arena
	loader := NewLoader(staticSource{pools: pools}, &arena, quietLogger())

	first, err := loader.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", first.Source)
	assert.Equal(t, 1, first.Routable())

	second, err := loader.Refresh(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	current, err := arena.Current()
	require.NoError(t, err)
	assert.Same(t, second, current)

	_, err = NewLoader(staticSource{err: errors.New("boom")}, &arena, quietLogger()).Refresh(context.Background())
	assert.Error(t, err)
	current, _ = arena.Current()
	assert.Same(t, second, current)
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func cleanupTestRedis(_ *testing.T, client *redis.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = client.FlushDB(ctx).Err()
	_ = client.Close()
}

func TestCache_SaveLoad(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(t, client)

	cache, err := NewCache(client, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	reg, err := ParseRegistry(registryJSON(newConfig("USDC/SOL", usdc, solana.WrappedSol)))
	require.NoError(t, err)
	snap := &Snapshot{Version: 7, Source: "registry", TakenAt: time.Now().UTC().Truncate(time.Second), Pools: reg.Pools()}

	require.NoError(t, cache.Save(ctx, snap))

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, loaded.Version)
	require.Len(t, loaded.Pools, 1)
	assert.Equal(t, snap.Pools[0].ID, loaded.Pools[0].ID)
	assert.Equal(t, snap.Pools[0].Curve, loaded.Pools[0].Curve)
}

func TestCache_Follow(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(t, client)

	cache, err := NewCache(client, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var arena Arena
	done := make(chan error, 1)
	go func() { done <- cache.Follow(ctx, &arena) }()

	// Keep publishing until the follower has subscribed and installed it.
	require.Eventually(t, func() bool {
		_ = cache.Save(context.Background(), &Snapshot{Version: 3, Source: "test"})
		snap, err := arena.Current()
		return err == nil && snap.Version == 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewCache_NilClient(t *testing.T) {
	_, err := NewCache(nil, nil)
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	chain := &fakeChain{}

	path := filepath.Join(t.TempDir(), "pools.json")
	require.NoError(t, os.WriteFile(path, registryJSON(newConfig("USDC/SOL", usdc, solana.WrappedSol)), 0o600))

	src, err := NewSource(SourceConfig{Kind: "registry", ConfigPath: path, Chain: chain})
	require.NoError(t, err)
	assert.Equal(t, "registry", src.Name())

	src, err = NewSource(SourceConfig{Kind: "discovery", ProgramID: swapProgram, Chain: chain, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, "discovery", src.Name())

	_, err = NewSource(SourceConfig{Kind: "registry", ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	_, err = NewSource(SourceConfig{Kind: "magic"})
	assert.Error(t, err)
}
