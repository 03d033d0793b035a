package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relayprogram"
)

// Pool sources
const (
	PoolSourceRegistry  = "registry"
	PoolSourceDiscovery = "discovery"
)

// DefaultSwapProgramID is the SPL token-swap program the pool discovery scans
const DefaultSwapProgramID = "SwaPpA9LAaLfeLi3a68M4DjnLqgtticKg6CnyNwgAC8"

type Config struct {
	// RPC settings
	RPCUrl       string
	PollInterval time.Duration

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// API settings
	APIAddr        string
	APIKey         string
	DevMode        bool
	RelayRateLimit float64
	RelayBurst     int

	// Relay settings
	RelayProgramID      string
	FeePayerAddress     string
	SlippageBps         uint64
	ContextFetchTimeout time.Duration
	ContextIdleTTL      time.Duration
	ContextMaxOwners    int

	// Pool settings
	SwapProgramID  string
	PoolConfigPath string
	PoolSource     string

	// Free tier
	FreeTierMaxUsage  uint64
	FreeTierMaxAmount uint64
	FreeTierPeriod    time.Duration
}

func Load() *Config {
	return &Config{
		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		PollInterval: getDurationEnv("POLL_INTERVAL", 30*time.Second),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "solana"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 0),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// API
		APIAddr:        getEnv("API_ADDR", ":8090"),
		APIKey:         getEnv("API_KEY", ""),
		DevMode:        getBoolEnv("DEV_MODE", false),
		RelayRateLimit: getFloatEnv("RELAY_RATE_LIMIT", 2),
		RelayBurst:     getIntEnv("RELAY_BURST", 5),

		// Relay
		RelayProgramID:      getEnv("RELAY_PROGRAM_ID", relayprogram.MainnetProgramID),
		FeePayerAddress:     getEnv("FEE_PAYER_ADDRESS", ""),
		SlippageBps:         getUint64Env("SLIPPAGE_BPS", 50),
		ContextFetchTimeout: getDurationEnv("CONTEXT_FETCH_TIMEOUT", 10*time.Second),
		ContextIdleTTL:      getDurationEnv("CONTEXT_IDLE_TTL", 30*time.Minute),
		ContextMaxOwners:    getIntEnv("CONTEXT_MAX_OWNERS", 10_000),

		// Pools
		SwapProgramID:  getEnv("SWAP_PROGRAM_ID", DefaultSwapProgramID),
		PoolConfigPath: getEnv("POOL_CONFIG_PATH", "pools.json"),
		PoolSource:     strings.ToLower(getEnv("POOL_SOURCE", PoolSourceRegistry)),

		// Free tier
		FreeTierMaxUsage:  getUint64Env("FREE_TIER_MAX_USAGE", 100),
		FreeTierMaxAmount: getUint64Env("FREE_TIER_MAX_AMOUNT", 10_000_000),
		FreeTierPeriod:    getDurationEnv("FREE_TIER_PERIOD", 24*time.Hour),
	}
}

// Validate checks the settings every binary relies on
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.RPCUrl) == "" {
		errs = append(errs, errors.New("SOLANA_RPC_URL is required"))
	}
	if _, err := solana.PublicKeyFromBase58(c.RelayProgramID); err != nil {
		errs = append(errs, fmt.Errorf("RELAY_PROGRAM_ID: %w", err))
	}
	if _, err := solana.PublicKeyFromBase58(c.SwapProgramID); err != nil {
		errs = append(errs, fmt.Errorf("SWAP_PROGRAM_ID: %w", err))
	}
	if c.PoolSource != PoolSourceRegistry && c.PoolSource != PoolSourceDiscovery {
		errs = append(errs, fmt.Errorf("POOL_SOURCE must be %s or %s, got %q", PoolSourceRegistry, PoolSourceDiscovery, c.PoolSource))
	}
	if c.PoolSource == PoolSourceRegistry && strings.TrimSpace(c.PoolConfigPath) == "" {
		errs = append(errs, errors.New("POOL_CONFIG_PATH is required for the registry pool source"))
	}
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":         c.PollInterval,
		"HTTP_TIMEOUT":          c.HTTPTimeout,
		"CONTEXT_FETCH_TIMEOUT": c.ContextFetchTimeout,
		"CONTEXT_IDLE_TTL":      c.ContextIdleTTL,
		"FREE_TIER_PERIOD":      c.FreeTierPeriod,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES must not be negative"))
	}
	if c.SlippageBps >= 10000 {
		errs = append(errs, errors.New("SLIPPAGE_BPS must be below 10000"))
	}
	if c.RelayRateLimit < 0 {
		errs = append(errs, errors.New("RELAY_RATE_LIMIT must not be negative"))
	}
	if c.ContextMaxOwners <= 0 {
		errs = append(errs, errors.New("CONTEXT_MAX_OWNERS must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateRelayer additionally checks the settings of the relayer API
func (c *Config) ValidateRelayer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := c.FeePayer(); err != nil {
		return err
	}
	return nil
}

// FeePayer parses FEE_PAYER_ADDRESS
func (c *Config) FeePayer() (solana.PublicKey, error) {
	if strings.TrimSpace(c.FeePayerAddress) == "" {
		return solana.PublicKey{}, errors.New("FEE_PAYER_ADDRESS is required")
	}
	pk, err := solana.PublicKeyFromBase58(c.FeePayerAddress)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("FEE_PAYER_ADDRESS: %w", err)
	}
	return pk, nil
}

// RelayProgram parses RELAY_PROGRAM_ID
func (c *Config) RelayProgram() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.RelayProgramID)
}

// SwapProgram parses SWAP_PROGRAM_ID
func (c *Config) SwapProgram() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.SwapProgramID)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUint64Env(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseUint(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
