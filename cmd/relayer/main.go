package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/config"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/fee"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/flags"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/poolset"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relay"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/router"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/rpc"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/server"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/storage"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/usage"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the relayer API
// It wires the fee relay core to its chain, Redis and ClickHouse backends and
// serves it over HTTP with graceful shutdown
func main() {
	// Initialize structured logger with custom formatting
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	// Load and validate configuration from environment variables
	cfg := config.Load()
	if err := cfg.ValidateRelayer(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.DevMode {
		logger.SetLevel(logrus.DebugLevel)
	}
	feePayer, _ := cfg.FeePayer()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown (Ctrl+C, SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Solana RPC client; retries stay with the caller unless configured
	rpcClient := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	defer rpcClient.Close()

	// Initialize Redis client for usage counters and pool snapshots
	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer rclient.Close()

	usageStore, err := usage.NewStore(rclient, usage.Limits{
		MaxUsage:  cfg.FreeTierMaxUsage,
		MaxAmount: cfg.FreeTierMaxAmount,
		Period:    cfg.FreeTierPeriod,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create usage store")
	}

	flagStore, err := flags.NewStore(rclient)
	if err != nil {
		logger.WithError(err).Fatal("failed to create flag store")
	}

	contexts := feecontext.NewRegistry(feecontext.RegistryConfig{
		FeePayer:       feePayer,
		RelayProgramID: cfg.RelayProgram(),
		Chain:          rpc.NewChainData(rpcClient, feePayer),
		Usage:          usageStore,
		FetchTimeout:   cfg.ContextFetchTimeout,
		IdleTTL:        cfg.ContextIdleTTL,
		MaxManagers:    cfg.ContextMaxOwners,
		Logger:         logger,
	})

	// Pool snapshots come from the poolsync worker through Redis
	arena := &poolset.Arena{}
	poolCache, err := poolset.NewCache(rclient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool cache")
	}
	if err := bootstrapPools(ctx, cfg, rpcClient, poolCache, arena, logger); err != nil {
		logger.WithError(err).Warn("no pool snapshot yet, non-native fees are unavailable until poolsync publishes one")
	}
	go func() {
		if err := poolCache.Follow(ctx, arena); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("pool snapshot follower stopped")
		}
	}()

	rt := router.NewDefault(logger)
	builder, err := relay.NewBuilder(relay.BuilderConfig{
		Calculator:     fee.NewCalculator(),
		Router:         rt,
		RelayProgramID: cfg.RelayProgram(),
		SlippageBps:    uint16(cfg.SlippageBps),
		Guard:          contexts.CheckFresh,
		Logger:         logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create relay builder")
	}

	// Create handlers with all dependencies injected
	h := &server.Handlers{
		Contexts: contexts,    // Per-owner fee contexts
		Pools:    arena,       // Current pool snapshot
		Router:   rt,          // Route search and pricing
		Builder:  builder,     // Relayed action assembly
		Usage:    usageStore,  // Free-tier accounting
		Flags:    flagStore,   // Operator switches
		DevMode:  cfg.DevMode, // Enable detailed error responses in development
		Logger:   logger,      // Structured logger
	}

	// Pool history is optional for the API
	if history, err := storage.NewClickHouseStore(ctx, storage.ClickHouseOptions{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	}, logger); err != nil {
		logger.WithError(err).Warn("pool history unavailable")
	} else {
		h.History = history
		defer history.Close()
	}

	// Create HTTP server with configuration and handlers
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:           cfg.APIAddr,
			DevMode:        cfg.DevMode,
			APIKey:         cfg.APIKey,
			RelayRateLimit: cfg.RelayRateLimit,
			RelayBurst:     cfg.RelayBurst,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh // Wait for shutdown signal
		logger.Info("shutting down")
		cancel()                               // Stop the pool follower and in-flight fetches
		_ = srv.Shutdown(context.Background()) // Gracefully shutdown HTTP server
	}()

	// Start the HTTP server
	logger.WithFields(logrus.Fields{
		"addr":      cfg.APIAddr,
		"fee_payer": feePayer.String(),
		"program":   cfg.RelayProgramID,
	}).Info("relayer api starting")
	if err := srv.Start(); err != nil {
		// ErrServerClosed is expected during graceful shutdown
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		logger.WithError(err).Fatal("relayer api failed")
	}

	// Wait for server to be fully shut down
	if err := srv.WaitClosed(context.Background()); err != nil {
		fmt.Println(err)
	}
}

// bootstrapPools installs the cached snapshot, or loads one directly when the
// cache is still empty
func bootstrapPools(
	ctx context.Context,
	cfg *config.Config,
	client *rpc.Client,
	cache *poolset.Cache,
	arena *poolset.Arena,
	logger *logrus.Logger,
) error {
	snap, err := cache.Load(ctx)
	if err == nil {
		arena.Store(snap)
		return nil
	}
	if !errors.Is(err, poolset.ErrNoSnapshot) {
		return err
	}

	source, err := poolset.NewSource(poolset.SourceConfig{
		Kind:       cfg.PoolSource,
		ConfigPath: cfg.PoolConfigPath,
		ProgramID:  cfg.SwapProgram(),
		Chain:      client,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	loadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	_, err = poolset.NewLoader(source, arena, logger).Refresh(loadCtx)
	return err
}
