// ============================================================================
// cmd/poolsync/main.go - Pool Snapshot Worker
// ============================================================================
package main

import (
	"context"
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
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/poolset"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/rpc"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/storage"
)

// Syncer reloads the pool set and publishes it to the relayers
type Syncer struct {
	loader  *poolset.Loader
	cache   *poolset.Cache
	history storage.SnapshotStore // Optional
	timeout time.Duration
	logger  *logrus.Logger
}

// Sync runs one refresh. A history failure is logged and does not fail the
// round.
func (s *Syncer) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.loader.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := s.cache.Save(ctx, snap); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.InsertSnapshot(ctx, snap); err != nil {
			s.logger.WithError(err).Warn("failed to record pool history")
		}
	}
	return nil
}

func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	envPath := filepath.Join(filepath.Dir(filename), "../..", ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	rpcClient := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	defer rpcClient.Close()

	rclient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer rclient.Close()

	cache, err := poolset.NewCache(rclient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool cache")
	}

	source, err := poolset.NewSource(poolset.SourceConfig{
		Kind:       cfg.PoolSource,
		ConfigPath: cfg.PoolConfigPath,
		ProgramID:  cfg.SwapProgram(),
		Chain:      rpcClient,
		Logger:     logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create pool source")
	}

	syncer := &Syncer{
		loader:  poolset.NewLoader(source, &poolset.Arena{}, logger),
		cache:   cache,
		timeout: 2 * time.Minute,
		logger:  logger,
	}

	history, err := storage.NewClickHouseStore(ctx, storage.ClickHouseOptions{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, pool history disabled")
	} else {
		syncer.history = history
		defer history.Close()
	}

	logger.WithFields(logrus.Fields{
		"source":   source.Name(),
		"interval": cfg.PollInterval,
	}).Info("pool sync started")

	if err := syncer.Sync(ctx); err != nil {
		logger.WithError(err).Error("initial pool sync failed")
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down pool sync")
			return
		case <-ticker.C:
			if err := syncer.Sync(ctx); err != nil {
				logger.WithError(err).Error("pool sync failed")
			}
		}
	}
}
