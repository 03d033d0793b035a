package poolset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/constants"
)

// UpdatesChannel announces the version of every saved snapshot
const UpdatesChannel = constants.PubSubChannelPools

// Cache shares pool snapshots between processes through Redis
type Cache struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

// NewCache creates a snapshot cache
func NewCache(client redis.UniversalClient, logger *logrus.Logger) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Cache{client: client, logger: logger}, nil
}

// Save stores snap as the latest snapshot and announces its version
func (c *Cache) Save(ctx context.Context, snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, constants.RedisKeyPoolSnapshot, b, 0)
	pipe.Publish(ctx, UpdatesChannel, snap.Version)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the latest stored snapshot
func (c *Cache) Load(ctx context.Context) (*Snapshot, error) {
	val, err := c.client.Get(ctx, constants.RedisKeyPoolSnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Follow installs the stored snapshot into arena and then every announced
// update until ctx is cancelled
func (c *Cache) Follow(ctx context.Context, arena *Arena) error {
	sub := c.client.Subscribe(ctx, UpdatesChannel)
	defer sub.Close()

	// Wait for the subscription so no update between Load and Subscribe is lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", UpdatesChannel, err)
	}
	c.logger.WithField("channel", UpdatesChannel).Info("subscribed to pool updates")

	if err := c.install(ctx, arena); err != nil && !errors.Is(err, ErrNoSnapshot) {
		c.logger.WithError(err).Warn("initial pool snapshot unavailable")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.logger.WithField("version", msg.Payload).Debug("pool update announced")
			if err := c.install(ctx, arena); err != nil {
				c.logger.WithError(err).Warn("failed to install pool snapshot")
			}
		}
	}
}

func (c *Cache) install(ctx context.Context, arena *Arena) error {
	snap, err := c.Load(ctx)
	if err != nil {
		return err
	}
	if arena.Store(snap) {
		c.logger.WithFields(logrus.Fields{
			"version": snap.Version,
			"pools":   len(snap.Pools),
		}).Info("pool snapshot installed")
	}
	return nil
}
