package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/poolset"
)

// SnapshotStore defines the interface for persistent pool snapshot history
type SnapshotStore interface {
	// InsertSnapshot stores one reserve row per pool of snap
	InsertSnapshot(ctx context.Context, snap *poolset.Snapshot) error

	// PoolHistory returns the most recent reserve rows of a pool, newest first
	PoolHistory(ctx context.Context, poolID string, limit int) ([]ReserveRow, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}
