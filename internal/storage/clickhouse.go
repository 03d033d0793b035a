package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/poolset"
)

const createReservesTable = `
	CREATE TABLE IF NOT EXISTS pool_reserves (
		snapshot_version UInt64,
		taken_at DateTime64(3, 'UTC'),
		source LowCardinality(String),
		pool_id String,
		name String,
		mint_a String,
		mint_b String,
		reserve_a UInt64,
		reserve_b UInt64,
		fee_bps UInt16,
		curve LowCardinality(String),
		routable Bool
	) ENGINE = MergeTree
	ORDER BY (pool_id, taken_at)
`

// ReserveRow is one pool's state in one snapshot
type ReserveRow struct {
	SnapshotVersion uint64    `json:"snapshot_version"`
	TakenAt         time.Time `json:"taken_at"`
	Source          string    `json:"source"`
	PoolID          string    `json:"pool_id"`
	Name            string    `json:"name"`
	MintA           string    `json:"mint_a"`
	MintB           string    `json:"mint_b"`
	ReserveA        uint64    `json:"reserve_a"`
	ReserveB        uint64    `json:"reserve_b"`
	FeeBps          uint16    `json:"fee_bps"`
	Curve           string    `json:"curve"`
	Routable        bool      `json:"routable"`
}

// ClickHouseOptions configures the history store connection
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

var _ SnapshotStore = (*ClickHouseStore)(nil)

func NewClickHouseStore(ctx context.Context, opts ClickHouseOptions, logger *logrus.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createReservesTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create pool_reserves table: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("connected to ClickHouse")

	return &ClickHouseStore{
		conn:   conn,
		logger: logger,
	}, nil
}

func (c *ClickHouseStore) InsertSnapshot(ctx context.Context, snap *poolset.Snapshot) error {
	rows := RowsFromSnapshot(snap)
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO pool_reserves")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.SnapshotVersion,
			r.TakenAt,
			r.Source,
			r.PoolID,
			r.Name,
			r.MintA,
			r.MintB,
			r.ReserveA,
			r.ReserveB,
			r.FeeBps,
			r.Curve,
			r.Routable,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append pool %s: %w", r.PoolID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert snapshot %d: %w", snap.Version, err)
	}

	c.logger.WithFields(logrus.Fields{
		"version": snap.Version,
		"rows":    len(rows),
	}).Debug("pool snapshot stored")
	return nil
}

func (c *ClickHouseStore) PoolHistory(ctx context.Context, poolID string, limit int) ([]ReserveRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT snapshot_version, taken_at, source, pool_id, name, mint_a, mint_b,
			reserve_a, reserve_b, fee_bps, curve, routable
		FROM pool_reserves
		WHERE pool_id = ?
		ORDER BY taken_at DESC
		LIMIT ?
	`

	rows, err := c.conn.Query(ctx, query, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool history: %w", err)
	}
	defer rows.Close()

	var out []ReserveRow
	for rows.Next() {
		var r ReserveRow
		if err := rows.Scan(
			&r.SnapshotVersion,
			&r.TakenAt,
			&r.Source,
			&r.PoolID,
			&r.Name,
			&r.MintA,
			&r.MintB,
			&r.ReserveA,
			&r.ReserveB,
			&r.FeeBps,
			&r.Curve,
			&r.Routable,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pool history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}

// RowsFromSnapshot flattens snap into one reserve row per pool
func RowsFromSnapshot(snap *poolset.Snapshot) []ReserveRow {
	if snap == nil {
		return nil
	}

	rows := make([]ReserveRow, 0, len(snap.Pools))
	for _, p := range snap.Pools {
		curve := ""
		if p.Curve != nil {
			curve = p.Curve.Kind().String()
		}
		rows = append(rows, ReserveRow{
			SnapshotVersion: snap.Version,
			TakenAt:         snap.TakenAt.UTC(),
			Source:          snap.Source,
			PoolID:          p.ID.String(),
			Name:            p.Name,
			MintA:           p.MintA.String(),
			MintB:           p.MintB.String(),
			ReserveA:        p.ReserveA,
			ReserveB:        p.ReserveB,
			FeeBps:          p.FeeBps(),
			Curve:           curve,
			Routable:        p.Routable(),
		})
	}
	return rows
}
