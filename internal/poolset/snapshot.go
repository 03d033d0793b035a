package poolset

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/metrics"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

// ErrNoSnapshot is returned before the first snapshot is available
var ErrNoSnapshot = errors.New("no pool snapshot")

// Snapshot is an immutable pool set. A refresh replaces it as a whole.
type Snapshot struct {
	Version uint64      `json:"version"`
	Source  string      `json:"source"`
	TakenAt time.Time   `json:"taken_at"`
	Pools   []pool.Pool `json:"pools"`
}

// Routable counts the pools that may take part in a route
func (s *Snapshot) Routable() int {
	n := 0
	for i := range s.Pools {
		if s.Pools[i].Routable() {
			n++
		}
	}
	return n
}

// Arena holds the current snapshot for concurrent readers
type Arena struct {
	current atomic.Pointer[Snapshot]
}

// Current returns the latest snapshot
func (a *Arena) Current() (*Snapshot, error) {
	snap := a.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Store installs snap unless a newer version is already present. It reports
// whether snap was installed.
func (a *Arena) Store(snap *Snapshot) bool {
	for {
		cur := a.current.Load()
		if cur != nil && cur.Version >= snap.Version {
			return false
		}
		if a.current.CompareAndSwap(cur, snap) {
			metrics.PoolCount.Set(float64(len(snap.Pools)))
			metrics.RoutablePoolCount.Set(float64(snap.Routable()))
			return true
		}
	}
}

// Loader turns a Source into versioned snapshots
type Loader struct {
	source Source
	arena  *Arena
	logger *logrus.Logger
	now    func() time.Time
}

// NewLoader creates a loader that installs snapshots into arena
func NewLoader(source Source, arena *Arena, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{source: source, arena: arena, logger: logger, now: time.Now}
}

// Refresh loads a new snapshot and installs it
func (l *Loader) Refresh(ctx context.Context) (*Snapshot, error) {
	start := l.now()
	pools, err := l.source.Load(ctx)
	if err != nil {
		metrics.PoolSnapshots.WithLabelValues(l.source.Name() + "_error").Inc()
		return nil, err
	}

	// Versions are nanosecond timestamps so snapshots from different
	// processes order by time.
	taken := l.now().UTC()
	version := uint64(taken.UnixNano())
	if cur, err := l.arena.Current(); err == nil && version <= cur.Version {
		version = cur.Version + 1
	}
	snap := &Snapshot{
		Version: version,
		Source:  l.source.Name(),
		TakenAt: taken,
		Pools:   pools,
	}
	l.arena.Store(snap)
	metrics.PoolSnapshots.WithLabelValues(l.source.Name()).Inc()

	l.logger.WithFields(logrus.Fields{
		"source":   snap.Source,
		"pools":    len(pools),
		"routable": snap.Routable(),
		"took":     l.now().Sub(start),
	}).Info("pool snapshot refreshed")
	return snap, nil
}
