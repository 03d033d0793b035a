package feecontext

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/metrics"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/relayprogram"
)

// ManagerConfig holds dependencies for a Manager
type ManagerConfig struct {
	Owner          solana.PublicKey
	FeePayer       solana.PublicKey
	RelayProgramID solana.PublicKey
	Chain          ChainData
	Usage          UsageSource // Optional; nil disables the free tier
	FetchTimeout   time.Duration
	Logger         *logrus.Logger
	Now            func() time.Time
}

// Manager caches the fee context of one owner. Concurrent refreshes share a
// single fetch and the cached snapshot is swapped atomically.
type Manager struct {
	cfg          ManagerConfig
	relayAccount solana.PublicKey

	current    atomic.Pointer[FeeContext]
	generation atomic.Uint64 // Incremented when a fetch starts
	epoch      atomic.Uint64 // Contexts below this generation are stale
	group      singleflight.Group
}

// NewManager creates a fee context manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Chain == nil {
		return nil, errors.New("chain data provider is nil")
	}
	if cfg.Owner.IsZero() {
		return nil, errors.New("owner is zero")
	}
	if cfg.FeePayer.IsZero() {
		return nil, errors.New("fee payer is zero")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	relayAccount, err := relayprogram.RelayAccount(cfg.RelayProgramID, cfg.Owner)
	if err != nil {
		return nil, err
	}

	return &Manager{cfg: cfg, relayAccount: relayAccount}, nil
}

// GetCurrentContext returns the cached context, fetching it on first use or
// after Invalidate.
func (m *Manager) GetCurrentContext(ctx context.Context) (FeeContext, error) {
	if fc := m.current.Load(); fc != nil && fc.Generation >= m.epoch.Load() {
		return *fc, nil
	}
	return m.refresh(ctx)
}

// Update forces a refetch and returns the new context
func (m *Manager) Update(ctx context.Context) (FeeContext, error) {
	return m.refresh(ctx)
}

// Invalidate drops the cached context. Contexts handed out before this call
// fail CheckFresh.
func (m *Manager) Invalidate() {
	m.epoch.Store(m.generation.Load() + 1)
	m.current.Store(nil)
}

// CheckFresh returns a *StaleContextError if fc predates the last Invalidate
func (m *Manager) CheckFresh(fc FeeContext) error {
	epoch := m.epoch.Load()
	if fc.Generation < epoch {
		return &StaleContextError{Generation: fc.Generation, Epoch: epoch}
	}
	return nil
}

// RelayAccount returns the owner's relay account address
func (m *Manager) RelayAccount() solana.PublicKey {
	return m.relayAccount
}

func (m *Manager) refresh(ctx context.Context) (FeeContext, error) {
	// Callers before and after an Invalidate never share a fetch.
	key := strconv.FormatUint(m.epoch.Load(), 10)

	ch := m.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
		defer cancel()

		fc, err := m.fetch(fetchCtx, m.generation.Add(1))
		if err != nil {
			return nil, err
		}
		m.store(fc)
		return fc, nil
	})

	select {
	case <-ctx.Done():
		return FeeContext{}, &RetrievalError{Op: "refresh", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return FeeContext{}, res.Err
		}
		return *res.Val.(*FeeContext), nil
	}
}

// store keeps the newest generation when fetches race
func (m *Manager) store(fc *FeeContext) {
	for {
		cur := m.current.Load()
		if cur != nil && cur.Generation > fc.Generation {
			return
		}
		if m.current.CompareAndSwap(cur, fc) {
			return
		}
	}
}

func (m *Manager) fetch(ctx context.Context, generation uint64) (*FeeContext, error) {
	start := m.cfg.Now()
	fc := &FeeContext{
		Owner:           m.cfg.Owner,
		RelayAccount:    m.relayAccount,
		FeePayerAddress: m.cfg.FeePayer,
		Generation:      generation,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hash, err := m.cfg.Chain.LatestBlockhash(gctx)
		if err != nil {
			return &RetrievalError{Op: "latest blockhash", Err: err}
		}
		fc.RecentBlockhash = hash
		return nil
	})
	g.Go(func() error {
		lamports, err := m.cfg.Chain.LamportsPerSignature(gctx)
		if err != nil {
			return &RetrievalError{Op: "lamports per signature", Err: err}
		}
		fc.LamportsPerSignature = lamports
		return nil
	})
	g.Go(func() error {
		// The relay account carries no data, so its rent-exempt minimum is the zero-length one.
		minimum, err := m.cfg.Chain.MinimumBalanceForRentExemption(gctx, 0)
		if err != nil {
			return &RetrievalError{Op: "minimum relay balance", Err: err}
		}
		fc.MinimumRelayBalance = minimum
		return nil
	})
	g.Go(func() error {
		balance, exists, err := m.cfg.Chain.AccountBalance(gctx, m.relayAccount)
		if err != nil {
			return &RetrievalError{Op: "relay account balance", Err: err}
		}
		fc.RelayAccountBalance = balance
		fc.RelayAccountExists = exists
		return nil
	})
	if m.cfg.Usage != nil {
		g.Go(func() error {
			usage, err := m.cfg.Usage.UsageStatus(gctx, m.cfg.Owner)
			if err != nil {
				return &RetrievalError{Op: "usage status", Err: err}
			}
			fc.Usage = usage
			return nil
		})
	}

	err := g.Wait()
	elapsed := m.cfg.Now().Sub(start)
	metrics.ContextRefreshDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.ContextRefreshes.WithLabelValues("error").Inc()
		m.cfg.Logger.WithError(err).WithField("owner", m.cfg.Owner.String()).Warn("fee context refresh failed")

		var re *RetrievalError
		if !errors.As(err, &re) {
			err = &RetrievalError{Op: "refresh", Err: err}
		}
		return nil, err
	}

	fc.FetchedAt = m.cfg.Now()
	metrics.ContextRefreshes.WithLabelValues("ok").Inc()
	m.cfg.Logger.WithFields(logrus.Fields{
		"owner":                  m.cfg.Owner.String(),
		"generation":             generation,
		"lamports_per_signature": fc.LamportsPerSignature,
		"relay_balance":          fc.RelayAccountBalance,
		"took":                   elapsed,
	}).Debug("fee context refreshed")

	return fc, nil
}

func (m *Manager) String() string {
	return fmt.Sprintf("feecontext.Manager(%s)", m.cfg.Owner)
}
