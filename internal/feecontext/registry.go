package feecontext

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRegistryIdleTTL     = 30 * time.Minute
	DefaultRegistryMaxManagers = 10_000
)

// RegistryConfig holds the dependencies shared by every owner's Manager
type RegistryConfig struct {
	FeePayer       solana.PublicKey
	RelayProgramID solana.PublicKey
	Chain          ChainData
	Usage          UsageSource
	FetchTimeout   time.Duration
	IdleTTL        time.Duration // Managers unused for this long are dropped
	MaxManagers    int           // Upper bound on owners kept at once
	Now            func() time.Time
	Logger         *logrus.Logger
}

type registryEntry struct {
	m        *Manager
	lastUsed time.Time
}

// Registry hands out one Manager per owner. Idle owners are evicted, and the
// least recently used one makes room once MaxManagers is reached.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	managers map[solana.PublicKey]*registryEntry
}

// NewRegistry creates a registry
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRegistryIdleTTL
	}
	if cfg.MaxManagers <= 0 {
		cfg.MaxManagers = DefaultRegistryMaxManagers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:      cfg,
		managers: make(map[solana.PublicKey]*registryEntry),
	}
}

// For returns the owner's Manager, creating it on first use
func (r *Registry) For(owner solana.PublicKey) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Now()
	if e, ok := r.managers[owner]; ok {
		e.lastUsed = now
		return e.m, nil
	}

	m, err := NewManager(ManagerConfig{
		Owner:          owner,
		FeePayer:       r.cfg.FeePayer,
		RelayProgramID: r.cfg.RelayProgramID,
		Chain:          r.cfg.Chain,
		Usage:          r.cfg.Usage,
		FetchTimeout:   r.cfg.FetchTimeout,
		Logger:         r.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	r.evictLocked(now)
	r.managers[owner] = &registryEntry{m: m, lastUsed: now}
	return m, nil
}

// evictLocked drops idle managers, then the least recently used ones until
// there is room for one more
func (r *Registry) evictLocked(now time.Time) {
	for owner, e := range r.managers {
		if now.Sub(e.lastUsed) >= r.cfg.IdleTTL {
			delete(r.managers, owner)
		}
	}
	for len(r.managers) >= r.cfg.MaxManagers {
		var (
			oldest solana.PublicKey
			at     time.Time
			found  bool
		)
		for owner, e := range r.managers {
			if !found || e.lastUsed.Before(at) {
				oldest, at, found = owner, e.lastUsed, true
			}
		}
		delete(r.managers, oldest)
	}
}

// InvalidateAll drops every cached context
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.managers {
		e.m.Invalidate()
	}
}

// Len returns the number of owners with a manager
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// CheckFresh checks fc against the invalidation boundary of its owner's
// Manager. An evicted owner has no boundary left to check against.
func (r *Registry) CheckFresh(fc FeeContext) error {
	r.mu.Lock()
	e, ok := r.managers[fc.Owner]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.m.CheckFresh(fc)
}
