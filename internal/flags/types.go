package flags

import (
	"errors"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/pool"
)

var ErrNotFound = errors.New("flag not found")

// Switch keys understood by the relayer
const (
	RelayPaused        = "relay.paused"
	poolDisabledPrefix = "pool.disabled."
)

type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PoolDisabled returns the key of the switch that takes a pool out of routing
func PoolDisabled(id solana.PublicKey) string {
	return poolDisabledPrefix + id.String()
}

// Switches is the operator state applied to relay requests
type Switches struct {
	RelayPaused   bool
	DisabledPools map[solana.PublicKey]bool
}

// SwitchesFrom reads the relay switches out of a flag list. Unknown keys and
// malformed pool ids are ignored.
func SwitchesFrom(items []*Flag) Switches {
	var sw Switches
	for _, f := range items {
		if f == nil || !f.Value {
			continue
		}
		if f.Key == RelayPaused {
			sw.RelayPaused = true
			continue
		}
		rest, ok := strings.CutPrefix(f.Key, poolDisabledPrefix)
		if !ok {
			continue
		}
		id, err := solana.PublicKeyFromBase58(rest)
		if err != nil {
			continue
		}
		if sw.DisabledPools == nil {
			sw.DisabledPools = make(map[solana.PublicKey]bool)
		}
		sw.DisabledPools[id] = true
	}
	return sw
}

// Filter drops disabled pools. pools is returned as is when nothing is
// disabled.
func (s Switches) Filter(pools []pool.Pool) []pool.Pool {
	if len(s.DisabledPools) == 0 {
		return pools
	}
	out := make([]pool.Pool, 0, len(pools))
	for _, p := range pools {
		if !s.DisabledPools[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
