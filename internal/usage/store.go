package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/aman-zulfiqar/solana-fee-relayer/internal/constants"
	"github.com/aman-zulfiqar/solana-fee-relayer/internal/feecontext"
)

const (
	countField  = "count"
	amountField = "amount"
)

var (
	// ErrInvalidOwner is returned for a zero owner key
	ErrInvalidOwner = errors.New("invalid owner")
	// ErrAllowanceExhausted is returned when a reservation does not fit the free tier
	ErrAllowanceExhausted = errors.New("free-tier allowance exhausted")
)

// Limits are the free-tier allowances per owner and period
type Limits struct {
	MaxUsage  uint64        // Free relays per period
	MaxAmount uint64        // Lamports subsidized per period
	Period    time.Duration // Length of a usage period
}

// Store keeps free-tier usage counters in Redis. It serves as the
// feecontext.UsageSource of the relayer.
type Store struct {
	client redis.Cmdable
	limits Limits
	now    func() time.Time
}

var _ feecontext.UsageSource = (*Store)(nil)

// NewStore creates a usage store
func NewStore(client redis.Cmdable, limits Limits) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limits.Period <= 0 {
		limits.Period = 24 * time.Hour
	}
	if limits.Period < time.Second {
		return nil, fmt.Errorf("usage period %s is shorter than a second", limits.Period)
	}
	return &Store{client: client, limits: limits, now: time.Now}, nil
}

// UsageStatus returns the owner's counters for the current period
func (s *Store) UsageStatus(ctx context.Context, owner solana.PublicKey) (feecontext.UsageStatus, error) {
	if owner.IsZero() {
		return feecontext.UsageStatus{}, ErrInvalidOwner
	}
	vals, err := s.client.HMGet(ctx, s.key(owner), countField, amountField).Result()
	if err != nil {
		return feecontext.UsageStatus{}, fmt.Errorf("get usage: %w", err)
	}

	count, err := parseCounter(vals[0])
	if err != nil {
		return feecontext.UsageStatus{}, err
	}
	amount, err := parseCounter(vals[1])
	if err != nil {
		return feecontext.UsageStatus{}, err
	}
	return s.status(count, amount), nil
}

// reserveScript takes one free relay worth ARGV[3] lamports from the
// allowance if it still fits, in a single step.
// Returns {reserved, count, amount}.
var reserveScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local amount = tonumber(redis.call('HGET', KEYS[1], 'amount') or '0')
local lamports = tonumber(ARGV[3])
if count >= tonumber(ARGV[1]) or amount + lamports > tonumber(ARGV[2]) then
	return {0, count, amount}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
amount = redis.call('HINCRBY', KEYS[1], 'amount', lamports)
redis.call('EXPIREAT', KEYS[1], ARGV[4])
return {1, count, amount}
`)

// Reserve takes one subsidized relay worth lamports from the owner's
// allowance. The check and the increment run atomically in Redis, so
// concurrent callers never overspend. It returns ErrAllowanceExhausted,
// along with the current counters, when the relay does not fit.
func (s *Store) Reserve(ctx context.Context, owner solana.PublicKey, lamports uint64) (feecontext.UsageStatus, error) {
	if owner.IsZero() {
		return feecontext.UsageStatus{}, ErrInvalidOwner
	}

	res, err := reserveScript.Run(ctx, s.client, []string{s.key(owner)},
		strconv.FormatUint(s.limits.MaxUsage, 10),
		strconv.FormatUint(s.limits.MaxAmount, 10),
		strconv.FormatUint(lamports, 10),
		s.periodEnd().Unix(),
	).Int64Slice()
	if err != nil {
		return feecontext.UsageStatus{}, fmt.Errorf("reserve usage: %w", err)
	}
	if len(res) != 3 {
		return feecontext.UsageStatus{}, fmt.Errorf("reserve usage: unexpected reply %v", res)
	}

	status := s.status(uint64(res[1]), uint64(res[2]))
	if res[0] != 1 {
		return status, ErrAllowanceExhausted
	}
	return status, nil
}

// Reset clears the owner's counters for the current period
func (s *Store) Reset(ctx context.Context, owner solana.PublicKey) error {
	if err := s.client.Del(ctx, s.key(owner)).Err(); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

// Limits returns the configured allowances
func (s *Store) Limits() Limits {
	return s.limits
}

func (s *Store) status(count, amount uint64) feecontext.UsageStatus {
	return feecontext.UsageStatus{
		MaxUsage:     s.limits.MaxUsage,
		CurrentUsage: count,
		MaxAmount:    s.limits.MaxAmount,
		AmountUsed:   amount,
	}
}

func (s *Store) period() int64 {
	return s.now().Unix() / int64(s.limits.Period/time.Second)
}

func (s *Store) periodEnd() time.Time {
	seconds := int64(s.limits.Period / time.Second)
	return time.Unix((s.period()+1)*seconds, 0)
}

func (s *Store) key(owner solana.PublicKey) string {
	return constants.RedisKeyUsagePrefix + owner.String() + ":" + strconv.FormatInt(s.period(), 10)
}

func parseCounter(v interface{}) (uint64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid usage counter %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected usage counter type %T", v)
	}
}
