package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// ErrStaleOracle indicates the freshest available feed reading is older than
// the configured heartbeat.
var ErrStaleOracle = errors.New("pricing: oracle reading stale")

// Round is one price feed observation: the native coin's USD price scaled by
// 10^Decimals, and the time the upstream feed last updated.
type Round struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the round to prevent accidental mutation.
func (r Round) Clone() Round {
	clone := Round{Decimals: r.Decimals, UpdatedAt: r.UpdatedAt}
	if r.Price != nil {
		clone.Price = new(big.Int).Set(r.Price)
	}
	return clone
}

// PriceFeed resolves the latest USD price observation for the native coin.
type PriceFeed interface {
	LatestRound() (Round, error)
}

// Adapter wraps a price feed with heartbeat staleness enforcement and
// USD-cent to wei conversion. It implements the catalog engine's PriceSource.
type Adapter struct {
	mu        sync.RWMutex
	feed      PriceFeed
	heartbeat time.Duration
	nowFn     func() time.Time
}

// NewAdapter constructs an adapter over the given feed. A non-positive
// heartbeat disables the staleness check.
func NewAdapter(feed PriceFeed, heartbeat time.Duration) *Adapter {
	return &Adapter{feed: feed, heartbeat: heartbeat, nowFn: time.Now}
}

// SetHeartbeat updates the maximum tolerated feed age.
func (a *Adapter) SetHeartbeat(heartbeat time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.heartbeat = heartbeat
	a.mu.Unlock()
}

// Heartbeat returns the configured maximum feed age.
func (a *Adapter) Heartbeat() time.Duration {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.heartbeat
}

// SetNowFunc overrides the wall clock. Primarily intended for tests.
func (a *Adapter) SetNowFunc(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// LatestRound fetches the freshest feed observation, enforcing the heartbeat.
func (a *Adapter) LatestRound() (Round, error) {
	if a == nil || a.feed == nil {
		return Round{}, fmt.Errorf("pricing: adapter not configured")
	}
	a.mu.RLock()
	heartbeat := a.heartbeat
	now := a.nowFn
	a.mu.RUnlock()

	round, err := a.feed.LatestRound()
	if err != nil {
		return Round{}, err
	}
	if round.Price == nil || round.Price.Sign() <= 0 {
		return Round{}, fmt.Errorf("pricing: feed returned invalid price")
	}
	if heartbeat > 0 {
		age := now().Sub(round.UpdatedAt)
		if age > heartbeat {
			return Round{}, fmt.Errorf("%w: age %s exceeds heartbeat %s", ErrStaleOracle, age, heartbeat)
		}
	}
	return round.Clone(), nil
}

// NativeAmount converts a USD-cent amount into native wei using the freshest
// feed observation.
func (a *Adapter) NativeAmount(cents *big.Int) (*big.Int, error) {
	round, err := a.LatestRound()
	if err != nil {
		return nil, err
	}
	return ConvertCents(cents, round.Price, round.Decimals)
}

// ConvertCents converts a USD-cent amount into native wei given a feed price
// scaled by 10^decimals:
//
//	wei = cents * 10^decimals * 10^18 / (price * 100)
//
// Integer division truncates toward zero, in the buyer's favour by at most
// one wei.
func ConvertCents(cents, price *big.Int, decimals uint8) (*big.Int, error) {
	if cents == nil || cents.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: cent amount must be positive")
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: price must be positive")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	numerator := new(big.Int).Mul(cents, scale)
	numerator.Mul(numerator, big.NewInt(1e18))
	denominator := new(big.Int).Mul(price, big.NewInt(100))
	return numerator.Div(numerator, denominator), nil
}

// ManualFeed is an in-memory feed used by tests and for manual overrides
// during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	round Round
	set   bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set records the supplied observation.
func (m *ManualFeed) Set(price *big.Int, decimals uint8, updatedAt time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.round = Round{Decimals: decimals, UpdatedAt: updatedAt}
	if price != nil {
		m.round.Price = new(big.Int).Set(price)
	}
	m.set = true
	m.mu.Unlock()
}

// LatestRound returns the stored observation.
func (m *ManualFeed) LatestRound() (Round, error) {
	if m == nil {
		return Round{}, fmt.Errorf("pricing: manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Round{}, fmt.Errorf("pricing: no observation recorded")
	}
	return m.round.Clone(), nil
}
