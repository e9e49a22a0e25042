package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/market"
)

// State is the breaker's trading gate.
type State string

const (
	StateSafe       State = "SAFE"
	StateWarning    State = "WARNING"
	StateTriggered  State = "TRIGGERED"
	StateRecovering State = "RECOVERING"
)

var (
	ErrAlreadyTriggered = errors.New("circuit breaker already triggered")
	ErrNotTriggered     = errors.New("circuit breaker not triggered")
)

// Thresholds are percentage drops (positive numbers) and a liquidation
// volume ceiling in USD. A zero threshold disables its rule.
type Thresholds struct {
	BTCDrop1h       float64 `mapstructure:"btc_drop_1h"`
	BTCDrop4h       float64 `mapstructure:"btc_drop_4h"`
	ETHDrop1h       float64 `mapstructure:"eth_drop_1h"`
	ETHDrop4h       float64 `mapstructure:"eth_drop_4h"`
	MarketCapDrop4h float64 `mapstructure:"market_cap_drop_4h"`
	Liquidations1h  float64 `mapstructure:"liquidations_1h"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		BTCDrop1h:       15,
		BTCDrop4h:       20,
		ETHDrop1h:       15,
		ETHDrop4h:       25,
		MarketCapDrop4h: 20,
		Liquidations1h:  500_000_000,
	}
}

// Config tunes trigger and recovery behaviour.
type Config struct {
	Thresholds       Thresholds    `mapstructure:"thresholds"`
	Stabilization    time.Duration `mapstructure:"stabilization"`
	VolatileMove1h   float64       `mapstructure:"volatile_move_1h"`
	StillDroppingMin float64       `mapstructure:"still_dropping_min"`
	WarningRatio     float64       `mapstructure:"warning_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Thresholds:       DefaultThresholds(),
		Stabilization:    30 * time.Minute,
		VolatileMove1h:   5.0,
		StillDroppingMin: -2.0,
		WarningRatio:     0.8,
	}
}

// Event is one immutable transition record.
type Event struct {
	ID               string
	State            State
	Reason           string
	Timestamp        time.Time
	Snapshot         market.Snapshot
	Actions          []string
	RecoveryDuration time.Duration
	CapitalProtected *float64
}

// EventStore persists the append-only transition log. Write failures never
// block a state transition.
type EventStore interface {
	AppendBreakerEvent(ctx context.Context, ev Event) error
	UpdateBreakerRecovery(ctx context.Context, eventID string, duration time.Duration, capitalProtected *float64) error
}

// Status is a locked snapshot of the breaker for gating reads.
type Status struct {
	State         State
	TriggerTime   *time.Time
	TriggerReason string
	TriggerAsset  string
	RecoveryStart *time.Time
}

// Breaker owns the SAFE/WARNING/TRIGGERED/RECOVERING state machine.
type Breaker struct {
	mu  sync.Mutex
	cfg Config

	state          State
	triggerTime    *time.Time
	triggerReason  string
	triggerAsset   string
	recoveryStart  *time.Time
	triggerEventID string

	history *market.History
	store   EventStore
	nowFn   func() time.Time
}

func New(cfg Config, history *market.History, store EventStore) *Breaker {
	if cfg.Stabilization <= 0 {
		cfg.Stabilization = 30 * time.Minute
	}
	if cfg.VolatileMove1h <= 0 {
		cfg.VolatileMove1h = 5.0
	}
	if cfg.StillDroppingMin >= 0 {
		cfg.StillDroppingMin = -2.0
	}
	return &Breaker{
		cfg:     cfg,
		state:   StateSafe,
		history: history,
		store:   store,
		nowFn:   time.Now,
	}
}

// Evaluate checks a snapshot against the crash thresholds. It is stateless
// and has no side effects. Rules fire in a fixed order and the first match
// wins. Absent optional fields skip their rule.
func (b *Breaker) Evaluate(snap market.Snapshot) (bool, string) {
	ok, reason, _ := evaluate(b.cfg.Thresholds, snap)
	return ok, reason
}

func evaluate(t Thresholds, snap market.Snapshot) (bool, string, string) {
	type rule struct {
		asset     string
		label     string
		change    float64
		threshold float64
		present   bool
	}
	rules := []rule{
		{"BTC", "BTC 1h", snap.BTCChange1h, t.BTCDrop1h, true},
		{"BTC", "BTC 4h", snap.BTCChange4h, t.BTCDrop4h, true},
		{"ETH", "ETH 1h", snap.ETHChange1h, t.ETHDrop1h, true},
		{"ETH", "ETH 4h", snap.ETHChange4h, t.ETHDrop4h, true},
	}
	if snap.MarketCapChange4h != nil {
		rules = append(rules, rule{"", "market cap 4h", *snap.MarketCapChange4h, t.MarketCapDrop4h, true})
	}
	for _, r := range rules {
		if r.threshold <= 0 {
			continue
		}
		if drop := -r.change; drop >= r.threshold {
			return true, fmt.Sprintf("%s drop %.2f%% breached threshold %.2f%%", r.label, drop, r.threshold), r.asset
		}
	}
	if snap.Liquidations1h != nil && t.Liquidations1h > 0 && *snap.Liquidations1h >= t.Liquidations1h {
		return true, fmt.Sprintf("1h liquidations $%.0f breached threshold $%.0f", *snap.Liquidations1h, t.Liquidations1h), ""
	}
	return false, "", ""
}

// Trigger halts trading. A second call while TRIGGERED is a logged no-op
// that keeps the first reason.
func (b *Breaker) Trigger(ctx context.Context, reason string, snap market.Snapshot, actions []string) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateTriggered {
		logger.Warnf("breaker: trigger ignored, already triggered: %s", b.triggerReason)
		return Event{}, ErrAlreadyTriggered
	}

	now := b.nowFn()
	b.state = StateTriggered
	b.triggerTime = &now
	b.triggerReason = reason
	_, _, b.triggerAsset = evaluate(b.cfg.Thresholds, snap)
	b.recoveryStart = nil

	ev := Event{
		ID:        uuid.NewString(),
		State:     StateTriggered,
		Reason:    reason,
		Timestamp: now,
		Snapshot:  snap,
		Actions:   actions,
	}
	b.triggerEventID = ev.ID
	b.appendEvent(ctx, ev)
	logger.Errorf("breaker: TRIGGERED: %s", reason)
	return ev, nil
}

// SetWarning moves SAFE to WARNING. Any other state is untouched.
func (b *Breaker) SetWarning(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateSafe {
		return
	}
	b.state = StateWarning
	logger.Warnf("breaker: WARNING: %s", reason)
}

// CheckRecovery reports whether trading may resume. Checks run in a fixed
// order and the first failing one supplies the reason. Passing the
// stabilization window opens a RECOVERING window; a volatile reading inside
// that window falls back to TRIGGERED and restarts it.
func (b *Breaker) CheckRecovery(snap market.Snapshot) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateTriggered && b.state != StateRecovering {
		return false, "not triggered"
	}
	if b.triggerTime == nil {
		return false, "trigger time unknown"
	}

	now := b.nowFn()
	elapsed := now.Sub(*b.triggerTime)
	if elapsed < b.cfg.Stabilization {
		return false, fmt.Sprintf("stabilization period active, %s remaining", (b.cfg.Stabilization - elapsed).Round(time.Second))
	}

	if b.recoveryStart == nil {
		start := now
		b.recoveryStart = &start
		b.state = StateRecovering
		logger.Infof("breaker: entering RECOVERING window")
	}

	if b.history != nil {
		for _, s := range b.history.Since(*b.recoveryStart) {
			move := maxAbs(s.BTCChange1h, s.ETHChange1h)
			if move > b.cfg.VolatileMove1h {
				b.state = StateTriggered
				b.recoveryStart = nil
				return false, fmt.Sprintf("market still volatile, 1h move %.2f%% exceeds %.2f%%", move, b.cfg.VolatileMove1h)
			}
		}
	}

	if change, ok := assetChange1h(b.triggerAsset, snap); ok && change < b.cfg.StillDroppingMin {
		return false, fmt.Sprintf("%s still dropping, 1h change %.2f%%", b.triggerAsset, change)
	}

	return true, "market stabilized"
}

// Resume closes a trigger cycle and returns to SAFE. Only valid from
// TRIGGERED or RECOVERING.
func (b *Breaker) Resume(ctx context.Context, capitalProtected *float64) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateTriggered && b.state != StateRecovering {
		logger.Warnf("breaker: resume ignored in state %s", b.state)
		return Event{}, ErrNotTriggered
	}

	now := b.nowFn()
	var duration time.Duration
	if b.triggerTime != nil {
		duration = now.Sub(*b.triggerTime)
	}
	if b.triggerEventID != "" && b.store != nil {
		if err := b.store.UpdateBreakerRecovery(ctx, b.triggerEventID, duration, capitalProtected); err != nil {
			logger.Errorf("breaker: update recovery record: %v", err)
		}
	}

	ev := Event{
		ID:               uuid.NewString(),
		State:            StateSafe,
		Reason:           fmt.Sprintf("resumed after %s", duration.Round(time.Second)),
		Timestamp:        now,
		RecoveryDuration: duration,
		CapitalProtected: capitalProtected,
	}
	b.appendEvent(ctx, ev)

	b.state = StateSafe
	b.triggerTime = nil
	b.triggerReason = ""
	b.triggerAsset = ""
	b.recoveryStart = nil
	b.triggerEventID = ""
	logger.Infof("breaker: resumed, trading re-enabled")
	return ev, nil
}

// Status returns a consistent snapshot of the breaker.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		State:         b.state,
		TriggerReason: b.triggerReason,
		TriggerAsset:  b.triggerAsset,
	}
	if b.triggerTime != nil {
		t := *b.triggerTime
		st.TriggerTime = &t
	}
	if b.recoveryStart != nil {
		t := *b.recoveryStart
		st.RecoveryStart = &t
	}
	return st
}

// State returns the current gate state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Tripped reports whether trading is halted.
func (b *Breaker) Tripped() bool {
	s := b.State()
	return s == StateTriggered || s == StateRecovering
}

func (b *Breaker) appendEvent(ctx context.Context, ev Event) {
	if b.store == nil {
		return
	}
	if err := b.store.AppendBreakerEvent(ctx, ev); err != nil {
		logger.Errorf("breaker: persist event %s: %v", ev.ID, err)
	}
}

func assetChange1h(asset string, snap market.Snapshot) (float64, bool) {
	switch asset {
	case "BTC":
		return snap.BTCChange1h, true
	case "ETH":
		return snap.ETHChange1h, true
	default:
		return 0, false
	}
}

func maxAbs(values ...float64) float64 {
	var m float64
	for _, v := range values {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
