package breaker

import (
	"context"
	"time"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/market"
)

// Default actions recorded when the monitor trips the breaker.
var triggerActions = []string{"halt_trading", "cancel_orders", "notify"}

// ContextStore persists market snapshots for later analysis.
type ContextStore interface {
	SaveMarketContext(ctx context.Context, snap market.Snapshot) error
}

// Notifier receives breaker transitions. Delivery failures are logged and
// never affect the state machine.
type Notifier interface {
	NotifyBreaker(ctx context.Context, ev Event) error
}

// Monitor drives the breaker from periodic market snapshots: it evaluates
// thresholds, trips and warns, and resumes once recovery checks pass.
type Monitor struct {
	source    market.SnapshotSource
	breaker   *Breaker
	history   *market.History
	fearGreed *market.FearGreedService
	contexts  ContextStore
	notifier  Notifier
	timeout   time.Duration
}

func NewMonitor(source market.SnapshotSource, b *Breaker, history *market.History) *Monitor {
	return &Monitor{
		source:  source,
		breaker: b,
		history: history,
		timeout: 15 * time.Second,
	}
}

func (m *Monitor) WithFearGreed(svc *market.FearGreedService) *Monitor {
	m.fearGreed = svc
	return m
}

func (m *Monitor) WithContextStore(store ContextStore) *Monitor {
	m.contexts = store
	return m
}

func (m *Monitor) WithNotifier(n Notifier) *Monitor {
	m.notifier = n
	return m
}

// RunOnce performs one monitoring pass. A failed snapshot fetch skips the
// pass without touching breaker state.
func (m *Monitor) RunOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	snap, err := m.source.FetchSnapshot(fetchCtx)
	if err != nil {
		logger.Warnf("breaker monitor: snapshot fetch failed: %v", err)
		return
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	if m.fearGreed != nil {
		m.fearGreed.RefreshIfStale(fetchCtx)
		if snap.FearGreedIndex == nil {
			if data, ok := m.fearGreed.Get(); ok {
				v := data.Value
				snap.FearGreedIndex = &v
			}
		}
	}

	m.history.Append(snap)
	if m.contexts != nil {
		if err := m.contexts.SaveMarketContext(ctx, snap); err != nil {
			logger.Errorf("breaker monitor: save market context: %v", err)
		}
	}

	if m.breaker.Tripped() {
		if ok, reason := m.breaker.CheckRecovery(snap); ok {
			ev, err := m.breaker.Resume(ctx, nil)
			if err == nil {
				m.notify(ctx, ev)
			}
		} else {
			logger.Debugf("breaker monitor: recovery pending: %s", reason)
		}
		return
	}

	if trig, reason := m.breaker.Evaluate(snap); trig {
		ev, err := m.breaker.Trigger(ctx, reason, snap, triggerActions)
		if err == nil {
			m.notify(ctx, ev)
		}
		return
	}

	if warn, reason := m.warningCheck(snap); warn {
		m.breaker.SetWarning(reason)
	}
}

// warningCheck re-runs threshold evaluation with every threshold scaled
// down by the configured warning ratio.
func (m *Monitor) warningCheck(snap market.Snapshot) (bool, string) {
	ratio := m.breaker.cfg.WarningRatio
	if ratio <= 0 || ratio >= 1 {
		return false, ""
	}
	t := m.breaker.cfg.Thresholds
	scaled := Thresholds{
		BTCDrop1h:       t.BTCDrop1h * ratio,
		BTCDrop4h:       t.BTCDrop4h * ratio,
		ETHDrop1h:       t.ETHDrop1h * ratio,
		ETHDrop4h:       t.ETHDrop4h * ratio,
		MarketCapDrop4h: t.MarketCapDrop4h * ratio,
		Liquidations1h:  t.Liquidations1h * ratio,
	}
	ok, reason, _ := evaluate(scaled, snap)
	return ok, reason
}

func (m *Monitor) notify(ctx context.Context, ev Event) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyBreaker(ctx, ev); err != nil {
		logger.Errorf("breaker monitor: notify: %v", err)
	}
}
