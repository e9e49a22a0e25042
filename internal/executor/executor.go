package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kenken64/7monthIndicator-sub000/internal/aggregator"
	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/reconcile"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// Quoter supplies the execution price.
type Quoter interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Ledger is the position store the manager writes through.
type Ledger interface {
	InsertPosition(ctx context.Context, p reconcile.Position, cycleID, orderID string) (int64, error)
	OpenPositions(ctx context.Context, symbol string) ([]reconcile.Position, error)
	ClosePosition(ctx context.Context, c reconcile.Closure) error
}

// TextNotifier pushes a short trade note, Telegram or otherwise.
type TextNotifier interface {
	SendText(text string) error
}

// Config sizes ledger entries.
type Config struct {
	Symbol           string
	NotionalUSD      float64
	MaxOpenPositions int
}

func (c Config) withDefaults() Config {
	if c.NotionalUSD <= 0 {
		c.NotionalUSD = 100
	}
	if c.MaxOpenPositions <= 0 {
		c.MaxOpenPositions = 1
	}
	return c
}

// Manager turns accepted decisions into ledger entries and exits. It holds
// no exchange order authority; the ledger is the unit the reconciler keeps
// honest against the exchange.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	quoter   Quoter
	ledger   Ledger
	notifier TextNotifier
	nowFn    func() time.Time
}

// NewManager builds the decision executor for one symbol.
func NewManager(cfg Config, quoter Quoter, ledger Ledger) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		quoter: quoter,
		ledger: ledger,
		nowFn:  time.Now,
	}
}

// WithNotifier attaches an optional trade notifier.
func (m *Manager) WithNotifier(n TextNotifier) *Manager {
	m.notifier = n
	return m
}

// Execute applies one decision to the ledger. BUY opens a long when room
// remains, SELL closes every open row oldest first. Anything else is a
// no-op so a cautious caller may forward unconditionally.
func (m *Manager) Execute(ctx context.Context, cycleID string, d aggregator.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch d.Action {
	case signal.Buy:
		return m.open(ctx, cycleID, d)
	case signal.Sell:
		return m.closeAll(ctx, cycleID, d)
	default:
		return nil
	}
}

func (m *Manager) open(ctx context.Context, cycleID string, d aggregator.Decision) error {
	open, err := m.ledger.OpenPositions(ctx, m.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("open positions for %s: %w", m.cfg.Symbol, err)
	}
	if len(open) >= m.cfg.MaxOpenPositions {
		logger.Debugf("[exec] buy skipped cycle=%s symbol=%s open=%d max=%d",
			cycleID, m.cfg.Symbol, len(open), m.cfg.MaxOpenPositions)
		return nil
	}
	price, err := m.quoter.LastPrice(ctx, m.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("entry price for %s: %w", m.cfg.Symbol, err)
	}
	if price.IsZero() {
		return fmt.Errorf("entry price for %s is zero", m.cfg.Symbol)
	}
	qty := decimal.NewFromFloat(m.cfg.NotionalUSD).Div(price)
	pos := reconcile.Position{
		Symbol:     m.cfg.Symbol,
		Side:       reconcile.SideLong,
		Quantity:   qty,
		EntryPrice: price,
		OpenedAt:   m.nowFn(),
	}
	id, err := m.ledger.InsertPosition(ctx, pos, cycleID, "signal:"+cycleID)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	logger.Infof("[exec] opened long id=%d cycle=%s symbol=%s qty=%s price=%s score=%.2f conf=%.0f",
		id, cycleID, m.cfg.Symbol, qty.StringFixed(6), price.String(), d.Score, d.Confidence)
	m.notify(fmt.Sprintf("OPEN LONG %s\nqty: %s @ %s\nscore: %.2f  confidence: %.0f%%",
		m.cfg.Symbol, qty.StringFixed(6), price.String(), d.Score, d.Confidence))
	return nil
}

func (m *Manager) closeAll(ctx context.Context, cycleID string, d aggregator.Decision) error {
	open, err := m.ledger.OpenPositions(ctx, m.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("open positions for %s: %w", m.cfg.Symbol, err)
	}
	if len(open) == 0 {
		logger.Debugf("[exec] sell skipped cycle=%s symbol=%s nothing open", cycleID, m.cfg.Symbol)
		return nil
	}
	price, err := m.quoter.LastPrice(ctx, m.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("exit price for %s: %w", m.cfg.Symbol, err)
	}
	total := decimal.Zero
	for _, pos := range open {
		pnl := price.Sub(pos.EntryPrice).Mul(pos.Quantity)
		if pos.Side == reconcile.SideShort {
			pnl = pnl.Neg()
		}
		closure := reconcile.Closure{
			Position:  pos,
			ExitPrice: price,
			PnL:       pnl,
			Reason:    "signal:" + cycleID,
		}
		if err := m.ledger.ClosePosition(ctx, closure); err != nil {
			return fmt.Errorf("close position %d: %w", pos.ID, err)
		}
		total = total.Add(pnl)
		logger.Infof("[exec] closed id=%d cycle=%s symbol=%s qty=%s exit=%s pnl=%s",
			pos.ID, cycleID, pos.Symbol, pos.Quantity.StringFixed(6), price.String(), pnl.StringFixed(4))
	}
	m.notify(fmt.Sprintf("CLOSE %s\npositions: %d @ %s\npnl: %s\nscore: %.2f  confidence: %.0f%%",
		m.cfg.Symbol, len(open), price.String(), total.StringFixed(4), d.Score, d.Confidence))
	return nil
}

func (m *Manager) notify(text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.SendText(text); err != nil {
		logger.Warnf("[exec] notify failed: %v", err)
	}
}
