package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
)

// OrderIDPrefix tags exits produced by reconciliation so historical
// analysis can separate them from signal and stop-loss exits.
const OrderIDPrefix = "reconciliation"

// ErrPositionMismatch marks ledger drift that closure logic cannot explain.
// It is surfaced, never auto-corrected.
var ErrPositionMismatch = errors.New("unexplained position mismatch")

const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Position is one OPEN row of the local ledger, oldest rows first.
type Position struct {
	ID         int64
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	OpenedAt   time.Time
}

// Signed returns the quantity with LONG positive and SHORT negative.
func (p Position) Signed() decimal.Decimal {
	if p.Side == SideShort {
		return p.Quantity.Neg()
	}
	return p.Quantity
}

// Closure is one corrective exit applied to the ledger.
type Closure struct {
	Position  Position
	ExitPrice decimal.Decimal
	PnL       decimal.Decimal
	Reason    string
}

// Ledger is the mutable side of the local position store.
type Ledger interface {
	OpenPositions(ctx context.Context, symbol string) ([]Position, error)
	ClosePosition(ctx context.Context, c Closure) error
}

// ExchangeView is the external source of truth for a symbol.
type ExchangeView struct {
	NetQuantity decimal.Decimal
	EntryPrice  decimal.Decimal
	MarkPrice   decimal.Decimal
}

// PositionSource queries the exchange for the live net position.
type PositionSource interface {
	NetPosition(ctx context.Context, symbol string) (ExchangeView, error)
}

// MismatchNotifier receives unexplained drift alerts.
type MismatchNotifier interface {
	NotifyMismatch(ctx context.Context, symbol string, localNet, externalNet decimal.Decimal) error
}

// Result summarizes one reconciliation pass.
type Result struct {
	Symbol      string
	LocalNet    decimal.Decimal
	ExternalNet decimal.Decimal
	Closures    []Closure
	Mismatch    bool
}

// InSync reports whether the pass found nothing to correct.
func (r Result) InSync() bool { return len(r.Closures) == 0 && !r.Mismatch }

// Reconciler corrects drift between the ledger and the exchange. Runs for
// the same symbol are serialized; running it twice with no intervening
// external activity mutates nothing the second time.
type Reconciler struct {
	ledger   Ledger
	exchange PositionSource
	notifier MismatchNotifier
	epsilon  decimal.Decimal

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(ledger Ledger, exchange PositionSource, epsilon float64) *Reconciler {
	if epsilon <= 0 {
		epsilon = 0.001
	}
	return &Reconciler{
		ledger:   ledger,
		exchange: exchange,
		epsilon:  decimal.NewFromFloat(epsilon),
		locks:    map[string]*sync.Mutex{},
	}
}

func (r *Reconciler) WithNotifier(n MismatchNotifier) *Reconciler {
	r.notifier = n
	return r
}

func (r *Reconciler) symbolLock(symbol string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		r.locks[symbol] = l
	}
	return l
}

// Reconcile runs one pass for a symbol.
func (r *Reconciler) Reconcile(ctx context.Context, symbol string) (Result, error) {
	lock := r.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	locals, err := r.ledger.OpenPositions(ctx, symbol)
	if err != nil {
		return Result{}, fmt.Errorf("load open positions: %w", err)
	}
	ext, err := r.exchange.NetPosition(ctx, symbol)
	if err != nil {
		return Result{}, fmt.Errorf("fetch exchange position: %w", err)
	}

	localNet := decimal.Zero
	for _, p := range locals {
		localNet = localNet.Add(p.Signed())
	}
	res := Result{Symbol: symbol, LocalNet: localNet, ExternalNet: ext.NetQuantity}

	switch {
	case ext.NetQuantity.Abs().LessThan(r.epsilon):
		if localNet.IsZero() || len(locals) == 0 {
			return res, nil
		}
		return r.closeAll(ctx, res, locals, ext)

	case ext.NetQuantity.Sub(localNet).Abs().LessThanOrEqual(r.epsilon):
		return res, nil

	case sameSign(ext.NetQuantity, localNet) && ext.NetQuantity.Abs().LessThan(localNet.Abs()):
		return r.closeFIFO(ctx, res, locals, ext)

	default:
		res.Mismatch = true
		logger.Warnf("reconcile %s: unexplained drift, local %s vs external %s: %v",
			symbol, localNet, ext.NetQuantity, ErrPositionMismatch)
		if r.notifier != nil {
			if nerr := r.notifier.NotifyMismatch(ctx, symbol, localNet, ext.NetQuantity); nerr != nil {
				logger.Errorf("reconcile %s: mismatch alert: %v", symbol, nerr)
			}
		}
		return res, nil
	}
}

// closeAll handles a position that was fully closed externally: every local
// OPEN row is closed at the mark price with its own realized PnL.
func (r *Reconciler) closeAll(ctx context.Context, res Result, locals []Position, ext ExchangeView) (Result, error) {
	for _, p := range locals {
		c := Closure{
			Position:  p,
			ExitPrice: ext.MarkPrice,
			PnL:       realizedPnL(p, ext.MarkPrice),
			Reason:    OrderIDPrefix + ":external-full-close",
		}
		if err := r.ledger.ClosePosition(ctx, c); err != nil {
			return res, fmt.Errorf("close position %d: %w", p.ID, err)
		}
		res.Closures = append(res.Closures, c)
	}
	logger.Infof("reconcile %s: closed %d position(s) after external full close", res.Symbol, len(res.Closures))
	return res, nil
}

// closeFIFO distributes a partial external closure across local positions,
// oldest first. Whole positions only: a row larger than the remaining
// amount is still closed in full rather than split.
func (r *Reconciler) closeFIFO(ctx context.Context, res Result, locals []Position, ext ExchangeView) (Result, error) {
	remaining := res.LocalNet.Abs().Sub(ext.NetQuantity.Abs())
	for _, p := range locals {
		if remaining.LessThanOrEqual(r.epsilon) {
			break
		}
		c := Closure{
			Position:  p,
			ExitPrice: ext.MarkPrice,
			PnL:       realizedPnL(p, ext.MarkPrice),
			Reason:    OrderIDPrefix + ":external-partial-close",
		}
		if err := r.ledger.ClosePosition(ctx, c); err != nil {
			return res, fmt.Errorf("close position %d: %w", p.ID, err)
		}
		res.Closures = append(res.Closures, c)
		remaining = remaining.Sub(p.Quantity)
	}
	logger.Infof("reconcile %s: FIFO closed %d position(s) against external reduction", res.Symbol, len(res.Closures))
	return res, nil
}

func realizedPnL(p Position, mark decimal.Decimal) decimal.Decimal {
	diff := mark.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign() && a.Sign() != 0
}
