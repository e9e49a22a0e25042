package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLedger struct {
	open    []Position
	closed  []Closure
	nextErr error
}

func (l *memLedger) OpenPositions(ctx context.Context, symbol string) ([]Position, error) {
	if l.nextErr != nil {
		return nil, l.nextErr
	}
	out := make([]Position, 0, len(l.open))
	for _, p := range l.open {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *memLedger) ClosePosition(ctx context.Context, c Closure) error {
	l.closed = append(l.closed, c)
	kept := l.open[:0]
	for _, p := range l.open {
		if p.ID != c.Position.ID {
			kept = append(kept, p)
		}
	}
	l.open = kept
	return nil
}

type stubExchange struct {
	view ExchangeView
	err  error
}

func (e *stubExchange) NetPosition(ctx context.Context, symbol string) (ExchangeView, error) {
	return e.view, e.err
}

type memNotifier struct {
	alerts int
}

func (n *memNotifier) NotifyMismatch(ctx context.Context, symbol string, localNet, externalNet decimal.Decimal) error {
	n.alerts++
	return nil
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func longPosition(id int64, qty, entry float64, openedAt time.Time) Position {
	return Position{
		ID:         id,
		Symbol:     "SUIUSDC",
		Side:       SideLong,
		Quantity:   dec(qty),
		EntryPrice: dec(entry),
		OpenedAt:   openedAt,
	}
}

func view(net, mark float64) ExchangeView {
	return ExchangeView{NetQuantity: dec(net), MarkPrice: dec(mark)}
}

func TestReconciler_InSync(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	ledger := &memLedger{open: []Position{longPosition(1, 100, 3.50, base)}}
	rec := New(ledger, &stubExchange{view: view(100, 3.60)}, 0.001)

	res, err := rec.Reconcile(context.Background(), "SUIUSDC")
	require.NoError(t, err)
	assert.True(t, res.InSync())
	assert.Empty(t, ledger.closed)
}

func TestReconciler_ExternalFullClose(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	ledger := &memLedger{open: []Position{
		longPosition(1, 100, 3.50, base),
		longPosition(2, 50, 3.80, base.Add(time.Minute)),
	}}
	rec := New(ledger, &stubExchange{view: view(0, 4.00)}, 0.001)

	res, err := rec.Reconcile(context.Background(), "SUIUSDC")
	require.NoError(t, err)
	require.Len(t, res.Closures, 2)

	assert.True(t, res.Closures[0].PnL.Equal(dec(50.0)), "PnL (4.00-3.50)*100, got %s", res.Closures[0].PnL)
	assert.True(t, res.Closures[1].PnL.Equal(dec(10.0)), "PnL (4.00-3.80)*50, got %s", res.Closures[1].PnL)
	assert.Contains(t, res.Closures[0].Reason, OrderIDPrefix)
	assert.Empty(t, ledger.open)
}

func TestReconciler_FIFOPartialClose(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	ledger := &memLedger{open: []Position{
		longPosition(1, 100, 3.50, base),
		longPosition(2, 50, 3.60, base.Add(time.Minute)),
		longPosition(3, 200, 3.70, base.Add(2*time.Minute)),
	}}
	rec := New(ledger, &stubExchange{view: view(220, 3.90)}, 0.001)

	res, err := rec.Reconcile(context.Background(), "SUIUSDC")
	require.NoError(t, err)
	require.Len(t, res.Closures, 2)
	assert.Equal(t, int64(1), res.Closures[0].Position.ID)
	assert.Equal(t, int64(2), res.Closures[1].Position.ID)

	require.Len(t, ledger.open, 1)
	assert.Equal(t, int64(3), ledger.open[0].ID)
}

func TestReconciler_Idempotent(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	ledger := &memLedger{open: []Position{
		longPosition(1, 100, 3.50, base),
		longPosition(2, 50, 3.60, base.Add(time.Minute)),
		longPosition(3, 200, 3.70, base.Add(2*time.Minute)),
	}}
	rec := New(ledger, &stubExchange{view: view(200, 3.90)}, 0.001)

	res, err := rec.Reconcile(context.Background(), "SUIUSDC")
	require.NoError(t, err)
	assert.Len(t, res.Closures, 2)

	res, err = rec.Reconcile(context.Background(), "SUIUSDC")
	require.NoError(t, err)
	assert.True(t, res.InSync())
	assert.Len(t, ledger.closed, 2)
}

func TestReconciler_MismatchNeverAutoCorrects(t *testing.T) {
	base := time.Now().Add(-time.Hour)

	t.Run("Sign Flip", func(t *testing.T) {
		ledger := &memLedger{open: []Position{longPosition(1, 100, 3.50, base)}}
		notifier := &memNotifier{}
		rec := New(ledger, &stubExchange{view: view(-40, 3.60)}, 0.001).WithNotifier(notifier)

		res, err := rec.Reconcile(context.Background(), "SUIUSDC")
		require.NoError(t, err)
		assert.True(t, res.Mismatch)
		assert.Empty(t, ledger.closed)
		assert.Equal(t, 1, notifier.alerts)
	})

	t.Run("External Grew", func(t *testing.T) {
		ledger := &memLedger{open: []Position{longPosition(1, 100, 3.50, base)}}
		rec := New(ledger, &stubExchange{view: view(150, 3.60)}, 0.001)

		res, err := rec.Reconcile(context.Background(), "SUIUSDC")
		require.NoError(t, err)
		assert.True(t, res.Mismatch)
		assert.Empty(t, ledger.closed)
	})

	t.Run("External Opened From Flat", func(t *testing.T) {
		ledger := &memLedger{}
		rec := New(ledger, &stubExchange{view: view(75, 3.60)}, 0.001)

		res, err := rec.Reconcile(context.Background(), "SUIUSDC")
		require.NoError(t, err)
		assert.True(t, res.Mismatch)
		assert.Empty(t, ledger.closed)
	})
}

func TestReconciler_ShortPnL(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	short := Position{
		ID: 1, Symbol: "SUIUSDC", Side: SideShort,
		Quantity: dec(100), EntryPrice: dec(4.00), OpenedAt: base,
	}
	ledger := &memLedger{open: []Position{short}}
	rec := New(ledger, &stubExchange{view: view(0, 3.50)}, 0.001)

	res, err := rec.Reconcile(context.Background(), "SUIUSDC")
	require.NoError(t, err)
	require.Len(t, res.Closures, 1)
	assert.True(t, res.Closures[0].PnL.Equal(dec(50.0)), "short profit (4.00-3.50)*100, got %s", res.Closures[0].PnL)
}

func TestReconciler_ExchangeError(t *testing.T) {
	ledger := &memLedger{open: []Position{longPosition(1, 100, 3.50, time.Now())}}
	rec := New(ledger, &stubExchange{err: assert.AnError}, 0.001)

	_, err := rec.Reconcile(context.Background(), "SUIUSDC")
	assert.Error(t, err)
	assert.Empty(t, ledger.closed)
}
