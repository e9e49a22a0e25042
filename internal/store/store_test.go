package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenken64/7monthIndicator-sub000/internal/aggregator"
	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
	"github.com/kenken64/7monthIndicator-sub000/internal/market"
	"github.com/kenken64/7monthIndicator-sub000/internal/reconcile"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_DecisionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	in := aggregator.Decision{
		Action:     signal.Buy,
		Score:      7.25,
		Confidence: 68.5,
		Breakdown: map[string]aggregator.SourceBreakdown{
			signal.SourceTechnical: {Action: signal.Buy, Score: 8.5, Confidence: 80, Weight: 0.25},
			signal.SourceNews:      {Action: signal.Hold, Score: 5, Confidence: 20, Weight: 0.10, Stale: true},
			signal.SourceAgents:    {Action: signal.Hold, Weight: 0.15, Missing: true},
		},
		Timestamp: now,
	}
	require.NoError(t, s.SaveDecision(ctx, "cycle-1", in))

	rec, err := s.LatestDecision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", rec.CycleID)
	assert.Equal(t, in.Action, rec.Decision.Action)
	assert.Equal(t, in.Score, rec.Decision.Score)
	assert.Equal(t, in.Confidence, rec.Decision.Confidence)
	assert.Equal(t, in.Breakdown, rec.Decision.Breakdown)
	assert.True(t, in.Timestamp.Equal(rec.Decision.Timestamp))
}

func TestStore_LatestDecisionEmpty(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LatestDecision(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PositionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	ids := make([]int64, 0, 3)
	for i, qty := range []float64{100, 50, 200} {
		id, err := s.InsertPosition(ctx, reconcile.Position{
			Symbol:     "SUIUSDC",
			Side:       reconcile.SideLong,
			Quantity:   decimal.NewFromFloat(qty),
			EntryPrice: decimal.NewFromFloat(3.5),
			OpenedAt:   base.Add(time.Duration(i) * time.Minute),
		}, "cycle-1", "order-1")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	open, err := s.OpenPositions(ctx, "SUIUSDC")
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, ids[0], open[0].ID, "oldest first")
	assert.True(t, open[0].Quantity.Equal(decimal.NewFromFloat(100)))

	closure := reconcile.Closure{
		Position:  open[0],
		ExitPrice: decimal.NewFromFloat(4.0),
		PnL:       decimal.NewFromFloat(50),
		Reason:    reconcile.OrderIDPrefix + ":external-full-close",
	}
	require.NoError(t, s.ClosePosition(ctx, closure))

	open, err = s.OpenPositions(ctx, "SUIUSDC")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	err = s.ClosePosition(ctx, closure)
	assert.ErrorIs(t, err, ErrNotFound, "double close is rejected")
}

func TestStore_BreakerEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	ev := breaker.Event{
		ID:        "ev-1",
		State:     breaker.StateTriggered,
		Reason:    "BTC 1h drop 16.00% breached threshold 15.00%",
		Timestamp: now,
		Snapshot:  market.Snapshot{Timestamp: now, BTCPrice: 50000, BTCChange1h: -16},
		Actions:   []string{"halt_trading", "cancel_orders"},
	}
	require.NoError(t, s.AppendBreakerEvent(ctx, ev))
	require.NoError(t, s.UpdateBreakerRecovery(ctx, "ev-1", 45*time.Minute, nil))
	require.NoError(t, s.AppendBreakerEvent(ctx, breaker.Event{
		ID:        "ev-2",
		State:     breaker.StateSafe,
		Reason:    "resumed after 45m0s",
		Timestamp: now.Add(45 * time.Minute),
	}))

	events, err := s.RecentBreakerEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, breaker.StateSafe, events[0].State, "newest first")
	assert.Equal(t, ev.Reason, events[1].Reason)
	assert.Equal(t, ev.Actions, events[1].Actions)
	assert.Equal(t, 45*time.Minute, events[1].RecoveryDuration)
	assert.InDelta(t, -16, events[1].Snapshot.BTCChange1h, 1e-9)

	stats, err := s.BreakerStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Triggers)
	assert.Equal(t, 1, stats.Resumes)
	assert.Equal(t, 45*time.Minute, stats.AvgRecovery)
}

func TestStore_LoadSignalCycles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-2 * time.Hour).Truncate(time.Second).UTC()

	prices := []float64{2.50, 2.55, 2.60}
	for i, p := range prices {
		ts := base.Add(time.Duration(i)*10*time.Minute + time.Minute)
		cycleID := []string{"c1", "c2", "c3"}[i]
		require.NoError(t, s.SaveSignal(ctx, cycleID, signal.SourceTechnical, signal.Signal{
			Action:     signal.Buy,
			Confidence: 75,
			Metadata:   map[string]float64{"rsi": 28},
			Timestamp:  ts,
		}, p))
		// A row without a captured price must not erase the cycle price.
		require.NoError(t, s.SaveSignal(ctx, cycleID, signal.SourceNews, signal.Signal{
			Action:    signal.Hold,
			Metadata:  map[string]float64{"sentiment": 0.2},
			Timestamp: ts,
		}, 0))
	}

	cycles, err := s.LoadSignalCycles(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, cycles, 3)
	assert.Equal(t, "c1", cycles[0].CycleID)
	assert.Equal(t, 2.50, cycles[0].Price)
	assert.Equal(t, 2.60, cycles[2].Price)
	require.Len(t, cycles[0].Signals, 2)
	assert.Equal(t, 28.0, cycles[0].Signals[signal.SourceTechnical].Metadata["rsi"])
	assert.True(t, cycles[0].Timestamp.Before(cycles[1].Timestamp))
}
