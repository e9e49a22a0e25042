package backtest

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// singleSourceConfig scores only the technical source so step actions can
// be driven deterministically.
func singleSourceConfig() Config {
	cfg := DefaultReplayConfig()
	cfg.Aggregator.Weights = map[string]float64{signal.SourceTechnical: 1.0}
	cfg.FeeRate = 0
	cfg.StopLossPct = 0
	cfg.TakeProfitPct = 0
	return cfg
}

func stepFor(ts time.Time, price float64, action signal.Action) Step {
	sig := signal.Signal{Action: action, Confidence: 90, Timestamp: ts}
	switch action {
	case signal.Buy:
		sig.Metadata = map[string]float64{"rsi": 25, "macd_hist": 1}
	case signal.Sell:
		sig.Metadata = map[string]float64{"rsi": 75, "macd_hist": -1}
	}
	return Step{
		Timestamp: ts,
		Price:     price,
		Signals:   map[string]signal.Signal{signal.SourceTechnical: sig},
	}
}

func TestReplay_SingleRoundTrip(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(1*time.Hour), 10.0, signal.Hold),
		stepFor(base.Add(2*time.Hour), 10.0, signal.Hold),
		stepFor(base.Add(3*time.Hour), 11.0, signal.Sell),
		stepFor(base.Add(4*time.Hour), 11.0, signal.Hold),
	}

	res, err := Replay(steps, singleSourceConfig())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, ExitReasonSignal, trade.Reason)
	assert.InDelta(t, 100.0, trade.Quantity, 1e-9, "10%% of 10000 at price 10")
	assert.InDelta(t, 100.0, trade.PnL, 1e-9, "(11-10) x 100, zero fees")
	assert.InDelta(t, 10_100.0, res.FinalBalance, 1e-9)
	assert.Len(t, res.Equity, 5)
	assert.Equal(t, "OPEN", res.Equity[1].State)
	assert.Equal(t, "FLAT", res.Equity[4].State)
}

func TestReplay_FeesOnBothSides(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cfg := singleSourceConfig()
	cfg.FeeRate = 0.001
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(time.Hour), 11.0, signal.Sell),
	}

	res, err := Replay(steps, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	// entry notional 1000, exit notional 1100, fee 0.001 each side
	assert.InDelta(t, 2.1, res.Trades[0].Fees, 1e-9)
	assert.InDelta(t, 100.0-2.1, res.Trades[0].PnL, 1e-9)
}

func TestReplay_StopLossBeatsSignal(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cfg := singleSourceConfig()
	cfg.StopLossPct = 0.05
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(time.Hour), 9.4, signal.Buy),
		stepFor(base.Add(2*time.Hour), 9.4, signal.Hold),
	}

	res, err := Replay(steps, cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Trades), 1)
	assert.Equal(t, ExitReasonStopLoss, res.Trades[0].Reason)
	assert.InDelta(t, 9.4, res.Trades[0].ExitPrice, 1e-9)
}

func TestReplay_TakeProfit(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cfg := singleSourceConfig()
	cfg.TakeProfitPct = 0.10
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(time.Hour), 11.2, signal.Hold),
	}

	res, err := Replay(steps, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitReasonTakeProfit, res.Trades[0].Reason)
}

func TestReplay_ForceCloseAtEnd(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(time.Hour), 10.5, signal.Hold),
	}

	res, err := Replay(steps, singleSourceConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitReasonEndOfRun, res.Trades[0].Reason)
	assert.InDelta(t, 10.5, res.Trades[0].ExitPrice, 1e-9)
}

func TestReplay_Drawdown(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(time.Hour), 9.0, signal.Hold),
		stepFor(base.Add(2*time.Hour), 9.0, signal.Sell),
	}

	res, err := Replay(steps, singleSourceConfig())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.MaxDrawdown, 1e-9, "100 units down 1.0 each from peak 10000")
	assert.InDelta(t, 1.0, res.MaxDrawdownPct, 1e-9)
}

func TestReplay_Validation(t *testing.T) {
	_, err := Replay(nil, singleSourceConfig())
	assert.Error(t, err)

	cfg := singleSourceConfig()
	cfg.Aggregator.Weights = map[string]float64{signal.SourceTechnical: 0.5}
	_, err = Replay([]Step{stepFor(time.Now(), 10, signal.Hold)}, cfg)
	assert.Error(t, err)

	cfg = singleSourceConfig()
	cfg.PositionPct = 1.5
	_, err = Replay([]Step{stepFor(time.Now(), 10, signal.Hold)}, cfg)
	assert.Error(t, err)
}

func TestComputeMetrics(t *testing.T) {
	t.Run("No Trades", func(t *testing.T) {
		m := ComputeMetrics(nil, 10_000, 10_000)
		assert.Equal(t, 0, m.Trades)
		assert.Equal(t, 0.0, m.ROI)
		assert.Equal(t, 0.0, m.ProfitFactor)
	})

	t.Run("Mixed", func(t *testing.T) {
		trades := []Trade{
			{PnL: 100, ReturnPct: 10},
			{PnL: -40, ReturnPct: -4},
			{PnL: 60, ReturnPct: 6},
		}
		m := ComputeMetrics(trades, 10_000, 10_120)
		assert.InDelta(t, 66.666, m.WinRate, 0.01)
		assert.InDelta(t, 80, m.AvgWin, 1e-9)
		assert.InDelta(t, 40, m.AvgLoss, 1e-9)
		assert.InDelta(t, 100, m.MaxWin, 1e-9)
		assert.InDelta(t, 40, m.MaxLoss, 1e-9)
		assert.InDelta(t, 4.0, m.ProfitFactor, 1e-9)
		assert.InDelta(t, 1.2, m.ROI, 1e-9)
		assert.NotZero(t, m.Sharpe)
	})

	t.Run("No Losses Is Infinite Profit Factor", func(t *testing.T) {
		m := ComputeMetrics([]Trade{{PnL: 10, ReturnPct: 1}, {PnL: 20, ReturnPct: 2}}, 10_000, 10_030)
		assert.True(t, math.IsInf(m.ProfitFactor, 1))
		assert.Equal(t, 100.0, m.WinRate)
	})
}

func allSourceStep(ts time.Time, price float64, action signal.Action) Step {
	meta := map[string]float64{"correlation": 0.9}
	switch action {
	case signal.Buy:
		meta["sentiment"] = 1
		meta["spike"] = 1
	case signal.Sell:
		meta["sentiment"] = -1
		meta["spike"] = -1
	}
	signals := make(map[string]signal.Signal, len(signal.KnownSources))
	for _, name := range signal.KnownSources {
		signals[name] = signal.Signal{Action: action, Confidence: 85, Metadata: meta, Timestamp: ts}
	}
	return Step{Timestamp: ts, Price: price, Signals: signals}
}

func TestSweep(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	steps := make([]Step, 0, 20)
	price := 10.0
	for i := 0; i < 20; i++ {
		action := signal.Hold
		if i%6 == 0 {
			action = signal.Buy
		} else if i%6 == 3 {
			action = signal.Sell
		}
		price += 0.1
		steps = append(steps, allSourceStep(base.Add(time.Duration(i)*time.Hour), price, action))
	}

	cfg := DefaultReplayConfig()
	cfg.FeeRate = 0
	results, best, err := Sweep(steps, cfg, nil)
	require.NoError(t, err)
	assert.Len(t, results, len(DefaultCandidates()))
	require.NotNil(t, best)
	assert.Greater(t, best.Result.Metrics.Trades, 0)
	for _, r := range results {
		assert.LessOrEqual(t, r.Result.Metrics.ROI, best.Result.Metrics.ROI)
	}
}

func TestResultStore_RoundTrip(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	steps := []Step{
		stepFor(base, 10.0, signal.Buy),
		stepFor(base.Add(time.Hour), 11.0, signal.Sell),
	}
	res, err := Replay(steps, singleSourceConfig())
	require.NoError(t, err)

	id, err := store.SaveRun(context.Background(), "unit", res)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "unit", runs[0].Label)
	assert.Equal(t, 1, runs[0].Metrics.Trades)
	assert.InDelta(t, res.Metrics.ROI, runs[0].Metrics.ROI, 1e-9)
	assert.InDelta(t, 1.0, runs[0].Weights[signal.SourceTechnical], 1e-9)
	assert.True(t, math.IsInf(runs[0].Metrics.ProfitFactor, 1), "no losing trades restores +Inf")

	raw, err := json.Marshal(runs[0].Metrics)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ProfitFactor":null`)
	assert.Contains(t, string(raw), `"Trades":1`)
}
