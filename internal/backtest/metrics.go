package backtest

import (
	"encoding/json"
	"math"
)

// Metrics are the closed-book performance numbers of one replay.
type Metrics struct {
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64 // percent
	AvgWin         float64
	AvgLoss        float64
	MaxWin         float64
	MaxLoss        float64
	GrossProfit    float64
	GrossLoss      float64
	ProfitFactor   float64 // +Inf when no losing trades
	Sharpe         float64 // annualized from per-trade percentage returns
	ROI            float64 // percent
	MaxDrawdown    float64
	MaxDrawdownPct float64
}

// MarshalJSON renders an infinite profit factor as null; encoding/json has
// no representation for +Inf.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	out := struct {
		plain
		ProfitFactor *float64 `json:"ProfitFactor"`
	}{plain: plain(m)}
	if !math.IsInf(m.ProfitFactor, 0) {
		out.ProfitFactor = &m.ProfitFactor
	}
	return json.Marshal(out)
}

// ComputeMetrics aggregates per-trade results. Sharpe uses a simplified
// annualization over per-trade percentage returns with a 252-period year.
func ComputeMetrics(trades []Trade, initialBalance, finalBalance float64) Metrics {
	m := Metrics{Trades: len(trades)}
	if initialBalance > 0 {
		m.ROI = (finalBalance - initialBalance) / initialBalance * 100
	}
	if len(trades) == 0 {
		return m
	}

	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		returns = append(returns, t.ReturnPct)
		if t.PnL > 0 {
			m.Wins++
			m.GrossProfit += t.PnL
			m.AvgWin += t.PnL
			if t.PnL > m.MaxWin {
				m.MaxWin = t.PnL
			}
		} else if t.PnL < 0 {
			m.Losses++
			m.GrossLoss += -t.PnL
			m.AvgLoss += -t.PnL
			if -t.PnL > m.MaxLoss {
				m.MaxLoss = -t.PnL
			}
		}
	}
	m.WinRate = float64(m.Wins) / float64(len(trades)) * 100
	if m.Wins > 0 {
		m.AvgWin /= float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss /= float64(m.Losses)
	}
	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}
	m.Sharpe = sharpe(returns)
	return m
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}
