package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteReport renders an HTML report for a replay: the equity curve and the
// per-trade outcomes as a bar series.
func WriteReport(w io.Writer, title string, res Result) error {
	page := components.NewPage()
	page.AddCharts(equityChart(title, res), tradeChart(res))
	return page.Render(w)
}

func equityChart(title string, res Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
			Subtitle: fmt.Sprintf("ROI %.2f%%  trades %d  win rate %.1f%%  max drawdown %.2f (%.2f%%)",
				res.Metrics.ROI, res.Metrics.Trades, res.Metrics.WinRate, res.MaxDrawdown, res.MaxDrawdownPct),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)

	xAxis := make([]string, 0, len(res.Equity))
	balance := make([]opts.LineData, 0, len(res.Equity))
	equity := make([]opts.LineData, 0, len(res.Equity))
	for _, p := range res.Equity {
		xAxis = append(xAxis, p.Timestamp.UTC().Format(time.RFC3339))
		balance = append(balance, opts.LineData{Value: p.Balance})
		equity = append(equity, opts.LineData{Value: p.Equity})
	}
	line.SetXAxis(xAxis).
		AddSeries("Equity", equity, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("Balance", balance, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func tradeChart(res Result) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-trade PnL"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	xAxis := make([]string, 0, len(res.Trades))
	pnl := make([]opts.BarData, 0, len(res.Trades))
	for i, t := range res.Trades {
		xAxis = append(xAxis, fmt.Sprintf("#%d %s", i+1, t.Reason))
		pnl = append(pnl, opts.BarData{Value: t.PnL})
	}
	bar.SetXAxis(xAxis).AddSeries("PnL", pnl)
	return bar
}
