package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/kenken64/7monthIndicator-sub000/internal/aggregator"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// Exit reasons recorded on simulated trades.
const (
	ExitReasonSignal     = "signal"
	ExitReasonStopLoss   = "stop-loss"
	ExitReasonTakeProfit = "take-profit"
	ExitReasonEndOfRun   = "end of backtest"
)

// Step is one historical decision instant: the signal set that existed then
// plus the reference price.
type Step struct {
	Timestamp time.Time
	Price     float64
	Signals   map[string]signal.Signal
}

// Config drives one replay pass.
type Config struct {
	Aggregator     aggregator.Config
	InitialBalance float64
	PositionPct    float64
	FeeRate        float64
	StopLossPct    float64
	TakeProfitPct  float64
}

func DefaultReplayConfig() Config {
	return Config{
		Aggregator:     aggregator.DefaultConfig(),
		InitialBalance: 10_000,
		PositionPct:    0.10,
		FeeRate:        0.0005,
		StopLossPct:    0.05,
		TakeProfitPct:  0.10,
	}
}

// Trade is one closed simulated position.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Fees       float64
	PnL        float64
	ReturnPct  float64
	Reason     string
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Balance   float64
	Equity    float64
	State     string // OPEN or FLAT
}

// Result is one closed-book replay outcome.
type Result struct {
	Config         Config
	Trades         []Trade
	Equity         []EquityPoint
	Decisions      []aggregator.Decision
	FinalBalance   float64
	MaxDrawdown    float64
	MaxDrawdownPct float64
	Metrics        Metrics
}

type openPosition struct {
	entryTime  time.Time
	entryPrice float64
	quantity   float64
}

// Replay runs the time-ordered step list through the live scoring function
// under cfg and simulates entries, exits, fees and equity. It touches no
// live exchange and owns all of its state.
func Replay(steps []Step, cfg Config) (Result, error) {
	if err := cfg.Aggregator.Validate(); err != nil {
		return Result{}, err
	}
	if len(steps) == 0 {
		return Result{}, errors.New("backtest: empty step history")
	}
	if cfg.InitialBalance <= 0 {
		return Result{}, fmt.Errorf("backtest: initial balance %.2f must be positive", cfg.InitialBalance)
	}
	if cfg.PositionPct <= 0 || cfg.PositionPct > 1 {
		return Result{}, fmt.Errorf("backtest: position size %.3f must be in (0,1]", cfg.PositionPct)
	}

	res := Result{Config: cfg, FinalBalance: cfg.InitialBalance}
	balance := cfg.InitialBalance
	peak := balance
	var pos *openPosition

	closeAt := func(price float64, ts time.Time, reason string) {
		entryNotional := pos.quantity * pos.entryPrice
		exitNotional := pos.quantity * price
		fees := cfg.FeeRate * (entryNotional + exitNotional)
		pnl := (price-pos.entryPrice)*pos.quantity - fees
		balance += pnl
		res.Trades = append(res.Trades, Trade{
			EntryTime:  pos.entryTime,
			ExitTime:   ts,
			EntryPrice: pos.entryPrice,
			ExitPrice:  price,
			Quantity:   pos.quantity,
			Fees:       fees,
			PnL:        pnl,
			ReturnPct:  pnl / entryNotional * 100,
			Reason:     reason,
		})
		pos = nil
	}

	var lastStep Step
	for _, step := range steps {
		lastStep = step
		d := aggregator.Aggregate(step.Timestamp, step.Signals, cfg.Aggregator)
		res.Decisions = append(res.Decisions, d)

		equity := balance
		state := "FLAT"
		if pos != nil {
			equity = balance + (step.Price-pos.entryPrice)*pos.quantity
			state = "OPEN"
		}
		res.Equity = append(res.Equity, EquityPoint{
			Timestamp: step.Timestamp,
			Balance:   balance,
			Equity:    equity,
			State:     state,
		})
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
			if peak > 0 {
				res.MaxDrawdownPct = dd / peak * 100
			}
		}

		// Risk exits run every step, before signal exits.
		if pos != nil && step.Price > 0 {
			ret := (step.Price - pos.entryPrice) / pos.entryPrice
			switch {
			case cfg.StopLossPct > 0 && ret <= -cfg.StopLossPct:
				closeAt(step.Price, step.Timestamp, ExitReasonStopLoss)
			case cfg.TakeProfitPct > 0 && ret >= cfg.TakeProfitPct:
				closeAt(step.Price, step.Timestamp, ExitReasonTakeProfit)
			}
		}

		switch d.Action {
		case signal.Sell:
			if pos != nil {
				closeAt(step.Price, step.Timestamp, ExitReasonSignal)
			}
		case signal.Buy:
			if pos == nil && step.Price > 0 {
				notional := balance * cfg.PositionPct
				pos = &openPosition{
					entryTime:  step.Timestamp,
					entryPrice: step.Price,
					quantity:   notional / step.Price,
				}
			}
		}
	}

	if pos != nil {
		closeAt(lastStep.Price, lastStep.Timestamp, ExitReasonEndOfRun)
	}

	res.FinalBalance = balance
	res.Metrics = ComputeMetrics(res.Trades, cfg.InitialBalance, balance)
	res.Metrics.MaxDrawdown = res.MaxDrawdown
	res.Metrics.MaxDrawdownPct = res.MaxDrawdownPct
	return res, nil
}
