package config

import (
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultAppDBPath         = "data/engine.db"
	defaultAppPauseFile      = "data/PAUSE"
	defaultMarketREST        = "https://fapi.binance.com"
	defaultMarketSymbol      = "SUIUSDC"
	defaultMarketTimeout     = 10
	defaultHistoryCapacity   = 1000
	defaultBreakerInterval   = 60
	defaultStabilizationMins = 30
	defaultAggInterval       = 300
	defaultBuyThreshold      = 6.5
	defaultSellThreshold     = 3.5
	defaultMinConfidence     = 55.0
	defaultStaleConfidence   = 20.0
	defaultTTLMinutes        = 15
	defaultTechInterval      = "1h"
	defaultTradeNotional     = 100.0
	defaultEpsilon           = 0.001
	defaultReconcileInterval = 300
	defaultBacktestDir       = "data/backtests"
	defaultInitialBalance    = 10_000.0
	defaultPositionPct       = 0.10
	defaultFeeRate           = 0.0005
	defaultStopLossPct       = 0.05
	defaultTakeProfitPct     = 0.10
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.App.DBPath == "" {
		c.App.DBPath = defaultAppDBPath
	}
	if c.App.PauseFile == "" {
		c.App.PauseFile = defaultAppPauseFile
	}
	if c.Market.RESTBaseURL == "" {
		c.Market.RESTBaseURL = defaultMarketREST
	}
	if c.Market.Symbol == "" {
		c.Market.Symbol = defaultMarketSymbol
	}
	if c.Market.HTTPTimeoutSeconds <= 0 {
		c.Market.HTTPTimeoutSeconds = defaultMarketTimeout
	}
	if c.Market.HistoryCapacity <= 0 {
		c.Market.HistoryCapacity = defaultHistoryCapacity
	}
	if c.Breaker.IntervalSeconds <= 0 {
		c.Breaker.IntervalSeconds = defaultBreakerInterval
	}
	if c.Breaker.BTCDrop1h == 0 {
		c.Breaker.BTCDrop1h = 15
	}
	if c.Breaker.BTCDrop4h == 0 {
		c.Breaker.BTCDrop4h = 20
	}
	if c.Breaker.ETHDrop1h == 0 {
		c.Breaker.ETHDrop1h = 15
	}
	if c.Breaker.ETHDrop4h == 0 {
		c.Breaker.ETHDrop4h = 25
	}
	if c.Breaker.MarketCapDrop4h == 0 {
		c.Breaker.MarketCapDrop4h = 20
	}
	if c.Breaker.Liquidations1h == 0 {
		c.Breaker.Liquidations1h = 500_000_000
	}
	if c.Breaker.StabilizationMinutes <= 0 {
		c.Breaker.StabilizationMinutes = defaultStabilizationMins
	}
	if c.Breaker.VolatileMove1h == 0 {
		c.Breaker.VolatileMove1h = 5.0
	}
	if c.Breaker.StillDroppingMin == 0 {
		c.Breaker.StillDroppingMin = -2.0
	}
	if c.Breaker.WarningRatio == 0 {
		c.Breaker.WarningRatio = 0.8
	}
	if c.Aggregator.IntervalSeconds <= 0 {
		c.Aggregator.IntervalSeconds = defaultAggInterval
	}
	if len(c.Aggregator.Weights) == 0 {
		c.Aggregator.Weights = map[string]float64{
			signal.SourceTechnical: 0.25,
			signal.SourcePolicy:    0.20,
			signal.SourceVision:    0.15,
			signal.SourceAgents:    0.15,
			signal.SourceMarket:    0.15,
			signal.SourceNews:      0.10,
		}
	}
	if c.Aggregator.BuyThreshold == 0 {
		c.Aggregator.BuyThreshold = defaultBuyThreshold
	}
	if c.Aggregator.SellThreshold == 0 {
		c.Aggregator.SellThreshold = defaultSellThreshold
	}
	if c.Aggregator.MinConfidence == 0 {
		c.Aggregator.MinConfidence = defaultMinConfidence
	}
	if c.Aggregator.StaleConfidence == 0 {
		c.Aggregator.StaleConfidence = defaultStaleConfidence
	}
	if c.Aggregator.DefaultTTLMinutes <= 0 {
		c.Aggregator.DefaultTTLMinutes = defaultTTLMinutes
	}
	if c.Sources.TechnicalInterval == "" {
		c.Sources.TechnicalInterval = defaultTechInterval
	}
	if c.Sources.PolicyPath == "" {
		c.Sources.PolicyPath = "data/signals/policy.json"
	}
	if c.Sources.VisionPath == "" {
		c.Sources.VisionPath = "data/signals/vision.json"
	}
	if c.Sources.AgentsPath == "" {
		c.Sources.AgentsPath = "data/signals/agents.json"
	}
	if c.Sources.NewsPath == "" {
		c.Sources.NewsPath = "data/signals/news.json"
	}
	if c.Trade.NotionalUSD <= 0 {
		c.Trade.NotionalUSD = defaultTradeNotional
	}
	if c.Trade.MaxOpenPositions <= 0 {
		c.Trade.MaxOpenPositions = 1
	}
	if c.Reconcile.Epsilon <= 0 {
		c.Reconcile.Epsilon = defaultEpsilon
	}
	if c.Reconcile.IntervalSeconds <= 0 {
		c.Reconcile.IntervalSeconds = defaultReconcileInterval
	}
	if c.Backtest.ResultDir == "" {
		c.Backtest.ResultDir = defaultBacktestDir
	}
	if c.Backtest.InitialBalance <= 0 {
		c.Backtest.InitialBalance = defaultInitialBalance
	}
	if c.Backtest.PositionPct <= 0 {
		c.Backtest.PositionPct = defaultPositionPct
	}
	if c.Backtest.FeeRate == 0 {
		c.Backtest.FeeRate = defaultFeeRate
	}
	if c.Backtest.StopLossPct == 0 {
		c.Backtest.StopLossPct = defaultStopLossPct
	}
	if c.Backtest.TakeProfitPct == 0 {
		c.Backtest.TakeProfitPct = defaultTakeProfitPct
	}
}
