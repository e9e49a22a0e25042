package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kenken64/7monthIndicator-sub000/internal/aggregator"
	"github.com/kenken64/7monthIndicator-sub000/internal/backtest"
	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
	"github.com/kenken64/7monthIndicator-sub000/internal/config"
	"github.com/kenken64/7monthIndicator-sub000/internal/executor"
	"github.com/kenken64/7monthIndicator-sub000/internal/gateway/binance"
	"github.com/kenken64/7monthIndicator-sub000/internal/gateway/notifier"
	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/market"
	"github.com/kenken64/7monthIndicator-sub000/internal/pkg/pauseflag"
	"github.com/kenken64/7monthIndicator-sub000/internal/reconcile"
	"github.com/kenken64/7monthIndicator-sub000/internal/scheduler"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
	"github.com/kenken64/7monthIndicator-sub000/internal/store"
	enginehttp "github.com/kenken64/7monthIndicator-sub000/internal/transport/http"
)

// App wires the breaker loop, the decision cycle, the reconciler and the
// HTTP API around one store and one market history.
type App struct {
	cfg        *config.Config
	store      *store.Store
	results    *backtest.ResultStore
	history    *market.History
	breaker    *breaker.Breaker
	monitor    *breaker.Monitor
	engine     *aggregator.Engine
	reconciler *reconcile.Reconciler
	pause      *pauseflag.Flag
	httpSrv    *enginehttp.Server
}

// New builds the application from configuration without starting anything.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	st, err := store.New(cfg.App.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Backtest.ResultDir)
	if err != nil {
		return nil, fmt.Errorf("open backtest results: %w", err)
	}

	history := market.NewHistory(cfg.Market.HistoryCapacity)
	brk := breaker.New(cfg.BreakerRuntime(), history, st)

	client := binance.NewClient(binance.Config{
		APIKey:      cfg.Market.APIKey,
		APISecret:   cfg.Market.APISecret,
		RESTBaseURL: cfg.Market.RESTBaseURL,
		HTTPTimeout: time.Duration(cfg.Market.HTTPTimeoutSeconds) * time.Second,
	})

	var text notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.Telegram.Enabled {
		text = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}
	bridge := notifier.NewEventBridge(text)

	var fearGreed *market.FearGreedService
	if cfg.Market.FearGreedEnabled {
		fearGreed = market.NewFearGreedService()
	}
	monitor := breaker.NewMonitor(binance.NewSnapshotSource(client), brk, history).
		WithContextStore(st).
		WithNotifier(bridge)
	if fearGreed != nil {
		monitor = monitor.WithFearGreed(fearGreed)
	}

	pause, err := pauseflag.New(cfg.App.PauseFile)
	if err != nil {
		return nil, fmt.Errorf("pause flag: %w", err)
	}

	ttl := time.Duration(cfg.Aggregator.DefaultTTLMinutes) * time.Minute
	// A technical signal stays valid for one candle period.
	techTTL, _ := scheduler.ParseIntervalDuration(cfg.Sources.TechnicalInterval)
	sources := []signal.Source{
		signal.NewTechnicalSource(signal.TechnicalConfig{
			Symbol:   cfg.Market.Symbol,
			Interval: cfg.Sources.TechnicalInterval,
			TTL:      techTTL,
		}, client),
		signal.NewPolicySource(cfg.Sources.PolicyPath, ttl),
		signal.NewVisionSource(cfg.Sources.VisionPath, ttl),
		signal.NewAgentsSource(cfg.Sources.AgentsPath, ttl),
		signal.NewMarketContextSource(history, fearGreed, ttl),
		signal.NewNewsSource(cfg.Sources.NewsPath, ttl),
	}

	engine, err := aggregator.NewEngine(cfg.AggregatorRuntime(), sources, brk)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	engine = engine.WithRecorder(st).WithPauseFlag(pause).WithQuoter(client, cfg.Market.Symbol)
	if cfg.Trade.Enabled {
		exec := executor.NewManager(executor.Config{
			Symbol:           cfg.Market.Symbol,
			NotionalUSD:      cfg.Trade.NotionalUSD,
			MaxOpenPositions: cfg.Trade.MaxOpenPositions,
		}, client, st).WithNotifier(text)
		engine = engine.WithExecutor(exec)
	}

	reconciler := reconcile.New(st, binance.NewPositionSource(client), cfg.Reconcile.Epsilon).
		WithNotifier(bridge)

	httpSrv, err := enginehttp.NewServer(enginehttp.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Router: &enginehttp.Router{
			Breaker: brk,
			Store:   st,
			Results: results,
			Pause:   pause,
			Symbol:  cfg.Market.Symbol,
			BacktestCfg: backtest.Config{
				Aggregator:     cfg.AggregatorRuntime(),
				InitialBalance: cfg.Backtest.InitialBalance,
				PositionPct:    cfg.Backtest.PositionPct,
				FeeRate:        cfg.Backtest.FeeRate,
				StopLossPct:    cfg.Backtest.StopLossPct,
				TakeProfitPct:  cfg.Backtest.TakeProfitPct,
			},
			ReportDir: cfg.Backtest.ResultDir,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:        cfg,
		store:      st,
		results:    results,
		history:    history,
		breaker:    brk,
		monitor:    monitor,
		engine:     engine,
		reconciler: reconciler,
		pause:      pause,
		httpSrv:    httpSrv,
	}, nil
}

// Engine exposes the decision engine for replay harnesses.
func (a *App) Engine() *aggregator.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Run starts every loop and blocks until ctx is cancelled or a component
// fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	logger.Infof("engine starting env=%s symbol=%s http=%s trade_enabled=%v",
		a.cfg.App.Env, a.cfg.Market.Symbol, a.httpSrv.Addr(), a.cfg.Trade.Enabled)

	if a.cfg.Reconcile.RunAtStartup {
		res, err := a.reconciler.Reconcile(ctx, a.cfg.Market.Symbol)
		if err != nil {
			logger.Warnf("startup reconciliation failed: %v", err)
		} else if !res.InSync() {
			logger.Warnf("startup reconciliation corrected drift closures=%d mismatch=%v",
				len(res.Closures), res.Mismatch)
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.httpSrv.Start(ctx)
	})

	group.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "breaker-monitor",
			time.Duration(a.cfg.Breaker.IntervalSeconds)*time.Second)
		s.RunImmediately = true
		s.Start(func() { a.monitor.RunOnce(ctx) })
		return nil
	})

	group.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "decision-cycle",
			time.Duration(a.cfg.Aggregator.IntervalSeconds)*time.Second)
		s.Start(func() { a.engine.RunCycle(ctx) })
		return nil
	})

	group.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "reconciler",
			time.Duration(a.cfg.Reconcile.IntervalSeconds)*time.Second)
		s.Start(func() {
			if _, err := a.reconciler.Reconcile(ctx, a.cfg.Market.Symbol); err != nil {
				logger.Warnf("reconciliation failed: %v", err)
			}
		})
		return nil
	})

	return group.Wait()
}

func (a *App) close() {
	if a.pause != nil {
		_ = a.pause.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
