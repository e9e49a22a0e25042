package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// Gate exposes the circuit breaker state for the pre-scoring safety check.
type Gate interface {
	State() breaker.State
}

// Recorder persists the inputs and output of one decision cycle. Each
// signal row carries the traded symbol's price at decision time so replays
// mark simulated fills against the asset actually traded.
type Recorder interface {
	SaveSignal(ctx context.Context, cycleID, source string, sig signal.Signal, price float64) error
	SaveDecision(ctx context.Context, cycleID string, d Decision) error
}

// Quoter reports the traded symbol's last price.
type Quoter interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Executor receives actionable decisions. The paused flag and the breaker
// gate both run before it.
type Executor interface {
	Execute(ctx context.Context, cycleID string, d Decision) error
}

// PauseFlag is the operational kill switch: when set, decisions are still
// computed and logged but never forwarded.
type PauseFlag interface {
	Paused() bool
}

// Engine owns the live decision cycle: concurrent source fetch, breaker
// gating, aggregation, persistence and hand-off to execution.
type Engine struct {
	cfg      Config
	sources  []signal.Source
	gate     Gate
	recorder Recorder
	executor Executor
	pause    PauseFlag
	quoter   Quoter
	symbol   string

	fetchTimeout time.Duration
	nowFn        func() time.Time
}

func NewEngine(cfg Config, sources []signal.Source, gate Gate) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.New("aggregator: no signal sources wired")
	}
	ttls := make(map[string]time.Duration, len(sources))
	for k, v := range cfg.TTLs {
		ttls[k] = v
	}
	for _, src := range sources {
		if _, ok := ttls[src.Name()]; !ok {
			ttls[src.Name()] = src.TTL()
		}
	}
	cfg.TTLs = ttls
	// Each source gets less than half the cycle period so a hung fetch can
	// never starve the next decision.
	fetchTimeout := 20 * time.Second
	if cfg.Interval > 0 && cfg.Interval/2 < fetchTimeout {
		fetchTimeout = cfg.Interval / 2
	}
	return &Engine{
		cfg:          cfg,
		sources:      sources,
		gate:         gate,
		fetchTimeout: fetchTimeout,
		nowFn:        time.Now,
	}, nil
}

func (e *Engine) WithRecorder(r Recorder) *Engine { e.recorder = r; return e }
func (e *Engine) WithExecutor(x Executor) *Engine { e.executor = x; return e }
func (e *Engine) WithPauseFlag(p PauseFlag) *Engine {
	e.pause = p
	return e
}

// WithQuoter stamps each recorded signal with symbol's last price.
func (e *Engine) WithQuoter(q Quoter, symbol string) *Engine {
	e.quoter = q
	e.symbol = symbol
	return e
}

// Config returns the validated configuration in use.
func (e *Engine) Config() Config { return e.cfg }

// RunCycle produces exactly one decision. It never returns an error for a
// degraded source; only persistence of nothing at all is impossible.
func (e *Engine) RunCycle(ctx context.Context) Decision {
	cycleID := uuid.NewString()
	now := e.nowFn()

	if state := e.gate.State(); state != breaker.StateSafe {
		logger.Warnf("cycle %s: breaker %s, holding without scoring", cycleID, state)
		d := Decision{
			Action:    signal.Hold,
			Score:     5.0,
			Breakdown: map[string]SourceBreakdown{},
			Timestamp: now,
		}
		e.record(ctx, cycleID, nil, d, 0)
		return d
	}

	signals := e.fetchAll(ctx, cycleID)
	d := Aggregate(now, signals, e.cfg)
	logger.Infof("cycle %s: %s score %.2f confidence %.1f from %d sources",
		cycleID, d.Action, d.Score, d.Confidence, len(signals))

	e.record(ctx, cycleID, signals, d, e.cyclePrice(ctx))

	if d.Action != signal.Hold {
		e.forward(ctx, cycleID, d)
	}
	return d
}

// fetchAll pulls every source concurrently under its own timeout. A slow or
// failed source is simply absent from the result.
func (e *Engine) fetchAll(ctx context.Context, cycleID string) map[string]signal.Signal {
	var mu sync.Mutex
	signals := make(map[string]signal.Signal, len(e.sources))

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range e.sources {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, e.fetchTimeout)
			defer cancel()

			sig, err := src.Fetch(fetchCtx)
			if err != nil {
				if errors.Is(err, signal.ErrNoOpinion) {
					logger.Debugf("cycle %s: %s has no opinion yet", cycleID, src.Name())
				} else {
					logger.Warnf("cycle %s: %s degraded: %v", cycleID, src.Name(), err)
				}
				return nil
			}
			mu.Lock()
			signals[src.Name()] = sig
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return signals
}

// cyclePrice fetches the traded symbol's last price for the signal log. A
// quote failure degrades to zero rather than failing the cycle.
func (e *Engine) cyclePrice(ctx context.Context) float64 {
	if e.quoter == nil || e.symbol == "" {
		return 0
	}
	quoteCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	price, err := e.quoter.LastPrice(quoteCtx, e.symbol)
	if err != nil {
		logger.Warnf("last price for %s unavailable: %v", e.symbol, err)
		return 0
	}
	return price.InexactFloat64()
}

func (e *Engine) record(ctx context.Context, cycleID string, signals map[string]signal.Signal, d Decision, price float64) {
	if e.recorder == nil {
		return
	}
	for name, sig := range signals {
		if err := e.recorder.SaveSignal(ctx, cycleID, name, sig, price); err != nil {
			logger.Errorf("cycle %s: persist %s signal: %v", cycleID, name, err)
		}
	}
	if err := e.recorder.SaveDecision(ctx, cycleID, d); err != nil {
		logger.Errorf("cycle %s: persist decision: %v", cycleID, err)
	}
}

func (e *Engine) forward(ctx context.Context, cycleID string, d Decision) {
	if e.pause != nil && e.pause.Paused() {
		logger.Infof("cycle %s: paused, %s not forwarded", cycleID, d.Action)
		return
	}
	if e.executor == nil {
		return
	}
	if err := e.executor.Execute(ctx, cycleID, d); err != nil {
		logger.Errorf("cycle %s: execute %s: %v", cycleID, d.Action, err)
	}
}
