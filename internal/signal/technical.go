package signal

import (
	"context"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"
)

// CandleProvider returns recent closing prices for a symbol, oldest first.
type CandleProvider interface {
	Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
}

// TechnicalConfig tunes the indicator-based source.
type TechnicalConfig struct {
	Symbol     string
	Interval   string
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	EMAFast    int
	EMASlow    int
	TTL        time.Duration
}

func (c *TechnicalConfig) applyDefaults() {
	if c.Interval == "" {
		c.Interval = "1h"
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.MACDFast <= 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = 26
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = 9
	}
	if c.EMAFast <= 0 {
		c.EMAFast = 20
	}
	if c.EMASlow <= 0 {
		c.EMASlow = 50
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
}

// TechnicalSource derives a signal from RSI, MACD and EMA trend votes over
// recent closes.
type TechnicalSource struct {
	cfg     TechnicalConfig
	candles CandleProvider
	nowFn   func() time.Time
}

func NewTechnicalSource(cfg TechnicalConfig, candles CandleProvider) *TechnicalSource {
	cfg.applyDefaults()
	return &TechnicalSource{cfg: cfg, candles: candles, nowFn: time.Now}
}

func (s *TechnicalSource) Name() string       { return SourceTechnical }
func (s *TechnicalSource) TTL() time.Duration { return s.cfg.TTL }

func (s *TechnicalSource) Fetch(ctx context.Context) (Signal, error) {
	need := s.cfg.EMASlow + s.cfg.MACDSlow + s.cfg.MACDSignal
	closes, err := s.candles.Closes(ctx, s.cfg.Symbol, s.cfg.Interval, need*2)
	if err != nil {
		return Signal{}, fmt.Errorf("%w: candles for %s: %v", ErrUnavailable, s.cfg.Symbol, err)
	}
	if len(closes) < need {
		return Signal{}, fmt.Errorf("%w: need %d closes got %d", ErrUnavailable, need, len(closes))
	}

	rsiSeries := talib.Rsi(closes, s.cfg.RSIPeriod)
	_, _, histSeries := talib.Macd(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	emaFastSeries := talib.Ema(closes, s.cfg.EMAFast)
	emaSlowSeries := talib.Ema(closes, s.cfg.EMASlow)

	rsi := last(rsiSeries)
	hist := last(histSeries)
	emaFast := last(emaFastSeries)
	emaSlow := last(emaSlowSeries)

	vote := 0
	if hist > 0 {
		vote++
	} else if hist < 0 {
		vote--
	}
	if emaFast > emaSlow {
		vote++
	} else if emaFast < emaSlow {
		vote--
	}
	if rsi < 30 {
		vote++
	} else if rsi > 70 {
		vote--
	}

	action := Hold
	switch {
	case vote >= 2:
		action = Buy
	case vote <= -2:
		action = Sell
	}
	absVote := vote
	if absVote < 0 {
		absVote = -absVote
	}
	conf := 50 + 10*float64(absVote)
	if conf > 90 {
		conf = 90
	}

	return Signal{
		Action:     action,
		Strength:   float64(absVote),
		Confidence: conf,
		Metadata: map[string]float64{
			"rsi":       rsi,
			"macd_hist": hist,
			"ema_fast":  emaFast,
			"ema_slow":  emaSlow,
		},
		Timestamp: s.nowFn(),
	}, nil
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
