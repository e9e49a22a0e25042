package config

import (
	"fmt"
	"math"

	"github.com/kenken64/7monthIndicator-sub000/internal/scheduler"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// validate runs after defaults. Configuration errors are fatal at load so
// a decision cycle never sees them.
func validate(c *Config) error {
	if err := c.Aggregator.validate(); err != nil {
		return err
	}
	if err := c.Breaker.validate(); err != nil {
		return err
	}
	if _, ok := scheduler.ParseIntervalDuration(c.Sources.TechnicalInterval); !ok {
		return fmt.Errorf("sources.technical_interval %q is not a valid interval (want e.g. 30s, 15m, 1h, 1d)", c.Sources.TechnicalInterval)
	}
	if c.Reconcile.Epsilon <= 0 {
		return fmt.Errorf("reconcile.epsilon must be positive")
	}
	if c.Backtest.PositionPct <= 0 || c.Backtest.PositionPct > 1 {
		return fmt.Errorf("backtest.position_pct must be in (0,1]")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram enabled but bot_token or chat_id missing")
		}
	}
	return nil
}

func (a *AggregatorConfig) validate() error {
	if len(a.Weights) == 0 {
		return fmt.Errorf("aggregator.weights requires at least one source")
	}
	var sum float64
	for name, w := range a.Weights {
		if !knownSource(name) {
			return fmt.Errorf("aggregator.weights contains unknown source %q", name)
		}
		if w < 0 {
			return fmt.Errorf("aggregator.weights.%s is negative", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("aggregator.weights must sum to 1.0, got %.6f", sum)
	}
	if a.BuyThreshold <= a.SellThreshold {
		return fmt.Errorf("aggregator.buy_threshold must exceed sell_threshold")
	}
	if a.MinConfidence < 0 || a.MinConfidence > 100 {
		return fmt.Errorf("aggregator.min_confidence must be in [0,100]")
	}
	return nil
}

func (b *BreakerConfig) validate() error {
	for name, v := range map[string]float64{
		"breaker.btc_drop_1h":        b.BTCDrop1h,
		"breaker.btc_drop_4h":        b.BTCDrop4h,
		"breaker.eth_drop_1h":        b.ETHDrop1h,
		"breaker.eth_drop_4h":        b.ETHDrop4h,
		"breaker.market_cap_drop_4h": b.MarketCapDrop4h,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be a positive drop percentage", name)
		}
	}
	if b.WarningRatio < 0 || b.WarningRatio >= 1 {
		return fmt.Errorf("breaker.warning_ratio must be in [0,1)")
	}
	if b.StillDroppingMin >= 0 {
		return fmt.Errorf("breaker.still_dropping_min must be negative")
	}
	return nil
}

func knownSource(name string) bool {
	for _, s := range signal.KnownSources {
		if s == name {
			return true
		}
	}
	return false
}
