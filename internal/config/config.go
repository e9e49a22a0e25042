package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/kenken64/7monthIndicator-sub000/internal/aggregator"
	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
)

// Load reads one YAML file, applies defaults and validates. All
// configuration errors are fatal here, never later.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the fully-defaulted configuration without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// BreakerRuntime converts to the breaker's runtime configuration.
func (c *Config) BreakerRuntime() breaker.Config {
	return breaker.Config{
		Thresholds: breaker.Thresholds{
			BTCDrop1h:       c.Breaker.BTCDrop1h,
			BTCDrop4h:       c.Breaker.BTCDrop4h,
			ETHDrop1h:       c.Breaker.ETHDrop1h,
			ETHDrop4h:       c.Breaker.ETHDrop4h,
			MarketCapDrop4h: c.Breaker.MarketCapDrop4h,
			Liquidations1h:  c.Breaker.Liquidations1h,
		},
		Stabilization:    time.Duration(c.Breaker.StabilizationMinutes) * time.Minute,
		VolatileMove1h:   c.Breaker.VolatileMove1h,
		StillDroppingMin: c.Breaker.StillDroppingMin,
		WarningRatio:     c.Breaker.WarningRatio,
	}
}

// AggregatorRuntime converts to the aggregator's runtime configuration.
func (c *Config) AggregatorRuntime() aggregator.Config {
	return aggregator.Config{
		Weights:         c.Aggregator.Weights,
		Interval:        time.Duration(c.Aggregator.IntervalSeconds) * time.Second,
		BuyThreshold:    c.Aggregator.BuyThreshold,
		SellThreshold:   c.Aggregator.SellThreshold,
		MinConfidence:   c.Aggregator.MinConfidence,
		StaleConfidence: c.Aggregator.StaleConfidence,
		DefaultTTL:      time.Duration(c.Aggregator.DefaultTTLMinutes) * time.Minute,
	}
}
