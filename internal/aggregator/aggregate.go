package aggregator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// Config is the full aggregation surface: weights, score thresholds, the
// confidence gate and per-source staleness TTLs. Validated once at load.
// Interval is the decision cycle period; it bounds the per-source fetch
// timeout.
type Config struct {
	Weights         map[string]float64       `mapstructure:"weights"`
	TTLs            map[string]time.Duration `mapstructure:"ttls"`
	Interval        time.Duration            `mapstructure:"interval"`
	BuyThreshold    float64                  `mapstructure:"buy_threshold"`
	SellThreshold   float64                  `mapstructure:"sell_threshold"`
	MinConfidence   float64                  `mapstructure:"min_confidence"`
	StaleConfidence float64                  `mapstructure:"stale_confidence"`
	DefaultTTL      time.Duration            `mapstructure:"default_ttl"`
}

func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			signal.SourceTechnical: 0.25,
			signal.SourcePolicy:    0.20,
			signal.SourceVision:    0.15,
			signal.SourceAgents:    0.15,
			signal.SourceMarket:    0.15,
			signal.SourceNews:      0.10,
		},
		Interval:        5 * time.Minute,
		BuyThreshold:    6.5,
		SellThreshold:   3.5,
		MinConfidence:   55,
		StaleConfidence: 20,
		DefaultTTL:      15 * time.Minute,
	}
}

// Validate fails fast on a broken configuration so a decision cycle never
// has to.
func (c Config) Validate() error {
	if len(c.Weights) == 0 {
		return fmt.Errorf("aggregator: no sources configured")
	}
	var sum float64
	for name, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("aggregator: negative weight %.4f for %s", w, name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("aggregator: weights sum to %.6f, want 1.0", sum)
	}
	if c.BuyThreshold <= c.SellThreshold {
		return fmt.Errorf("aggregator: buy threshold %.2f must exceed sell threshold %.2f", c.BuyThreshold, c.SellThreshold)
	}
	return nil
}

func (c Config) ttl(source string) time.Duration {
	if d, ok := c.TTLs[source]; ok && d > 0 {
		return d
	}
	if c.DefaultTTL > 0 {
		return c.DefaultTTL
	}
	return 15 * time.Minute
}

// SourceBreakdown records how one source contributed to a decision.
type SourceBreakdown struct {
	Action     signal.Action `json:"action"`
	Score      float64       `json:"score"`
	Confidence float64       `json:"confidence"`
	Weight     float64       `json:"weight"`
	Stale      bool          `json:"stale"`
	Missing    bool          `json:"missing"`
}

// Decision is one immutable aggregation result.
type Decision struct {
	Action     signal.Action              `json:"action"`
	Score      float64                    `json:"score"`
	Confidence float64                    `json:"confidence"`
	Breakdown  map[string]SourceBreakdown `json:"breakdown"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Aggregate combines the latest signal from each configured source into one
// decision. It is pure given its inputs; the backtester reuses it with
// alternate configurations. Missing sources contribute a neutral signal with
// zero confidence, stale ones a neutral signal at the stale confidence
// floor; weights never renormalize.
func Aggregate(now time.Time, signals map[string]signal.Signal, cfg Config) Decision {
	names := make([]string, 0, len(cfg.Weights))
	for name := range cfg.Weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var weightedScore, weightedConf float64
	breakdown := make(map[string]SourceBreakdown, len(names))
	for _, name := range names {
		weight := cfg.Weights[name]
		sig, present := signals[name]

		var stale bool
		switch {
		case !present:
			sig = signal.Neutral(now)
		case now.Sub(sig.Timestamp) > cfg.ttl(name):
			stale = true
			sig = signal.Signal{
				Action:     signal.Hold,
				Confidence: cfg.StaleConfidence,
				Timestamp:  sig.Timestamp,
			}
		}

		score := Score(name, sig)
		conf := Confidence(name, sig)
		weightedScore += score * weight
		weightedConf += conf * weight
		breakdown[name] = SourceBreakdown{
			Action:     sig.Action,
			Score:      score,
			Confidence: conf,
			Weight:     weight,
			Stale:      stale,
			Missing:    !present,
		}
	}

	action := signal.Hold
	if weightedConf >= cfg.MinConfidence {
		switch {
		case weightedScore >= cfg.BuyThreshold:
			action = signal.Buy
		case weightedScore <= cfg.SellThreshold:
			action = signal.Sell
		}
	}

	return Decision{
		Action:     action,
		Score:      weightedScore,
		Confidence: weightedConf,
		Breakdown:  breakdown,
		Timestamp:  now,
	}
}
