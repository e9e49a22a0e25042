package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kenken64/7monthIndicator-sub000/internal/market"
)

// MarketContextSource derives a regime signal from the shared market history:
// BTC and ETH 4h trends plus the rolling BTC/ETH correlation.
type MarketContextSource struct {
	history   *market.History
	fearGreed *market.FearGreedService
	window    time.Duration
	ttl       time.Duration
	nowFn     func() time.Time
}

func NewMarketContextSource(history *market.History, fearGreed *market.FearGreedService, ttl time.Duration) *MarketContextSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MarketContextSource{
		history:   history,
		fearGreed: fearGreed,
		window:    4 * time.Hour,
		ttl:       ttl,
		nowFn:     time.Now,
	}
}

func (s *MarketContextSource) Name() string       { return SourceMarket }
func (s *MarketContextSource) TTL() time.Duration { return s.ttl }

func (s *MarketContextSource) Fetch(ctx context.Context) (Signal, error) {
	if err := ctx.Err(); err != nil {
		return Signal{}, err
	}
	latest, ok := s.history.Latest()
	if !ok {
		return Signal{}, fmt.Errorf("%w: no market snapshots yet", ErrUnavailable)
	}

	btcTrend := trendOf(latest.BTCChange4h)
	ethTrend := trendOf(latest.ETHChange4h)
	corr := s.correlation()

	action := Hold
	switch {
	case btcTrend > 0 && ethTrend > 0:
		action = Buy
	case btcTrend < 0 && ethTrend < 0:
		action = Sell
	}

	meta := map[string]float64{
		"btc_trend":   btcTrend,
		"eth_trend":   ethTrend,
		"correlation": corr,
	}
	if s.fearGreed != nil {
		if data, ok := s.fearGreed.Get(); ok {
			meta["fear_greed"] = float64(data.Value)
		}
	}

	return Signal{
		Action:     action,
		Strength:   math.Abs(btcTrend) + math.Abs(ethTrend),
		Confidence: 70,
		Metadata:   meta,
		Timestamp:  s.nowFn(),
	}, nil
}

func trendOf(changePct float64) float64 {
	switch {
	case changePct > 0:
		return 1
	case changePct < 0:
		return -1
	default:
		return 0
	}
}

// correlation is the Pearson correlation of BTC vs ETH 1h changes over the
// recent window. Returns 0 when the window is too thin to be meaningful.
func (s *MarketContextSource) correlation() float64 {
	snaps := s.history.Since(s.nowFn().Add(-s.window))
	if len(snaps) < 3 {
		return 0
	}
	var sumX, sumY, sumXX, sumYY, sumXY float64
	n := float64(len(snaps))
	for _, snap := range snaps {
		x, y := snap.BTCChange1h, snap.ETHChange1h
		sumX += x
		sumY += y
		sumXX += x * x
		sumYY += y * y
		sumXY += x * y
	}
	num := n*sumXY - sumX*sumY
	den := math.Sqrt(n*sumXX-sumX*sumX) * math.Sqrt(n*sumYY-sumY*sumY)
	if den == 0 {
		return 0
	}
	return num / den
}
