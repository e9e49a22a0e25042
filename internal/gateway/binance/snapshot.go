package binance

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/market"
)

const (
	btcSymbol = "BTCUSDT"
	ethSymbol = "ETHUSDT"
)

type assetReading struct {
	price    float64
	change1h float64
	change4h float64
}

// SnapshotSource builds market snapshots from futures klines. Funding rate
// is best effort; a failed premium index read leaves it nil.
type SnapshotSource struct {
	client *Client
}

func NewSnapshotSource(client *Client) *SnapshotSource {
	return &SnapshotSource{client: client}
}

func (s *SnapshotSource) FetchSnapshot(ctx context.Context) (market.Snapshot, error) {
	var btc, eth assetReading
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.reading(gctx, btcSymbol)
		if err != nil {
			return fmt.Errorf("btc reading: %w", err)
		}
		btc = r
		return nil
	})
	g.Go(func() error {
		r, err := s.reading(gctx, ethSymbol)
		if err != nil {
			return fmt.Errorf("eth reading: %w", err)
		}
		eth = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return market.Snapshot{}, err
	}

	snap := market.Snapshot{
		Timestamp:   time.Now(),
		BTCPrice:    btc.price,
		ETHPrice:    eth.price,
		BTCChange1h: btc.change1h,
		BTCChange4h: btc.change4h,
		ETHChange1h: eth.change1h,
		ETHChange4h: eth.change4h,
	}
	if funding, err := s.fundingRate(ctx, btcSymbol); err != nil {
		logger.Debugf("binance: funding rate unavailable: %v", err)
	} else {
		snap.FundingRate = &funding
	}
	return snap, nil
}

// reading derives current price plus 1h and 4h percentage changes from the
// last five hourly klines.
func (s *SnapshotSource) reading(ctx context.Context, symbol string) (assetReading, error) {
	kls, err := s.client.api.NewKlinesService().
		Symbol(symbol).Interval("1h").Limit(5).Do(ctx)
	if err != nil {
		return assetReading{}, err
	}
	if len(kls) < 5 {
		return assetReading{}, fmt.Errorf("%s: want 5 hourly klines, got %d", symbol, len(kls))
	}
	closes := make([]float64, 0, len(kls))
	for _, kl := range kls {
		closes = append(closes, parseFloat(kl.Close))
	}
	last := closes[len(closes)-1]
	return assetReading{
		price:    last,
		change1h: pctChange(closes[len(closes)-2], last),
		change4h: pctChange(closes[0], last),
	}, nil
}

func (s *SnapshotSource) fundingRate(ctx context.Context, symbol string) (float64, error) {
	idx, err := s.client.api.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(idx) == 0 {
		return 0, fmt.Errorf("empty premium index for %s", symbol)
	}
	return parseFloat(idx[0].LastFundingRate), nil
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
