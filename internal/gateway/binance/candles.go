package binance

import (
	"context"
	"fmt"
	"strings"
)

const maxKlineLimit = 1500

// Closes returns recent closing prices for a symbol, oldest first. It
// implements the candle feed consumed by the technical signal source.
func (c *Client) Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		interval = "1h"
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	kls, err := c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}
	closes := make([]float64, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		closes = append(closes, parseFloat(kl.Close))
	}
	return closes, nil
}
