package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// LastPrice returns the most recent traded price for symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("symbol is required")
	}
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("last price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return decimal.NewFromString(strings.TrimSpace(prices[0].Price))
}
