package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kenken64/7monthIndicator-sub000/internal/reconcile"
)

// PositionSource reads the live futures position for reconciliation.
type PositionSource struct {
	client *Client
}

func NewPositionSource(client *Client) *PositionSource {
	return &PositionSource{client: client}
}

// NetPosition returns the signed net quantity for symbol: positive long,
// negative short, zero when flat. A symbol with no risk rows is flat, not
// an error.
func (s *PositionSource) NetPosition(ctx context.Context, symbol string) (reconcile.ExchangeView, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return reconcile.ExchangeView{}, fmt.Errorf("symbol is required")
	}
	risks, err := s.client.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return reconcile.ExchangeView{}, fmt.Errorf("position risk for %s: %w", symbol, err)
	}

	view := reconcile.ExchangeView{
		NetQuantity: decimal.Zero,
		EntryPrice:  decimal.Zero,
		MarkPrice:   decimal.Zero,
	}
	for _, r := range risks {
		if r == nil || r.Symbol != symbol {
			continue
		}
		amt, err := decimal.NewFromString(strings.TrimSpace(r.PositionAmt))
		if err != nil {
			return reconcile.ExchangeView{}, fmt.Errorf("parse position amount %q: %w", r.PositionAmt, err)
		}
		view.NetQuantity = view.NetQuantity.Add(amt)
		if !amt.IsZero() {
			if entry, err := decimal.NewFromString(strings.TrimSpace(r.EntryPrice)); err == nil {
				view.EntryPrice = entry
			}
		}
		if mark, err := decimal.NewFromString(strings.TrimSpace(r.MarkPrice)); err == nil && !mark.IsZero() {
			view.MarkPrice = mark
		}
	}
	if view.MarkPrice.IsZero() {
		mark, err := s.markPrice(ctx, symbol)
		if err != nil {
			return reconcile.ExchangeView{}, err
		}
		view.MarkPrice = mark
	}
	return view, nil
}

func (s *PositionSource) markPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := s.client.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("mark price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return decimal.NewFromString(strings.TrimSpace(prices[0].Price))
}
