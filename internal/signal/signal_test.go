package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenken64/7monthIndicator-sub000/internal/market"
)

type stubCandles struct {
	closes []float64
	err    error
}

func (s *stubCandles) Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	return s.closes, s.err
}

func TestFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid Payload", func(t *testing.T) {
		path := filepath.Join(dir, "vision.json")
		body := `{"action":"BUY","confidence":82,"strength":1.5,"timestamp":"2026-08-29T10:00:00Z","metadata":{"sentiment":1,"ignored":"x"}}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		src := NewVisionSource(path, 10*time.Minute)
		sig, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Buy, sig.Action)
		assert.Equal(t, 82.0, sig.Confidence)
		assert.Equal(t, 1.0, sig.Metadata["sentiment"])
		_, hasIgnored := sig.Metadata["ignored"]
		assert.False(t, hasIgnored)
		assert.Equal(t, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), sig.Timestamp)
	})

	t.Run("Missing File", func(t *testing.T) {
		src := NewPolicySource(filepath.Join(dir, "nope.json"), time.Minute)
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Bad Action", func(t *testing.T) {
		path := filepath.Join(dir, "bad_action.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"action":"LONG","timestamp":"2026-08-29T10:00:00Z"}`), 0o644))

		src := NewAgentsSource(path, time.Minute)
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("Confidence Out Of Range", func(t *testing.T) {
		path := filepath.Join(dir, "bad_conf.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"action":"SELL","confidence":142,"timestamp":"2026-08-29T10:00:00Z"}`), 0o644))

		src := NewNewsSource(path, time.Minute)
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("Not JSON", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

		src := NewPolicySource(path, time.Minute)
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestTechnicalSource_Fetch(t *testing.T) {
	rising := make([]float64, 0, 200)
	price := 100.0
	for i := 0; i < 200; i++ {
		price *= 1.004
		rising = append(rising, price)
	}
	falling := make([]float64, 0, 200)
	price = 100.0
	for i := 0; i < 200; i++ {
		price *= 0.996
		falling = append(falling, price)
	}

	t.Run("Uptrend Buys", func(t *testing.T) {
		src := NewTechnicalSource(TechnicalConfig{Symbol: "BTCUSDT"}, &stubCandles{closes: rising})
		sig, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Buy, sig.Action)
		assert.GreaterOrEqual(t, sig.Confidence, 50.0)
		assert.LessOrEqual(t, sig.Confidence, 90.0)
		assert.Greater(t, sig.Metadata["ema_fast"], sig.Metadata["ema_slow"])
	})

	t.Run("Downtrend Sells", func(t *testing.T) {
		src := NewTechnicalSource(TechnicalConfig{Symbol: "BTCUSDT"}, &stubCandles{closes: falling})
		sig, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Sell, sig.Action)
	})

	t.Run("Insufficient Candles", func(t *testing.T) {
		src := NewTechnicalSource(TechnicalConfig{Symbol: "BTCUSDT"}, &stubCandles{closes: rising[:10]})
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestMarketContextSource_Fetch(t *testing.T) {
	now := time.Now()

	t.Run("Empty History", func(t *testing.T) {
		src := NewMarketContextSource(market.NewHistory(10), nil, time.Minute)
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Both Rising Buys", func(t *testing.T) {
		h := market.NewHistory(10)
		for i := 0; i < 5; i++ {
			h.Append(market.Snapshot{
				Timestamp:   now.Add(time.Duration(i-5) * time.Minute),
				BTCChange1h: float64(i) * 0.3,
				ETHChange1h: float64(i) * 0.4,
				BTCChange4h: 2.5,
				ETHChange4h: 3.1,
			})
		}
		src := NewMarketContextSource(h, nil, time.Minute)
		sig, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Buy, sig.Action)
		assert.Equal(t, 70.0, sig.Confidence)
		assert.Equal(t, 1.0, sig.Metadata["btc_trend"])
		assert.InDelta(t, 1.0, sig.Metadata["correlation"], 1e-9)
	})

	t.Run("Mixed Trend Holds", func(t *testing.T) {
		h := market.NewHistory(10)
		h.Append(market.Snapshot{Timestamp: now, BTCChange4h: 1.0, ETHChange4h: -1.0})
		src := NewMarketContextSource(h, nil, time.Minute)
		sig, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Hold, sig.Action)
	})
}
