package market

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapAt(t time.Time, btc1h float64) Snapshot {
	return Snapshot{Timestamp: t, BTCChange1h: btc1h}
}

func TestHistory_LatestAndLen(t *testing.T) {
	h := NewHistory(10)
	_, ok := h.Latest()
	assert.False(t, ok)

	base := time.Now()
	h.Append(snapAt(base, -1))
	h.Append(snapAt(base.Add(time.Minute), -2))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, -2.0, latest.BTCChange1h)
	assert.Equal(t, 2, h.Len())
}

func TestHistory_EvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		h.Append(snapAt(base.Add(time.Duration(i)*time.Minute), float64(i)))
	}
	assert.Equal(t, 3, h.Len())

	all := h.Since(time.Time{})
	require.Len(t, all, 3)
	assert.Equal(t, 2.0, all[0].BTCChange1h)
	assert.Equal(t, 4.0, all[2].BTCChange1h)
}

func TestHistory_SinceIsInclusive(t *testing.T) {
	h := NewHistory(10)
	base := time.Now()
	h.Append(snapAt(base, 0))
	h.Append(snapAt(base.Add(time.Minute), 1))
	h.Append(snapAt(base.Add(2*time.Minute), 2))

	got := h.Since(base.Add(time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].BTCChange1h)

	assert.Empty(t, h.Since(base.Add(time.Hour)))
}

func TestFearGreed_RefreshAndCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"value":"25","value_classification":"Extreme Fear","timestamp":"1700000000"}],"metadata":{"error":null}}`))
	}))
	defer srv.Close()

	svc := NewFearGreedService()
	svc.endpoint = srv.URL

	_, ok := svc.Get()
	assert.False(t, ok, "no data before first refresh")

	svc.RefreshIfStale(t.Context())
	data, ok := svc.Get()
	require.True(t, ok)
	assert.Equal(t, 25, data.Value)
	assert.Equal(t, "Extreme Fear", data.Classification)

	// Within the update window a second call must not hit the endpoint.
	svc.RefreshIfStale(t.Context())
	assert.Equal(t, 1, calls)
}
