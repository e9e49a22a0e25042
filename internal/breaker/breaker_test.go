package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenken64/7monthIndicator-sub000/internal/market"
)

type memEventStore struct {
	events    []Event
	recovered map[string]time.Duration
	failNext  bool
}

func newMemEventStore() *memEventStore {
	return &memEventStore{recovered: map[string]time.Duration{}}
}

func (s *memEventStore) AppendBreakerEvent(ctx context.Context, ev Event) error {
	if s.failNext {
		s.failNext = false
		return assert.AnError
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memEventStore) UpdateBreakerRecovery(ctx context.Context, eventID string, d time.Duration, capitalProtected *float64) error {
	s.recovered[eventID] = d
	return nil
}

func snapshotWith(mut func(*market.Snapshot)) market.Snapshot {
	snap := market.Snapshot{Timestamp: time.Now(), BTCPrice: 60000, ETHPrice: 3000}
	if mut != nil {
		mut(&snap)
	}
	return snap
}

func TestBreaker_Evaluate(t *testing.T) {
	b := New(DefaultConfig(), nil, nil)

	t.Run("Calm Market", func(t *testing.T) {
		trig, reason := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.BTCChange1h = -3
			s.ETHChange4h = -4
		}))
		assert.False(t, trig)
		assert.Empty(t, reason)
	})

	t.Run("Exact Threshold Triggers", func(t *testing.T) {
		trig, reason := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.BTCChange1h = -15.0
		}))
		assert.True(t, trig)
		assert.Contains(t, reason, "BTC 1h")
	})

	t.Run("Just Below Threshold", func(t *testing.T) {
		trig, _ := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.BTCChange1h = -14.99
		}))
		assert.False(t, trig)
	})

	t.Run("Rise Never Triggers", func(t *testing.T) {
		trig, _ := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.BTCChange1h = 25
			s.ETHChange1h = 30
		}))
		assert.False(t, trig)
	})

	t.Run("First Matching Rule Wins", func(t *testing.T) {
		trig, reason := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.BTCChange1h = -16
			s.ETHChange1h = -18
		}))
		assert.True(t, trig)
		assert.Contains(t, reason, "BTC 1h")
	})

	t.Run("Optional Fields Skipped When Absent", func(t *testing.T) {
		trig, _ := b.Evaluate(snapshotWith(nil))
		assert.False(t, trig)
	})

	t.Run("Liquidation Volume", func(t *testing.T) {
		vol := 600_000_000.0
		trig, reason := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.Liquidations1h = &vol
		}))
		assert.True(t, trig)
		assert.Contains(t, reason, "liquidations")
	})

	t.Run("Market Cap Drop", func(t *testing.T) {
		drop := -21.0
		trig, reason := b.Evaluate(snapshotWith(func(s *market.Snapshot) {
			s.MarketCapChange4h = &drop
		}))
		assert.True(t, trig)
		assert.Contains(t, reason, "market cap")
	})
}

func TestBreaker_TriggerIdempotence(t *testing.T) {
	store := newMemEventStore()
	b := New(DefaultConfig(), nil, store)

	snap := snapshotWith(func(s *market.Snapshot) { s.BTCChange1h = -16 })
	ev, err := b.Trigger(context.Background(), "first reason", snap, []string{"halt_trading"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, StateTriggered, b.State())

	_, err = b.Trigger(context.Background(), "second reason", snap, nil)
	assert.ErrorIs(t, err, ErrAlreadyTriggered)
	assert.Equal(t, "first reason", b.Status().TriggerReason)
	assert.Len(t, store.events, 1)
}

func TestBreaker_PersistenceFailureDoesNotBlock(t *testing.T) {
	store := newMemEventStore()
	store.failNext = true
	b := New(DefaultConfig(), nil, store)

	_, err := b.Trigger(context.Background(), "crash", snapshotWith(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, StateTriggered, b.State())
	assert.Empty(t, store.events)
}

func TestBreaker_Warning(t *testing.T) {
	b := New(DefaultConfig(), nil, nil)

	b.SetWarning("elevated volatility")
	assert.Equal(t, StateWarning, b.State())

	_, err := b.Trigger(context.Background(), "crash", snapshotWith(nil), nil)
	require.NoError(t, err)
	b.SetWarning("ignored")
	assert.Equal(t, StateTriggered, b.State())
}

func TestBreaker_RecoveryFlow(t *testing.T) {
	history := market.NewHistory(100)
	store := newMemEventStore()
	b := New(DefaultConfig(), history, store)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	b.nowFn = func() time.Time { return now }

	calm := snapshotWith(func(s *market.Snapshot) { s.BTCChange1h = -0.5 })

	t.Run("Not Triggered", func(t *testing.T) {
		ok, reason := b.CheckRecovery(calm)
		assert.False(t, ok)
		assert.Equal(t, "not triggered", reason)
	})

	crash := snapshotWith(func(s *market.Snapshot) { s.BTCChange1h = -16 })
	_, err := b.Trigger(context.Background(), "BTC crash", crash, nil)
	require.NoError(t, err)
	assert.Equal(t, "BTC", b.Status().TriggerAsset)

	t.Run("Stabilization Pending", func(t *testing.T) {
		now = now.Add(10 * time.Minute)
		ok, reason := b.CheckRecovery(calm)
		assert.False(t, ok)
		assert.Contains(t, reason, "stabilization")
		assert.Equal(t, StateTriggered, b.State())
	})

	t.Run("Window Opens While Still Dropping", func(t *testing.T) {
		now = now.Add(25 * time.Minute)
		dropping := snapshotWith(func(s *market.Snapshot) { s.BTCChange1h = -3 })
		ok, reason := b.CheckRecovery(dropping)
		assert.False(t, ok)
		assert.Contains(t, reason, "still dropping")
		assert.Equal(t, StateRecovering, b.State())
		require.NotNil(t, b.Status().RecoveryStart)
	})

	t.Run("Volatile Reading Falls Back To Triggered", func(t *testing.T) {
		history.Append(market.Snapshot{Timestamp: now.Add(time.Minute), BTCChange1h: -7})
		now = now.Add(2 * time.Minute)

		ok, reason := b.CheckRecovery(calm)
		assert.False(t, ok)
		assert.Contains(t, reason, "volatile")
		assert.Equal(t, StateTriggered, b.State())
		assert.Nil(t, b.Status().RecoveryStart)
	})

	t.Run("Recovered", func(t *testing.T) {
		now = now.Add(5 * time.Minute)
		ok, reason := b.CheckRecovery(calm)
		assert.True(t, ok)
		assert.Equal(t, "market stabilized", reason)
	})

	t.Run("Resume", func(t *testing.T) {
		ev, err := b.Resume(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, StateSafe, ev.State)
		assert.Equal(t, StateSafe, b.State())
		assert.Nil(t, b.Status().TriggerTime)
		assert.Len(t, store.recovered, 1)

		_, err = b.Resume(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNotTriggered)
	})
}

type stubSnapshotSource struct {
	snap market.Snapshot
	err  error
}

func (s *stubSnapshotSource) FetchSnapshot(ctx context.Context) (market.Snapshot, error) {
	return s.snap, s.err
}

func TestMonitor_RunOnce(t *testing.T) {
	t.Run("Trigger On Crash", func(t *testing.T) {
		history := market.NewHistory(10)
		b := New(DefaultConfig(), history, newMemEventStore())
		src := &stubSnapshotSource{snap: snapshotWith(func(s *market.Snapshot) { s.BTCChange1h = -16 })}

		NewMonitor(src, b, history).RunOnce(context.Background())
		assert.Equal(t, StateTriggered, b.State())
		assert.Equal(t, 1, history.Len())
	})

	t.Run("Warning Below Trigger", func(t *testing.T) {
		history := market.NewHistory(10)
		b := New(DefaultConfig(), history, newMemEventStore())
		src := &stubSnapshotSource{snap: snapshotWith(func(s *market.Snapshot) { s.BTCChange1h = -13 })}

		NewMonitor(src, b, history).RunOnce(context.Background())
		assert.Equal(t, StateWarning, b.State())
	})

	t.Run("Fetch Failure Leaves State Alone", func(t *testing.T) {
		history := market.NewHistory(10)
		b := New(DefaultConfig(), history, newMemEventStore())
		src := &stubSnapshotSource{err: assert.AnError}

		NewMonitor(src, b, history).RunOnce(context.Background())
		assert.Equal(t, StateSafe, b.State())
		assert.Equal(t, 0, history.Len())
	})
}
