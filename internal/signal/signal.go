package signal

import (
	"context"
	"errors"
	"time"
)

// Action is the normalized opinion every source must emit.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

func (a Action) Valid() bool {
	switch a {
	case Buy, Sell, Hold:
		return true
	}
	return false
}

// Canonical source names used as weight keys in configuration and as the
// per-source keys of a decision breakdown.
const (
	SourceTechnical = "technical"
	SourcePolicy    = "policy"
	SourceVision    = "vision"
	SourceAgents    = "agents"
	SourceMarket    = "market"
	SourceNews      = "news"
)

// KnownSources lists every source name the scoring layer understands,
// in breakdown display order.
var KnownSources = []string{
	SourceTechnical, SourcePolicy, SourceVision,
	SourceAgents, SourceMarket, SourceNews,
}

// Signal is the contract every scoring source normalizes to.
//
// Metadata is best-effort and source-specific: scoring reads the keys it
// knows about (rsi, macd, sentiment, spike, btc_trend, ...) and ignores the
// rest. It is not part of the stable contract.
type Signal struct {
	Action     Action             `json:"action"`
	Strength   float64            `json:"strength"`
	Confidence float64            `json:"confidence"` // 0..100
	Metadata   map[string]float64 `json:"metadata,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Neutral returns the degraded stand-in used when a source is missing,
// stale or timed out: HOLD with no conviction.
func Neutral(now time.Time) Signal {
	return Signal{Action: Hold, Confidence: 0, Timestamp: now}
}

// Source is the pull contract consumed by the aggregator. Fetch either
// returns the most recent signal or a typed error; "no opinion yet" is
// ErrNoOpinion, not a zero-value success.
type Source interface {
	Name() string
	TTL() time.Duration
	Fetch(ctx context.Context) (Signal, error)
}

var (
	// ErrUnavailable marks a network/timeout failure. The caller degrades
	// the source to neutral instead of failing the cycle.
	ErrUnavailable = errors.New("signal source unavailable")

	// ErrNoOpinion marks a source that is reachable but has produced no
	// signal yet (e.g. first run, empty payload file).
	ErrNoOpinion = errors.New("signal source has no opinion yet")

	// ErrInvalidPayload marks a payload that failed contract validation.
	ErrInvalidPayload = errors.New("signal payload invalid")
)
