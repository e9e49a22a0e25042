package market

import (
	"context"
	"time"
)

// Snapshot is an immutable view of the broad market at one poll instant.
// Optional fields are pointers: an absent value is valid and must never fail
// a threshold evaluation, the corresponding rule is simply skipped.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	BTCPrice    float64 `json:"btc_price"`
	ETHPrice    float64 `json:"eth_price"`
	BTCChange1h float64 `json:"btc_change_1h"`
	ETHChange1h float64 `json:"eth_change_1h"`
	BTCChange4h float64 `json:"btc_change_4h"`
	ETHChange4h float64 `json:"eth_change_4h"`

	MarketCapChange4h *float64 `json:"market_cap_change_4h,omitempty"`
	Liquidations1h    *float64 `json:"liquidations_1h,omitempty"`
	FundingRate       *float64 `json:"funding_rate,omitempty"`
	FearGreedIndex    *int     `json:"fear_greed_index,omitempty"`
}

// SnapshotSource supplies periodic market snapshots. Implementations must
// honor the context deadline; a slow exchange call may not stall the breaker
// loop past its own interval.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (Snapshot, error)
}
