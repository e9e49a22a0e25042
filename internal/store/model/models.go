package model

import (
	"gorm.io/datatypes"
)

type PositionStatus int

const (
	PositionStatusOpen   PositionStatus = 1
	PositionStatusClosed PositionStatus = 2
)

// SignalModel is one persisted source signal, keyed by the decision cycle
// that consumed it.
type SignalModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CycleID       string         `gorm:"column:cycle_id;index:idx_signals_cycle"`
	Source        string         `gorm:"column:source"`
	Action        string         `gorm:"column:action"`
	Strength      float64        `gorm:"column:strength"`
	Confidence    float64        `gorm:"column:confidence"`
	Price         float64        `gorm:"column:price"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:TEXT"`
	SignalTime    int64          `gorm:"column:signal_time;index:idx_signals_time"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (SignalModel) TableName() string { return "signals" }

// DecisionModel is one immutable aggregation result with its full
// per-source breakdown.
type DecisionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CycleID       string         `gorm:"column:cycle_id;uniqueIndex"`
	Action        string         `gorm:"column:action"`
	Score         float64        `gorm:"column:score"`
	Confidence    float64        `gorm:"column:confidence"`
	Breakdown     datatypes.JSON `gorm:"column:breakdown;type:TEXT"`
	DecisionTime  int64          `gorm:"column:decision_time;index:idx_decisions_time"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (DecisionModel) TableName() string { return "decisions" }

// PositionModel is one ledger row. Status moves OPEN to CLOSED exactly once.
type PositionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;index:idx_positions_symbol"`
	Side          string         `gorm:"column:side"`
	Quantity      float64        `gorm:"column:quantity"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	ExitPrice     *float64       `gorm:"column:exit_price"`
	PnL           *float64       `gorm:"column:pnl"`
	Status        PositionStatus `gorm:"column:status;index:idx_positions_status"`
	CycleID       string         `gorm:"column:cycle_id"`
	OrderID       string         `gorm:"column:order_id"`
	ExitReason    string         `gorm:"column:exit_reason"`
	OpenedAtUnix  int64          `gorm:"column:opened_at"`
	ClosedAtUnix  *int64         `gorm:"column:closed_at"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// BreakerEventModel is the append-only circuit breaker transition log.
type BreakerEventModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	EventID          string         `gorm:"column:event_id;uniqueIndex"`
	State            string         `gorm:"column:state"`
	Reason           string         `gorm:"column:reason"`
	Snapshot         datatypes.JSON `gorm:"column:snapshot;type:TEXT"`
	Actions          datatypes.JSON `gorm:"column:actions;type:TEXT"`
	RecoverySeconds  *float64       `gorm:"column:recovery_seconds"`
	CapitalProtected *float64       `gorm:"column:capital_protected"`
	EventTime        int64          `gorm:"column:event_time;index:idx_breaker_events_time"`
	CreatedAtUnix    int64          `gorm:"column:created_at"`
}

func (BreakerEventModel) TableName() string { return "breaker_events" }

// MarketContextModel is one persisted market snapshot.
type MarketContextModel struct {
	ID                int64    `gorm:"column:id;primaryKey"`
	BTCPrice          float64  `gorm:"column:btc_price"`
	ETHPrice          float64  `gorm:"column:eth_price"`
	BTCChange1h       float64  `gorm:"column:btc_change_1h"`
	BTCChange4h       float64  `gorm:"column:btc_change_4h"`
	ETHChange1h       float64  `gorm:"column:eth_change_1h"`
	ETHChange4h       float64  `gorm:"column:eth_change_4h"`
	MarketCapChange4h *float64 `gorm:"column:market_cap_change_4h"`
	Liquidations1h    *float64 `gorm:"column:liquidations_1h"`
	FundingRate       *float64 `gorm:"column:funding_rate"`
	FearGreedIndex    *int     `gorm:"column:fear_greed_index"`
	SnapshotTime      int64    `gorm:"column:snapshot_time;index:idx_market_context_time"`
	CreatedAtUnix     int64    `gorm:"column:created_at"`
}

func (MarketContextModel) TableName() string { return "market_context" }
