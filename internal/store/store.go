package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kenken64/7monthIndicator-sub000/internal/aggregator"
	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
	"github.com/kenken64/7monthIndicator-sub000/internal/market"
	"github.com/kenken64/7monthIndicator-sub000/internal/reconcile"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
	"github.com/kenken64/7monthIndicator-sub000/internal/store/model"

	"github.com/shopspring/decimal"
)

// ErrNotFound marks an empty query result.
var ErrNotFound = errors.New("store: not found")

// Store is the SQLite-backed ledger shared by the breaker, the aggregator
// and the reconciler.
type Store struct {
	db *gorm.DB
}

// New opens (and migrates) the ledger database at path.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.SignalModel{},
		&model.DecisionModel{},
		&model.PositionModel{},
		&model.BreakerEventModel{},
		&model.MarketContextModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads, low lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- aggregator.Recorder ----

func (s *Store) SaveSignal(ctx context.Context, cycleID, source string, sig signal.Signal, price float64) error {
	meta, err := json.Marshal(sig.Metadata)
	if err != nil {
		return fmt.Errorf("marshal %s metadata: %w", source, err)
	}
	now := time.Now().Unix()
	row := model.SignalModel{
		CycleID:       cycleID,
		Source:        source,
		Action:        string(sig.Action),
		Strength:      sig.Strength,
		Confidence:    sig.Confidence,
		Price:         price,
		Metadata:      datatypes.JSON(meta),
		SignalTime:    sig.Timestamp.Unix(),
		CreatedAtUnix: now,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) SaveDecision(ctx context.Context, cycleID string, d aggregator.Decision) error {
	breakdown, err := json.Marshal(d.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	row := model.DecisionModel{
		CycleID:       cycleID,
		Action:        string(d.Action),
		Score:         d.Score,
		Confidence:    d.Confidence,
		Breakdown:     datatypes.JSON(breakdown),
		DecisionTime:  d.Timestamp.Unix(),
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// DecisionRecord pairs a stored decision with its cycle id.
type DecisionRecord struct {
	CycleID  string
	Decision aggregator.Decision
}

func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.DecisionModel
	if err := s.db.WithContext(ctx).
		Order("decision_time DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]DecisionRecord, 0, len(rows))
	for _, row := range rows {
		d, err := decodeDecision(row)
		if err != nil {
			return nil, err
		}
		out = append(out, DecisionRecord{CycleID: row.CycleID, Decision: d})
	}
	return out, nil
}

func (s *Store) LatestDecision(ctx context.Context) (DecisionRecord, error) {
	rows, err := s.RecentDecisions(ctx, 1)
	if err != nil {
		return DecisionRecord{}, err
	}
	if len(rows) == 0 {
		return DecisionRecord{}, ErrNotFound
	}
	return rows[0], nil
}

func decodeDecision(row model.DecisionModel) (aggregator.Decision, error) {
	d := aggregator.Decision{
		Action:     signal.Action(row.Action),
		Score:      row.Score,
		Confidence: row.Confidence,
		Timestamp:  time.Unix(row.DecisionTime, 0).UTC(),
	}
	if len(row.Breakdown) > 0 {
		if err := json.Unmarshal(row.Breakdown, &d.Breakdown); err != nil {
			return aggregator.Decision{}, fmt.Errorf("decode breakdown for cycle %s: %w", row.CycleID, err)
		}
	}
	return d, nil
}

// ---- reconcile.Ledger ----

func (s *Store) InsertPosition(ctx context.Context, p reconcile.Position, cycleID, orderID string) (int64, error) {
	now := time.Now().Unix()
	row := model.PositionModel{
		Symbol:        p.Symbol,
		Side:          p.Side,
		Quantity:      p.Quantity.InexactFloat64(),
		EntryPrice:    p.EntryPrice.InexactFloat64(),
		Status:        model.PositionStatusOpen,
		CycleID:       cycleID,
		OrderID:       orderID,
		OpenedAtUnix:  p.OpenedAt.Unix(),
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// OpenPositions returns OPEN rows for a symbol, oldest first.
func (s *Store) OpenPositions(ctx context.Context, symbol string) ([]reconcile.Position, error) {
	var rows []model.PositionModel
	if err := s.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.PositionStatusOpen).
		Order("opened_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]reconcile.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, reconcile.Position{
			ID:         row.ID,
			Symbol:     row.Symbol,
			Side:       row.Side,
			Quantity:   decimal.NewFromFloat(row.Quantity),
			EntryPrice: decimal.NewFromFloat(row.EntryPrice),
			OpenedAt:   time.Unix(row.OpenedAtUnix, 0).UTC(),
		})
	}
	return out, nil
}

// ClosePosition marks one OPEN row CLOSED. A second close of the same row
// is a no-op at the database level.
func (s *Store) ClosePosition(ctx context.Context, c reconcile.Closure) error {
	exit := c.ExitPrice.InexactFloat64()
	pnl := c.PnL.InexactFloat64()
	closedAt := time.Now().Unix()
	res := s.db.WithContext(ctx).Model(&model.PositionModel{}).
		Where("id = ? AND status = ?", c.Position.ID, model.PositionStatusOpen).
		Updates(map[string]any{
			"status":      model.PositionStatusClosed,
			"exit_price":  exit,
			"pnl":         pnl,
			"exit_reason": c.Reason,
			"closed_at":   closedAt,
			"updated_at":  closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("close position %d: %w", c.Position.ID, ErrNotFound)
	}
	return nil
}

// ---- breaker.EventStore / breaker.ContextStore ----

func (s *Store) AppendBreakerEvent(ctx context.Context, ev breaker.Event) error {
	snap, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	actions, err := json.Marshal(ev.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	row := model.BreakerEventModel{
		EventID:          ev.ID,
		State:            string(ev.State),
		Reason:           ev.Reason,
		Snapshot:         datatypes.JSON(snap),
		Actions:          datatypes.JSON(actions),
		CapitalProtected: ev.CapitalProtected,
		EventTime:        ev.Timestamp.Unix(),
		CreatedAtUnix:    time.Now().Unix(),
	}
	if ev.RecoveryDuration > 0 {
		secs := ev.RecoveryDuration.Seconds()
		row.RecoverySeconds = &secs
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) UpdateBreakerRecovery(ctx context.Context, eventID string, d time.Duration, capitalProtected *float64) error {
	secs := d.Seconds()
	updates := map[string]any{"recovery_seconds": secs}
	if capitalProtected != nil {
		updates["capital_protected"] = *capitalProtected
	}
	return s.db.WithContext(ctx).Model(&model.BreakerEventModel{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

func (s *Store) RecentBreakerEvents(ctx context.Context, limit int) ([]breaker.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.BreakerEventModel
	if err := s.db.WithContext(ctx).
		Order("event_time DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]breaker.Event, 0, len(rows))
	for _, row := range rows {
		ev := breaker.Event{
			ID:               row.EventID,
			State:            breaker.State(row.State),
			Reason:           row.Reason,
			Timestamp:        time.Unix(row.EventTime, 0).UTC(),
			CapitalProtected: row.CapitalProtected,
		}
		if len(row.Snapshot) > 0 {
			if err := json.Unmarshal(row.Snapshot, &ev.Snapshot); err != nil {
				return nil, fmt.Errorf("decode snapshot for event %s: %w", row.EventID, err)
			}
		}
		if len(row.Actions) > 0 {
			if err := json.Unmarshal(row.Actions, &ev.Actions); err != nil {
				return nil, fmt.Errorf("decode actions for event %s: %w", row.EventID, err)
			}
		}
		if row.RecoverySeconds != nil {
			ev.RecoveryDuration = time.Duration(*row.RecoverySeconds * float64(time.Second))
		}
		out = append(out, ev)
	}
	return out, nil
}

// BreakerStats summarizes the trigger history for reporting.
type BreakerStats struct {
	Triggers        int
	Resumes         int
	AvgRecovery     time.Duration
	LastTriggerTime *time.Time
}

func (s *Store) BreakerStats(ctx context.Context) (BreakerStats, error) {
	var rows []model.BreakerEventModel
	if err := s.db.WithContext(ctx).Order("event_time ASC").Find(&rows).Error; err != nil {
		return BreakerStats{}, err
	}
	var stats BreakerStats
	var totalRecovery float64
	for _, row := range rows {
		switch breaker.State(row.State) {
		case breaker.StateTriggered:
			stats.Triggers++
			t := time.Unix(row.EventTime, 0).UTC()
			stats.LastTriggerTime = &t
			if row.RecoverySeconds != nil {
				totalRecovery += *row.RecoverySeconds
			}
		case breaker.StateSafe:
			stats.Resumes++
		}
	}
	if stats.Triggers > 0 && totalRecovery > 0 {
		stats.AvgRecovery = time.Duration(totalRecovery / float64(stats.Triggers) * float64(time.Second))
	}
	return stats, nil
}

func (s *Store) SaveMarketContext(ctx context.Context, snap market.Snapshot) error {
	row := model.MarketContextModel{
		BTCPrice:          snap.BTCPrice,
		ETHPrice:          snap.ETHPrice,
		BTCChange1h:       snap.BTCChange1h,
		BTCChange4h:       snap.BTCChange4h,
		ETHChange1h:       snap.ETHChange1h,
		ETHChange4h:       snap.ETHChange4h,
		MarketCapChange4h: snap.MarketCapChange4h,
		Liquidations1h:    snap.Liquidations1h,
		FundingRate:       snap.FundingRate,
		FearGreedIndex:    snap.FearGreedIndex,
		SnapshotTime:      snap.Timestamp.Unix(),
		CreatedAtUnix:     time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ---- backtest input ----

// SignalCycle is one historical decision instant: every signal persisted
// for a cycle plus the traded symbol's price in effect at that time.
type SignalCycle struct {
	CycleID   string
	Timestamp time.Time
	Price     float64
	Signals   map[string]signal.Signal
}

// LoadSignalCycles rebuilds the time-ordered signal log between from and
// to. The price attached to each cycle is the one captured on its signal
// rows at decision time; cycles with no captured price carry zero.
func (s *Store) LoadSignalCycles(ctx context.Context, from, to time.Time) ([]SignalCycle, error) {
	var sigRows []model.SignalModel
	if err := s.db.WithContext(ctx).
		Where("signal_time >= ? AND signal_time <= ?", from.Unix(), to.Unix()).
		Order("signal_time ASC, id ASC").
		Find(&sigRows).Error; err != nil {
		return nil, err
	}

	byCycle := map[string]*SignalCycle{}
	order := make([]string, 0)
	for _, row := range sigRows {
		cycle, ok := byCycle[row.CycleID]
		if !ok {
			cycle = &SignalCycle{
				CycleID:   row.CycleID,
				Timestamp: time.Unix(row.SignalTime, 0).UTC(),
				Signals:   map[string]signal.Signal{},
			}
			byCycle[row.CycleID] = cycle
			order = append(order, row.CycleID)
		}
		sig := signal.Signal{
			Action:     signal.Action(row.Action),
			Strength:   row.Strength,
			Confidence: row.Confidence,
			Timestamp:  time.Unix(row.SignalTime, 0).UTC(),
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &sig.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for cycle %s source %s: %w", row.CycleID, row.Source, err)
			}
		}
		cycle.Signals[row.Source] = sig
		if row.Price > 0 {
			cycle.Price = row.Price
		}
	}

	out := make([]SignalCycle, 0, len(order))
	for _, id := range order {
		out = append(out, *byCycle[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
