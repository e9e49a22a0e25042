package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// ResultStore keeps completed replay runs in their own SQLite database,
// separate from the live ledger.
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "backtests.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureRunSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureRunSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			initial_balance REAL NOT NULL,
			final_balance REAL NOT NULL,
			roi REAL NOT NULL,
			win_rate REAL NOT NULL,
			profit_factor REAL NOT NULL,
			sharpe REAL NOT NULL,
			max_drawdown REAL NOT NULL,
			max_drawdown_pct REAL NOT NULL,
			trades INTEGER NOT NULL,
			weights_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure run schema: %w", err)
		}
	}
	return nil
}

// RunRecord is one persisted replay summary row.
type RunRecord struct {
	ID             string
	Label          string
	Start          time.Time
	End            time.Time
	Steps          int
	InitialBalance float64
	FinalBalance   float64
	Weights        map[string]float64
	Metrics        Metrics
	CreatedAt      time.Time
}

// SaveRun persists a completed replay summary and returns its id.
func (s *ResultStore) SaveRun(ctx context.Context, label string, res Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return "", fmt.Errorf("result store closed")
	}

	weights, err := json.Marshal(res.Config.Aggregator.Weights)
	if err != nil {
		return "", fmt.Errorf("marshal weights: %w", err)
	}
	var start, end int64
	if len(res.Equity) > 0 {
		start = res.Equity[0].Timestamp.Unix()
		end = res.Equity[len(res.Equity)-1].Timestamp.Unix()
	}

	id := uuid.NewString()
	// SQLite has no Inf; store profit factor as -1 to mean "no losses".
	pf := res.Metrics.ProfitFactor
	if pf > 1e12 {
		pf = -1
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO backtest_runs
		(id, label, start_ts, end_ts, steps, initial_balance, final_balance,
		 roi, win_rate, profit_factor, sharpe, max_drawdown, max_drawdown_pct,
		 trades, weights_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, label, start, end, len(res.Equity),
		res.Config.InitialBalance, res.FinalBalance,
		res.Metrics.ROI, res.Metrics.WinRate, pf, res.Metrics.Sharpe,
		res.MaxDrawdown, res.MaxDrawdownPct,
		res.Metrics.Trades, string(weights), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// ListRuns returns recent runs, newest first.
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("result store closed")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, label, start_ts, end_ts, steps,
		initial_balance, final_balance, roi, win_rate, profit_factor, sharpe,
		max_drawdown, max_drawdown_pct, trades, weights_json, created_at
		FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var startTS, endTS, ctime int64
		var weightsJSON string
		if err := rows.Scan(&rec.ID, &rec.Label, &startTS, &endTS, &rec.Steps,
			&rec.InitialBalance, &rec.FinalBalance,
			&rec.Metrics.ROI, &rec.Metrics.WinRate, &rec.Metrics.ProfitFactor, &rec.Metrics.Sharpe,
			&rec.Metrics.MaxDrawdown, &rec.Metrics.MaxDrawdownPct,
			&rec.Metrics.Trades, &weightsJSON, &ctime); err != nil {
			return nil, err
		}
		rec.Start = time.Unix(startTS, 0).UTC()
		rec.End = time.Unix(endTS, 0).UTC()
		rec.CreatedAt = time.Unix(ctime, 0).UTC()
		if rec.Metrics.ProfitFactor < 0 {
			// Stored as -1 to mean "no losing trades".
			rec.Metrics.ProfitFactor = math.Inf(1)
		}
		if err := json.Unmarshal([]byte(weightsJSON), &rec.Weights); err != nil {
			return nil, fmt.Errorf("decode weights for run %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
