package enginehttp

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kenken64/7monthIndicator-sub000/internal/backtest"
	"github.com/kenken64/7monthIndicator-sub000/internal/breaker"
	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/store"
)

// PauseReader reports whether the manual trade pause is active.
type PauseReader interface {
	Paused() bool
}

// Router serves engine status, decision history and backtest runs.
type Router struct {
	Breaker     *breaker.Breaker
	Store       *store.Store
	Results     *backtest.ResultStore
	Pause       PauseReader
	Symbol      string
	BacktestCfg backtest.Config
	ReportDir   string
}

// Register mounts all routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/positions", r.handlePositions)
	group.GET("/breaker/events", r.handleBreakerEvents)
	group.POST("/breaker/resume", r.handleBreakerResume)
	group.POST("/backtest/runs", r.handleBacktestRun)
	group.GET("/backtest/runs", r.handleBacktestRuns)
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := gin.H{}
	if r.Breaker != nil {
		st := r.Breaker.Status()
		bs := gin.H{"state": string(st.State)}
		if st.TriggerTime != nil {
			bs["trigger_time"] = st.TriggerTime.Format(time.RFC3339)
			bs["trigger_reason"] = st.TriggerReason
			bs["trigger_asset"] = st.TriggerAsset
		}
		if st.RecoveryStart != nil {
			bs["recovery_start"] = st.RecoveryStart.Format(time.RFC3339)
		}
		resp["breaker"] = bs
	}
	if r.Pause != nil {
		resp["paused"] = r.Pause.Paused()
	}
	if r.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		rec, err := r.Store.LatestDecision(ctx)
		switch {
		case err == nil:
			resp["last_decision"] = gin.H{"cycle_id": rec.CycleID, "decision": rec.Decision}
		case errors.Is(err, store.ErrNotFound):
		default:
			logger.Warnf("[api] status latest decision failed ip=%s err=%v", c.ClientIP(), err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision store unavailable"})
		return
	}
	limit := queryInt(c, "limit", 20)
	if limit > 500 {
		limit = 500
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	recs, err := r.Store.RecentDecisions(ctx, limit)
	if err != nil {
		logger.Errorf("[api] decisions list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{"cycle_id": rec.CycleID, "decision": rec.Decision})
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out, "count": len(out)})
}

func (r *Router) handlePositions(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "position store unavailable"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("symbol", r.Symbol)))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	positions, err := r.Store.OpenPositions(ctx, symbol)
	if err != nil {
		logger.Errorf("[api] open positions failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "positions": positions, "count": len(positions)})
}

func (r *Router) handleBreakerEvents(c *gin.Context) {
	if r.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store unavailable"})
		return
	}
	limit := queryInt(c, "limit", 50)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	events, err := r.Store.RecentBreakerEvents(ctx, limit)
	if err != nil {
		logger.Errorf("[api] breaker events failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"events": events}
	if stats, err := r.Store.BreakerStats(ctx); err == nil {
		resp["stats"] = gin.H{
			"triggers":          stats.Triggers,
			"resumes":           stats.Resumes,
			"avg_recovery_secs": stats.AvgRecovery.Seconds(),
			"last_trigger_time": stats.LastTriggerTime,
		}
	} else {
		logger.Warnf("[api] breaker stats failed ip=%s err=%v", c.ClientIP(), err)
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleBreakerResume(c *gin.Context) {
	if r.Breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "breaker unavailable"})
		return
	}
	ev, err := r.Breaker.Resume(c.Request.Context(), nil)
	if err != nil {
		if errors.Is(err, breaker.ErrNotTriggered) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] breaker resume failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] breaker resumed manually ip=%s event=%s", c.ClientIP(), ev.ID)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "event": ev})
}

type backtestRunRequest struct {
	FromTS int64  `json:"from_ts" binding:"required"`
	ToTS   int64  `json:"to_ts" binding:"required"`
	Label  string `json:"label"`
	Sweep  bool   `json:"sweep"`
	Report bool   `json:"report"`
}

func (r *Router) handleBacktestRun(c *gin.Context) {
	if r.Store == nil || r.Results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest store unavailable"})
		return
	}
	var req backtestRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from := time.Unix(req.FromTS, 0)
	to := time.Unix(req.ToTS, 0)
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_ts must be after from_ts"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	cycles, err := r.Store.LoadSignalCycles(ctx, from, to)
	if err != nil {
		logger.Errorf("[api] backtest load cycles failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	steps := stepsFromCycles(cycles)
	if len(steps) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no priced signal cycles in range"})
		return
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = "manual"
	}
	cfg := r.BacktestCfg

	var (
		result runOutcome
		sweep  []backtest.SweepResult
	)
	if req.Sweep {
		all, best, err := backtest.Sweep(steps, cfg, backtest.DefaultCandidates())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sweep = all
		result = runOutcome{Candidate: best.Candidate.Name, Result: best.Result}
		label = label + ":" + best.Candidate.Name
	} else {
		res, err := backtest.Replay(steps, cfg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result = runOutcome{Result: res}
	}

	runID, err := r.Results.SaveRun(ctx, label, result.Result)
	if err != nil {
		logger.Errorf("[api] backtest save run failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{
		"run_id":  runID,
		"label":   label,
		"steps":   len(steps),
		"metrics": result.Result.Metrics,
		"final":   result.Result.FinalBalance,
	}
	if result.Candidate != "" {
		resp["candidate"] = result.Candidate
		candidates := make([]gin.H, 0, len(sweep))
		for _, sr := range sweep {
			candidates = append(candidates, gin.H{
				"name": sr.Candidate.Name,
				"roi":  sr.Result.Metrics.ROI,
			})
		}
		resp["sweep"] = candidates
	}
	if req.Report && r.ReportDir != "" {
		if path, err := r.writeReport(runID, label, result.Result); err != nil {
			logger.Warnf("[api] backtest report failed ip=%s run=%s err=%v", c.ClientIP(), runID, err)
		} else {
			resp["report"] = path
		}
	}
	logger.Infof("[api] backtest run ip=%s run=%s steps=%d trades=%d roi=%.2f%%",
		c.ClientIP(), runID, len(steps), result.Result.Metrics.Trades, result.Result.Metrics.ROI)
	c.JSON(http.StatusOK, resp)
}

// runOutcome pairs a replay result with the winning sweep candidate, if any.
type runOutcome struct {
	Candidate string
	Result    backtest.Result
}

func (r *Router) handleBacktestRuns(c *gin.Context) {
	if r.Results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest store unavailable"})
		return
	}
	limit := queryInt(c, "limit", 50)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	runs, err := r.Results.ListRuns(ctx, limit)
	if err != nil {
		logger.Errorf("[api] backtest runs list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (r *Router) writeReport(runID, title string, res backtest.Result) (string, error) {
	if err := os.MkdirAll(r.ReportDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.ReportDir, runID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := backtest.WriteReport(f, title, res); err != nil {
		return "", err
	}
	return path, nil
}

func stepsFromCycles(cycles []store.SignalCycle) []backtest.Step {
	steps := make([]backtest.Step, 0, len(cycles))
	for _, cy := range cycles {
		if cy.Price <= 0 {
			continue
		}
		steps = append(steps, backtest.Step{
			Timestamp: cy.Timestamp,
			Price:     cy.Price,
			Signals:   cy.Signals,
		})
	}
	return steps
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
