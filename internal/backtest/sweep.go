package backtest

import (
	"fmt"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// Candidate is one named weight set for the sweep.
type Candidate struct {
	Name    string
	Weights map[string]float64
}

// DefaultCandidates is the fixed comparison set: the live default plus five
// tilts that each emphasize one family of sources.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Name: "balanced", Weights: map[string]float64{
			signal.SourceTechnical: 0.25, signal.SourcePolicy: 0.20, signal.SourceVision: 0.15,
			signal.SourceAgents: 0.15, signal.SourceMarket: 0.15, signal.SourceNews: 0.10,
		}},
		{Name: "technical_heavy", Weights: map[string]float64{
			signal.SourceTechnical: 0.40, signal.SourcePolicy: 0.15, signal.SourceVision: 0.10,
			signal.SourceAgents: 0.10, signal.SourceMarket: 0.15, signal.SourceNews: 0.10,
		}},
		{Name: "policy_heavy", Weights: map[string]float64{
			signal.SourceTechnical: 0.15, signal.SourcePolicy: 0.40, signal.SourceVision: 0.10,
			signal.SourceAgents: 0.10, signal.SourceMarket: 0.15, signal.SourceNews: 0.10,
		}},
		{Name: "sentiment_heavy", Weights: map[string]float64{
			signal.SourceTechnical: 0.15, signal.SourcePolicy: 0.10, signal.SourceVision: 0.25,
			signal.SourceAgents: 0.25, signal.SourceMarket: 0.10, signal.SourceNews: 0.15,
		}},
		{Name: "market_heavy", Weights: map[string]float64{
			signal.SourceTechnical: 0.20, signal.SourcePolicy: 0.15, signal.SourceVision: 0.10,
			signal.SourceAgents: 0.10, signal.SourceMarket: 0.35, signal.SourceNews: 0.10,
		}},
		{Name: "momentum_pair", Weights: map[string]float64{
			signal.SourceTechnical: 0.35, signal.SourcePolicy: 0.35, signal.SourceVision: 0.05,
			signal.SourceAgents: 0.05, signal.SourceMarket: 0.15, signal.SourceNews: 0.05,
		}},
	}
}

// SweepResult pairs a candidate with its replay outcome.
type SweepResult struct {
	Candidate Candidate
	Result    Result
}

// Sweep replays the same step history once per candidate weight set. Each
// pass owns its own simulated state. The best result is chosen by ROI.
func Sweep(steps []Step, base Config, candidates []Candidate) ([]SweepResult, *SweepResult, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}
	results := make([]SweepResult, 0, len(candidates))
	var best *SweepResult
	for _, cand := range candidates {
		cfg := base
		cfg.Aggregator.Weights = cand.Weights
		res, err := Replay(steps, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("sweep candidate %s: %w", cand.Name, err)
		}
		logger.Infof("sweep %s: ROI %.2f%%, %d trades, win rate %.1f%%",
			cand.Name, res.Metrics.ROI, res.Metrics.Trades, res.Metrics.WinRate)
		results = append(results, SweepResult{Candidate: cand, Result: res})
		last := &results[len(results)-1]
		if best == nil || last.Result.Metrics.ROI > best.Result.Metrics.ROI {
			best = last
		}
	}
	return results, best, nil
}
