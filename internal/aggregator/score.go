package aggregator

import (
	"github.com/kenken64/7monthIndicator-sub000/internal/signal"
)

// Score maps one source's signal onto the shared 0..10 scale. HOLD sits at
// 5.0, BUY pulls up, SELL pulls down, and source-specific metadata nudges
// the score further. Unknown sources fall back to the technical mapping.
func Score(source string, sig signal.Signal) float64 {
	var score float64
	switch source {
	case signal.SourcePolicy:
		score = scorePolicy(sig)
	case signal.SourceVision:
		score = baseScore(sig.Action, 7.5, 2.5) + direction(sig.Action)*sig.Metadata["sentiment"]
	case signal.SourceAgents:
		score = baseScore(sig.Action, 7.5, 2.5) + direction(sig.Action)*sig.Metadata["spike"]
	case signal.SourceMarket:
		score = scoreMarket(sig)
	case signal.SourceNews:
		score = (sig.Metadata["sentiment"] + 1) * 5
	default:
		score = scoreTechnical(sig)
	}
	return clamp(score, 0, 10)
}

// Confidence maps one source's signal onto the shared 0..100 confidence
// scale. News confidence is tiered by article volume when the feed reports
// it; every other source is taken at its word.
func Confidence(source string, sig signal.Signal) float64 {
	if source == signal.SourceNews {
		if n, ok := sig.Metadata["article_count"]; ok {
			switch {
			case n >= 10:
				return 75
			case n >= 5:
				return 60
			case n >= 2:
				return 40
			default:
				return 20
			}
		}
	}
	return sig.Confidence
}

func baseScore(action signal.Action, buy, sell float64) float64 {
	switch action {
	case signal.Buy:
		return buy
	case signal.Sell:
		return sell
	default:
		return 5.0
	}
}

func direction(action signal.Action) float64 {
	switch action {
	case signal.Buy:
		return 1
	case signal.Sell:
		return -1
	default:
		return 0
	}
}

func scoreTechnical(sig signal.Signal) float64 {
	score := baseScore(sig.Action, 7, 3)
	if rsi, ok := sig.Metadata["rsi"]; ok {
		if rsi < 30 {
			score++
		} else if rsi > 70 {
			score--
		}
	}
	if hist, ok := sig.Metadata["macd_hist"]; ok {
		if hist > 0 {
			score += 0.5
		} else if hist < 0 {
			score -= 0.5
		}
	}
	return score
}

func scorePolicy(sig signal.Signal) float64 {
	score := baseScore(sig.Action, 8, 2)
	switch {
	case sig.Confidence > 70:
		score += direction(sig.Action) * 1.5
	case sig.Confidence > 50:
		score += direction(sig.Action) * 0.5
	}
	return score
}

func scoreMarket(sig signal.Signal) float64 {
	score := baseScore(sig.Action, 6.5, 3.5)
	if corr, ok := sig.Metadata["correlation"]; ok && corr > 0.7 {
		score += direction(sig.Action)
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
