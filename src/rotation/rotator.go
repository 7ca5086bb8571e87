package rotation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"papertrader/src/model"
)

// Candidate is an instrument the portfolio could hold instead of one of its
// current positions.
type Candidate struct {
	Instrument string
	Score      float64
}

// Rotator decides whether to liquidate an open position to free capital for
// a higher-scoring candidate. Pure policy; the engine performs the
// two-phase close-then-open.
type Rotator struct {
	// flatBandPct bounds |unrealized pnl %| under which a position counts
	// as flat and rotates on the reduced margin.
	flatBandPct decimal.Decimal
	// eagerFactor scales the margin down for flat or losing positions.
	eagerFactor float64
}

func NewRotator() *Rotator {
	return &Rotator{
		flatBandPct: decimal.NewFromInt(1),
		eagerFactor: 0.5,
	}
}

// ShouldRotate returns true when the candidate outscores the current
// position by the strategy's margin and clears its minimum confidence bar.
// Flat or losing positions rotate on half the margin.
func (r *Rotator) ShouldRotate(cfg model.StrategyConfig, currentScore, candidateScore float64, currentPnlPct decimal.Decimal) (bool, string) {
	if candidateScore < cfg.MinConfidence {
		return false, fmt.Sprintf("candidate score %.0f below confidence bar %.0f", candidateScore, cfg.MinConfidence)
	}

	margin := cfg.RotationMargin
	if currentPnlPct.Abs().LessThanOrEqual(r.flatBandPct) || currentPnlPct.IsNegative() {
		margin *= r.eagerFactor
	}

	diff := candidateScore - currentScore
	if diff < margin {
		return false, fmt.Sprintf("score gap %.1f below margin %.1f", diff, margin)
	}

	return true, fmt.Sprintf("candidate outscores position %.0f vs %.0f (gap %.1f >= margin %.1f)",
		candidateScore, currentScore, diff, margin)
}

// WeakestPosition picks the lowest-scoring open position as the rotation
// victim. Scores come from the tick's snapshot set; instruments without a
// snapshot are skipped.
func WeakestPosition(p *model.Portfolio, scores map[string]float64) (string, float64, bool) {
	var (
		weakest string
		low     float64
		found   bool
	)
	for instrument := range p.Positions {
		score, ok := scores[instrument]
		if !ok {
			continue
		}
		if !found || score < low {
			weakest, low, found = instrument, score, true
		}
	}
	return weakest, low, found
}

// BestCandidate returns the highest-scoring candidate not already held.
func BestCandidate(p *model.Portfolio, candidates []Candidate) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, c := range candidates {
		if _, held := p.Positions[c.Instrument]; held {
			continue
		}
		if !found || c.Score > best.Score {
			best, found = c, true
		}
	}
	return best, found
}
