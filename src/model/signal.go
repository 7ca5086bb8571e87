package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// PatternScore is the multi-timeframe pattern-clarity score, 0-100.
type PatternScore struct {
	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation"`
}

// SignalSnapshot is the per-instrument view the decision engine consumes.
// Optional pointers are nil when the upstream service has no value; a nil
// field means the corresponding capability abstains, never an error.
type SignalSnapshot struct {
	Instrument  string          `json:"instrument"`
	Price       decimal.Decimal `json:"price"`
	RSI         *float64        `json:"rsi,omitempty"`
	EMAFast     *float64        `json:"ema_fast,omitempty"`
	EMASlow     *float64        `json:"ema_slow,omitempty"`
	MACD        *MACD           `json:"macd,omitempty"`
	Bollinger   *Bollinger      `json:"bollinger,omitempty"`
	VolumeRatio *float64        `json:"volume_ratio,omitempty"`
	Trend       TrendDirection  `json:"trend,omitempty"`
	Sentiment   *float64        `json:"sentiment,omitempty"`
	OnChainFlow *float64        `json:"onchain_flow,omitempty"`
	Pattern     *PatternScore   `json:"pattern,omitempty"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Score condenses the snapshot into a 0-100 opportunity quality score used
// by the rotator. Pattern clarity dominates when present; otherwise the
// score leans on RSI distance from oversold plus trend agreement.
func (s *SignalSnapshot) Score() float64 {
	if s.Pattern != nil {
		return s.Pattern.Score
	}
	score := 50.0
	if s.RSI != nil {
		// Deep oversold scores high, deep overbought scores low.
		score = 100 - *s.RSI
	}
	switch s.Trend {
	case TrendBullish:
		score += 10
	case TrendBearish:
		score -= 10
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
