package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Capability tags drive the decision engine's vote dispatch. A strategy is
// just a StrategyConfig with a set of these plus thresholds; there are no
// per-strategy types.
type Capability string

const (
	CapRSI           Capability = "rsi"
	CapEMATrend      Capability = "ema-trend"
	CapMACD          Capability = "macd"
	CapBollinger     Capability = "bollinger"
	CapFearGreed     Capability = "fear-greed"
	CapOnChain       Capability = "onchain"
	CapConfluence    Capability = "confluence"
	CapHODL          Capability = "hodl"
	CapGrid          Capability = "grid"
	CapReinforcement Capability = "reinforcement"
	CapMartingale    Capability = "martingale"
	CapTrailing      Capability = "trailing"
	CapPartialTP     Capability = "partial-tp"
	CapRotation      Capability = "rotation"
	CapTimeLimit     Capability = "time-limit"
)

// StrategyConfig is immutable after registry construction. Percentage fields
// are plain percent values (5 means 5%). A zero StopLossPct disables the hard
// stop, which combined with CapMartingale is a deliberate high-risk class,
// not a misconfiguration.
type StrategyConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Capabilities []Capability `json:"capabilities"`

	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
	FearGreedBuy  float64 `json:"fear_greed_buy"`
	FearGreedSell float64 `json:"fear_greed_sell"`

	TakeProfitPct  decimal.Decimal `json:"take_profit_pct"`
	StopLossPct    decimal.Decimal `json:"stop_loss_pct"`
	TrailingPct    decimal.Decimal `json:"trailing_pct"`
	TrailingArmPct decimal.Decimal `json:"trailing_arm_pct"`
	PartialExitPct decimal.Decimal `json:"partial_exit_pct"`

	MaxReinforceLevels    int             `json:"max_reinforce_levels"`
	ReinforceThresholdPct decimal.Decimal `json:"reinforce_threshold_pct"`
	ReinforceMultiplier   decimal.Decimal `json:"reinforce_multiplier"`

	MaxHoldDuration time.Duration `json:"max_hold_duration"`
	MinPatternScore float64       `json:"min_pattern_score"`

	AllocationPct  decimal.Decimal `json:"allocation_pct"`
	MaxPositions   int             `json:"max_positions"`
	RotationMargin float64         `json:"rotation_margin"`
	MinConfidence  float64         `json:"min_confidence"`
}

func (s StrategyConfig) Has(c Capability) bool {
	for _, tag := range s.Capabilities {
		if tag == c {
			return true
		}
	}
	return false
}
