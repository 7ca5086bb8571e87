package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/src/model"
)

func pct(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// base returns the defaults every registry entry starts from; entries
// override what makes them distinct. Keeping the table declarative is the
// point: one evaluator, many parameter sets.
func base(id, name string, caps ...model.Capability) model.StrategyConfig {
	return model.StrategyConfig{
		ID:                    id,
		Name:                  name,
		Capabilities:          caps,
		RSIOversold:           30,
		RSIOverbought:         70,
		FearGreedBuy:          25,
		FearGreedSell:         75,
		TakeProfitPct:         pct("10"),
		StopLossPct:           pct("5"),
		TrailingPct:           pct("4"),
		TrailingArmPct:        pct("3"),
		PartialExitPct:        pct("0.5"),
		MaxReinforceLevels:    2,
		ReinforceThresholdPct: pct("5"),
		ReinforceMultiplier:   pct("1"),
		AllocationPct:         pct("10"),
		MaxPositions:          3,
		RotationMargin:        15,
		MinConfidence:         60,
	}
}

var registry = buildRegistry()

func buildRegistry() map[string]model.StrategyConfig {
	entries := []model.StrategyConfig{
		func() model.StrategyConfig {
			s := base("rsi_classic", "RSI Classic", model.CapRSI)
			s.Description = "Buy oversold, sell overbought"
			return s
		}(),
		func() model.StrategyConfig {
			s := base("rsi_tight", "RSI Tight", model.CapRSI)
			s.RSIOversold = 25
			s.RSIOverbought = 75
			s.AllocationPct = pct("5")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("rsi_aggressive", "RSI Aggressive", model.CapRSI, model.CapTrailing)
			s.RSIOversold = 35
			s.RSIOverbought = 65
			s.AllocationPct = pct("25")
			s.TrailingPct = pct("3")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("ema_trend", "EMA Trend Follower", model.CapEMATrend, model.CapTrailing)
			s.Description = "Ride the fast/slow EMA cross with a trailing stop"
			s.TakeProfitPct = pct("15")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("macd_momentum", "MACD Momentum", model.CapMACD, model.CapEMATrend)
			return s
		}(),
		func() model.StrategyConfig {
			s := base("bollinger_revert", "Bollinger Reversion", model.CapBollinger)
			s.TakeProfitPct = pct("6")
			s.StopLossPct = pct("4")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("bollinger_squeeze", "Bollinger Squeeze", model.CapBollinger, model.CapMACD)
			s.MinPatternScore = 50
			return s
		}(),
		func() model.StrategyConfig {
			s := base("dca_fear", "DCA on Fear", model.CapFearGreed)
			s.Description = "Accumulate on extreme fear, distribute on greed"
			s.StopLossPct = decimal.Zero
			s.TakeProfitPct = pct("20")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("fear_greed_swing", "Fear & Greed Swing", model.CapFearGreed, model.CapRSI)
			s.FearGreedBuy = 30
			s.FearGreedSell = 70
			return s
		}(),
		func() model.StrategyConfig {
			s := base("whale_watcher", "Whale Watcher", model.CapOnChain, model.CapEMATrend)
			s.MinConfidence = 70
			return s
		}(),
		func() model.StrategyConfig {
			s := base("confluence_strict", "Confluence Strict", model.CapConfluence)
			s.Description = "Act only when three signal families agree"
			s.MinPatternScore = 70
			s.AllocationPct = pct("20")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("confluence_normal", "Confluence Normal", model.CapConfluence)
			s.MinPatternScore = 55
			return s
		}(),
		func() model.StrategyConfig {
			s := base("confluence_rotating", "Confluence Rotator", model.CapConfluence, model.CapRotation)
			s.MinPatternScore = 55
			s.RotationMargin = 10
			return s
		}(),
		func() model.StrategyConfig {
			s := base("hodl", "HODL", model.CapHODL)
			s.Description = "Buy once, never sell (benchmark)"
			s.StopLossPct = decimal.Zero
			s.AllocationPct = pct("90")
			s.MaxPositions = 1
			return s
		}(),
		func() model.StrategyConfig {
			s := base("grid_narrow", "Narrow Grid", model.CapGrid, model.CapPartialTP)
			s.ReinforceThresholdPct = pct("2")
			s.MaxReinforceLevels = 4
			s.TakeProfitPct = pct("4")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("grid_wide", "Wide Grid", model.CapGrid, model.CapPartialTP)
			s.ReinforceThresholdPct = pct("6")
			s.MaxReinforceLevels = 3
			s.TakeProfitPct = pct("12")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("reinforce_cautious", "Cautious Reinforcement", model.CapRSI, model.CapReinforcement)
			s.ReinforceThresholdPct = pct("5")
			s.MaxReinforceLevels = 2
			s.ReinforceMultiplier = pct("1")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("reinforce_deep", "Deep Reinforcement", model.CapRSI, model.CapReinforcement)
			s.ReinforceThresholdPct = pct("8")
			s.MaxReinforceLevels = 3
			s.ReinforceMultiplier = pct("1.5")
			s.StopLossPct = pct("25")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("martingale_safe", "Martingale Safe", model.CapRSI, model.CapMartingale)
			s.Description = "Doubles down on drawdown, but keeps a hard stop"
			s.ReinforceThresholdPct = pct("5")
			s.MaxReinforceLevels = 3
			s.ReinforceMultiplier = pct("2")
			s.StopLossPct = pct("30")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("martingale_unbounded", "Martingale Unbounded", model.CapRSI, model.CapMartingale)
			s.Description = "No stop, no ladder cap. Deliberate high-risk class."
			s.ReinforceThresholdPct = pct("5")
			s.MaxReinforceLevels = -1
			s.ReinforceMultiplier = pct("2")
			s.StopLossPct = decimal.Zero
			return s
		}(),
		func() model.StrategyConfig {
			s := base("trailing_tight", "Trailing Tight", model.CapEMATrend, model.CapTrailing)
			s.TrailingPct = pct("2")
			s.TrailingArmPct = pct("2")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("trailing_wide", "Trailing Wide", model.CapEMATrend, model.CapTrailing)
			s.TrailingPct = pct("6")
			s.TrailingArmPct = pct("5")
			s.TakeProfitPct = pct("25")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("scalp_partial", "Scalper Partial TP", model.CapRSI, model.CapPartialTP, model.CapTrailing)
			s.TakeProfitPct = pct("3")
			s.StopLossPct = pct("2")
			s.TrailingPct = pct("1.5")
			s.TrailingArmPct = pct("1")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("swing_timeboxed", "Timeboxed Swing", model.CapRSI, model.CapTimeLimit)
			s.MaxHoldDuration = 72 * time.Hour
			return s
		}(),
		func() model.StrategyConfig {
			s := base("daytrader", "Day Trader", model.CapRSI, model.CapMACD, model.CapTimeLimit, model.CapTrailing)
			s.MaxHoldDuration = 24 * time.Hour
			s.TakeProfitPct = pct("5")
			s.StopLossPct = pct("3")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("conservative", "Conservative", model.CapConfluence, model.CapPartialTP)
			s.MinPatternScore = 65
			s.AllocationPct = pct("5")
			s.MaxPositions = 1
			return s
		}(),
		func() model.StrategyConfig {
			s := base("aggressive", "Aggressive", model.CapRSI, model.CapEMATrend, model.CapRotation, model.CapTrailing)
			s.RSIOversold = 40
			s.AllocationPct = pct("25")
			s.MaxPositions = 5
			s.RotationMargin = 8
			return s
		}(),
		func() model.StrategyConfig {
			s := base("onchain_confluence", "On-Chain Confluence", model.CapOnChain, model.CapConfluence)
			s.MinPatternScore = 60
			return s
		}(),
		func() model.StrategyConfig {
			s := base("sentiment_contrarian", "Sentiment Contrarian", model.CapFearGreed, model.CapReinforcement)
			s.FearGreedBuy = 20
			s.FearGreedSell = 80
			s.ReinforceThresholdPct = pct("7")
			return s
		}(),
		func() model.StrategyConfig {
			s := base("rotator_flat", "Flat Rotator", model.CapRSI, model.CapRotation, model.CapTimeLimit)
			s.MaxHoldDuration = 48 * time.Hour
			s.RotationMargin = 12
			return s
		}(),
	}

	m := make(map[string]model.StrategyConfig, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return m
}

// Lookup returns the immutable config for a strategy id.
func Lookup(id string) (model.StrategyConfig, error) {
	cfg, ok := registry[id]
	if !ok {
		return model.StrategyConfig{}, fmt.Errorf("strategy %q not registered", id)
	}
	return cfg, nil
}

// IDs lists the registered strategy ids in stable order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
