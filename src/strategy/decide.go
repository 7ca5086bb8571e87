package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/src/model"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// vote is one capability's opinion. Risk-driven CLOSE votes are produced
// separately and always dominate.
type vote struct {
	action     model.Action
	reason     string
	confidence float64
}

type voteFunc func(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote

// voteTable maps capability tags to their vote functions. Lifecycle-wide
// exits (stop loss, trailing, take profit, time limit) are not in the table;
// they are evaluated first in Decide.
var voteTable = map[model.Capability]voteFunc{
	model.CapRSI:           voteRSI,
	model.CapEMATrend:      voteEMATrend,
	model.CapMACD:          voteMACD,
	model.CapBollinger:     voteBollinger,
	model.CapFearGreed:     voteFearGreed,
	model.CapOnChain:       voteOnChain,
	model.CapConfluence:    voteConfluence,
	model.CapHODL:          voteHODL,
	model.CapGrid:          voteGrid,
	model.CapReinforcement: voteReinforce,
	model.CapMartingale:    voteReinforce,
}

// Decide is the decision engine: pure, deterministic, no I/O. It dispatches
// on the strategy's capability set, combines votes with CLOSE dominating,
// and vetoes OPEN/ADD below the pattern-clarity gate.
func Decide(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position, now time.Time) model.Verdict {
	if snap == nil || snap.Price.IsZero() {
		return model.Hold("no signal data")
	}

	// Risk-driven exits dominate everything and are never pattern-gated.
	if pos != nil {
		if v := riskExit(cfg, snap, pos, now); v != nil {
			return model.Verdict{Action: v.action, Reason: v.reason, Confidence: v.confidence}
		}
	}

	var closeVote, addVote, openVote *vote
	for _, tag := range cfg.Capabilities {
		fn, ok := voteTable[tag]
		if !ok {
			continue
		}
		v := fn(cfg, snap, pos)
		if v == nil {
			continue
		}
		switch v.action {
		case model.ActionClose, model.ActionPartialClose:
			closeVote = stronger(closeVote, v)
		case model.ActionAdd:
			addVote = stronger(addVote, v)
		case model.ActionOpen:
			openVote = stronger(openVote, v)
		}
	}

	if closeVote != nil {
		return model.Verdict{Action: closeVote.action, Reason: closeVote.reason, Confidence: closeVote.confidence}
	}

	// OPEN/ADD require no conflicting CLOSE vote and must pass the
	// confluence gate when one is configured.
	deploy := addVote
	if deploy == nil && pos == nil {
		deploy = openVote
	}
	if deploy == nil {
		return model.Hold("no capability voted")
	}
	if cfg.MinPatternScore > 0 {
		if snap.Pattern == nil || snap.Pattern.Score < cfg.MinPatternScore {
			return model.Hold(fmt.Sprintf("pattern clarity below %.0f threshold", cfg.MinPatternScore))
		}
	}
	return model.Verdict{Action: deploy.action, Reason: deploy.reason, Confidence: deploy.confidence}
}

func stronger(a, b *vote) *vote {
	if a == nil || b.confidence > a.confidence {
		return b
	}
	return a
}

// riskExit evaluates hard exits against the weighted-average entry price.
// Order matters: stop loss, trailing stop, hold-time limit, then profit
// targets (partial first when the strategy takes partial exits).
func riskExit(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position, now time.Time) *vote {
	pnlPct := pos.UnrealizedPnlPct(snap.Price)

	if cfg.StopLossPct.IsPositive() && pnlPct.LessThanOrEqual(cfg.StopLossPct.Neg()) {
		return &vote{
			action:     model.ActionClose,
			reason:     fmt.Sprintf("stop-loss breached: %s%% <= -%s%%", pnlPct.StringFixed(2), cfg.StopLossPct.String()),
			confidence: 100,
		}
	}

	if cfg.Has(model.CapTrailing) && pos.TrailingArmed && pos.HighestPrice.IsPositive() {
		trigger := pos.HighestPrice.Mul(hundred.Sub(cfg.TrailingPct)).Div(hundred)
		if snap.Price.LessThanOrEqual(trigger) {
			return &vote{
				action:     model.ActionClose,
				reason:     fmt.Sprintf("trailing stop: retraced %s%% from high %s", cfg.TrailingPct.String(), pos.HighestPrice.String()),
				confidence: 100,
			}
		}
	}

	if cfg.Has(model.CapTimeLimit) && cfg.MaxHoldDuration > 0 && pos.Age(now) >= cfg.MaxHoldDuration {
		return &vote{
			action:     model.ActionClose,
			reason:     fmt.Sprintf("max hold duration %s exceeded", cfg.MaxHoldDuration),
			confidence: 100,
		}
	}

	if cfg.TakeProfitPct.IsPositive() && pnlPct.GreaterThanOrEqual(cfg.TakeProfitPct) {
		if cfg.Has(model.CapPartialTP) && !pos.PartialExitTaken {
			return &vote{
				action:     model.ActionPartialClose,
				reason:     fmt.Sprintf("take-profit target +%s%% hit, scaling out", cfg.TakeProfitPct.String()),
				confidence: 90,
			}
		}
		// HODL never sells, not even into the target.
		if cfg.Has(model.CapHODL) {
			return nil
		}
		if !cfg.Has(model.CapPartialTP) {
			return &vote{
				action:     model.ActionClose,
				reason:     fmt.Sprintf("take-profit target +%s%% hit", cfg.TakeProfitPct.String()),
				confidence: 90,
			}
		}
		// The remainder after the partial exit rides to a second target
		// at twice the first.
		secondTarget := cfg.TakeProfitPct.Mul(two)
		if pos.PartialExitTaken && pnlPct.GreaterThanOrEqual(secondTarget) {
			return &vote{
				action:     model.ActionClose,
				reason:     fmt.Sprintf("second take-profit target +%s%% hit, closing remainder", secondTarget.String()),
				confidence: 90,
			}
		}
	}

	return nil
}

func voteRSI(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if snap.RSI == nil {
		return nil
	}
	rsi := *snap.RSI
	if pos == nil && rsi < cfg.RSIOversold {
		return &vote{
			action:     model.ActionOpen,
			reason:     fmt.Sprintf("RSI %.1f below oversold %.0f", rsi, cfg.RSIOversold),
			confidence: clamp((cfg.RSIOversold-rsi)*4 + 60),
		}
	}
	if pos != nil && rsi > cfg.RSIOverbought && pos.UnrealizedPnlPct(snap.Price).IsPositive() {
		return &vote{
			action:     model.ActionClose,
			reason:     fmt.Sprintf("RSI %.1f above overbought %.0f in profit", rsi, cfg.RSIOverbought),
			confidence: clamp((rsi-cfg.RSIOverbought)*4 + 60),
		}
	}
	return nil
}

func voteEMATrend(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if snap.EMAFast == nil || snap.EMASlow == nil {
		return nil
	}
	if pos == nil && *snap.EMAFast > *snap.EMASlow && snap.Trend != model.TrendBearish {
		return &vote{action: model.ActionOpen, reason: "fast EMA above slow EMA", confidence: 55}
	}
	if pos != nil && *snap.EMAFast < *snap.EMASlow && pos.UnrealizedPnlPct(snap.Price).IsPositive() {
		return &vote{action: model.ActionClose, reason: "trend flipped: fast EMA below slow EMA", confidence: 60}
	}
	return nil
}

func voteMACD(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if snap.MACD == nil {
		return nil
	}
	m := snap.MACD
	if pos == nil && m.Histogram > 0 && m.Line > m.Signal {
		return &vote{action: model.ActionOpen, reason: "MACD bullish crossover", confidence: 58}
	}
	if pos != nil && m.Histogram < 0 && pos.UnrealizedPnlPct(snap.Price).IsPositive() {
		return &vote{action: model.ActionClose, reason: "MACD momentum rolled over", confidence: 58}
	}
	return nil
}

func voteBollinger(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if snap.Bollinger == nil {
		return nil
	}
	price, _ := snap.Price.Float64()
	b := snap.Bollinger
	if pos == nil && price <= b.Lower {
		return &vote{action: model.ActionOpen, reason: "price at lower Bollinger band", confidence: 62}
	}
	if pos != nil && price >= b.Upper && pos.UnrealizedPnlPct(snap.Price).IsPositive() {
		return &vote{action: model.ActionClose, reason: "price at upper Bollinger band", confidence: 62}
	}
	return nil
}

func voteFearGreed(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if snap.Sentiment == nil {
		return nil
	}
	fg := *snap.Sentiment
	if pos == nil && fg < cfg.FearGreedBuy {
		return &vote{
			action:     model.ActionOpen,
			reason:     fmt.Sprintf("fear & greed %.0f below buy threshold %.0f", fg, cfg.FearGreedBuy),
			confidence: clamp((cfg.FearGreedBuy-fg)*2 + 60),
		}
	}
	if pos != nil && fg > cfg.FearGreedSell {
		return &vote{
			action:     model.ActionClose,
			reason:     fmt.Sprintf("fear & greed %.0f above sell threshold %.0f", fg, cfg.FearGreedSell),
			confidence: clamp((fg-cfg.FearGreedSell)*2 + 60),
		}
	}
	return nil
}

func voteOnChain(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if snap.OnChainFlow == nil {
		return nil
	}
	// Positive flow = net exchange outflow = accumulation.
	flow := *snap.OnChainFlow
	if pos == nil && flow >= 1.5 {
		return &vote{action: model.ActionOpen, reason: fmt.Sprintf("on-chain outflow %.1fx average", flow), confidence: 55}
	}
	if pos != nil && flow <= -1.5 {
		return &vote{action: model.ActionClose, reason: fmt.Sprintf("on-chain inflow %.1fx average", -flow), confidence: 55}
	}
	return nil
}

// voteConfluence requires at least two independent families to agree in the
// same direction: technical (RSI+trend), sentiment, on-chain.
func voteConfluence(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	bullish, bearish := alignedFamilies(cfg, snap)
	if pos == nil && bullish >= 2 {
		return &vote{
			action:     model.ActionOpen,
			reason:     fmt.Sprintf("confluence: %d signal families bullish", bullish),
			confidence: clamp(float64(bullish)*25 + 20),
		}
	}
	if pos != nil && bearish >= 2 {
		return &vote{
			action:     model.ActionClose,
			reason:     fmt.Sprintf("confluence: %d signal families bearish", bearish),
			confidence: clamp(float64(bearish)*25 + 20),
		}
	}
	return nil
}

func alignedFamilies(cfg model.StrategyConfig, snap *model.SignalSnapshot) (bullish, bearish int) {
	if snap.RSI != nil {
		switch {
		case *snap.RSI < cfg.RSIOversold && snap.Trend != model.TrendBearish:
			bullish++
		case *snap.RSI > cfg.RSIOverbought && snap.Trend != model.TrendBullish:
			bearish++
		}
	}
	if snap.Sentiment != nil {
		switch {
		case *snap.Sentiment < cfg.FearGreedBuy:
			bullish++
		case *snap.Sentiment > cfg.FearGreedSell:
			bearish++
		}
	}
	if snap.OnChainFlow != nil {
		switch {
		case *snap.OnChainFlow >= 1.5:
			bullish++
		case *snap.OnChainFlow <= -1.5:
			bearish++
		}
	}
	return bullish, bearish
}

func voteHODL(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if pos == nil {
		return &vote{action: model.ActionOpen, reason: "initial accumulation", confidence: 100}
	}
	return nil
}

// voteGrid adds a rung whenever price steps down a full threshold from the
// weighted-average entry; profit taking is handled by the take-profit exit.
func voteGrid(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if pos == nil {
		return &vote{action: model.ActionOpen, reason: "grid anchor entry", confidence: 50}
	}
	return reinforceVote(cfg, snap, pos, "grid rung")
}

func voteReinforce(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position) *vote {
	if pos == nil {
		return nil
	}
	return reinforceVote(cfg, snap, pos, "reinforcement")
}

// reinforceVote may propose ADD only when the position is down at least the
// configured threshold and the ladder has room. MaxReinforceLevels < 0 means
// an unbounded ladder.
func reinforceVote(cfg model.StrategyConfig, snap *model.SignalSnapshot, pos *model.Position, label string) *vote {
	lossPct := pos.UnrealizedPnlPct(snap.Price).Neg()
	if lossPct.LessThan(cfg.ReinforceThresholdPct) {
		return nil
	}
	if cfg.MaxReinforceLevels >= 0 && pos.ReinforceLevel >= cfg.MaxReinforceLevels {
		return nil
	}
	return &vote{
		action:     model.ActionAdd,
		reason:     fmt.Sprintf("%s: down %s%% >= %s%%, level %d", label, lossPct.StringFixed(2), cfg.ReinforceThresholdPct.String(), pos.ReinforceLevel+1),
		confidence: 65,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
