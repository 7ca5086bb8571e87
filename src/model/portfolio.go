package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDocumentTrades bounds the in-document trade list. Older trades survive
// in the audit store only.
const MaxDocumentTrades = 1000

type PortfolioStats struct {
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	RealizedPnl    decimal.Decimal `json:"realized_pnl"`
	FeesPaid       decimal.Decimal `json:"fees_paid"`
	DeployFees     decimal.Decimal `json:"deploy_fees"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
}

// Portfolio binds one strategy configuration to a cash balance and a set of
// open positions. Portfolios are created once and never deleted, only
// deactivated.
type Portfolio struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	StrategyID     string               `json:"strategy_id"`
	Cash           decimal.Decimal      `json:"cash"`
	InitialCapital decimal.Decimal      `json:"initial_capital"`
	Active         bool                 `json:"active"`
	Instruments    []string             `json:"instruments"`
	Positions      map[string]*Position `json:"positions"`
	Trades         []Trade              `json:"trades"`
	Stats          PortfolioStats       `json:"stats"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// MarketValue is the value of all open positions at the given prices.
// Instruments without a quote are valued at their entry price so a transient
// feed gap does not crater the reported equity.
func (p *Portfolio) MarketValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for instrument, pos := range p.Positions {
		price, ok := prices[instrument]
		if !ok || price.IsZero() {
			price = pos.AvgEntryPrice
		}
		total = total.Add(pos.Quantity.Mul(price))
	}
	return total
}

// Equity is cash plus market value.
func (p *Portfolio) Equity(prices map[string]decimal.Decimal) decimal.Decimal {
	return p.Cash.Add(p.MarketValue(prices))
}

// AppendTrade keeps the document log bounded and bumps the aggregate stats.
func (p *Portfolio) AppendTrade(t Trade) {
	p.Trades = append(p.Trades, t)
	if len(p.Trades) > MaxDocumentTrades {
		p.Trades = p.Trades[len(p.Trades)-MaxDocumentTrades:]
	}
	p.Stats.TotalTrades++
	p.Stats.FeesPaid = p.Stats.FeesPaid.Add(t.Fee)
	if t.Action.Deploying() {
		p.Stats.DeployFees = p.Stats.DeployFees.Add(t.Fee)
	}
	if t.Action == ActionClose || t.Action == ActionPartialClose {
		p.Stats.RealizedPnl = p.Stats.RealizedPnl.Add(t.Pnl)
		if t.Pnl.IsPositive() {
			p.Stats.WinningTrades++
		} else {
			p.Stats.LosingTrades++
		}
	}
}

// Clone deep-copies the portfolio so dashboard readers never share mutable
// state with the engine.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Instruments = append([]string(nil), p.Instruments...)
	cp.Trades = append([]Trade(nil), p.Trades...)
	cp.Positions = make(map[string]*Position, len(p.Positions))
	for k, v := range p.Positions {
		cp.Positions[k] = v.Clone()
	}
	return &cp
}
