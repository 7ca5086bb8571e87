package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionState string

const (
	PositionStateOpen     PositionState = "open"
	PositionStateTrailing PositionState = "open_trailing"
	PositionStatePartial  PositionState = "open_partial"
)

// Position is the live state for one (portfolio, instrument) pair. It is
// removed from the portfolio on full close, never zeroed; Quantity > 0 is an
// invariant while the position exists.
type Position struct {
	Instrument       string          `json:"instrument"`
	Quantity         decimal.Decimal `json:"quantity"`
	AvgEntryPrice    decimal.Decimal `json:"avg_entry_price"`
	EntryTime        time.Time       `json:"entry_time"`
	HighestPrice     decimal.Decimal `json:"highest_price"`
	ReinforceLevel   int             `json:"reinforce_level"`
	PartialExitTaken bool            `json:"partial_exit_taken"`
	TrailingArmed    bool            `json:"trailing_armed"`
	LastFillNotional decimal.Decimal `json:"last_fill_notional"`
}

func (p *Position) State() PositionState {
	switch {
	case p.TrailingArmed:
		return PositionStateTrailing
	case p.PartialExitTaken:
		return PositionStatePartial
	default:
		return PositionStateOpen
	}
}

// UnrealizedPnl is (price - avgEntry) * qty, gross of fees.
func (p *Position) UnrealizedPnl(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}

// UnrealizedPnlPct is relative to the weighted-average entry price, never to
// intermediate highs. Returns zero when entry is zero.
func (p *Position) UnrealizedPnlPct(price decimal.Decimal) decimal.Decimal {
	if p.AvgEntryPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.AvgEntryPrice).Div(p.AvgEntryPrice).Mul(decimal.NewFromInt(100))
}

func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
