package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionOpen         Action = "OPEN"
	ActionAdd          Action = "ADD"
	ActionClose        Action = "CLOSE"
	ActionPartialClose Action = "PARTIAL_CLOSE"
	ActionHold         Action = "HOLD"
)

// Deploying reports whether the action puts new capital at risk and is
// therefore subject to the risk governor.
func (a Action) Deploying() bool {
	return a == ActionOpen || a == ActionAdd
}

// Trade is an immutable fill record appended to the portfolio document.
// Pnl is realized P&L, populated only for CLOSE and PARTIAL_CLOSE, computed
// once against the weighted-average entry price at close time.
type Trade struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Notional   decimal.Decimal `json:"notional"`
	Fee        decimal.Decimal `json:"fee"`
	Pnl        decimal.Decimal `json:"pnl"`
	Reason     string          `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TradeAudit mirrors Trade into the append-only audit store. The in-document
// trade list is bounded; this table is not.
type TradeAudit struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	TradeID     string          `gorm:"size:64;index" json:"trade_id"`
	PortfolioID string          `gorm:"size:64;index" json:"portfolio_id"`
	Action      string          `gorm:"size:20;not null" json:"action"`
	Instrument  string          `gorm:"size:50;not null" json:"instrument"`
	Price       decimal.Decimal `gorm:"type:numeric" json:"price"`
	Quantity    decimal.Decimal `gorm:"type:numeric" json:"quantity"`
	Notional    decimal.Decimal `gorm:"type:numeric" json:"notional"`
	Fee         decimal.Decimal `gorm:"type:numeric" json:"fee"`
	Pnl         decimal.Decimal `gorm:"type:numeric" json:"pnl"`
	Reason      string          `gorm:"size:512" json:"reason"`
	ExecutedAt  time.Time       `json:"executed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}
