package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioRisk tracks the per-portfolio loss streak and its cooldown.
type PortfolioRisk struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until"`
}

// RiskState is the single system-wide risk document. DailyRealizedLoss is a
// positive accumulator of today's realized losses; it resets at the day
// boundary and trips the emergency stop when it reaches DailyLossLimit.
type RiskState struct {
	EmergencyStop     bool                      `json:"emergency_stop"`
	EmergencyReason   string                    `json:"emergency_reason,omitempty"`
	DailyRealizedLoss decimal.Decimal           `json:"daily_realized_loss"`
	DailyLossLimit    decimal.Decimal           `json:"daily_loss_limit"`
	Day               time.Time                 `json:"day"`
	Portfolios        map[string]*PortfolioRisk `json:"portfolios"`
}

func NewRiskState() *RiskState {
	return &RiskState{
		Portfolios: make(map[string]*PortfolioRisk),
	}
}

// LossRatio is daily-loss-to-limit, exposed to operators. Zero limit means
// the breaker is disabled and the ratio is always zero.
func (r *RiskState) LossRatio() float64 {
	if r.DailyLossLimit.IsZero() {
		return 0
	}
	ratio, _ := r.DailyRealizedLoss.Div(r.DailyLossLimit).Float64()
	return ratio
}

func (r *RiskState) Clone() *RiskState {
	cp := *r
	cp.Portfolios = make(map[string]*PortfolioRisk, len(r.Portfolios))
	for k, v := range r.Portfolios {
		pr := *v
		cp.Portfolios[k] = &pr
	}
	return &cp
}
