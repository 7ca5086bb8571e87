package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrader/src/model"
	"papertrader/src/utils"
)

// ErrStopConditionActive means the emergency stop cannot be reset while the
// daily-loss breach that tripped it is still true.
var ErrStopConditionActive = errors.New("daily loss still at or over limit, reset refused")

// Governor is the capital-deployment gate. It is not safe for concurrent
// use on its own; the engine serializes every call under its commit lock,
// which is exactly the guarantee the daily-loss accumulator needs when two
// portfolios close losers in the same tick.
type Governor struct {
	state            *model.RiskState
	cooldownLosses   int
	cooldownDuration time.Duration
	maxCorrelated    int
	groups           map[string]string
	logger           *logrus.Entry
	now              func() time.Time
}

func NewGovernor(cfg Config, logger *logrus.Entry) *Governor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	cooldown, err := time.ParseDuration(cfg.CooldownDuration)
	if err != nil {
		cooldown = 4 * time.Hour
	}
	return &Governor{
		state: &model.RiskState{
			DailyLossLimit: decimal.NewFromFloat(cfg.DailyLossLimit),
			Day:            utils.ResetTime(time.Now(), "day"),
			Portfolios:     make(map[string]*model.PortfolioRisk),
		},
		cooldownLosses:   cfg.CooldownLosses,
		cooldownDuration: cooldown,
		maxCorrelated:    cfg.MaxCorrelated,
		groups:           cfg.CorrelationGroups,
		logger:           logger,
		now:              time.Now,
	}
}

// RestoreState replaces the in-memory risk state with a persisted one, so a
// tripped emergency stop or an armed cooldown survives a restart. The
// configured daily-loss limit wins over the persisted one only when the
// persisted document never had a limit set.
func (g *Governor) RestoreState(state *model.RiskState) {
	if state == nil {
		return
	}
	restored := state.Clone()
	if restored.Portfolios == nil {
		restored.Portfolios = make(map[string]*model.PortfolioRisk)
	}
	if restored.DailyLossLimit.IsZero() {
		restored.DailyLossLimit = g.state.DailyLossLimit
	}
	if restored.Day.IsZero() {
		restored.Day = utils.ResetTime(g.now(), "day")
	}
	g.state = restored
	g.rollDay(g.now())
}

// Allow gates OPEN/ADD. CLOSE and PARTIAL_CLOSE always pass: risk reduction
// is never blocked.
func (g *Governor) Allow(p *model.Portfolio, instrument string, action model.Action) (bool, string) {
	if !action.Deploying() {
		return true, "risk reduction always allowed"
	}

	g.rollDay(g.now())

	if g.state.EmergencyStop {
		return false, "emergency stop active: " + g.state.EmergencyReason
	}

	if pr, ok := g.state.Portfolios[p.ID]; ok && g.now().Before(pr.CooldownUntil) {
		return false, fmt.Sprintf("cooldown after %d consecutive losses until %s",
			pr.ConsecutiveLosses, pr.CooldownUntil.Format(time.RFC3339))
	}

	if g.state.DailyLossLimit.IsPositive() && g.state.DailyRealizedLoss.GreaterThanOrEqual(g.state.DailyLossLimit) {
		g.tripEmergencyStop("daily loss limit reached")
		return false, "daily loss limit reached"
	}

	if action == model.ActionOpen && g.maxCorrelated > 0 {
		if group, ok := g.groups[instrument]; ok {
			held := 0
			for other := range p.Positions {
				if g.groups[other] == group {
					held++
				}
			}
			if held >= g.maxCorrelated {
				return false, fmt.Sprintf("correlation limit: already %d positions in group %q", held, group)
			}
		}
	}

	return true, "approved"
}

// RecordClose updates the loss streak and the system-wide daily-loss
// accumulator after a realized close. A profitable close clears the streak.
func (g *Governor) RecordClose(portfolioID string, pnl decimal.Decimal) {
	now := g.now()
	g.rollDay(now)

	pr, ok := g.state.Portfolios[portfolioID]
	if !ok {
		pr = &model.PortfolioRisk{}
		g.state.Portfolios[portfolioID] = pr
	}

	if pnl.IsNegative() {
		pr.ConsecutiveLosses++
		g.state.DailyRealizedLoss = g.state.DailyRealizedLoss.Add(pnl.Abs())

		if g.cooldownLosses > 0 && pr.ConsecutiveLosses >= g.cooldownLosses && now.After(pr.CooldownUntil) {
			pr.CooldownUntil = now.Add(g.cooldownDuration)
			g.logger.WithFields(logrus.Fields{
				"portfolio": portfolioID,
				"losses":    pr.ConsecutiveLosses,
				"until":     pr.CooldownUntil,
			}).Warn("loss cooldown armed")
		}

		if g.state.DailyLossLimit.IsPositive() && g.state.DailyRealizedLoss.GreaterThanOrEqual(g.state.DailyLossLimit) {
			g.tripEmergencyStop("daily loss limit reached")
		}
	} else {
		pr.ConsecutiveLosses = 0
	}
}

// rollDay resets the accumulator at the UTC day boundary. The emergency
// stop does not auto-clear; operators reset it explicitly.
func (g *Governor) rollDay(now time.Time) {
	if utils.SameDay(g.state.Day, now) {
		return
	}
	g.state.Day = utils.ResetTime(now, "day")
	g.state.DailyRealizedLoss = decimal.Zero
	g.logger.Info("daily loss accumulator reset")
}

func (g *Governor) tripEmergencyStop(reason string) {
	if g.state.EmergencyStop {
		return
	}
	g.state.EmergencyStop = true
	g.state.EmergencyReason = reason
	g.logger.WithField("reason", reason).Error("EMERGENCY STOP triggered")
}

// TriggerEmergencyStop is the operator-facing manual breaker.
func (g *Governor) TriggerEmergencyStop(reason string) {
	g.tripEmergencyStop(reason)
}

// ResetEmergencyStop refuses while the precipitating daily-loss condition
// still holds.
func (g *Governor) ResetEmergencyStop() error {
	g.rollDay(g.now())
	if g.state.DailyLossLimit.IsPositive() && g.state.DailyRealizedLoss.GreaterThanOrEqual(g.state.DailyLossLimit) {
		return ErrStopConditionActive
	}
	g.state.EmergencyStop = false
	g.state.EmergencyReason = ""
	g.logger.Info("emergency stop reset")
	return nil
}

func (g *Governor) SetDailyLossLimit(limit decimal.Decimal) {
	g.state.DailyLossLimit = limit
	g.logger.WithField("limit", limit.String()).Info("daily loss limit updated")
}

// State returns a deep copy for read-only consumers.
func (g *Governor) State() *model.RiskState {
	return g.state.Clone()
}
