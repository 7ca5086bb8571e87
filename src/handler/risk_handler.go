package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/model"
	"papertrader/src/risk"
)

type riskController interface {
	RiskState() *model.RiskState
	TriggerEmergencyStop(reason string)
	ResetEmergencyStop() error
	SetDailyLossLimit(limit decimal.Decimal)
}

// GetRiskStateHandler exposes the governor's current state to operators.
func GetRiskStateHandler(engine riskController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := engine.RiskState()
		writeJSON(w, map[string]interface{}{
			"emergency_stop":      state.EmergencyStop,
			"emergency_reason":    state.EmergencyReason,
			"daily_realized_loss": state.DailyRealizedLoss,
			"daily_loss_limit":    state.DailyLossLimit,
			"loss_ratio":          state.LossRatio(),
			"portfolios":          state.Portfolios,
		})
	}
}

// TriggerEmergencyStopHandler is the manual breaker. The stop takes effect
// on the next deploying decision; open positions are not force-closed.
func TriggerEmergencyStopHandler(engine riskController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
			http.Error(w, "body must be {\"reason\": \"...\"}", http.StatusBadRequest)
			return
		}

		engine.TriggerEmergencyStop("manual: " + body.Reason)
		logger.WithField("reason", body.Reason).Warn("emergency stop triggered via API")
		writeJSON(w, engine.RiskState())
	}
}

// ResetEmergencyStopHandler clears the stop unless its trigger condition
// still holds, in which case the reset is refused with 409.
func ResetEmergencyStopHandler(engine riskController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.ResetEmergencyStop(); err != nil {
			if errors.Is(err, risk.ErrStopConditionActive) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			logger.WithError(err).Error("failed to reset emergency stop")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, engine.RiskState())
	}
}

// SetDailyLossLimitHandler updates the circuit-breaker threshold. Zero
// disables the breaker.
func SetDailyLossLimitHandler(engine riskController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Limit decimal.Decimal `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "body must be {\"limit\": \"500\"}", http.StatusBadRequest)
			return
		}
		if body.Limit.IsNegative() {
			http.Error(w, "limit must not be negative", http.StatusBadRequest)
			return
		}

		engine.SetDailyLossLimit(body.Limit)
		writeJSON(w, engine.RiskState())
	}
}
