package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"

	"papertrader/src/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestGovernor(t *testing.T) (*Governor, *time.Time) {
	t.Helper()
	nullLogger, _ := test.NewNullLogger()
	g := NewGovernor(Config{
		DailyLossLimit:   500,
		CooldownLosses:   3,
		CooldownDuration: "4h",
		MaxCorrelated:    2,
		CorrelationGroups: map[string]string{
			"BTC/USDT": "majors",
			"ETH/USDT": "majors",
			"BNB/USDT": "majors",
			"SOL/USDT": "alt-l1",
		},
	}, nullLogger.WithField("test", t.Name()))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	g.state.Day = now.Truncate(24 * time.Hour)
	return g, &now
}

func testPortfolio(held ...string) *model.Portfolio {
	p := &model.Portfolio{
		ID:        "p-risk",
		Positions: make(map[string]*model.Position),
	}
	for _, instrument := range held {
		p.Positions[instrument] = &model.Position{Instrument: instrument, Quantity: dec("1")}
	}
	return p
}

func TestCloseAlwaysPasses(t *testing.T) {
	g, _ := newTestGovernor(t)
	g.TriggerEmergencyStop("manual test")
	p := testPortfolio("BTC/USDT")

	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionClose); !ok {
		t.Fatal("CLOSE must pass under emergency stop")
	}
	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionPartialClose); !ok {
		t.Fatal("PARTIAL_CLOSE must pass under emergency stop")
	}
	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionOpen); ok {
		t.Fatal("OPEN must be denied under emergency stop")
	}
	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionAdd); ok {
		t.Fatal("ADD must be denied under emergency stop")
	}
}

func TestCooldownAfterConsecutiveLosses(t *testing.T) {
	g, now := newTestGovernor(t)
	p := testPortfolio()

	g.RecordClose("p-risk", dec("-10"))
	g.RecordClose("p-risk", dec("-10"))
	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionOpen); !ok {
		t.Fatal("two losses must not trigger cooldown")
	}

	g.RecordClose("p-risk", dec("-10"))
	if ok, reason := g.Allow(p, "BTC/USDT", model.ActionOpen); ok {
		t.Fatalf("expected cooldown denial after third loss, got approval (%s)", reason)
	}

	// The window expires.
	*now = now.Add(4*time.Hour + time.Minute)
	if ok, reason := g.Allow(p, "BTC/USDT", model.ActionOpen); !ok {
		t.Fatalf("cooldown should have expired: %s", reason)
	}
}

func TestProfitClearsLossStreak(t *testing.T) {
	g, _ := newTestGovernor(t)

	g.RecordClose("p-risk", dec("-10"))
	g.RecordClose("p-risk", dec("-10"))
	g.RecordClose("p-risk", dec("25"))
	g.RecordClose("p-risk", dec("-10"))

	state := g.State()
	if state.Portfolios["p-risk"].ConsecutiveLosses != 1 {
		t.Fatalf("expected streak reset by profit, got %d", state.Portfolios["p-risk"].ConsecutiveLosses)
	}
}

func TestDailyLossLimitTripsEmergencyStop(t *testing.T) {
	g, _ := newTestGovernor(t)
	p := testPortfolio()

	g.RecordClose("a", dec("-300"))
	if g.State().EmergencyStop {
		t.Fatal("stop tripped below the limit")
	}

	// Losses from different portfolios accumulate into one breaker.
	g.RecordClose("b", dec("-250"))
	state := g.State()
	if !state.EmergencyStop {
		t.Fatal("expected stop at 550 >= 500 limit")
	}
	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionOpen); ok {
		t.Fatal("deploys must be denied after the breaker trips")
	}
}

func TestResetRefusedWhileConditionHolds(t *testing.T) {
	g, now := newTestGovernor(t)

	g.RecordClose("a", dec("-600"))
	if !g.State().EmergencyStop {
		t.Fatal("expected tripped stop")
	}

	if err := g.ResetEmergencyStop(); !errors.Is(err, ErrStopConditionActive) {
		t.Fatalf("expected refusal while loss >= limit, got %v", err)
	}

	// Next UTC day the accumulator resets and the reset goes through.
	*now = now.Add(24 * time.Hour)
	if err := g.ResetEmergencyStop(); err != nil {
		t.Fatalf("expected reset after day rollover, got %v", err)
	}
	if g.State().EmergencyStop {
		t.Fatal("stop still set after reset")
	}
}

func TestDayRolloverResetsAccumulatorNotStop(t *testing.T) {
	g, now := newTestGovernor(t)
	p := testPortfolio()

	g.TriggerEmergencyStop("manual")
	g.RecordClose("a", dec("-100"))
	*now = now.Add(24 * time.Hour)

	if ok, _ := g.Allow(p, "BTC/USDT", model.ActionOpen); ok {
		t.Fatal("emergency stop must survive the day boundary")
	}
	if !g.State().DailyRealizedLoss.IsZero() {
		t.Fatal("accumulator must reset at the day boundary")
	}
}

func TestCorrelationLimitCountsGroupMembers(t *testing.T) {
	g, _ := newTestGovernor(t)
	p := testPortfolio("BTC/USDT", "ETH/USDT")

	if ok, reason := g.Allow(p, "BNB/USDT", model.ActionOpen); ok {
		t.Fatalf("expected correlation denial with 2 majors held, got approval (%s)", reason)
	}
	// Different group is fine.
	if ok, reason := g.Allow(p, "SOL/USDT", model.ActionOpen); !ok {
		t.Fatalf("alt-l1 open should pass: %s", reason)
	}
	// ADD to an existing group member is not an additional correlated slot.
	if ok, reason := g.Allow(p, "BTC/USDT", model.ActionAdd); !ok {
		t.Fatalf("ADD should not hit the correlation limit: %s", reason)
	}
}

func TestRestoreStateKeepsTrippedStop(t *testing.T) {
	g, _ := newTestGovernor(t)

	persisted := model.NewRiskState()
	persisted.EmergencyStop = true
	persisted.EmergencyReason = "daily loss limit reached"
	g.RestoreState(persisted)

	state := g.State()
	if !state.EmergencyStop {
		t.Fatal("restored stop lost")
	}
	if !state.DailyLossLimit.Equal(dec("500")) {
		t.Fatalf("configured limit should backfill a zero persisted limit, got %s", state.DailyLossLimit)
	}
}
