package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/src/model"
)

func fptr(v float64) *float64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustLookup(t *testing.T, id string) model.StrategyConfig {
	t.Helper()
	cfg, err := Lookup(id)
	if err != nil {
		t.Fatalf("lookup %s: %v", id, err)
	}
	return cfg
}

func openPosition(avgEntry string, qty string) *model.Position {
	return &model.Position{
		Instrument:    "BTC/USDT",
		Quantity:      dec(qty),
		AvgEntryPrice: dec(avgEntry),
		EntryTime:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		HighestPrice:  dec(avgEntry),
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	cfg := mustLookup(t, "rsi_classic")
	snap := &model.SignalSnapshot{Price: dec("100"), RSI: fptr(20)}
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	first := Decide(cfg, snap, nil, now)
	second := Decide(cfg, snap, nil, now)

	if first != second {
		t.Fatalf("same inputs produced different verdicts: %+v vs %+v", first, second)
	}
	if first.Action != model.ActionOpen {
		t.Fatalf("expected OPEN on deep oversold, got %s (%s)", first.Action, first.Reason)
	}
}

func TestDecideHoldsWithoutSignalData(t *testing.T) {
	cfg := mustLookup(t, "rsi_classic")

	if v := Decide(cfg, nil, nil, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("expected HOLD on nil snapshot, got %s", v.Action)
	}
	if v := Decide(cfg, &model.SignalSnapshot{}, nil, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("expected HOLD on zero price, got %s", v.Action)
	}
}

func TestStopLossDominatesEverything(t *testing.T) {
	cfg := mustLookup(t, "rsi_classic") // stop loss 5%
	pos := openPosition("100", "10")
	// RSI screams buy, but the position is down 11%.
	snap := &model.SignalSnapshot{Price: dec("89"), RSI: fptr(15)}

	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionClose {
		t.Fatalf("expected CLOSE at -11%% with 5%% stop, got %s (%s)", v.Action, v.Reason)
	}
	if !strings.Contains(v.Reason, "stop-loss") {
		t.Fatalf("expected stop-loss reason, got %q", v.Reason)
	}
}

func TestTrailingStopFiresOnlyWhenArmed(t *testing.T) {
	cfg := mustLookup(t, "ema_trend") // trailing 4%
	pos := openPosition("100", "10")
	pos.HighestPrice = dec("110")
	snap := &model.SignalSnapshot{Price: dec("105.6")}

	if v := Decide(cfg, snap, pos, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("trailing must not fire while unarmed, got %s (%s)", v.Action, v.Reason)
	}

	pos.TrailingArmed = true
	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionClose {
		t.Fatalf("expected trailing CLOSE at 4%% retrace from 110, got %s (%s)", v.Action, v.Reason)
	}

	// One tick above the trigger keeps the position.
	snap.Price = dec("105.61")
	if v := Decide(cfg, snap, pos, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("expected HOLD above trailing trigger, got %s (%s)", v.Action, v.Reason)
	}
}

func TestTakeProfitScalesOutOnce(t *testing.T) {
	cfg := mustLookup(t, "scalp_partial") // take profit 3%, partial exits
	pos := openPosition("100", "10")
	snap := &model.SignalSnapshot{Price: dec("104")}

	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionPartialClose {
		t.Fatalf("expected PARTIAL_CLOSE at target, got %s (%s)", v.Action, v.Reason)
	}

	pos.PartialExitTaken = true
	v = Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionHold {
		t.Fatalf("partial exit must fire once per lifetime, got %s (%s)", v.Action, v.Reason)
	}
}

func TestRemainderClosesAtSecondTarget(t *testing.T) {
	cfg := mustLookup(t, "scalp_partial") // take profit 3%, remainder target 6%
	pos := openPosition("100", "10")
	pos.PartialExitTaken = true

	snap := &model.SignalSnapshot{Price: dec("105")}
	if v := Decide(cfg, snap, pos, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("remainder must ride below the second target, got %s (%s)", v.Action, v.Reason)
	}

	snap.Price = dec("106")
	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionClose {
		t.Fatalf("expected full CLOSE at second target, got %s (%s)", v.Action, v.Reason)
	}
}

func TestTakeProfitClosesWithoutPartialCapability(t *testing.T) {
	cfg := mustLookup(t, "bollinger_revert") // take profit 6%, no partial
	pos := openPosition("100", "10")
	snap := &model.SignalSnapshot{Price: dec("107")}

	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionClose {
		t.Fatalf("expected full CLOSE at take-profit, got %s (%s)", v.Action, v.Reason)
	}
}

func TestHODLNeverSells(t *testing.T) {
	cfg := mustLookup(t, "hodl")
	pos := openPosition("100", "10")
	snap := &model.SignalSnapshot{Price: dec("300")}

	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionHold {
		t.Fatalf("HODL sold at 3x: %s (%s)", v.Action, v.Reason)
	}

	if v := Decide(cfg, snap, nil, time.Now()); v.Action != model.ActionOpen {
		t.Fatalf("HODL should open its initial position, got %s", v.Action)
	}
}

func TestTimeLimitExit(t *testing.T) {
	cfg := mustLookup(t, "swing_timeboxed") // 72h max hold
	pos := openPosition("100", "10")
	snap := &model.SignalSnapshot{Price: dec("101")}

	inside := pos.EntryTime.Add(71 * time.Hour)
	if v := Decide(cfg, snap, pos, inside); v.Action != model.ActionHold {
		t.Fatalf("expected HOLD inside the hold window, got %s (%s)", v.Action, v.Reason)
	}

	outside := pos.EntryTime.Add(73 * time.Hour)
	if v := Decide(cfg, snap, pos, outside); v.Action != model.ActionClose {
		t.Fatalf("expected CLOSE past max hold duration, got %s (%s)", v.Action, v.Reason)
	}
}

func TestReinforcementLadderRespectsBounds(t *testing.T) {
	cfg := mustLookup(t, "martingale_safe") // threshold 5%, max 3 levels
	pos := openPosition("100", "10")
	snap := &model.SignalSnapshot{Price: dec("94")}

	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionAdd {
		t.Fatalf("expected ADD at -6%% on level 0, got %s (%s)", v.Action, v.Reason)
	}

	pos.ReinforceLevel = 3
	v = Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionHold {
		t.Fatalf("expected HOLD at ladder cap, got %s (%s)", v.Action, v.Reason)
	}

	// Shallow drawdown never reinforces.
	pos.ReinforceLevel = 0
	snap.Price = dec("97")
	v = Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionHold {
		t.Fatalf("expected HOLD at -3%% below threshold, got %s (%s)", v.Action, v.Reason)
	}
}

func TestUnboundedMartingaleKeepsAdding(t *testing.T) {
	cfg := mustLookup(t, "martingale_unbounded")
	pos := openPosition("100", "10")
	pos.ReinforceLevel = 50
	snap := &model.SignalSnapshot{Price: dec("94")}

	v := Decide(cfg, snap, pos, time.Now())
	if v.Action != model.ActionAdd {
		t.Fatalf("unbounded ladder stopped at level 50: %s (%s)", v.Action, v.Reason)
	}
}

func TestPatternGateVetoesDeploysOnly(t *testing.T) {
	cfg := mustLookup(t, "bollinger_squeeze") // pattern gate at 50
	snap := &model.SignalSnapshot{
		Price:     dec("90"),
		Bollinger: &model.Bollinger{Upper: 110, Middle: 100, Lower: 90},
	}

	v := Decide(cfg, snap, nil, time.Now())
	if v.Action != model.ActionHold || !strings.Contains(v.Reason, "pattern clarity") {
		t.Fatalf("expected pattern veto, got %s (%s)", v.Action, v.Reason)
	}

	snap.Pattern = &model.PatternScore{Score: 80}
	if v := Decide(cfg, snap, nil, time.Now()); v.Action != model.ActionOpen {
		t.Fatalf("expected OPEN with clear pattern, got %s (%s)", v.Action, v.Reason)
	}

	// Exits are never pattern-gated.
	pos := openPosition("100", "10")
	exitSnap := &model.SignalSnapshot{
		Price:     dec("111"),
		Bollinger: &model.Bollinger{Upper: 110, Middle: 100, Lower: 90},
	}
	if v := Decide(cfg, exitSnap, pos, time.Now()); v.Action != model.ActionClose {
		t.Fatalf("expected CLOSE without pattern data, got %s (%s)", v.Action, v.Reason)
	}
}

func TestConfluenceNeedsTwoFamilies(t *testing.T) {
	cfg := mustLookup(t, "confluence_normal")
	pattern := &model.PatternScore{Score: 90}

	oneFamily := &model.SignalSnapshot{Price: dec("100"), RSI: fptr(20), Pattern: pattern}
	if v := Decide(cfg, oneFamily, nil, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("one bullish family must not open, got %s (%s)", v.Action, v.Reason)
	}

	twoFamilies := &model.SignalSnapshot{
		Price:     dec("100"),
		RSI:       fptr(20),
		Sentiment: fptr(10),
		Pattern:   pattern,
	}
	if v := Decide(cfg, twoFamilies, nil, time.Now()); v.Action != model.ActionOpen {
		t.Fatalf("two bullish families should open, got %s (%s)", v.Action, v.Reason)
	}
}

func TestAddNeverOpensFresh(t *testing.T) {
	// A reinforcement vote requires an existing position; with none and no
	// other bullish capability the strategy holds.
	cfg := mustLookup(t, "martingale_safe")
	snap := &model.SignalSnapshot{Price: dec("94"), RSI: fptr(50)}

	if v := Decide(cfg, snap, nil, time.Now()); v.Action != model.ActionHold {
		t.Fatalf("expected HOLD with no position and neutral RSI, got %s (%s)", v.Action, v.Reason)
	}
}
