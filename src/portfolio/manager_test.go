package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"

	"papertrader/src/model"
	"papertrader/src/strategy"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	nullLogger, _ := test.NewNullLogger()
	return NewManager(dec("0.001"), nullLogger.WithField("test", t.Name()))
}

func newTestPortfolio(cash string) *model.Portfolio {
	return &model.Portfolio{
		ID:             "p-test",
		Name:           "Test",
		StrategyID:     "rsi_classic",
		Cash:           dec(cash),
		InitialCapital: dec(cash),
		Active:         true,
		Instruments:    []string{"BTC/USDT"},
		Positions:      make(map[string]*model.Position),
	}
}

func mustCfg(t *testing.T, id string) model.StrategyConfig {
	t.Helper()
	cfg, err := strategy.Lookup(id)
	if err != nil {
		t.Fatalf("lookup %s: %v", id, err)
	}
	return cfg
}

func TestOpenAllocatesConfiguredFraction(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "rsi_classic") // 10% allocation

	trade, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "test entry")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !trade.Quantity.Equal(dec("10")) {
		t.Fatalf("expected qty 10 (1000 at 100), got %s", trade.Quantity)
	}
	// 10000 - 1000 notional - 1 fee
	if !p.Cash.Equal(dec("8999")) {
		t.Fatalf("expected cash 8999, got %s", p.Cash)
	}

	pos := p.Positions["BTC/USDT"]
	if pos == nil {
		t.Fatal("position not created")
	}
	if pos.State() != model.PositionStateOpen {
		t.Fatalf("expected open state, got %s", pos.State())
	}
	if !pos.HighestPrice.Equal(dec("100")) {
		t.Fatalf("high-water mark not initialized: %s", pos.HighestPrice)
	}
}

func TestOpenRejectsDuplicatePosition(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "rsi_classic")

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "first"); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "second"); !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
}

func TestAddRecomputesWeightedAverage(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "reinforce_cautious") // multiplier 1x

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	firstQty := p.Positions["BTC/USDT"].Quantity

	trade, err := m.Add(cfg, p, "BTC/USDT", dec("94"), "reinforce")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	pos := p.Positions["BTC/USDT"]
	wantAvg := firstQty.Mul(dec("100")).Add(trade.Quantity.Mul(dec("94"))).
		Div(firstQty.Add(trade.Quantity))
	if !pos.AvgEntryPrice.Equal(wantAvg) {
		t.Fatalf("weighted average wrong: got %s want %s", pos.AvgEntryPrice, wantAvg)
	}
	if pos.ReinforceLevel != 1 {
		t.Fatalf("expected ladder level 1, got %d", pos.ReinforceLevel)
	}
	if pos.AvgEntryPrice.GreaterThanOrEqual(dec("100")) || pos.AvgEntryPrice.LessThanOrEqual(dec("94")) {
		t.Fatalf("average must land between fills, got %s", pos.AvgEntryPrice)
	}
}

func TestAddWithoutPositionIsContractViolation(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "reinforce_cautious")

	if _, err := m.Add(cfg, p, "BTC/USDT", dec("94"), "reinforce"); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}

func TestAddIsCappedByCash(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "martingale_safe") // 2x multiplier

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// Drain cash so the doubled rung cannot be funded in full.
	p.Cash = dec("500")

	trade, err := m.Add(cfg, p, "BTC/USDT", dec("94"), "reinforce")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if trade.Notional.GreaterThan(dec("500")) {
		t.Fatalf("rung exceeded available cash: %s", trade.Notional)
	}
	if p.Cash.IsNegative() {
		t.Fatalf("cash went negative: %s", p.Cash)
	}
}

func TestAddClampedToCashCoversFee(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("1000")
	cfg := mustCfg(t, "martingale_safe")
	cfg.AllocationPct = dec("90")
	cfg.ReinforceMultiplier = dec("10")

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// 1000 - 900 notional - 0.9 fee
	if !p.Cash.Equal(dec("99.1")) {
		t.Fatalf("expected cash 99.1 after open, got %s", p.Cash)
	}

	// The 10x rung wants 9000; the clamp must leave room for its own fee.
	trade, err := m.Add(cfg, p, "BTC/USDT", dec("100"), "reinforce")
	if err != nil {
		t.Fatalf("clamped add failed: %v", err)
	}
	if p.Cash.IsNegative() {
		t.Fatalf("cash went negative after clamped add: %s", p.Cash)
	}
	if trade.Notional.Add(trade.Fee).GreaterThan(dec("99.1")) {
		t.Fatalf("notional plus fee exceeds pre-add cash: %s + %s", trade.Notional, trade.Fee)
	}
	if gap := AccountingGap(p); gap.Abs().GreaterThan(dec("0.0000001")) {
		t.Fatalf("accounting identity broken by clamped add: gap %s", gap)
	}
}

func TestPartialCloseFiresOncePerLifetime(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "scalp_partial") // 0.5 exit fraction

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	before := p.Positions["BTC/USDT"].Quantity

	trade, err := m.PartialClose(cfg, p, "BTC/USDT", dec("104"), "target hit")
	if err != nil {
		t.Fatalf("partial close failed: %v", err)
	}
	pos := p.Positions["BTC/USDT"]
	if !pos.Quantity.Equal(before.Sub(trade.Quantity)) {
		t.Fatalf("remaining quantity wrong: %s", pos.Quantity)
	}
	if pos.State() != model.PositionStatePartial {
		t.Fatalf("expected open_partial state, got %s", pos.State())
	}
	if !trade.Pnl.IsPositive() {
		t.Fatalf("expected positive realized pnl, got %s", trade.Pnl)
	}

	if _, err := m.PartialClose(cfg, p, "BTC/USDT", dec("110"), "again"); !errors.Is(err, ErrPartialTaken) {
		t.Fatalf("expected ErrPartialTaken, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")

	trade, err := m.Close(p, "BTC/USDT", dec("100"), "nothing to close")
	if err != nil || trade != nil {
		t.Fatalf("close on missing position must be a no-op, got trade=%v err=%v", trade, err)
	}
}

func TestCloseRealizesPnlNetOfFees(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "rsi_classic")

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	trade, err := m.Close(p, "BTC/USDT", dec("110"), "take profit")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// qty 10: gross 100 profit, exit fee 1100 * 0.001 = 1.1
	if !trade.Pnl.Equal(dec("98.9")) {
		t.Fatalf("expected pnl 98.9, got %s", trade.Pnl)
	}
	if _, still := p.Positions["BTC/USDT"]; still {
		t.Fatal("position not removed after close")
	}
	if p.Stats.WinningTrades != 1 || p.Stats.TotalTrades != 2 {
		t.Fatalf("stats wrong: %+v", p.Stats)
	}
}

func TestInsufficientFundsIsBenign(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("50") // 10% allocation = 5, below min notional
	cfg := mustCfg(t, "rsi_classic")

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(p.Positions) != 0 || len(p.Trades) != 0 {
		t.Fatal("failed open must not mutate the portfolio")
	}
}

func TestTrailingArmsAtThreshold(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "ema_trend") // arms 3% over entry

	if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	m.UpdateMarketPrice(cfg, p, "BTC/USDT", dec("102"))
	if p.Positions["BTC/USDT"].TrailingArmed {
		t.Fatal("armed below threshold")
	}

	m.UpdateMarketPrice(cfg, p, "BTC/USDT", dec("103"))
	pos := p.Positions["BTC/USDT"]
	if !pos.TrailingArmed {
		t.Fatal("not armed at threshold")
	}
	if pos.State() != model.PositionStateTrailing {
		t.Fatalf("expected open_trailing, got %s", pos.State())
	}

	// High-water mark never retreats.
	m.UpdateMarketPrice(cfg, p, "BTC/USDT", dec("101"))
	if !pos.HighestPrice.Equal(dec("103")) {
		t.Fatalf("high-water mark retreated: %s", pos.HighestPrice)
	}
}

func TestAccountingIdentityAcrossLifecycle(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "grid_narrow")

	steps := []struct {
		op    func() (*model.Trade, error)
		label string
	}{
		{func() (*model.Trade, error) { return m.Open(cfg, p, "BTC/USDT", dec("100"), "anchor") }, "open"},
		{func() (*model.Trade, error) { return m.Add(cfg, p, "BTC/USDT", dec("97"), "rung 1") }, "add1"},
		{func() (*model.Trade, error) { return m.Add(cfg, p, "BTC/USDT", dec("95"), "rung 2") }, "add2"},
		{func() (*model.Trade, error) { return m.PartialClose(cfg, p, "BTC/USDT", dec("103"), "scale out") }, "partial"},
		{func() (*model.Trade, error) { return m.Close(p, "BTC/USDT", dec("105"), "exit") }, "close"},
	}

	tolerance := dec("0.0000001")
	for _, step := range steps {
		if _, err := step.op(); err != nil {
			t.Fatalf("%s failed: %v", step.label, err)
		}
		if gap := AccountingGap(p); gap.Abs().GreaterThan(tolerance) {
			t.Fatalf("accounting identity broken after %s: gap %s", step.label, gap)
		}
	}

	if len(p.Positions) != 0 {
		t.Fatal("expected flat book at end of lifecycle")
	}
}

func TestAccountingIdentitySurvivesLogRotation(t *testing.T) {
	m := newTestManager(t)
	p := newTestPortfolio("10000")
	cfg := mustCfg(t, "rsi_classic")

	// Enough open/close cycles to rotate the document trade log.
	cycles := model.MaxDocumentTrades/2 + 50
	for i := 0; i < cycles; i++ {
		if _, err := m.Open(cfg, p, "BTC/USDT", dec("100"), "entry"); err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		if _, err := m.Close(p, "BTC/USDT", dec("100"), "exit"); err != nil {
			t.Fatalf("close %d failed: %v", i, err)
		}
	}

	if len(p.Trades) != model.MaxDocumentTrades {
		t.Fatalf("trade log not rotated: %d", len(p.Trades))
	}
	if p.Stats.TotalTrades != 2*cycles {
		t.Fatalf("stats lost trades across rotation: %d", p.Stats.TotalTrades)
	}
	if gap := AccountingGap(p); gap.Abs().GreaterThan(dec("0.000001")) {
		t.Fatalf("accounting identity broken after log rotation: gap %s", gap)
	}
}

func TestAppendTradeBoundsDocumentLog(t *testing.T) {
	p := newTestPortfolio("10000")
	for i := 0; i < model.MaxDocumentTrades+25; i++ {
		p.AppendTrade(model.Trade{
			Action:    model.ActionOpen,
			Timestamp: time.Now(),
		})
	}
	if len(p.Trades) != model.MaxDocumentTrades {
		t.Fatalf("trade log not bounded: %d", len(p.Trades))
	}
	if p.Stats.TotalTrades != model.MaxDocumentTrades+25 {
		t.Fatalf("stats must count beyond the bound: %d", p.Stats.TotalTrades)
	}
}
