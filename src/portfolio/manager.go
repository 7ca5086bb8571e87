package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrader/src/model"
)

var (
	// Contract violations: the caller asked for a transition the state
	// machine does not have. These abort the offending portfolio's tick.
	ErrNoPosition        = errors.New("no open position for instrument")
	ErrDuplicatePosition = errors.New("position already open for instrument")
	ErrPartialTaken      = errors.New("partial exit already taken")
	ErrBadQuantity       = errors.New("quantity must be positive")

	// Benign skips: the verdict stands but the portfolio cannot fund it.
	ErrInsufficientFunds = errors.New("insufficient cash for trade")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Manager owns the per-(portfolio, instrument) position state machine:
// NONE -> OPEN -> OPEN_TRAILING / OPEN_PARTIAL -> NONE. It mutates portfolio
// documents in place; callers serialize access (the engine holds the lock).
type Manager struct {
	feeRate          decimal.Decimal
	minTradeNotional decimal.Decimal
	logger           *logrus.Entry
	now              func() time.Time
}

func NewManager(feeRate decimal.Decimal, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		feeRate:          feeRate,
		minTradeNotional: decimal.NewFromInt(10),
		logger:           logger,
		now:              time.Now,
	}
}

// Apply commits a verdict against the portfolio. The returned trade is nil
// for HOLD and for funding skips (ErrInsufficientFunds).
func (m *Manager) Apply(cfg model.StrategyConfig, p *model.Portfolio, instrument string, price decimal.Decimal, v model.Verdict) (*model.Trade, error) {
	switch v.Action {
	case model.ActionHold:
		return nil, nil
	case model.ActionOpen:
		return m.Open(cfg, p, instrument, price, v.Reason)
	case model.ActionAdd:
		return m.Add(cfg, p, instrument, price, v.Reason)
	case model.ActionPartialClose:
		return m.PartialClose(cfg, p, instrument, price, v.Reason)
	case model.ActionClose:
		return m.Close(p, instrument, price, v.Reason)
	default:
		return nil, fmt.Errorf("unknown action %q", v.Action)
	}
}

// UpdateMarketPrice refreshes the position's high-water mark and arms the
// trailing stop once price clears the arming margin over the average entry.
// Called on every tick before the decision engine runs.
func (m *Manager) UpdateMarketPrice(cfg model.StrategyConfig, p *model.Portfolio, instrument string, price decimal.Decimal) {
	pos, ok := p.Positions[instrument]
	if !ok {
		return
	}
	if price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}
	if !pos.TrailingArmed && cfg.Has(model.CapTrailing) && cfg.TrailingArmPct.IsPositive() {
		arm := pos.AvgEntryPrice.Mul(hundred.Add(cfg.TrailingArmPct)).Div(hundred)
		if pos.HighestPrice.GreaterThanOrEqual(arm) {
			pos.TrailingArmed = true
			m.logger.WithFields(logrus.Fields{
				"portfolio":  p.ID,
				"instrument": instrument,
				"high":       pos.HighestPrice.String(),
			}).Info("trailing stop armed")
		}
	}
}

// Open creates a new position funded by AllocationPct of cash.
func (m *Manager) Open(cfg model.StrategyConfig, p *model.Portfolio, instrument string, price decimal.Decimal, reason string) (*model.Trade, error) {
	if _, exists := p.Positions[instrument]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePosition, instrument)
	}
	if price.IsZero() || price.IsNegative() {
		return nil, fmt.Errorf("open %s: bad price %s", instrument, price)
	}

	amount := p.Cash.Mul(cfg.AllocationPct).Div(hundred)
	return m.fill(p, instrument, price, amount, model.ActionOpen, reason)
}

// Add reinforces an existing position: the new rung is the last fill scaled
// by ReinforceMultiplier, the weighted-average entry is recomputed in the
// same commit, and the ladder level increments. Ladder bounds are the
// decision engine's job; the manager only enforces the state machine.
func (m *Manager) Add(cfg model.StrategyConfig, p *model.Portfolio, instrument string, price decimal.Decimal, reason string) (*model.Trade, error) {
	pos, ok := p.Positions[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: ADD %s", ErrNoPosition, instrument)
	}

	amount := pos.LastFillNotional.Mul(cfg.ReinforceMultiplier)
	if amount.Add(amount.Mul(m.feeRate)).GreaterThan(p.Cash) {
		// Clamp so the notional plus its fee still fits in cash.
		amount = p.Cash.Div(one.Add(m.feeRate)).Truncate(8)
	}
	return m.fill(p, instrument, price, amount, model.ActionAdd, reason)
}

// fill executes the buy side shared by Open and Add.
func (m *Manager) fill(p *model.Portfolio, instrument string, price, amount decimal.Decimal, action model.Action, reason string) (*model.Trade, error) {
	if amount.LessThan(m.minTradeNotional) || amount.Add(amount.Mul(m.feeRate)).GreaterThan(p.Cash) {
		return nil, fmt.Errorf("%w: need %s plus fee, cash %s", ErrInsufficientFunds, amount.StringFixed(2), p.Cash.StringFixed(2))
	}

	qty := amount.Div(price)
	notional := qty.Mul(price)
	fee := notional.Mul(m.feeRate)
	now := m.now()

	if action == model.ActionOpen {
		p.Positions[instrument] = &model.Position{
			Instrument:       instrument,
			Quantity:         qty,
			AvgEntryPrice:    price,
			EntryTime:        now,
			HighestPrice:     price,
			LastFillNotional: notional,
		}
	} else {
		pos := p.Positions[instrument]
		newQty := pos.Quantity.Add(qty)
		pos.AvgEntryPrice = pos.Quantity.Mul(pos.AvgEntryPrice).Add(qty.Mul(price)).Div(newQty)
		pos.Quantity = newQty
		pos.ReinforceLevel++
		pos.LastFillNotional = notional
	}

	p.Cash = p.Cash.Sub(notional).Sub(fee)
	p.UpdatedAt = now

	trade := model.Trade{
		ID:         uuid.NewString(),
		Action:     action,
		Instrument: instrument,
		Price:      price,
		Quantity:   qty,
		Notional:   notional,
		Fee:        fee,
		Reason:     reason,
		Timestamp:  now,
	}
	p.AppendTrade(trade)

	m.logger.WithFields(logrus.Fields{
		"portfolio":  p.ID,
		"instrument": instrument,
		"action":     action,
		"qty":        qty.String(),
		"price":      price.String(),
	}).Info(reason)

	return &trade, nil
}

// PartialClose sells the configured fraction at the first take-profit
// target. It fires at most once per position lifetime.
func (m *Manager) PartialClose(cfg model.StrategyConfig, p *model.Portfolio, instrument string, price decimal.Decimal, reason string) (*model.Trade, error) {
	pos, ok := p.Positions[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: PARTIAL_CLOSE %s", ErrNoPosition, instrument)
	}
	if pos.PartialExitTaken {
		return nil, fmt.Errorf("%w: %s", ErrPartialTaken, instrument)
	}

	fraction := cfg.PartialExitPct
	if !fraction.IsPositive() || fraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		fraction = decimal.RequireFromString("0.5")
	}
	closedQty := pos.Quantity.Mul(fraction)

	trade, err := m.sell(p, pos, closedQty, price, model.ActionPartialClose, reason)
	if err != nil {
		return nil, err
	}
	pos.Quantity = pos.Quantity.Sub(closedQty)
	pos.PartialExitTaken = true
	return trade, nil
}

// Close liquidates the full position and removes it. Closing an instrument
// with no position is an idempotent no-op so a double CLOSE in one tick
// cannot fail the portfolio.
func (m *Manager) Close(p *model.Portfolio, instrument string, price decimal.Decimal, reason string) (*model.Trade, error) {
	pos, ok := p.Positions[instrument]
	if !ok {
		return nil, nil
	}

	trade, err := m.sell(p, pos, pos.Quantity, price, model.ActionClose, reason)
	if err != nil {
		return nil, err
	}
	delete(p.Positions, instrument)
	m.trackDrawdown(p)
	return trade, nil
}

// sell realizes P&L for closedQty at price. P&L is relative to the
// weighted-average entry at this instant, net of the exit fee.
func (m *Manager) sell(p *model.Portfolio, pos *model.Position, closedQty, price decimal.Decimal, action model.Action, reason string) (*model.Trade, error) {
	if !closedQty.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrBadQuantity, pos.Instrument)
	}

	proceeds := closedQty.Mul(price)
	fee := proceeds.Mul(m.feeRate)
	pnl := price.Sub(pos.AvgEntryPrice).Mul(closedQty).Sub(fee)
	now := m.now()

	p.Cash = p.Cash.Add(proceeds).Sub(fee)
	p.UpdatedAt = now

	trade := model.Trade{
		ID:         uuid.NewString(),
		Action:     action,
		Instrument: pos.Instrument,
		Price:      price,
		Quantity:   closedQty,
		Notional:   proceeds,
		Fee:        fee,
		Pnl:        pnl,
		Reason:     reason,
		Timestamp:  now,
	}
	p.AppendTrade(trade)

	m.logger.WithFields(logrus.Fields{
		"portfolio":  p.ID,
		"instrument": pos.Instrument,
		"action":     action,
		"pnl":        pnl.StringFixed(2),
	}).Info(reason)

	return &trade, nil
}

func (m *Manager) trackDrawdown(p *model.Portfolio) {
	if !p.InitialCapital.IsPositive() {
		return
	}
	equity := p.Cash.Add(BookValue(p))
	dd := p.InitialCapital.Sub(equity).Div(p.InitialCapital).Mul(hundred)
	if dd.GreaterThan(p.Stats.MaxDrawdownPct) {
		p.Stats.MaxDrawdownPct = dd
	}
}

// BookValue values open positions at their weighted-average entry price.
func BookValue(p *model.Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.Quantity.Mul(pos.AvgEntryPrice))
	}
	return total
}

// AccountingGap returns cash + book value minus what the ledger implies
// (initial capital + realized P&L - deploy-side fees). The cumulative sums
// come from PortfolioStats, which survive the document trade log rotating at
// MaxDocumentTrades. It should stay within decimal division noise; tests
// assert this after every commit.
func AccountingGap(p *model.Portfolio) decimal.Decimal {
	expected := p.InitialCapital.Add(p.Stats.RealizedPnl).Sub(p.Stats.DeployFees)
	return p.Cash.Add(BookValue(p)).Sub(expected)
}
