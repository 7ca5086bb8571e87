package executors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/model"
	"papertrader/src/portfolio"
	"papertrader/src/repository"
	"papertrader/src/risk"
	"papertrader/src/rotation"
	"papertrader/src/signals"
	"papertrader/src/strategy"
)

var (
	// ErrHalted means persistence failed past its retry budget. The engine
	// refuses further ticks so in-memory state cannot drift from disk.
	ErrHalted = errors.New("engine halted after persistence failure")

	ErrUnknownPortfolio = errors.New("unknown portfolio")
)

// Engine runs the per-tick pipeline: fetch signals, update market prices,
// decide, gate through the risk governor, apply, rotate, persist. All state
// mutation happens under one mutex; HTTP readers get deep copies.
type Engine struct {
	mu         sync.Mutex
	portfolios map[string]*model.Portfolio
	governor   *risk.Governor
	manager    *portfolio.Manager
	adapter    signals.Adapter
	rotator    *rotation.Rotator
	store      repository.PortfolioStore
	audit      *repository.TradeAuditRepository
	config     Config
	logger     *logger.Entry
	now        func() time.Time
	halted     bool
}

func NewEngine(
	portfolios []*model.Portfolio,
	adapter signals.Adapter,
	governor *risk.Governor,
	manager *portfolio.Manager,
	store repository.PortfolioStore,
	audit *repository.TradeAuditRepository,
	log *logger.Entry,
) *Engine {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	byID := make(map[string]*model.Portfolio, len(portfolios))
	for _, p := range portfolios {
		byID[p.ID] = p
	}

	return &Engine{
		portfolios: byID,
		governor:   governor,
		manager:    manager,
		adapter:    adapter,
		rotator:    rotation.NewRotator(),
		store:      store,
		audit:      audit,
		config:     GetConfig(),
		logger:     log,
		now:        time.Now,
	}
}

// Tick runs one full evaluation cycle over every active portfolio. Signal
// fetches run outside the lock so dashboard reads and control calls never
// wait on network I/O; the lock covers only the decide/apply/persist commit.
// A contract violation in one portfolio aborts only that portfolio; the
// others still run and the tick still persists.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	if e.halted {
		e.mu.Unlock()
		return ErrHalted
	}
	needed := e.neededInstruments()
	e.mu.Unlock()

	snapshots := e.fetchSnapshots(ctx, needed)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted {
		return ErrHalted
	}

	now := e.now()
	for _, id := range e.sortedIDs() {
		p := e.portfolios[id]
		if !p.Active {
			continue
		}
		if err := e.runPortfolio(ctx, p, snapshots, now); err != nil {
			e.logger.WithFields(logger.Fields{
				"portfolio": p.ID,
				"strategy":  p.StrategyID,
			}).WithError(err).Error("portfolio tick aborted")
		}
	}

	return e.persist(ctx)
}

// neededInstruments collects every instrument an active portfolio watches or
// still holds. Caller holds the lock.
func (e *Engine) neededInstruments() map[string]struct{} {
	needed := make(map[string]struct{})
	for _, p := range e.portfolios {
		if !p.Active {
			continue
		}
		for _, instrument := range p.Instruments {
			needed[instrument] = struct{}{}
		}
		for instrument := range p.Positions {
			needed[instrument] = struct{}{}
		}
	}
	return needed
}

// fetchSnapshots pulls each needed instrument once per tick, shared across
// portfolios. Runs without the engine lock. A failed fetch leaves the
// instrument out of the map; every decision on it degrades to HOLD for this
// tick.
func (e *Engine) fetchSnapshots(ctx context.Context, needed map[string]struct{}) map[string]*model.SignalSnapshot {
	snapshots := make(map[string]*model.SignalSnapshot, len(needed))
	for instrument := range needed {
		fetchCtx, cancel := context.WithTimeout(ctx, e.config.SignalTimeout)
		snap, err := e.adapter.Snapshot(fetchCtx, instrument)
		cancel()
		if err != nil {
			e.logger.WithField("instrument", instrument).
				WithError(err).
				Warn("signal fetch failed, instrument holds this tick")
			continue
		}
		snapshots[instrument] = snap
	}
	return snapshots
}

func (e *Engine) runPortfolio(ctx context.Context, p *model.Portfolio, snapshots map[string]*model.SignalSnapshot, now time.Time) error {
	cfg, err := strategy.Lookup(p.StrategyID)
	if err != nil {
		return fmt.Errorf("strategy lookup: %w", err)
	}

	for _, instrument := range e.portfolioInstruments(p) {
		snap, ok := snapshots[instrument]
		if !ok {
			continue
		}

		e.manager.UpdateMarketPrice(cfg, p, instrument, snap.Price)

		verdict := strategy.Decide(cfg, snap, p.Positions[instrument], now)
		if verdict.Action == model.ActionHold {
			continue
		}

		if verdict.Action == model.ActionOpen && len(p.Positions) >= cfg.MaxPositions {
			continue
		}

		if ok, reason := e.governor.Allow(p, instrument, verdict.Action); !ok {
			e.logger.WithFields(logger.Fields{
				"portfolio":  p.ID,
				"instrument": instrument,
				"action":     verdict.Action,
				"reason":     reason,
			}).Warn("risk governor denied trade")
			continue
		}

		if err := e.execute(ctx, cfg, p, instrument, snap.Price, verdict); err != nil {
			return err
		}
	}

	if cfg.Has(model.CapRotation) {
		if err := e.rotate(ctx, cfg, p, snapshots); err != nil {
			return err
		}
	}

	p.UpdatedAt = now
	return nil
}

// execute commits a verdict and runs the post-trade bookkeeping. Funding
// skips are benign; everything else is a contract violation and bubbles up.
func (e *Engine) execute(ctx context.Context, cfg model.StrategyConfig, p *model.Portfolio, instrument string, price decimal.Decimal, verdict model.Verdict) error {
	trade, err := e.manager.Apply(cfg, p, instrument, price, verdict)
	if err != nil {
		if errors.Is(err, portfolio.ErrInsufficientFunds) {
			e.logger.WithFields(logger.Fields{
				"portfolio":  p.ID,
				"instrument": instrument,
				"action":     verdict.Action,
			}).Info("trade skipped, insufficient cash")
			return nil
		}
		return fmt.Errorf("apply %s on %s: %w", verdict.Action, instrument, err)
	}
	if trade == nil {
		return nil
	}

	e.logger.WithFields(logger.Fields{
		"portfolio":  p.ID,
		"instrument": instrument,
		"action":     trade.Action,
		"price":      trade.Price.String(),
		"notional":   trade.Notional.String(),
		"reason":     trade.Reason,
	}).Info("trade executed")

	if trade.Action == model.ActionClose || trade.Action == model.ActionPartialClose {
		e.governor.RecordClose(p.ID, trade.Pnl)
	}

	if e.audit != nil {
		if err := e.audit.Append(ctx, p.ID, *trade); err != nil {
			e.logger.WithError(err).Warn("trade audit append failed")
		}
	}
	return nil
}

// rotate runs the once-per-tick opportunity check: when every position slot
// is taken and an unheld instrument clearly outscores the weakest holding,
// close the weakest and open the candidate. Close first, then open, so the
// freed cash funds the entry.
func (e *Engine) rotate(ctx context.Context, cfg model.StrategyConfig, p *model.Portfolio, snapshots map[string]*model.SignalSnapshot) error {
	if len(p.Positions) < cfg.MaxPositions {
		return nil
	}

	scores := make(map[string]float64, len(snapshots))
	for instrument, snap := range snapshots {
		scores[instrument] = snap.Score()
	}

	var candidates []rotation.Candidate
	for _, instrument := range p.Instruments {
		if _, ok := snapshots[instrument]; ok {
			candidates = append(candidates, rotation.Candidate{Instrument: instrument, Score: scores[instrument]})
		}
	}

	weakest, weakestScore, ok := rotation.WeakestPosition(p, scores)
	if !ok {
		return nil
	}
	best, ok := rotation.BestCandidate(p, candidates)
	if !ok {
		return nil
	}

	pnlPct := p.Positions[weakest].UnrealizedPnlPct(snapshots[weakest].Price)
	should, reason := e.rotator.ShouldRotate(cfg, weakestScore, best.Score, pnlPct)
	if !should {
		return nil
	}

	e.logger.WithFields(logger.Fields{
		"portfolio": p.ID,
		"out":       weakest,
		"in":        best.Instrument,
		"reason":    reason,
	}).Info("rotating position")

	closeVerdict := model.Verdict{Action: model.ActionClose, Reason: "rotation: " + reason}
	if err := e.execute(ctx, cfg, p, weakest, snapshots[weakest].Price, closeVerdict); err != nil {
		return err
	}

	if ok, denyReason := e.governor.Allow(p, best.Instrument, model.ActionOpen); !ok {
		e.logger.WithFields(logger.Fields{
			"portfolio":  p.ID,
			"instrument": best.Instrument,
			"reason":     denyReason,
		}).Warn("rotation entry denied by risk governor")
		return nil
	}

	openVerdict := model.Verdict{Action: model.ActionOpen, Reason: "rotation: " + reason}
	return e.execute(ctx, cfg, p, best.Instrument, snapshots[best.Instrument].Price, openVerdict)
}

// persist writes the full state document with bounded retries. Exhausting
// the budget halts the engine.
func (e *Engine) persist(ctx context.Context) error {
	doc := &repository.StateDocument{
		Portfolios: make([]*model.Portfolio, 0, len(e.portfolios)),
		Risk:       e.governor.State(),
	}
	for _, id := range e.sortedIDs() {
		doc.Portfolios = append(doc.Portfolios, e.portfolios[id])
	}

	var err error
	for attempt := 0; attempt <= e.config.PersistRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				// Shutdown mid-retry is not budget exhaustion.
				return ctx.Err()
			case <-time.After(e.config.PersistBackoff):
			}
		}
		if err = e.store.Save(doc); err == nil {
			return nil
		}
		e.logger.WithField("attempt", attempt+1).WithError(err).Error("state persistence failed")
	}

	e.halted = true
	e.logger.WithError(err).Error("persistence retries exhausted, halting engine")
	return ErrHalted
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.portfolios))
	for id := range e.portfolios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// portfolioInstruments is the portfolio's configured list plus anything it
// still holds after a config change, so orphaned positions keep being
// managed until they exit.
func (e *Engine) portfolioInstruments(p *model.Portfolio) []string {
	out := append([]string(nil), p.Instruments...)
	listed := make(map[string]struct{}, len(out))
	for _, instrument := range out {
		listed[instrument] = struct{}{}
	}
	held := make([]string, 0, len(p.Positions))
	for instrument := range p.Positions {
		if _, ok := listed[instrument]; !ok {
			held = append(held, instrument)
		}
	}
	sort.Strings(held)
	return append(out, held...)
}

// Portfolios returns deep copies for read-only consumers, sorted by ID.
func (e *Engine) Portfolios() []*model.Portfolio {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*model.Portfolio, 0, len(e.portfolios))
	for _, id := range e.sortedIDs() {
		out = append(out, e.portfolios[id].Clone())
	}
	return out
}

// Portfolio returns a deep copy of one portfolio.
func (e *Engine) Portfolio(id string) (*model.Portfolio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.portfolios[id]
	if !ok {
		return nil, ErrUnknownPortfolio
	}
	return p.Clone(), nil
}

// SetActive flips a portfolio's active flag. Deactivating stops decisions
// for the portfolio but leaves its open positions untouched.
func (e *Engine) SetActive(id string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.portfolios[id]
	if !ok {
		return ErrUnknownPortfolio
	}
	p.Active = active
	p.UpdatedAt = e.now()

	e.logger.WithFields(logger.Fields{
		"portfolio": id,
		"active":    active,
	}).Info("portfolio active flag updated")
	return nil
}

// RiskState returns a deep copy of the governor's state.
func (e *Engine) RiskState() *model.RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.governor.State()
}

func (e *Engine) TriggerEmergencyStop(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.TriggerEmergencyStop(reason)
}

func (e *Engine) ResetEmergencyStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.governor.ResetEmergencyStop()
}

func (e *Engine) SetDailyLossLimit(limit decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.SetDailyLossLimit(limit)
}

// Halted reports whether a persistence failure has stopped the engine.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}
