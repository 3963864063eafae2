// Package orchestrator drives the live trading cycle: on every scheduler
// tick it fans out over the active positions, scores each one through the
// cache and strategy, and executes the resulting orders through the
// coordinator.
package orchestrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/halcyon-lab/swing-trading/internal/cache"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/position"
	"github.com/halcyon-lab/swing-trading/internal/store"
	"github.com/halcyon-lab/swing-trading/internal/strategy"
	"github.com/halcyon-lab/swing-trading/internal/trading"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency bounds simultaneous external calls across the
	// batch.
	DefaultConcurrency = 4
	// DefaultPositionTimeout bounds one position's full cycle.
	DefaultPositionTimeout = 45 * time.Second
	// DefaultHistoryDays is the trailing calendar window loaded when the
	// indicator cache has to reseed. Two years of calendar days covers the
	// 127-bar warm-up with room to spare.
	DefaultHistoryDays = 400
)

// Config tunes the orchestrator.
type Config struct {
	Concurrency     int64         `yaml:"concurrency" json:"concurrency"`
	PositionTimeout time.Duration `yaml:"position_timeout" json:"position_timeout"`
	HistoryDays     int           `yaml:"history_days" json:"history_days"`
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}

	if c.PositionTimeout <= 0 {
		c.PositionTimeout = DefaultPositionTimeout
	}

	if c.HistoryDays <= 0 {
		c.HistoryDays = DefaultHistoryDays
	}

	return c
}

// Orchestrator coordinates one trading account's positions.
type Orchestrator struct {
	repo        store.PositionRepository
	trades      store.TradeLog
	bars        store.BarRepository
	market      trading.MarketDataGateway
	coordinator *trading.Coordinator
	snapshotter *cache.Snapshotter
	strategy    strategy.Strategy
	machine     *position.Machine
	fees        commission.Model
	logger      *logger.Logger
	sem         *semaphore.Weighted
	cfg         Config
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Positions   store.PositionRepository
	Trades      store.TradeLog
	Bars        store.BarRepository
	Market      trading.MarketDataGateway
	Coordinator *trading.Coordinator
	Snapshotter *cache.Snapshotter
	Strategy    strategy.Strategy
	Fees        commission.Model
	Logger      *logger.Logger
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()

	return &Orchestrator{
		repo:        deps.Positions,
		trades:      deps.Trades,
		bars:        deps.Bars,
		market:      deps.Market,
		coordinator: deps.Coordinator,
		snapshotter: deps.Snapshotter,
		strategy:    deps.Strategy,
		machine:     position.NewMachine(),
		fees:        deps.Fees,
		logger:      deps.Logger.Named("orchestrator"),
		sem:         semaphore.NewWeighted(cfg.Concurrency),
		cfg:         cfg,
		now:         time.Now,
	}
}

// lockFor returns the per-position mutex, creating it on first use. The
// lock prevents overlapping ticks from acting twice on one position.
func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.locks == nil {
		o.locks = make(map[string]*sync.Mutex)
	}

	if _, ok := o.locks[id]; !ok {
		o.locks[id] = &sync.Mutex{}
	}

	return o.locks[id]
}

// ProcessTick runs one evaluation cycle over all active positions. One
// position failing never aborts the batch; positions still locked by an
// earlier tick are skipped.
func (o *Orchestrator) ProcessTick(ctx context.Context, eod bool) error {
	positions, err := o.repo.FindActive(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "loading active positions", err)
	}

	var wg sync.WaitGroup

	for i := range positions {
		p := positions[i]

		wg.Add(1)

		go func() {
			defer wg.Done()

			lock := o.lockFor(p.ID)
			if !lock.TryLock() {
				o.logger.Warn("position still busy from a previous tick, skipping",
					zap.String("symbol", p.Symbol))

				return
			}
			defer lock.Unlock()

			if err := o.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer o.sem.Release(1)

			pctx, cancel := context.WithTimeout(ctx, o.cfg.PositionTimeout)
			defer cancel()

			if err := o.processPosition(pctx, &p, eod); err != nil {
				if errors.IsInsufficientHistoryError(err) {
					o.logger.Warn("skipping symbol, not enough history",
						zap.String("symbol", p.Symbol), zap.Error(err))

					return
				}

				o.logger.Error("position cycle failed",
					zap.String("symbol", p.Symbol),
					zap.String("state", p.Signal.String()),
					zap.Error(err))
			}
		}()
	}

	wg.Wait()

	return nil
}

// barLoader loads the trailing daily-bar window used to reseed the
// indicator cache.
func (o *Orchestrator) barLoader(symbol string) cache.BarLoader {
	return func(ctx context.Context) ([]types.PriceBar, error) {
		to := o.now()
		from := to.AddDate(0, 0, -o.cfg.HistoryDays)

		return o.bars.LoadBars(ctx, symbol, from, to)
	}
}

// processPosition runs the state-dependent decision flow for one
// position. The repository is written only after the full decision and
// order sequence completes; on timeout or error the position is
// abandoned unmutated and retried next tick.
func (o *Orchestrator) processPosition(ctx context.Context, p *types.Position, eod bool) error {
	// Terminal bookkeeping states need no market data.
	switch p.Signal {
	case types.StateStopped, types.StateSecondSellPending:
		if err := o.machine.Transition(p, types.StateWaiting, o.now()); err != nil {
			return err
		}

		return o.repo.Save(ctx, p)
	}

	quote, err := o.market.GetQuote(ctx, p.Symbol)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeExternalService, err, "quote for %s", p.Symbol)
	}

	prev := optional.None[types.IndicatorSnapshot]()
	if snap, err := o.snapshotter.LastCommitted(ctx, p.Symbol); err == nil {
		prev = optional.Some(snap)
	}

	snapshot, err := o.snapshotter.SnapshotFor(ctx, p.Symbol, quote, o.now(), o.barLoader(p.Symbol))
	if err != nil {
		return err
	}

	ec := strategy.EvalContext{
		Snapshot:     snapshot,
		PrevSnapshot: prev,
		Quote:        quote,
		Position:     p,
		Now:          o.now(),
		EOD:          eod,
	}

	switch p.Signal {
	case types.StateWaiting:
		return o.tryEntry(ctx, p, ec)
	case types.StateFirstBuy:
		acted, err := o.tryExit(ctx, p, ec)
		if err != nil || acted {
			return err
		}

		return o.trySecondBuy(ctx, p, ec)
	case types.StateSecondBuy:
		_, err := o.tryExit(ctx, p, ec)

		return err
	case types.StateFirstSellPending:
		acted, err := o.tryExit(ctx, p, ec)
		if err != nil || acted {
			return err
		}

		return o.tryReentry(ctx, p, ec)
	default:
		return errors.Newf(errors.ErrCodeInvalidPosition, "unhandled state %s", p.Signal)
	}
}

func (o *Orchestrator) tryEntry(ctx context.Context, p *types.Position, ec strategy.EvalContext) error {
	decision, err := o.strategy.CheckEntry(ctx, ec)
	if err != nil {
		return err
	}

	if decision.Type != types.DecisionBuy {
		return nil
	}

	return o.executeBuy(ctx, p, ec.Quote, types.StateFirstBuy, decision.Reason)
}

func (o *Orchestrator) trySecondBuy(ctx context.Context, p *types.Position, ec strategy.EvalContext) error {
	decision, err := o.strategy.CheckSecondBuy(ctx, ec)
	if err != nil {
		return err
	}

	if decision.Type != types.DecisionBuy {
		return nil
	}

	return o.executeBuy(ctx, p, ec.Quote, types.StateSecondBuy, decision.Reason)
}

// tryReentry adds to the remainder held after a partial sell, moving the
// position back into the first-buy state.
func (o *Orchestrator) tryReentry(ctx context.Context, p *types.Position, ec strategy.EvalContext) error {
	decision, err := o.strategy.CheckSecondBuy(ctx, ec)
	if err != nil {
		return err
	}

	if decision.Type != types.DecisionBuy {
		return nil
	}

	return o.executeBuy(ctx, p, ec.Quote, types.StateFirstBuy, decision.Reason)
}

func (o *Orchestrator) executeBuy(ctx context.Context, p *types.Position, quote types.Quote, target types.SignalState, reason string) error {
	if !o.machine.CanTransition(p.Signal, target) {
		return errors.Newf(errors.ErrCodeIllegalTransition,
			"illegal transition %s -> %s for %s", p.Signal, target, p.Symbol)
	}

	fill, err := o.coordinator.ExecuteBuy(ctx, p, quote)
	if err != nil {
		return err
	}

	if err := o.machine.ApplyBuyFill(p, fill.Price, fill.Quantity); err != nil {
		return err
	}

	if err := o.machine.Transition(p, target, o.now()); err != nil {
		return err
	}

	o.appendTrade(ctx, p, types.TradeSideBuy, fill, reason)

	o.logger.Info("buy executed",
		zap.String("symbol", p.Symbol),
		zap.Float64("price", fill.Price),
		zap.Float64("quantity", fill.Quantity),
		zap.String("state", p.Signal.String()))

	return o.repo.Save(ctx, p)
}

// tryExit evaluates the exit decision and executes it. acted reports
// whether the position changed state.
func (o *Orchestrator) tryExit(ctx context.Context, p *types.Position, ec strategy.EvalContext) (bool, error) {
	decision, err := o.strategy.CheckExit(ctx, ec)
	if err != nil {
		return false, err
	}

	if decision.Type != types.DecisionSell {
		// EOD signal bookkeeping still has to be persisted.
		if ec.EOD {
			return false, o.repo.Save(ctx, p)
		}

		return false, nil
	}

	held := p.HoldQty.TakeOr(0)
	if held < 1 {
		return false, errors.Newf(errors.ErrCodeInvalidPosition, "%s in %s holds nothing", p.Symbol, p.Signal)
	}

	quantity := held
	if !decision.SellAll {
		quantity = math.Floor(held * p.SellRatio / 100)
		if quantity < 1 {
			o.logger.Warn("partial sell below one share, holding",
				zap.String("symbol", p.Symbol), zap.Float64("held", held))

			return false, nil
		}
	}

	fill, err := o.coordinator.ExecuteSell(ctx, p, ec.Quote, quantity)
	if err != nil {
		return false, err
	}

	if err := o.machine.ApplySellFill(p, fill.Price, fill.Quantity, decision.SellAll); err != nil {
		return false, err
	}

	target := sellTarget(p.Signal, decision)
	if err := o.machine.Transition(p, target, o.now()); err != nil {
		return false, err
	}

	o.appendTrade(ctx, p, types.TradeSideSell, fill, decision.Reason)

	o.logger.Info("sell executed",
		zap.String("symbol", p.Symbol),
		zap.Float64("price", fill.Price),
		zap.Float64("quantity", fill.Quantity),
		zap.Bool("sell_all", decision.SellAll),
		zap.String("state", p.Signal.String()))

	return true, o.repo.Save(ctx, p)
}

// sellTarget maps a sell decision onto the next state given where the
// position is in its cycle.
func sellTarget(from types.SignalState, decision types.Decision) types.SignalState {
	if !decision.SellAll {
		return types.StateFirstSellPending
	}

	if from == types.StateFirstSellPending {
		return types.StateWaiting
	}

	if decision.Reason == types.TradeReasonImmediateStop {
		return types.StateStopped
	}

	return types.StateSecondSellPending
}

func (o *Orchestrator) appendTrade(ctx context.Context, p *types.Position, side types.TradeSide, fill trading.Fill, reason string) {
	amount := fill.Price * fill.Quantity

	fee := o.fees.BuyFee(amount)
	if side == types.TradeSideSell {
		fee = o.fees.SellFee(amount)
	}

	record := types.TradeRecord{
		ID:         uuid.New().String(),
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       side,
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		Fee:        fee,
		Reason:     reason,
		ExecutedAt: o.now(),
	}

	// The ledger is best-effort: a failed append must not roll back an
	// executed order.
	if err := o.trades.Append(ctx, record); err != nil {
		o.logger.Error("trade ledger append failed",
			zap.String("symbol", p.Symbol), zap.Error(err))
	}
}

// CollectBars appends today's daily bar for every active symbol and
// rolls the indicator cache forward. Runs after the close.
func (o *Orchestrator) CollectBars(ctx context.Context) error {
	positions, err := o.repo.FindActive(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "loading active positions", err)
	}

	seen := make(map[string]bool)

	for _, p := range positions {
		if seen[p.Symbol] {
			continue
		}

		seen[p.Symbol] = true

		quote, err := o.market.GetQuote(ctx, p.Symbol)
		if err != nil {
			o.logger.Error("bar collection quote failed",
				zap.String("symbol", p.Symbol), zap.Error(err))

			continue
		}

		now := o.now()
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		bar := quote.Bar(day)

		if err := o.bars.UpsertBar(ctx, bar); err != nil {
			o.logger.Error("bar upsert failed", zap.String("symbol", p.Symbol), zap.Error(err))

			continue
		}

		if err := o.snapshotter.CommitBar(ctx, bar, o.barLoader(p.Symbol)); err != nil {
			o.logger.Error("indicator state commit failed",
				zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}

	return nil
}
