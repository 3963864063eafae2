// Package backtest replays daily bars through the same strategy and
// state machine the live orchestrator runs, with fees applied per fill,
// so a strategy change can be scored before it trades real money.
package backtest

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/halcyon-lab/swing-trading/internal/indicator"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/position"
	"github.com/halcyon-lab/swing-trading/internal/strategy"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Engine replays one symbol's bars through a strategy. A run is
// deterministic: no clock, no randomness, every decision a pure function
// of the bars.
type Engine struct {
	cfg      Config
	icfg     indicator.Config
	strategy strategy.Strategy
	machine  *position.Machine
	fees     commission.Model
	logger   *logger.Logger

	// OnProgress, when set, is called after every processed bar.
	OnProgress func(done, total int)
}

// NewEngine creates an Engine. The strategy is constructed without a
// debouncer: each bar is evaluated exactly once, so a qualifying bar
// buys immediately.
func NewEngine(cfg Config, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid backtest config", err)
	}

	strat, err := strategy.New(cfg.StrategyName, nil)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		icfg:     indicator.DefaultConfig(),
		strategy: strat,
		machine:  position.NewMachine(),
		fees:     commission.ForBroker(cfg.Broker),
		logger:   log.Named("backtest"),
	}, nil
}

// Run replays the bars and returns the resulting ledger. Bars may arrive
// unsorted; they are replayed in date order. Bars inside the indicator
// warm-up window feed the indicators but are never traded on.
func (e *Engine) Run(ctx context.Context, bars []types.PriceBar) (*types.BacktestResult, error) {
	if len(bars) < e.icfg.RequiredBars() {
		return nil, errors.Newf(errors.ErrCodeInsufficientHistory,
			"%d bars provided, %d required", len(bars), e.icfg.RequiredBars())
	}

	ordered := make([]types.PriceBar, len(bars))
	copy(ordered, bars)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	snapshots, err := indicator.Compute(ordered, e.icfg)
	if err != nil {
		return nil, err
	}

	symbol := ordered[0].Symbol
	capital := decimal.NewFromFloat(e.cfg.InitialCapital)

	pos := &types.Position{
		ID:        "backtest-" + symbol,
		Symbol:    symbol,
		Account:   "backtest",
		Signal:    types.StateWaiting,
		BuyRatio:  e.cfg.BuyRatio,
		SellRatio: e.cfg.SellRatio,
	}

	run := &runState{
		result: &types.BacktestResult{
			Symbol:         symbol,
			StartDate:      ordered[0].Date,
			EndDate:        ordered[len(ordered)-1].Date,
			InitialCapital: e.cfg.InitialCapital,
		},
		capital: capital,
		pos:     pos,
	}

	for i, bar := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeBacktestDataError, "backtest cancelled", err)
		}

		if e.tradable(snapshots[i], bar.Date) {
			prev := optional.None[types.IndicatorSnapshot]()
			if i > 0 && ready(snapshots[i-1]) {
				prev = optional.Some(snapshots[i-1])
			}

			ec := strategy.EvalContext{
				Snapshot:     snapshots[i],
				PrevSnapshot: prev,
				Quote:        barQuote(ordered, i),
				Position:     pos,
				Now:          bar.Date,
				EOD:          true,
			}

			if err := e.step(ctx, run, ec); err != nil {
				return nil, err
			}
		}

		if e.OnProgress != nil {
			e.OnProgress(i+1, len(ordered))
		}
	}

	e.forceLiquidate(run, ordered[len(ordered)-1])

	final, _ := run.capital.Float64()
	run.result.FinalCapital = final
	run.result.TotalReturnPct = (final - e.cfg.InitialCapital) / e.cfg.InitialCapital * 100

	return run.result, nil
}

// runState carries the mutable ledger through one replay.
type runState struct {
	result  *types.BacktestResult
	capital decimal.Decimal
	pos     *types.Position
}

// tradable reports whether decisions may be made on this bar: the
// indicators are out of warm-up and the bar is at or past the configured
// evaluation start.
func (e *Engine) tradable(snap types.IndicatorSnapshot, date time.Time) bool {
	if !ready(snap) {
		return false
	}

	if start, err := e.cfg.EvalStart.Take(); err == nil && date.Before(start) {
		return false
	}

	return true
}

// ready reports whether the snapshot is past the indicator warm-up.
func ready(snap types.IndicatorSnapshot) bool {
	return !math.IsNaN(snap.EMA120) && !math.IsNaN(snap.ADX) && !math.IsNaN(snap.ATR)
}

// barQuote presents a daily bar as the end-of-day quote the strategy
// evaluates.
func barQuote(bars []types.PriceBar, i int) types.Quote {
	bar := bars[i]

	dailyReturn := 0.0
	if i > 0 && bars[i-1].Close > 0 {
		dailyReturn = (bar.Close - bars[i-1].Close) / bars[i-1].Close
	}

	return types.Quote{
		Symbol:        bar.Symbol,
		Price:         bar.Close,
		High:          bar.High,
		Low:           bar.Low,
		Volume:        bar.Volume,
		ForeignNetBuy: bar.ForeignNetBuy.TakeOr(0),
		DailyReturn:   dailyReturn,
	}
}

// step mirrors the live orchestrator's per-state dispatch for one bar.
func (e *Engine) step(ctx context.Context, run *runState, ec strategy.EvalContext) error {
	pos := run.pos

	switch pos.Signal {
	case types.StateStopped, types.StateSecondSellPending:
		return e.machine.Transition(pos, types.StateWaiting, ec.Now)
	case types.StateWaiting:
		decision, err := e.strategy.CheckEntry(ctx, ec)
		if err != nil {
			return err
		}

		if decision.Type == types.DecisionBuy {
			return e.buy(run, ec, types.StateFirstBuy, decision.Reason)
		}

		return nil
	case types.StateFirstBuy:
		acted, err := e.trySell(ctx, run, ec)
		if err != nil || acted {
			return err
		}

		return e.tryAdd(ctx, run, ec, types.StateSecondBuy)
	case types.StateSecondBuy:
		_, err := e.trySell(ctx, run, ec)

		return err
	case types.StateFirstSellPending:
		acted, err := e.trySell(ctx, run, ec)
		if err != nil || acted {
			return err
		}

		return e.tryAdd(ctx, run, ec, types.StateFirstBuy)
	default:
		return errors.Newf(errors.ErrCodeInvalidPosition, "unhandled state %s", pos.Signal)
	}
}

func (e *Engine) tryAdd(ctx context.Context, run *runState, ec strategy.EvalContext, target types.SignalState) error {
	decision, err := e.strategy.CheckSecondBuy(ctx, ec)
	if err != nil {
		return err
	}

	if decision.Type != types.DecisionBuy {
		return nil
	}

	return e.buy(run, ec, target, decision.Reason)
}

// buy sizes one tranche from current capital and applies the fill at the
// bar close. A tranche too small for a single share, or one the
// remaining capital cannot cover fees included, is skipped.
func (e *Engine) buy(run *runState, ec strategy.EvalContext, target types.SignalState, reason string) error {
	price := ec.Quote.Price
	allocated := run.capital.Mul(decimal.NewFromFloat(run.pos.BuyRatio)).Div(decimal.NewFromInt(100))
	quantity := math.Floor(allocated.InexactFloat64() / price)

	if quantity < 1 {
		return nil
	}

	amount := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
	fee := decimal.NewFromFloat(e.fees.BuyFee(amount.InexactFloat64()))

	if amount.Add(fee).GreaterThan(run.capital) {
		return nil
	}

	if err := e.machine.ApplyBuyFill(run.pos, price, quantity); err != nil {
		return err
	}

	if err := e.machine.Transition(run.pos, target, ec.Now); err != nil {
		return err
	}

	run.capital = run.capital.Sub(amount).Sub(fee)
	run.result.Trades = append(run.result.Trades, types.BacktestTrade{
		Date:     ec.Now,
		Side:     types.TradeSideBuy,
		Price:    price,
		Quantity: quantity,
		Fee:      fee.InexactFloat64(),
		Reason:   reason,
	})

	return nil
}

// trySell evaluates the exit decision and applies it. acted reports
// whether the position changed state.
func (e *Engine) trySell(ctx context.Context, run *runState, ec strategy.EvalContext) (bool, error) {
	decision, err := e.strategy.CheckExit(ctx, ec)
	if err != nil {
		return false, err
	}

	if decision.Type != types.DecisionSell {
		return false, nil
	}

	held := run.pos.HoldQty.TakeOr(0)
	if held < 1 {
		return false, errors.Newf(errors.ErrCodeInvalidPosition,
			"%s in %s holds nothing", run.pos.Symbol, run.pos.Signal)
	}

	quantity := held
	if !decision.SellAll {
		quantity = math.Floor(held * run.pos.SellRatio / 100)
		if quantity < 1 {
			return false, nil
		}
	}

	if err := e.sell(run, ec.Now, ec.Quote.Price, quantity, decision); err != nil {
		return false, err
	}

	return true, nil
}

func (e *Engine) sell(run *runState, at time.Time, price, quantity float64, decision types.Decision) error {
	entry := run.pos.EntryPrice.TakeOr(0)

	amount := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(quantity))
	fee := decimal.NewFromFloat(e.fees.SellFee(amount.InexactFloat64()))
	pnl := decimal.NewFromFloat(price - entry).Mul(decimal.NewFromFloat(quantity)).Sub(fee)

	if err := e.machine.ApplySellFill(run.pos, price, quantity, decision.SellAll); err != nil {
		return err
	}

	if err := e.machine.Transition(run.pos, exitTarget(run.pos.Signal, decision), at); err != nil {
		return err
	}

	run.capital = run.capital.Add(amount).Sub(fee)
	run.result.Trades = append(run.result.Trades, types.BacktestTrade{
		Date:     at,
		Side:     types.TradeSideSell,
		Price:    price,
		Quantity: quantity,
		Fee:      fee.InexactFloat64(),
		PnL:      pnl.InexactFloat64(),
		Reason:   decision.Reason,
	})

	return nil
}

// exitTarget maps a sell decision onto the next state given where the
// position is in its cycle.
func exitTarget(from types.SignalState, decision types.Decision) types.SignalState {
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

// forceLiquidate closes any position still open after the last bar so
// the final capital reflects everything, at the last close.
func (e *Engine) forceLiquidate(run *runState, last types.PriceBar) {
	held := run.pos.HoldQty.TakeOr(0)
	if held < 1 {
		return
	}

	decision := types.Sell(types.TradeReasonForcedExit, true)
	if err := e.sell(run, last.Date, last.Close, held, decision); err != nil {
		e.logger.Warn("forced liquidation failed")
	}
}
