package backtest

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/halcyon-lab/swing-trading/internal/indicator"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/strategy"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/stretchr/testify/suite"
)

// replayStrategy pops scripted decisions in order; once a script is
// exhausted it holds.
type replayStrategy struct {
	entries []types.Decision
	adds    []types.Decision
	exits   []types.Decision
}

func pop(script *[]types.Decision) types.Decision {
	if len(*script) == 0 {
		return types.Hold("script exhausted")
	}

	d := (*script)[0]
	*script = (*script)[1:]

	return d
}

func (s *replayStrategy) Name() string { return "replay" }

func (s *replayStrategy) CheckEntry(context.Context, strategy.EvalContext) (types.Decision, error) {
	return pop(&s.entries), nil
}

func (s *replayStrategy) CheckSecondBuy(context.Context, strategy.EvalContext) (types.Decision, error) {
	return pop(&s.adds), nil
}

func (s *replayStrategy) CheckExit(context.Context, strategy.EvalContext) (types.Decision, error) {
	return pop(&s.exits), nil
}

type EngineTestSuite struct {
	suite.Suite
	ctx context.Context
	log *logger.Logger
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (suite *EngineTestSuite) SetupTest() {
	suite.ctx = context.Background()

	log, err := logger.NewLogger()
	suite.Require().NoError(err)
	suite.log = log
}

// trendingBars generates a seeded random walk with mild upward drift.
func trendingBars(n int, seed int64) []types.PriceBar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]types.PriceBar, 0, n)
	price := 50000.0
	date := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		move := (rng.Float64() - 0.47) * price * 0.02
		open := price
		closePrice := price + move

		bars = append(bars, types.PriceBar{
			Symbol: "005930",
			Date:   date,
			Open:   open,
			High:   math.Max(open, closePrice) * (1 + rng.Float64()*0.01),
			Low:    math.Min(open, closePrice) * (1 - rng.Float64()*0.01),
			Close:  closePrice,
			Volume: 500_000 + rng.Float64()*1_000_000,
		})

		price = closePrice

		date = date.AddDate(0, 0, 1)
	}

	return bars
}

// firstTradableIndex finds the first bar whose snapshot is out of
// warm-up.
func firstTradableIndex(t *testing.T, bars []types.PriceBar) int {
	snaps, err := indicator.Compute(bars, indicator.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	for i, s := range snaps {
		if ready(s) {
			return i
		}
	}

	t.Fatal("no tradable bar in fixture")

	return -1
}

func (suite *EngineTestSuite) newEngine(cfg Config) *Engine {
	e, err := NewEngine(cfg, suite.log)
	suite.Require().NoError(err)

	return e
}

func (suite *EngineTestSuite) TestRejectsShortHistory() {
	e := suite.newEngine(DefaultConfig())

	_, err := e.Run(suite.ctx, trendingBars(50, 1))
	suite.Error(err)
}

func (suite *EngineTestSuite) TestRejectsInvalidConfig() {
	cfg := DefaultConfig()
	cfg.InitialCapital = 0

	_, err := NewEngine(cfg, suite.log)
	suite.Error(err)
}

func (suite *EngineTestSuite) TestBuyAndForcedExit() {
	cfg := DefaultConfig()
	cfg.Broker = commission.BrokerZero
	e := suite.newEngine(cfg)
	e.strategy = &replayStrategy{entries: []types.Decision{types.Buy(types.TradeReasonEntry)}}

	warmup := indicator.DefaultConfig().RequiredBars()
	bars := trendingBars(warmup+20, 7)
	first := firstTradableIndex(suite.T(), bars)

	result, err := e.Run(suite.ctx, bars)
	suite.Require().NoError(err)
	suite.Require().Len(result.Trades, 2)

	buy := result.Trades[0]
	suite.Equal(types.TradeSideBuy, buy.Side)
	suite.Equal(bars[first].Date, buy.Date)
	suite.Equal(bars[first].Close, buy.Price)
	// floor(10,000,000 * 30% / price)
	suite.Equal(math.Floor(3_000_000/buy.Price), buy.Quantity)

	exit := result.Trades[1]
	suite.Equal(types.TradeSideSell, exit.Side)
	suite.Equal(types.TradeReasonForcedExit, exit.Reason)
	suite.Equal(bars[len(bars)-1].Date, exit.Date)
	suite.Equal(buy.Quantity, exit.Quantity)

	// Zero fees: cash out - cash in is the trade's price move.
	wantFinal := cfg.InitialCapital + (exit.Price-buy.Price)*buy.Quantity
	suite.InDelta(wantFinal, result.FinalCapital, 1e-6)
	suite.InDelta(exit.PnL, (exit.Price-buy.Price)*exit.Quantity, 1e-6)
}

func (suite *EngineTestSuite) TestPartialThenFullSell() {
	cfg := DefaultConfig()
	cfg.Broker = commission.BrokerZero
	e := suite.newEngine(cfg)
	e.strategy = &replayStrategy{
		entries: []types.Decision{types.Buy(types.TradeReasonEntry)},
		exits: []types.Decision{
			types.Hold("holding"),
			types.Sell(types.TradeReasonPartialSell, false),
			types.Sell(types.TradeReasonFullSell, true),
		},
	}

	warmup := indicator.DefaultConfig().RequiredBars()
	bars := trendingBars(warmup+20, 11)

	result, err := e.Run(suite.ctx, bars)
	suite.Require().NoError(err)
	suite.Require().Len(result.Trades, 3)

	buy, partial, full := result.Trades[0], result.Trades[1], result.Trades[2]
	suite.Equal(types.TradeReasonPartialSell, partial.Reason)
	suite.Equal(math.Floor(buy.Quantity/2), partial.Quantity)
	suite.Equal(types.TradeReasonFullSell, full.Reason)
	suite.Equal(buy.Quantity-partial.Quantity, full.Quantity)
}

func (suite *EngineTestSuite) TestImmediateStopStateRecycles() {
	cfg := DefaultConfig()
	cfg.Broker = commission.BrokerZero
	e := suite.newEngine(cfg)
	e.strategy = &replayStrategy{
		entries: []types.Decision{
			types.Buy(types.TradeReasonEntry),
			types.Buy(types.TradeReasonEntry),
		},
		exits: []types.Decision{
			types.Sell(types.TradeReasonImmediateStop, true),
		},
	}

	warmup := indicator.DefaultConfig().RequiredBars()
	bars := trendingBars(warmup+20, 13)

	result, err := e.Run(suite.ctx, bars)
	suite.Require().NoError(err)

	// buy, stop-out, then the recycled position re-enters and is force
	// liquidated at the end.
	suite.Require().Len(result.Trades, 4)
	suite.Equal(types.TradeReasonImmediateStop, result.Trades[1].Reason)
	suite.Equal(types.TradeSideBuy, result.Trades[2].Side)
	suite.Equal(types.TradeReasonForcedExit, result.Trades[3].Reason)
}

func (suite *EngineTestSuite) TestKISFeesCharged() {
	cfg := DefaultConfig()
	e := suite.newEngine(cfg)
	e.strategy = &replayStrategy{entries: []types.Decision{types.Buy(types.TradeReasonEntry)}}

	warmup := indicator.DefaultConfig().RequiredBars()

	result, err := e.Run(suite.ctx, trendingBars(warmup+20, 7))
	suite.Require().NoError(err)
	suite.Require().Len(result.Trades, 2)

	buy, exit := result.Trades[0], result.Trades[1]
	suite.InDelta(buy.Price*buy.Quantity*0.00147, buy.Fee, 1e-6)
	suite.InDelta(exit.Price*exit.Quantity*(0.00147+0.0020), exit.Fee, 1e-6)
}

// Two runs over identical bars produce identical ledgers.
func (suite *EngineTestSuite) TestDeterminism() {
	for _, seed := range []int64{1, 42, 1234} {
		bars := trendingBars(400, seed)

		first, err := suite.newEngine(DefaultConfig()).Run(suite.ctx, bars)
		suite.Require().NoError(err)

		second, err := suite.newEngine(DefaultConfig()).Run(suite.ctx, bars)
		suite.Require().NoError(err)

		suite.Equal(first.Trades, second.Trades)
		suite.Equal(first.FinalCapital, second.FinalCapital)
		suite.Equal(first.TotalReturnPct, second.TotalReturnPct)
	}
}

// The default strategy over a strong synthetic uptrend with heavy volume
// never errors and keeps capital accounting consistent with its ledger.
func (suite *EngineTestSuite) TestLedgerConsistency() {
	bars := trendingBars(500, 99)

	cfg := DefaultConfig()
	cfg.Broker = commission.BrokerZero

	result, err := suite.newEngine(cfg).Run(suite.ctx, bars)
	suite.Require().NoError(err)

	capital := cfg.InitialCapital
	for _, t := range result.Trades {
		if t.Side == types.TradeSideBuy {
			capital -= t.Price*t.Quantity + t.Fee
		} else {
			capital += t.Price*t.Quantity - t.Fee
		}
	}

	suite.InDelta(capital, result.FinalCapital, 1e-6)
}
