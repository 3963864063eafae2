package orchestrator

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/backtest/commission"
	"github.com/halcyon-lab/swing-trading/internal/cache"
	"github.com/halcyon-lab/swing-trading/internal/indicator"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/store"
	"github.com/halcyon-lab/swing-trading/internal/strategy"
	"github.com/halcyon-lab/swing-trading/internal/trading"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

// scriptedStrategy returns pre-set decisions so the tests exercise the
// orchestration flow, not the signal math.
type scriptedStrategy struct {
	entry     types.Decision
	secondBuy types.Decision
	exit      types.Decision
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) CheckEntry(context.Context, strategy.EvalContext) (types.Decision, error) {
	return s.entry, nil
}

func (s *scriptedStrategy) CheckSecondBuy(context.Context, strategy.EvalContext) (types.Decision, error) {
	return s.secondBuy, nil
}

func (s *scriptedStrategy) CheckExit(context.Context, strategy.EvalContext) (types.Decision, error) {
	return s.exit, nil
}

func holdAll() *scriptedStrategy {
	return &scriptedStrategy{
		entry:     types.Hold("scripted"),
		secondBuy: types.Hold("scripted"),
		exit:      types.Hold("scripted"),
	}
}

type OrchestratorTestSuite struct {
	suite.Suite
	ctx      context.Context
	repo     *store.MemoryStore
	gateway  *trading.SimGateway
	strategy *scriptedStrategy
	orch     *Orchestrator
	now      time.Time
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (suite *OrchestratorTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.repo = store.NewMemoryStore()
	suite.gateway = trading.NewSimGateway()
	suite.strategy = holdAll()
	suite.now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	suite.orch = suite.build(Config{})
}

func (suite *OrchestratorTestSuite) build(cfg Config) *Orchestrator {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)

	icfg := indicator.DefaultConfig()
	snapshotter := cache.NewSnapshotter(cache.NewMemoryStore(), icfg, log)

	o := New(Deps{
		Positions:   suite.repo,
		Trades:      suite.repo,
		Bars:        suite.repo,
		Market:      suite.gateway,
		Coordinator: trading.NewCoordinator(suite.gateway, log),
		Snapshotter: snapshotter,
		Strategy:    suite.strategy,
		Fees:        commission.NewKISModel(),
		Logger:      log,
	}, cfg)
	o.now = func() time.Time { return suite.now }

	return o
}

// seedSymbol gives a symbol enough stored history for the indicator
// cache to seed, plus a live quote.
func (suite *OrchestratorTestSuite) seedSymbol(symbol string, price float64) {
	cfg := indicator.DefaultConfig()
	rng := rand.New(rand.NewSource(int64(len(symbol))))
	date := suite.now.AddDate(0, 0, -(cfg.RequiredBars() + 15))
	p := price

	for i := 0; i < cfg.RequiredBars()+10; i++ {
		move := (rng.Float64() - 0.48) * price * 0.01
		open := p
		closePrice := p + move

		suite.Require().NoError(suite.repo.UpsertBar(suite.ctx, types.PriceBar{
			Symbol: symbol,
			Date:   date,
			Open:   open,
			High:   math.Max(open, closePrice) * 1.005,
			Low:    math.Min(open, closePrice) * 0.995,
			Close:  closePrice,
			Volume: 1_000_000,
		}))

		p = closePrice

		date = date.AddDate(0, 0, 1)
	}

	suite.gateway.SetQuote(types.Quote{Symbol: symbol, Price: price, High: price * 1.01, Low: price * 0.99, Volume: 500_000})
}

func (suite *OrchestratorTestSuite) addPosition(id, symbol string, state types.SignalState) *types.Position {
	p := &types.Position{
		ID:        id,
		Symbol:    symbol,
		Account:   "12345678-01",
		Signal:    state,
		BuyRatio:  30,
		SellRatio: 50,
		Allocated: 1_000_000,
	}
	suite.Require().NoError(suite.repo.Create(suite.ctx, p))

	return p
}

func (suite *OrchestratorTestSuite) TestEntryFlow() {
	suite.seedSymbol("005930", 70000)
	suite.addPosition("pos-1", "005930", types.StateWaiting)
	suite.strategy.entry = types.Buy(types.TradeReasonEntry)

	suite.NoError(suite.orch.ProcessTick(suite.ctx, false))

	got, err := suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateFirstBuy, got.Signal)
	suite.Equal(1, got.BuyCount)
	// floor(1_000_000 / 70_000) = 14
	suite.Equal(14.0, got.HoldQty.Unwrap())
	suite.Equal(70000.0, got.EntryPrice.Unwrap())

	trades, err := suite.repo.List(suite.ctx, "005930")
	suite.NoError(err)
	suite.Require().Len(trades, 1)
	suite.Equal(types.TradeSideBuy, trades[0].Side)
	suite.InDelta(70000.0*14*0.00147, trades[0].Fee, 1e-6)
}

func (suite *OrchestratorTestSuite) TestHoldDoesNothing() {
	suite.seedSymbol("005930", 70000)
	suite.addPosition("pos-1", "005930", types.StateWaiting)

	suite.NoError(suite.orch.ProcessTick(suite.ctx, false))

	got, err := suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateWaiting, got.Signal)
	suite.Empty(suite.gateway.Orders)
}

func (suite *OrchestratorTestSuite) TestImmediateStopFlow() {
	suite.seedSymbol("005930", 70000)
	p := suite.addPosition("pos-1", "005930", types.StateWaiting)
	p.Signal = types.StateFirstBuy
	p.EntryPrice = optional.Some(71000.0)
	p.HoldQty = optional.Some(14.0)
	p.BuyCount = 1
	suite.Require().NoError(suite.repo.Save(suite.ctx, p))

	suite.strategy.exit = types.Sell(types.TradeReasonImmediateStop, true)

	suite.NoError(suite.orch.ProcessTick(suite.ctx, false))

	got, err := suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateStopped, got.Signal)
	suite.True(got.HoldQty.IsNone())

	// The next tick recycles the stopped position back to waiting.
	suite.strategy.exit = types.Hold("scripted")
	suite.NoError(suite.orch.ProcessTick(suite.ctx, false))

	got, err = suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateWaiting, got.Signal)
}

func (suite *OrchestratorTestSuite) TestPartialSellFlow() {
	suite.seedSymbol("005930", 70000)
	p := suite.addPosition("pos-1", "005930", types.StateWaiting)
	p.Signal = types.StateFirstBuy
	p.EntryPrice = optional.Some(69000.0)
	p.HoldQty = optional.Some(14.0)
	p.BuyCount = 1
	suite.Require().NoError(suite.repo.Save(suite.ctx, p))

	suite.strategy.exit = types.Sell(types.TradeReasonPartialSell, false)

	suite.NoError(suite.orch.ProcessTick(suite.ctx, true))

	got, err := suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateFirstSellPending, got.Signal)
	// floor(14 * 50%) = 7 sold, 7 remain.
	suite.Equal(7.0, got.HoldQty.Unwrap())
	suite.Equal(70000.0, got.FirstSellPrice.Unwrap())

	trades, err := suite.repo.List(suite.ctx, "005930")
	suite.NoError(err)
	suite.Require().Len(trades, 1)
	suite.Equal(types.TradeSideSell, trades[0].Side)
	suite.Equal(7.0, trades[0].Quantity)
}

func (suite *OrchestratorTestSuite) TestFullSellAfterPartialReturnsToWaiting() {
	suite.seedSymbol("005930", 70000)
	p := suite.addPosition("pos-1", "005930", types.StateWaiting)
	p.Signal = types.StateFirstSellPending
	p.EntryPrice = optional.Some(69000.0)
	p.HoldQty = optional.Some(7.0)
	p.FirstSellPrice = optional.Some(70000.0)
	p.BuyCount = 1
	suite.Require().NoError(suite.repo.Save(suite.ctx, p))

	suite.strategy.exit = types.Sell(types.TradeReasonFullSell, true)

	suite.NoError(suite.orch.ProcessTick(suite.ctx, true))

	got, err := suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateWaiting, got.Signal)
	suite.True(got.HoldQty.IsNone())
	suite.Equal(0, got.BuyCount)
}

// A symbol without market data fails alone; the rest of the batch
// proceeds.
func (suite *OrchestratorTestSuite) TestOneFailureDoesNotAbortBatch() {
	suite.seedSymbol("005930", 70000)
	suite.addPosition("pos-1", "005930", types.StateWaiting)
	// No bars, no quote for this one.
	suite.addPosition("pos-2", "999999", types.StateWaiting)

	suite.strategy.entry = types.Buy(types.TradeReasonEntry)

	suite.NoError(suite.orch.ProcessTick(suite.ctx, false))

	got, err := suite.repo.Find(suite.ctx, "pos-1")
	suite.NoError(err)
	suite.Equal(types.StateFirstBuy, got.Signal)

	unchanged, err := suite.repo.Find(suite.ctx, "pos-2")
	suite.NoError(err)
	suite.Equal(types.StateWaiting, unchanged.Signal)
}

func (suite *OrchestratorTestSuite) TestCollectBars() {
	suite.seedSymbol("005930", 70000)
	suite.addPosition("pos-1", "005930", types.StateFirstBuy)

	suite.NoError(suite.orch.CollectBars(suite.ctx))

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	bars, err := suite.repo.LoadBars(suite.ctx, "005930", day, day)
	suite.NoError(err)
	suite.Require().Len(bars, 1)
	suite.Equal(70000.0, bars[0].Close)
}

// countingGateway tracks overlapping GetQuote calls.
type countingGateway struct {
	*trading.SimGateway
	mu    sync.Mutex
	spans [][2]time.Time
}

func (g *countingGateway) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	start := time.Now()
	time.Sleep(20 * time.Millisecond)
	end := time.Now()

	g.mu.Lock()
	g.spans = append(g.spans, [2]time.Time{start, end})
	g.mu.Unlock()

	return g.SimGateway.GetQuote(ctx, symbol)
}

// maxOverlap computes the maximum number of spans alive at once.
func maxOverlap(spans [][2]time.Time) int {
	type event struct {
		at    time.Time
		delta int
	}

	var events []event

	for _, s := range spans {
		events = append(events, event{s[0], 1}, event{s[1], -1})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta
		}

		return events[i].at.Before(events[j].at)
	})

	current, max := 0, 0

	for _, e := range events {
		current += e.delta
		if current > max {
			max = current
		}
	}

	return max
}

// Ten positions against a bound of three: never more than three
// concurrent external calls.
func (suite *OrchestratorTestSuite) TestConcurrencyBound() {
	symbols := []string{"000001", "000002", "000003", "000004", "000005",
		"000006", "000007", "000008", "000009", "000010"}

	for _, symbol := range symbols {
		suite.seedSymbol(symbol, 50000)
		suite.addPosition("pos-"+symbol, symbol, types.StateWaiting)
	}

	log, err := logger.NewLogger()
	suite.Require().NoError(err)

	counting := &countingGateway{SimGateway: suite.gateway}
	snapshotter := cache.NewSnapshotter(cache.NewMemoryStore(), indicator.DefaultConfig(), log)

	o := New(Deps{
		Positions:   suite.repo,
		Trades:      suite.repo,
		Bars:        suite.repo,
		Market:      counting,
		Coordinator: trading.NewCoordinator(suite.gateway, log),
		Snapshotter: snapshotter,
		Strategy:    holdAll(),
		Fees:        commission.NewZeroModel(),
		Logger:      log,
	}, Config{Concurrency: 3})
	o.now = func() time.Time { return suite.now }

	suite.NoError(o.ProcessTick(suite.ctx, false))

	suite.Len(counting.spans, len(symbols))
	suite.LessOrEqual(maxOverlap(counting.spans), 3)
}
