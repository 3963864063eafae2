package position

import (
	"testing"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type MachineTestSuite struct {
	suite.Suite
	machine *Machine
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineTestSuite))
}

func (suite *MachineTestSuite) SetupTest() {
	suite.machine = NewMachine()
}

func (suite *MachineTestSuite) position(state types.SignalState) *types.Position {
	return &types.Position{
		ID:      "pos-1",
		Symbol:  "005930",
		Account: "12345678-01",
		Signal:  state,
	}
}

// Every ordered pair of states is checked against the transition table.
func (suite *MachineTestSuite) TestTransitionTableExhaustive() {
	legal := map[types.SignalState][]types.SignalState{
		types.StateWaiting:           {types.StateFirstBuy},
		types.StateFirstBuy:          {types.StateSecondBuy, types.StateStopped, types.StateFirstSellPending, types.StateSecondSellPending},
		types.StateSecondBuy:         {types.StateStopped, types.StateFirstSellPending, types.StateSecondSellPending},
		types.StateStopped:           {types.StateWaiting},
		types.StateFirstSellPending:  {types.StateFirstBuy, types.StateWaiting},
		types.StateSecondSellPending: {types.StateWaiting},
	}

	all := []types.SignalState{
		types.StateWaiting, types.StateFirstBuy, types.StateSecondBuy,
		types.StateStopped, types.StateFirstSellPending, types.StateSecondSellPending,
	}

	for _, from := range all {
		for _, to := range all {
			want := false

			for _, next := range legal[from] {
				if next == to {
					want = true
				}
			}

			suite.Equal(want, suite.machine.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func (suite *MachineTestSuite) TestTransitionApplies() {
	p := suite.position(types.StateWaiting)
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	suite.NoError(suite.machine.Transition(p, types.StateFirstBuy, now))
	suite.Equal(types.StateFirstBuy, p.Signal)
	suite.Equal(now, p.LastModified)
}

func (suite *MachineTestSuite) TestIllegalTransitionLeavesPositionUntouched() {
	p := suite.position(types.StateWaiting)
	p.MarkEODSignal(types.EODSignalEMABreach, time.Now())

	err := suite.machine.Transition(p, types.StateSecondBuy, time.Now())
	suite.Error(err)
	suite.Equal(errors.ErrCodeIllegalTransition, errors.GetCode(err))
	suite.Equal(types.StateWaiting, p.Signal)
	suite.Len(p.EODSignals, 1)
}

func (suite *MachineTestSuite) TestTransitionResetsEODSignals() {
	p := suite.position(types.StateFirstBuy)
	p.MarkEODSignal(types.EODSignalEMABreach, time.Now())
	p.MarkEODSignal(types.EODSignalTrendWeak, time.Now())

	suite.NoError(suite.machine.Transition(p, types.StateFirstSellPending, time.Now()))
	suite.Nil(p.EODSignals)
}

func (suite *MachineTestSuite) TestApplyBuyFillFirstBuy() {
	p := suite.position(types.StateWaiting)

	suite.NoError(suite.machine.ApplyBuyFill(p, 10000, 30))
	suite.Equal(10000.0, p.EntryPrice.Unwrap())
	suite.Equal(30.0, p.HoldQty.Unwrap())
	suite.Equal(1, p.BuyCount)
}

// 30 @ 10000 then 20 @ 11000 must average to exactly 10400.
func (suite *MachineTestSuite) TestApplyBuyFillWeightedAverageExact() {
	p := suite.position(types.StateWaiting)

	suite.NoError(suite.machine.ApplyBuyFill(p, 10000, 30))
	suite.NoError(suite.machine.ApplyBuyFill(p, 11000, 20))

	suite.Equal(10400.0, p.EntryPrice.Unwrap())
	suite.Equal(50.0, p.HoldQty.Unwrap())
	suite.Equal(2, p.BuyCount)
}

func (suite *MachineTestSuite) TestApplyBuyFillRejectsNonPositive() {
	p := suite.position(types.StateWaiting)

	suite.Error(suite.machine.ApplyBuyFill(p, 0, 10))
	suite.Error(suite.machine.ApplyBuyFill(p, 10000, -1))
	suite.True(p.EntryPrice.IsNone())
}

func (suite *MachineTestSuite) TestApplySellFillPartial() {
	p := suite.position(types.StateFirstBuy)
	p.EntryPrice = optional.Some(10400.0)
	p.HoldQty = optional.Some(50.0)
	p.BuyCount = 2

	suite.NoError(suite.machine.ApplySellFill(p, 10800, 25, false))
	suite.Equal(25.0, p.HoldQty.Unwrap())
	suite.Equal(10800.0, p.FirstSellPrice.Unwrap())
	// Entry price and buy count survive a partial sell.
	suite.Equal(10400.0, p.EntryPrice.Unwrap())
	suite.Equal(2, p.BuyCount)
}

func (suite *MachineTestSuite) TestApplySellFillFull() {
	p := suite.position(types.StateSecondBuy)
	p.EntryPrice = optional.Some(10400.0)
	p.HoldQty = optional.Some(50.0)
	p.FirstSellPrice = optional.Some(10800.0)
	p.BuyCount = 2

	suite.NoError(suite.machine.ApplySellFill(p, 10900, 50, true))
	suite.True(p.EntryPrice.IsNone())
	suite.True(p.HoldQty.IsNone())
	suite.True(p.FirstSellPrice.IsNone())
	suite.Equal(0, p.BuyCount)
}

func (suite *MachineTestSuite) TestApplySellFillNoHoldings() {
	p := suite.position(types.StateWaiting)

	err := suite.machine.ApplySellFill(p, 10000, 10, false)
	suite.Error(err)
	suite.Equal(errors.ErrCodePositionNotFound, errors.GetCode(err))
}

func (suite *MachineTestSuite) TestApplySellFillOverHeld() {
	p := suite.position(types.StateFirstBuy)
	p.HoldQty = optional.Some(10.0)

	err := suite.machine.ApplySellFill(p, 10000, 20, false)
	suite.Error(err)
	suite.Equal(errors.ErrCodeInsufficientQuantity, errors.GetCode(err))
	suite.Equal(10.0, p.HoldQty.Unwrap())
}
