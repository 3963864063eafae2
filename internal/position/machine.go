// Package position owns the swing-cycle state machine and the fill
// accounting applied to a position as orders execute.
package position

import (
	"time"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// transitions is the legal edge set of the signal-state machine.
var transitions = map[types.SignalState][]types.SignalState{
	types.StateWaiting:  {types.StateFirstBuy},
	types.StateFirstBuy: {types.StateSecondBuy, types.StateStopped, types.StateFirstSellPending, types.StateSecondSellPending},
	types.StateSecondBuy: {
		types.StateStopped, types.StateFirstSellPending, types.StateSecondSellPending,
	},
	types.StateStopped:           {types.StateWaiting},
	types.StateFirstSellPending:  {types.StateFirstBuy, types.StateWaiting},
	types.StateSecondSellPending: {types.StateWaiting},
}

// Machine validates and applies signal-state transitions.
type Machine struct{}

func NewMachine() *Machine {
	return &Machine{}
}

// CanTransition reports whether from→to is a legal edge.
func (m *Machine) CanTransition(from, to types.SignalState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// Transition moves the position to the target state. An illegal edge
// returns ErrCodeIllegalTransition and leaves the position untouched.
// Every state change clears the accumulated end-of-day signals so a new
// cycle starts clean.
func (m *Machine) Transition(p *types.Position, to types.SignalState, now time.Time) error {
	if !m.CanTransition(p.Signal, to) {
		return errors.Newf(errors.ErrCodeIllegalTransition,
			"illegal transition %s -> %s for %s", p.Signal, to, p.Symbol)
	}

	p.Signal = to
	p.ResetEODSignals()
	p.LastModified = now

	return nil
}

// ApplyBuyFill folds a buy fill into the position: the entry price
// becomes the quantity-weighted average of the old average and the fill,
// computed in decimal so repeated buys stay exact.
func (m *Machine) ApplyBuyFill(p *types.Position, price, quantity float64) error {
	if price <= 0 || quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"buy fill must have positive price and quantity, got %f @ %f", quantity, price)
	}

	oldQty := decimal.NewFromFloat(p.HoldQty.TakeOr(0))
	oldAvg := decimal.NewFromFloat(p.EntryPrice.TakeOr(0))
	fillQty := decimal.NewFromFloat(quantity)
	fillPrice := decimal.NewFromFloat(price)

	newQty := oldQty.Add(fillQty)
	newAvg := oldQty.Mul(oldAvg).Add(fillQty.Mul(fillPrice)).Div(newQty)

	p.HoldQty = optional.Some(newQty.InexactFloat64())
	p.EntryPrice = optional.Some(newAvg.InexactFloat64())
	p.BuyCount++

	return nil
}

// ApplySellFill folds a sell fill into the position. A full sell flattens
// the position entirely; a partial sell decrements the held quantity and
// records the fill price so a later re-entry can be judged against it.
func (m *Machine) ApplySellFill(p *types.Position, price, quantity float64, full bool) error {
	held := p.HoldQty.TakeOr(0)
	if held <= 0 {
		return errors.Newf(errors.ErrCodePositionNotFound, "no holdings to sell for %s", p.Symbol)
	}

	if full {
		p.EntryPrice = optional.None[float64]()
		p.HoldQty = optional.None[float64]()
		p.FirstSellPrice = optional.None[float64]()
		p.BuyCount = 0

		return nil
	}

	if quantity <= 0 || quantity > held {
		return errors.Newf(errors.ErrCodeInsufficientQuantity,
			"cannot sell %f of %f held for %s", quantity, held, p.Symbol)
	}

	remaining := decimal.NewFromFloat(held).Sub(decimal.NewFromFloat(quantity))
	p.HoldQty = optional.Some(remaining.InexactFloat64())
	p.FirstSellPrice = optional.Some(price)

	return nil
}
