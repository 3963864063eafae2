package strategy

import (
	"context"
	"math"

	"github.com/halcyon-lab/swing-trading/internal/types"
)

// Ichimoku is the alternate strategy variant: entries on a tenkan/kijun
// cross with price above the cloud, exits on a cross-down or a cloud
// breach. It shares the ATR stop with SingleEMA.
type Ichimoku struct {
	debouncer *EntryDebouncer
}

func NewIchimoku(debouncer *EntryDebouncer) *Ichimoku {
	return &Ichimoku{debouncer: debouncer}
}

func (s *Ichimoku) Name() string {
	return "ichimoku"
}

func cloudTop(snap types.IndicatorSnapshot) float64 {
	return math.Max(snap.SenkouA, snap.SenkouB)
}

func cloudBottom(snap types.IndicatorSnapshot) float64 {
	return math.Min(snap.SenkouA, snap.SenkouB)
}

// crossedUp reports a tenkan/kijun bullish cross completed on the
// current snapshot.
func crossedUp(ec EvalContext) bool {
	if ec.Snapshot.Tenkan <= ec.Snapshot.Kijun {
		return false
	}

	prev, err := ec.PrevSnapshot.Take()
	if err != nil {
		// Without yesterday's snapshot the relation alone has to do.
		return true
	}

	return prev.Tenkan <= prev.Kijun
}

// CheckEntry implements Strategy.
func (s *Ichimoku) CheckEntry(ctx context.Context, ec EvalContext) (types.Decision, error) {
	snap := ec.Snapshot
	price := ec.Quote.Price

	qualifies := !math.IsNaN(snap.SenkouA) && !math.IsNaN(snap.SenkouB) &&
		price > cloudTop(snap) &&
		crossedUp(ec) &&
		ec.Quote.DailyReturn <= MaxEntryDailyReturn

	if !qualifies {
		if s.debouncer != nil {
			if err := s.debouncer.Reset(ctx, ec.Quote.Symbol); err != nil {
				return types.Decision{}, err
			}
		}

		return types.Hold("ichimoku entry conditions not met"), nil
	}

	if s.debouncer != nil {
		confirmed, err := s.debouncer.Confirm(ctx, ec.Quote.Symbol)
		if err != nil {
			return types.Decision{}, err
		}

		if !confirmed {
			return types.Hold("entry qualifying, awaiting consecutive confirmation"), nil
		}
	}

	return types.Buy(types.TradeReasonEntry), nil
}

// CheckSecondBuy implements Strategy. The second tranche only adds while
// the cross is intact and price still rides above the cloud.
func (s *Ichimoku) CheckSecondBuy(_ context.Context, ec EvalContext) (types.Decision, error) {
	if ec.Position != nil && ec.Position.BuyCount >= MaxBuyCount {
		return types.Hold("tranche limit reached"), nil
	}

	snap := ec.Snapshot
	if snap.Tenkan > snap.Kijun && ec.Quote.Price > cloudTop(snap) {
		return types.Buy(types.TradeReasonSecondBuy), nil
	}

	return types.Hold("second-buy conditions not met"), nil
}

// CheckExit implements Strategy.
func (s *Ichimoku) CheckExit(_ context.Context, ec EvalContext) (types.Decision, error) {
	if stopBreached(ec) {
		return types.Sell(types.TradeReasonImmediateStop, true), nil
	}

	snap := ec.Snapshot

	if snap.Tenkan < snap.Kijun {
		return types.Sell(types.TradeReasonFullSell, true), nil
	}

	if !math.IsNaN(snap.SenkouA) && !math.IsNaN(snap.SenkouB) && ec.Quote.Price < cloudBottom(snap) {
		return types.Sell(types.TradeReasonFullSell, true), nil
	}

	return types.Hold("cloud holding"), nil
}
