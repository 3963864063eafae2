package strategy

import (
	"context"

	"github.com/halcyon-lab/swing-trading/internal/types"
)

// Default SingleEMA thresholds.
const (
	// MaxEntryGapRatio caps how far above the EMA an entry may chase.
	MaxEntryGapRatio = 0.05
	// MaxEntryDailyReturn rejects entries on days that already ran too far.
	MaxEntryDailyReturn = 0.05
	// MinEntryOBVZ is the accumulation threshold for entry.
	MinEntryOBVZ = 1.0
	// MinEntryADX is the trend-strength threshold for entry.
	MinEntryADX = 25.0

	// Second-buy scenario A: trend continuation band above the EMA.
	secondBuyTrendBandLow  = 0.3 // in ATRs above EMA
	secondBuyTrendBandHigh = 2.0
	secondBuyTrendMinOBVZ  = 1.2

	// Second-buy scenario B: pullback band around the EMA.
	secondBuyPullbackBandLow  = -0.5 // in ATRs relative to EMA
	secondBuyPullbackBandHigh = 0.3
	secondBuyPullbackMinADX   = 18.0
	secondBuyPullbackMaxADX   = 23.0
	// Rebound confirmation: price must stand off the day low.
	secondBuyReboundRatio = 1.004

	// StopATRMultiple sets the intraday stop at EMA - multiple*ATR.
	StopATRMultiple = 1.0

	// EOD defense thresholds.
	eodWeakADX       = 20.0
	eodSupplyWeakOBV = -1.0

	// MaxBuyCount caps the tranches per cycle.
	MaxBuyCount = 2

	// ConsecutiveRequired is how many qualifying evaluations in a row a
	// live entry needs.
	ConsecutiveRequired = 2

	// PartialSellSignals and FullSellSignals are the valid end-of-day
	// signal counts that trigger the two sell stages.
	PartialSellSignals = 2
	FullSellSignals    = 3
)

// SingleEMA is the default swing strategy: EMA-anchored entries with
// OBV/ADX confirmation, ATR-banded second buys, an ATR stop, and a
// three-signal end-of-day defense line.
type SingleEMA struct {
	debouncer *EntryDebouncer
}

// NewSingleEMA creates the strategy. A nil debouncer (backtest) makes
// every qualifying evaluation buy immediately.
func NewSingleEMA(debouncer *EntryDebouncer) *SingleEMA {
	return &SingleEMA{debouncer: debouncer}
}

func (s *SingleEMA) Name() string {
	return "single_ema"
}

// entryConditionsMet checks the raw entry predicate, regime filter
// included.
func entryConditionsMet(ec EvalContext) bool {
	snap := ec.Snapshot
	price := ec.Quote.Price

	if snap.Bearish() {
		return false
	}

	return price > snap.EMA20 &&
		snap.GapRatio <= MaxEntryGapRatio &&
		snap.OBVZ > MinEntryOBVZ &&
		snap.ADX > MinEntryADX &&
		snap.PlusDI > snap.MinusDI &&
		ec.Quote.DailyReturn <= MaxEntryDailyReturn
}

// CheckEntry implements Strategy.
func (s *SingleEMA) CheckEntry(ctx context.Context, ec EvalContext) (types.Decision, error) {
	if ec.Snapshot.Bearish() {
		return types.Hold("bearish regime: short EMA below long EMA"), nil
	}

	if !entryConditionsMet(ec) {
		if s.debouncer != nil {
			if err := s.debouncer.Reset(ctx, ec.Quote.Symbol); err != nil {
				return types.Decision{}, err
			}
		}

		return types.Hold("entry conditions not met"), nil
	}

	if s.debouncer == nil {
		return types.Buy(types.TradeReasonEntry), nil
	}

	confirmed, err := s.debouncer.Confirm(ctx, ec.Quote.Symbol)
	if err != nil {
		return types.Decision{}, err
	}

	if !confirmed {
		return types.Hold("entry qualifying, awaiting consecutive confirmation"), nil
	}

	return types.Buy(types.TradeReasonEntry), nil
}

// secondBuyTrendContinuation is scenario A: price riding the trend in
// the upper ATR band with strong confirmation.
func secondBuyTrendContinuation(ec EvalContext) bool {
	snap := ec.Snapshot
	price := ec.Quote.Price
	low := snap.EMA20 + secondBuyTrendBandLow*snap.ATR
	high := snap.EMA20 + secondBuyTrendBandHigh*snap.ATR

	return price >= low && price <= high &&
		snap.ADX > MinEntryADX &&
		snap.PlusDI > snap.MinusDI &&
		snap.OBVZ >= secondBuyTrendMinOBVZ
}

// secondBuyPullbackRebound is scenario B: a shallow pullback toward the
// EMA that is already bouncing off the day low.
func secondBuyPullbackRebound(ec EvalContext) bool {
	snap := ec.Snapshot
	price := ec.Quote.Price
	low := snap.EMA20 + secondBuyPullbackBandLow*snap.ATR
	high := snap.EMA20 + secondBuyPullbackBandHigh*snap.ATR

	return price >= low && price <= high &&
		snap.ADX >= secondBuyPullbackMinADX && snap.ADX <= secondBuyPullbackMaxADX &&
		snap.PlusDI > snap.MinusDI &&
		snap.OBVZ > 0 &&
		price >= ec.Quote.Low*secondBuyReboundRatio
}

// CheckSecondBuy implements Strategy.
func (s *SingleEMA) CheckSecondBuy(_ context.Context, ec EvalContext) (types.Decision, error) {
	if ec.Snapshot.Bearish() {
		return types.Hold("bearish regime: short EMA below long EMA"), nil
	}

	if ec.Position != nil && ec.Position.BuyCount >= MaxBuyCount {
		return types.Hold("tranche limit reached"), nil
	}

	if secondBuyTrendContinuation(ec) {
		return types.Buy(types.TradeReasonSecondBuy), nil
	}

	if secondBuyPullbackRebound(ec) {
		return types.Buy(types.TradeReasonSecondBuy), nil
	}

	return types.Hold("second-buy conditions not met"), nil
}

// stopBreached is the immediate liquidation predicate: the day low has
// pierced the ATR stop under the EMA.
func stopBreached(ec EvalContext) bool {
	return ec.Quote.Low < ec.Snapshot.EMA20-StopATRMultiple*ec.Snapshot.ATR
}

// CheckExit implements Strategy. The immediate stop short-circuits; the
// end-of-day signals are scored only on an EOD pass and their decision
// depends on how far into the sell sequence the position already is.
func (s *SingleEMA) CheckExit(_ context.Context, ec EvalContext) (types.Decision, error) {
	if stopBreached(ec) {
		return types.Sell(types.TradeReasonImmediateStop, true), nil
	}

	if !ec.EOD {
		return types.Hold("no intraday exit"), nil
	}

	snap := ec.Snapshot
	p := ec.Position

	if snap.EMA20 > ec.Quote.Price {
		p.MarkEODSignal(types.EODSignalEMABreach, ec.Now)
	}

	// Trend weakness needs both days weak: ADX under the threshold with
	// -DI dominating, today and yesterday.
	if snap.ADX < eodWeakADX && snap.MinusDI > snap.PlusDI {
		if prev, err := ec.PrevSnapshot.Take(); err == nil &&
			prev.ADX < eodWeakADX && prev.MinusDI > prev.PlusDI {
			p.MarkEODSignal(types.EODSignalTrendWeak, ec.Now)
		}
	}

	if snap.OBVZ < eodSupplyWeakOBV {
		p.MarkEODSignal(types.EODSignalSupplyWeak, ec.Now)
	}

	valid := p.ValidEODSignalCount(ec.Now)

	if p.Signal == types.StateFirstSellPending {
		if valid >= FullSellSignals {
			return types.Sell(types.TradeReasonFullSell, true), nil
		}

		return types.Hold("defense line holding after partial sell"), nil
	}

	if valid >= PartialSellSignals {
		return types.Sell(types.TradeReasonPartialSell, false), nil
	}

	return types.Hold("defense line holding"), nil
}
