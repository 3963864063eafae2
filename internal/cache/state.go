package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/indicator"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// State holds the sufficient statistics to continue every indicator
// recurrence from the last completed daily bar. It is what the cache
// stores per symbol, JSON-encoded.
type State struct {
	PrevEMA20  float64 `json:"prev_ema20"`
	PrevEMA120 float64 `json:"prev_ema120"`
	PrevClose  float64 `json:"prev_close"`
	PrevHigh   float64 `json:"prev_high"`
	PrevLow    float64 `json:"prev_low"`
	PrevOBV    float64 `json:"prev_obv"`
	// OBVDiffs are the most recent OBV day-over-day changes, newest last,
	// capped at the configured lookback.
	OBVDiffs []float64 `json:"obv_diffs"`
	// PrevATR doubles as the Wilder-smoothed true range used by the DI
	// denominators.
	PrevATR       float64   `json:"prev_atr"`
	PrevPlusDM14  float64   `json:"prev_plus_dm14"`
	PrevMinusDM14 float64   `json:"prev_minus_dm14"`
	PrevADX       float64   `json:"prev_adx"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StateKey returns the cache key for a symbol's indicator state.
func StateKey(symbol string) string {
	return fmt.Sprintf("swing:ind:state:%s", symbol)
}

// Advance rolls the state forward by one tick and returns the resulting
// snapshot together with the advanced state. The receiver state is not
// modified. Each recurrence is the exact update rule of the batch series
// in internal/indicator, so both paths agree within floating-point noise.
func Advance(s State, q types.Quote, now time.Time, cfg indicator.Config) (types.IndicatorSnapshot, State) {
	next := State{
		PrevClose: q.Price,
		PrevHigh:  q.High,
		PrevLow:   q.Low,
		UpdatedAt: now,
	}

	next.PrevEMA20 = indicator.NextEMA(s.PrevEMA20, q.Price, cfg.EMAShortPeriod)
	next.PrevEMA120 = indicator.NextEMA(s.PrevEMA120, q.Price, cfg.EMALongPeriod)

	tr := indicator.TrueRange(q.High, q.Low, s.PrevClose)
	next.PrevATR = indicator.NextWilder(s.PrevATR, tr, cfg.ATRPeriod)

	plusDM, minusDM := indicator.DirectionalMovement(q.High, q.Low, s.PrevHigh, s.PrevLow)
	next.PrevPlusDM14 = indicator.NextWilder(s.PrevPlusDM14, plusDM, cfg.ADXPeriod)
	next.PrevMinusDM14 = indicator.NextWilder(s.PrevMinusDM14, minusDM, cfg.ADXPeriod)

	plusDI := 100 * next.PrevPlusDM14 / (next.PrevATR + indicator.Epsilon)
	minusDI := 100 * next.PrevMinusDM14 / (next.PrevATR + indicator.Epsilon)
	dx := 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI + indicator.Epsilon)
	next.PrevADX = indicator.NextWilder(s.PrevADX, dx, cfg.ADXPeriod)

	next.PrevOBV = s.PrevOBV
	switch {
	case q.Price > s.PrevClose:
		next.PrevOBV += q.Volume
	case q.Price < s.PrevClose:
		next.PrevOBV -= q.Volume
	}

	diff := next.PrevOBV - s.PrevOBV

	window := make([]float64, 0, cfg.OBVLookback)
	if tail := len(s.OBVDiffs) - (cfg.OBVLookback - 1); tail > 0 {
		window = append(window, s.OBVDiffs[tail:]...)
	} else {
		window = append(window, s.OBVDiffs...)
	}

	window = append(window, diff)
	next.OBVDiffs = window

	obvZ := indicator.ZScore(diff, window)

	gap := 0.0
	if next.PrevEMA20 != 0 {
		gap = (q.Price - next.PrevEMA20) / next.PrevEMA20
	}

	snapshot := types.IndicatorSnapshot{
		EMA20:    next.PrevEMA20,
		EMA120:   next.PrevEMA120,
		ATR:      next.PrevATR,
		ADX:      next.PrevADX,
		PlusDI:   plusDI,
		MinusDI:  minusDI,
		OBV:      next.PrevOBV,
		OBVZ:     obvZ,
		GapRatio: gap,
		AsOf:     now,
	}

	return snapshot, next
}

// Snapshot reconstructs the indicator snapshot of the last committed bar
// from the stored statistics.
func (s State) Snapshot() types.IndicatorSnapshot {
	plusDI := 100 * s.PrevPlusDM14 / (s.PrevATR + indicator.Epsilon)
	minusDI := 100 * s.PrevMinusDM14 / (s.PrevATR + indicator.Epsilon)

	obvZ := 0.0
	if len(s.OBVDiffs) > 0 {
		obvZ = indicator.ZScore(s.OBVDiffs[len(s.OBVDiffs)-1], s.OBVDiffs)
	}

	gap := 0.0
	if s.PrevEMA20 != 0 {
		gap = (s.PrevClose - s.PrevEMA20) / s.PrevEMA20
	}

	return types.IndicatorSnapshot{
		EMA20:    s.PrevEMA20,
		EMA120:   s.PrevEMA120,
		ATR:      s.PrevATR,
		ADX:      s.PrevADX,
		PlusDI:   plusDI,
		MinusDI:  minusDI,
		OBV:      s.PrevOBV,
		OBVZ:     obvZ,
		GapRatio: gap,
		AsOf:     s.UpdatedAt,
	}
}

// StateFromBars seeds an incremental state from full bar history using
// the batch series. Requires at least cfg.RequiredBars() bars.
func StateFromBars(bars []types.PriceBar, cfg indicator.Config) (State, error) {
	snapshots, err := indicator.Compute(bars, cfg)
	if err != nil {
		return State{}, err
	}

	last := snapshots[len(snapshots)-1]
	lastBar := bars[len(bars)-1]

	obv := indicator.OBVSeries(bars)

	diffs := make([]float64, 0, cfg.OBVLookback)

	start := len(obv) - cfg.OBVLookback
	if start < 1 {
		start = 1
	}

	for i := start; i < len(obv); i++ {
		diffs = append(diffs, obv[i]-obv[i-1])
	}

	state := State{
		PrevEMA20:  last.EMA20,
		PrevEMA120: last.EMA120,
		PrevClose:  lastBar.Close,
		PrevHigh:   lastBar.High,
		PrevLow:    lastBar.Low,
		PrevOBV:    last.OBV,
		OBVDiffs:   diffs,
		PrevATR:    last.ATR,
		// DI = 100*DM14/(ATR+eps), so the smoothed DMs recover exactly.
		PrevPlusDM14:  last.PlusDI * (last.ATR + indicator.Epsilon) / 100,
		PrevMinusDM14: last.MinusDI * (last.ATR + indicator.Epsilon) / 100,
		PrevADX:       last.ADX,
		UpdatedAt:     lastBar.Date,
	}

	if math.IsNaN(state.PrevEMA20) || math.IsNaN(state.PrevADX) || math.IsNaN(state.PrevATR) {
		return State{}, errors.New(errors.ErrCodeInsufficientHistory, "seed snapshot still inside warm-up")
	}

	return state, nil
}
