// Package indicator computes the technical indicator series used by the
// swing strategies: EMA, ATR, ADX/DMI, OBV and its z-score, and Ichimoku.
//
// All series functions are pure batch computations over ordered daily
// bars. Values that cannot be computed yet (warm-up prefix) are NaN; the
// incremental path in internal/cache continues the same recurrences from
// a seeded state and must agree with these series within 1e-6.
package indicator

import (
	"math"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// Epsilon guards divisions against zero denominators. The same floor is
// used by the incremental path.
const Epsilon = 1e-9

// Config holds the indicator periods. Zero value is not usable; call
// DefaultConfig.
type Config struct {
	EMAShortPeriod int `yaml:"ema_short_period" json:"ema_short_period" validate:"gt=0"`
	EMALongPeriod  int `yaml:"ema_long_period" json:"ema_long_period" validate:"gt=0"`
	ATRPeriod      int `yaml:"atr_period" json:"atr_period" validate:"gt=0"`
	ADXPeriod      int `yaml:"adx_period" json:"adx_period" validate:"gt=0"`
	OBVLookback    int `yaml:"obv_lookback" json:"obv_lookback" validate:"gt=0"`
}

// DefaultConfig returns the production indicator periods.
func DefaultConfig() Config {
	return Config{
		EMAShortPeriod: 20,
		EMALongPeriod:  120,
		ATRPeriod:      14,
		ADXPeriod:      14,
		OBVLookback:    7,
	}
}

// RequiredBars returns the minimum number of bars needed before every
// series in the snapshot is defined. The long EMA usually dominates; the
// ADX needs two periods to seed its second-stage smoothing.
func (c Config) RequiredBars() int {
	warmup := c.EMALongPeriod
	if adx := 2 * c.ADXPeriod; adx > warmup {
		warmup = adx
	}

	return warmup + c.OBVLookback
}

// Compute calculates one IndicatorSnapshot per bar. It returns an
// InsufficientHistoryError when there are fewer bars than
// cfg.RequiredBars(); callers skip the symbol rather than abort.
// Snapshots inside the warm-up prefix carry NaN for undefined fields.
func Compute(bars []types.PriceBar, cfg Config) ([]types.IndicatorSnapshot, error) {
	if cfg.EMAShortPeriod <= 0 || cfg.EMALongPeriod <= 0 || cfg.ATRPeriod <= 0 || cfg.ADXPeriod <= 0 || cfg.OBVLookback <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidPeriod, "indicator periods must be positive")
	}

	required := cfg.RequiredBars()
	if len(bars) < required {
		symbol := ""
		if len(bars) > 0 {
			symbol = bars[0].Symbol
		}

		return nil, errors.Wrap(
			errors.ErrCodeInsufficientHistory,
			"not enough bars for indicator warm-up",
			errors.NewInsufficientHistoryErrorf(required, len(bars), symbol,
				"need %d bars, have %d", required, len(bars)),
		)
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	emaShort, err := EMASeries(closes, cfg.EMAShortPeriod)
	if err != nil {
		return nil, err
	}

	emaLong, err := EMASeries(closes, cfg.EMALongPeriod)
	if err != nil {
		return nil, err
	}

	atr, err := ATRSeries(bars, cfg.ATRPeriod)
	if err != nil {
		return nil, err
	}

	adx, plusDI, minusDI, err := ADXSeries(bars, cfg.ADXPeriod)
	if err != nil {
		return nil, err
	}

	obv := OBVSeries(bars)
	obvZ := OBVZScoreSeries(obv, cfg.OBVLookback)
	ichimoku := IchimokuSeries(bars)

	snapshots := make([]types.IndicatorSnapshot, len(bars))
	for i := range bars {
		gap := math.NaN()
		if !math.IsNaN(emaShort[i]) && emaShort[i] != 0 {
			gap = (bars[i].Close - emaShort[i]) / emaShort[i]
		}

		snapshots[i] = types.IndicatorSnapshot{
			EMA20:    emaShort[i],
			EMA120:   emaLong[i],
			ATR:      atr[i],
			ADX:      adx[i],
			PlusDI:   plusDI[i],
			MinusDI:  minusDI[i],
			OBV:      obv[i],
			OBVZ:     obvZ[i],
			GapRatio: gap,
			Tenkan:   ichimoku.Tenkan[i],
			Kijun:    ichimoku.Kijun[i],
			SenkouA:  ichimoku.SenkouA[i],
			SenkouB:  ichimoku.SenkouB[i],
			AsOf:     bars[i].Date,
		}
	}

	return snapshots, nil
}
