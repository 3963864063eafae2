package types

import "time"

// IndicatorSnapshot holds the full indicator set for a symbol as of one
// bar (batch path) or one tick (incremental path). Fields are strongly
// typed so a missing value is a compile error, not a missing map key.
type IndicatorSnapshot struct {
	EMA20   float64 `yaml:"ema20" json:"ema20"`
	EMA120  float64 `yaml:"ema120" json:"ema120"`
	ATR     float64 `yaml:"atr" json:"atr"`
	ADX     float64 `yaml:"adx" json:"adx"`
	PlusDI  float64 `yaml:"plus_di" json:"plus_di"`
	MinusDI float64 `yaml:"minus_di" json:"minus_di"`
	OBV     float64 `yaml:"obv" json:"obv"`
	// OBVZ is the z-score of the latest OBV change against the rolling
	// window of recent OBV changes.
	OBVZ float64 `yaml:"obv_z" json:"obv_z"`
	// GapRatio is (price - EMA20) / EMA20.
	GapRatio float64 `yaml:"gap_ratio" json:"gap_ratio"`

	// Ichimoku components. Zero when the Ichimoku series was not requested.
	Tenkan  float64 `yaml:"tenkan" json:"tenkan"`
	Kijun   float64 `yaml:"kijun" json:"kijun"`
	SenkouA float64 `yaml:"senkou_a" json:"senkou_a"`
	SenkouB float64 `yaml:"senkou_b" json:"senkou_b"`

	AsOf time.Time `yaml:"as_of" json:"as_of"`
}

// Bearish reports whether the short EMA sits below the long EMA, the
// regime filter under which no new exposure is taken.
func (s IndicatorSnapshot) Bearish() bool {
	return s.EMA20 < s.EMA120
}
