package indicator

import "github.com/halcyon-lab/swing-trading/internal/types"

const (
	ichimokuTenkanPeriod = 9
	ichimokuKijunPeriod  = 26
	ichimokuSenkouPeriod = 52
	ichimokuShift        = 26
)

// Ichimoku holds the per-bar Ichimoku component series. The senkou spans
// are already shifted forward, so index i holds the cloud in effect at
// bar i. Undefined entries are NaN.
type Ichimoku struct {
	Tenkan  []float64
	Kijun   []float64
	SenkouA []float64
	SenkouB []float64
}

// IchimokuSeries computes tenkan(9), kijun(26) and the senkou spans
// (shifted forward 26 bars).
func IchimokuSeries(bars []types.PriceBar) Ichimoku {
	n := len(bars)
	ich := Ichimoku{
		Tenkan:  nanSlice(n),
		Kijun:   nanSlice(n),
		SenkouA: nanSlice(n),
		SenkouB: nanSlice(n),
	}

	for i := 0; i < n; i++ {
		if i >= ichimokuTenkanPeriod-1 {
			ich.Tenkan[i] = midpoint(bars[i-ichimokuTenkanPeriod+1 : i+1])
		}

		if i >= ichimokuKijunPeriod-1 {
			ich.Kijun[i] = midpoint(bars[i-ichimokuKijunPeriod+1 : i+1])
		}
	}

	for i := 0; i < n; i++ {
		src := i - ichimokuShift
		if src < 0 {
			continue
		}

		ich.SenkouA[i] = (ich.Tenkan[src] + ich.Kijun[src]) / 2

		if src >= ichimokuSenkouPeriod-1 {
			ich.SenkouB[i] = midpoint(bars[src-ichimokuSenkouPeriod+1 : src+1])
		}
	}

	return ich
}

// midpoint returns (highest high + lowest low) / 2 over the window.
func midpoint(window []types.PriceBar) float64 {
	high := window[0].High
	low := window[0].Low

	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}

		if b.Low < low {
			low = b.Low
		}
	}

	return (high + low) / 2
}
