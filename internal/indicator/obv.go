package indicator

import (
	"math"

	"github.com/halcyon-lab/swing-trading/internal/types"
)

// OBVSeries computes on-balance volume: the cumulative sum of volume
// signed by the close-to-close direction. The first bar contributes its
// raw volume, matching ta-lib.
func OBVSeries(bars []types.PriceBar) []float64 {
	out := make([]float64, len(bars))
	if len(bars) == 0 {
		return out
	}

	out[0] = bars[0].Volume

	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			out[i] = out[i-1] + bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			out[i] = out[i-1] - bars[i].Volume
		default:
			out[i] = out[i-1]
		}
	}

	return out
}

// OBVZScoreSeries computes the z-score of each OBV change against the
// rolling window of the last lookback changes (current included). Fewer
// than 3 changes in the window yields 0. A zero standard deviation is
// floored to Epsilon. Mirrors a pandas rolling(lookback, min_periods=3)
// with sample standard deviation.
func OBVZScoreSeries(obv []float64, lookback int) []float64 {
	out := make([]float64, len(obv))
	if len(obv) < 2 || lookback <= 0 {
		return out
	}

	diffs := make([]float64, len(obv))
	for i := 1; i < len(obv); i++ {
		diffs[i] = obv[i] - obv[i-1]
	}

	for i := 1; i < len(obv); i++ {
		start := i - lookback + 1
		if start < 1 {
			start = 1
		}

		window := diffs[start : i+1]
		out[i] = ZScore(diffs[i], window)
	}

	return out
}

// ZScore returns (value-mean)/std over window, with sample standard
// deviation and an Epsilon floor. Windows shorter than 3 return 0.
// Shared with the incremental path.
func ZScore(value float64, window []float64) float64 {
	if len(window) < 3 {
		return 0
	}

	mean := 0.0
	for _, v := range window {
		mean += v
	}

	mean /= float64(len(window))

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}

	variance /= float64(len(window) - 1)

	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		std = Epsilon
	}

	return (value - mean) / std
}
