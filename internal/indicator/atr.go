package indicator

import (
	"math"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if v := math.Abs(high - prevClose); v > tr {
		tr = v
	}

	if v := math.Abs(low - prevClose); v > tr {
		tr = v
	}

	return tr
}

// ATRSeries computes the Wilder average true range. The first bar's true
// range is high-low; the seed at index period-1 is the simple average of
// the first period true ranges; from there
// atr = (prev*(period-1) + tr) / period. Entries before the seed are NaN.
func ATRSeries(bars []types.PriceBar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "atr period must be positive, got %d", period)
	}

	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}

	if len(bars) < period {
		return out, nil
	}

	tr := make([]float64, len(bars))
	tr[0] = bars[0].High - bars[0].Low

	for i := 1; i < len(bars); i++ {
		tr[i] = TrueRange(bars[i].High, bars[i].Low, bars[i-1].Close)
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}

	out[period-1] = sum / float64(period)

	for i := period; i < len(bars); i++ {
		out[i] = NextWilder(out[i-1], tr[i], period)
	}

	return out, nil
}

// NextWilder advances a Wilder-smoothed average by one value:
// (prev*(period-1) + value) / period. Shared with the incremental path.
func NextWilder(prev, value float64, period int) float64 {
	return (prev*float64(period-1) + value) / float64(period)
}
