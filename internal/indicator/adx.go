package indicator

import (
	"math"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// DirectionalMovement returns the raw +DM and -DM for one bar against the
// previous bar. Only the larger of the two moves counts; ties count as
// neither.
func DirectionalMovement(high, low, prevHigh, prevLow float64) (plusDM, minusDM float64) {
	up := high - prevHigh
	down := prevLow - low

	if up > down && up > 0 {
		plusDM = up
	}

	if down > up && down > 0 {
		minusDM = down
	}

	return plusDM, minusDM
}

// ADXSeries computes the Wilder ADX and the directional indexes.
//
// The ±DM streams are Wilder-smoothed with a seed at index period (simple
// average of the first period raw DMs). The smoothed true range is the
// ATR itself, so DI = 100*DM14/(ATR+eps). DX = 100*|+DI - -DI| /
// (+DI + -DI + eps); the ADX seeds at index 2*period-1 with the simple
// average of the first period DX values and is Wilder-smoothed after.
// Undefined entries are NaN.
func ADXSeries(bars []types.PriceBar, period int) (adx, plusDI, minusDI []float64, err error) {
	if period <= 0 {
		return nil, nil, nil, errors.Newf(errors.ErrCodeInvalidPeriod, "adx period must be positive, got %d", period)
	}

	n := len(bars)
	adx = nanSlice(n)
	plusDI = nanSlice(n)
	minusDI = nanSlice(n)

	if n < 2*period {
		return adx, plusDI, minusDI, nil
	}

	atr, err := ATRSeries(bars, period)
	if err != nil {
		return nil, nil, nil, err
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		plusDM[i], minusDM[i] = DirectionalMovement(bars[i].High, bars[i].Low, bars[i-1].High, bars[i-1].Low)
	}

	var plusSum, minusSum float64
	for i := 1; i <= period; i++ {
		plusSum += plusDM[i]
		minusSum += minusDM[i]
	}

	plusDM14 := plusSum / float64(period)
	minusDM14 := minusSum / float64(period)

	dx := nanSlice(n)

	for i := period; i < n; i++ {
		if i > period {
			plusDM14 = NextWilder(plusDM14, plusDM[i], period)
			minusDM14 = NextWilder(minusDM14, minusDM[i], period)
		}

		plusDI[i] = 100 * plusDM14 / (atr[i] + Epsilon)
		minusDI[i] = 100 * minusDM14 / (atr[i] + Epsilon)
		dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / (plusDI[i] + minusDI[i] + Epsilon)
	}

	dxSum := 0.0
	for i := period; i < 2*period; i++ {
		dxSum += dx[i]
	}

	adx[2*period-1] = dxSum / float64(period)

	for i := 2 * period; i < n; i++ {
		adx[i] = NextWilder(adx[i-1], dx[i], period)
	}

	return adx, plusDI, minusDI, nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}

	return s
}
