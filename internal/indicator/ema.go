package indicator

import (
	"math"

	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// EMASeries computes an exponential moving average over values. The seed
// at index period-1 is the simple average of the first period values;
// from there the recurrence is ema = prev + k*(v-prev) with
// k = 2/(period+1). Entries before the seed are NaN.
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema period must be positive, got %d", period)
	}

	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}

	if len(values) < period {
		return out, nil
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}

	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = out[i-1] + k*(values[i]-out[i-1])
	}

	return out, nil
}

// NextEMA advances an EMA by one value. Shared with the incremental path
// so both agree bit-for-bit.
func NextEMA(prev, value float64, period int) float64 {
	k := 2.0 / float64(period+1)

	return prev + k*(value-prev)
}
