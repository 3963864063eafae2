package strategy

import (
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// New returns the named strategy variant. The debouncer may be nil for
// backtests, where each bar is evaluated exactly once.
func New(name string, debouncer *EntryDebouncer) (Strategy, error) {
	switch name {
	case "", "single_ema":
		return NewSingleEMA(debouncer), nil
	case "ichimoku":
		return NewIchimoku(debouncer), nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy: %s", name)
	}
}
