package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/moznion/go-optional"
)

// EODSignal names one of the end-of-day defense signals. Each signal is
// recorded on the position with the timestamp it last fired.
type EODSignal string

const (
	// EODSignalEMABreach fires when the close falls below the short EMA.
	EODSignalEMABreach EODSignal = "ema_breach"
	// EODSignalTrendWeak fires when ADX is weak and -DI has dominated +DI
	// for two consecutive days.
	EODSignalTrendWeak EODSignal = "trend_weak"
	// EODSignalSupplyWeak fires when the OBV z-score shows heavy distribution.
	EODSignalSupplyWeak EODSignal = "supply_weak"
)

// EODSignalValidityDays is how many trading days a recorded end-of-day
// signal stays valid. Weekends do not consume validity.
const EODSignalValidityDays = 3

// Position is the persistent record of one symbol's swing cycle.
type Position struct {
	ID      string      `yaml:"id" json:"id" validate:"required"`
	Symbol  string      `yaml:"symbol" json:"symbol" validate:"required"`
	Account string      `yaml:"account" json:"account" validate:"required"`
	Signal  SignalState `yaml:"signal" json:"signal" validate:"gte=0,lte=5"`
	// EntryPrice is the weighted average entry price across buy fills.
	// None while no shares are held.
	EntryPrice optional.Option[float64] `yaml:"entry_price" json:"entry_price"`
	// HoldQty is the currently held quantity. None while flat.
	HoldQty optional.Option[float64] `yaml:"hold_qty" json:"hold_qty"`
	// FirstSellPrice is the fill price of the partial sell, recorded so a
	// re-entry can be judged against it. None until a partial sell happens.
	FirstSellPrice optional.Option[float64] `yaml:"first_sell_price" json:"first_sell_price"`
	// BuyRatio and SellRatio are percentages in [0, 100].
	BuyRatio  float64 `yaml:"buy_ratio" json:"buy_ratio" validate:"gte=0,lte=100"`
	SellRatio float64 `yaml:"sell_ratio" json:"sell_ratio" validate:"gte=0,lte=100"`
	// Allocated is the cash amount budgeted per buy tranche.
	Allocated float64 `yaml:"allocated" json:"allocated" validate:"gte=0"`
	BuyCount  int     `yaml:"buy_count" json:"buy_count" validate:"gte=0"`
	// EODSignals maps each fired end-of-day signal to the time it fired.
	EODSignals   map[EODSignal]time.Time `yaml:"eod_signals" json:"eod_signals"`
	LastModified time.Time               `yaml:"last_modified" json:"last_modified"`
}

// Validate validates the Position struct.
func (p *Position) Validate() error {
	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPosition, "invalid position", err)
	}

	return nil
}

// MarkEODSignal records that the given end-of-day signal fired at the
// given time, overwriting any earlier timestamp for the same signal.
func (p *Position) MarkEODSignal(sig EODSignal, at time.Time) {
	if p.EODSignals == nil {
		p.EODSignals = make(map[EODSignal]time.Time)
	}

	p.EODSignals[sig] = at
}

// ValidEODSignalCount returns how many recorded end-of-day signals are
// still valid at now. A signal stays valid for EODSignalValidityDays
// trading days after it fired; weekends are skipped.
func (p *Position) ValidEODSignalCount(now time.Time) int {
	count := 0

	for _, at := range p.EODSignals {
		if tradingDaysBetween(at, now) <= EODSignalValidityDays {
			count++
		}
	}

	return count
}

// ResetEODSignals clears all recorded end-of-day signals. Called on every
// state transition so signals from a previous cycle never carry over.
func (p *Position) ResetEODSignals() {
	p.EODSignals = nil
}

// tradingDaysBetween counts the weekdays strictly after from's date up to
// and including to's date. Returns 0 when to is not after from.
func tradingDaysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, from.Location())

	days := 0

	for d := fromDay.AddDate(0, 0, 1); !d.After(toDay); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}

	return days
}
