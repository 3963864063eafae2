package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// PriceBar is a single daily OHLCV bar for a symbol. Bars are append-only
// per (symbol, date); a corrected bar replaces the row for the same date.
type PriceBar struct {
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Date   time.Time `yaml:"date" json:"date" csv:"date" validate:"required"`
	Open   float64   `yaml:"open" json:"open" csv:"open" validate:"gt=0"`
	High   float64   `yaml:"high" json:"high" csv:"high" validate:"gt=0"`
	Low    float64   `yaml:"low" json:"low" csv:"low" validate:"gt=0"`
	Close  float64   `yaml:"close" json:"close" csv:"close" validate:"gt=0"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume" validate:"gte=0"`
	// ForeignNetBuy is the net foreign-investor buy volume for the day.
	// Not every data source provides it, so it is optional.
	ForeignNetBuy optional.Option[float64] `yaml:"foreign_net_buy" json:"foreign_net_buy" csv:"foreign_net_buy"`
}

// Quote is a live intraday tick for a symbol.
type Quote struct {
	Symbol string  `yaml:"symbol" json:"symbol"`
	Price  float64 `yaml:"price" json:"price"`
	// High and Low are the running intraday high and low.
	High   float64 `yaml:"high" json:"high"`
	Low    float64 `yaml:"low" json:"low"`
	Volume float64 `yaml:"volume" json:"volume"`
	// ForeignNetBuy is today's running net foreign-investor buy volume.
	ForeignNetBuy float64 `yaml:"foreign_net_buy" json:"foreign_net_buy"`
	// DailyReturn is (price - prevClose) / prevClose.
	DailyReturn float64 `yaml:"daily_return" json:"daily_return"`
}

// Bar converts a quote into a provisional daily bar, used by the
// end-of-day collection job when the data source has no separate
// daily-bar endpoint.
func (q Quote) Bar(date time.Time) PriceBar {
	return PriceBar{
		Symbol:        q.Symbol,
		Date:          date,
		Open:          q.Price,
		High:          q.High,
		Low:           q.Low,
		Close:         q.Price,
		Volume:        q.Volume,
		ForeignNetBuy: optional.Some(q.ForeignNetBuy),
	}
}
