// Package trading defines the brokerage gateway interfaces and the order
// coordinator that drives a buy or sell through submission, execution
// polling, and fill confirmation.
package trading

import (
	"context"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/types"
)

// MarketDataGateway fetches price data from the brokerage or a data
// vendor.
type MarketDataGateway interface {
	// GetDailyBars returns daily bars for symbol in [from, to], oldest
	// first.
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error)
	// GetQuote returns the current intraday quote.
	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
}

// OrderGateway submits orders and reports executions.
type OrderGateway interface {
	// PlaceOrder submits a market order and returns the brokerage order id.
	PlaceOrder(ctx context.Context, account, symbol string, side types.TradeSide, quantity float64) (string, error)
	// PollExecution reports whether the order has fully executed. done is
	// false while the order is still working.
	PollExecution(ctx context.Context, orderID string) (fill Fill, done bool, err error)
}

// Fill is a confirmed (or assumed) execution.
type Fill struct {
	OrderID  string
	Price    float64
	Quantity float64
	// Assumed marks a fill taken at the quoted price after confirmation
	// polling timed out.
	Assumed bool
}
