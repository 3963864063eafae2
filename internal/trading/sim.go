package trading

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// SimGateway is a paper-trading OrderGateway and MarketDataGateway: every
// order fills immediately at the last quote set for the symbol. Safe for
// concurrent use.
type SimGateway struct {
	mu     sync.RWMutex
	quotes map[string]types.Quote
	bars   map[string][]types.PriceBar
	fills  map[string]Fill
	// Orders records every placed order for assertions.
	Orders []PlacedOrder
}

// PlacedOrder is the record of one order submitted to the sim.
type PlacedOrder struct {
	OrderID  string
	Account  string
	Symbol   string
	Side     types.TradeSide
	Quantity float64
}

func NewSimGateway() *SimGateway {
	return &SimGateway{
		quotes: make(map[string]types.Quote),
		bars:   make(map[string][]types.PriceBar),
		fills:  make(map[string]Fill),
	}
}

// SetQuote sets the current quote for a symbol.
func (g *SimGateway) SetQuote(q types.Quote) {
	g.mu.Lock()
	g.quotes[q.Symbol] = q
	g.mu.Unlock()
}

// SetBars sets the daily-bar history for a symbol.
func (g *SimGateway) SetBars(symbol string, bars []types.PriceBar) {
	g.mu.Lock()
	g.bars[symbol] = bars
	g.mu.Unlock()
}

// GetQuote implements MarketDataGateway.
func (g *SimGateway) GetQuote(_ context.Context, symbol string) (types.Quote, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return types.Quote{}, errors.Newf(errors.ErrCodeDataNotFound, "no quote for %s", symbol)
	}

	return q, nil
}

// GetDailyBars implements MarketDataGateway.
func (g *SimGateway) GetDailyBars(_ context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	all, ok := g.bars[symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no bars for %s", symbol)
	}

	out := make([]types.PriceBar, 0, len(all))

	for _, b := range all {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}

		out = append(out, b)
	}

	return out, nil
}

// PlaceOrder implements OrderGateway: the order fills at the current
// quote immediately.
func (g *SimGateway) PlaceOrder(_ context.Context, account, symbol string, side types.TradeSide, quantity float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return "", errors.Newf(errors.ErrCodeDataNotFound, "no quote for %s", symbol)
	}

	orderID := uuid.New().String()
	g.fills[orderID] = Fill{OrderID: orderID, Price: q.Price, Quantity: quantity}
	g.Orders = append(g.Orders, PlacedOrder{
		OrderID:  orderID,
		Account:  account,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
	})

	return orderID, nil
}

// PollExecution implements OrderGateway.
func (g *SimGateway) PollExecution(_ context.Context, orderID string) (Fill, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fill, ok := g.fills[orderID]
	if !ok {
		return Fill{}, false, errors.Newf(errors.ErrCodeDataNotFound, "unknown order %s", orderID)
	}

	return fill, true, nil
}
