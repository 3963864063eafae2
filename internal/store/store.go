// Package store persists positions, the trade ledger, and daily bars.
// The production implementation is DuckDB; MemoryStore backs tests.
package store

import (
	"context"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/types"
)

// PositionRepository persists swing positions.
type PositionRepository interface {
	// FindActive returns every position currently being managed.
	FindActive(ctx context.Context) ([]types.Position, error)
	// Find returns one position by id.
	Find(ctx context.Context, id string) (types.Position, error)
	// Create registers a new position.
	Create(ctx context.Context, p *types.Position) error
	// Save persists the position's current state. Called once per
	// position per cycle, after the full decision and order sequence.
	Save(ctx context.Context, p *types.Position) error
	// Deactivate logically removes the position from management.
	Deactivate(ctx context.Context, id string) error
}

// TradeLog is the append-only ledger of executed fills.
type TradeLog interface {
	Append(ctx context.Context, record types.TradeRecord) error
	// List returns records for a symbol, oldest first. An empty symbol
	// returns everything.
	List(ctx context.Context, symbol string) ([]types.TradeRecord, error)
}

// BarRepository persists daily bars.
type BarRepository interface {
	// UpsertBar inserts the bar, replacing any bar for the same
	// (symbol, date).
	UpsertBar(ctx context.Context, bar types.PriceBar) error
	// LoadBars returns bars for symbol in [from, to], oldest first.
	LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error)
}
