package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// MemoryStore implements PositionRepository, TradeLog, and BarRepository
// in memory. Used by tests and by the backtest engine, which needs no
// persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]types.Position
	inactive  map[string]bool
	trades    []types.TradeRecord
	bars      map[string][]types.PriceBar
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]types.Position),
		inactive:  make(map[string]bool),
		bars:      make(map[string][]types.PriceBar),
	}
}

// Create implements PositionRepository.
func (s *MemoryStore) Create(_ context.Context, p *types.Position) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "position %s already exists", p.ID)
	}

	s.positions[p.ID] = clonePosition(*p)

	return nil
}

// Save implements PositionRepository.
func (s *MemoryStore) Save(_ context.Context, p *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; !exists {
		return errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", p.ID)
	}

	s.positions[p.ID] = clonePosition(*p)

	return nil
}

// Find implements PositionRepository.
func (s *MemoryStore) Find(_ context.Context, id string) (types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return types.Position{}, errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", id)
	}

	return clonePosition(p), nil
}

// FindActive implements PositionRepository.
func (s *MemoryStore) FindActive(_ context.Context) ([]types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Position, 0, len(s.positions))

	for id, p := range s.positions {
		if s.inactive[id] {
			continue
		}

		out = append(out, clonePosition(p))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	return out, nil
}

// Deactivate implements PositionRepository.
func (s *MemoryStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	s.inactive[id] = true
	s.mu.Unlock()

	return nil
}

// Append implements TradeLog.
func (s *MemoryStore) Append(_ context.Context, record types.TradeRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.trades = append(s.trades, record)
	s.mu.Unlock()

	return nil
}

// List implements TradeLog.
func (s *MemoryStore) List(_ context.Context, symbol string) ([]types.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.TradeRecord

	for _, r := range s.trades {
		if symbol != "" && r.Symbol != symbol {
			continue
		}

		out = append(out, r)
	}

	return out, nil
}

// UpsertBar implements BarRepository.
func (s *MemoryStore) UpsertBar(_ context.Context, bar types.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.bars[bar.Symbol]

	for i, b := range existing {
		if b.Date.Equal(bar.Date) {
			existing[i] = bar

			return nil
		}
	}

	existing = append(existing, bar)
	sort.Slice(existing, func(i, j int) bool { return existing[i].Date.Before(existing[j].Date) })
	s.bars[bar.Symbol] = existing

	return nil
}

// LoadBars implements BarRepository.
func (s *MemoryStore) LoadBars(_ context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.PriceBar

	for _, b := range s.bars[symbol] {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}

		out = append(out, b)
	}

	return out, nil
}

func clonePosition(p types.Position) types.Position {
	if p.EODSignals != nil {
		signals := make(map[types.EODSignal]time.Time, len(p.EODSignals))
		for k, v := range p.EODSignals {
			signals[k] = v
		}

		p.EODSignals = signals
	}

	return p
}
