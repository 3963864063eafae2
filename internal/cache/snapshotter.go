package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/indicator"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"go.uber.org/zap"
)

// BarLoader loads the trailing daily-bar history for one symbol, oldest
// first. Used when the cached state has to be reseeded.
type BarLoader func(ctx context.Context) ([]types.PriceBar, error)

// Snapshotter produces live indicator snapshots from cached incremental
// state, reseeding from batch history on a miss.
//
// Intraday ticks always advance from the same end-of-day state and never
// persist the advanced state; CommitBar rolls the state forward once the
// daily bar is final.
type Snapshotter struct {
	store  Store
	cfg    indicator.Config
	logger *logger.Logger
	ttl    time.Duration
}

// NewSnapshotter creates a Snapshotter with the default state TTL.
func NewSnapshotter(store Store, cfg indicator.Config, log *logger.Logger) *Snapshotter {
	return &Snapshotter{
		store:  store,
		cfg:    cfg,
		logger: log.Named("cache"),
		ttl:    DefaultStateTTL,
	}
}

// SnapshotFor returns the indicator snapshot for symbol as of the given
// live quote. On a cache miss or corrupt state it falls back to batch
// computation over the loader's history, persists the seeded state, and
// continues; the fallback is logged as degraded operation.
func (s *Snapshotter) SnapshotFor(ctx context.Context, symbol string, q types.Quote, now time.Time, load BarLoader) (types.IndicatorSnapshot, error) {
	state, err := s.loadState(ctx, symbol)
	if err != nil {
		state, err = s.reseed(ctx, symbol, load)
		if err != nil {
			return types.IndicatorSnapshot{}, err
		}
	}

	snapshot, _ := Advance(state, q, now, s.cfg)

	return snapshot, nil
}

// CommitBar rolls the cached state forward with a final daily bar and
// persists it. Called by the end-of-day job after the bar is collected.
func (s *Snapshotter) CommitBar(ctx context.Context, bar types.PriceBar, load BarLoader) error {
	state, err := s.loadState(ctx, bar.Symbol)
	if err != nil {
		state, err = s.reseed(ctx, bar.Symbol, load)
		if err != nil {
			return err
		}
	}

	// A bar at or before the last committed date has already been folded
	// in, either by an earlier commit or by the reseed history. Advancing
	// again would double-count it.
	if !state.UpdatedAt.Before(bar.Date) {
		return nil
	}

	q := types.Quote{
		Symbol: bar.Symbol,
		Price:  bar.Close,
		High:   bar.High,
		Low:    bar.Low,
		Volume: bar.Volume,
	}

	_, next := Advance(state, q, bar.Date, s.cfg)

	return s.saveState(ctx, bar.Symbol, next)
}

// LastCommitted returns the snapshot of the last committed daily bar, or
// an error with ErrCodeCacheMiss when no state is cached. Signals that
// compare today against yesterday use it.
func (s *Snapshotter) LastCommitted(ctx context.Context, symbol string) (types.IndicatorSnapshot, error) {
	state, err := s.loadState(ctx, symbol)
	if err != nil {
		return types.IndicatorSnapshot{}, err
	}

	return state.Snapshot(), nil
}

// Invalidate drops the cached state for symbol, forcing a batch reseed
// on the next snapshot request.
func (s *Snapshotter) Invalidate(ctx context.Context, symbol string) error {
	return s.store.Delete(ctx, StateKey(symbol))
}

func (s *Snapshotter) loadState(ctx context.Context, symbol string) (State, error) {
	raw, err := s.store.Get(ctx, StateKey(symbol))
	if err != nil {
		if !IsMiss(err) {
			s.logger.Warn("indicator state fetch failed, falling back to batch",
				zap.String("symbol", symbol), zap.Error(err))
		}

		return State{}, err
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn("corrupt indicator state, falling back to batch",
			zap.String("symbol", symbol), zap.Error(err))

		return State{}, errors.Wrapf(errors.ErrCodeCacheCorruptState, err, "corrupt state for %s", symbol)
	}

	return state, nil
}

func (s *Snapshotter) reseed(ctx context.Context, symbol string, load BarLoader) (State, error) {
	s.logger.Warn("reseeding indicator state from batch history", zap.String("symbol", symbol))

	bars, err := load(ctx)
	if err != nil {
		return State{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "loading bars for %s", symbol)
	}

	state, err := StateFromBars(bars, s.cfg)
	if err != nil {
		return State{}, err
	}

	if err := s.saveState(ctx, symbol, state); err != nil {
		// State persistence failing is degraded, not fatal: the snapshot
		// itself is still valid.
		s.logger.Warn("persisting seeded state failed", zap.String("symbol", symbol), zap.Error(err))
	}

	return state, nil
}

func (s *Snapshotter) saveState(ctx context.Context, symbol string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeCacheCorruptState, err, "marshaling state for %s", symbol)
	}

	return s.store.SetWithTTL(ctx, StateKey(symbol), raw, s.ttl)
}
