package strategy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/cache"
)

// DebounceTTL is how long a consecutive-confirmation count survives
// between evaluations. One intraday cycle is 5 minutes; 15 minutes
// tolerates a couple of missed cycles without carrying stale counts into
// the next session.
const DebounceTTL = 15 * time.Minute

// EntryDebouncer counts consecutive qualifying entry evaluations per
// symbol, so one noisy tick cannot trigger a buy on its own.
type EntryDebouncer struct {
	store    cache.Store
	required int
	ttl      time.Duration
}

// NewEntryDebouncer creates a debouncer requiring the given number of
// consecutive qualifying evaluations (minimum 1).
func NewEntryDebouncer(store cache.Store, required int) *EntryDebouncer {
	if required < 1 {
		required = 1
	}

	return &EntryDebouncer{store: store, required: required, ttl: DebounceTTL}
}

func debounceKey(symbol string) string {
	return fmt.Sprintf("swing:entry:consec:%s", symbol)
}

// Confirm records a qualifying evaluation and reports whether the
// required consecutive count has been reached. Reaching it clears the
// count so the next cycle starts fresh. Store failures count as a fresh
// first confirmation rather than blocking the evaluation.
func (d *EntryDebouncer) Confirm(ctx context.Context, symbol string) (bool, error) {
	count := 0

	raw, err := d.store.Get(ctx, debounceKey(symbol))
	if err == nil {
		if parsed, perr := strconv.Atoi(string(raw)); perr == nil {
			count = parsed
		}
	} else if !cache.IsMiss(err) {
		return false, err
	}

	count++

	if count >= d.required {
		if err := d.store.Delete(ctx, debounceKey(symbol)); err != nil {
			return true, err
		}

		return true, nil
	}

	err = d.store.SetWithTTL(ctx, debounceKey(symbol), []byte(strconv.Itoa(count)), d.ttl)

	return false, err
}

// Reset clears the consecutive count, called when an evaluation fails
// any entry condition.
func (d *EntryDebouncer) Reset(ctx context.Context, symbol string) error {
	return d.store.Delete(ctx, debounceKey(symbol))
}
