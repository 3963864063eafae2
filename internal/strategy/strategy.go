// Package strategy contains the signal logic that turns an indicator
// snapshot plus a live quote into a buy/sell/hold decision. Strategies
// are pure over their inputs so the backtest engine and the live
// orchestrator share them verbatim; only the entry debouncer (a live
// concern) is injected.
package strategy

import (
	"context"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/moznion/go-optional"
)

// EvalContext carries everything one evaluation may look at.
type EvalContext struct {
	Snapshot types.IndicatorSnapshot
	// PrevSnapshot is yesterday's completed snapshot, when available.
	// Signals that need two consecutive days of confirmation use it.
	PrevSnapshot optional.Option[types.IndicatorSnapshot]
	Quote        types.Quote
	Position     *types.Position
	Now          time.Time
	// EOD marks the end-of-day evaluation pass, where the defense-line
	// signals are scored in addition to the intraday stop.
	EOD bool
}

// Strategy is the decision surface evaluated per position per tick.
type Strategy interface {
	Name() string
	// CheckEntry decides whether to open the first tranche.
	CheckEntry(ctx context.Context, ec EvalContext) (types.Decision, error)
	// CheckSecondBuy decides whether to add the second tranche.
	CheckSecondBuy(ctx context.Context, ec EvalContext) (types.Decision, error)
	// CheckExit decides whether to sell. The immediate stop is evaluated
	// first and short-circuits; end-of-day signals only on an EOD pass.
	CheckExit(ctx context.Context, ec EvalContext) (types.Decision, error)
}
