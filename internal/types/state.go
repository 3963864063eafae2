package types

import "fmt"

// SignalState is the lifecycle state of a swing position. The numeric
// values are persisted, so they must not be reordered.
type SignalState int

const (
	// StateWaiting means no exposure; the symbol is being watched for entry.
	StateWaiting SignalState = 0
	// StateFirstBuy means the first tranche has been bought.
	StateFirstBuy SignalState = 1
	// StateSecondBuy means the second tranche has been bought; no further buys.
	StateSecondBuy SignalState = 2
	// StateStopped means an intraday stop-out liquidated the position;
	// the next cycle recycles it back to StateWaiting.
	StateStopped SignalState = 3
	// StateFirstSellPending means a partial sell executed and the remainder
	// is held awaiting either re-entry or full liquidation.
	StateFirstSellPending SignalState = 4
	// StateSecondSellPending means full liquidation executed at end of day;
	// the next cycle finalizes back to StateWaiting.
	StateSecondSellPending SignalState = 5
)

func (s SignalState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateFirstBuy:
		return "FIRST_BUY"
	case StateSecondBuy:
		return "SECOND_BUY"
	case StateStopped:
		return "STOPPED"
	case StateFirstSellPending:
		return "FIRST_SELL_PENDING"
	case StateSecondSellPending:
		return "SECOND_SELL_PENDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Holding reports whether the state implies shares are currently held.
func (s SignalState) Holding() bool {
	return s == StateFirstBuy || s == StateSecondBuy || s == StateFirstSellPending
}
