package types

type DecisionType string

const (
	DecisionBuy  DecisionType = "BUY"
	DecisionSell DecisionType = "SELL"
	DecisionHold DecisionType = "HOLD"
)

// Decision is the outcome of one strategy evaluation.
type Decision struct {
	Type   DecisionType `yaml:"type" json:"type"`
	Reason string       `yaml:"reason" json:"reason"`
	// SellAll distinguishes a full liquidation from a partial sell.
	// Only meaningful when Type is DecisionSell.
	SellAll bool `yaml:"sell_all" json:"sell_all"`
}

func Hold(reason string) Decision {
	return Decision{Type: DecisionHold, Reason: reason}
}

func Buy(reason string) Decision {
	return Decision{Type: DecisionBuy, Reason: reason}
}

func Sell(reason string, all bool) Decision {
	return Decision{Type: DecisionSell, Reason: reason, SellAll: all}
}
