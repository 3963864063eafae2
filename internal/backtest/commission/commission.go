// Package commission models brokerage fees and transaction taxes per
// fill. The same models price live fills and backtest fills so the two
// ledgers stay comparable.
package commission

// Broker selects a fee model by name.
type Broker string

const (
	// BrokerKIS models Korea Investment & Securities cash-equity fees.
	BrokerKIS Broker = "kis"
	// BrokerZero is the frictionless model.
	BrokerZero Broker = "zero_commission"
)

// AllBrokers lists the broker names accepted in configuration.
var AllBrokers = []any{string(BrokerKIS), string(BrokerZero)}

// Model prices the costs of one fill. amount is price*quantity.
type Model interface {
	// BuyFee returns the total cost charged on a buy fill.
	BuyFee(amount float64) float64
	// SellFee returns the total cost charged on a sell fill, transaction
	// tax included.
	SellFee(amount float64) float64
}

// ForBroker returns the model for a broker name; unknown names get the
// zero model.
func ForBroker(broker Broker) Model {
	switch broker {
	case BrokerKIS:
		return NewKISModel()
	default:
		return NewZeroModel()
	}
}

const (
	// kisCommissionRate is charged on both sides: 0.147%.
	kisCommissionRate = 0.00147
	// kisSellTaxRate is the securities transaction tax on sells: 0.20%.
	kisSellTaxRate = 0.0020
)

// KISModel prices fills at Korea Investment & Securities cash-equity
// rates.
type KISModel struct{}

func NewKISModel() *KISModel {
	return &KISModel{}
}

func (m *KISModel) BuyFee(amount float64) float64 {
	if amount <= 0 {
		return 0
	}

	return amount * kisCommissionRate
}

func (m *KISModel) SellFee(amount float64) float64 {
	if amount <= 0 {
		return 0
	}

	return amount * (kisCommissionRate + kisSellTaxRate)
}

// ZeroModel charges nothing.
type ZeroModel struct{}

func NewZeroModel() *ZeroModel {
	return &ZeroModel{}
}

func (m *ZeroModel) BuyFee(float64) float64 { return 0 }

func (m *ZeroModel) SellFee(float64) float64 { return 0 }
