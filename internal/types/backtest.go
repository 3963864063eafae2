package types

import "time"

// BacktestTrade is one fill produced by a backtest run, with the realized
// profit and loss attributed to it.
type BacktestTrade struct {
	Date     time.Time `yaml:"date" json:"date" csv:"date"`
	Side     TradeSide `yaml:"side" json:"side" csv:"side"`
	Price    float64   `yaml:"price" json:"price" csv:"price"`
	Quantity float64   `yaml:"quantity" json:"quantity" csv:"quantity"`
	Fee      float64   `yaml:"fee" json:"fee" csv:"fee"`
	// PnL is the realized profit for sell fills, net of fees and taxes.
	// Zero for buy fills.
	PnL    float64 `yaml:"pnl" json:"pnl" csv:"pnl"`
	Reason string  `yaml:"reason" json:"reason" csv:"reason"`
}

// BacktestResult summarizes a completed backtest run.
type BacktestResult struct {
	Symbol         string          `yaml:"symbol" json:"symbol"`
	StartDate      time.Time       `yaml:"start_date" json:"start_date"`
	EndDate        time.Time       `yaml:"end_date" json:"end_date"`
	InitialCapital float64         `yaml:"initial_capital" json:"initial_capital"`
	FinalCapital   float64         `yaml:"final_capital" json:"final_capital"`
	TotalReturnPct float64         `yaml:"total_return_pct" json:"total_return_pct"`
	Trades         []BacktestTrade `yaml:"trades" json:"trades"`
}
