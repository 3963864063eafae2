package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

const (
	TradeReasonEntry         string = "entry"
	TradeReasonSecondBuy     string = "second_buy"
	TradeReasonImmediateStop string = "immediate_stop"
	TradeReasonPartialSell   string = "eod_partial_sell"
	TradeReasonFullSell      string = "eod_full_sell"
	TradeReasonForcedExit    string = "forced_exit"
)

// TradeRecord is one executed fill in the append-only trade ledger.
type TradeRecord struct {
	ID         string    `yaml:"id" json:"id" csv:"id" validate:"required"`
	PositionID string    `yaml:"position_id" json:"position_id" csv:"position_id" validate:"required"`
	Symbol     string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side       TradeSide `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Price      float64   `yaml:"price" json:"price" csv:"price" validate:"required,gt=0"`
	Quantity   float64   `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	Fee        float64   `yaml:"fee" json:"fee" csv:"fee" validate:"gte=0"`
	Reason     string    `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	ExecutedAt time.Time `yaml:"executed_at" json:"executed_at" csv:"executed_at" validate:"required"`
}

// Validate validates the TradeRecord struct.
func (t *TradeRecord) Validate() error {
	validate := validator.New()
	if err := validate.Struct(t); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid trade record", err)
	}

	return nil
}
