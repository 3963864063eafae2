package trading

import (
	"context"
	"math"
	"time"

	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the delay between execution polls.
	DefaultPollInterval = 2 * time.Second
	// DefaultPollTimeout bounds how long an order is polled before the
	// fill is assumed at the quoted price.
	DefaultPollTimeout = 30 * time.Second
)

// Coordinator drives one order end to end: sizing, submission, and
// execution confirmation.
type Coordinator struct {
	gateway      OrderGateway
	logger       *logger.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewCoordinator creates a Coordinator with default polling bounds.
func NewCoordinator(gateway OrderGateway, log *logger.Logger) *Coordinator {
	return &Coordinator{
		gateway:      gateway,
		logger:       log.Named("coordinator"),
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
}

// ExecuteBuy sizes one tranche from the position's allocated amount and
// submits a market buy. The tranche quantity is floor(allocated/price);
// an allocation too small for a single share is an error.
func (c *Coordinator) ExecuteBuy(ctx context.Context, p *types.Position, q types.Quote) (Fill, error) {
	quantity := math.Floor(p.Allocated / q.Price)
	if quantity < 1 {
		return Fill{}, errors.Newf(errors.ErrCodeInsufficientQuantity,
			"allocation %.0f buys no shares of %s at %.0f", p.Allocated, p.Symbol, q.Price)
	}

	return c.execute(ctx, p, q, types.TradeSideBuy, quantity)
}

// ExecuteSell submits a market sell for the given quantity.
func (c *Coordinator) ExecuteSell(ctx context.Context, p *types.Position, q types.Quote, quantity float64) (Fill, error) {
	if quantity < 1 {
		return Fill{}, errors.Newf(errors.ErrCodeInsufficientQuantity,
			"sell quantity %.2f below one share for %s", quantity, p.Symbol)
	}

	return c.execute(ctx, p, q, types.TradeSideSell, quantity)
}

func (c *Coordinator) execute(ctx context.Context, p *types.Position, q types.Quote, side types.TradeSide, quantity float64) (Fill, error) {
	orderID, err := c.gateway.PlaceOrder(ctx, p.Account, p.Symbol, side, quantity)
	if err != nil {
		return Fill{}, errors.Wrapf(errors.ErrCodeOrderRejected, err,
			"%s order rejected for %s", side, p.Symbol)
	}

	c.logger.Info("order submitted",
		zap.String("symbol", p.Symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.String("order_id", orderID))

	fill, err := c.awaitFill(ctx, orderID)
	if err == nil {
		return fill, nil
	}

	if !errors.HasCode(err, errors.ErrCodeConfirmationTimeout) {
		return Fill{}, err
	}

	// Confirmation timed out: assume the fill at the quoted price so the
	// cycle can continue, and flag the degradation.
	c.logger.Warn("execution confirmation timed out, assuming fill at quote",
		zap.String("symbol", p.Symbol),
		zap.String("order_id", orderID),
		zap.Float64("price", q.Price))

	return Fill{OrderID: orderID, Price: q.Price, Quantity: quantity, Assumed: true}, nil
}

func (c *Coordinator) awaitFill(ctx context.Context, orderID string) (Fill, error) {
	deadline := time.NewTimer(c.pollTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		fill, done, err := c.gateway.PollExecution(ctx, orderID)
		if err != nil {
			return Fill{}, errors.Wrapf(errors.ErrCodeExternalService, err,
				"polling execution of %s", orderID)
		}

		if done {
			return fill, nil
		}

		select {
		case <-ctx.Done():
			return Fill{}, errors.Wrapf(errors.ErrCodeConfirmationTimeout, ctx.Err(),
				"context done while awaiting %s", orderID)
		case <-deadline.C:
			return Fill{}, errors.Newf(errors.ErrCodeConfirmationTimeout,
				"no execution confirmation for %s within %s", orderID, c.pollTimeout)
		case <-ticker.C:
		}
	}
}
