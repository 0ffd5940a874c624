package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/numeric"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/orders"
	"github.com/coachpo/zebpay/internal/rest"
	"github.com/coachpo/zebpay/internal/schema"
)

const cancelAllConcurrency = 4

// OrderRequest describes a limit order to place.
type OrderRequest struct {
	Pair   string
	Side   schema.TradeSide
	Type   schema.OrderType
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// PlaceOrder quantizes, tracks and submits a limit order, returning the
// client order id. The order is tracked optimistically before submission so
// an early stream update can never race past an untracked order; a rejected
// submission fails the order and returns the error.
func (e *Exchange) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	const op = "exchange/place-order"
	if err := schema.ValidateInstrument(req.Pair); err != nil {
		return "", err
	}
	rule, ok := e.TradingRule(req.Pair)
	if !ok {
		return "", errs.New(op, errs.CodeInvalid,
			errs.WithMessage("no trading rule for pair "+req.Pair),
			errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
	}
	if req.Type == "" {
		req.Type = schema.OrderTypeLimit
	}

	price := numeric.Quantize(req.Price, rule.TickSize)
	amount := req.Amount
	if price.Sign() <= 0 || amount.Sign() <= 0 {
		return "", errs.New(op, errs.CodeInvalid,
			errs.WithMessage("price and amount must be positive after quantization"))
	}
	if rule.MinOrderSize.Sign() > 0 && amount.LessThan(rule.MinOrderSize) {
		return "", errs.New(op, errs.CodeInvalid,
			errs.WithMessage("amount below minimum order size"))
	}
	if rule.MaxOrderSize.Sign() > 0 && amount.GreaterThan(rule.MaxOrderSize) {
		return "", errs.New(op, errs.CodeInvalid,
			errs.WithMessage("amount above maximum order size"))
	}

	clientOrderID := "zeb-" + uuid.NewString()
	now := time.Now().UTC()
	order := orders.NewInFlightOrder(clientOrderID, req.Pair, req.Side, req.Type, price, amount, now)
	if err := e.tracker.StartTracking(order); err != nil {
		return "", err
	}

	exchangeOrderID, err := e.client.CreateOrder(ctx, rest.CreateOrderRequest{
		Pair:          req.Pair,
		Side:          req.Side,
		Type:          req.Type,
		Price:         price,
		Amount:        amount,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		e.tracker.MarkFailed(clientOrderID, time.Now().UTC())
		return "", err
	}
	e.tracker.SetExchangeOrderID(clientOrderID, exchangeOrderID, time.Now().UTC())
	e.persistOrder(ctx, clientOrderID)
	observability.Log().Info("order placed",
		observability.F("client_order_id", clientOrderID),
		observability.F("exchange_order_id", exchangeOrderID),
		observability.F("pair", req.Pair))
	return clientOrderID, nil
}

// CancelOrder cancels a tracked order. Unknown or already terminal orders
// are a logical success; an exchange "order not found" on a known order means
// the order is already gone and is treated as a successful cancellation.
func (e *Exchange) CancelOrder(ctx context.Context, clientOrderID string) error {
	order, ok := e.tracker.Get(clientOrderID)
	if !ok || order.State.Terminal() {
		observability.Log().Debug("cancel requested for inactive order",
			observability.F("client_order_id", clientOrderID))
		return nil
	}
	if order.ExchangeOrderID == "" {
		// Never acknowledged by the exchange; nothing to cancel remotely.
		e.tracker.MarkCancelled(clientOrderID, time.Now().UTC())
		return nil
	}

	err := e.client.CancelOrder(ctx, order.ExchangeOrderID)
	if err != nil && !errs.IsOrderNotFound(err) {
		return err
	}
	if errs.IsOrderNotFound(err) {
		observability.Log().Info("cancel target already gone",
			observability.F("client_order_id", clientOrderID))
	}
	e.tracker.MarkCancelled(clientOrderID, time.Now().UTC())
	return nil
}

// CancelAll cancels every active order in parallel and returns the client
// order ids that could not be cancelled before the deadline.
func (e *Exchange) CancelAll(ctx context.Context, timeout time.Duration) []string {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	active := e.tracker.Active()
	if len(active) == 0 {
		return nil
	}

	failed := make(chan string, len(active))
	p := pool.New().WithMaxGoroutines(cancelAllConcurrency)
	for _, order := range active {
		order := order
		p.Go(func() {
			if err := e.CancelOrder(ctx, order.ClientOrderID); err != nil {
				observability.Log().Warn("cancel failed",
					observability.F("client_order_id", order.ClientOrderID),
					observability.F("error", err.Error()))
				failed <- order.ClientOrderID
			}
		})
	}
	p.Wait()
	close(failed)

	var out []string
	for id := range failed {
		out = append(out, id)
	}
	return out
}

// Order returns a copy of a tracked order.
func (e *Exchange) Order(clientOrderID string) (*orders.InFlightOrder, bool) {
	return e.tracker.Get(clientOrderID)
}

// ActiveOrders returns copies of all non-terminal orders.
func (e *Exchange) ActiveOrders() []*orders.InFlightOrder {
	return e.tracker.Active()
}
