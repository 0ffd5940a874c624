package exchange

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/normalizer"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/orders"
)

const pollConcurrency = 4

// orderPollLoop reconciles tracked orders against REST order status. The
// user stream is the primary update source; polling runs on the short
// cadence while the stream is silent and backs off to the long cadence while
// stream data is flowing.
func (e *Exchange) orderPollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Poll.ShortInterval)
	defer ticker.Stop()

	lastPoll := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		interval := e.cfg.Poll.ShortInterval
		if e.userStreamFresh() {
			interval = e.cfg.Poll.LongInterval
		}
		if time.Since(lastPoll) < interval {
			continue
		}
		lastPoll = time.Now()
		e.pollOrders(ctx)
	}
}

// pollOrders queries status for every active order old enough to be visible
// to the status endpoint.
func (e *Exchange) pollOrders(ctx context.Context) {
	now := time.Now().UTC()
	var due []*orders.InFlightOrder
	for _, order := range e.tracker.Active() {
		if now.Sub(order.CreatedAt) < e.cfg.Poll.OrderStatusInterval {
			continue
		}
		due = append(due, order)
	}
	if len(due) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(pollConcurrency)
	for _, order := range due {
		order := order
		p.Go(func() {
			e.pollOrder(ctx, order)
		})
	}
	p.Wait()
}

func (e *Exchange) pollOrder(ctx context.Context, order *orders.InFlightOrder) {
	if order.ExchangeOrderID == "" {
		// Submission never returned an id; count it toward the not-found
		// tolerance so the order eventually fails instead of lingering.
		e.tracker.RecordOrderNotFound(order.ClientOrderID, time.Now().UTC())
		return
	}
	data, err := e.client.GetOrder(ctx, order.ExchangeOrderID)
	if err != nil {
		if errs.IsOrderNotFound(err) {
			e.tracker.RecordOrderNotFound(order.ClientOrderID, time.Now().UTC())
			return
		}
		observability.Log().Warn("order status poll failed",
			observability.F("client_order_id", order.ClientOrderID),
			observability.F("error", err.Error()))
		return
	}
	update, err := normalizer.ParseOrder(data, time.Now().UTC())
	if err != nil {
		observability.Log().Warn("order status parse failed",
			observability.F("client_order_id", order.ClientOrderID),
			observability.F("error", err.Error()))
		return
	}
	if update.ClientOrderID == "" {
		update.ClientOrderID = order.ClientOrderID
	}
	if update.ExchangeOrderID == "" {
		update.ExchangeOrderID = order.ExchangeOrderID
	}
	e.tracker.ApplyUpdate(update)
}
