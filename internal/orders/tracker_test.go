package orders_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/zebpay/internal/orders"
	"github.com/coachpo/zebpay/internal/schema"
)

type captureSink struct {
	mu     sync.Mutex
	events []orders.Event
}

func (c *captureSink) Publish(event orders.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) byType(eventType orders.EventType) []orders.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []orders.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrder(id string) *orders.InFlightOrder {
	return orders.NewInFlightOrder(id, "BTC-INR", schema.TradeSideBuy, schema.OrderTypeLimit,
		decimal.RequireFromString("100"), decimal.RequireFromString("1"), now)
}

func TestStartTrackingEmitsCreation(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)

	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	require.Error(t, tracker.StartTracking(newOrder("cid-1")))

	created := sink.byType(orders.EventOrderCreated)
	require.Len(t, created, 1)
	require.Equal(t, "cid-1", created[0].ClientOrderID)
	require.Equal(t, orders.StatePendingCreate, created[0].State)
}

func TestDuplicateFillsCountedOnce(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	tracker.SetExchangeOrderID("cid-1", "ex-1", now)

	half := schema.Fill{FillID: "f1", Price: "100", Quantity: "0.5", Fee: "0.1", FeeAsset: "INR"}
	tracker.ApplyUpdate(schema.OrderUpdatePayload{
		ClientOrderID: "cid-1",
		Status:        "PartiallyFilled",
		Fills:         []schema.Fill{half},
		Timestamp:     now,
	})
	// Same fill replayed plus the completing fill.
	tracker.ApplyUpdate(schema.OrderUpdatePayload{
		ClientOrderID: "cid-1",
		Status:        "Filled",
		Fills: []schema.Fill{
			half,
			{FillID: "f2", Price: "100", Quantity: "0.5", Fee: "0.1", FeeAsset: "INR"},
		},
		Timestamp: now.Add(time.Second),
	})

	fills := sink.byType(orders.EventOrderFilled)
	require.Len(t, fills, 2)
	completed := sink.byType(orders.EventOrderCompleted)
	require.Len(t, completed, 1)

	order, ok := tracker.Get("cid-1")
	require.True(t, ok)
	require.Equal(t, orders.StateFilled, order.State)
	require.Equal(t, "1", order.ExecutedAmount.String())
	require.Equal(t, "0.2", order.FeePaid.String())
	require.Equal(t, []string{"f1", "f2"}, order.FillIDs())
}

func TestFillsCompleteOrderWithoutStatus(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	tracker.SetExchangeOrderID("cid-1", "ex-1", now)

	tracker.ApplyUpdate(schema.OrderUpdatePayload{
		ClientOrderID: "cid-1",
		Fills:         []schema.Fill{{FillID: "f1", Price: "100", Quantity: "1"}},
		Timestamp:     now,
	})

	require.Len(t, sink.byType(orders.EventOrderCompleted), 1)
	order, _ := tracker.Get("cid-1")
	require.Equal(t, orders.StateFilled, order.State)
}

func TestTerminalStateIsSticky(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	tracker.MarkCancelled("cid-1", now)
	tracker.MarkCancelled("cid-1", now)

	tracker.ApplyUpdate(schema.OrderUpdatePayload{
		ClientOrderID: "cid-1",
		Status:        "Open",
		Timestamp:     now,
	})

	require.Len(t, sink.byType(orders.EventOrderCancelled), 1)
	order, _ := tracker.Get("cid-1")
	require.Equal(t, orders.StateCancelled, order.State)
}

func TestUpdateResolvedByExchangeOrderID(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	tracker.SetExchangeOrderID("cid-1", "ex-1", now)

	tracker.ApplyUpdate(schema.OrderUpdatePayload{
		ExchangeOrderID: "ex-1",
		Status:          "Cancelled",
		Timestamp:       now,
	})

	order, _ := tracker.Get("cid-1")
	require.Equal(t, orders.StateCancelled, order.State)
}

func TestUnknownOrderUpdateIgnored(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)
	tracker.ApplyUpdate(schema.OrderUpdatePayload{ClientOrderID: "ghost", Status: "Filled", Timestamp: now})
	require.Empty(t, sink.events)
}

func TestNotFoundPollTolerance(t *testing.T) {
	sink := &captureSink{}
	tracker := orders.NewTracker(sink)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))

	require.False(t, tracker.RecordOrderNotFound("cid-1", now))
	require.False(t, tracker.RecordOrderNotFound("cid-1", now))
	require.True(t, tracker.RecordOrderNotFound("cid-1", now))

	require.Len(t, sink.byType(orders.EventOrderFailed), 1)
	order, _ := tracker.Get("cid-1")
	require.Equal(t, orders.StateFailed, order.State)

	// Already failed; further reports are no-ops.
	require.False(t, tracker.RecordOrderNotFound("cid-1", now))
}

func TestNotFoundCounterResetsOnUpdate(t *testing.T) {
	tracker := orders.NewTracker(nil)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	tracker.SetExchangeOrderID("cid-1", "ex-1", now)

	require.False(t, tracker.RecordOrderNotFound("cid-1", now))
	require.False(t, tracker.RecordOrderNotFound("cid-1", now))
	tracker.ApplyUpdate(schema.OrderUpdatePayload{ClientOrderID: "cid-1", Status: "Open", Timestamp: now})
	require.False(t, tracker.RecordOrderNotFound("cid-1", now))
	require.False(t, tracker.RecordOrderNotFound("cid-1", now))

	order, _ := tracker.Get("cid-1")
	require.Equal(t, orders.StateOpen, order.State)
}

func TestTrackingStatesRoundTrip(t *testing.T) {
	tracker := orders.NewTracker(nil)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	tracker.SetExchangeOrderID("cid-1", "ex-1", now)
	tracker.ApplyUpdate(schema.OrderUpdatePayload{
		ClientOrderID: "cid-1",
		Status:        "PartiallyFilled",
		Fills:         []schema.Fill{{FillID: "f1", Price: "100", Quantity: "0.25", Fee: "0.05"}},
		Timestamp:     now,
	})

	states, err := tracker.TrackingStates()
	require.NoError(t, err)
	require.Len(t, states, 1)

	restored := orders.NewTracker(nil)
	require.NoError(t, restored.RestoreTrackingStates(states))

	order, ok := restored.Get("cid-1")
	require.True(t, ok)
	require.Equal(t, "ex-1", order.ExchangeOrderID)
	require.Equal(t, orders.StatePartiallyFilled, order.State)
	require.Equal(t, "0.25", order.ExecutedAmount.String())
	require.Equal(t, []string{"f1"}, order.FillIDs())

	// The restored fill set still deduplicates.
	restored.ApplyUpdate(schema.OrderUpdatePayload{
		ClientOrderID: "cid-1",
		Fills:         []schema.Fill{{FillID: "f1", Price: "100", Quantity: "0.25"}},
		Timestamp:     now,
	})
	order, _ = restored.Get("cid-1")
	require.Equal(t, "0.25", order.ExecutedAmount.String())
}

func TestTrackingStatesSkipTerminalOrders(t *testing.T) {
	tracker := orders.NewTracker(nil)
	require.NoError(t, tracker.StartTracking(newOrder("cid-1")))
	require.NoError(t, tracker.StartTracking(newOrder("cid-2")))
	tracker.MarkCancelled("cid-2", now)

	states, err := tracker.TrackingStates()
	require.NoError(t, err)
	require.Len(t, states, 1)
	_, ok := states["cid-1"]
	require.True(t, ok)
}

func TestStateFromWireVariants(t *testing.T) {
	cases := map[string]orders.State{
		"NEW":              orders.StateOpen,
		"partially_filled": orders.StatePartiallyFilled,
		"PartiallyFilled":  orders.StatePartiallyFilled,
		"FILLED":           orders.StateFilled,
		"canceled":         orders.StateCancelled,
		"Rejected":         orders.StateFailed,
	}
	for raw, want := range cases {
		got, ok := orders.StateFromWire(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := orders.StateFromWire("sideways")
	require.False(t, ok)
}
