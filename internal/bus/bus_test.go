package bus_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/zebpay/internal/bus"
	"github.com/coachpo/zebpay/internal/orders"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := bus.New(4)

	var mu sync.Mutex
	got := map[string]int{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		b.Subscribe(id, func(orders.Event) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		})
	}

	b.Publish(orders.Event{Type: orders.EventOrderCreated, ClientOrderID: "cid-1"})

	require.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, got)
	published, panicked := b.Stats()
	require.Equal(t, uint64(1), published)
	require.Zero(t, panicked)
}

func TestSubscriberPanicIsContained(t *testing.T) {
	b := bus.New(2)
	b.Subscribe("bad", func(orders.Event) { panic("boom") })

	delivered := false
	b.Subscribe("good", func(orders.Event) { delivered = true })

	require.NotPanics(t, func() {
		b.Publish(orders.Event{Type: orders.EventOrderCompleted})
	})
	require.True(t, delivered)
	_, panicked := b.Stats()
	require.Equal(t, uint64(1), panicked)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := bus.New(1)
	count := 0
	b.Subscribe("a", func(orders.Event) { count++ })
	b.Publish(orders.Event{})
	b.Unsubscribe("a")
	b.Publish(orders.Event{})
	require.Equal(t, 1, count)
}

func TestSubscribeReplacesHandlerWithSameID(t *testing.T) {
	b := bus.New(1)
	first, second := 0, 0
	b.Subscribe("a", func(orders.Event) { first++ })
	b.Subscribe("a", func(orders.Event) { second++ })
	b.Publish(orders.Event{})
	require.Zero(t, first)
	require.Equal(t, 1, second)
}
