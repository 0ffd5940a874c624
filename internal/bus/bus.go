// Package bus fans lifecycle events out to registered subscribers.
package bus

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/orders"
)

// Handler consumes one lifecycle event. Handlers run concurrently with each
// other and must not retain the event past the call.
type Handler func(orders.Event)

type subscriber struct {
	id      string
	deliver Handler
}

// Bus is an in-process publish/subscribe hub for order lifecycle events.
// Publishing never blocks on a slow subscriber longer than the fan-out pool
// allows, and a panicking subscriber does not take down the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	maxWorkers  int

	published uint64
	panicked  uint64
}

// New returns a bus with the given fan-out concurrency. Zero or negative
// maxWorkers means one goroutine per available CPU.
func New(maxWorkers int) *Bus {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &Bus{maxWorkers: maxWorkers}
}

// Subscribe registers a handler under id, replacing any previous handler with
// the same id.
func (b *Bus) Subscribe(id string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers[i].deliver = handler
			return
		}
	}
	b.subscribers = append(b.subscribers, subscriber{id: id, deliver: handler})
}

// Unsubscribe removes the handler registered under id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every subscriber and waits for delivery to
// finish. Implements the tracker's event sink.
func (b *Bus) Publish(event orders.Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	b.mu.Lock()
	b.published++
	b.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	if len(subs) == 1 {
		b.deliver(subs[0], event)
		return
	}

	workers := b.maxWorkers
	if workers > len(subs) {
		workers = len(subs)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, sub := range subs {
		sub := sub
		p.Go(func() {
			b.deliver(sub, event)
		})
	}
	p.Wait()
}

func (b *Bus) deliver(sub subscriber, event orders.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.panicked++
			b.mu.Unlock()
			observability.Log().Error("event subscriber panicked",
				observability.F("subscriber", sub.id),
				observability.F("event", string(event.Type)),
				observability.F("panic", fmt.Sprint(r)))
		}
	}()
	sub.deliver(event)
}

// Stats reports published event and subscriber panic counts.
func (b *Bus) Stats() (published, panicked uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published, b.panicked
}
