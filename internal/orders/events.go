package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/internal/schema"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderFilled    EventType = "order_fill"
	EventOrderCompleted EventType = "order_completed"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderFailed    EventType = "order_failed"
)

// Event is a single lifecycle notification. Each terminal event is emitted
// exactly once per order; fill events are emitted once per unique fill id.
type Event struct {
	Type            EventType
	ClientOrderID   string
	ExchangeOrderID string
	Pair            string
	Side            schema.TradeSide
	State           State
	ExecutedAmount  decimal.Decimal
	Fill            *schema.Fill
	Timestamp       time.Time
}

// Sink receives lifecycle events. Publish must not block the caller for long;
// the tracker invokes it while not holding its own lock.
type Sink interface {
	Publish(Event)
}

type noopSink struct{}

func (noopSink) Publish(Event) {}
