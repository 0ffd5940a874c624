package orders

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/schema"
)

// notFoundLimit is how many consecutive "order not found" poll results are
// tolerated before a pending order is declared failed. The exchange needs a
// moment before a freshly accepted order becomes visible to status queries.
const notFoundLimit = 3

// Tracker owns all in-flight orders. A single mutex serializes every
// mutation, so updates from the user stream and from REST polling may race
// freely at the call site.
type Tracker struct {
	mu            sync.Mutex
	orders        map[string]*InFlightOrder
	byExchangeID  map[string]string
	notFoundPolls map[string]int
	sink          Sink
}

// NewTracker returns an empty tracker publishing lifecycle events to sink.
// A nil sink discards events.
func NewTracker(sink Sink) *Tracker {
	if sink == nil {
		sink = noopSink{}
	}
	return &Tracker{
		orders:        make(map[string]*InFlightOrder),
		byExchangeID:  make(map[string]string),
		notFoundPolls: make(map[string]int),
		sink:          sink,
	}
}

// StartTracking registers a freshly submitted order and emits the creation
// event. A duplicate client order id is an error.
func (t *Tracker) StartTracking(order *InFlightOrder) error {
	t.mu.Lock()
	if _, exists := t.orders[order.ClientOrderID]; exists {
		t.mu.Unlock()
		return errs.New("orders/track", errs.CodeInvalid,
			errs.WithMessage("client order id already tracked: "+order.ClientOrderID))
	}
	t.orders[order.ClientOrderID] = order
	if order.ExchangeOrderID != "" {
		t.byExchangeID[order.ExchangeOrderID] = order.ClientOrderID
	}
	event := t.eventLocked(order, EventOrderCreated, nil)
	t.mu.Unlock()

	t.sink.Publish(event)
	return nil
}

// StopTracking forgets an order without emitting anything.
func (t *Tracker) StopTracking(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if order, ok := t.orders[clientOrderID]; ok {
		delete(t.byExchangeID, order.ExchangeOrderID)
		delete(t.orders, clientOrderID)
		delete(t.notFoundPolls, clientOrderID)
	}
}

// Get returns a copy of the tracked order.
func (t *Tracker) Get(clientOrderID string) (*InFlightOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	order, ok := t.orders[clientOrderID]
	if !ok {
		return nil, false
	}
	return order.clone(), true
}

// Active returns copies of all orders not yet in a terminal state.
func (t *Tracker) Active() []*InFlightOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*InFlightOrder, 0, len(t.orders))
	for _, order := range t.orders {
		if !order.State.Terminal() {
			out = append(out, order.clone())
		}
	}
	return out
}

// SetExchangeOrderID records the exchange-assigned id after order creation
// and moves a pending order to open.
func (t *Tracker) SetExchangeOrderID(clientOrderID, exchangeOrderID string, now time.Time) {
	t.mu.Lock()
	order, ok := t.orders[clientOrderID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if exchangeOrderID != "" {
		order.ExchangeOrderID = exchangeOrderID
		t.byExchangeID[exchangeOrderID] = clientOrderID
	}
	if order.State == StatePendingCreate {
		order.State = StateOpen
		order.UpdatedAt = now
	}
	t.mu.Unlock()
}

// ApplyUpdate folds one canonical order update into the tracked order.
// Unknown orders are ignored; fills are deduplicated by fill id; terminal
// states are sticky. Each resulting lifecycle event is published exactly once.
func (t *Tracker) ApplyUpdate(update schema.OrderUpdatePayload) {
	t.mu.Lock()
	order := t.resolveLocked(update.ClientOrderID, update.ExchangeOrderID)
	if order == nil {
		t.mu.Unlock()
		observability.Log().Debug("order update for untracked order",
			observability.F("client_order_id", update.ClientOrderID))
		return
	}
	if order.State.Terminal() {
		t.mu.Unlock()
		return
	}

	now := update.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	delete(t.notFoundPolls, order.ClientOrderID)
	if update.ExchangeOrderID != "" && order.ExchangeOrderID == "" {
		order.ExchangeOrderID = update.ExchangeOrderID
		t.byExchangeID[update.ExchangeOrderID] = order.ClientOrderID
	}

	var events []Event
	for _, fill := range update.Fills {
		fill := fill
		if _, applied := order.recordFill(fill); applied {
			order.UpdatedAt = now
			events = append(events, t.eventLocked(order, EventOrderFilled, &fill))
		}
	}

	if next, ok := StateFromWire(update.Status); ok {
		events = append(events, t.transitionLocked(order, next, now)...)
	}
	// Fills alone can complete an order even when the status lags behind.
	if order.FullyFilled() && !order.State.Terminal() {
		events = append(events, t.transitionLocked(order, StateFilled, now)...)
	}
	t.mu.Unlock()

	for _, event := range events {
		t.sink.Publish(event)
	}
}

// MarkCancelled moves an order to cancelled, emitting the cancellation event
// once. Cancelling an unknown or already terminal order is a no-op.
func (t *Tracker) MarkCancelled(clientOrderID string, now time.Time) {
	t.applyTerminal(clientOrderID, StateCancelled, now)
}

// MarkFailed moves an order to failed.
func (t *Tracker) MarkFailed(clientOrderID string, now time.Time) {
	t.applyTerminal(clientOrderID, StateFailed, now)
}

func (t *Tracker) applyTerminal(clientOrderID string, state State, now time.Time) {
	t.mu.Lock()
	order, ok := t.orders[clientOrderID]
	if !ok || order.State.Terminal() {
		t.mu.Unlock()
		return
	}
	events := t.transitionLocked(order, state, now)
	t.mu.Unlock()
	for _, event := range events {
		t.sink.Publish(event)
	}
}

// RecordOrderNotFound counts a consecutive not-found poll result and marks
// the order failed once the tolerance is exhausted. Returns true when the
// order was failed by this call.
func (t *Tracker) RecordOrderNotFound(clientOrderID string, now time.Time) bool {
	t.mu.Lock()
	order, ok := t.orders[clientOrderID]
	if !ok || order.State.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.notFoundPolls[clientOrderID]++
	if t.notFoundPolls[clientOrderID] < notFoundLimit {
		t.mu.Unlock()
		return false
	}
	events := t.transitionLocked(order, StateFailed, now)
	t.mu.Unlock()

	observability.Log().Warn("order failed after repeated not-found polls",
		observability.F("client_order_id", clientOrderID))
	for _, event := range events {
		t.sink.Publish(event)
	}
	return true
}

// TrackingStates serializes every non-terminal order for warm restart.
func (t *Tracker) TrackingStates() (map[string]json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]json.RawMessage, len(t.orders))
	for id, order := range t.orders {
		if order.State.Terminal() {
			continue
		}
		data, err := json.Marshal(order)
		if err != nil {
			return nil, errs.New("orders/serialize", errs.CodeInvalid, errs.WithCause(err))
		}
		out[id] = data
	}
	return out, nil
}

// RestoreTrackingStates rebuilds tracked orders from persisted state without
// emitting creation events.
func (t *Tracker) RestoreTrackingStates(states map[string]json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, data := range states {
		order := new(InFlightOrder)
		if err := json.Unmarshal(data, order); err != nil {
			return errs.New("orders/restore", errs.CodeInvalid, errs.WithCause(err),
				errs.WithMessage("corrupt tracking state for "+id))
		}
		t.orders[order.ClientOrderID] = order
		if order.ExchangeOrderID != "" {
			t.byExchangeID[order.ExchangeOrderID] = order.ClientOrderID
		}
	}
	return nil
}

func (t *Tracker) resolveLocked(clientOrderID, exchangeOrderID string) *InFlightOrder {
	if clientOrderID != "" {
		if order, ok := t.orders[clientOrderID]; ok {
			return order
		}
	}
	if exchangeOrderID != "" {
		if id, ok := t.byExchangeID[exchangeOrderID]; ok {
			return t.orders[id]
		}
	}
	return nil
}

func (t *Tracker) transitionLocked(order *InFlightOrder, next State, now time.Time) []Event {
	if !canTransition(order.State, next) {
		return nil
	}
	order.State = next
	order.UpdatedAt = now

	switch next {
	case StateFilled:
		return []Event{t.eventLocked(order, EventOrderCompleted, nil)}
	case StateCancelled:
		return []Event{t.eventLocked(order, EventOrderCancelled, nil)}
	case StateFailed:
		return []Event{t.eventLocked(order, EventOrderFailed, nil)}
	}
	return nil
}

func (t *Tracker) eventLocked(order *InFlightOrder, eventType EventType, fill *schema.Fill) Event {
	return Event{
		Type:            eventType,
		ClientOrderID:   order.ClientOrderID,
		ExchangeOrderID: order.ExchangeOrderID,
		Pair:            order.Pair,
		Side:            order.Side,
		State:           order.State,
		ExecutedAmount:  order.ExecutedAmount,
		Fill:            fill,
		Timestamp:       order.UpdatedAt,
	}
}
