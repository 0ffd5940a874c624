package orders

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/internal/schema"
)

// InFlightOrder is the tracked state of one order. It is mutated only by the
// Tracker while holding the tracker mutex; callers receive copies.
type InFlightOrder struct {
	ClientOrderID   string
	ExchangeOrderID string
	Pair            string
	Side            schema.TradeSide
	Type            schema.OrderType
	Price           decimal.Decimal
	Amount          decimal.Decimal
	ExecutedAmount  decimal.Decimal
	FeePaid         decimal.Decimal
	State           State
	CreatedAt       time.Time
	UpdatedAt       time.Time

	fillIDs map[string]struct{}
}

// NewInFlightOrder returns a freshly submitted order in pending state.
func NewInFlightOrder(clientOrderID, pair string, side schema.TradeSide, orderType schema.OrderType, price, amount decimal.Decimal, now time.Time) *InFlightOrder {
	return &InFlightOrder{
		ClientOrderID: clientOrderID,
		Pair:          pair,
		Side:          side,
		Type:          orderType,
		Price:         price,
		Amount:        amount,
		State:         StatePendingCreate,
		CreatedAt:     now,
		UpdatedAt:     now,
		fillIDs:       make(map[string]struct{}),
	}
}

// RemainingAmount returns the unfilled base amount, never negative.
func (o *InFlightOrder) RemainingAmount() decimal.Decimal {
	remaining := o.Amount.Sub(o.ExecutedAmount)
	if remaining.Sign() < 0 {
		return decimal.Decimal{}
	}
	return remaining
}

// completionTolerance absorbs dust-level rounding between the exchange's
// reported fill quantities and the requested amount.
var completionTolerance = decimal.New(1, -9)

// FullyFilled reports whether executed quantity has reached the order amount
// within tolerance.
func (o *InFlightOrder) FullyFilled() bool {
	if o.Amount.Sign() <= 0 {
		return false
	}
	return o.Amount.Sub(o.ExecutedAmount).LessThanOrEqual(completionTolerance)
}

// recordFill registers a fill exactly once; a repeated fill id is a no-op.
func (o *InFlightOrder) recordFill(fill schema.Fill) (decimal.Decimal, bool) {
	if fill.FillID == "" {
		return decimal.Decimal{}, false
	}
	if o.fillIDs == nil {
		o.fillIDs = make(map[string]struct{})
	}
	if _, seen := o.fillIDs[fill.FillID]; seen {
		return decimal.Decimal{}, false
	}
	qty, err := decimal.NewFromString(fill.Quantity)
	if err != nil || qty.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	o.fillIDs[fill.FillID] = struct{}{}
	o.ExecutedAmount = o.ExecutedAmount.Add(qty)
	if fee, err := decimal.NewFromString(fill.Fee); err == nil && fee.Sign() > 0 {
		o.FeePaid = o.FeePaid.Add(fee)
	}
	return qty, true
}

// FillIDs returns the fill ids applied so far, sorted.
func (o *InFlightOrder) FillIDs() []string {
	out := make([]string, 0, len(o.fillIDs))
	for id := range o.fillIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type orderJSON struct {
	ClientOrderID   string   `json:"client_order_id"`
	ExchangeOrderID string   `json:"exchange_order_id,omitempty"`
	Pair            string   `json:"trading_pair"`
	Side            string   `json:"side"`
	Type            string   `json:"order_type"`
	Price           string   `json:"price"`
	Amount          string   `json:"amount"`
	ExecutedAmount  string   `json:"executed_amount"`
	FeePaid         string   `json:"fee_paid"`
	State           string   `json:"state"`
	FillIDs         []string `json:"fill_ids,omitempty"`
	CreatedAt       int64    `json:"created_at_ms"`
	UpdatedAt       int64    `json:"updated_at_ms"`
}

// MarshalJSON renders the order in its persisted layout. Decimal fields are
// strings and fill ids a sorted list, so the output is stable and safe to
// round-trip across restarts.
func (o *InFlightOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: o.ExchangeOrderID,
		Pair:            o.Pair,
		Side:            string(o.Side),
		Type:            string(o.Type),
		Price:           o.Price.String(),
		Amount:          o.Amount.String(),
		ExecutedAmount:  o.ExecutedAmount.String(),
		FeePaid:         o.FeePaid.String(),
		State:           string(o.State),
		FillIDs:         o.FillIDs(),
		CreatedAt:       o.CreatedAt.UnixMilli(),
		UpdatedAt:       o.UpdatedAt.UnixMilli(),
	})
}

// UnmarshalJSON restores an order from its persisted layout.
func (o *InFlightOrder) UnmarshalJSON(data []byte) error {
	var raw orderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return err
	}
	executed, err := decimal.NewFromString(raw.ExecutedAmount)
	if err != nil {
		return err
	}
	fee, err := decimal.NewFromString(raw.FeePaid)
	if err != nil {
		return err
	}
	o.ClientOrderID = raw.ClientOrderID
	o.ExchangeOrderID = raw.ExchangeOrderID
	o.Pair = raw.Pair
	o.Side = schema.TradeSide(raw.Side)
	o.Type = schema.OrderType(raw.Type)
	o.Price = price
	o.Amount = amount
	o.ExecutedAmount = executed
	o.FeePaid = fee
	o.State = State(raw.State)
	o.CreatedAt = time.UnixMilli(raw.CreatedAt).UTC()
	o.UpdatedAt = time.UnixMilli(raw.UpdatedAt).UTC()
	o.fillIDs = make(map[string]struct{}, len(raw.FillIDs))
	for _, id := range raw.FillIDs {
		o.fillIDs[id] = struct{}{}
	}
	return nil
}

// clone returns a copy safe to hand to callers.
func (o *InFlightOrder) clone() *InFlightOrder {
	cp := *o
	cp.fillIDs = make(map[string]struct{}, len(o.fillIDs))
	for id := range o.fillIDs {
		cp.fillIDs[id] = struct{}{}
	}
	return &cp
}
