// Package orders tracks the lifecycle of in-flight exchange orders from
// submission through fills to a terminal state.
package orders

import "strings"

// State is the lifecycle state of a tracked order.
type State string

const (
	StatePendingCreate   State = "pending_create"
	StateOpen            State = "open"
	StatePartiallyFilled State = "partially_filled"
	StateFilled          State = "filled"
	StateCancelled       State = "cancelled"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateFailed:
		return true
	}
	return false
}

// StateFromWire maps the exchange's status vocabulary onto lifecycle states.
// The exchange is inconsistent about spelling across its REST and stream
// surfaces, so the match is case-insensitive and accepts all observed forms.
func StateFromWire(raw string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "pendingnew", "pending_new", "submitted":
		return StatePendingCreate, true
	case "open", "new", "accepted", "active":
		return StateOpen, true
	case "partiallyfilled", "partially_filled", "partial-fill", "partialfill":
		return StatePartiallyFilled, true
	case "filled", "done", "completed", "complete":
		return StateFilled, true
	case "cancelled", "canceled", "cancel":
		return StateCancelled, true
	case "rejected", "failed", "expired", "error":
		return StateFailed, true
	}
	return "", false
}

// allowed transitions; terminal states accept nothing.
func canTransition(from, to State) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	switch from {
	case StatePendingCreate:
		return true
	case StateOpen:
		return to != StatePendingCreate
	case StatePartiallyFilled:
		// A resting partially filled order may report open again after an
		// amendment; everything else moves forward.
		return to != StatePendingCreate
	}
	return false
}
