// Package persistence stores order tracking state so the connector can warm
// restart without losing in-flight orders.
package persistence

import (
	"context"

	json "github.com/goccy/go-json"
)

// Store persists serialized order tracking states keyed by client order id.
type Store interface {
	// SaveTrackingState upserts the serialized state for one order.
	SaveTrackingState(ctx context.Context, clientOrderID string, state json.RawMessage) error
	// RemoveTrackingState deletes the state for one order; removing an
	// unknown id is not an error.
	RemoveTrackingState(ctx context.Context, clientOrderID string) error
	// LoadTrackingStates returns all persisted states.
	LoadTrackingStates(ctx context.Context) (map[string]json.RawMessage, error)
	// Close releases underlying resources.
	Close()
}
