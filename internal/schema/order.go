package schema

import "strings"

// OrderType enumerates order types supported by the connector.
type OrderType string

const (
	// OrderTypeLimit represents limit orders.
	OrderTypeLimit OrderType = "Limit"
	// OrderTypeLimitMaker represents post-only limit orders.
	OrderTypeLimitMaker OrderType = "LimitMaker"
)

// WireSide converts a trade side into the exchange order-entry vocabulary.
func WireSide(side TradeSide) string {
	if side == TradeSideSell {
		return "ask"
	}
	return "bid"
}

// SideFromWire maps exchange side vocabulary onto the canonical trade side.
func SideFromWire(raw string) (TradeSide, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bid", "buy", "b":
		return TradeSideBuy, true
	case "ask", "sell", "s":
		return TradeSideSell, true
	default:
		return "", false
	}
}
