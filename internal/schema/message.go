// Package schema defines the canonical message variants exchanged between the
// normalizer and the book/order subsystems.
package schema

import (
	"time"
)

// MessageType tags the canonical message variants.
type MessageType string

const (
	// MessageSnapshot identifies a full order book replacement.
	MessageSnapshot MessageType = "Snapshot"
	// MessageDiff identifies an incremental order book update.
	MessageDiff MessageType = "Diff"
	// MessageTrade identifies an executed trade.
	MessageTrade MessageType = "Trade"
	// MessageOrderUpdate identifies an order lifecycle update.
	MessageOrderUpdate MessageType = "OrderUpdate"
	// MessageBalanceUpdate identifies an account balance change.
	MessageBalanceUpdate MessageType = "BalanceUpdate"
	// MessageError identifies an exchange-reported error payload.
	MessageError MessageType = "Error"
)

// TokenSource records how a message's ordering token was derived.
type TokenSource string

const (
	// TokenFromSequence marks a token taken from an exchange sequence number.
	TokenFromSequence TokenSource = "sequence"
	// TokenFromTimestamp marks a token derived from the message timestamp.
	// Timestamp tokens are only approximately ordered under clock skew.
	TokenFromTimestamp TokenSource = "timestamp"
)

// Message is the canonical tagged union produced by the normalizer.
// Exactly one payload type corresponds to each MessageType; consumers
// switch exhaustively on Type.
type Message struct {
	Type        MessageType
	Instrument  string
	Token       uint64
	TokenSource TokenSource
	IngestTS    time.Time
	Payload     any
}

// PriceLevel describes an order book price level using decimal strings.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// BookSnapshotPayload conveys a full replacement of order book depth.
type BookSnapshotPayload struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BookDiffPayload conveys an incremental update to a subset of price levels.
// A zero quantity removes the level; a positive quantity inserts or overwrites it.
type BookDiffPayload struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// TradeSide captures the direction of a trade.
type TradeSide string

const (
	// TradeSideBuy indicates buy side fills.
	TradeSideBuy TradeSide = "Buy"
	// TradeSideSell indicates sell side fills.
	TradeSideSell TradeSide = "Sell"
)

// TradePayload represents an executed public trade.
type TradePayload struct {
	TradeID   string    `json:"trade_id"`
	Side      TradeSide `json:"side"`
	Price     string    `json:"price"`
	Quantity  string    `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Fill carries the detail of a single order fill.
type Fill struct {
	FillID   string `json:"fill_id"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Fee      string `json:"fee"`
	FeeAsset string `json:"fee_asset"`
}

// OrderUpdatePayload represents a lifecycle update for a submitted order.
// REST poll results and user-stream events are both normalized to this shape
// so the merge logic downstream is source-agnostic.
type OrderUpdatePayload struct {
	ClientOrderID   string    `json:"client_order_id"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	Status          string    `json:"status"`
	Fills           []Fill    `json:"fills,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// BalancePayload represents an account balance update for a single asset.
type BalancePayload struct {
	Asset     string `json:"asset"`
	Total     string `json:"total"`
	Available string `json:"available"`
}

// ErrorPayload carries an exchange-reported error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
