// Package normalizer translates raw Zebpay REST and websocket payloads into
// canonical messages. It is pure and stateless: every known raw shape is
// mapped onto one canonical field name here, before any other component
// touches the message.
//
// The exchange publishes the same concepts under two shapes (single-letter
// stream fields and long-name REST fields); both are accepted and coalesced.
// Zebpay assigns no sequence numbers, so ordering tokens derive from the
// embedded millisecond timestamp and are only approximately ordered.
package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/zebpay/internal/schema"
)

// ErrDiscard marks a message that is recognized but unusable (required fields
// absent). Callers log and continue; it never forces a reconnect.
var ErrDiscard = errors.New("normalizer: discard message")

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Normalize converts a websocket frame into a canonical message.
//
// Returns (nil, nil) for recognized housekeeping frames (subscription acks),
// (nil, ErrDiscard) for recognized frames with missing required fields, and a
// non-discard error for malformed or unrecognized frames, which the stream
// supervisor treats as fatal for the connection.
func Normalize(frame []byte, ingestTS time.Time) (*schema.Message, error) {
	var envelope wsEnvelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, fmt.Errorf("parse ws frame: %w", err)
	}
	msgType := strings.ToLower(strings.TrimSpace(envelope.Type))
	if msgType == "" {
		return nil, errors.New("ws frame does not contain a type")
	}

	switch msgType {
	case "l2orderbook":
		return normalizeBookDiff(envelope.Data, ingestTS)
	case "trades":
		return normalizeTrade(envelope.Data, ingestTS)
	case "orders":
		return normalizeOrderUpdate(envelope.Data, ingestTS)
	case "balances":
		return normalizeBalance(envelope.Data, ingestTS)
	case "subscriptions":
		return nil, nil
	case "error":
		return normalizeError(envelope.Data, ingestTS)
	default:
		return nil, fmt.Errorf("unrecognized ws frame type %q", envelope.Type)
	}
}

type rawBookDiff struct {
	Market    string     `json:"m"`
	Timestamp int64      `json:"t"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

func normalizeBookDiff(data []byte, ingestTS time.Time) (*schema.Message, error) {
	var raw rawBookDiff
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode l2orderbook: %w", err)
	}
	pair := schema.NormalizeCurrencyCode(raw.Market)
	if pair == "" {
		return nil, fmt.Errorf("%w: l2orderbook without market", ErrDiscard)
	}
	if len(raw.Bids) == 0 && len(raw.Asks) == 0 {
		return nil, fmt.Errorf("%w: l2orderbook without levels", ErrDiscard)
	}
	token, ts := tokenFromMillis(raw.Timestamp, ingestTS)
	return &schema.Message{
		Type:        schema.MessageDiff,
		Instrument:  pair,
		Token:       token,
		TokenSource: schema.TokenFromTimestamp,
		IngestTS:    ingestTS,
		Payload: schema.BookDiffPayload{
			Bids:      toPriceLevels(raw.Bids),
			Asks:      toPriceLevels(raw.Asks),
			Timestamp: ts,
		},
	}, nil
}

type rawTrade struct {
	Market    string `json:"m"`
	TradeID   string `json:"i"`
	TradeIDL  string `json:"id"`
	Price     string `json:"p"`
	PriceL    string `json:"fill_price"`
	Quantity  string `json:"q"`
	QuantityL string `json:"quantity"`
	Side      string `json:"s"`
	SideL     string `json:"side"`
	Timestamp int64  `json:"t"`
	Millis    int64  `json:"lastModifiedDate"`
}

func normalizeTrade(data []byte, ingestTS time.Time) (*schema.Message, error) {
	var raw rawTrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	pair := schema.NormalizeCurrencyCode(raw.Market)
	tradeID := coalesce(raw.TradeID, raw.TradeIDL)
	price := coalesce(raw.Price, raw.PriceL)
	quantity := coalesce(raw.Quantity, raw.QuantityL)
	if pair == "" || tradeID == "" || price == "" || quantity == "" {
		return nil, fmt.Errorf("%w: trade missing required fields", ErrDiscard)
	}
	side, ok := schema.SideFromWire(coalesce(raw.Side, raw.SideL))
	if !ok {
		return nil, fmt.Errorf("%w: trade with unknown side", ErrDiscard)
	}
	millis := raw.Timestamp
	if millis == 0 {
		millis = raw.Millis
	}
	token, ts := tokenFromMillis(millis, ingestTS)
	return &schema.Message{
		Type:        schema.MessageTrade,
		Instrument:  pair,
		Token:       token,
		TokenSource: schema.TokenFromTimestamp,
		IngestTS:    ingestTS,
		Payload: schema.TradePayload{
			TradeID:   tradeID,
			Side:      side,
			Price:     price,
			Quantity:  quantity,
			Timestamp: ts,
		},
	}, nil
}

type rawFill struct {
	FillID    string `json:"i"`
	FillIDL   string `json:"fillId"`
	Price     string `json:"p"`
	PriceL    string `json:"price"`
	Quantity  string `json:"q"`
	QuantityL string `json:"quantity"`
	Fee       string `json:"f"`
	FeeL      string `json:"fee"`
	FeeAsset  string `json:"a"`
	FeeAssetL string `json:"feeAsset"`
}

type rawOrderUpdate struct {
	ClientOrderID    string    `json:"c"`
	ClientOrderIDL   string    `json:"clientOrderId"`
	ExchangeOrderID  string    `json:"i"`
	ExchangeOrderIDL string    `json:"orderId"`
	Market           string    `json:"m"`
	Status           string    `json:"X"`
	StatusL          string    `json:"status"`
	Timestamp        int64     `json:"t"`
	Fills            []rawFill `json:"F"`
	FillsL           []rawFill `json:"fills"`
}

func normalizeOrderUpdate(data []byte, ingestTS time.Time) (*schema.Message, error) {
	var raw rawOrderUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode order update: %w", err)
	}
	update := coalesceOrderUpdate(raw, ingestTS)
	if update.ClientOrderID == "" && update.ExchangeOrderID == "" {
		return nil, fmt.Errorf("%w: order update without any order id", ErrDiscard)
	}
	token, _ := tokenFromMillis(raw.Timestamp, ingestTS)
	return &schema.Message{
		Type:        schema.MessageOrderUpdate,
		Instrument:  schema.NormalizeCurrencyCode(raw.Market),
		Token:       token,
		TokenSource: schema.TokenFromTimestamp,
		IngestTS:    ingestTS,
		Payload:     update,
	}, nil
}

func coalesceOrderUpdate(raw rawOrderUpdate, ingestTS time.Time) schema.OrderUpdatePayload {
	fills := raw.Fills
	if len(fills) == 0 {
		fills = raw.FillsL
	}
	out := make([]schema.Fill, 0, len(fills))
	for _, f := range fills {
		fill := schema.Fill{
			FillID:   coalesce(f.FillID, f.FillIDL),
			Price:    coalesce(f.Price, f.PriceL),
			Quantity: coalesce(f.Quantity, f.QuantityL),
			Fee:      coalesce(f.Fee, f.FeeL),
			FeeAsset: coalesce(f.FeeAsset, f.FeeAssetL),
		}
		if fill.FillID == "" || fill.Quantity == "" {
			continue
		}
		out = append(out, fill)
	}
	_, ts := tokenFromMillis(raw.Timestamp, ingestTS)
	return schema.OrderUpdatePayload{
		ClientOrderID:   coalesce(raw.ClientOrderID, raw.ClientOrderIDL),
		ExchangeOrderID: coalesce(raw.ExchangeOrderID, raw.ExchangeOrderIDL),
		Status:          strings.ToLower(coalesce(raw.Status, raw.StatusL)),
		Fills:           out,
		Timestamp:       ts,
	}
}

type rawBalance struct {
	Asset      string `json:"a"`
	AssetL     string `json:"asset"`
	Total      string `json:"q"`
	TotalL     string `json:"quantity"`
	Available  string `json:"f"`
	AvailableL string `json:"availableForTrade"`
}

func normalizeBalance(data []byte, ingestTS time.Time) (*schema.Message, error) {
	var raw rawBalance
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	asset := schema.NormalizeCurrencyCode(coalesce(raw.Asset, raw.AssetL))
	total := coalesce(raw.Total, raw.TotalL)
	if asset == "" || total == "" {
		return nil, fmt.Errorf("%w: balance missing required fields", ErrDiscard)
	}
	available := coalesce(raw.Available, raw.AvailableL)
	if available == "" {
		available = total
	}
	return &schema.Message{
		Type:        schema.MessageBalanceUpdate,
		Token:       uint64(ingestTS.UnixMilli()),
		TokenSource: schema.TokenFromTimestamp,
		IngestTS:    ingestTS,
		Payload: schema.BalancePayload{
			Asset:     asset,
			Total:     total,
			Available: available,
		},
	}, nil
}

type rawError struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

func normalizeError(data []byte, ingestTS time.Time) (*schema.Message, error) {
	var raw rawError
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode error payload: %w", err)
	}
	return &schema.Message{
		Type:        schema.MessageError,
		Token:       uint64(ingestTS.UnixMilli()),
		TokenSource: schema.TokenFromTimestamp,
		IngestTS:    ingestTS,
		Payload: schema.ErrorPayload{
			Code:    raw.Code.String(),
			Message: raw.Message,
		},
	}, nil
}

func toPriceLevels(levels [][]string) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		out = append(out, schema.PriceLevel{Price: level[0], Quantity: level[1]})
	}
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// tokenFromMillis converts a millisecond wire timestamp into an ordering
// token, falling back to the ingest time when the exchange omits it.
func tokenFromMillis(millis int64, ingestTS time.Time) (uint64, time.Time) {
	if millis <= 0 {
		return uint64(ingestTS.UnixMilli()), ingestTS
	}
	return uint64(millis), time.UnixMilli(millis).UTC()
}
