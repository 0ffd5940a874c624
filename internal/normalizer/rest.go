package normalizer

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/internal/schema"
)

type rawSnapshot struct {
	Timestamp int64      `json:"t"`
	MillisL   int64      `json:"timestamp"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	BidsS     [][]string `json:"b"`
	AsksS     [][]string `json:"a"`
}

// ParseSnapshot converts a REST order book response into a snapshot message.
func ParseSnapshot(pair string, body []byte, ingestTS time.Time) (*schema.Message, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode book snapshot: %w", err)
	}
	bids := raw.Bids
	if len(bids) == 0 {
		bids = raw.BidsS
	}
	asks := raw.Asks
	if len(asks) == 0 {
		asks = raw.AsksS
	}
	millis := raw.Timestamp
	if millis == 0 {
		millis = raw.MillisL
	}
	token, ts := tokenFromMillis(millis, ingestTS)
	return &schema.Message{
		Type:        schema.MessageSnapshot,
		Instrument:  schema.NormalizeCurrencyCode(pair),
		Token:       token,
		TokenSource: schema.TokenFromTimestamp,
		IngestTS:    ingestTS,
		Payload: schema.BookSnapshotPayload{
			Bids:      toPriceLevels(bids),
			Asks:      toPriceLevels(asks),
			Timestamp: ts,
		},
	}, nil
}

// ParseTrades converts a REST recent-trades response into trade messages.
// Entries missing required fields are skipped.
func ParseTrades(pair string, body []byte, ingestTS time.Time) ([]*schema.Message, error) {
	var entries []rawTrade
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	normalized := schema.NormalizeCurrencyCode(pair)
	out := make([]*schema.Message, 0, len(entries))
	for _, raw := range entries {
		tradeID := coalesce(raw.TradeID, raw.TradeIDL)
		price := coalesce(raw.Price, raw.PriceL)
		quantity := coalesce(raw.Quantity, raw.QuantityL)
		if tradeID == "" || price == "" || quantity == "" {
			continue
		}
		side, ok := schema.SideFromWire(coalesce(raw.Side, raw.SideL))
		if !ok {
			continue
		}
		millis := raw.Timestamp
		if millis == 0 {
			millis = raw.Millis
		}
		token, ts := tokenFromMillis(millis, ingestTS)
		out = append(out, &schema.Message{
			Type:        schema.MessageTrade,
			Instrument:  normalized,
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
		})
	}
	return out, nil
}

// ParseOrder converts a REST order status response into the canonical order
// update shape shared with the user stream.
func ParseOrder(body []byte, ingestTS time.Time) (schema.OrderUpdatePayload, error) {
	var raw rawOrderUpdate
	if err := json.Unmarshal(body, &raw); err != nil {
		return schema.OrderUpdatePayload{}, fmt.Errorf("decode order: %w", err)
	}
	return coalesceOrderUpdate(raw, ingestTS), nil
}

// ParseBalances converts a REST balances response into balance payloads.
func ParseBalances(body []byte) ([]schema.BalancePayload, error) {
	var entries []rawBalance
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode balances: %w", err)
	}
	out := make([]schema.BalancePayload, 0, len(entries))
	for _, raw := range entries {
		asset := schema.NormalizeCurrencyCode(coalesce(raw.Asset, raw.AssetL))
		total := coalesce(raw.Total, raw.TotalL)
		if asset == "" || total == "" {
			continue
		}
		available := coalesce(raw.Available, raw.AvailableL)
		if available == "" {
			available = total
		}
		out = append(out, schema.BalancePayload{
			Asset:     asset,
			Total:     total,
			Available: available,
		})
	}
	return out, nil
}

type rawMarket struct {
	Pair      string `json:"tradePairName"`
	PairS     string `json:"pair"`
	MinAmount string `json:"tradeMinimumAmount"`
	MaxAmount string `json:"tradeMaximumAmount"`
	TickSize  string `json:"tickSize"`
	LotSize   string `json:"lotSize"`
	Active    *bool  `json:"active"`
	Base      string `json:"virtualCurrency"`
	Quote     string `json:"currency"`
	LastPrice string `json:"lastTradedPrice"`
	BuyPrice  string `json:"buy"`
	SellPrice string `json:"sell"`
	DayVolume string `json:"volume"`
}

// ParseMarketInfo converts the REST market listing into trading rules.
// Markets missing a usable pair name or tick size are skipped.
func ParseMarketInfo(body []byte) ([]schema.TradingRule, error) {
	var entries []rawMarket
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode market info: %w", err)
	}
	out := make([]schema.TradingRule, 0, len(entries))
	for _, raw := range entries {
		if raw.Active != nil && !*raw.Active {
			continue
		}
		pair := marketPair(raw)
		if pair == "" {
			continue
		}
		tick, ok := parsePositive(raw.TickSize)
		if !ok {
			continue
		}
		rule := schema.TradingRule{Pair: pair, TickSize: tick}
		if min, ok := parsePositive(raw.MinAmount); ok {
			rule.MinOrderSize = min
		}
		if max, ok := parsePositive(raw.MaxAmount); ok {
			rule.MaxOrderSize = max
		}
		out = append(out, rule)
	}
	return out, nil
}

type rawTicker struct {
	Pair      string `json:"pair"`
	LastPrice string `json:"market"`
	Buy       string `json:"buy"`
	Sell      string `json:"sell"`
	Volume    string `json:"volume"`
}

// Ticker is the normalized REST ticker for one trading pair.
type Ticker struct {
	Pair      string
	LastPrice decimal.Decimal
	Buy       decimal.Decimal
	Sell      decimal.Decimal
	Volume    decimal.Decimal
}

// ParseTicker converts a REST ticker response.
func ParseTicker(pair string, body []byte) (Ticker, error) {
	var raw rawTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	last, ok := parsePositive(raw.LastPrice)
	if !ok {
		return Ticker{}, fmt.Errorf("%w: ticker without last price", ErrDiscard)
	}
	out := Ticker{
		Pair:      schema.NormalizeCurrencyCode(coalesce(raw.Pair, pair)),
		LastPrice: last,
	}
	if buy, ok := parsePositive(raw.Buy); ok {
		out.Buy = buy
	}
	if sell, ok := parsePositive(raw.Sell); ok {
		out.Sell = sell
	}
	if vol, ok := parsePositive(raw.Volume); ok {
		out.Volume = vol
	}
	return out, nil
}

func marketPair(raw rawMarket) string {
	if pair := schema.NormalizeCurrencyCode(coalesce(raw.Pair, raw.PairS)); pair != "" {
		return pair
	}
	base := schema.NormalizeCurrencyCode(raw.Base)
	quote := schema.NormalizeCurrencyCode(raw.Quote)
	if base == "" || quote == "" {
		return ""
	}
	return base + "-" + quote
}

func parsePositive(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return d, true
}
