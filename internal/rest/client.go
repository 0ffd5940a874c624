// Package rest implements the Zebpay HTTP API client. Every call passes
// through the shared request gate before the request is issued, and every
// response is unwrapped from the exchange envelope and mapped onto the error
// taxonomy.
package rest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/gate"
	"github.com/coachpo/zebpay/internal/schema"
)

// Request weights against the shared budget. Order placement and account
// queries cost more than public market data.
const (
	weightPublic  = 1
	weightOrder   = 2
	weightAccount = 2
)

type envelope struct {
	Code              int             `json:"code"`
	Data              json.RawMessage `json:"data"`
	StatusDescription string          `json:"statusDescription"`
}

// Client talks to the Zebpay REST API.
type Client struct {
	baseURL string
	country string
	http    *http.Client
	gate    *gate.Gate
	auth    *Auth
}

// Options parameterizes a Client.
type Options struct {
	BaseURL string
	Country string
	Timeout time.Duration
	Gate    *gate.Gate
	Auth    *Auth
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// NewClient builds a REST client. A nil gate means no throttling, which is
// only appropriate in tests.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		country: opts.Country,
		http:    httpClient,
		gate:    opts.Gate,
		auth:    opts.Auth,
	}
}

// Markets fetches the full market listing.
func (c *Client) Markets(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/market", nil, weightPublic, false)
}

// BookSnapshot fetches the order book for pair.
func (c *Client) BookSnapshot(ctx context.Context, pair string) (json.RawMessage, error) {
	return c.get(ctx, "/market/"+url.PathEscape(pair)+"/book", nil, weightPublic, false)
}

// Trades fetches recent public trades for pair.
func (c *Client) Trades(ctx context.Context, pair string) (json.RawMessage, error) {
	return c.get(ctx, "/market/"+url.PathEscape(pair)+"/trades", nil, weightPublic, false)
}

// Ticker fetches the 24h ticker for pair.
func (c *Client) Ticker(ctx context.Context, pair string) (json.RawMessage, error) {
	return c.get(ctx, "/market/"+url.PathEscape(pair)+"/ticker", nil, weightPublic, false)
}

// Balances fetches account balances.
func (c *Client) Balances(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/balances", nil, weightAccount, true)
}

// CreateOrderRequest is the order placement payload.
type CreateOrderRequest struct {
	Pair          string
	Side          schema.TradeSide
	Type          schema.OrderType
	Price         decimal.Decimal
	Amount        decimal.Decimal
	ClientOrderID string
}

type createOrderBody struct {
	TradePair     string `json:"trade_pair"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	ClientOrderID string `json:"client_order_id"`
}

type createOrderResponse struct {
	OrderID  json.Number `json:"orderid"`
	OrderIDL json.Number `json:"orderId"`
	ID       json.Number `json:"id"`
}

// CreateOrder places a limit order and returns the exchange order id.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error) {
	const op = "rest/create-order"
	body := createOrderBody{
		TradePair:     req.Pair,
		Side:          schema.WireSide(req.Side),
		OrderType:     string(req.Type),
		Price:         req.Price.String(),
		Size:          req.Amount.String(),
		ClientOrderID: req.ClientOrderID,
	}
	data, err := c.do(ctx, http.MethodPost, "/orders", nil, body, weightOrder, true)
	if err != nil {
		return "", err
	}
	var resp createOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", errs.New(op, errs.CodeProtocol, errs.WithCause(err))
	}
	id := firstNonEmpty(resp.OrderID.String(), resp.OrderIDL.String(), resp.ID.String())
	if id == "" {
		return "", errs.New(op, errs.CodeProtocol,
			errs.WithMessage("order accepted without an exchange order id"))
	}
	return id, nil
}

// CancelOrder cancels an order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(exchangeOrderID), nil, nil, weightOrder, true)
	return err
}

// GetOrder fetches one order's status by exchange order id.
func (c *Client) GetOrder(ctx context.Context, exchangeOrderID string) (json.RawMessage, error) {
	query := url.Values{"orderid": []string{exchangeOrderID}}
	return c.get(ctx, "/orders", query, weightOrder, true)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, weight int, authenticated bool) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, weight, authenticated)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, weight int, authenticated bool) (json.RawMessage, error) {
	op := "rest" + path
	if c.gate != nil {
		if err := c.gate.Acquire(ctx, weight); err != nil {
			return nil, err
		}
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, errs.New(op, errs.CodeInvalid, errs.WithCause(err))
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errs.New(op, errs.CodeInvalid, errs.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.country != "" {
		req.Header.Set("x-country", c.country)
	}
	if authenticated {
		if c.auth == nil {
			return nil, errs.New(op, errs.CodeAuth,
				errs.WithMessage("credentials required for private endpoint"))
		}
		c.auth.Apply(req, body)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New(op, errs.CodeTransport, errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errs.New(op, errs.CodeTransport, errs.WithCause(err))
	}
	if err := c.checkStatus(op, resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.New(op, errs.CodeProtocol, errs.WithCause(err),
			errs.WithHTTP(resp.StatusCode))
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return nil, c.envelopeError(op, resp.StatusCode, env)
	}
	return env.Data, nil
}

func (c *Client) checkStatus(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return errs.New(op, errs.CodeRateLimited, errs.WithHTTP(status),
			errs.WithCanonicalCode(errs.CanonicalRateLimited),
			errs.WithRawMessage(trimBody(body)))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(op, errs.CodeAuth, errs.WithHTTP(status),
			errs.WithRawMessage(trimBody(body)))
	case status == http.StatusNotFound:
		return errs.New(op, errs.CodeNotFound, errs.WithHTTP(status),
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound),
			errs.WithRawMessage(trimBody(body)))
	default:
		return errs.New(op, errs.CodeTransport, errs.WithHTTP(status),
			errs.WithRawMessage(trimBody(body)))
	}
}

func (c *Client) envelopeError(op string, status int, env envelope) error {
	description := strings.TrimSpace(env.StatusDescription)
	opts := []errs.Option{
		errs.WithHTTP(status),
		errs.WithRawCode(strconv.Itoa(env.Code)),
		errs.WithRawMessage(description),
	}
	lowered := strings.ToLower(description)
	switch {
	case env.Code == http.StatusNotFound || strings.Contains(lowered, "not found"):
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
		return errs.New(op, errs.CodeNotFound, opts...)
	case strings.Contains(lowered, "insufficient"):
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalInsufficientBalance))
		return errs.New(op, errs.CodeRequest, opts...)
	case strings.Contains(lowered, "invalid pair") || strings.Contains(lowered, "invalid symbol"):
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
		return errs.New(op, errs.CodeRequest, opts...)
	default:
		return errs.New(op, errs.CodeRequest, opts...)
	}
}

func trimBody(body []byte) string {
	const limit = 512
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > limit {
		return trimmed[:limit]
	}
	return trimmed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" && v != "0" {
			return v
		}
	}
	return ""
}
