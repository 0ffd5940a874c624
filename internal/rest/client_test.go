package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/gate"
	"github.com/coachpo/zebpay/internal/rest"
	"github.com/coachpo/zebpay/internal/schema"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *rest.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return rest.NewClient(rest.Options{
		BaseURL: server.URL,
		Country: "IN",
		Gate:    gate.New(100, rate.Every(0)),
		Auth:    rest.NewAuth("client-id", "api-secret"),
	})
}

func TestBookSnapshotUnwrapsEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/market/BTC-INR/book", r.URL.Path)
		require.Equal(t, "IN", r.Header.Get("x-country"))
		require.Empty(t, r.Header.Get("x-auth-apikey"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"bids":[["100","5"]],"asks":[]},"statusDescription":"Success"}`))
	})

	data, err := client.BookSnapshot(context.Background(), "BTC-INR")
	require.NoError(t, err)
	require.JSONEq(t, `{"bids":[["100","5"]],"asks":[]}`, string(data))
}

func TestCreateOrderSignsAndReturnsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("x-auth-apikey"))
		require.NotEmpty(t, r.Header.Get("x-auth-signature"))
		require.NotEmpty(t, r.Header.Get("x-auth-timestamp"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"orderid":12345},"statusDescription":"Success"}`))
	})

	id, err := client.CreateOrder(context.Background(), rest.CreateOrderRequest{
		Pair:          "BTC-INR",
		Side:          schema.TradeSideBuy,
		Type:          schema.OrderTypeLimit,
		Price:         decimal.RequireFromString("100"),
		Amount:        decimal.RequireFromString("1"),
		ClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	require.Equal(t, "12345", id)
}

func TestEnvelopeErrorMapsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":1004,"data":null,"statusDescription":"Order not found"}`))
	})

	err := client.CancelOrder(context.Background(), "12345")
	require.Error(t, err)
	require.True(t, errs.IsOrderNotFound(err))
}

func TestHTTPNotFoundMapsToOrderNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetOrder(context.Background(), "12345")
	require.True(t, errs.IsOrderNotFound(err))
}

func TestRateLimitedStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Balances(context.Background())
	var e *errs.E
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeRateLimited, e.Code)
	require.Equal(t, errs.CanonicalRateLimited, e.Canonical)
}

func TestInsufficientBalanceCanonicalCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":1010,"data":null,"statusDescription":"Insufficient balance"}`))
	})

	_, err := client.CreateOrder(context.Background(), rest.CreateOrderRequest{
		Pair:   "BTC-INR",
		Side:   schema.TradeSideBuy,
		Type:   schema.OrderTypeLimit,
		Price:  decimal.RequireFromString("100"),
		Amount: decimal.RequireFromString("1"),
	})
	var e *errs.E
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CanonicalInsufficientBalance, e.Canonical)
	require.Equal(t, "1010", e.RawCode)
}

func TestPrivateEndpointWithoutCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request should not reach the server")
	}))
	t.Cleanup(server.Close)
	client := rest.NewClient(rest.Options{BaseURL: server.URL})

	_, err := client.Balances(context.Background())
	var e *errs.E
	require.ErrorAs(t, err, &e)
	require.Equal(t, errs.CodeAuth, e.Code)
}

func TestGetOrderQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "12345", r.URL.Query().Get("orderid"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"orderId":"12345","status":"Open"},"statusDescription":"Success"}`))
	})

	data, err := client.GetOrder(context.Background(), "12345")
	require.NoError(t, err)
	require.Contains(t, string(data), "Open")
}
