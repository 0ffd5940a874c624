package rest

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthHeadersAreDeterministic(t *testing.T) {
	auth := NewAuth("client-id", "api-secret")
	auth.now = func() time.Time { return time.UnixMilli(1690000000000).UTC() }

	req, err := http.NewRequest(http.MethodPost, "https://api.test/pro/v1/orders", nil)
	require.NoError(t, err)
	body := []byte(`{"trade_pair":"BTC-INR"}`)
	auth.Apply(req, body)

	require.Equal(t, "client-id", req.Header.Get("x-auth-apikey"))
	require.Equal(t, "1690000000000", req.Header.Get("x-auth-timestamp"))
	first := req.Header.Get("x-auth-signature")
	require.Len(t, first, 64)

	// Same inputs, same signature.
	repeat, err := http.NewRequest(http.MethodPost, "https://api.test/pro/v1/orders", nil)
	require.NoError(t, err)
	auth.Apply(repeat, body)
	require.Equal(t, first, repeat.Header.Get("x-auth-signature"))

	// Different body, different signature.
	other, err := http.NewRequest(http.MethodPost, "https://api.test/pro/v1/orders", nil)
	require.NoError(t, err)
	auth.Apply(other, []byte(`{}`))
	require.NotEqual(t, first, other.Header.Get("x-auth-signature"))
}
