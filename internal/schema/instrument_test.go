package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/zebpay/internal/schema"
)

func TestValidateInstrument(t *testing.T) {
	require.NoError(t, schema.ValidateInstrument("BTC-INR"))
	require.Error(t, schema.ValidateInstrument(""))
	require.Error(t, schema.ValidateInstrument("BTCINR"))
	require.Error(t, schema.ValidateInstrument("BTC-"))
	require.Error(t, schema.ValidateInstrument("btc-inr"))
}

func TestBaseQuote(t *testing.T) {
	base, quote := schema.BaseQuote("ETH-INR")
	require.Equal(t, "ETH", base)
	require.Equal(t, "INR", quote)

	base, quote = schema.BaseQuote("broken")
	require.Empty(t, base)
	require.Empty(t, quote)
}

func TestSideFromWire(t *testing.T) {
	side, ok := schema.SideFromWire("bid")
	require.True(t, ok)
	require.Equal(t, schema.TradeSideBuy, side)

	side, ok = schema.SideFromWire("ASK")
	require.True(t, ok)
	require.Equal(t, schema.TradeSideSell, side)

	_, ok = schema.SideFromWire("hold")
	require.False(t, ok)

	require.Equal(t, "bid", schema.WireSide(schema.TradeSideBuy))
	require.Equal(t, "ask", schema.WireSide(schema.TradeSideSell))
}
