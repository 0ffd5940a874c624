package book_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/zebpay/internal/book"
	"github.com/coachpo/zebpay/internal/schema"
)

func diffMsg(pair string, token uint64, bids, asks []schema.PriceLevel) *schema.Message {
	return &schema.Message{
		Type:        schema.MessageDiff,
		Instrument:  pair,
		Token:       token,
		TokenSource: schema.TokenFromTimestamp,
		Payload:     schema.BookDiffPayload{Bids: bids, Asks: asks},
	}
}

func snapshotMsg(pair string, token uint64) *schema.Message {
	return &schema.Message{
		Type:        schema.MessageSnapshot,
		Instrument:  pair,
		Token:       token,
		TokenSource: schema.TokenFromTimestamp,
		Payload: schema.BookSnapshotPayload{
			Bids:      []schema.PriceLevel{{Price: "100", Quantity: "5"}},
			Asks:      []schema.PriceLevel{{Price: "101", Quantity: "3"}},
			Timestamp: time.Unix(1690000000, 0).UTC(),
		},
	}
}

func TestSynchronizerBuffersDiffsUntilSnapshot(t *testing.T) {
	s := book.NewSynchronizer([]string{"BTC-INR"})

	// Diffs before the snapshot: one covered by it, one newer.
	s.Handle(diffMsg("BTC-INR", 99, []schema.PriceLevel{{Price: "98", Quantity: "1"}}, nil))
	s.Handle(diffMsg("BTC-INR", 101, []schema.PriceLevel{{Price: "99", Quantity: "2"}}, nil))

	b, err := s.Book("BTC-INR")
	require.NoError(t, err)
	require.False(t, b.Ready())

	s.Handle(snapshotMsg("BTC-INR", 100))
	require.True(t, b.Ready())

	// The token-99 diff is covered by the snapshot; the token-101 diff applies.
	bids := b.Bids()
	require.Len(t, bids, 2)
	require.Equal(t, "100", bids[0].Price.String())
	require.Equal(t, "99", bids[1].Price.String())
	require.Equal(t, uint64(101), b.Token())
}

func TestSynchronizerCountsStaleDiffs(t *testing.T) {
	s := book.NewSynchronizer([]string{"BTC-INR"})
	s.Handle(snapshotMsg("BTC-INR", 100))

	s.Handle(diffMsg("BTC-INR", 101, nil, []schema.PriceLevel{{Price: "102", Quantity: "1"}}))
	s.Handle(diffMsg("BTC-INR", 90, nil, []schema.PriceLevel{{Price: "103", Quantity: "1"}}))

	applied, dropped := s.Stats()
	require.Equal(t, uint64(1), applied)
	require.Equal(t, uint64(1), dropped)
}

func TestSynchronizerIgnoresUntrackedPair(t *testing.T) {
	s := book.NewSynchronizer([]string{"BTC-INR"})
	s.Handle(snapshotMsg("ETH-INR", 100))

	_, err := s.Book("ETH-INR")
	require.Error(t, err)
}

func TestSynchronizerResyncRequestsDelivered(t *testing.T) {
	s := book.NewSynchronizer([]string{"BTC-INR", "ETH-INR"})
	s.RequestResync("BTC-INR")
	s.RequestResync("ETH-INR")

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case pair := <-s.ResyncRequests():
			got[pair]++
		default:
			t.Fatal("expected queued resync request")
		}
	}
	require.Equal(t, 1, got["BTC-INR"])
	require.Equal(t, 1, got["ETH-INR"])
}
