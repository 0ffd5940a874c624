// Package book maintains local limit order books and keeps them converging
// toward exchange state from snapshot and diff messages.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/schema"
)

// Level is one resolved price level.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Book is the local order book for a single trading pair. Updates carry
// monotonically non-decreasing ordering tokens; a diff whose token is older
// than the book's current token is dropped, and a diff with an equal token is
// re-applied (level writes are absolute, so replays are idempotent).
type Book struct {
	mu        sync.RWMutex
	pair      string
	bids      map[string]decimal.Decimal
	asks      map[string]decimal.Decimal
	token     uint64
	ready     bool
	updatedAt time.Time
}

// New returns an empty, not yet ready book for pair.
func New(pair string) *Book {
	return &Book{
		pair: pair,
		bids: make(map[string]decimal.Decimal),
		asks: make(map[string]decimal.Decimal),
	}
}

// Pair returns the trading pair this book tracks.
func (b *Book) Pair() string { return b.pair }

// Ready reports whether at least one snapshot has been applied.
func (b *Book) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Token returns the ordering token of the newest applied update.
func (b *Book) Token() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

// UpdatedAt returns the wall-clock time of the newest applied update.
func (b *Book) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

// ApplySnapshot replaces the book contents wholesale and marks it ready.
// A snapshot older than the current token is ignored.
func (b *Book) ApplySnapshot(payload schema.BookSnapshotPayload, token uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready && token < b.token {
		return false
	}
	b.bids = levelMap(payload.Bids)
	b.asks = levelMap(payload.Asks)
	b.token = token
	b.ready = true
	b.updatedAt = payload.Timestamp
	return true
}

// ApplyDiff applies one incremental update. A zero quantity deletes the
// level. Returns false when the diff predates the book or arrives before any
// snapshot.
func (b *Book) ApplyDiff(payload schema.BookDiffPayload, token uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready || token < b.token {
		return false
	}
	applyLevels(b.bids, payload.Bids)
	applyLevels(b.asks, payload.Asks)
	b.token = token
	b.updatedAt = payload.Timestamp
	return true
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLevel(b.bids, func(candidate, best decimal.Decimal) bool {
		return candidate.GreaterThan(best)
	})
}

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bestLevel(b.asks, func(candidate, best decimal.Decimal) bool {
		return candidate.LessThan(best)
	})
}

// MidPrice returns the midpoint of the best bid and ask.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// PriceForVolume walks the book from the top and returns the volume-weighted
// price needed to fill volume on the given side: asks for a buy, bids for a
// sell. Insufficient depth is an error.
func (b *Book) PriceForVolume(side schema.TradeSide, volume decimal.Decimal) (decimal.Decimal, error) {
	if volume.Sign() <= 0 {
		return decimal.Decimal{}, errs.New("book/price-for-volume", errs.CodeInvalid,
			errs.WithMessage("volume must be positive"))
	}
	var levels []Level
	if side == schema.TradeSideBuy {
		levels = b.Asks()
	} else {
		levels = b.Bids()
	}

	remaining := volume
	cost := decimal.Decimal{}
	for _, level := range levels {
		take := decimal.Min(remaining, level.Quantity)
		cost = cost.Add(take.Mul(level.Price))
		remaining = remaining.Sub(take)
		if remaining.Sign() <= 0 {
			return cost.Div(volume), nil
		}
	}
	return decimal.Decimal{}, errs.New("book/price-for-volume", errs.CodeInvalid,
		errs.WithMessage("insufficient depth for requested volume"))
}

// Bids returns bid levels sorted from best (highest price) down.
func (b *Book) Bids() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := collectLevels(b.bids)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price.GreaterThan(levels[j].Price) })
	return levels
}

// Asks returns ask levels sorted from best (lowest price) up.
func (b *Book) Asks() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := collectLevels(b.asks)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price.LessThan(levels[j].Price) })
	return levels
}

func levelMap(levels []schema.PriceLevel) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(levels))
	applyLevels(out, levels)
	return out
}

func applyLevels(side map[string]decimal.Decimal, levels []schema.PriceLevel) {
	for _, level := range levels {
		price, err := decimal.NewFromString(level.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(level.Quantity)
		if err != nil {
			continue
		}
		key := price.String()
		if qty.Sign() <= 0 {
			delete(side, key)
			continue
		}
		side[key] = qty
	}
}

func collectLevels(side map[string]decimal.Decimal) []Level {
	out := make([]Level, 0, len(side))
	for price, qty := range side {
		p, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		out = append(out, Level{Price: p, Quantity: qty})
	}
	return out
}

func bestLevel(side map[string]decimal.Decimal, better func(candidate, best decimal.Decimal) bool) (Level, bool) {
	var best Level
	found := false
	for price, qty := range side {
		p, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		if !found || better(p, best.Price) {
			best = Level{Price: p, Quantity: qty}
			found = true
		}
	}
	return best, found
}
