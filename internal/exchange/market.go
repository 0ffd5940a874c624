package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/errs"
	"github.com/coachpo/zebpay/internal/book"
	"github.com/coachpo/zebpay/internal/normalizer"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/schema"
)

// OrderBook returns the live book for a tracked pair.
func (e *Exchange) OrderBook(pair string) (*book.Book, error) {
	return e.books.Book(pair)
}

// GetNewOrderBook fetches a standalone snapshot book over REST, independent
// of the tracked live books.
func (e *Exchange) GetNewOrderBook(ctx context.Context, pair string) (*book.Book, error) {
	if err := schema.ValidateInstrument(pair); err != nil {
		return nil, err
	}
	data, err := e.client.BookSnapshot(ctx, pair)
	if err != nil {
		return nil, err
	}
	msg, err := normalizer.ParseSnapshot(pair, data, time.Now().UTC())
	if err != nil {
		return nil, errs.New("exchange/new-order-book", errs.CodeProtocol, errs.WithCause(err))
	}
	payload, ok := msg.Payload.(schema.BookSnapshotPayload)
	if !ok {
		return nil, errs.New("exchange/new-order-book", errs.CodeProtocol,
			errs.WithMessage("snapshot payload missing"))
	}
	b := book.New(msg.Instrument)
	b.ApplySnapshot(payload, msg.Token)
	return b, nil
}

// LastTradedPrice returns the most recent trade price seen for pair, falling
// back to the REST ticker when no trade has been observed yet.
func (e *Exchange) LastTradedPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	e.mu.RLock()
	price, ok := e.lastTrade[pair]
	e.mu.RUnlock()
	if ok {
		return price, nil
	}
	data, err := e.client.Ticker(ctx, pair)
	if err != nil {
		return decimal.Decimal{}, err
	}
	ticker, err := normalizer.ParseTicker(pair, data)
	if err != nil {
		return decimal.Decimal{}, errs.New("exchange/last-traded-price", errs.CodeProtocol, errs.WithCause(err))
	}
	return ticker.LastPrice, nil
}

// MidPrice returns the midpoint of the live book for pair.
func (e *Exchange) MidPrice(pair string) (decimal.Decimal, error) {
	b, err := e.books.Book(pair)
	if err != nil {
		return decimal.Decimal{}, err
	}
	mid, ok := b.MidPrice()
	if !ok {
		return decimal.Decimal{}, errs.New("exchange/mid-price", errs.CodeInvalid,
			errs.WithMessage("order book has no two-sided quote"))
	}
	return mid, nil
}

// TradingRule returns the cached trading rule for pair.
func (e *Exchange) TradingRule(pair string) (schema.TradingRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[pair]
	return rule, ok
}

// Balance returns the cached balance for an asset.
func (e *Exchange) Balance(asset string) (schema.BalancePayload, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	balance, ok := e.balances[schema.NormalizeCurrencyCode(asset)]
	return balance, ok
}

// RefreshTradingRules fetches the market listing and updates the cached
// trading rules.
func (e *Exchange) RefreshTradingRules(ctx context.Context) error {
	data, err := e.client.Markets(ctx)
	if err != nil {
		return err
	}
	rules, err := normalizer.ParseMarketInfo(data)
	if err != nil {
		return errs.New("exchange/trading-rules", errs.CodeProtocol, errs.WithCause(err))
	}
	e.mu.Lock()
	for _, rule := range rules {
		e.rules[rule.Pair] = rule
	}
	e.mu.Unlock()
	observability.Log().Debug("trading rules refreshed",
		observability.F("markets", len(rules)))
	return nil
}

func (e *Exchange) tradingRulesLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Poll.TradingRuleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RefreshTradingRules(ctx); err != nil {
				observability.Log().Warn("trading rules refresh failed",
					observability.F("error", err.Error()))
			}
		}
	}
}

// refreshSnapshots fetches a REST snapshot for every tracked pair, pacing
// requests so a long pair list does not burn the whole request budget.
func (e *Exchange) refreshSnapshots(ctx context.Context) {
	for i, pair := range e.cfg.Pairs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.Poll.SnapshotPacing):
			}
		}
		e.refreshSnapshot(ctx, pair)
	}
}

func (e *Exchange) refreshSnapshot(ctx context.Context, pair string) {
	data, err := e.client.BookSnapshot(ctx, pair)
	if err != nil {
		observability.Log().Warn("snapshot fetch failed",
			observability.F("pair", pair),
			observability.F("error", err.Error()))
		return
	}
	msg, err := normalizer.ParseSnapshot(pair, data, time.Now().UTC())
	if err != nil {
		observability.Log().Warn("snapshot parse failed",
			observability.F("pair", pair),
			observability.F("error", err.Error()))
		return
	}
	e.books.Handle(msg)
}

// snapshotLoop periodically re-anchors every book and serves on-demand
// resync requests raised by the synchronizer.
func (e *Exchange) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Poll.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshSnapshots(ctx)
		case pair := <-e.books.ResyncRequests():
			e.refreshSnapshot(ctx, pair)
		}
	}
}

func (e *Exchange) refreshBalances(ctx context.Context) {
	data, err := e.client.Balances(ctx)
	if err != nil {
		observability.Log().Warn("balance fetch failed",
			observability.F("error", err.Error()))
		return
	}
	balances, err := normalizer.ParseBalances(data)
	if err != nil {
		observability.Log().Warn("balance parse failed",
			observability.F("error", err.Error()))
		return
	}
	e.mu.Lock()
	for _, balance := range balances {
		e.balances[balance.Asset] = balance
	}
	e.mu.Unlock()
}
