// Package exchange is the Zebpay connector facade. It wires the REST client,
// the stream supervisors, the order book synchronizer and the order lifecycle
// tracker into one tradable surface.
package exchange

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/coachpo/zebpay/config"
	"github.com/coachpo/zebpay/internal/book"
	"github.com/coachpo/zebpay/internal/bus"
	"github.com/coachpo/zebpay/internal/gate"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/orders"
	"github.com/coachpo/zebpay/internal/persistence"
	"github.com/coachpo/zebpay/internal/rest"
	"github.com/coachpo/zebpay/internal/schema"
	"github.com/coachpo/zebpay/internal/stream"
	"github.com/coachpo/zebpay/internal/telemetry"
)

// Exchange is the connector entry point. All exported methods are safe for
// concurrent use.
type Exchange struct {
	cfg     config.Settings
	client  *rest.Client
	tracker *orders.Tracker
	books   *book.Synchronizer
	events  *bus.Bus
	store   persistence.Store
	metrics *telemetry.Metrics

	marketFeed *stream.Supervisor
	userFeed   *stream.Supervisor

	mu           sync.RWMutex
	rules        map[string]schema.TradingRule
	balances     map[string]schema.BalancePayload
	lastTrade    map[string]decimal.Decimal
	lastUserData time.Time
}

// Options overrides collaborators, mainly for tests. Zero values select the
// production implementations.
type Options struct {
	Client *rest.Client
	Store  persistence.Store
	Dialer stream.Dialer
}

// New wires a connector from settings.
func New(cfg config.Settings, opts Options) (*Exchange, error) {
	period := cfg.Budget.Period
	if period <= 0 {
		period = time.Second
	}
	g := gate.New(cfg.Budget.Weight, rate.Limit(float64(cfg.Budget.Weight)/period.Seconds()))

	client := opts.Client
	if client == nil {
		var auth *rest.Auth
		if cfg.Credentials.ClientID != "" {
			auth = rest.NewAuth(cfg.Credentials.ClientID, cfg.Credentials.APISecret)
		}
		client = rest.NewClient(rest.Options{
			BaseURL: cfg.RESTBaseURL,
			Country: cfg.Country,
			Timeout: cfg.HTTPTimeout,
			Gate:    g,
			Auth:    auth,
		})
	}

	store := opts.Store
	if store == nil {
		store = persistence.NewMemoryStore()
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, err
	}

	events := bus.New(0)
	e := &Exchange{
		cfg:       cfg,
		client:    client,
		books:     book.NewSynchronizer(cfg.Pairs),
		events:    events,
		store:     store,
		metrics:   metrics,
		rules:     make(map[string]schema.TradingRule),
		balances:  make(map[string]schema.BalancePayload),
		lastTrade: make(map[string]decimal.Decimal),
	}
	e.tracker = orders.NewTracker(e)

	e.marketFeed, err = stream.New(stream.Config{
		Name:           "market",
		URL:            cfg.Stream.FeedURL,
		MessageTimeout: cfg.Stream.MessageTimeout,
		PingTimeout:    cfg.Stream.PingTimeout,
		ReconnectCap:   cfg.Stream.ReconnectDelay,
		Subscriptions:  e.marketSubscriptions,
		OnReconnect:    e.countReconnect("market"),
		Handler:        e.handleMarketFrame,
		Dialer:         opts.Dialer,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Credentials.ClientID != "" {
		e.userFeed, err = stream.New(stream.Config{
			Name:           "user",
			URL:            cfg.Stream.FeedURL,
			MessageTimeout: cfg.Stream.MessageTimeout,
			PingTimeout:    cfg.Stream.PingTimeout,
			ReconnectCap:   cfg.Stream.ReconnectDelay,
			Subscriptions:  e.userSubscriptions,
			OnReconnect:    e.countReconnect("user"),
			Handler:        e.handleUserFrame,
			Dialer:         opts.Dialer,
		})
		if err != nil {
			return nil, err
		}
	}

	e.events.Subscribe("tracking-persistence", e.persistOnEvent)
	return e, nil
}

// Publish implements the tracker's event sink: count the event, then fan it
// out to subscribers.
func (e *Exchange) Publish(event orders.Event) {
	e.metrics.OrderEvents.Add(context.Background(), 1, telemetry.EventType(string(event.Type)))
	e.events.Publish(event)
}

// Subscribe registers a lifecycle event handler.
func (e *Exchange) Subscribe(id string, handler bus.Handler) {
	e.events.Subscribe(id, handler)
}

// Unsubscribe removes a lifecycle event handler.
func (e *Exchange) Unsubscribe(id string) {
	e.events.Unsubscribe(id)
}

// Run starts the connector and blocks until ctx is cancelled.
func (e *Exchange) Run(ctx context.Context) error {
	if err := e.RestoreTracking(ctx); err != nil {
		return err
	}
	if err := e.RefreshTradingRules(ctx); err != nil {
		observability.Log().Warn("initial trading rules fetch failed",
			observability.F("error", err.Error()))
	}
	e.refreshSnapshots(ctx)
	if e.userFeed != nil {
		e.refreshBalances(ctx)
	}

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(func(ctx context.Context) { _ = e.marketFeed.Run(ctx) })
	if e.userFeed != nil {
		run(func(ctx context.Context) { _ = e.userFeed.Run(ctx) })
		run(e.orderPollLoop)
	}
	run(e.snapshotLoop)
	run(e.tradingRulesLoop)

	wg.Wait()
	e.store.Close()
	return ctx.Err()
}

// Status summarizes connector health.
type Status struct {
	Ready        bool
	MarketFeed   stream.Status
	UserFeed     *stream.Status
	BooksReady   map[string]bool
	ActiveOrders int
}

// Status reports whether the connector is ready to trade: trading rules
// loaded, every tracked book synchronized, and feeds connected.
func (e *Exchange) Status() Status {
	booksReady := make(map[string]bool)
	ready := true
	for _, pair := range e.books.Pairs() {
		b, err := e.books.Book(pair)
		ok := err == nil && b.Ready()
		booksReady[pair] = ok
		ready = ready && ok
	}

	e.mu.RLock()
	if len(e.rules) == 0 {
		ready = false
	}
	e.mu.RUnlock()

	market := e.marketFeed.Status()
	ready = ready && market.Connected

	status := Status{
		Ready:        ready,
		MarketFeed:   market,
		BooksReady:   booksReady,
		ActiveOrders: len(e.tracker.Active()),
	}
	if e.userFeed != nil {
		user := e.userFeed.Status()
		status.UserFeed = &user
		status.Ready = status.Ready && user.Connected
	}
	return status
}

// RestoreTracking loads persisted tracking states into the tracker. Run
// calls this on startup; it is exported so a warm restart can be driven
// explicitly as well.
func (e *Exchange) RestoreTracking(ctx context.Context) error {
	states, err := e.store.LoadTrackingStates(ctx)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	if err := e.tracker.RestoreTrackingStates(states); err != nil {
		return err
	}
	observability.Log().Info("restored tracking states",
		observability.F("orders", len(states)))
	return nil
}

// TrackingStates returns the serialized snapshot of every non-terminal order,
// keyed by client order id, for handoff to the host framework.
func (e *Exchange) TrackingStates() (map[string]json.RawMessage, error) {
	return e.tracker.TrackingStates()
}

// persistOnEvent mirrors tracker state into the store: terminal events drop
// the row, everything else upserts the latest serialized order.
func (e *Exchange) persistOnEvent(event orders.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if event.State.Terminal() {
		if err := e.store.RemoveTrackingState(ctx, event.ClientOrderID); err != nil {
			observability.Log().Warn("remove tracking state failed",
				observability.F("client_order_id", event.ClientOrderID),
				observability.F("error", err.Error()))
		}
		return
	}
	e.persistOrder(ctx, event.ClientOrderID)
}

func (e *Exchange) persistOrder(ctx context.Context, clientOrderID string) {
	order, ok := e.tracker.Get(clientOrderID)
	if !ok {
		return
	}
	data, err := order.MarshalJSON()
	if err != nil {
		observability.Log().Warn("serialize tracking state failed",
			observability.F("client_order_id", clientOrderID),
			observability.F("error", err.Error()))
		return
	}
	if err := e.store.SaveTrackingState(ctx, clientOrderID, data); err != nil {
		observability.Log().Warn("save tracking state failed",
			observability.F("client_order_id", clientOrderID),
			observability.F("error", err.Error()))
	}
}

func (e *Exchange) countReconnect(feed string) func() {
	return func() {
		e.metrics.FeedReconnects.Add(context.Background(), 1, telemetry.Feed(feed))
	}
}

func (e *Exchange) touchUserStream() {
	e.mu.Lock()
	e.lastUserData = time.Now().UTC()
	e.mu.Unlock()
}

func (e *Exchange) userStreamFresh() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastUserData.IsZero() {
		return false
	}
	return time.Since(e.lastUserData) < 2*e.cfg.Poll.ShortInterval
}
