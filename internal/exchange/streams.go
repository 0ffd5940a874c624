package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/internal/normalizer"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/schema"
	"github.com/coachpo/zebpay/internal/telemetry"
)

type subscribeFrame struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Pairs    []string `json:"pairs,omitempty"`
	APIKey   string   `json:"apiKey,omitempty"`
}

func (e *Exchange) marketSubscriptions() [][]byte {
	frame, err := json.Marshal(subscribeFrame{
		Type:     "subscribe",
		Channels: []string{"l2orderbook", "trades"},
		Pairs:    e.cfg.Pairs,
	})
	if err != nil {
		return nil
	}
	return [][]byte{frame}
}

func (e *Exchange) userSubscriptions() [][]byte {
	frame, err := json.Marshal(subscribeFrame{
		Type:     "subscribe",
		Channels: []string{"orders", "balances"},
		APIKey:   e.cfg.Credentials.ClientID,
	})
	if err != nil {
		return nil
	}
	return [][]byte{frame}
}

// handleMarketFrame normalizes one market data frame. Discardable frames are
// logged and skipped; anything unrecognized or an exchange error frame is
// fatal so the supervisor reconnects.
func (e *Exchange) handleMarketFrame(ctx context.Context, frame []byte, receivedAt time.Time) error {
	msg, err := normalizer.Normalize(frame, receivedAt)
	if err != nil {
		if errors.Is(err, normalizer.ErrDiscard) {
			e.metrics.MessagesDiscarded.Add(ctx, 1)
			observability.Log().Debug("market frame discarded",
				observability.F("error", err.Error()))
			return nil
		}
		return err
	}
	if msg == nil {
		return nil
	}
	e.metrics.MessagesNormalized.Add(ctx, 1, telemetry.Pair(msg.Instrument))

	switch msg.Type {
	case schema.MessageDiff, schema.MessageSnapshot:
		applied := e.books.Handle(msg)
		if msg.Type == schema.MessageDiff {
			if applied {
				e.metrics.BookDiffsApplied.Add(ctx, 1, telemetry.Pair(msg.Instrument))
			} else {
				e.metrics.BookDiffsDropped.Add(ctx, 1, telemetry.Pair(msg.Instrument))
			}
		}
	case schema.MessageTrade:
		payload, ok := msg.Payload.(schema.TradePayload)
		if !ok {
			return nil
		}
		if price, err := decimal.NewFromString(payload.Price); err == nil {
			e.mu.Lock()
			e.lastTrade[msg.Instrument] = price
			e.mu.Unlock()
		}
	case schema.MessageError:
		payload, _ := msg.Payload.(schema.ErrorPayload)
		return fmt.Errorf("exchange stream error %s: %s", payload.Code, payload.Message)
	}
	return nil
}

// handleUserFrame routes private stream messages to the order tracker and the
// balance table.
func (e *Exchange) handleUserFrame(ctx context.Context, frame []byte, receivedAt time.Time) error {
	msg, err := normalizer.Normalize(frame, receivedAt)
	if err != nil {
		if errors.Is(err, normalizer.ErrDiscard) {
			e.metrics.MessagesDiscarded.Add(ctx, 1)
			observability.Log().Debug("user frame discarded",
				observability.F("error", err.Error()))
			return nil
		}
		return err
	}
	if msg == nil {
		return nil
	}
	e.touchUserStream()

	switch msg.Type {
	case schema.MessageOrderUpdate:
		payload, ok := msg.Payload.(schema.OrderUpdatePayload)
		if !ok {
			return nil
		}
		e.tracker.ApplyUpdate(payload)
	case schema.MessageBalanceUpdate:
		payload, ok := msg.Payload.(schema.BalancePayload)
		if !ok {
			return nil
		}
		e.mu.Lock()
		e.balances[payload.Asset] = payload
		e.mu.Unlock()
	case schema.MessageError:
		payload, _ := msg.Payload.(schema.ErrorPayload)
		return fmt.Errorf("exchange stream error %s: %s", payload.Code, payload.Message)
	}
	return nil
}
