// Package telemetry configures the OpenTelemetry meter provider and exposes
// the connector's metric instruments.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	apimetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "zebpay-connector"

// Init configures the global meter provider. An empty endpoint installs a
// no-op provider so instruments stay cheap when metrics are disabled.
func Init(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		otel.SetMeterProvider(noop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	host, insecure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}

func parseEndpoint(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = raw
	}
	insecure := parsed.Scheme != "https"
	return host, insecure, nil
}

// Metrics bundles the connector's instruments.
type Metrics struct {
	MessagesNormalized apimetric.Int64Counter
	MessagesDiscarded  apimetric.Int64Counter
	BookDiffsApplied   apimetric.Int64Counter
	BookDiffsDropped   apimetric.Int64Counter
	OrderEvents        apimetric.Int64Counter
	FeedReconnects     apimetric.Int64Counter
}

// NewMetrics creates the connector instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("zebpay.connector")
	normalized, err := meter.Int64Counter("zebpay_messages_normalized_total",
		apimetric.WithDescription("Feed messages normalized into canonical form"))
	if err != nil {
		return nil, err
	}
	discarded, err := meter.Int64Counter("zebpay_messages_discarded_total",
		apimetric.WithDescription("Feed messages discarded for missing required fields"))
	if err != nil {
		return nil, err
	}
	applied, err := meter.Int64Counter("zebpay_book_diffs_applied_total",
		apimetric.WithDescription("Order book diffs applied"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("zebpay_book_diffs_dropped_total",
		apimetric.WithDescription("Order book diffs dropped as stale"))
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("zebpay_order_events_total",
		apimetric.WithDescription("Order lifecycle events published"))
	if err != nil {
		return nil, err
	}
	reconnects, err := meter.Int64Counter("zebpay_feed_reconnects_total",
		apimetric.WithDescription("Websocket feed reconnects"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		MessagesNormalized: normalized,
		MessagesDiscarded:  discarded,
		BookDiffsApplied:   applied,
		BookDiffsDropped:   dropped,
		OrderEvents:        events,
		FeedReconnects:     reconnects,
	}, nil
}

// Pair returns the trading pair attribute used across instruments.
func Pair(pair string) apimetric.AddOption {
	return apimetric.WithAttributes(attribute.String("pair", pair))
}

// EventType returns the lifecycle event type attribute.
func EventType(eventType string) apimetric.AddOption {
	return apimetric.WithAttributes(attribute.String("event", eventType))
}

// Feed returns the websocket feed name attribute.
func Feed(name string) apimetric.AddOption {
	return apimetric.WithAttributes(attribute.String("feed", name))
}
