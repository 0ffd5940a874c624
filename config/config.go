// Package config centralises runtime configuration for the Zebpay connector.
// All components receive their settings by handle; there are no module-level
// URL or limiter singletons.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where the connector operates.
type Environment string

const (
	// EnvProd targets the production Zebpay exchange.
	EnvProd Environment = "prod"
	// EnvSandbox targets the Zebpay sandbox.
	EnvSandbox Environment = "sandbox"
)

// Credentials captures the API credentials used for authenticated requests.
type Credentials struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	APISecret    string `yaml:"apiSecret"`
}

// RequestBudget configures the shared weighted rate limiter for REST calls.
type RequestBudget struct {
	Weight int           `yaml:"weight"`
	Period time.Duration `yaml:"period"`
}

// StreamSettings configures websocket feed behaviour.
type StreamSettings struct {
	FeedURL        string        `yaml:"feedUrl"`
	MessageTimeout time.Duration `yaml:"messageTimeout"`
	PingTimeout    time.Duration `yaml:"pingTimeout"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
}

// PollSettings configures the REST reconciliation cadence.
type PollSettings struct {
	ShortInterval       time.Duration `yaml:"shortInterval"`
	LongInterval        time.Duration `yaml:"longInterval"`
	OrderStatusInterval time.Duration `yaml:"orderStatusInterval"`
	SnapshotInterval    time.Duration `yaml:"snapshotInterval"`
	SnapshotPacing      time.Duration `yaml:"snapshotPacing"`
	TradingRuleInterval time.Duration `yaml:"tradingRuleInterval"`
}

// Settings contains the connector configuration tree.
type Settings struct {
	Environment Environment    `yaml:"environment"`
	RESTBaseURL string         `yaml:"restBaseUrl"`
	Country     string         `yaml:"country"`
	Pairs       []string       `yaml:"pairs"`
	Credentials Credentials    `yaml:"credentials"`
	HTTPTimeout time.Duration  `yaml:"httpTimeout"`
	Stream      StreamSettings `yaml:"stream"`
	Poll        PollSettings   `yaml:"poll"`
	Budget      RequestBudget  `yaml:"budget"`
	PostgresDSN string         `yaml:"postgresDsn"`
	OTLPMetrics string         `yaml:"otlpMetricsEndpoint"`
	Debug       bool           `yaml:"debug"`
}

// Default returns the default connector configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		RESTBaseURL: "https://www.zebapi.com/pro/v1",
		Country:     "in",
		HTTPTimeout: 10 * time.Second,
		Stream: StreamSettings{
			FeedURL:        "wss://ws-feed.zebpay.com",
			MessageTimeout: 30 * time.Second,
			PingTimeout:    10 * time.Second,
			ReconnectDelay: 30 * time.Second,
		},
		Poll: PollSettings{
			ShortInterval:       11 * time.Second,
			LongInterval:        120 * time.Second,
			OrderStatusInterval: 45 * time.Second,
			SnapshotInterval:    time.Hour,
			SnapshotPacing:      200 * time.Millisecond,
			TradingRuleInterval: time.Minute,
		},
		Budget: RequestBudget{Weight: 10, Period: time.Second},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("ZEBPAY_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
		if cfg.Environment == EnvSandbox {
			cfg.RESTBaseURL = "https://sandbox.zebapi.com/pro/v1"
		}
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_REST_BASE_URL")); v != "" {
		cfg.RESTBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_WS_FEED_URL")); v != "" {
		cfg.Stream.FeedURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_COUNTRY")); v != "" {
		cfg.Country = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_PAIRS")); v != "" {
		cfg.Pairs = splitPairs(v)
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_CLIENT_ID")); v != "" {
		cfg.Credentials.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_CLIENT_SECRET")); v != "" {
		cfg.Credentials.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_API_SECRET")); v != "" {
		cfg.Credentials.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_HTTP_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_REQUEST_WEIGHT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Budget.Weight = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_REQUEST_PERIOD")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			cfg.Budget.Period = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_OTLP_METRICS_ENDPOINT")); v != "" {
		cfg.OTLPMetrics = v
	}
	if v := strings.TrimSpace(os.Getenv("ZEBPAY_DEBUG")); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return cfg
}

func splitPairs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToUpper(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
