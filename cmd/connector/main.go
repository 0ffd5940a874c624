// Command connector runs the Zebpay exchange connector.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coachpo/zebpay/config"
	"github.com/coachpo/zebpay/internal/exchange"
	"github.com/coachpo/zebpay/internal/observability"
	"github.com/coachpo/zebpay/internal/persistence"
	"github.com/coachpo/zebpay/internal/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "connector ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if len(cfg.Pairs) == 0 {
		logger.Fatalf("no trading pairs configured; set ZEBPAY_PAIRS or the pairs key")
	}
	observability.SetLogger(observability.NewStdLogger(logger, cfg.Debug))

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTLPMetrics)
	if err != nil {
		logger.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	var store persistence.Store
	if cfg.PostgresDSN != "" {
		if err := persistence.Migrate(ctx, cfg.PostgresDSN); err != nil {
			logger.Fatalf("apply migrations: %v", err)
		}
		pgStore, err := persistence.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("connect persistence: %v", err)
		}
		store = pgStore
	} else {
		store = persistence.NewMemoryStore()
		logger.Printf("no postgres dsn configured, tracking states held in memory")
	}

	conn, err := exchange.New(cfg, exchange.Options{Store: store})
	if err != nil {
		logger.Fatalf("build connector: %v", err)
	}

	logger.Printf("connector starting: env=%s pairs=%d", cfg.Environment, len(cfg.Pairs))
	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("connector stopped: %v", err)
	}
	logger.Printf("connector stopped")
}
