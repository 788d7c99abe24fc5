package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/checkout-ledger/internal/config"
	"github.com/joao-fontenele/checkout-ledger/internal/messaging"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
	"github.com/joao-fontenele/checkout-ledger/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Error("kafka.brokers is required")
		os.Exit(1)
	}
	if cfg.Notifier.RelayURL == "" {
		logger.Error("notifier.relay_url is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Tracing {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, "notifier", cfg.Telemetry.ServiceVersion)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer func() { _ = shutdownTracer(context.Background()) }()
	}

	consumer := messaging.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, cfg.Kafka.GroupID)
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   cfg.Notifier.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	relay := worker.NewNotificationRelay(cfg.Notifier.RelayURL, httpClient, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification relay", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.NotificationsTopic)

	if err := consumer.Consume(ctx, relay.Handle); err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
