// Package app assembles the checkout components from configuration. Both
// the HTTP service and the admin CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/checkout-ledger/internal/config"
	"github.com/joao-fontenele/checkout-ledger/internal/gateway"
	"github.com/joao-fontenele/checkout-ledger/internal/inventory"
	"github.com/joao-fontenele/checkout-ledger/internal/messaging"
	"github.com/joao-fontenele/checkout-ledger/internal/notify"
	"github.com/joao-fontenele/checkout-ledger/internal/orders"
	"github.com/joao-fontenele/checkout-ledger/internal/payments"
	"github.com/joao-fontenele/checkout-ledger/internal/redisx"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
	"github.com/joao-fontenele/checkout-ledger/internal/store/memory"
	"github.com/joao-fontenele/checkout-ledger/internal/store/postgres"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
	"github.com/joao-fontenele/checkout-ledger/internal/webhooks"
)

type App struct {
	Store      store.Store
	Gateways   *gateway.Registry
	Inventory  *inventory.Ledger
	Orders     *orders.Ledger
	Payments   *payments.Service
	Reconciler *webhooks.Reconciler
	Metrics    *telemetry.Metrics

	closers []func() error
	logger  *slog.Logger
}

// New wires every component. Call Close when done; it releases the
// database, broker and cache connections New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	metrics, err := telemetry.NewMetrics(otel.Meter("checkout"))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	a.Metrics = metrics

	if err := a.openStore(ctx, cfg.Store); err != nil {
		_ = a.Close()
		return nil, err
	}

	dispatcher := a.dispatcher(cfg.Kafka)
	formatter := notify.NewFormatter(cfg.Checkout.StoreName)
	sender := notify.NewSender(dispatcher, logger)

	fees, err := payments.FeeScheduleFromConfig(cfg.Fees)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("invalid fee schedule: %w", err)
	}

	a.Gateways = Gateways(cfg.Gateways, logger)
	a.Inventory = inventory.NewLedger(a.Store, metrics, logger, inventory.WithDefaultThreshold(cfg.Checkout.LowStockThreshold))
	a.Orders = orders.NewLedger(a.Store, a.Inventory, formatter, sender, metrics, logger, cfg.Checkout.Currency)
	a.Payments = payments.NewService(a.Store, a.Gateways, fees, formatter, sender, metrics, logger, cfg.Gateways.CallbackURL)

	var opts []webhooks.Option
	if cfg.Redis.Addr != "" {
		rdb := redisx.New(cfg.Redis.Addr)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The dedup cache is a fast path; run without it.
			logger.Warn("redis unavailable, webhook dedup cache disabled", "error", err, "addr", cfg.Redis.Addr)
			_ = rdb.Close()
		} else {
			a.closers = append(a.closers, rdb.Close)
			opts = append(opts, webhooks.WithDeduper(redisx.NewDeduper(rdb, cfg.Redis.DedupTTL)))
		}
	}
	a.Reconciler = webhooks.NewReconciler(a.Store, a.Gateways, a.Payments, metrics, logger, opts...)

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.StoreConfig) error {
	switch cfg.Driver {
	case "memory":
		a.logger.Warn("using in-memory store, data is lost on exit")
		a.Store = memory.New()
		return nil
	case "postgres":
		db, err := telemetry.OpenDB(cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.Store = postgres.New(db)
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (a *App) dispatcher(cfg config.KafkaConfig) notify.Dispatcher {
	if len(cfg.Brokers) == 0 {
		a.logger.Info("no kafka brokers configured, notifications are logged only")
		return notify.NewLogDispatcher(a.logger)
	}
	producer := messaging.NewProducer(cfg.Brokers, cfg.NotificationsTopic, "checkout")
	a.closers = append(a.closers, producer.Close)
	return notify.NewKafkaDispatcher(producer)
}

// Gateways registers the payment methods the configuration enables. Manual
// methods are always available.
func Gateways(cfg config.GatewaysConfig, logger *slog.Logger) *gateway.Registry {
	client := gateway.NewHTTPClient(cfg.Timeout)

	gws := []gateway.Gateway{
		gateway.NewBankTransfer(cfg.Manual.BankInstructions),
		gateway.NewCashOnDelivery(cfg.Manual.CODInstructions),
	}
	if cfg.Paystack.SecretKey != "" {
		gws = append(gws, gateway.NewPaystack(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, client))
	}
	if cfg.Flutterwave.SecretKey != "" {
		gws = append(gws, gateway.NewFlutterwave(cfg.Flutterwave.BaseURL, cfg.Flutterwave.SecretKey, cfg.Flutterwave.WebhookHash, client))
	}
	if cfg.Chat.Phone != "" {
		gws = append(gws, gateway.NewChat(cfg.Chat.Phone))
	}

	registry := gateway.NewRegistry(gws...)
	logger.Info("payment methods enabled", "methods", registry.Names())
	return registry
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
