package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/checkout-ledger/internal/app"
	"github.com/joao-fontenele/checkout-ledger/internal/config"
	"github.com/joao-fontenele/checkout-ledger/internal/inventory"
	"github.com/joao-fontenele/checkout-ledger/internal/orders"
	"github.com/joao-fontenele/checkout-ledger/internal/payments"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
	"github.com/joao-fontenele/checkout-ledger/internal/webhooks"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Telemetry.Tracing {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, "checkout", cfg.Telemetry.ServiceVersion)
		if err != nil {
			logger.Error("failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer func() { _ = shutdownTracer(ctx) }()
	}

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("checkout", cfg.Telemetry.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	stock := inventory.NewHandler(a.Inventory, logger)
	orderHandler := orders.NewHandler(a.Orders, logger)
	paymentHandler := payments.NewHandler(a.Payments, logger)
	webhookHandler := webhooks.NewHandler(a.Reconciler, logger)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
	}

	route("POST /orders", orderHandler.HandleCreate)
	route("GET /orders/{id}", orderHandler.HandleGet)
	route("GET /orders/{id}/payments", paymentHandler.HandleListForOrder)
	route("PATCH /orders/{id}/status", orderHandler.HandleUpdateStatus)
	route("POST /orders/{id}/cancel", orderHandler.HandleCancel)

	route("GET /stock/{productId}", stock.HandleGetStock)
	route("GET /stock/{productId}/ledger", stock.HandleHistory)
	route("POST /stock/{productId}/adjust", stock.HandleAdjust)
	route("POST /stock/{productId}/receive", stock.HandleReceive)
	route("POST /stock/{productId}/remove", stock.HandleRemove)
	route("POST /stock/bulk", stock.HandleBulkUpdate)
	route("GET /alerts", stock.HandleListAlerts)

	route("POST /payments", paymentHandler.HandleInitialize)
	route("GET /payments/callback", paymentHandler.HandleCallback)
	route("GET /payments/{reference}", paymentHandler.HandleGet)
	route("POST /payments/{reference}/verify", paymentHandler.HandleVerify)
	route("POST /payments/{reference}/refund", paymentHandler.HandleRefund)
	route("POST /admin/payments/{id}/confirm", paymentHandler.HandleConfirm)
	route("POST /admin/payments/{id}/reject", paymentHandler.HandleReject)

	route("POST /webhooks/{gateway}", webhookHandler.HandleWebhook)

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      otelhttp.NewHandler(mux, "checkout", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("starting checkout service", "port", cfg.HTTP.Port, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
