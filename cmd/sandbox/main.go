package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/checkout-ledger/internal/config"
	"github.com/joao-fontenele/checkout-ledger/internal/sandbox"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	handler := sandbox.NewHandler(sandbox.Config{
		PublicURL:       cfg.Sandbox.PublicURL,
		WebhookURL:      cfg.Sandbox.WebhookURL,
		PaystackSecret:  cfg.Gateways.Paystack.SecretKey,
		FlutterwaveHash: cfg.Gateways.Flutterwave.WebhookHash,
	}, &http.Client{Timeout: 10 * time.Second}, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Sandbox.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting payment sandbox", "port", cfg.Sandbox.Port, "webhook_url", cfg.Sandbox.WebhookURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
