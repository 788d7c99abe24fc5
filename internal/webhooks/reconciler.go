// Package webhooks reconciles asynchronous gateway callbacks with local
// payment state. A callback is never trusted for the amount or outcome: once
// authenticated it only triggers a verify against the gateway's API.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/gateway"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
)

type Outcome = domain.WebhookStatus

// Verifier obtains ground truth for a payment reference and applies it.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*domain.Payment, error)
}

// Deduper is an optional fast path that remembers references already
// settled. It may forget; the payment row decides.
type Deduper interface {
	Seen(ctx context.Context, gateway, reference string) (bool, error)
	Mark(ctx context.Context, gateway, reference string) error
}

type Reconciler struct {
	store    store.Store
	gateways *gateway.Registry
	verifier Verifier
	dedup    Deduper
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Reconciler)

func WithDeduper(d Deduper) Option {
	return func(r *Reconciler) { r.dedup = d }
}

func NewReconciler(s store.Store, gateways *gateway.Registry, verifier Verifier, metrics *telemetry.Metrics, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    s,
		gateways: gateways,
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle records the callback, authenticates it and, for a payment event on
// a still-pending payment, verifies the payment with the gateway. A nil
// error means the callback should be acknowledged.
func (r *Reconciler) Handle(ctx context.Context, gatewayName string, body []byte, headers http.Header) (Outcome, error) {
	delivery := &domain.WebhookDelivery{
		ID:         uuid.NewString(),
		Gateway:    gatewayName,
		Payload:    body,
		Headers:    encodeHeaders(headers),
		Status:     domain.WebhookReceived,
		ReceivedAt: r.now(),
	}
	if err := r.store.InsertWebhook(ctx, delivery); err != nil {
		r.logger.Error("failed to record webhook", "error", err, "gateway", gatewayName)
		r.metrics.WebhookReceived(ctx, gatewayName, string(domain.WebhookFailed))
		return domain.WebhookFailed, err
	}

	outcome, err := r.reconcile(ctx, gatewayName, body, headers, delivery)
	r.finish(ctx, delivery, outcome, err)
	return outcome, err
}

func (r *Reconciler) reconcile(ctx context.Context, gatewayName string, body []byte, headers http.Header, delivery *domain.WebhookDelivery) (Outcome, error) {
	gw, err := r.gateways.Get(gatewayName)
	if err != nil {
		return domain.WebhookRejected, err
	}

	if err := gw.VerifySignature(body, headers); err != nil {
		r.logger.Warn("webhook signature rejected", "error", err, "gateway", gatewayName, "webhook_id", delivery.ID)
		return domain.WebhookRejected, err
	}
	delivery.SignatureValid = true

	ev, err := gw.ParseEvent(body)
	if err != nil {
		return domain.WebhookFailed, err
	}
	delivery.EventType = ev.Type
	delivery.Reference = ev.Reference

	if !ev.Payment || ev.Reference == "" {
		r.logger.Info("webhook event ignored", "gateway", gatewayName, "event_type", ev.Type)
		return domain.WebhookIgnored, nil
	}

	if r.dedup != nil {
		seen, err := r.dedup.Seen(ctx, gatewayName, ev.Reference)
		if err != nil {
			r.logger.Warn("dedup lookup failed", "error", err, "reference", ev.Reference)
		} else if seen {
			return domain.WebhookDuplicate, nil
		}
	}

	payment, err := r.store.GetPaymentByReference(ctx, ev.Reference)
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Warn("webhook for unknown payment", "gateway", gatewayName, "reference", ev.Reference)
		return domain.WebhookIgnored, nil
	}
	if err != nil {
		return domain.WebhookFailed, err
	}
	if payment.Gateway != gw.Name() {
		r.logger.Warn("webhook gateway does not own payment", "gateway", gatewayName, "payment_gateway", payment.Gateway, "reference", ev.Reference)
		return domain.WebhookIgnored, nil
	}
	if payment.Status.Terminal() {
		r.mark(ctx, gatewayName, ev.Reference)
		return domain.WebhookDuplicate, nil
	}

	payment, err = r.verifier.Verify(ctx, ev.Reference)
	if err != nil {
		return domain.WebhookFailed, err
	}
	if !payment.Status.Terminal() {
		delivery.Error = "payment not settled at gateway"
		return domain.WebhookIgnored, nil
	}

	r.mark(ctx, gatewayName, ev.Reference)
	r.logger.Info("webhook reconciled", "gateway", gatewayName, "reference", ev.Reference, "payment_status", payment.Status)
	return domain.WebhookProcessed, nil
}

func (r *Reconciler) mark(ctx context.Context, gatewayName, reference string) {
	if r.dedup == nil {
		return
	}
	if err := r.dedup.Mark(ctx, gatewayName, reference); err != nil {
		r.logger.Warn("dedup mark failed", "error", err, "reference", reference)
	}
}

func (r *Reconciler) finish(ctx context.Context, delivery *domain.WebhookDelivery, outcome Outcome, err error) {
	at := r.now()
	delivery.Status = outcome
	delivery.ProcessedAt = &at
	if err != nil {
		delivery.Error = err.Error()
	}

	if uerr := r.store.UpdateWebhook(context.WithoutCancel(ctx), delivery); uerr != nil {
		r.logger.Error("failed to update webhook audit", "error", uerr, "webhook_id", delivery.ID)
	}
	r.metrics.WebhookReceived(ctx, delivery.Gateway, string(outcome))
}

func encodeHeaders(h http.Header) json.RawMessage {
	if len(h) == 0 {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(h)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
