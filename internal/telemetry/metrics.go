package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider,
// and starts the Go runtime instrumentation.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(newResource(serviceName, serviceVersion)),
	)

	otel.SetMeterProvider(mp)

	if err := runtime.Start(); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the business counters. A nil *Metrics records nothing.
type Metrics struct {
	ordersCreated      otelmetric.Int64Counter
	ordersRejected     otelmetric.Int64Counter
	stockMutations     otelmetric.Int64Counter
	paymentTransitions otelmetric.Int64Counter
	webhooksReceived   otelmetric.Int64Counter
}

func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ordersCreated, err = meter.Int64Counter("orders_created_total",
		otelmetric.WithDescription("Orders committed at checkout")); err != nil {
		return nil, err
	}
	if m.ordersRejected, err = meter.Int64Counter("orders_rejected_total",
		otelmetric.WithDescription("Checkouts rolled back, by reason")); err != nil {
		return nil, err
	}
	if m.stockMutations, err = meter.Int64Counter("stock_mutations_total",
		otelmetric.WithDescription("Inventory ledger entries, by mutation type")); err != nil {
		return nil, err
	}
	if m.paymentTransitions, err = meter.Int64Counter("payment_transitions_total",
		otelmetric.WithDescription("Payments leaving pending, by gateway and status")); err != nil {
		return nil, err
	}
	if m.webhooksReceived, err = meter.Int64Counter("webhooks_received_total",
		otelmetric.WithDescription("Inbound gateway callbacks, by gateway and outcome")); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) OrderCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
}

func (m *Metrics) OrderRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) StockMutation(ctx context.Context, mutationType string) {
	if m == nil {
		return
	}
	m.stockMutations.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("type", mutationType)))
}

func (m *Metrics) PaymentTransition(ctx context.Context, gateway, status string) {
	if m == nil {
		return
	}
	m.paymentTransitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("status", status),
	))
}

func (m *Metrics) WebhookReceived(ctx context.Context, gateway, outcome string) {
	if m == nil {
		return
	}
	m.webhooksReceived.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("outcome", outcome),
	))
}
