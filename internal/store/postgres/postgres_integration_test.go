//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/inventory"
	"github.com/joao-fontenele/checkout-ledger/internal/notify"
	"github.com/joao-fontenele/checkout-ledger/internal/orders"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
	"github.com/joao-fontenele/checkout-ledger/internal/store/postgres"
	"github.com/joao-fontenele/checkout-ledger/internal/testutil"
)

type harness struct {
	store    *postgres.Store
	orders   *orders.Ledger
	recorder *notify.Recorder
}

func newHarness(t *testing.T, pg *testutil.PostgresSetup) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := postgres.New(pg.DB)
	inv := inventory.NewLedger(s, nil, logger)
	rec := &notify.Recorder{}
	ledger := orders.NewLedger(s, inv, notify.NewFormatter("Test Store"), notify.NewSender(rec, logger), nil, logger, "NGN")
	return &harness{store: s, orders: ledger, recorder: rec}
}

func cart(productID string, qty int, price int64) orders.CreateInput {
	return orders.CreateInput{
		Customer:        domain.Customer{Name: "Ada Obi", Email: "ada@example.com", Phone: "+2348011111111"},
		DeliveryAddress: "12 Marina Road, Lagos",
		Items:           []orders.ItemInput{{ProductID: productID, Quantity: qty, UnitPrice: price}},
	}
}

func TestCheckoutCommitsOrderAndStock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()
	h := newHarness(t, pg)

	order, err := h.orders.Create(ctx, cart("PROD-001", 3, 1500000))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalAmount != 4500000 {
		t.Errorf("expected total 4500000, got %d", order.TotalAmount)
	}

	stored, err := h.store.GetOrderByReference(ctx, order.Reference)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].ProductName != "Ankara Tote Bag" {
		t.Errorf("unexpected stored items %+v", stored.Items)
	}
	if stored.TotalAmount != stored.ItemsTotal() {
		t.Errorf("total %d does not match items %d", stored.TotalAmount, stored.ItemsTotal())
	}

	p, err := h.store.GetProduct(ctx, "PROD-001")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 97 {
		t.Errorf("expected stock 97, got %d", p.Stock)
	}

	entries, err := h.store.ListLedgerEntries(ctx, "PROD-001", 10)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != -3 || entries[0].PreviousStock != 100 || entries[0].NewStock != 97 {
		t.Errorf("unexpected ledger entries %+v", entries)
	}
	if entries[0].Reference != order.Reference {
		t.Errorf("expected ledger reference %s, got %s", order.Reference, entries[0].Reference)
	}
}

func TestCheckoutShortfallRollsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()
	h := newHarness(t, pg)

	in := cart("PROD-001", 1, 1500000)
	in.Items = append(in.Items, orders.ItemInput{ProductID: "PROD-004", Quantity: 1, UnitPrice: 900000})

	_, err := h.orders.Create(ctx, in)
	var stockErr *domain.StockError
	if !errors.As(err, &stockErr) || stockErr.ProductID != "PROD-004" {
		t.Fatalf("expected stock error for PROD-004, got %v", err)
	}

	p, err := h.store.GetProduct(ctx, "PROD-001")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 100 {
		t.Errorf("expected untouched stock 100, got %d", p.Stock)
	}
	entries, err := h.store.ListLedgerEntries(ctx, "PROD-001", 10)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()
	h := newHarness(t, pg)

	// PROD-003 is seeded with 8 units.
	const buyers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, shortfalls := 0, 0
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orders.Create(ctx, cart("PROD-003", 1, 350000))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrStock):
				shortfalls++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 8 || shortfalls != buyers-8 {
		t.Errorf("expected 8 orders and %d shortfalls, got %d and %d", buyers-8, succeeded, shortfalls)
	}

	p, err := h.store.GetProduct(ctx, "PROD-003")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 0 || p.InStock {
		t.Errorf("expected product sold out, got stock %d in_stock %v", p.Stock, p.InStock)
	}

	alerts, err := h.store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	kinds := map[domain.AlertKind]int{}
	for _, a := range alerts {
		if a.ProductID == "PROD-003" {
			kinds[a.Kind]++
		}
	}
	if kinds[domain.AlertOutOfStock] != 1 || kinds[domain.AlertLowStock] != 0 {
		t.Errorf("expected exactly one out_of_stock alert for PROD-003, got %v", kinds)
	}
}

func TestResolvePaymentHasOneWinner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()
	h := newHarness(t, pg)

	order, err := h.orders.Create(ctx, cart("PROD-002", 1, 2250000))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	payment := &domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Gateway:   "paystack",
		Reference: "PAY-" + uuid.NewString(),
		Amount:    order.TotalAmount,
		Currency:  "NGN",
		Status:    domain.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.WithTx(ctx, func(tx store.Tx) error { return tx.InsertPayment(ctx, payment) }); err != nil {
		t.Fatalf("insert payment: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.store.WithTx(ctx, func(tx store.Tx) error {
				won, err := tx.ResolvePayment(ctx, payment.ID, domain.PaymentResolution{
					Status:          domain.PaymentCompleted,
					GatewayResponse: json.RawMessage(`{"status":"success"}`),
					ResolvedAt:      time.Now().UTC(),
				})
				if err != nil {
					return err
				}
				if won {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return nil
			})
			if err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}

	got, err := h.store.GetPaymentByReference(ctx, payment.Reference)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if got.Status != domain.PaymentCompleted || got.ResolvedAt == nil {
		t.Errorf("expected completed payment with resolved_at, got %+v", got)
	}
}

func TestWebhookAuditRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := testutil.SetupPostgres(ctx, t)
	defer pg.Cleanup()
	h := newHarness(t, pg)

	d := &domain.WebhookDelivery{
		ID:         uuid.NewString(),
		Gateway:    "paystack",
		Payload:    []byte(`{"event":"charge.success"}`),
		Headers:    json.RawMessage(`{"Content-Type":["application/json"]}`),
		Status:     domain.WebhookReceived,
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.store.InsertWebhook(ctx, d); err != nil {
		t.Fatalf("insert webhook: %v", err)
	}

	processed := time.Now().UTC()
	d.EventType = "charge.success"
	d.Reference = "PAY-1"
	d.SignatureValid = true
	d.Status = domain.WebhookIgnored
	d.Error = "unknown payment reference"
	d.ProcessedAt = &processed
	if err := h.store.UpdateWebhook(ctx, d); err != nil {
		t.Fatalf("update webhook: %v", err)
	}

	got, err := h.store.GetWebhook(ctx, d.ID)
	if err != nil {
		t.Fatalf("get webhook: %v", err)
	}
	if got.Status != domain.WebhookIgnored || !got.SignatureValid || got.Reference != "PAY-1" || got.ProcessedAt == nil {
		t.Errorf("unexpected audit row %+v", got)
	}
	if string(got.Payload) != `{"event":"charge.success"}` {
		t.Errorf("payload not preserved: %s", got.Payload)
	}
}
