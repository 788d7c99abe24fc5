package webhooks

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/gateway"
	"github.com/joao-fontenele/checkout-ledger/internal/inventory"
	"github.com/joao-fontenele/checkout-ledger/internal/notify"
	"github.com/joao-fontenele/checkout-ledger/internal/orders"
	"github.com/joao-fontenele/checkout-ledger/internal/payments"
	"github.com/joao-fontenele/checkout-ledger/internal/store/memory"
)

const secret = "sk_test_webhooks"

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDeduper) Seen(_ context.Context, gw, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[gw+":"+ref], nil
}

func (d *memoryDeduper) Mark(_ context.Context, gw, ref string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[gw+":"+ref] = true
	return nil
}

type fixture struct {
	store      *memory.Store
	reconciler *Reconciler
	recorder   *notify.Recorder
	reference  string
	verifyHits *atomic.Int32
	// verifyStatus is what the fake processor reports for the transaction.
	verifyStatus *atomic.Value
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifyHits := &atomic.Int32{}
	verifyStatus := &atomic.Value{}
	verifyStatus.Store("success")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/transaction/initialize":
			_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/x"}}`))
		case strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
			verifyHits.Add(1)
			status := verifyStatus.Load().(string)
			if status == "down" {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":false,"message":"Service unavailable"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"status":"` + status + `","amount":300000,"currency":"NGN"}}`))
		}
	}))
	t.Cleanup(server.Close)

	st := memory.New()
	st.PutProduct(domain.Product{ID: "PROD-A", Name: "Adire Scarf", Price: 100000, Stock: 5})

	recorder := &notify.Recorder{}
	sender := notify.NewSender(recorder, logger)
	formatter := notify.NewFormatter("Test Store")
	registry := gateway.NewRegistry(
		gateway.NewPaystack(server.URL, secret, server.Client()),
		gateway.NewFlutterwave(server.URL, "flw", "flw-hash", server.Client()),
		gateway.NewBankTransfer(""),
	)
	service := payments.NewService(st, registry, nil, formatter, sender, nil, logger, "")
	ledger := orders.NewLedger(st, inventory.NewLedger(st, nil, logger), formatter, sender, nil, logger, "NGN")

	order, err := ledger.Create(context.Background(), orders.CreateInput{
		Customer:        domain.Customer{Name: "Tunde", Email: "tunde@example.com"},
		DeliveryAddress: "3 Allen Avenue, Ikeja",
		Items:           []orders.ItemInput{{ProductID: "PROD-A", Quantity: 3, UnitPrice: 100000}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	res, err := service.Initialize(context.Background(), payments.InitializeInput{OrderID: order.ID, Method: gateway.PaystackName})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	return &fixture{
		store:        st,
		reconciler:   NewReconciler(st, registry, service, nil, logger, opts...),
		recorder:     recorder,
		reference:    res.Reference,
		verifyHits:   verifyHits,
		verifyStatus: verifyStatus,
	}
}

func signed(body string) http.Header {
	h := http.Header{}
	h.Set(gateway.PaystackSignatureHeader, hex.EncodeToString(gateway.PaystackSignature(secret, []byte(body))))
	return h
}

func chargeSuccess(reference string) string {
	return `{"event":"charge.success","data":{"reference":"` + reference + `","amount":300000}}`
}

func TestReconciler_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := chargeSuccess(f.reference)

	outcome, err := f.reconciler.Handle(ctx, gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if outcome != domain.WebhookProcessed {
		t.Errorf("expected processed, got %s", outcome)
	}

	payment, _ := f.store.GetPaymentByReference(ctx, f.reference)
	if payment.Status != domain.PaymentCompleted {
		t.Fatalf("expected completed payment, got %s", payment.Status)
	}

	outcome, err = f.reconciler.Handle(ctx, gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != domain.WebhookDuplicate {
		t.Errorf("expected duplicate, got %s", outcome)
	}

	if got := f.verifyHits.Load(); got != 1 {
		t.Errorf("expected one verify call, got %d", got)
	}
	if got := f.recorder.Count(domain.NotificationOrderPaid); got != 1 {
		t.Errorf("expected one paid notification, got %d", got)
	}

	audits := f.store.Webhooks(gateway.PaystackName)
	if len(audits) != 2 {
		t.Fatalf("expected both deliveries audited, got %d", len(audits))
	}
	statuses := map[domain.WebhookStatus]int{}
	for _, a := range audits {
		statuses[a.Status]++
		if string(a.Payload) != body {
			t.Errorf("expected raw payload kept, got %s", a.Payload)
		}
		if !a.SignatureValid || a.ProcessedAt == nil {
			t.Errorf("expected a verified, finished audit row, got %+v", a)
		}
	}
	if statuses[domain.WebhookProcessed] != 1 || statuses[domain.WebhookDuplicate] != 1 {
		t.Errorf("unexpected audit statuses %v", statuses)
	}
}

func TestReconciler_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	body := chargeSuccess(f.reference)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body)); err != nil {
				t.Errorf("handle: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.recorder.Count(domain.NotificationOrderPaid); got != 1 {
		t.Errorf("expected one paid notification, got %d", got)
	}
}

func TestReconciler_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := chargeSuccess(f.reference)
	headers := http.Header{}
	headers.Set(gateway.PaystackSignatureHeader, hex.EncodeToString(gateway.PaystackSignature("wrong", []byte(body))))

	outcome, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), headers)
	if !errors.Is(err, domain.ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
	if outcome != domain.WebhookRejected {
		t.Errorf("expected rejected, got %s", outcome)
	}

	payment, _ := f.store.GetPaymentByReference(context.Background(), f.reference)
	if payment.Status != domain.PaymentPending {
		t.Errorf("payment must stay pending, got %s", payment.Status)
	}
	if got := f.verifyHits.Load(); got != 0 {
		t.Errorf("expected no verify call, got %d", got)
	}

	audits := f.store.Webhooks(gateway.PaystackName)
	if len(audits) != 1 || audits[0].SignatureValid || audits[0].Status != domain.WebhookRejected {
		t.Errorf("expected one rejected audit row, got %+v", audits)
	}
}

func TestReconciler_Ignores(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "non-payment event", body: `{"event":"transfer.success","data":{"reference":"TRF-1"}}`},
		{name: "unknown reference", body: chargeSuccess("PAY-UNKNOWN")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			outcome, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(tt.body), signed(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome != domain.WebhookIgnored {
				t.Errorf("expected ignored, got %s", outcome)
			}
			if got := f.verifyHits.Load(); got != 0 {
				t.Errorf("expected no verify call, got %d", got)
			}
		})
	}
}

func TestReconciler_PaymentOfAnotherGateway(t *testing.T) {
	f := newFixture(t)
	body := `{"event":"charge.completed","data":{"tx_ref":"` + f.reference + `"}}`
	headers := http.Header{}
	headers.Set(gateway.FlutterwaveSignatureHeader, "flw-hash")

	outcome, err := f.reconciler.Handle(context.Background(), gateway.FlutterwaveName, []byte(body), headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.WebhookIgnored {
		t.Errorf("expected ignored, got %s", outcome)
	}
}

func TestReconciler_FailedVerification(t *testing.T) {
	f := newFixture(t)
	f.verifyStatus.Store("down")
	body := chargeSuccess(f.reference)

	outcome, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body))
	if !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if outcome != domain.WebhookFailed {
		t.Errorf("expected failed, got %s", outcome)
	}

	f.verifyStatus.Store("success")
	outcome, err = f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if outcome != domain.WebhookProcessed {
		t.Errorf("expected redelivery to be processed, got %s", outcome)
	}
}

func TestReconciler_UnsettledPaymentStaysPending(t *testing.T) {
	f := newFixture(t)
	f.verifyStatus.Store("ongoing")
	body := chargeSuccess(f.reference)

	outcome, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.WebhookIgnored {
		t.Errorf("expected ignored, got %s", outcome)
	}
	payment, _ := f.store.GetPaymentByReference(context.Background(), f.reference)
	if payment.Status != domain.PaymentPending {
		t.Errorf("expected pending, got %s", payment.Status)
	}
}

func TestReconciler_AbandonedThenPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := chargeSuccess(f.reference)

	f.verifyStatus.Store("abandoned")
	outcome, err := f.reconciler.Handle(ctx, gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("early delivery: %v", err)
	}
	if outcome != domain.WebhookIgnored {
		t.Errorf("expected ignored while checkout is open, got %s", outcome)
	}
	payment, _ := f.store.GetPaymentByReference(ctx, f.reference)
	if payment.Status != domain.PaymentPending {
		t.Fatalf("expected pending after abandoned verify, got %s", payment.Status)
	}

	f.verifyStatus.Store("success")
	outcome, err = f.reconciler.Handle(ctx, gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if outcome != domain.WebhookProcessed {
		t.Errorf("expected processed, got %s", outcome)
	}

	payment, _ = f.store.GetPaymentByReference(ctx, f.reference)
	if payment.Status != domain.PaymentCompleted {
		t.Errorf("expected completed, got %s", payment.Status)
	}
	order, _ := f.store.GetOrder(ctx, payment.OrderID)
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("expected order paid, got %s", order.PaymentStatus)
	}
}

func TestReconciler_Deduper(t *testing.T) {
	dedup := &memoryDeduper{}
	f := newFixture(t, WithDeduper(dedup))
	body := chargeSuccess(f.reference)

	if _, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if seen, _ := dedup.Seen(context.Background(), gateway.PaystackName, f.reference); !seen {
		t.Fatal("expected reference to be marked after the terminal transition")
	}

	outcome, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body))
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != domain.WebhookDuplicate {
		t.Errorf("expected duplicate, got %s", outcome)
	}
}

func TestReconciler_AuditFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("InsertWebhook", errors.New("disk full"))
	body := chargeSuccess(f.reference)

	_, err := f.reconciler.Handle(context.Background(), gateway.PaystackName, []byte(body), signed(body))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got := f.verifyHits.Load(); got != 0 {
		t.Errorf("nothing must be applied without an audit row, got %d verify calls", got)
	}
}
