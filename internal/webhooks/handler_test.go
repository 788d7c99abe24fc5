package webhooks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/gateway"
)

func TestHandler_HandleWebhook(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	post := func(h *Handler, gw, body string, headers http.Header) *httptest.ResponseRecorder {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /webhooks/{gateway}", h.HandleWebhook)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/"+gw, strings.NewReader(body))
		for k, v := range headers {
			req.Header[k] = v
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	t.Run("acknowledges a processed delivery", func(t *testing.T) {
		f := newFixture(t)
		body := chargeSuccess(f.reference)

		rec := post(NewHandler(f.reconciler, logger), gateway.PaystackName, body, signed(body))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var ack ackResponse
		if err := json.NewDecoder(rec.Body).Decode(&ack); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ack.Status != domain.WebhookProcessed {
			t.Errorf("expected processed, got %s", ack.Status)
		}
	})

	t.Run("bad signature gets a generic 401", func(t *testing.T) {
		f := newFixture(t)
		body := chargeSuccess(f.reference)
		headers := http.Header{}
		headers.Set(gateway.PaystackSignatureHeader, "00")

		rec := post(NewHandler(f.reconciler, logger), gateway.PaystackName, body, headers)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "mismatch") {
			t.Errorf("signature details must not leak: %s", rec.Body.String())
		}
	})

	t.Run("gateway outage asks for redelivery", func(t *testing.T) {
		f := newFixture(t)
		f.verifyStatus.Store("down")
		body := chargeSuccess(f.reference)

		rec := post(NewHandler(f.reconciler, logger), gateway.PaystackName, body, signed(body))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}
	})

	t.Run("unknown gateway", func(t *testing.T) {
		f := newFixture(t)
		rec := post(NewHandler(f.reconciler, logger), "stripe", `{}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}
