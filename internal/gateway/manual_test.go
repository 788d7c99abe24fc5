package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

func TestManual_Initialize(t *testing.T) {
	m := NewBankTransfer("Pay into account 0123456789.")
	res, err := m.Initialize(context.Background(), InitRequest{Reference: "PAY-1", Amount: 1250000, Currency: "NGN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RedirectURL != "" {
		t.Errorf("manual methods do not redirect, got %q", res.RedirectURL)
	}
	for _, want := range []string{"0123456789", "PAY-1", "NGN 12,500.00"} {
		if !strings.Contains(res.Instructions, want) {
			t.Errorf("instructions %q missing %q", res.Instructions, want)
		}
	}
	if !m.Kind().RequiresOperator() {
		t.Error("expected manual payments to require an operator")
	}
}

func TestManual_Verify(t *testing.T) {
	for _, g := range []Gateway{NewBankTransfer(""), NewCashOnDelivery(""), NewChat("+2348000000000")} {
		t.Run(g.Name(), func(t *testing.T) {
			_, err := g.Verify(context.Background(), "PAY-1")
			if !errors.Is(err, domain.ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}
			if err := g.VerifySignature([]byte(`{}`), http.Header{}); !errors.Is(err, domain.ErrSignature) {
				t.Errorf("expected ErrSignature, got %v", err)
			}
			res, err := g.Refund(context.Background(), RefundRequest{Reference: "PAY-1"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Success {
				t.Error("manual refunds are advisory only")
			}
		})
	}
}

func TestChat_Initialize(t *testing.T) {
	t.Run("returns a prefilled chat link", func(t *testing.T) {
		c := NewChat("+234 800 000 0000")
		res, err := c.Initialize(context.Background(), InitRequest{
			Reference:      "PAY-1",
			OrderReference: "ORD-20260101-ABCDEF12",
			Amount:         500000,
			Currency:       "NGN",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		u, err := url.Parse(res.RedirectURL)
		if err != nil {
			t.Fatalf("invalid redirect url: %v", err)
		}
		if u.Host != "wa.me" || u.Path != "/2348000000000" {
			t.Errorf("unexpected chat link %q", res.RedirectURL)
		}
		if text := u.Query().Get("text"); !strings.Contains(text, "ORD-20260101-ABCDEF12") || !strings.Contains(text, "NGN 5,000.00") {
			t.Errorf("unexpected prefilled text %q", text)
		}
		if c.Kind() != KindChat {
			t.Errorf("expected chat kind, got %s", c.Kind())
		}
	})

	t.Run("unconfigured phone is a gateway error", func(t *testing.T) {
		_, err := NewChat("").Initialize(context.Background(), InitRequest{Reference: "PAY-1"})
		if !errors.Is(err, domain.ErrGateway) {
			t.Errorf("expected ErrGateway, got %v", err)
		}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewBankTransfer(""), NewChat("1"), NewPaystack("http://unused", "k", http.DefaultClient))

	g, err := r.Get(PaystackName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Kind() != KindHosted {
		t.Errorf("expected hosted kind, got %s", g.Kind())
	}

	if _, err := r.Get("crypto"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for unknown method, got %v", err)
	}

	names := r.Names()
	want := []string{BankTransferName, PaystackName, ChatName}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected sorted names %v, got %v", want, names)
			break
		}
	}
}
