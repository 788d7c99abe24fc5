package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

func TestPaystack_Initialize(t *testing.T) {
	t.Run("sends minor units and returns the authorization url", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
				t.Errorf("expected bearer secret, got %q", got)
			}

			var body paystackInitRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Amount != 1250000 {
				t.Errorf("expected amount 1250000, got %d", body.Amount)
			}
			if body.Reference != "PAY-1" || body.Metadata["order_reference"] != "ORD-1" {
				t.Errorf("unexpected references: %+v", body)
			}

			_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"PAY-1"}}`))
		}))
		defer server.Close()

		p := NewPaystack(server.URL, "sk_test", server.Client())
		res, err := p.Initialize(context.Background(), InitRequest{
			Reference:      "PAY-1",
			OrderReference: "ORD-1",
			Amount:         1250000,
			Currency:       "NGN",
			Email:          "ada@example.com",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.RedirectURL != "https://checkout.paystack.com/abc" {
			t.Errorf("unexpected redirect url %q", res.RedirectURL)
		}
		if res.AccessCode != "abc" {
			t.Errorf("unexpected access code %q", res.AccessCode)
		}
	})

	t.Run("non-2xx answer carries the gateway message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
		}))
		defer server.Close()

		p := NewPaystack(server.URL, "sk_bad", server.Client())
		_, err := p.Initialize(context.Background(), InitRequest{Reference: "PAY-1", Amount: 100, Currency: "NGN"})

		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("expected GatewayError, got %v", err)
		}
		if gwErr.Message != "Invalid key" {
			t.Errorf("expected gateway message, got %q", gwErr.Message)
		}
		if gwErr.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", gwErr.StatusCode)
		}
	})

	t.Run("status false is a gateway error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":false,"message":"Duplicate Transaction Reference"}`))
		}))
		defer server.Close()

		p := NewPaystack(server.URL, "sk_test", server.Client())
		_, err := p.Initialize(context.Background(), InitRequest{Reference: "PAY-1", Amount: 100, Currency: "NGN"})
		if !errors.Is(err, domain.ErrGateway) {
			t.Fatalf("expected ErrGateway, got %v", err)
		}
	})

	t.Run("timeout is a gateway error", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		client := server.Client()
		client.Timeout = 50 * time.Millisecond

		p := NewPaystack(server.URL, "sk_test", client)
		_, err := p.Initialize(context.Background(), InitRequest{Reference: "PAY-1", Amount: 100, Currency: "NGN"})

		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("expected GatewayError, got %v", err)
		}
		if gwErr.Message != "gateway timed out" {
			t.Errorf("expected timeout message, got %q", gwErr.Message)
		}
	})
}

func TestPaystack_Verify(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSuccess bool
		wantPending bool
		wantAmount  int64
	}{
		{
			name:        "success",
			body:        `{"status":true,"message":"Verification successful","data":{"status":"success","reference":"PAY-1","amount":500000,"currency":"NGN","gateway_response":"Approved"}}`,
			wantSuccess: true,
			wantAmount:  500000,
		},
		{
			name:        "declined",
			body:        `{"status":true,"message":"Verification successful","data":{"status":"failed","reference":"PAY-1","amount":500000,"currency":"NGN","gateway_response":"Declined"}}`,
			wantSuccess: false,
			wantAmount:  500000,
		},
		{
			name:        "abandoned checkout is not settled",
			body:        `{"status":true,"message":"Verification successful","data":{"status":"abandoned","reference":"PAY-1","amount":500000,"currency":"NGN","gateway_response":"The transaction was not completed"}}`,
			wantPending: true,
			wantAmount:  500000,
		},
		{
			name:        "ongoing",
			body:        `{"status":true,"message":"Verification successful","data":{"status":"ongoing","reference":"PAY-1","amount":500000,"currency":"NGN"}}`,
			wantPending: true,
			wantAmount:  500000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/transaction/verify/PAY-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewPaystack(server.URL, "sk_test", server.Client())
			res, err := p.Verify(context.Background(), "PAY-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Success != tt.wantSuccess {
				t.Errorf("expected success %v, got %v", tt.wantSuccess, res.Success)
			}
			if res.Pending != tt.wantPending {
				t.Errorf("expected pending %v, got %v", tt.wantPending, res.Pending)
			}
			if res.Amount != tt.wantAmount {
				t.Errorf("expected amount %d, got %d", tt.wantAmount, res.Amount)
			}
			if len(res.Raw) == 0 {
				t.Error("expected raw response to be kept")
			}
		})
	}
}

func TestPaystack_VerifySignature(t *testing.T) {
	p := NewPaystack("http://unused", "sk_test", http.DefaultClient)
	body := []byte(`{"event":"charge.success","data":{"reference":"PAY-1"}}`)
	valid := hex.EncodeToString(PaystackSignature("sk_test", body))

	tests := []struct {
		name    string
		header  string
		body    []byte
		wantErr bool
	}{
		{name: "valid", header: valid, body: body},
		{name: "missing header", header: "", body: body, wantErr: true},
		{name: "not hex", header: "zz", body: body, wantErr: true},
		{name: "wrong key", header: hex.EncodeToString(PaystackSignature("other", body)), body: body, wantErr: true},
		{name: "tampered body", header: valid, body: []byte(`{"event":"charge.success","data":{"reference":"PAY-2"}}`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.header != "" {
				headers.Set(PaystackSignatureHeader, tt.header)
			}
			err := p.VerifySignature(tt.body, headers)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrSignature) {
					t.Errorf("expected ErrSignature, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPaystack_ParseEvent(t *testing.T) {
	p := NewPaystack("http://unused", "sk_test", http.DefaultClient)

	ev, err := p.ParseEvent([]byte(`{"event":"charge.success","data":{"reference":"PAY-1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.Payment || ev.Reference != "PAY-1" {
		t.Errorf("unexpected event %+v", ev)
	}

	ev, err = p.ParseEvent([]byte(`{"event":"transfer.success","data":{"reference":"TRF-1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Payment {
		t.Errorf("transfer events carry no payment: %+v", ev)
	}

	ev, err = p.ParseEvent([]byte(`{"event":"charge.failed","data":{"reference":"PAY-1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Payment {
		t.Errorf("only charge.success is a payment callback: %+v", ev)
	}

	if _, err := p.ParseEvent([]byte(`not json`)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
