package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/money"
)

const (
	FlutterwaveName            = "flutterwave"
	FlutterwaveSignatureHeader = "Verif-Hash"
)

// Flutterwave amounts are decimal major units on the wire.
type Flutterwave struct {
	api         *apiClient
	webhookHash string
}

func NewFlutterwave(baseURL, secretKey, webhookHash string, client *http.Client) *Flutterwave {
	return &Flutterwave{
		api:         newAPIClient(FlutterwaveName, baseURL, secretKey, client),
		webhookHash: webhookHash,
	}
}

func (f *Flutterwave) Name() string { return FlutterwaveName }

func (f *Flutterwave) Kind() Kind { return KindHosted }

type flutterwaveCustomer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber,omitempty"`
}

type flutterwaveInitRequest struct {
	TxRef       string              `json:"tx_ref"`
	Amount      json.Number         `json:"amount"`
	Currency    string              `json:"currency"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	Customer    flutterwaveCustomer `json:"customer"`
	Meta        map[string]string   `json:"meta"`
}

type flutterwaveEnvelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type flutterwaveTransaction struct {
	ID       int64           `json:"id"`
	TxRef    string          `json:"tx_ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func majorNumber(minor int64) json.Number {
	return json.Number(money.ToMajor(minor).StringFixed(2))
}

func (f *Flutterwave) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	var resp flutterwaveEnvelope[struct {
		Link string `json:"link"`
	}]
	raw, err := f.api.do(ctx, "initialize", http.MethodPost, "/payments", flutterwaveInitRequest{
		TxRef:       req.Reference,
		Amount:      majorNumber(req.Amount),
		Currency:    req.Currency,
		RedirectURL: req.CallbackURL,
		Customer:    flutterwaveCustomer{Email: req.Email, PhoneNumber: req.Phone},
		Meta:        map[string]string{"order_reference": req.OrderReference},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" || resp.Data.Link == "" {
		return nil, &domain.GatewayError{Gateway: FlutterwaveName, Op: "initialize", Message: resp.Message}
	}

	return &InitResult{RedirectURL: resp.Data.Link, Raw: raw}, nil
}

func (f *Flutterwave) lookup(ctx context.Context, op, reference string) (*flutterwaveTransaction, json.RawMessage, string, error) {
	var resp flutterwaveEnvelope[flutterwaveTransaction]
	raw, err := f.api.do(ctx, op, http.MethodGet, "/transactions/verify_by_reference?tx_ref="+url.QueryEscape(reference), nil, &resp)
	if err != nil {
		return nil, nil, "", err
	}
	if resp.Status != "success" {
		return nil, raw, "", &domain.GatewayError{Gateway: FlutterwaveName, Op: op, Message: resp.Message}
	}
	return &resp.Data, raw, resp.Message, nil
}

func (f *Flutterwave) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	tx, raw, message, err := f.lookup(ctx, "verify", reference)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Success:  tx.Status == "successful",
		Pending:  tx.Status == "pending",
		Status:   tx.Status,
		Amount:   money.FromMajor(tx.Amount),
		Currency: tx.Currency,
		Message:  message,
		Raw:      raw,
	}, nil
}

type flutterwaveRefundRequest struct {
	Amount   json.Number `json:"amount,omitempty"`
	Comments string      `json:"comments,omitempty"`
}

// Refund looks the transaction up by reference first; the refund endpoint
// is keyed by Flutterwave's own transaction id.
func (f *Flutterwave) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	tx, _, _, err := f.lookup(ctx, "refund", req.Reference)
	if err != nil {
		return nil, err
	}

	body := flutterwaveRefundRequest{Comments: req.Reason}
	if req.Amount > 0 {
		body.Amount = majorNumber(req.Amount)
	}

	var resp flutterwaveEnvelope[json.RawMessage]
	raw, err := f.api.do(ctx, "refund", http.MethodPost, "/transactions/"+strconv.FormatInt(tx.ID, 10)+"/refund", body, &resp)
	if err != nil {
		return nil, err
	}

	return &RefundResult{Success: resp.Status == "success", Message: resp.Message, Raw: raw}, nil
}

// VerifySignature compares the verif-hash header with the configured
// secret hash.
func (f *Flutterwave) VerifySignature(_ []byte, headers http.Header) error {
	got := headers.Get(FlutterwaveSignatureHeader)
	if got == "" {
		return &domain.SignatureError{Gateway: FlutterwaveName, Reason: "missing " + FlutterwaveSignatureHeader}
	}
	if f.webhookHash == "" {
		return &domain.SignatureError{Gateway: FlutterwaveName, Reason: "no webhook hash configured"}
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(f.webhookHash)) != 1 {
		return &domain.SignatureError{Gateway: FlutterwaveName, Reason: "signature mismatch"}
	}
	return nil
}

type flutterwaveEvent struct {
	Event string `json:"event"`
	Data  struct {
		TxRef string `json:"tx_ref"`
	} `json:"data"`
}

func (f *Flutterwave) ParseEvent(body []byte) (*Event, error) {
	var ev flutterwaveEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, domain.NewValidationError("body", "malformed flutterwave event")
	}
	return &Event{
		Type:      ev.Event,
		Reference: ev.Data.TxRef,
		Payment:   ev.Event == "charge.completed",
	}, nil
}
