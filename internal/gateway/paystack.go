package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

const (
	PaystackName            = "paystack"
	PaystackSignatureHeader = "X-Paystack-Signature"
)

// Paystack amounts are integers in the currency's minor unit (kobo).
type Paystack struct {
	api    *apiClient
	secret string
}

func NewPaystack(baseURL, secretKey string, client *http.Client) *Paystack {
	return &Paystack{
		api:    newAPIClient(PaystackName, baseURL, secretKey, client),
		secret: secretKey,
	}
}

func (p *Paystack) Name() string { return PaystackName }

func (p *Paystack) Kind() Kind { return KindHosted }

type paystackInitRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransaction struct {
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	GatewayResponse string `json:"gateway_response"`
}

func (p *Paystack) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	var resp paystackEnvelope[paystackInitData]
	raw, err := p.api.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", paystackInitRequest{
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    map[string]string{"order_reference": req.OrderReference},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, &domain.GatewayError{Gateway: PaystackName, Op: "initialize", Message: resp.Message}
	}

	return &InitResult{
		RedirectURL: resp.Data.AuthorizationURL,
		AccessCode:  resp.Data.AccessCode,
		Raw:         raw,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var resp paystackEnvelope[paystackTransaction]
	raw, err := p.api.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, &domain.GatewayError{Gateway: PaystackName, Op: "verify", Message: resp.Message}
	}

	message := resp.Data.GatewayResponse
	if message == "" {
		message = resp.Message
	}
	return &VerifyResult{
		Success:  resp.Data.Status == "success",
		Pending:  paystackPending[resp.Data.Status],
		Status:   resp.Data.Status,
		Amount:   resp.Data.Amount,
		Currency: resp.Data.Currency,
		Message:  message,
		Raw:      raw,
	}, nil
}

// abandoned means the customer opened checkout but has not paid yet; the
// same reference can still succeed.
var paystackPending = map[string]bool{
	"abandoned":  true,
	"ongoing":    true,
	"pending":    true,
	"processing": true,
	"queued":     true,
}

type paystackRefundRequest struct {
	Transaction  string `json:"transaction"`
	Amount       int64  `json:"amount,omitempty"`
	MerchantNote string `json:"merchant_note,omitempty"`
}

func (p *Paystack) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	var resp paystackEnvelope[json.RawMessage]
	raw, err := p.api.do(ctx, "refund", http.MethodPost, "/refund", paystackRefundRequest{
		Transaction:  req.Reference,
		Amount:       req.Amount,
		MerchantNote: req.Reason,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &RefundResult{Success: resp.Status, Message: resp.Message, Raw: raw}, nil
}

// VerifySignature checks the hex HMAC-SHA512 of the body keyed with the
// secret key.
func (p *Paystack) VerifySignature(body []byte, headers http.Header) error {
	got := headers.Get(PaystackSignatureHeader)
	if got == "" {
		return &domain.SignatureError{Gateway: PaystackName, Reason: "missing " + PaystackSignatureHeader}
	}
	if p.secret == "" {
		return &domain.SignatureError{Gateway: PaystackName, Reason: "no secret configured"}
	}

	decoded, err := hex.DecodeString(got)
	if err != nil {
		return &domain.SignatureError{Gateway: PaystackName, Reason: "malformed signature"}
	}
	if !hmac.Equal(decoded, PaystackSignature(p.secret, body)) {
		return &domain.SignatureError{Gateway: PaystackName, Reason: "signature mismatch"}
	}
	return nil
}

// PaystackSignature computes the raw HMAC-SHA512 Paystack sends, hex
// encoded, in its signature header.
func PaystackSignature(secret string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

func (p *Paystack) ParseEvent(body []byte) (*Event, error) {
	var ev paystackEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, domain.NewValidationError("body", "malformed paystack event")
	}
	return &Event{
		Type:      ev.Event,
		Reference: ev.Data.Reference,
		Payment:   ev.Event == "charge.success",
	}, nil
}
