package domain

import (
	"encoding/json"
	"time"
)

type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
)

// Terminal reports whether the payment has left pending. Terminal payments
// never change again.
func (s PaymentState) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

type Payment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	Gateway         string          `json:"gateway"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Fee             int64           `json:"fee"`
	NetAmount       int64           `json:"net_amount"`
	Currency        string          `json:"currency"`
	Status          PaymentState    `json:"status"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	Instructions    string          `json:"instructions,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// PaymentResolution moves a pending payment to a terminal state.
type PaymentResolution struct {
	Status          PaymentState
	GatewayResponse json.RawMessage
	ResolvedBy      string
	FailureReason   string
	ResolvedAt      time.Time
}

type WebhookStatus string

const (
	WebhookReceived  WebhookStatus = "received"
	WebhookProcessed WebhookStatus = "processed"
	WebhookDuplicate WebhookStatus = "duplicate"
	WebhookIgnored   WebhookStatus = "ignored"
	WebhookRejected  WebhookStatus = "rejected"
	WebhookFailed    WebhookStatus = "failed"
)

// WebhookDelivery is the audit record of one inbound gateway callback.
type WebhookDelivery struct {
	ID             string          `json:"id"`
	Gateway        string          `json:"gateway"`
	EventType      string          `json:"event_type,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Payload        []byte          `json:"-"`
	Headers        json.RawMessage `json:"headers"`
	SignatureValid bool            `json:"signature_valid"`
	Status         WebhookStatus   `json:"status"`
	Error          string          `json:"error,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}
