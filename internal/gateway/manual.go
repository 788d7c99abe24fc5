package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/money"
	"github.com/joao-fontenele/checkout-ledger/internal/notify"
)

const (
	BankTransferName   = "bank_transfer"
	CashOnDeliveryName = "cash_on_delivery"
	ChatName           = "whatsapp"
)

var errNoWebhooks = errors.New("method does not send webhooks")

// Manual covers methods settled outside the system. Initialize only returns
// instructions; an operator confirms or rejects the payment later.
type Manual struct {
	name         string
	instructions string
}

func NewBankTransfer(instructions string) *Manual {
	return &Manual{name: BankTransferName, instructions: instructions}
}

func NewCashOnDelivery(instructions string) *Manual {
	return &Manual{name: CashOnDeliveryName, instructions: instructions}
}

func (m *Manual) Name() string { return m.name }

func (m *Manual) Kind() Kind { return KindManual }

func (m *Manual) Initialize(_ context.Context, req InitRequest) (*InitResult, error) {
	text := fmt.Sprintf("Amount due: %s. Payment reference: %s.", money.Format(req.Amount, req.Currency), req.Reference)
	if m.instructions != "" {
		text = m.instructions + " " + text
	}
	return &InitResult{Instructions: text}, nil
}

func (m *Manual) Verify(_ context.Context, reference string) (*VerifyResult, error) {
	return nil, operatorOnly(m.name, reference)
}

func (m *Manual) Refund(_ context.Context, _ RefundRequest) (*RefundResult, error) {
	return &RefundResult{Message: m.name + " refunds are handled manually"}, nil
}

func (m *Manual) VerifySignature(_ []byte, _ http.Header) error {
	return &domain.SignatureError{Gateway: m.name, Reason: errNoWebhooks.Error()}
}

func (m *Manual) ParseEvent(_ []byte) (*Event, error) {
	return nil, domain.NewValidationError("gateway", "%s: %v", m.name, errNoWebhooks)
}

// Chat arranges payment in a chat conversation with the store. The
// redirect is a click-to-chat link prefilled with the order details.
type Chat struct {
	phone string
}

func NewChat(storePhone string) *Chat {
	return &Chat{phone: storePhone}
}

func (c *Chat) Name() string { return ChatName }

func (c *Chat) Kind() Kind { return KindChat }

func (c *Chat) Initialize(_ context.Context, req InitRequest) (*InitResult, error) {
	if c.phone == "" {
		return nil, &domain.GatewayError{Gateway: ChatName, Op: "initialize", Message: "chat payments are not configured"}
	}
	text := fmt.Sprintf("Hello, I would like to pay %s for order %s (payment reference %s).",
		money.Format(req.Amount, req.Currency), req.OrderReference, req.Reference)
	return &InitResult{
		RedirectURL:  notify.ChatLink(c.phone, text),
		Instructions: "Continue in the chat to arrange payment. Your order is confirmed once we receive it.",
	}, nil
}

func (c *Chat) Verify(_ context.Context, reference string) (*VerifyResult, error) {
	return nil, operatorOnly(ChatName, reference)
}

func (c *Chat) Refund(_ context.Context, _ RefundRequest) (*RefundResult, error) {
	return &RefundResult{Message: "chat payment refunds are handled manually"}, nil
}

func (c *Chat) VerifySignature(_ []byte, _ http.Header) error {
	return &domain.SignatureError{Gateway: ChatName, Reason: errNoWebhooks.Error()}
}

func (c *Chat) ParseEvent(_ []byte) (*Event, error) {
	return nil, domain.NewValidationError("gateway", "%s: %v", ChatName, errNoWebhooks)
}

func operatorOnly(gateway, reference string) error {
	return &domain.ConflictError{
		Entity: "payment",
		ID:     reference,
		Reason: gateway + " payments are confirmed by an operator",
	}
}
