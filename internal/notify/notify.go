// Package notify builds the customer-facing messages for order and payment
// events. It formats text and a chat deep link; delivery belongs to the
// Dispatcher.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/money"
)

const chatBaseURL = "https://wa.me/"

type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification) error
}

type Formatter struct {
	storeName string
	now       func() time.Time
}

func NewFormatter(storeName string) *Formatter {
	return &Formatter{storeName: storeName, now: func() time.Time { return time.Now().UTC() }}
}

func (f *Formatter) OrderConfirmed(o *domain.Order) domain.Notification {
	text := fmt.Sprintf("Hi %s, thank you for shopping with %s. Your order %s for %s has been received and is awaiting payment.",
		firstName(o.Customer.Name), f.storeName, o.Reference, money.Format(o.TotalAmount, o.Currency))
	return f.build(domain.NotificationOrderConfirmed, o, text)
}

func (f *Formatter) StatusChanged(o *domain.Order, from domain.OrderStatus) domain.Notification {
	text := fmt.Sprintf("Hi %s, your order %s has moved from %s to %s.",
		firstName(o.Customer.Name), o.Reference, from, o.Status)
	return f.build(domain.NotificationOrderStatus, o, text)
}

func (f *Formatter) Cancelled(o *domain.Order, reason string) domain.Notification {
	text := fmt.Sprintf("Hi %s, your order %s has been cancelled.", firstName(o.Customer.Name), o.Reference)
	if reason != "" {
		text += " Reason: " + reason + "."
	}
	return f.build(domain.NotificationOrderCancelled, o, text)
}

func (f *Formatter) Paid(o *domain.Order, p *domain.Payment) domain.Notification {
	text := fmt.Sprintf("Hi %s, we have received your payment of %s for order %s (ref %s).",
		firstName(o.Customer.Name), money.Format(p.Amount, p.Currency), o.Reference, p.Reference)
	return f.build(domain.NotificationOrderPaid, o, text)
}

func (f *Formatter) PaymentFailed(o *domain.Order, p *domain.Payment) domain.Notification {
	text := fmt.Sprintf("Hi %s, your payment for order %s (ref %s) did not go through.",
		firstName(o.Customer.Name), o.Reference, p.Reference)
	if p.FailureReason != "" {
		text += " " + p.FailureReason + "."
	}
	text += " You can retry from your order page."
	return f.build(domain.NotificationPaymentFailed, o, text)
}

// RefundDue tells the customer a payment arrived for an order that was
// already cancelled.
func (f *Formatter) RefundDue(o *domain.Order, p *domain.Payment) domain.Notification {
	text := fmt.Sprintf("Hi %s, we received your payment of %s (ref %s) but order %s had already been cancelled. We will refund you shortly.",
		firstName(o.Customer.Name), money.Format(p.Amount, p.Currency), p.Reference, o.Reference)
	return f.build(domain.NotificationRefundDue, o, text)
}

func (f *Formatter) build(kind domain.NotificationKind, o *domain.Order, text string) domain.Notification {
	return domain.Notification{
		ID:             uuid.NewString(),
		Kind:           kind,
		OrderID:        o.ID,
		OrderReference: o.Reference,
		Recipient:      o.Customer.Phone,
		Email:          o.Customer.Email,
		Text:           text,
		DeepLink:       ChatLink(o.Customer.Phone, text),
		CreatedAt:      f.now(),
	}
}

// ChatLink returns a click-to-chat URI for phone with text prefilled. Phone
// is reduced to its digits.
func ChatLink(phone, text string) string {
	return chatBaseURL + digits(phone) + "?text=" + url.QueryEscape(text)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}

// Sender dispatches notifications without letting a delivery failure reach
// the caller.
type Sender struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
}

func NewSender(d Dispatcher, logger *slog.Logger) *Sender {
	return &Sender{dispatcher: d, logger: logger, timeout: 5 * time.Second}
}

func (s *Sender) Send(ctx context.Context, n domain.Notification) {
	if s == nil || s.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.Error("failed to dispatch notification", "error", err, "kind", n.Kind, "order_reference", n.OrderReference)
		return
	}
	s.logger.Info("notification dispatched", "kind", n.Kind, "order_reference", n.OrderReference)
}

// LogDispatcher writes notifications to the log. Used when no broker is
// configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n domain.Notification) error {
	d.logger.Info("notification", "kind", n.Kind, "order_reference", n.OrderReference, "recipient", n.Recipient, "deep_link", n.DeepLink)
	return nil
}

// Recorder keeps dispatched notifications in memory. Err, when set, is
// returned from every Dispatch.
type Recorder struct {
	mu   sync.Mutex
	sent []domain.Notification
	Err  error
}

func (r *Recorder) Dispatch(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Count returns how many notifications of kind were dispatched.
func (r *Recorder) Count(kind domain.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
