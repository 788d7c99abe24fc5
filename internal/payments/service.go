// Package payments drives a payment attempt from initialization at a gateway
// to its single terminal state. A payment leaves pending exactly once, via
// a conditional update, however many verify calls, webhooks or operator
// actions race for it.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/gateway"
	"github.com/joao-fontenele/checkout-ledger/internal/notify"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
)

type InitializeInput struct {
	// OrderID is the internal id or the ORD- reference.
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
}

type InitializeResult struct {
	Payment      *domain.Payment `json:"payment"`
	Reference    string          `json:"reference"`
	RedirectURL  string          `json:"redirect_url,omitempty"`
	AccessCode   string          `json:"access_code,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
}

type RefundInput struct {
	Reference string `json:"-"`
	// Amount in minor units; zero refunds the full payment.
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type Service struct {
	store       store.Store
	gateways    *gateway.Registry
	fees        *FeeSchedule
	formatter   *notify.Formatter
	sender      *notify.Sender
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	callbackURL string
	now         func() time.Time
}

func NewService(s store.Store, gateways *gateway.Registry, fees *FeeSchedule, formatter *notify.Formatter, sender *notify.Sender, metrics *telemetry.Metrics, logger *slog.Logger, callbackURL string) *Service {
	return &Service{
		store:       s,
		gateways:    gateways,
		fees:        fees,
		formatter:   formatter,
		sender:      sender,
		metrics:     metrics,
		logger:      logger,
		callbackURL: callbackURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// NewReference returns a payment reference unique across gateways.
func NewReference() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Initialize opens a payment attempt for an unpaid order. The gateway is
// called first; a Payment row is only written once it accepted the
// attempt, so a failure leaves the order free to retry.
func (s *Service) Initialize(ctx context.Context, in InitializeInput) (*InitializeResult, error) {
	if in.OrderID == "" {
		return nil, domain.NewValidationError("order_id", "is required")
	}
	gw, err := s.gateways.Get(in.Method)
	if err != nil {
		return nil, err
	}

	order, err := s.lookupOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if err := payable(order); err != nil {
		return nil, err
	}

	reference := NewReference()
	res, err := gw.Initialize(ctx, gateway.InitRequest{
		Reference:      reference,
		OrderReference: order.Reference,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		Email:          order.Customer.Email,
		Phone:          order.Customer.Phone,
		CallbackURL:    s.callbackURL,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGateway) {
			err = &domain.GatewayError{Gateway: gw.Name(), Op: "initialize", Err: err}
		}
		s.logger.Warn("payment initialization failed", "error", err, "gateway", gw.Name(), "order_reference", order.Reference)
		return nil, err
	}

	fee, net := s.fees.Fee(gw.Name(), order.TotalAmount)
	payment := &domain.Payment{
		ID:              uuid.NewString(),
		OrderID:         order.ID,
		Gateway:         gw.Name(),
		Reference:       reference,
		Amount:          order.TotalAmount,
		Fee:             fee,
		NetAmount:       net,
		Currency:        order.Currency,
		Status:          domain.PaymentPending,
		GatewayResponse: res.Raw,
		Instructions:    res.Instructions,
		CreatedAt:       s.now(),
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		// The order may have been cancelled or paid while the gateway call
		// was in flight.
		locked, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := payable(locked); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment initialized", "payment_id", payment.ID, "reference", reference, "gateway", gw.Name(), "order_reference", order.Reference, "amount", payment.Amount, "fee", fee)

	return &InitializeResult{
		Payment:      payment,
		Reference:    reference,
		RedirectURL:  res.RedirectURL,
		AccessCode:   res.AccessCode,
		Instructions: res.Instructions,
	}, nil
}

// Verify asks the gateway for the authoritative state of a pending payment
// and applies it. Terminal payments are returned unchanged without calling
// the gateway. A verified amount or currency that differs from the
// recorded one fails the payment.
func (s *Service) Verify(ctx context.Context, reference string) (*domain.Payment, error) {
	payment, err := s.store.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.Status.Terminal() {
		return payment, nil
	}

	gw, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, err
	}
	if gw.Kind().RequiresOperator() {
		return nil, &domain.ConflictError{Entity: "payment", ID: reference, State: string(payment.Status), Reason: "awaiting operator confirmation"}
	}

	result, err := gw.Verify(ctx, reference)
	if err != nil {
		s.logger.Warn("payment verification failed", "error", err, "gateway", gw.Name(), "reference", reference)
		return nil, err
	}
	if result.Pending {
		s.logger.Info("payment not settled yet", "reference", reference, "gateway", gw.Name(), "gateway_status", result.Status)
		return payment, nil
	}

	res := domain.PaymentResolution{
		Status:          domain.PaymentCompleted,
		GatewayResponse: result.Raw,
		ResolvedBy:      gw.Name(),
		ResolvedAt:      s.now(),
	}
	switch {
	case !result.Success:
		res.Status = domain.PaymentFailed
		res.FailureReason = result.Message
		if res.FailureReason == "" {
			res.FailureReason = "gateway reported " + result.Status
		}
	case result.Amount != payment.Amount || !strings.EqualFold(result.Currency, payment.Currency):
		res.Status = domain.PaymentFailed
		res.FailureReason = fmt.Sprintf("verified %d %s does not match expected %d %s", result.Amount, result.Currency, payment.Amount, payment.Currency)
	}

	return s.resolve(ctx, payment.ID, res, false)
}

// Confirm settles a pending manual or chat payment on an operator's word.
// The order is marked paid and, if still pending, confirmed.
func (s *Service) Confirm(ctx context.Context, actor, paymentID string) (*domain.Payment, error) {
	if actor == "" {
		return nil, domain.NewValidationError("actor", "is required")
	}
	return s.resolve(ctx, paymentID, domain.PaymentResolution{
		Status:     domain.PaymentCompleted,
		ResolvedBy: actor,
		ResolvedAt: s.now(),
	}, true)
}

// Reject fails a pending manual or chat payment. The order stays unpaid.
func (s *Service) Reject(ctx context.Context, actor, paymentID, reason string) (*domain.Payment, error) {
	if actor == "" {
		return nil, domain.NewValidationError("actor", "is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reason", "is required")
	}
	return s.resolve(ctx, paymentID, domain.PaymentResolution{
		Status:        domain.PaymentFailed,
		ResolvedBy:    actor,
		FailureReason: reason,
		ResolvedAt:    s.now(),
	}, true)
}

func (s *Service) requireOperatorKind(p *domain.Payment) error {
	gw, err := s.gateways.Get(p.Gateway)
	if err != nil {
		return err
	}
	if !gw.Kind().RequiresOperator() {
		return &domain.ConflictError{Entity: "payment", ID: p.ID, State: string(p.Status), Reason: gw.Name() + " payments are verified against the gateway"}
	}
	return nil
}

// resolve applies res to a pending payment. A payment that is already
// terminal yields a ConflictError for operator actions and is returned
// unchanged for gateway verification, which lost a race to a concurrent
// webhook or verify.
func (s *Service) resolve(ctx context.Context, paymentID string, res domain.PaymentResolution, operator bool) (*domain.Payment, error) {
	var payment *domain.Payment
	var order *domain.Order
	won := false
	refundDue := false

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		won = false
		refundDue = false
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = p

		if operator {
			if err := s.requireOperatorKind(p); err != nil {
				return err
			}
		}
		if p.Status.Terminal() {
			if operator {
				return &domain.ConflictError{Entity: "payment", ID: p.ID, State: string(p.Status), Reason: "payment is no longer pending"}
			}
			return nil
		}

		o, err := tx.LockOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		order = o

		if res.Status == domain.PaymentCompleted {
			paid, err := tx.HasCompletedPayment(ctx, o.ID)
			if err != nil {
				return err
			}
			if paid {
				if operator {
					return &domain.ConflictError{Entity: "order", ID: o.ID, State: string(o.PaymentStatus), Reason: "order already has a completed payment"}
				}
				res.Status = domain.PaymentFailed
				res.FailureReason = "order already paid by another payment"
			}
		}

		won, err = tx.ResolvePayment(ctx, p.ID, res)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		p.Status = res.Status
		if len(res.GatewayResponse) > 0 {
			p.GatewayResponse = res.GatewayResponse
		}
		p.ResolvedBy = res.ResolvedBy
		p.FailureReason = res.FailureReason
		at := res.ResolvedAt
		p.ResolvedAt = &at

		if res.Status != domain.PaymentCompleted {
			return nil
		}
		if err := tx.UpdateOrderPaymentStatus(ctx, o.ID, domain.PaymentStatusPaid, at); err != nil {
			return err
		}
		o.PaymentStatus = domain.PaymentStatusPaid
		if o.Status == domain.OrderStatusCancelled {
			refundDue = true
			o.Notes = appendNote(o.Notes, fmt.Sprintf("payment %s received after cancellation, refund due", p.Reference))
			if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, o.Notes, at); err != nil {
				return err
			}
		}
		if operator && o.Status == domain.OrderStatusPending {
			if err := tx.UpdateOrderStatus(ctx, o.ID, domain.OrderStatusConfirmed, o.Notes, at); err != nil {
				return err
			}
			o.Status = domain.OrderStatusConfirmed
		}
		o.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !won {
		fresh, err := s.store.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		return fresh, nil
	}

	s.metrics.PaymentTransition(ctx, payment.Gateway, string(payment.Status))
	s.logger.Info("payment resolved", "payment_id", payment.ID, "reference", payment.Reference, "gateway", payment.Gateway, "status", payment.Status, "resolved_by", payment.ResolvedBy)

	switch {
	case refundDue:
		s.logger.Warn("payment completed on a cancelled order", "payment_id", payment.ID, "reference", payment.Reference, "order_reference", order.Reference, "amount", payment.Amount)
		s.sender.Send(ctx, s.formatter.RefundDue(order, payment))
	case payment.Status == domain.PaymentCompleted:
		s.sender.Send(ctx, s.formatter.Paid(order, payment))
	default:
		s.sender.Send(ctx, s.formatter.PaymentFailed(order, payment))
	}
	return payment, nil
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}

// Refund forwards a refund request for a completed payment to its gateway.
// Local payment and order state are left as they are.
func (s *Service) Refund(ctx context.Context, in RefundInput) (*gateway.RefundResult, error) {
	payment, err := s.store.GetPaymentByReference(ctx, in.Reference)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentCompleted {
		return nil, &domain.ConflictError{Entity: "payment", ID: in.Reference, State: string(payment.Status), Reason: "only completed payments can be refunded"}
	}
	if in.Amount < 0 || in.Amount > payment.Amount {
		return nil, domain.NewValidationError("amount", "must be between 0 and %d", payment.Amount)
	}
	amount := in.Amount
	if amount == 0 {
		amount = payment.Amount
	}

	gw, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, err
	}

	res, err := gw.Refund(ctx, gateway.RefundRequest{
		Reference: payment.Reference,
		Amount:    amount,
		Currency:  payment.Currency,
		Reason:    in.Reason,
	})
	if err != nil {
		s.logger.Warn("refund request failed", "error", err, "gateway", gw.Name(), "reference", payment.Reference)
		return nil, err
	}

	s.logger.Info("refund requested", "reference", payment.Reference, "gateway", gw.Name(), "amount", amount, "success", res.Success)
	return res, nil
}

func (s *Service) Get(ctx context.Context, reference string) (*domain.Payment, error) {
	return s.store.GetPaymentByReference(ctx, reference)
}

// ListForOrder returns the payment attempts of an order, id or reference.
func (s *Service) ListForOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	order, err := s.lookupOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, order.ID)
}

func (s *Service) lookupOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.HasPrefix(id, "ORD-") {
		return s.store.GetOrderByReference(ctx, id)
	}
	return s.store.GetOrder(ctx, id)
}

func payable(o *domain.Order) error {
	if o.Status == domain.OrderStatusCancelled {
		return &domain.ConflictError{Entity: "order", ID: o.Reference, State: string(o.Status), Reason: "cannot pay for a cancelled order"}
	}
	if o.PaymentStatus == domain.PaymentStatusPaid {
		return &domain.ConflictError{Entity: "order", ID: o.Reference, State: string(o.PaymentStatus), Reason: "order is already paid"}
	}
	return nil
}
