// Package orders turns a cart snapshot into a durable order. The order header,
// its items and the stock debits are committed in one transaction; any
// shortfall or failure leaves nothing behind.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/inventory"
	"github.com/joao-fontenele/checkout-ledger/internal/notify"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
)

const maxItemQuantity = 10000

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type CreateInput struct {
	UserID          *string         `json:"user_id,omitempty"`
	Customer        domain.Customer `json:"customer"`
	DeliveryAddress string          `json:"delivery_address"`
	Notes           string          `json:"notes,omitempty"`
	Items           []ItemInput     `json:"items"`
}

type Ledger struct {
	store     store.Store
	inventory *inventory.Ledger
	formatter *notify.Formatter
	sender    *notify.Sender
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	currency  string
	now       func() time.Time
}

func NewLedger(s store.Store, inv *inventory.Ledger, formatter *notify.Formatter, sender *notify.Sender, metrics *telemetry.Metrics, logger *slog.Logger, currency string) *Ledger {
	return &Ledger{
		store:     s,
		inventory: inv,
		formatter: formatter,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewReference returns a human-readable order reference, ORD-YYYYMMDD-XXXXXXXX.
func NewReference(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + at.Format("20060102") + "-" + suffix
}

// Create persists the order and debits stock for every line, or returns
// the first error with nothing committed. Unit prices come from the cart
// snapshot; product names come from the catalog row at purchase time.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	if err := validateCreate(in); err != nil {
		l.metrics.OrderRejected(ctx, "validation")
		return nil, err
	}

	at := l.now()
	order := &domain.Order{
		ID:              uuid.NewString(),
		Reference:       NewReference(at),
		UserID:          in.UserID,
		Customer:        normalizeCustomer(in.Customer),
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		Currency:        l.currency,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Notes:           in.Notes,
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	// Rows are locked in product id order so concurrent checkouts sharing
	// products cannot deadlock.
	lines := make([]int, len(in.Items))
	for i := range lines {
		lines[i] = i
	}
	sort.Slice(lines, func(a, b int) bool { return in.Items[lines[a]].ProductID < in.Items[lines[b]].ProductID })

	var entries []*domain.LedgerEntry
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		entries = entries[:0]
		names := make(map[string]string, len(in.Items))

		for _, i := range lines {
			item := in.Items[i]
			p, err := tx.LockProduct(ctx, item.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError(fmt.Sprintf("items[%d].product_id", i), "unknown product %s", item.ProductID)
			}
			if err != nil {
				return err
			}
			if p.Stock < item.Quantity {
				return &domain.StockError{ProductID: p.ID, Requested: item.Quantity, Available: p.Stock}
			}
			names[p.ID] = p.Name
		}

		order.Items = make([]domain.OrderItem, len(in.Items))
		order.TotalAmount = 0
		for i, item := range in.Items {
			subtotal := item.UnitPrice * int64(item.Quantity)
			order.Items[i] = domain.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				ProductID:   item.ProductID,
				ProductName: names[item.ProductID],
				UnitPrice:   item.UnitPrice,
				Quantity:    item.Quantity,
				Subtotal:    subtotal,
			}
			order.TotalAmount += subtotal
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		for _, i := range lines {
			item := in.Items[i]
			entry, err := l.inventory.Debit(ctx, tx, inventory.Mutation{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Type:      domain.MutationSale,
				Reason:    "order " + order.Reference,
				Reference: order.Reference,
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		l.metrics.OrderRejected(ctx, rejectReason(err))
		l.logger.Warn("order rejected", "error", err, "customer_email", in.Customer.Email)
		return nil, err
	}

	l.metrics.OrderCreated(ctx)
	l.inventory.Observe(ctx, entries...)
	l.logger.Info("order created", "order_id", order.ID, "reference", order.Reference, "total_amount", order.TotalAmount, "items", len(order.Items))

	l.sender.Send(ctx, l.formatter.OrderConfirmed(order))
	return order, nil
}

// UpdateStatus moves the order one step along pending, confirmed,
// processing, shipped, delivered. Moving to cancelled goes through Cancel.
func (l *Ledger) UpdateStatus(ctx context.Context, actor, id string, to domain.OrderStatus) (*domain.Order, error) {
	if !to.Valid() {
		return nil, domain.NewValidationError("status", "unknown order status %q", to)
	}
	if to == domain.OrderStatusCancelled {
		return l.Cancel(ctx, actor, id, "")
	}

	var order *domain.Order
	var from domain.OrderStatus
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &domain.ConflictError{Entity: "order", ID: id, State: string(o.Status), Reason: "no further transitions allowed"}
		}
		if !o.Status.CanTransition(to) {
			return &domain.ConflictError{Entity: "order", ID: id, State: string(o.Status), Reason: fmt.Sprintf("cannot move to %s", to)}
		}

		at := l.now()
		if err := tx.UpdateOrderStatus(ctx, id, to, o.Notes, at); err != nil {
			return err
		}
		from = o.Status
		o.Status = to
		o.UpdatedAt = at
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("order status updated", "order_id", id, "from", from, "to", to, "actor", actor)
	l.sender.Send(ctx, l.formatter.StatusChanged(order, from))
	return order, nil
}

// Cancel returns every item's quantity to stock and marks the order
// cancelled. Cancelling an already cancelled order changes nothing and
// reports success.
func (l *Ledger) Cancel(ctx context.Context, actor, id, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)

	var order *domain.Order
	var entries []*domain.LedgerEntry
	noop := false
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		entries = entries[:0]
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		order = o

		if o.Status == domain.OrderStatusCancelled {
			noop = true
			return nil
		}
		if o.Status.Terminal() {
			return &domain.ConflictError{Entity: "order", ID: id, State: string(o.Status), Reason: "cannot cancel"}
		}

		items := make([]domain.OrderItem, len(o.Items))
		copy(items, o.Items)
		sort.SliceStable(items, func(a, b int) bool { return items[a].ProductID < items[b].ProductID })

		for _, item := range items {
			entry, err := l.inventory.Credit(ctx, tx, inventory.Mutation{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Type:      domain.MutationReturn,
				Reason:    "order " + o.Reference + " cancelled",
				Reference: o.Reference,
				Actor:     actor,
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		notes := o.Notes
		if reason != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += "Cancelled: " + reason
		}

		at := l.now()
		if err := tx.UpdateOrderStatus(ctx, id, domain.OrderStatusCancelled, notes, at); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCancelled
		o.Notes = notes
		o.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}

	if noop {
		l.logger.Info("order already cancelled", "order_id", id)
		return order, nil
	}

	l.inventory.Observe(ctx, entries...)
	l.logger.Info("order cancelled", "order_id", id, "reference", order.Reference, "reason", reason, "actor", actor)
	l.sender.Send(ctx, l.formatter.Cancelled(order, reason))
	return order, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*domain.Order, error) {
	return l.store.GetOrder(ctx, id)
}

func (l *Ledger) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	return l.store.GetOrderByReference(ctx, reference)
}

func validateCreate(in CreateInput) error {
	if strings.TrimSpace(in.Customer.Name) == "" {
		return domain.NewValidationError("customer.name", "is required")
	}
	if _, err := mail.ParseAddress(in.Customer.Email); err != nil {
		return domain.NewValidationError("customer.email", "is not a valid address")
	}
	if in.Customer.Phone != "" {
		n := 0
		for _, r := range in.Customer.Phone {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		if n < 7 || n > 15 {
			return domain.NewValidationError("customer.phone", "must have between 7 and 15 digits")
		}
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return domain.NewValidationError("delivery_address", "is required")
	}
	if len(in.Items) == 0 {
		return domain.NewValidationError("items", "must not be empty")
	}

	seen := make(map[string]bool, len(in.Items))
	var total int64
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ProductID == "" {
			return domain.NewValidationError(field+".product_id", "is required")
		}
		if seen[item.ProductID] {
			return domain.NewValidationError(field+".product_id", "duplicate product %s", item.ProductID)
		}
		seen[item.ProductID] = true
		if item.Quantity <= 0 || item.Quantity > maxItemQuantity {
			return domain.NewValidationError(field+".quantity", "must be between 1 and %d", maxItemQuantity)
		}
		if item.UnitPrice < 0 {
			return domain.NewValidationError(field+".unit_price", "must not be negative")
		}
		subtotal := item.UnitPrice * int64(item.Quantity)
		if item.UnitPrice > math.MaxInt64/int64(item.Quantity) || total > math.MaxInt64-subtotal {
			return domain.NewValidationError(field, "amount overflows")
		}
		total += subtotal
	}
	return nil
}

func normalizeCustomer(c domain.Customer) domain.Customer {
	return domain.Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrStock):
		return "stock"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "persistence"
	}
}
