package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
)

// tx works on the cloned state owned by one WithTx call. Unique constraints
// of the schema are checked here so tests see the same conflicts as postgres.
type tx struct {
	st       *state
	failures map[string]error
}

var _ store.Tx = (*tx)(nil)

func (t *tx) fail(op string) error {
	if err := t.failures[op]; err != nil {
		return domain.AsPersistence(op, err)
	}
	return nil
}

func (t *tx) LockProduct(_ context.Context, id string) (*domain.Product, error) {
	if err := t.fail("LockProduct"); err != nil {
		return nil, err
	}
	p, ok := t.st.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (t *tx) UpdateProductStock(_ context.Context, id string, stock int, inStock bool, at time.Time) error {
	if err := t.fail("UpdateProductStock"); err != nil {
		return err
	}
	p, ok := t.st.products[id]
	if !ok {
		return notFound("product", id)
	}
	p.Stock = stock
	p.InStock = inStock
	p.UpdatedAt = at
	t.st.products[id] = p
	return nil
}

func (t *tx) InsertLedgerEntry(_ context.Context, entry *domain.LedgerEntry) error {
	if err := t.fail("InsertLedgerEntry"); err != nil {
		return err
	}
	t.st.ledger = append(t.st.ledger, *entry)
	return nil
}

func (t *tx) ActiveAlerts(_ context.Context, productID string) ([]domain.StockAlert, error) {
	var out []domain.StockAlert
	for _, a := range t.st.alerts {
		if a.ProductID == productID && a.Status == domain.AlertActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (t *tx) InsertAlert(_ context.Context, alert *domain.StockAlert) error {
	if err := t.fail("InsertAlert"); err != nil {
		return err
	}
	for _, a := range t.st.alerts {
		if a.ProductID == alert.ProductID && a.Kind == alert.Kind && a.Status == domain.AlertActive {
			return &domain.ConflictError{Entity: "stock alert", ID: alert.ProductID, Reason: "active " + string(alert.Kind) + " alert already exists"}
		}
	}
	t.st.alerts[alert.ID] = *alert
	return nil
}

func (t *tx) ResolveAlert(_ context.Context, id string, observedStock int, at time.Time) error {
	a, ok := t.st.alerts[id]
	if !ok {
		return notFound("stock alert", id)
	}
	a.Status = domain.AlertResolved
	a.ObservedStock = observedStock
	a.ResolvedAt = &at
	t.st.alerts[id] = a
	return nil
}

func (t *tx) InsertOrder(_ context.Context, order *domain.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	if _, ok := t.st.orderRefs[order.Reference]; ok {
		return &domain.ConflictError{Entity: "order", ID: order.Reference, Reason: "reference already exists"}
	}
	o := *order
	o.Items = slices.Clone(order.Items)
	t.st.orders[o.ID] = o
	t.st.orderRefs[o.Reference] = o.ID
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (*domain.Order, error) {
	if err := t.fail("LockOrder"); err != nil {
		return nil, err
	}
	return t.st.order(id)
}

func (t *tx) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus, notes string, at time.Time) error {
	if err := t.fail("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.Status = status
	o.Notes = notes
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *tx) UpdateOrderPaymentStatus(_ context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	if err := t.fail("UpdateOrderPaymentStatus"); err != nil {
		return err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.PaymentStatus = status
	o.UpdatedAt = at
	t.st.orders[id] = o
	return nil
}

func (t *tx) InsertPayment(_ context.Context, payment *domain.Payment) error {
	if err := t.fail("InsertPayment"); err != nil {
		return err
	}
	if _, ok := t.st.paymentRefs[payment.Reference]; ok {
		return &domain.ConflictError{Entity: "payment", ID: payment.Reference, Reason: "reference already exists"}
	}
	if _, ok := t.st.orders[payment.OrderID]; !ok {
		return notFound("order", payment.OrderID)
	}
	t.st.payments[payment.ID] = *payment
	t.st.paymentRefs[payment.Reference] = payment.ID
	return nil
}

func (t *tx) LockPayment(_ context.Context, id string) (*domain.Payment, error) {
	if err := t.fail("LockPayment"); err != nil {
		return nil, err
	}
	return t.st.payment(id)
}

func (t *tx) LockPaymentByReference(_ context.Context, reference string) (*domain.Payment, error) {
	if err := t.fail("LockPayment"); err != nil {
		return nil, err
	}
	id, ok := t.st.paymentRefs[reference]
	if !ok {
		return nil, notFound("payment", reference)
	}
	return t.st.payment(id)
}

func (t *tx) HasCompletedPayment(_ context.Context, orderID string) (bool, error) {
	for _, p := range t.st.payments {
		if p.OrderID == orderID && p.Status == domain.PaymentCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) ResolvePayment(_ context.Context, id string, res domain.PaymentResolution) (bool, error) {
	if err := t.fail("ResolvePayment"); err != nil {
		return false, err
	}
	p, ok := t.st.payments[id]
	if !ok {
		return false, notFound("payment", id)
	}
	if p.Status != domain.PaymentPending {
		return false, nil
	}
	if res.Status == domain.PaymentCompleted {
		for _, other := range t.st.payments {
			if other.OrderID == p.OrderID && other.Status == domain.PaymentCompleted {
				return false, &domain.ConflictError{Entity: "order", ID: p.OrderID, Reason: "already has a completed payment"}
			}
		}
	}
	at := res.ResolvedAt
	p.Status = res.Status
	if len(res.GatewayResponse) > 0 {
		p.GatewayResponse = slices.Clone(res.GatewayResponse)
	}
	p.ResolvedBy = res.ResolvedBy
	p.FailureReason = res.FailureReason
	p.ResolvedAt = &at
	t.st.payments[id] = p
	return true, nil
}
