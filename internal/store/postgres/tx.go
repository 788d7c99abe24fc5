package postgres

import (
	"context"
	"time"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
)

type tx struct {
	q querier
}

var _ store.Tx = (*tx)(nil)

func (t *tx) LockProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.q, id, true)
}

func (t *tx) UpdateProductStock(ctx context.Context, id string, stock int, inStock bool, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE products SET stock = $2, in_stock = $3, updated_at = $4
		WHERE id = $1
	`, id, stock, inStock, at)
	if err != nil {
		return wrap("update product stock", err)
	}
	return requireRow(result, "product", id)
}

func (t *tx) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO inventory_logs (id, product_id, type, delta, previous_stock, new_stock, reason, reference, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.ProductID, e.Type, e.Delta, e.PreviousStock, e.NewStock, e.Reason, e.Reference, e.Actor, e.CreatedAt)
	if err != nil {
		return wrap("insert ledger entry", err)
	}
	return nil
}

func (t *tx) ActiveAlerts(ctx context.Context, productID string) ([]domain.StockAlert, error) {
	return listAlerts(ctx, t.q, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE product_id = $1 AND status = 'active'
		ORDER BY kind
		FOR UPDATE
	`, productID)
}

func (t *tx) InsertAlert(ctx context.Context, a *domain.StockAlert) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_alerts (id, product_id, kind, threshold, observed_stock, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ProductID, a.Kind, a.Threshold, a.ObservedStock, a.Status, a.CreatedAt)
	if err != nil {
		return wrap("insert stock alert", err)
	}
	return nil
}

func (t *tx) ResolveAlert(ctx context.Context, id string, observedStock int, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE stock_alerts SET status = 'resolved', observed_stock = $2, resolved_at = $3
		WHERE id = $1 AND status = 'active'
	`, id, observedStock, at)
	if err != nil {
		return wrap("resolve stock alert", err)
	}
	return requireRow(result, "stock alert", id)
}

func (t *tx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (id, reference, user_id, customer_name, customer_email, customer_phone, delivery_address,
			total_amount, currency, order_status, payment_status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, o.ID, o.Reference, o.UserID, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.DeliveryAddress,
		o.TotalAmount, o.Currency, o.Status, o.PaymentStatus, o.Notes, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return wrap("insert order", err)
	}

	for i, item := range o.Items {
		_, err = t.q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, subtotal, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, o.ID, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity, item.Subtotal, i)
		if err != nil {
			return wrap("insert order item", err)
		}
	}

	return nil
}

func (t *tx) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, t.q, "id", id, true)
}

func (t *tx) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, notes string, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE orders SET order_status = $2, notes = $3, updated_at = $4
		WHERE id = $1
	`, id, status, notes, at)
	if err != nil {
		return wrap("update order status", err)
	}
	return requireRow(result, "order", id)
}

func (t *tx) UpdateOrderPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE orders SET payment_status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, at)
	if err != nil {
		return wrap("update order payment status", err)
	}
	return requireRow(result, "order", id)
}

func (t *tx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, gateway, reference, amount, fee, net_amount, currency, status,
			gateway_response, instructions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.OrderID, p.Gateway, p.Reference, p.Amount, p.Fee, p.NetAmount, p.Currency, p.Status,
		jsonParam(p.GatewayResponse), p.Instructions, p.CreatedAt)
	if err != nil {
		return wrap("insert payment", err)
	}
	return nil
}

func (t *tx) LockPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return getPayment(ctx, t.q, "id", id, true)
}

func (t *tx) LockPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return getPayment(ctx, t.q, "reference", reference, true)
}

func (t *tx) HasCompletedPayment(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'completed')
	`, orderID).Scan(&exists)
	if err != nil {
		return false, wrap("check completed payment", err)
	}
	return exists, nil
}

func (t *tx) ResolvePayment(ctx context.Context, id string, res domain.PaymentResolution) (bool, error) {
	result, err := t.q.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, gateway_response = COALESCE($3::jsonb, gateway_response),
			resolved_by = $4, failure_reason = $5, resolved_at = $6
		WHERE id = $1 AND status = 'pending'
	`, id, res.Status, jsonParam(res.GatewayResponse), res.ResolvedBy, res.FailureReason, res.ResolvedAt)
	if err != nil {
		return false, wrap("resolve payment", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, wrap("resolve payment", err)
	}

	return n == 1, nil
}
