package postgres

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

const (
	paymentColumns = `id, order_id, gateway, reference, amount, fee, net_amount, currency, status,
		gateway_response, instructions, resolved_by, failure_reason, created_at, resolved_at`
	alertColumns = `id, product_id, kind, threshold, observed_stock, status, created_at, resolved_at`
)

type scanner interface {
	Scan(dest ...any) error
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func getProduct(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Product, error) {
	p := &domain.Product{}

	err := q.QueryRowContext(ctx, `
		SELECT id, name, price, stock, low_stock_threshold, in_stock, updated_at
		FROM products
		WHERE id = $1`+lockClause(forUpdate), id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.LowStockThreshold, &p.InStock, &p.UpdatedAt)
	if err != nil {
		return nil, noRows(err, "product", id)
	}

	return p, nil
}

// getOrder loads the header by id or reference, then its items in line order.
func getOrder(ctx context.Context, q querier, column, value string, forUpdate bool) (*domain.Order, error) {
	o := &domain.Order{}
	var userID sql.NullString

	err := q.QueryRowContext(ctx, `
		SELECT id, reference, user_id, customer_name, customer_email, customer_phone, delivery_address,
			total_amount, currency, order_status, payment_status, notes, created_at, updated_at
		FROM orders
		WHERE `+column+` = $1`+lockClause(forUpdate), value,
	).Scan(&o.ID, &o.Reference, &userID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.DeliveryAddress,
		&o.TotalAmount, &o.Currency, &o.Status, &o.PaymentStatus, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, noRows(err, "order", value)
	}
	if userID.Valid {
		o.UserID = &userID.String
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, o.ID)
	if err != nil {
		return nil, wrap("list order items", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.Subtotal); err != nil {
			return nil, wrap("scan order item", err)
		}
		o.Items = append(o.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list order items", err)
	}

	return o, nil
}

func getPayment(ctx context.Context, q querier, column, value string, forUpdate bool) (*domain.Payment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE `+column+` = $1`+lockClause(forUpdate), value)

	p, err := scanPayment(row)
	if err != nil {
		return nil, noRows(err, "payment", value)
	}
	return p, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var response []byte
	var resolvedAt sql.NullTime

	if err := s.Scan(&p.ID, &p.OrderID, &p.Gateway, &p.Reference, &p.Amount, &p.Fee, &p.NetAmount, &p.Currency, &p.Status,
		&response, &p.Instructions, &p.ResolvedBy, &p.FailureReason, &p.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	p.GatewayResponse = response
	if resolvedAt.Valid {
		p.ResolvedAt = &resolvedAt.Time
	}
	return p, nil
}

func listAlerts(ctx context.Context, q querier, query string, args ...any) ([]domain.StockAlert, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list stock alerts", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []domain.StockAlert
	for rows.Next() {
		var a domain.StockAlert
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Kind, &a.Threshold, &a.ObservedStock, &a.Status, &a.CreatedAt, &resolvedAt); err != nil {
			return nil, wrap("scan stock alert", err)
		}
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list stock alerts", err)
	}

	return alerts, nil
}

// jsonParam converts a raw JSON document into a parameter lib/pq sends as
// text, which jsonb accepts; empty documents become NULL.
func jsonParam(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
