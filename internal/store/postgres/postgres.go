// Package postgres implements store.Store on database/sql with lib/pq.
// Locks are taken with SELECT ... FOR UPDATE and held until the enclosing
// transaction commits or rolls back.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
)

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AsPersistence("begin tx", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.AsPersistence("commit tx", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, s.db, "id", id, false)
}

func (s *Store) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	return getOrder(ctx, s.db, "reference", reference, false)
}

func (s *Store) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return getPayment(ctx, s.db, "id", id, false)
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return getPayment(ctx, s.db, "reference", reference, false)
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, wrap("list payments", err)
	}
	defer func() { _ = rows.Close() }()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, wrap("scan payment", err)
		}
		payments = append(payments, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list payments", err)
	}

	return payments, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, delta, previous_stock, new_stock, reason, reference, actor, created_at
		FROM inventory_logs
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, wrap("list ledger entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Type, &e.Delta, &e.PreviousStock, &e.NewStock, &e.Reason, &e.Reference, &e.Actor, &e.CreatedAt); err != nil {
			return nil, wrap("scan ledger entry", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list ledger entries", err)
	}

	return entries, nil
}

func (s *Store) ListActiveAlerts(ctx context.Context) ([]domain.StockAlert, error) {
	return listAlerts(ctx, s.db, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE status = 'active'
		ORDER BY product_id, kind
	`)
}

func (s *Store) InsertWebhook(ctx context.Context, d *domain.WebhookDelivery) error {
	headers := string(d.Headers)
	if headers == "" {
		headers = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_webhooks (id, gateway, event_type, reference, payload, headers, signature_valid, status, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.Gateway, d.EventType, d.Reference, d.Payload, headers, d.SignatureValid, d.Status, d.Error, d.ReceivedAt)
	if err != nil {
		return wrap("insert webhook", err)
	}
	return nil
}

func (s *Store) UpdateWebhook(ctx context.Context, d *domain.WebhookDelivery) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET event_type = $2, reference = $3, signature_valid = $4, status = $5, error = $6, processed_at = $7
		WHERE id = $1
	`, d.ID, d.EventType, d.Reference, d.SignatureValid, d.Status, d.Error, d.ProcessedAt)
	if err != nil {
		return wrap("update webhook", err)
	}
	return requireRow(result, "webhook", d.ID)
}

func (s *Store) GetWebhook(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
	d := &domain.WebhookDelivery{}
	var headers []byte
	var processedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, gateway, event_type, reference, payload, headers, signature_valid, status, error, received_at, processed_at
		FROM payment_webhooks
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Gateway, &d.EventType, &d.Reference, &d.Payload, &headers, &d.SignatureValid, &d.Status, &d.Error, &d.ReceivedAt, &processedAt)
	if err != nil {
		return nil, noRows(err, "webhook", id)
	}

	d.Headers = headers
	if processedAt.Valid {
		d.ProcessedAt = &processedAt.Time
	}
	return d, nil
}

// wrap maps driver errors onto the domain taxonomy.
func wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &domain.ConflictError{Entity: pqErr.Table, ID: pqErr.Constraint, Reason: op + ": unique constraint violated"}
	}
	return domain.AsPersistence(op, err)
}

func noRows(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	return wrap("get "+entity, err)
}

func requireRow(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return wrap("update "+entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}
