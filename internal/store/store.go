// Package store declares the persistence ports used by the ledgers. The
// postgres package is the production implementation; memory backs tests and
// local runs.
package store

import (
	"context"
	"time"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

// Store runs units of work. Everything a callback does through its Tx is
// committed together or not at all; a non-nil error from fn rolls back.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	InsertWebhook(ctx context.Context, delivery *domain.WebhookDelivery) error
	// UpdateWebhook records the outcome fields of an existing audit row.
	UpdateWebhook(ctx context.Context, delivery *domain.WebhookDelivery) error
}

// Reader holds the non-locking reads. Missing rows are reported as
// domain.ErrNotFound.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error)
	ListLedgerEntries(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error)
	ListActiveAlerts(ctx context.Context) ([]domain.StockAlert, error)
	GetWebhook(ctx context.Context, id string) (*domain.WebhookDelivery, error)
}

// Tx is the transactional surface. Lock* methods hold the row until the unit
// of work ends.
type Tx interface {
	LockProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProductStock(ctx context.Context, id string, stock int, inStock bool, at time.Time) error
	InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ActiveAlerts(ctx context.Context, productID string) ([]domain.StockAlert, error)
	InsertAlert(ctx context.Context, alert *domain.StockAlert) error
	ResolveAlert(ctx context.Context, id string, observedStock int, at time.Time) error

	InsertOrder(ctx context.Context, order *domain.Order) error
	LockOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, notes string, at time.Time) error
	UpdateOrderPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error

	InsertPayment(ctx context.Context, payment *domain.Payment) error
	LockPayment(ctx context.Context, id string) (*domain.Payment, error)
	LockPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	HasCompletedPayment(ctx context.Context, orderID string) (bool, error)
	// ResolvePayment only touches a payment that is still pending and
	// reports whether it did.
	ResolvePayment(ctx context.Context, id string, res domain.PaymentResolution) (bool, error)
}
