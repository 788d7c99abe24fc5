// Package inventory is the only writer of product stock. Every mutation
// appends an inventory_logs row with the stock before and after, and
// re-derives the product's stock alerts in the same transaction.
package inventory

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
	"github.com/joao-fontenele/checkout-ledger/internal/telemetry"
)

// Mutation is a relative stock change. Quantity is always positive; the
// direction comes from the method it is passed to.
type Mutation struct {
	ProductID string
	Quantity  int
	Type      domain.MutationType
	Reason    string
	Reference string
	Actor     string
}

// Adjustment sets a product's stock to an absolute value.
type Adjustment struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference,omitempty"`
	Actor     string `json:"-"`
}

type Ledger struct {
	store     store.Store
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	threshold int
	now       func() time.Time
}

type Option func(*Ledger)

// WithDefaultThreshold sets the low-stock threshold used for products that
// do not carry their own.
func WithDefaultThreshold(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(s store.Store, metrics *telemetry.Metrics, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:     s,
		metrics:   metrics,
		logger:    logger,
		threshold: domain.DefaultLowStockThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Debit removes up to m.Quantity units. The stock is clamped at zero and the
// entry records the delta actually applied, so callers that need a strict
// availability check must make it before calling Debit.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, m Mutation) (*domain.LedgerEntry, error) {
	if m.Type == "" {
		m.Type = domain.MutationSale
	}
	if m.Type != domain.MutationSale && m.Type != domain.MutationStockOut {
		return nil, domain.NewValidationError("type", "%s is not a debit", m.Type)
	}
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	p, err := tx.LockProduct(ctx, m.ProductID)
	if err != nil {
		return nil, err
	}

	return l.apply(ctx, tx, p, max(0, p.Stock-m.Quantity), m)
}

// Credit adds m.Quantity units back, for returns, cancellations and
// restocking.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, m Mutation) (*domain.LedgerEntry, error) {
	if m.Type == "" {
		m.Type = domain.MutationReturn
	}
	if m.Type != domain.MutationReturn && m.Type != domain.MutationStockIn {
		return nil, domain.NewValidationError("type", "%s is not a credit", m.Type)
	}
	if err := validateMutation(m); err != nil {
		return nil, err
	}

	p, err := tx.LockProduct(ctx, m.ProductID)
	if err != nil {
		return nil, err
	}

	return l.apply(ctx, tx, p, p.Stock+m.Quantity, m)
}

// Adjust sets the stock to a.NewStock; the entry's delta is new minus
// previous.
func (l *Ledger) Adjust(ctx context.Context, tx store.Tx, a Adjustment) (*domain.LedgerEntry, error) {
	if a.ProductID == "" {
		return nil, domain.NewValidationError("product_id", "is required")
	}
	if a.NewStock < 0 {
		return nil, domain.NewValidationError("new_stock", "must not be negative, got %d", a.NewStock)
	}

	p, err := tx.LockProduct(ctx, a.ProductID)
	if err != nil {
		return nil, err
	}

	return l.apply(ctx, tx, p, a.NewStock, Mutation{
		ProductID: a.ProductID,
		Type:      domain.MutationAdjustment,
		Reason:    a.Reason,
		Reference: a.Reference,
		Actor:     a.Actor,
	})
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, p *domain.Product, newStock int, m Mutation) (*domain.LedgerEntry, error) {
	at := l.now()

	if err := tx.UpdateProductStock(ctx, p.ID, newStock, newStock > 0, at); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.NewString(),
		ProductID:     p.ID,
		Type:          m.Type,
		Delta:         newStock - p.Stock,
		PreviousStock: p.Stock,
		NewStock:      newStock,
		Reason:        m.Reason,
		Reference:     m.Reference,
		Actor:         m.Actor,
		CreatedAt:     at,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}

	if err := l.evaluateAlerts(ctx, tx, p, newStock, at); err != nil {
		return nil, err
	}

	return entry, nil
}

// evaluateAlerts keeps at most one active alert per product: out_of_stock at
// zero, low_stock at or below the threshold, none above it.
func (l *Ledger) evaluateAlerts(ctx context.Context, tx store.Tx, p *domain.Product, stock int, at time.Time) error {
	threshold := p.LowStockThreshold
	if threshold <= 0 {
		threshold = l.threshold
	}

	var want domain.AlertKind
	switch {
	case stock == 0:
		want = domain.AlertOutOfStock
	case stock <= threshold:
		want = domain.AlertLowStock
	}

	active, err := tx.ActiveAlerts(ctx, p.ID)
	if err != nil {
		return err
	}

	open := false
	for _, a := range active {
		if a.Kind == want {
			open = true
			continue
		}
		if err := tx.ResolveAlert(ctx, a.ID, stock, at); err != nil {
			return err
		}
		l.logger.Info("stock alert resolved", "product_id", p.ID, "kind", a.Kind, "stock", stock)
	}

	if want == "" || open {
		return nil
	}

	alert := &domain.StockAlert{
		ID:            uuid.NewString(),
		ProductID:     p.ID,
		Kind:          want,
		Threshold:     threshold,
		ObservedStock: stock,
		Status:        domain.AlertActive,
		CreatedAt:     at,
	}
	if err := tx.InsertAlert(ctx, alert); err != nil {
		return err
	}
	l.logger.Warn("stock alert raised", "product_id", p.ID, "kind", want, "stock", stock, "threshold", threshold)
	return nil
}

// Observe records committed entries in the metrics. Call it only after the
// transaction that produced them has committed.
func (l *Ledger) Observe(ctx context.Context, entries ...*domain.LedgerEntry) {
	for _, e := range entries {
		l.metrics.StockMutation(ctx, string(e.Type))
	}
}

func (l *Ledger) DebitStock(ctx context.Context, m Mutation) (*domain.LedgerEntry, error) {
	return l.single(ctx, func(tx store.Tx) (*domain.LedgerEntry, error) { return l.Debit(ctx, tx, m) })
}

func (l *Ledger) CreditStock(ctx context.Context, m Mutation) (*domain.LedgerEntry, error) {
	return l.single(ctx, func(tx store.Tx) (*domain.LedgerEntry, error) { return l.Credit(ctx, tx, m) })
}

func (l *Ledger) AdjustStock(ctx context.Context, a Adjustment) (*domain.LedgerEntry, error) {
	return l.single(ctx, func(tx store.Tx) (*domain.LedgerEntry, error) { return l.Adjust(ctx, tx, a) })
}

func (l *Ledger) single(ctx context.Context, fn func(tx store.Tx) (*domain.LedgerEntry, error)) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		entry, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.Observe(ctx, entry)
	l.logger.Info("stock mutated", "product_id", entry.ProductID, "type", entry.Type, "delta", entry.Delta, "new_stock", entry.NewStock)
	return entry, nil
}

// BulkUpdate applies every adjustment in one transaction; any failure rolls
// back the whole batch. Adjustments are applied grouped by product id, in
// their original order within a product, so concurrent batches lock rows in
// the same order.
func (l *Ledger) BulkUpdate(ctx context.Context, actor string, adjustments []Adjustment) ([]*domain.LedgerEntry, error) {
	if len(adjustments) == 0 {
		return nil, domain.NewValidationError("adjustments", "must not be empty")
	}

	ordered := make([]Adjustment, len(adjustments))
	copy(ordered, adjustments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	var entries []*domain.LedgerEntry
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		entries = entries[:0]
		for _, a := range ordered {
			if a.Actor == "" {
				a.Actor = actor
			}
			entry, err := l.Adjust(ctx, tx, a)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		l.logger.Warn("bulk stock update rolled back", "count", len(adjustments), "error", err)
		return nil, err
	}

	l.Observe(ctx, entries...)
	l.logger.Info("bulk stock update applied", "count", len(entries), "actor", actor)
	return entries, nil
}

func (l *Ledger) Product(ctx context.Context, id string) (*domain.Product, error) {
	return l.store.GetProduct(ctx, id)
}

// History returns the most recent entries for a product, newest first.
func (l *Ledger) History(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if _, err := l.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.ListLedgerEntries(ctx, productID, limit)
}

func (l *Ledger) ActiveAlerts(ctx context.Context) ([]domain.StockAlert, error) {
	return l.store.ListActiveAlerts(ctx)
}

func validateMutation(m Mutation) error {
	if m.ProductID == "" {
		return domain.NewValidationError("product_id", "is required")
	}
	if m.Quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive, got %d", m.Quantity)
	}
	return nil
}
