// Package memory is an in-process store.Store. Transactions are serialised
// behind one mutex and run against a copy of the state that is swapped in on
// commit, which gives the same all-or-nothing behaviour as the database.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/store"
)

type state struct {
	products    map[string]domain.Product
	orders      map[string]domain.Order
	orderRefs   map[string]string
	payments    map[string]domain.Payment
	paymentRefs map[string]string
	ledger      []domain.LedgerEntry
	alerts      map[string]domain.StockAlert
	webhooks    map[string]domain.WebhookDelivery
}

func newState() *state {
	return &state{
		products:    make(map[string]domain.Product),
		orders:      make(map[string]domain.Order),
		orderRefs:   make(map[string]string),
		payments:    make(map[string]domain.Payment),
		paymentRefs: make(map[string]string),
		alerts:      make(map[string]domain.StockAlert),
		webhooks:    make(map[string]domain.WebhookDelivery),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.orders {
		v.Items = slices.Clone(v.Items)
		c.orders[k] = v
	}
	for k, v := range st.orderRefs {
		c.orderRefs[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.paymentRefs {
		c.paymentRefs[k] = v
	}
	c.ledger = slices.Clone(st.ledger)
	for k, v := range st.alerts {
		c.alerts[k] = v
	}
	for k, v := range st.webhooks {
		c.webhooks[k] = v
	}
	return c
}

// Store must not be read from inside its own WithTx callback; use the Tx.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), failures: make(map[string]error)}
}

// PutProduct creates or replaces a catalog row.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.LowStockThreshold == 0 {
		p.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	p.InStock = p.Stock > 0
	s.st.products[p.ID] = p
}

// FailOn makes the named Tx operation (e.g. "InsertOrder") return err until
// cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.AsPersistence("begin tx", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work, failures: s.failures}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.AsPersistence("commit tx", err)
	}
	s.st = work
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.order(id)
}

func (s *Store) GetOrderByReference(_ context.Context, reference string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.orderRefs[reference]
	if !ok {
		return nil, notFound("order", reference)
	}
	return s.st.order(id)
}

func (s *Store) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.payment(id)
}

func (s *Store) GetPaymentByReference(_ context.Context, reference string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.paymentRefs[reference]
	if !ok {
		return nil, notFound("payment", reference)
	}
	return s.st.payment(id)
}

func (s *Store) ListPayments(_ context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.st.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(s.st.ledger) - 1; i >= 0; i-- {
		if s.st.ledger[i].ProductID != productID {
			continue
		}
		out = append(out, s.st.ledger[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListActiveAlerts(_ context.Context) ([]domain.StockAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StockAlert
	for _, a := range s.st.alerts {
		if a.Status == domain.AlertActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (s *Store) InsertWebhook(_ context.Context, d *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["InsertWebhook"]; err != nil {
		return domain.AsPersistence("insert webhook", err)
	}
	cp := *d
	cp.Payload = slices.Clone(d.Payload)
	s.st.webhooks[d.ID] = cp
	return nil
}

func (s *Store) UpdateWebhook(_ context.Context, d *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.st.webhooks[d.ID]
	if !ok {
		return notFound("webhook", d.ID)
	}
	cur.EventType = d.EventType
	cur.Reference = d.Reference
	cur.SignatureValid = d.SignatureValid
	cur.Status = d.Status
	cur.Error = d.Error
	cur.ProcessedAt = d.ProcessedAt
	s.st.webhooks[d.ID] = cur
	return nil
}

func (s *Store) GetWebhook(_ context.Context, id string) (*domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.st.webhooks[id]
	if !ok {
		return nil, notFound("webhook", id)
	}
	return &d, nil
}

// Webhooks returns every audit row for a gateway, oldest first.
func (s *Store) Webhooks(gateway string) []domain.WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WebhookDelivery
	for _, d := range s.st.webhooks {
		if d.Gateway == gateway {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

// OrderCount is the number of persisted orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

// PaymentCount is the number of persisted payment attempts.
func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.payments)
}

func (st *state) order(id string) (*domain.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (st *state) payment(id string) (*domain.Payment, error) {
	p, ok := st.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return &p, nil
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
}
