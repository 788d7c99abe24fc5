package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/store/memory"
)

func newLedger(t *testing.T, products ...domain.Product) (*Ledger, *memory.Store) {
	t.Helper()
	s := memory.New()
	for _, p := range products {
		s.PutProduct(p)
	}
	return NewLedger(s, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func activeKinds(t *testing.T, l *Ledger, productID string) []domain.AlertKind {
	t.Helper()
	alerts, err := l.ActiveAlerts(context.Background())
	if err != nil {
		t.Fatalf("active alerts: %v", err)
	}
	var kinds []domain.AlertKind
	for _, a := range alerts {
		if a.ProductID == productID {
			kinds = append(kinds, a.Kind)
		}
	}
	return kinds
}

func TestLedger_Mutations(t *testing.T) {
	ctx := context.Background()
	tote := domain.Product{ID: "PROD-A", Name: "Ankara Tote Bag", Price: 1000, Stock: 20, LowStockThreshold: 5}

	t.Run("credit and debit record before and after", func(t *testing.T) {
		l, _ := newLedger(t, tote)

		in, err := l.CreditStock(ctx, Mutation{ProductID: "PROD-A", Quantity: 5, Type: domain.MutationStockIn, Actor: "ops"})
		if err != nil {
			t.Fatalf("credit: %v", err)
		}
		if in.Delta != 5 || in.PreviousStock != 20 || in.NewStock != 25 || in.Actor != "ops" {
			t.Errorf("unexpected credit entry %+v", in)
		}

		out, err := l.DebitStock(ctx, Mutation{ProductID: "PROD-A", Quantity: 4, Type: domain.MutationStockOut, Reason: "damaged"})
		if err != nil {
			t.Fatalf("debit: %v", err)
		}
		if out.Delta != -4 || out.NewStock != 21 || out.Reason != "damaged" {
			t.Errorf("unexpected debit entry %+v", out)
		}

		history, err := l.History(ctx, "PROD-A", 0)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 || history[0].ID != out.ID {
			t.Errorf("expected newest entry first, got %+v", history)
		}
	})

	t.Run("debit clamps at zero", func(t *testing.T) {
		l, _ := newLedger(t, tote)

		entry, err := l.DebitStock(ctx, Mutation{ProductID: "PROD-A", Quantity: 50, Type: domain.MutationStockOut})
		if err != nil {
			t.Fatalf("debit: %v", err)
		}
		if entry.NewStock != 0 || entry.Delta != -20 {
			t.Errorf("expected clamped entry, got %+v", entry)
		}

		p, err := l.Product(ctx, "PROD-A")
		if err != nil {
			t.Fatalf("product: %v", err)
		}
		if p.Stock != 0 || p.InStock {
			t.Errorf("expected sold out product, got %+v", p)
		}
	})

	t.Run("adjust sets an absolute level", func(t *testing.T) {
		l, _ := newLedger(t, tote)

		entry, err := l.AdjustStock(ctx, Adjustment{ProductID: "PROD-A", NewStock: 12, Reason: "recount"})
		if err != nil {
			t.Fatalf("adjust: %v", err)
		}
		if entry.Type != domain.MutationAdjustment || entry.Delta != -8 || entry.NewStock != 12 {
			t.Errorf("unexpected adjustment entry %+v", entry)
		}
	})

	t.Run("rejects invalid mutations", func(t *testing.T) {
		l, _ := newLedger(t, tote)

		tests := []struct {
			name string
			run  func() error
			want error
		}{
			{"zero quantity", func() error {
				_, err := l.CreditStock(ctx, Mutation{ProductID: "PROD-A", Quantity: 0})
				return err
			}, domain.ErrValidation},
			{"credit with a debit type", func() error {
				_, err := l.CreditStock(ctx, Mutation{ProductID: "PROD-A", Quantity: 1, Type: domain.MutationSale})
				return err
			}, domain.ErrValidation},
			{"debit with a credit type", func() error {
				_, err := l.DebitStock(ctx, Mutation{ProductID: "PROD-A", Quantity: 1, Type: domain.MutationReturn})
				return err
			}, domain.ErrValidation},
			{"negative adjustment", func() error {
				_, err := l.AdjustStock(ctx, Adjustment{ProductID: "PROD-A", NewStock: -1})
				return err
			}, domain.ErrValidation},
			{"unknown product", func() error {
				_, err := l.CreditStock(ctx, Mutation{ProductID: "PROD-Z", Quantity: 1})
				return err
			}, domain.ErrNotFound},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := tt.run(); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})
}

func TestLedger_Alerts(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, domain.Product{ID: "PROD-A", Name: "Ankara Tote Bag", Stock: 20, LowStockThreshold: 5})

	steps := []struct {
		newStock int
		want     []domain.AlertKind
	}{
		{10, nil},
		{5, []domain.AlertKind{domain.AlertLowStock}},
		{3, []domain.AlertKind{domain.AlertLowStock}},
		{0, []domain.AlertKind{domain.AlertOutOfStock}},
		{2, []domain.AlertKind{domain.AlertLowStock}},
		{30, nil},
	}

	for _, step := range steps {
		if _, err := l.AdjustStock(ctx, Adjustment{ProductID: "PROD-A", NewStock: step.newStock}); err != nil {
			t.Fatalf("adjust to %d: %v", step.newStock, err)
		}
		got := activeKinds(t, l, "PROD-A")
		if len(got) != len(step.want) || (len(got) == 1 && got[0] != step.want[0]) {
			t.Errorf("at stock %d expected alerts %v, got %v", step.newStock, step.want, got)
		}
	}
}

func TestLedger_BulkUpdate(t *testing.T) {
	ctx := context.Background()
	products := []domain.Product{
		{ID: "PROD-A", Name: "Ankara Tote Bag", Stock: 20},
		{ID: "PROD-B", Name: "Leather Sandals", Stock: 20},
	}

	t.Run("applies every adjustment", func(t *testing.T) {
		l, _ := newLedger(t, products...)

		entries, err := l.BulkUpdate(ctx, "ops", []Adjustment{
			{ProductID: "PROD-B", NewStock: 7},
			{ProductID: "PROD-A", NewStock: 15, Actor: "warehouse"},
		})
		if err != nil {
			t.Fatalf("bulk update: %v", err)
		}
		if len(entries) != 2 || entries[0].ProductID != "PROD-A" || entries[1].ProductID != "PROD-B" {
			t.Fatalf("expected entries in product order, got %+v", entries)
		}
		if entries[0].Actor != "warehouse" || entries[1].Actor != "ops" {
			t.Errorf("unexpected actors %q and %q", entries[0].Actor, entries[1].Actor)
		}
	})

	t.Run("one bad row rolls back the batch", func(t *testing.T) {
		l, _ := newLedger(t, products...)

		_, err := l.BulkUpdate(ctx, "ops", []Adjustment{
			{ProductID: "PROD-A", NewStock: 1},
			{ProductID: "PROD-Z", NewStock: 3},
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}

		p, err := l.Product(ctx, "PROD-A")
		if err != nil {
			t.Fatalf("product: %v", err)
		}
		if p.Stock != 20 {
			t.Errorf("expected stock 20 after rollback, got %d", p.Stock)
		}
		if kinds := activeKinds(t, l, "PROD-A"); len(kinds) != 0 {
			t.Errorf("rolled back batch left alerts %v", kinds)
		}
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		l, _ := newLedger(t, products...)
		if _, err := l.BulkUpdate(ctx, "ops", nil); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}
