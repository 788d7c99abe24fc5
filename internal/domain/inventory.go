package domain

import "time"

const DefaultLowStockThreshold = 10

type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Price             int64     `json:"price"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	InStock           bool      `json:"in_stock"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type MutationType string

const (
	MutationStockIn    MutationType = "stock_in"
	MutationStockOut   MutationType = "stock_out"
	MutationSale       MutationType = "sale"
	MutationReturn     MutationType = "return"
	MutationAdjustment MutationType = "adjustment"
)

// LedgerEntry is one append-only row of inventory_logs.
type LedgerEntry struct {
	ID            string       `json:"id"`
	ProductID     string       `json:"product_id"`
	Type          MutationType `json:"type"`
	Delta         int          `json:"delta"`
	PreviousStock int          `json:"previous_stock"`
	NewStock      int          `json:"new_stock"`
	Reason        string       `json:"reason,omitempty"`
	Reference     string       `json:"reference,omitempty"`
	Actor         string       `json:"actor,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type AlertKind string

const (
	AlertLowStock   AlertKind = "low_stock"
	AlertOutOfStock AlertKind = "out_of_stock"
)

type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

type StockAlert struct {
	ID            string      `json:"id"`
	ProductID     string      `json:"product_id"`
	Kind          AlertKind   `json:"kind"`
	Threshold     int         `json:"threshold"`
	ObservedStock int         `json:"observed_stock"`
	Status        AlertStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
}
