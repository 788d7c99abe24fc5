package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/httpx"
)

type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.ledger.Product(r.Context(), productID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.ledger.History(r.Context(), productID, limit)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, entries)
}

type adjustRequest struct {
	NewStock  *int   `json:"new_stock"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if req.NewStock == nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "new_stock is required")
		return
	}

	entry, err := h.ledger.AdjustStock(r.Context(), Adjustment{
		ProductID: productID,
		NewStock:  *req.NewStock,
		Reason:    req.Reason,
		Reference: req.Reference,
		Actor:     httpx.Actor(r),
	})
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, entry)
}

type quantityRequest struct {
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

// HandleReceive books incoming stock.
func (h *Handler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	h.handleQuantity(w, r, domain.MutationStockIn)
}

// HandleRemove books stock leaving outside of a sale (damage, loss).
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.handleQuantity(w, r, domain.MutationStockOut)
}

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request, kind domain.MutationType) {
	productID := r.PathValue("productId")
	if productID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	m := Mutation{
		ProductID: productID,
		Quantity:  req.Quantity,
		Type:      kind,
		Reason:    req.Reason,
		Reference: req.Reference,
		Actor:     httpx.Actor(r),
	}

	var entry *domain.LedgerEntry
	var err error
	if kind == domain.MutationStockIn {
		entry, err = h.ledger.CreditStock(r.Context(), m)
	} else {
		entry, err = h.ledger.DebitStock(r.Context(), m)
	}
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, entry)
}

type bulkRequest struct {
	Adjustments []Adjustment `json:"adjustments"`
}

func (h *Handler) HandleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	entries, err := h.ledger.BulkUpdate(r.Context(), httpx.Actor(r), req.Adjustments)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, entries)
}

func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.ledger.ActiveAlerts(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if alerts == nil {
		alerts = []domain.StockAlert{}
	}

	h.logger.Info("alerts listed", "count", len(alerts))
	httpx.WriteJSON(w, h.logger, http.StatusOK, alerts)
}
