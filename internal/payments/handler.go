package payments

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	res, err := h.service.Initialize(r.Context(), req)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, res)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Get(r.Context(), r.PathValue("reference"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payment)
}

func (h *Handler) HandleListForOrder(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListForOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payments)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Verify(r.Context(), r.PathValue("reference"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payment)
}

// HandleCallback is where hosted checkouts send the customer back. The
// processors name the reference parameter differently.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reference := q.Get("reference")
	if reference == "" {
		reference = q.Get("tx_ref")
	}
	if reference == "" {
		reference = q.Get("trxref")
	}
	if reference == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing payment reference")
		return
	}

	payment, err := h.service.Verify(r.Context(), reference)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payment)
}

func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDomainError(w, h.logger, err)
			return
		}
	}
	req.Reference = r.PathValue("reference")

	res, err := h.service.Refund(r.Context(), req)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, res)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Confirm(r.Context(), httpx.Actor(r), r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payment)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	payment, err := h.service.Reject(r.Context(), httpx.Actor(r), r.PathValue("id"), req.Reason)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payment)
}
