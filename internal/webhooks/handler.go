package webhooks

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/httpx"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewHandler(reconciler *Reconciler, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		logger:     logger,
	}
}

type ackResponse struct {
	Status Outcome `json:"status"`
}

// HandleWebhook acknowledges every callback it could settle or safely
// ignore. Failures answer non-2xx so the gateway delivers again.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, h.logger, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "failed to read body")
		return
	}

	outcome, err := h.reconciler.Handle(r.Context(), r.PathValue("gateway"), body, r.Header)
	if err != nil {
		if errors.Is(err, domain.ErrGateway) {
			// Verify against the gateway failed; ask for a redelivery.
			h.logger.Error("webhook verification failed", "error", err)
			httpx.WriteError(w, h.logger, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, ackResponse{Status: outcome})
}
