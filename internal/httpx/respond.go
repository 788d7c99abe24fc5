// Package httpx holds the JSON response helpers shared by the HTTP handlers
// and the mapping from domain error kinds to status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

// ActorHeader carries the identity of the operator behind an admin call.
const ActorHeader = "X-Actor-ID"

type errorBody struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, errorBody{Error: message})
}

// WriteDomainError picks the status from the error kind. Persistence and
// unclassified errors are logged and answered with a generic message.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		available := stockErr.Available
		WriteJSON(w, logger, http.StatusConflict, errorBody{
			Error:     stockErr.Error(),
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: &available,
		})
		return
	}

	var gatewayErr *domain.GatewayError
	if errors.As(err, &gatewayErr) {
		message := gatewayErr.Message
		if message == "" {
			message = "payment gateway error"
		}
		WriteError(w, logger, http.StatusBadGateway, message)
		return
	}

	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		WriteError(w, logger, status, "internal server error")
	case http.StatusUnauthorized:
		WriteError(w, logger, status, "invalid signature")
	default:
		WriteError(w, logger, status, err.Error())
	}
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStock), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into v, reporting malformed bodies as
// validation errors.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid request body")
	}
	return nil
}

// Actor returns the operator identity of an admin request, or "" when the
// header is absent.
func Actor(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}
